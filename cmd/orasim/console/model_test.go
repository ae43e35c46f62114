package console

import (
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/cmd/orasim/ui"
	"orasim/internal/commands"
	"orasim/internal/config"
	"orasim/internal/shell"
	"orasim/internal/store"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	s := shell.New(shell.Options{
		ID:       "console-test",
		Config:   config.DefaultConfig(),
		Store:    store.NewMemoryStore(),
		Registry: commands.NewRegistry(),
		Clock:    func() time.Time { return time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC) },
	})
	m := New(s, ui.NewStyles(ui.DarkTheme()))
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func (m *Model) enter(line string) tea.Cmd {
	m.input.SetValue(line)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestEnterRunsLine(t *testing.T) {
	m := newModel(t)
	assert.Equal(t, "[root@dbserver01 ~]# ", m.input.Prompt)

	assert.Nil(t, m.enter("pwd"))
	assert.Equal(t, []string{"[root@dbserver01 ~]# pwd", "/root"}, m.lines)
	assert.Empty(t, m.input.Value())

	m.enter("cd /tmp")
	assert.Equal(t, "[root@dbserver01 tmp]# ", m.input.Prompt)
	assert.Contains(t, m.View(), "Oracle 19c install 0/")
}

func TestMaskedInputIsNotEchoed(t *testing.T) {
	m := newModel(t)
	m.enter("useradd oracle")
	m.enter("passwd oracle")
	require.Equal(t, textinput.EchoNone, m.input.EchoMode)

	m.lines = nil
	m.enter("Welcome#2024")
	require.NotEmpty(t, m.lines)
	assert.Equal(t, "New password: ", m.lines[0])
	assert.NotContains(t, m.lines, "New password: Welcome#2024")
}

func TestHistoryRecall(t *testing.T) {
	m := newModel(t)
	m.enter("hostname")
	m.enter("whoami")

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "whoami", m.input.Value())
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "hostname", m.input.Value())
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Empty(t, m.input.Value())
}

func TestControlKeys(t *testing.T) {
	m := newModel(t)
	m.input.SetValue("ls -")
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, []string{"[root@dbserver01 ~]# ls -^C"}, m.lines)
	assert.Empty(t, m.input.Value())

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.lines)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestClearCommand(t *testing.T) {
	m := newModel(t)
	m.enter("pwd")
	m.enter("clear")
	assert.Empty(t, m.lines)
}
