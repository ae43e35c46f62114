// Package console is the full-screen terminal front-end: a scrolling
// viewport of session output, a single input line carrying the live prompt,
// and a status bar with the installation progress.
package console

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"orasim/cmd/orasim/ui"
	"orasim/internal/oracle"
	"orasim/internal/shell"
)

// maxLines bounds the scrollback.
const maxLines = 5000

// Model is the bubbletea model. It is also the session's output writer, so
// it must be used through a pointer.
type Model struct {
	session *shell.Session
	styles  ui.Styles

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	lines    []string
	progress oracle.Progress
	quitting bool
}

// New binds a console to s and routes the session's output into it.
func New(s *shell.Session, styles ui.Styles) *Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 4096
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.Output

	m := &Model{session: s, styles: styles, input: ti}
	s.SetOutput(m)
	m.syncPrompt()
	m.progress = s.Oracle.CalculateProgress(s.FS)
	return m
}

// Run starts the program on the alternate screen and blocks until the user
// logs out.
func Run(s *shell.Session) error {
	_, err := tea.NewProgram(New(s, ui.DefaultStyles()), tea.WithAltScreen()).Run()
	return err
}

// WriteLine implements shell.Writer.
func (m *Model) WriteLine(text string) {
	m.lines = append(m.lines, text)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

// Clear implements shell.Clearer.
func (m *Model) Clear() { m.lines = nil }

func (m *Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			return m, m.submit(m.input.Value())
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				return m, m.submit("exit")
			}
			return m, nil
		case tea.KeyCtrlC:
			m.echo(m.input.Value() + "^C")
			m.input.Reset()
			m.refresh()
			return m, nil
		case tea.KeyCtrlL:
			m.Clear()
			m.refresh()
			return m, nil
		case tea.KeyUp, tea.KeyDown:
			if !m.session.Masked() {
				m.recall(msg.Type == tea.KeyUp)
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs one line through the session the way a terminal would: the
// prompt and the typed text are echoed first, masked input is not.
func (m *Model) submit(line string) tea.Cmd {
	if m.session.Masked() {
		m.echo("")
	} else {
		m.echo(line)
	}
	m.input.Reset()
	m.session.Submit(line)

	if m.session.Done() {
		m.quitting = true
		return tea.Quit
	}
	m.syncPrompt()
	m.progress = m.session.Oracle.CalculateProgress(m.session.FS)
	m.refresh()
	return nil
}

func (m *Model) echo(text string) {
	m.WriteLine(m.session.Prompt() + text)
}

// recall walks the session history.
func (m *Model) recall(older bool) {
	h := m.session.History
	step := h.Next
	if older {
		step = h.Prev
	}
	if line, ok := step(); ok {
		m.input.SetValue(line)
		m.input.CursorEnd()
	}
}

func (m *Model) syncPrompt() {
	m.input.Prompt = m.session.Prompt()
	if m.session.Masked() {
		m.input.EchoMode = textinput.EchoNone
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
	if m.width > 0 {
		m.input.Width = max(1, m.width-len(m.input.Prompt)-1)
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	vh := max(1, height-2)
	if !m.ready {
		m.viewport = viewport.New(width, vh)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vh
	}
	m.syncPrompt()
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "\n  Booting dbserver01..."
	}
	status := m.styles.RenderStatus(m.session.Host(), m.progress.Completed, m.progress.Total, m.progress.Percentage, m.width)
	return m.viewport.View() + "\n" + m.input.View() + "\n" + status
}
