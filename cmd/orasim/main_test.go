package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/config"
)

// useWorkspace points the global config at a fresh sqlite store.
func useWorkspace(t *testing.T) {
	t.Helper()
	ws := t.TempDir()
	workspace = ws
	configPath = filepath.Join(ws, "config.yaml")
	t.Cleanup(func() {
		workspace = ""
		configPath = ""
		cfg = nil
	})
	require.NoError(t, loadConfig())
	require.Equal(t, ws, cfg.Workspace)
}

func captured() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func TestLoadConfigOverrides(t *testing.T) {
	useWorkspace(t)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.False(t, cfg.Logging.DebugMode)

	storeFlag = "bogus"
	defer func() { storeFlag = "" }()
	err := loadConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestShellPersistsAcrossRuns(t *testing.T) {
	useWorkspace(t)

	var out bytes.Buffer
	require.NoError(t, runShell(strings.NewReader("hostname\ngroupadd oinstall\ngroupadd dba\n"), &out))
	assert.Contains(t, out.String(), "dbserver01")

	out.Reset()
	require.NoError(t, runShell(strings.NewReader("grep dba /etc/group\nexit\n"), &out))
	assert.Contains(t, out.String(), "dba:x:")
	assert.Contains(t, out.String(), "logout")

	cmd, buf := captured()
	progressMarkdown, progressHint = false, false
	require.NoError(t, runProgress(cmd, nil))
	assert.Contains(t, buf.String(), "  [x] Create oinstall and dba groups")
}

func TestProgressMarkdown(t *testing.T) {
	useWorkspace(t)
	progressMarkdown = true
	defer func() { progressMarkdown = false }()

	cmd, buf := captured()
	require.NoError(t, runProgress(cmd, nil))
	assert.Contains(t, buf.String(), "Installation progress")
	assert.Contains(t, buf.String(), "Create the oracle OS user")
}

func TestProgressHint(t *testing.T) {
	useWorkspace(t)
	progressHint = true
	defer func() { progressHint = false }()

	cmd, buf := captured()
	require.NoError(t, runProgress(cmd, nil))
	assert.Contains(t, buf.String(), "Next step: Create oinstall and dba groups")
	assert.Contains(t, buf.String(), "$ groupadd oinstall")
}

func TestReset(t *testing.T) {
	useWorkspace(t)
	var out bytes.Buffer
	require.NoError(t, runShell(strings.NewReader("touch /root/keep.txt\n"), &out))

	cmd, buf := captured()
	require.NoError(t, runReset(cmd, nil))
	assert.Contains(t, buf.String(), "files kept")

	out.Reset()
	require.NoError(t, runShell(strings.NewReader("ls /root\n"), &out))
	assert.Contains(t, out.String(), "keep.txt")

	resetAll = true
	defer func() { resetAll = false }()
	cmd, buf = captured()
	require.NoError(t, runReset(cmd, nil))
	assert.Contains(t, buf.String(), "filesystem")

	out.Reset()
	require.NoError(t, runShell(strings.NewReader("ls /root\n"), &out))
	assert.NotContains(t, out.String(), "keep.txt")
}

func TestVersion(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "orasim dev\n", buf.String())
}
