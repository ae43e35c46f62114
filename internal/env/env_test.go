package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/store"
	"orasim/internal/vfs"
)

func newTestEnv(t *testing.T) (*Context, *vfs.FS) {
	t.Helper()
	fs := vfs.New(vfs.Options{
		Store:    store.NewMemoryStore(),
		Clock:    func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		Hostname: "dbserver01",
	})
	return New(fs), fs
}

func addOracleUser(t *testing.T, fs *vfs.FS, withHome bool) {
	t.Helper()
	require.True(t, fs.AppendToFile("/etc/group", "oinstall:x:1000:\n"))
	require.True(t, fs.AppendToFile("/etc/passwd", "oracle:x:1000:1000::/home/oracle:/bin/bash\n"))
	if withHome {
		require.True(t, fs.Mkdir("/home/oracle"))
		require.True(t, fs.Touch("/home/oracle/.bash_profile",
			"# profile\nexport ORACLE_BASE=/u01/app/oracle\nexport ORACLE_HOME=$ORACLE_BASE/product/19.0.0/dbhome_1\nexport ORACLE_SID=ORCL\nexport PATH=$ORACLE_HOME/bin:$PATH\nalias ll='ls -l'\n"))
	}
}

func TestNew_Baseline(t *testing.T) {
	c, _ := newTestEnv(t)
	assert.Equal(t, "root", c.User())
	assert.Equal(t, "/root", c.Path())
	assert.True(t, c.AtHome())
	assert.Equal(t, 1, c.Depth())
	assert.Equal(t, "/root", c.Value("HOME"))
	assert.Equal(t, "/root", c.Value("PWD"))
}

func TestExpand(t *testing.T) {
	c, _ := newTestEnv(t)
	c.Set("ORACLE_SID", "ORCL")
	assert.Equal(t, "sid=ORCL", c.Expand("sid=$ORACLE_SID"))
	assert.Equal(t, "ORCLx", c.Expand("${ORACLE_SID}x"))
	assert.Equal(t, "", c.Expand("$UNDEFINED"))
	assert.Equal(t, "0", c.Expand("$?"))
	c.SetStatus(127)
	assert.Equal(t, "status 127", c.Expand("status $?"))
	assert.Equal(t, "cost $ 5", c.Expand("cost $ 5"))
}

func TestLoginSwitchSourcesProfile(t *testing.T) {
	c, fs := newTestEnv(t)
	addOracleUser(t, fs, true)

	warning := c.Push("oracle", true)
	assert.Empty(t, warning)
	assert.Equal(t, "oracle", c.User())
	assert.Equal(t, "oracle", fs.User())
	assert.Equal(t, "/home/oracle", c.Path())
	assert.Equal(t, "/u01/app/oracle/product/19.0.0/dbhome_1", c.Value("ORACLE_HOME"))
	assert.Equal(t, "ORCL", c.Value("ORACLE_SID"))
	assert.Contains(t, c.Value("PATH"), "/u01/app/oracle/product/19.0.0/dbhome_1/bin:")
	assert.Equal(t, 2, c.Depth())

	require.True(t, c.Pop())
	assert.Equal(t, "root", c.User())
	assert.Equal(t, "/root", c.Path())
	_, ok := c.Get("ORACLE_HOME")
	assert.False(t, ok, "root environment restored")
}

func TestLoginSwitchMissingHome(t *testing.T) {
	c, fs := newTestEnv(t)
	addOracleUser(t, fs, false)
	require.True(t, fs.Cd("/tmp"))

	warning := c.Push("oracle", true)
	assert.Contains(t, warning, "cannot change directory to /home/oracle")
	assert.Equal(t, "oracle", c.User())
	assert.Equal(t, "/tmp", c.Path())
}

func TestPopNeverEmptiesStack(t *testing.T) {
	c, _ := newTestEnv(t)
	assert.False(t, c.Pop())
	assert.Equal(t, 1, c.Depth())
	assert.Equal(t, "root", c.User())
}

func TestNestedSwitchRestoresEachLevel(t *testing.T) {
	c, fs := newTestEnv(t)
	addOracleUser(t, fs, true)
	require.True(t, fs.Cd("/etc"))

	c.Push("oracle", true)
	require.True(t, fs.Cd("/tmp"))
	c.Push("root", false)
	assert.Equal(t, []string{"root", "oracle", "root"}, c.Users())
	assert.Equal(t, "/tmp", c.Path(), "non-login switch keeps cwd")

	require.True(t, c.Pop())
	assert.Equal(t, "oracle", c.User())
	assert.Equal(t, "/tmp", c.Path())
	require.True(t, c.Pop())
	assert.Equal(t, "/etc", c.Path())
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in          string
		name, value string
		ok          bool
	}{
		{"A=1", "A", "1", true},
		{`ORACLE_SID="ORCL"`, "ORACLE_SID", "ORCL", true},
		{"X='a b'", "X", "a b", true},
		{"EMPTY=", "EMPTY", "", true},
		{"=bad", "", "", false},
		{"1X=bad", "", "", false},
		{"noequals", "", "", false},
	}
	for _, tt := range tests {
		name, value, ok := ParseAssignment(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.value, value, tt.in)
	}
}

func TestEnvironSorted(t *testing.T) {
	c, _ := newTestEnv(t)
	c.Export("AAA", "first")
	env := c.Environ()
	require.NotEmpty(t, env)
	assert.Equal(t, "AAA=first", env[0])
	assert.Contains(t, env, "PWD=/root")
}
