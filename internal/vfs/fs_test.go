package vfs

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestFS(t *testing.T, st store.BlobStore) *FS {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	return New(Options{Store: st, Clock: func() time.Time { return fixedNow }, Hostname: "dbserver01"})
}

func TestResolvePath(t *testing.T) {
	fs := newTestFS(t, nil)
	require.True(t, fs.Cd("/etc/security"))

	tests := []struct {
		in   string
		want []string
	}{
		{"/a/b/../c", []string{"a", "c"}},
		{"/a/c", []string{"a", "c"}},
		{"/../..", []string{}},
		{"/", []string{}},
		{"limits.conf", []string{"etc", "security", "limits.conf"}},
		{"../../../../tmp", []string{"tmp"}},
		{"./x/./y//z", []string{"etc", "security", "x", "y", "z"}},
		{"~", []string{"root"}},
		{"~/.bashrc", []string{"root", ".bashrc"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := fs.ResolvePath(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ResolvePath(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestResolvePath_Idempotent(t *testing.T) {
	fs := newTestFS(t, nil)
	for _, p := range []string{"/a/b/../c", "x/../../y", "/../..", ".", "../etc/./passwd", "/u01/app//oracle/"} {
		once := fs.ResolvePath(p)
		twice := fs.ResolvePath(Join(once))
		assert.Equal(t, once, twice, "path %q", p)
	}
}

func TestFileRoundTrip(t *testing.T) {
	fs := newTestFS(t, nil)

	require.True(t, fs.Touch("/tmp/x", "hello"))
	got, ok := fs.ReadFile("/tmp/x")
	require.True(t, ok)
	assert.Equal(t, "hello", got)

	require.True(t, fs.UpdateFile("/tmp/x", "bye"))
	got, _ = fs.ReadFile("/tmp/x")
	assert.Equal(t, "bye", got)

	entries, ok := fs.Ls("/tmp")
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "x", entries[0].Name)
	assert.EqualValues(t, 3, entries[0].Size)

	require.True(t, fs.AppendToFile("/tmp/x", "!"))
	got, _ = fs.ReadFile("/tmp/x")
	assert.Equal(t, "bye!", got)
}

func TestUpdateFile_Failures(t *testing.T) {
	fs := newTestFS(t, nil)
	assert.False(t, fs.UpdateFile("/tmp/missing", "x"))
	assert.False(t, fs.UpdateFile("/tmp", "x"))
	assert.False(t, fs.AppendToFile("/tmp/missing", "x"))
	assert.False(t, fs.Touch("/nope/file", "x"))
	assert.False(t, fs.Touch("/etc/passwd/child", "x"))
	assert.False(t, fs.Touch("/tmp", "x"), "touching a directory path must not replace it")
}

func TestRmGuard(t *testing.T) {
	fs := newTestFS(t, nil)
	require.True(t, fs.Mkdir("/tmp/d"))
	require.True(t, fs.Touch("/tmp/d/f", ""))

	assert.False(t, fs.Rm("/tmp/d", false))
	assert.True(t, fs.Exists("/tmp/d"))

	assert.True(t, fs.Rm("/tmp/d", true))
	assert.False(t, fs.Exists("/tmp/d"))

	assert.False(t, fs.Rm("/tmp/d", true), "removing a missing node fails")
	assert.False(t, fs.Rm("/", true), "root cannot be removed")
}

func TestMkdir_NoIntermediates(t *testing.T) {
	fs := newTestFS(t, nil)
	assert.False(t, fs.Mkdir("/u01/app/oracle"))
	assert.False(t, fs.Exists("/u01/app"))

	require.True(t, fs.MkdirAll("/u01/app/oracle/product"))
	assert.True(t, fs.IsDirectory("/u01/app/oracle/product"))
	assert.False(t, fs.Mkdir("/u01/app"), "existing directory")
}

func TestCd(t *testing.T) {
	fs := newTestFS(t, nil)
	assert.Equal(t, "/root", fs.Cwd())

	require.True(t, fs.Cd("/etc"))
	assert.Equal(t, "/etc", fs.Cwd())
	assert.False(t, fs.Cd("passwd"), "cannot cd into a file")
	assert.False(t, fs.Cd("/nonexistent"))
	assert.Equal(t, "/etc", fs.Cwd())

	require.True(t, fs.Cd("~"))
	assert.Equal(t, "/root", fs.Cwd())
	require.True(t, fs.Cd("../../.."))
	assert.Equal(t, "/", fs.Cwd())
}

func TestRmKeepsCwdValid(t *testing.T) {
	fs := newTestFS(t, nil)
	require.True(t, fs.MkdirAll("/tmp/a/b"))
	require.True(t, fs.Cd("/tmp/a/b"))
	require.True(t, fs.Rm("/tmp/a", true))
	assert.Equal(t, "/tmp", fs.Cwd())
}

func TestLs_InsertionOrder(t *testing.T) {
	fs := newTestFS(t, nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.True(t, fs.Touch("/tmp/"+name, ""))
	}
	entries, ok := fs.Ls("/tmp")
	require.True(t, ok)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)

	_, ok = fs.Ls("/etc/passwd")
	assert.False(t, ok)
}

func TestPersistenceRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	fs := newTestFS(t, st)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.True(t, fs.Touch("/tmp/"+name, name))
	}
	require.True(t, fs.Cd("/tmp"))
	fs.SetUser("oracle")

	reloaded := newTestFS(t, st)
	assert.Equal(t, "/tmp", reloaded.Cwd())
	assert.Equal(t, "oracle", reloaded.User())
	entries, ok := reloaded.Ls("/tmp")
	require.True(t, ok)
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[1].Name)
	got, _ := reloaded.ReadFile("/tmp/mid")
	assert.Equal(t, "mid", got)
}

func TestCorruptBlobFallsBackToDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(store.KeyFilesystem, []byte("{not json")))
	fs := newTestFS(t, st)
	assert.True(t, fs.IsFile("/etc/passwd"))
}

func TestNextIDs(t *testing.T) {
	fs := newTestFS(t, nil)
	assert.Equal(t, 1000, fs.NextUID())
	assert.Equal(t, 1000, fs.NextGID())

	require.True(t, fs.AppendToFile("/etc/group", "oinstall:x:54321:\n"))
	assert.Equal(t, 54322, fs.NextGID())

	// Ids outside [1000,65533] are ignored.
	require.True(t, fs.AppendToFile("/etc/passwd", "big:x:65534:65534::/:/bin/false\n"))
	assert.Equal(t, 1000, fs.NextUID())
}

func TestCopyAndMove(t *testing.T) {
	fs := newTestFS(t, nil)
	require.True(t, fs.Touch("/tmp/a.txt", "data"))
	require.True(t, fs.Mkdir("/tmp/dir"))

	require.True(t, fs.Copy("/tmp/a.txt", "/tmp/dir"))
	got, ok := fs.ReadFile("/tmp/dir/a.txt")
	require.True(t, ok)
	assert.Equal(t, "data", got)

	require.True(t, fs.Move("/tmp/a.txt", "/tmp/b.txt"))
	assert.False(t, fs.Exists("/tmp/a.txt"))
	assert.True(t, fs.IsFile("/tmp/b.txt"))

	assert.False(t, fs.Move("/tmp/dir", "/tmp/dir/inner"), "cannot move a directory into itself")
	assert.False(t, fs.Copy("/tmp/none", "/tmp/x"))
}

func TestMetadataSetters(t *testing.T) {
	fs := newTestFS(t, nil)
	require.True(t, fs.MkdirAll("/u01/app/oracle/oradata"))
	require.True(t, fs.Touch("/u01/app/oracle/oradata/users01.dbf", ""))

	require.True(t, fs.SetOwner("/u01", "oracle", "oinstall", true))
	n := fs.Lookup("/u01/app/oracle/oradata/users01.dbf")
	assert.Equal(t, "oracle", n.Owner)
	assert.Equal(t, "oinstall", n.Group)

	require.True(t, fs.SetPermissions("/u01", "rwxrwxr-x", false))
	assert.Equal(t, "drwxrwxr-x", fs.Lookup("/u01").Permissions)

	require.True(t, fs.SetDatafileGrowth("/u01/app/oracle/oradata/users01.dbf", true, "100M", "UNLIMITED"))
	assert.True(t, n.Autoextend)
	assert.Equal(t, "100M", n.NextSize)
	assert.False(t, fs.SetDatafileGrowth("/u01", true, "1M", "2M"))
}

func TestOwnershipFollowsActingUser(t *testing.T) {
	fs := newTestFS(t, nil)
	require.True(t, fs.AppendToFile("/etc/group", "oinstall:x:1000:\n"))
	require.True(t, fs.AppendToFile("/etc/passwd", "oracle:x:1000:1000::/home/oracle:/bin/bash\n"))
	fs.SetUser("oracle")
	require.True(t, fs.Touch("/tmp/owned", ""))
	n := fs.Lookup("/tmp/owned")
	assert.Equal(t, "oracle", n.Owner)
	assert.Equal(t, "oinstall", n.Group)
	assert.Equal(t, "/home/oracle", fs.HomeOf("oracle"))
}
