package oracle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/store"
)

type mapFiles map[string]string

func (m mapFiles) ReadFile(path string) (string, bool) {
	c, ok := m[path]
	return c, ok
}

var testNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestState(t *testing.T, st store.BlobStore) *State {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	return New(Options{Store: st, Clock: func() time.Time { return testNow }})
}

func sysctlContent() string {
	var b strings.Builder
	for _, p := range RequiredKernelParameters {
		b.WriteString(p.Key + " = " + p.Value + "\n")
	}
	return b.String()
}

func limitsContent() string {
	var b strings.Builder
	for _, l := range RequiredResourceLimits {
		b.WriteString("oracle   " + l.Type + "   " + l.Item + "   " + l.Value + "\n")
	}
	return b.String()
}

func TestBaseline(t *testing.T) {
	s := newTestState(t, nil)
	assert.Equal(t, ModeShutdown, s.DatabaseMode)
	assert.Equal(t, []string{"DBSNMP", "SCOTT", "SYS", "SYSTEM"}, s.UserNames())
	assert.Equal(t, []string{"CONNECT", "DBA", "PUBLIC", "RESOURCE"}, s.RoleNames())
	assert.Equal(t, []string{"SYSTEM", "SYSAUX", "UNDOTBS1", "TEMP", "USERS"}, s.TablespaceNames())
	v, ok := s.Parameter("OPEN_CURSORS")
	require.True(t, ok)
	assert.Equal(t, "300", v)
}

func TestAuthenticatePrecedence(t *testing.T) {
	s := newTestState(t, nil)
	tests := []struct {
		name, user, password string
		want                 error
	}{
		{"unknown user", "nobody", "x", ErrInvalidLogon},
		{"role cannot log on", "CONNECT", "", ErrInvalidLogon},
		{"locked even with right password", "dbsnmp", "dbsnmp", ErrAccountLocked},
		{"locked with wrong password", "dbsnmp", "bad", ErrAccountLocked},
		{"wrong password", "scott", "lion", ErrInvalidLogon},
		{"success is case-insensitive on name", "Scott", "tiger", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Authenticate(tt.user, tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestUserRoleNamespaceExclusive(t *testing.T) {
	s := newTestState(t, nil)

	require.NoError(t, s.CreateUser("foo", "pw"))
	err := s.CreateRole("FOO")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01921")

	require.NoError(t, s.CreateRole("bar"))
	err = s.CreateUser("Bar", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01920")

	err = s.CreateUser("FOO", "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01920")
}

func TestDropUserIsSoft(t *testing.T) {
	s := newTestState(t, nil)
	require.NoError(t, s.CreateUser("app", "pw"))
	require.NoError(t, s.DropUser("APP"))

	rec, ok := s.DatabaseUsers["APP"]
	require.True(t, ok, "record is kept")
	assert.False(t, rec.Created)
	assert.True(t, errors.Is(s.Authenticate("app", "pw"), ErrInvalidLogon))

	err := s.DropUser("app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01918")

	// The name can be reused after a drop.
	require.NoError(t, s.CreateUser("app", "new"))
	assert.NoError(t, s.Authenticate("app", "new"))
}

func TestGrantsAndRoles(t *testing.T) {
	s := newTestState(t, nil)
	require.NoError(t, s.CreateUser("app", "pw"))
	assert.False(t, s.HasPrivilege("app", "CREATE SESSION"))

	require.NoError(t, s.GrantRoleToUser("connect", "app"))
	assert.True(t, s.HasPrivilege("app", "create session"))

	require.NoError(t, s.CreateRole("reporting"))
	require.NoError(t, s.GrantPrivilegeToRole("reporting", "CREATE VIEW"))
	require.NoError(t, s.GrantRoleToUser("reporting", "app"))
	assert.True(t, s.HasPrivilege("app", "CREATE  VIEW"))

	rec, _ := s.Role("REPORTING")
	assert.True(t, rec.GrantedPrivileges.Has("CREATE VIEW"))
	assert.Empty(t, rec.Privileges)

	require.NoError(t, s.DropRole("reporting"))
	assert.False(t, s.HasPrivilege("app", "CREATE VIEW"))
	user, _ := s.User("app")
	assert.False(t, user.GrantedRoles.Has("REPORTING"), "dropped roles are removed from grantees")

	err := s.RevokeRoleFromUser("resource", "app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01951")

	err = s.GrantPrivilege("app", "MAKE COFFEE")
	assert.True(t, errors.Is(err, ErrBadPrivilege))

	err = s.GrantPrivilege("ghost", "CREATE SESSION")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01917")

	require.NoError(t, s.GrantPrivilege("app", "CREATE TABLE"))
	require.NoError(t, s.RevokePrivilege("app", "CREATE TABLE"))
	err = s.RevokePrivilege("app", "CREATE TABLE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01952")

	assert.True(t, s.HasPrivilege("system", "ALTER SYSTEM"), "DBA implies everything")
}

func TestCircularRoleGrant(t *testing.T) {
	s := newTestState(t, nil)
	require.NoError(t, s.CreateRole("a"))
	require.NoError(t, s.CreateRole("b"))
	require.NoError(t, s.GrantRoleToUser("a", "b"))
	assert.True(t, errors.Is(s.GrantRoleToUser("b", "a"), ErrCircularGrant))
	assert.True(t, errors.Is(s.GrantRoleToUser("a", "a"), ErrCircularGrant))
}

func TestCheckPrerequisites(t *testing.T) {
	s := newTestState(t, nil)
	files := mapFiles{"/etc/sysctl.conf": "# empty\n"}

	for _, req := range []string{ReqSoftware, ReqDatabase, ReqListener, ReqRunningDatabase, ReqRunningListener, ReqAllPackages, ReqKernelParameters, ReqResourceLimits} {
		assert.False(t, s.CheckPrerequisites(req, files), req)
	}
	assert.False(t, s.CheckPrerequisites("bogus", files))

	files["/etc/sysctl.conf"] = sysctlContent()
	files["/etc/security/limits.conf"] = limitsContent()
	assert.True(t, s.CheckPrerequisites(ReqKernelParameters, files))
	assert.True(t, s.KernelParametersSet)
	assert.True(t, s.CheckPrerequisites(ReqResourceLimits, files))

	// A manual edit that breaks one value is noticed.
	files["/etc/sysctl.conf"] = strings.Replace(sysctlContent(), "kernel.shmmni = 4096", "kernel.shmmni = 2048", 1)
	assert.False(t, s.CheckPrerequisites(ReqKernelParameters, files))
	assert.False(t, s.KernelParametersSet)
	assert.Equal(t, []string{"kernel.shmmni"}, MissingKernelParameters(files))

	s.DatabaseCreated = true
	assert.False(t, s.CheckPrerequisites(ReqRunningDatabase, files))
	s.SetMode(ModeOpen)
	assert.True(t, s.CheckPrerequisites(ReqRunningDatabase, files))
}

func TestParseSysctl_CollapsesWhitespace(t *testing.T) {
	got := ParseSysctl("kernel.sem =   250\t32000  100 128\n# comment\nbad line\nfs.file-max=6815744\n")
	want := map[string]string{"kernel.sem": "250 32000 100 128", "fs.file-max": "6815744"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseSysctl mismatch (-want +got):\n%s", diff)
	}
}

func TestProgressMonotonic(t *testing.T) {
	s := newTestState(t, nil)
	files := mapFiles{
		"/etc/group":  "root:x:0:\n",
		"/etc/passwd": "root:x:0:0:root:/root:/bin/bash\n",
	}

	p := s.CalculateProgress(files)
	assert.Equal(t, 18, p.Total)
	assert.Equal(t, 0, p.Percentage)
	assert.Equal(t, "groups", s.NextTask(files).ID)

	last := p.Percentage
	step := func(mutate func()) {
		t.Helper()
		mutate()
		p := s.CalculateProgress(files)
		assert.Greater(t, p.Percentage, last)
		last = p.Percentage
	}

	step(func() { files["/etc/group"] += "oinstall:x:1000:\ndba:x:1001:oracle\n" })
	step(func() { files["/etc/passwd"] += "oracle:x:1000:1000::/home/oracle:/bin/bash\n" })
	step(func() {
		for _, pkg := range RequiredPackages {
			s.MarkPackageInstalled(pkg)
		}
	})
	step(func() { files["/etc/sysctl.conf"] = sysctlContent() })
	step(func() { files["/etc/security/limits.conf"] = limitsContent() })
	step(func() { s.FirewallConfigured = true })
	assert.Equal(t, "software", s.NextTask(files).ID)

	step(func() { s.SoftwareInstalled = true })
	step(func() { s.OrainstRootRun, s.RootShRun = true, true })
	step(func() {
		files["/home/oracle/.bash_profile"] = "export ORACLE_HOME=" + s.OracleHome + "\nexport ORACLE_SID=ORCL\n"
	})
	step(func() { s.DatabaseCreated = true })
	step(func() { s.SetMode(ModeOpen) })
	step(func() { s.ListenerConfigured = true })
	step(func() { s.ListenerStarted = true })
	step(func() { files["/etc/oratab"] = s.OratabEntry(true) + "\n" })
	step(func() {
		require.NoError(t, s.CreateTablespace(TablespaceSpec{Name: "sde", Size: "1G"}))
	})
	step(func() {
		require.NoError(t, s.CreateUser("sde", "sde"))
		for _, priv := range GeodatabasePrivileges {
			require.NoError(t, s.GrantPrivilege("sde", priv))
		}
	})
	step(func() {
		files[s.OracleHome+"/hs/admin/extproc.ora"] = "SET EXTPROC_DLLS=ONLY:" + s.OracleHome + "/lib/libst_shapelib.so\n"
	})
	assert.Equal(t, "open_cursors", s.NextTask(files).ID)
	step(func() { s.SetParameter("open_cursors", "4000") })

	final := s.CalculateProgress(files)
	assert.Equal(t, 100, final.Percentage)
	assert.Equal(t, 18, final.Completed)
	assert.Nil(t, s.NextTask(files))
	assert.Contains(t, final.Markdown(), "100%")
}

func TestSDEUserNeedsAllPrivileges(t *testing.T) {
	s := newTestState(t, nil)
	require.NoError(t, s.CreateUser("sde", "sde"))
	require.NoError(t, s.GrantRoleToUser("CONNECT", "sde"))
	require.NoError(t, s.GrantRoleToUser("RESOURCE", "sde"))
	assert.False(t, s.PSApp.SDEUser, "CREATE VIEW is still missing")
	require.NoError(t, s.GrantPrivilege("sde", "CREATE VIEW"))
	assert.True(t, s.PSApp.SDEUser)
}

func TestBackupsAndRestorePoints(t *testing.T) {
	s := newTestState(t, nil)

	b1 := s.AddBackup(BackupFull, -1, false)
	b2 := s.AddBackup(BackupFull, -1, true)
	b3 := s.AddBackup(BackupIncr, 1, false)
	assert.Equal(t, []int{1, 2, 3}, []int{b1.Key, b2.Key, b3.Key})
	assert.Less(t, b2.SizeBytes, b1.SizeBytes, "compressed backups are smaller")
	assert.Less(t, b1.SCN, b3.SCN)
	assert.Equal(t, "TAG20240314T093000", b1.Tag)
	assert.Len(t, s.RMANBackups, 3)

	again := s.AddBackup(BackupFull, -1, false)
	assert.Equal(t, 4, again.Key)

	rp1, err := s.CreateRestorePoint("before_upgrade", true)
	require.NoError(t, err)
	rp2, err := s.CreateRestorePoint("after", false)
	require.NoError(t, err)
	assert.Less(t, rp1.SCN, rp2.SCN)
	assert.Equal(t, "2024-03-14T09:30:00", rp1.Time)
	assert.Equal(t, []string{"BEFORE_UPGRADE", "AFTER"}, s.RestorePointNames())

	_, err = s.CreateRestorePoint("BEFORE_UPGRADE", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-38778")

	require.NoError(t, s.DropRestorePoint("after"))
	err = s.DropRestorePoint("after")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-38780")

	assert.Equal(t, "14-MAR-24 09.30.00.000000000 AM", FormatOracleTime(rp1.Time))
}

func TestTablespaces(t *testing.T) {
	s := newTestState(t, nil)
	require.NoError(t, s.CreateTablespace(TablespaceSpec{Name: "app_data", Datafile: "/u01/app.dbf", Size: "100M"}))
	assert.Equal(t, "APP_DATA", s.TablespaceNames()[5])

	err := s.CreateTablespace(TablespaceSpec{Name: "APP_DATA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01543")

	err = s.DropTablespace("system")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-01550")

	require.NoError(t, s.DropTablespace("app_data"))
	err = s.DropTablespace("app_data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-00959")
}

func TestPersistenceRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestState(t, st)
	require.NoError(t, s.CreateUser("app", "pw"))
	require.NoError(t, s.DropUser("scott"))
	s.SetMode(ModeMounted)
	s.AddBackup(BackupArchivelog, -1, false)

	reloaded := newTestState(t, st)
	assert.Equal(t, ModeMounted, reloaded.DatabaseMode)
	assert.True(t, reloaded.DatabaseStarted)
	_, ok := reloaded.User("APP")
	assert.True(t, ok)
	_, ok = reloaded.User("SCOTT")
	assert.False(t, ok, "soft-deleted user stays dropped")
	assert.Equal(t, 2, reloaded.NextBackupKey)

	reloaded.Reset()
	again := newTestState(t, st)
	assert.Equal(t, ModeShutdown, again.DatabaseMode)
	_, ok = again.User("SCOTT")
	assert.True(t, ok)
}
