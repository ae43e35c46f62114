package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/commands/system"
	"orasim/internal/config"
	"orasim/internal/shell"
	"orasim/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

const (
	testHome   = "/u01/app/oracle/product/19.0.0/dbhome_1"
	testBase   = "/u01/app/oracle"
	oraclePS1  = "[oracle@dbserver01 ~]$ "
	dbcaCreateLine = "dbca -silent -createDatabase -gdbName ORCL -templateName General_Purpose.dbc -sysPassword Welcome1 -systemPassword Welcome1"
)

type capture struct {
	lines []string
}

func (c *capture) WriteLine(text string) { c.lines = append(c.lines, text) }

type harness struct {
	t   *testing.T
	s   *shell.Session
	out *capture
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r := shell.NewRegistry()
	system.Register(r)
	Register(r)
	out := &capture{}
	s := shell.New(shell.Options{
		ID:       "oracle-test",
		Config:   config.DefaultConfig(),
		Store:    store.NewMemoryStore(),
		Registry: r,
		Out:      out,
		Clock:    func() time.Time { return fixedNow },
	})
	return &harness{t: t, s: s, out: out}
}

func (h *harness) run(line string) []string {
	h.t.Helper()
	h.out.lines = nil
	h.s.Submit(line)
	got := h.out.lines
	h.out.lines = nil
	return got
}

// text runs a line and joins its output for substring checks.
func (h *harness) text(line string) string {
	h.t.Helper()
	return strings.Join(h.run(line), "\n")
}

// installed lays down a linked home and logs in as oracle with the
// environment pointing at it.
func installed(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	configurePreinstall(h.s)
	extractHome(h.s, testHome, true)
	h.s.FS.SetOwner("/u01", "oracle", "oinstall", true)
	st := h.s.Oracle
	st.SoftwareInstalled = true
	st.InventoryCreated = true
	st.OrainstRootRun = true
	st.RootShRun = true
	st.Save()
	h.out.lines = nil

	h.run("su - oracle")
	require.Equal(t, "oracle", h.s.Env.User())
	h.s.Env.Export("ORACLE_SID", "ORCL")
	h.s.Env.Export("ORACLE_HOME", testHome)
	h.s.Env.Export("ORACLE_BASE", testBase)
	h.s.Env.Export("PATH", h.s.Env.Value("PATH")+":"+testHome+"/bin")
	return h
}

// created runs dbca on top of installed.
func created(t *testing.T) *harness {
	t.Helper()
	h := installed(t)
	out := h.text(dbcaCreateLine)
	require.Contains(t, out, "100% complete")
	require.True(t, h.s.Oracle.DatabaseCreated)
	require.True(t, h.s.Oracle.IsOpen())
	return h
}

func TestPreinstallPackageIsPerRegistry(t *testing.T) {
	h := newHarness(t)
	_, ok := system.CatalogOf(h.s.Registry).Package(preinstallRPM)
	assert.True(t, ok)

	bare := shell.NewRegistry()
	system.Register(bare)
	_, ok = system.CatalogOf(bare).Package(preinstallRPM)
	assert.False(t, ok)
}

func TestBinaryGate(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"-bash: sqlplus: command not found"}, h.run("sqlplus / as sysdba"))

	extractHome(h.s, testHome, true)
	h.s.Env.Export("PATH", h.s.Env.Value("PATH")+":"+testHome+"/bin")
	want := []string{"sqlplus: error while loading shared libraries: libsqlplus.so: cannot open shared object file: No such file or directory"}
	if diff := cmp.Diff(want, h.run("sqlplus -v")); diff != "" {
		t.Errorf("unlinked sqlplus (-want +got):\n%s", diff)
	}
	assert.Contains(t, h.text("lsnrctl status"), "libclntsh.so.19.1")
}

func TestSQLPlusIdleInstance(t *testing.T) {
	h := installed(t)

	out := h.run("sqlplus / as sysdba")
	require.NotEmpty(t, out)
	assert.Equal(t, "SQL*Plus: Release 19.0.0.0.0 - Production on Thu Mar 14 09:30:00 2024", out[1])
	assert.Contains(t, out, "Connected to an idle instance.")
	assert.Equal(t, "SQL> ", h.s.Prompt())

	assert.Contains(t, h.run("select name from v$database;"), "ORA-01034: ORACLE not available")
	assert.Contains(t, h.run("startup"), "ORA-01078: failure in processing system parameters")

	h.run("exit")
	assert.Equal(t, oraclePS1, h.s.Prompt())
}

func TestCreatedDatabase(t *testing.T) {
	h := created(t)
	assert.True(t, h.s.FS.IsFile(testHome+"/dbs/orapwORCL"))
	assert.Contains(t, h.text("cat /etc/oratab"), "ORCL:"+testHome+":N")

	assert.Contains(t, h.run("sqlplus / as sysdba"), "Connected to:")
	assert.Contains(t, h.run("select name from v$database;"), "ORCL")

	assert.Contains(t, h.text("create user scott identified by tiger;"), "ORA-01920")
	assert.Contains(t, h.run("create user app identified by app_pw;"), "User created.")
	assert.Contains(t, h.text("create user app identified by app_pw;"), "ORA-01920")
	assert.Contains(t, h.text("create role app;"), "ORA-01921")

	down := h.run("shutdown immediate")
	assert.Contains(t, down, "Database closed.")
	assert.Contains(t, down, "ORACLE instance shut down.")
	assert.False(t, h.s.Oracle.DatabaseStarted)

	up := h.run("startup")
	assert.Contains(t, up, "ORACLE instance started.")
	assert.Contains(t, up, "Database opened.")
	assert.True(t, h.s.Oracle.IsOpen())
}

func TestSelectFromDual(t *testing.T) {
	h := created(t)
	h.run("sqlplus / as sysdba")

	assert.Contains(t, h.text("select 1+2*3 from dual;"), "7")
	assert.Contains(t, h.text("select 7/2 total from dual;"), "3.5")

	out := h.text("select 1/0 from dual;")
	assert.Contains(t, out, "ORA-01476: divisor is equal to zero")
	assert.NotContains(t, out, "Inf")

	assert.Contains(t, h.text("select bogus from dual;"), "ORA-00904")
	assert.Equal(t, "SQL> ", h.s.Prompt())
}

func TestHostRmanReturnsToSQLPlus(t *testing.T) {
	h := created(t)
	h.run("sqlplus / as sysdba")

	out := h.text("host rman target /")
	assert.Contains(t, out, "connected to target database: ORCL (DBID=")
	assert.Equal(t, "RMAN> ", h.s.Prompt())

	assert.Contains(t, h.text("list backup;"), "specification does not match any backup in the repository")
	assert.Contains(t, h.run("exit"), "Recovery Manager complete.")
	assert.Equal(t, "SQL> ", h.s.Prompt())
}

func TestListenerAndNetServices(t *testing.T) {
	h := created(t)
	assert.Contains(t, h.text("netca -silent -responseFile "+testHome+"/assistants/netca/netca.rsp"), "The exit code is 0")
	require.True(t, h.s.Oracle.ListenerStarted)

	assert.Contains(t, h.text("lsnrctl status"), "The command completed successfully")
	assert.Contains(t, h.text("tnsping ORCL"), "OK (0 msec)")

	h.run("lsnrctl stop")
	assert.False(t, h.s.Oracle.ListenerStarted)
	assert.Contains(t, h.text("lsnrctl status"), "TNS-12541: TNS:no listener")
	assert.Contains(t, h.text("tnsping ORCL"), "TNS-12541: TNS:no listener")

	assert.Contains(t, h.text("lsnrctl start"), "The command completed successfully")
	assert.Contains(t, h.text("lsnrctl start"), "TNS-01106")
	assert.Contains(t, h.text("tnsping nosuch"), "TNS-03505: Failed to resolve name")

	assert.Contains(t, h.run("sqlplus system/Welcome1@ORCL"), "Connected to:")
	assert.Equal(t, "SQL> ", h.s.Prompt())
}

func TestDataPumpRoundTrip(t *testing.T) {
	h := created(t)
	h.run("sqlplus / as sysdba")
	h.run("create user scott identified by tiger;")
	h.run("grant connect, resource to scott;")
	h.run("exit")
	require.Equal(t, oraclePS1, h.s.Prompt())

	expdp := "expdp system/Welcome1 schemas=scott directory=DATA_PUMP_DIR dumpfile=scott.dmp"
	out := h.text(expdp)
	assert.Contains(t, out, `"SCOTT"."EMP"`)
	assert.Contains(t, out, `Job "SYSTEM"."SYS_EXPORT_SCHEMA_01" successfully completed`)
	dump := testBase + "/admin/ORCL/dpdump/scott.dmp"
	assert.True(t, h.s.FS.IsFile(dump))

	assert.Contains(t, h.text(expdp), "ORA-27038: created file already exists")
	assert.Contains(t, h.text("expdp system/Welcome1 schemas=nobody dumpfile=x.dmp"), "ORA-39170")

	impdp := "impdp system/Welcome1 directory=DATA_PUMP_DIR dumpfile=scott.dmp remap_schema=scott:scott2"
	out = h.text(impdp)
	assert.Contains(t, out, `"SCOTT2"."EMP"`)
	_, ok := h.s.Oracle.User("SCOTT2")
	assert.True(t, ok)

	out = h.text(impdp)
	assert.Contains(t, out, `ORA-31684: Object type USER:"SCOTT2" already exists`)
	assert.Contains(t, out, "completed with 1 error(s)")

	assert.Contains(t, h.text("impdp system/Welcome1 dumpfile=missing.dmp"), "ORA-31640")
	assert.Contains(t, h.text("expdp scott/tiger full=y dumpfile=full.dmp"), "ORA-31631: privileges are required")
}

func TestOrapwd(t *testing.T) {
	h := created(t)
	pwfile := testHome + "/dbs/orapwORCL"
	assert.Contains(t, h.run("orapwd file="+pwfile+" password=Welcome1"), "OPW-00005: File with same name exists - please delete or rename")
	assert.Contains(t, h.text("orapwd file="+pwfile+" password=short force=y"), "OPW-00029")
	assert.Contains(t, h.text("orapwd file=/nowhere/orapwX password=Secret123"), "OPW-00010")

	assert.Empty(t, h.run("orapwd file="+pwfile+" password=NewPass123 force=y"))
	sys, ok := h.s.Oracle.User("SYS")
	require.True(t, ok)
	assert.Equal(t, "NewPass123", sys.Password)
}

func TestPasswordComplexity(t *testing.T) {
	tests := []struct {
		pw   string
		want string
	}{
		{"Ab1", "Password must contain at least 8 characters."},
		{"Abcdefgh", "Password must contain at least 1 digit."},
		{"abcdefg1", "Password must contain at least 1 upper case character."},
		{"ABCDEFG1", "Password must contain at least 1 lower case character."},
		{"Welcome1", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, passwordComplexity(tt.pw), tt.pw)
	}
}

func TestOraenv(t *testing.T) {
	h := created(t)
	h.s.Env.Unset("ORACLE_BASE")
	h.s.Env.Export("ORACLE_HOME", "/opt/old")
	h.s.Env.Export("PATH", "/usr/bin:/opt/old/bin")

	cmdOraenv(h.s, []string{"oraenv"})
	assert.Equal(t, "ORACLE_SID = [ORCL] ? ", h.s.Prompt())
	assert.Contains(t, h.run(""), "The Oracle base has been set to "+testBase)
	assert.Equal(t, testHome, h.s.Env.Value("ORACLE_HOME"))
	assert.Equal(t, "/usr/bin:"+testHome+"/bin", h.s.Env.Value("PATH"))
	assert.Equal(t, testHome+"/lib", h.s.Env.Value("LD_LIBRARY_PATH"))
	assert.True(t, h.s.Oracle.EnvironmentSet)

	h.s.Env.Export("ORAENV_ASK", "NO")
	h.out.lines = nil
	cmdOraenv(h.s, []string{"oraenv"})
	assert.Equal(t, []string{"The Oracle base remains unchanged with value " + testBase}, h.out.lines)
}

func TestAdrciShowHomes(t *testing.T) {
	bare := installed(t)
	assert.Equal(t, []string{"ADR Homes: "}, bare.run(`adrci exec="show homes"`))

	h := created(t)
	want := []string{"ADR Homes: ", "diag/rdbms/orcl/ORCL"}
	if diff := cmp.Diff(want, h.run(`adrci exec="show homes"`)); diff != "" {
		t.Errorf("show homes (-want +got):\n%s", diff)
	}
}

func TestAWRReport(t *testing.T) {
	h := created(t)
	h.run("sqlplus / as sysdba")
	h.run("@?/rdbms/admin/awrrpt.sql")
	assert.Equal(t, "Enter value for report_type: ", h.s.Prompt())
	h.run("text")
	assert.Equal(t, "Enter value for num_days: ", h.s.Prompt())
	h.run("1")
	h.run("101")
	h.run("102")
	assert.Equal(t, "Enter value for report_name: ", h.s.Prompt())
	assert.Contains(t, h.run(""), "Report written to awrrpt_1_101_102.txt")
	assert.True(t, h.s.FS.IsFile("/home/oracle/awrrpt_1_101_102.txt"))
	assert.Equal(t, "SQL> ", h.s.Prompt())

	h.run("@?/rdbms/admin/awrrpt.sql")
	h.run("")
	h.run("")
	out := h.text("5")
	h.run("6")
	assert.Equal(t, oraclePS1, h.s.Prompt(), "a bad snapshot ends SQL*Plus: %s", out)
}

func TestSrvctlWithoutRestart(t *testing.T) {
	h := created(t)
	assert.Equal(t, []string{"srvctl version: 19.0.0.0.0"}, h.run("srvctl -version"))
	want := []string{
		"PRCD-1120 : The resource for database ORCL could not be found.",
		"PRCR-1001 : Resource ora.orcl.db does not exist",
	}
	if diff := cmp.Diff(want, h.run("srvctl status database -db ORCL")); diff != "" {
		t.Errorf("srvctl status (-want +got):\n%s", diff)
	}
}
