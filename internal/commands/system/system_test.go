package system

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/config"
	"orasim/internal/shell"
	"orasim/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

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
	Register(r)
	out := &capture{}
	s := shell.New(shell.Options{
		ID:       "system-test",
		Config:   config.DefaultConfig(),
		Store:    store.NewMemoryStore(),
		Registry: r,
		Out:      out,
		Clock:    func() time.Time { return fixedNow },
	})
	return &harness{t: t, s: s, out: out}
}

// run submits a line and returns everything it printed.
func (h *harness) run(line string) []string {
	h.t.Helper()
	h.out.lines = nil
	h.s.Submit(line)
	got := h.out.lines
	h.out.lines = nil
	return got
}

func (h *harness) one(line string) string {
	h.t.Helper()
	got := h.run(line)
	require.Len(h.t, got, 1, "output of %q: %q", line, got)
	return got[0]
}

func TestOracleAccountSetup(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.run("groupadd oinstall"))
	assert.Empty(t, h.run("groupadd dba"))
	assert.Empty(t, h.run("useradd -g oinstall -G dba oracle"))

	got := h.run("tail -n 2 /etc/group")
	if diff := cmp.Diff([]string{"oinstall:x:1000:", "dba:x:1001:oracle"}, got); diff != "" {
		t.Errorf("/etc/group tail mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "oracle:x:1000:1000::/home/oracle:/bin/bash", h.one("tail -1 /etc/passwd"))
	assert.Equal(t, "uid=1000(oracle) gid=1000(oinstall) groups=1000(oinstall),1001(dba)", h.one("id oracle"))
	assert.Equal(t, "oracle : oinstall dba", h.one("groups oracle"))

	home := h.s.FS.Lookup("/home/oracle")
	require.NotNil(t, home)
	assert.Equal(t, "oracle", home.Owner)
	assert.Equal(t, "oinstall", home.Group)
	assert.Equal(t, "drwx------", home.Permissions)
	assert.True(t, h.s.FS.IsFile("/home/oracle/.bash_profile"))

	assert.Equal(t, []string{"useradd: user 'oracle' already exists"}, h.run("useradd oracle"))
	assert.Equal(t, []string{"groupadd: group 'dba' already exists"}, h.run("groupadd dba"))
	assert.Equal(t, []string{"groupadd: GID '1000' already exists"}, h.run("groupadd -g 1000 other"))
	assert.Equal(t, []string{"useradd: group 'nosuch' does not exist"}, h.run("useradd -g nosuch grid"))
}

func TestUseraddPrivateGroup(t *testing.T) {
	h := newHarness(t)
	h.run("useradd alice")
	assert.Equal(t, "uid=1000(alice) gid=1000(alice) groups=1000(alice)", h.one("id alice"))
	assert.Equal(t, "alice:x:1000:", h.one("grep ^alice /etc/group"))
}

func TestPasswdAndSu(t *testing.T) {
	h := newHarness(t)
	h.run("useradd oracle")

	assert.Equal(t, []string{"Changing password for user oracle."}, h.run("passwd oracle"))
	assert.Equal(t, "New password: ", h.s.Prompt())
	assert.True(t, h.s.Masked())
	assert.Equal(t, []string{"BAD PASSWORD: The password is shorter than 8 characters"}, h.run("short"))
	assert.Equal(t, "Retype new password: ", h.s.Prompt())
	assert.Equal(t, []string{"passwd: all authentication tokens updated successfully."}, h.run("short"))
	assert.Equal(t, hashPassword("short"), shadowField(h.s.FS, "oracle"))
	assert.NotContains(t, h.s.History.Lines(), "short")

	// root switches without a password
	assert.Empty(t, h.run("su - oracle"))
	assert.Equal(t, "oracle", h.one("whoami"))
	assert.Equal(t, "[oracle@dbserver01 ~]$ ", h.s.Prompt())
	assert.Equal(t, "/home/oracle", h.one("pwd"))

	h.run("su -")
	assert.Equal(t, "Password: ", h.s.Prompt())
	assert.Equal(t, []string{"su: Authentication failure"}, h.run("wrong"))
	assert.Equal(t, "oracle", h.one("whoami"))

	h.run("su -")
	h.run("redhat")
	assert.Equal(t, "root", h.one("whoami"))
	assert.Equal(t, []string{"root", "oracle", "root"}, h.s.Env.Users())

	assert.Equal(t, []string{"logout"}, h.run("exit"))
	assert.Equal(t, "oracle", h.one("whoami"))
	assert.Equal(t, []string{"oracle is not in the sudoers file.  This incident will be reported."}, h.run("sudo id"))
	assert.Equal(t, []string{"groupadd: Permission denied."}, h.run("groupadd x"))

	h.run("exit")
	assert.Equal(t, "root", h.one("whoami"))
	assert.False(t, h.s.Done())
	h.run("exit")
	assert.True(t, h.s.Done())
}

func TestTextTools(t *testing.T) {
	h := newHarness(t)
	h.run(`echo -e "b\na\nb\nc" > /tmp/letters`)

	assert.Equal(t, []string{"a", "b", "c"}, h.run("sort -u /tmp/letters"))
	assert.Equal(t, []string{"c", "b", "b", "a"}, h.run("sort -r /tmp/letters"))
	assert.Equal(t, []string{"      1 a", "      2 b", "      1 c"}, h.run("sort /tmp/letters | uniq -c"))
	assert.Equal(t, []string{"b", "a"}, h.run("head -2 /tmp/letters"))
	assert.Equal(t, []string{"b", "c"}, h.run("tail -n 2 /tmp/letters"))
	assert.Equal(t, []string{"a", "b", "c"}, h.run("tail -n +2 /tmp/letters | sort"))
	assert.Equal(t, "4 /tmp/letters", h.one("wc -l /tmp/letters"))
	assert.Equal(t, "4", h.one("cat /tmp/letters | wc -l"))

	assert.Equal(t, "2", h.one("grep -c root /etc/passwd"))
	assert.Equal(t, "1:root:x:0:0:root:/root:/bin/bash", h.one("grep -n ^root /etc/passwd"))
	assert.Equal(t, "4", h.one("grep -v nologin /etc/passwd | wc -l"))
	assert.Equal(t, "SELINUX=enforcing", h.one("grep -E '^SELINUX=(enforcing|permissive)' /etc/selinux/config"))
	assert.Equal(t, "none", h.one("grep zzz /etc/passwd || echo none"))
	assert.Equal(t, []string{"found"}, h.run("grep -q root /etc/passwd && echo found"))
}

func TestHostInfo(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "Thu Mar 14 09:30:00 UTC 2024", h.one("date"))
	assert.Equal(t, "2024-03-14", h.one("date +%Y-%m-%d"))
	assert.Equal(t, "5.14.0-427.13.1.el9_4.x86_64", h.one("uname -r"))
	assert.Equal(t, "Linux", h.one("uname"))
	assert.Equal(t, "dbserver01", h.one("hostname"))
	assert.Equal(t, "root", h.one("whoami"))

	ps := h.run("ps -ef")
	for _, l := range ps {
		assert.NotContains(t, l, "ora_pmon")
	}
	h.s.Oracle.DatabaseStarted = true
	found := false
	for _, l := range h.run("ps -ef") {
		if strings.Contains(l, "ora_pmon_ORCL") {
			found = true
		}
	}
	assert.True(t, found, "pmon should be listed while the instance is up")

	df := h.run("df -h /u01")
	require.Len(t, df, 2)
	assert.Contains(t, df[1], "/dev/mapper/rhel-u01")
}

func TestSysctl(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "fs.aio-max-nr = 65536", h.one("sysctl fs.aio-max-nr"))

	h.run(`echo "fs.aio-max-nr = 1048576" > /etc/sysctl.d/99-test.conf`)
	assert.Equal(t, []string{"fs.aio-max-nr = 1048576"}, h.run("sysctl -p /etc/sysctl.d/99-test.conf"))
	assert.Equal(t, "1048576", h.one("sysctl -n fs.aio-max-nr"))

	got := h.run("sysctl --system")
	assert.Equal(t, []string{
		"* Applying /etc/sysctl.d/99-test.conf ...",
		"fs.aio-max-nr = 1048576",
		"* Applying /etc/sysctl.conf ...",
	}, got)

	assert.Equal(t, []string{"sysctl: cannot stat /proc/sys/no/such: No such file or directory"}, h.run("sysctl no.such"))
}

func TestFirewallAndServices(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "running", h.one("firewall-cmd --state"))
	assert.Equal(t, "success", h.one("firewall-cmd --permanent --add-port=1521/tcp"))
	assert.Equal(t, "", h.one("firewall-cmd --list-ports"))
	assert.False(t, FirewallPortOpen(h.s, "1521/tcp"))

	assert.Equal(t, "success", h.one("firewall-cmd --reload"))
	assert.Equal(t, "1521/tcp", h.one("firewall-cmd --list-ports"))
	assert.True(t, FirewallPortOpen(h.s, "1521/tcp"))

	assert.Equal(t, "active", h.one("systemctl is-active firewalld"))
	assert.Empty(t, h.run("systemctl stop firewalld"))
	assert.Equal(t, "inactive", h.one("systemctl is-active firewalld"))
	assert.Equal(t, []string{"FirewallD is not running"}, h.run("firewall-cmd --list-ports"))
	assert.False(t, FirewallPortOpen(h.s, "1521/tcp"))

	assert.Equal(t, []string{"Unit nosuch.service could not be found."}, h.run("systemctl status nosuch"))
}

func TestSELinux(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "Enforcing", h.one("getenforce"))
	assert.Empty(t, h.run("setenforce 0"))
	assert.Equal(t, "Permissive", h.one("getenforce"))
	assert.Equal(t, "Permissive", SELinuxMode(h.s.FS))
}

func TestCatalogBelongsToRegistry(t *testing.T) {
	h := newHarness(t)
	other := shell.NewRegistry()
	Register(other)

	CatalogOf(h.s.Registry).AddPackage(Package{Name: "site-tools", Version: "1.0-1.el9", Repo: "local", Size: 4096})
	_, ok := CatalogOf(h.s.Registry).Package("site-tools")
	assert.True(t, ok)
	_, ok = CatalogOf(other).Package("site-tools")
	assert.False(t, ok)
	_, ok = CatalogOf(other).Package("bash")
	assert.True(t, ok)

	out := h.run("yum install -y site-tools")
	assert.Equal(t, "Complete!", out[len(out)-1])
	assert.True(t, Installed(h.s, "site-tools"))
}

func TestYumInstall(t *testing.T) {
	h := newHarness(t)
	var hooked []string
	CatalogOf(h.s.Registry).OnInstall(func(_ *shell.Session, name string) { hooked = append(hooked, name) })

	assert.False(t, Installed(h.s, "bc"))
	out := h.run("yum install -y bc")
	assert.Equal(t, "Complete!", out[len(out)-1])
	assert.True(t, Installed(h.s, "bc"))
	assert.Equal(t, "bc-1.07.1-14.el9.x86_64", h.one("rpm -q bc"))
	assert.Equal(t, []string{"bc"}, hooked)

	out = h.run("yum install -y nosuch")
	assert.Contains(t, out, "No match for argument: nosuch")
	assert.True(t, h.s.Failed())

	h.run("yum install zip")
	assert.Equal(t, "Is this ok [y/N]: ", h.s.Prompt())
	h.run("y")
	assert.Equal(t, "zip-3.0-35.el9.x86_64", h.one("rpm -q zip"))

	assert.Equal(t, []string{"package ksh is not installed"}, h.run("rpm -q ksh"))
}

func TestFileCommands(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.run("mkdir -p /u01/app/oracle"))
	assert.Equal(t, []string{"oracle"}, h.run("ls /u01/app"))

	h.run("useradd oracle")
	h.run("chown -R oracle:oracle /u01")
	n := h.s.FS.Lookup("/u01/app/oracle")
	require.NotNil(t, n)
	assert.Equal(t, "oracle", n.Owner)

	h.run("chmod 775 /u01/app")
	assert.Equal(t, "drwxrwxr-x", h.s.FS.Lookup("/u01/app").Permissions)

	h.run("cd /u01/app")
	h.run("cd /tmp")
	assert.Equal(t, "/u01/app", h.one("cd - >/dev/null; pwd"))

	assert.Equal(t, []string{"rm: cannot remove '/nosuch': No such file or directory"}, h.run("rm /nosuch"))
	assert.Equal(t, "/usr/bin/ls", h.one("which ls"))
}

func TestDiff(t *testing.T) {
	h := newHarness(t)
	h.run("echo db_name=ORCL > /tmp/a.ora")
	h.run("echo memory_target=2G >> /tmp/a.ora")
	h.run("cp /tmp/a.ora /tmp/b.ora")
	assert.Equal(t, []string{"same"}, h.run("diff /tmp/a.ora /tmp/b.ora && echo same"))

	h.run("echo sga_target=1G >> /tmp/b.ora")
	assert.Equal(t, []string{"2a3", "> sga_target=1G", "differ"}, h.run("diff /tmp/a.ora /tmp/b.ora || echo differ"))
	assert.Equal(t, []string{"Files /tmp/a.ora and /tmp/b.ora differ"}, h.run("diff -q /tmp/a.ora /tmp/b.ora"))

	unified := h.run("diff -u /tmp/a.ora /tmp/b.ora")
	require.Len(t, unified, 6)
	assert.Equal(t, "@@ -1,2 +1,3 @@", unified[2])
	assert.Equal(t, "+sga_target=1G", unified[5])

	assert.Equal(t, []string{"diff: /nosuch: No such file or directory"}, h.run("diff /nosuch /tmp/a.ora"))
	assert.Equal(t, []string{"diff: /tmp: Is a directory"}, h.run("diff /tmp /tmp/a.ora"))
	assert.Equal(t, "diff: missing operand after '/tmp/a.ora'", h.run("diff /tmp/a.ora")[0])
}
