// Package oracle implements the Oracle Database 19c tool family: the
// installer and configuration assistants, the interactive tools (SQL*Plus,
// RMAN, ADRCI, LSNRCTL) and the smaller utilities. Every tool lives in
// ORACLE_HOME/bin and is gated on the installation state held in the
// session's oracle.State.
package oracle

import (
	"fmt"
	"path"
	"strings"

	"orasim/internal/commands/system"
	"orasim/internal/logging"
	"orasim/internal/modal"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
	"orasim/internal/vfs"
)

const (
	productBanner  = "Oracle Database 19c Enterprise Edition Release 19.0.0.0.0 - Production"
	productVersion = "Version 19.3.0.0.0"
	inventoryDir   = "/u01/app/oraInventory"
	preinstallRPM  = "oracle-database-preinstall-19c"
)

// binaries maps each ORACLE_HOME/bin tool to its handler.
func binaries() map[string]shell.Handler {
	return map[string]shell.Handler{
		"sqlplus": cmdSqlplus,
		"rman":    cmdRman,
		"adrci":   cmdAdrci,
		"lsnrctl": cmdLsnrctl,
		"dbca":    cmdDbca,
		"netca":   cmdNetca,
		"srvctl":  cmdSrvctl,
		"orapwd":  cmdOrapwd,
		"tnsping": cmdTnsping,
		"expdp":   cmdExpdp,
		"impdp":   cmdImpdp,
		"awrrpt":  cmdAwrrpt,
		"addmrpt": cmdAddmrpt,
		"dbstart": cmdDbstart,
		"dbshut":  cmdDbshut,
		"oraenv":  cmdOraenv,
	}
}

// Table returns the Oracle commands, each behind the binary gate.
func Table() shell.Table {
	t := shell.Table{}
	for name, h := range binaries() {
		t[name] = gate(name, h)
	}
	t["runInstaller"] = gate("runInstaller", cmdRunInstaller)
	return t
}

// Register adds the Oracle table, the root scripts and the middleware that
// keeps the installation flags in step with the host configuration.
func Register(r *shell.Registry) {
	r.RegisterTable(Table())
	r.RegisterScript("orainstRoot.sh", cmdOrainstRoot)
	r.RegisterScript("root.sh", cmdRootSh)
	r.RegisterScript("oraenv", cmdOraenv)

	for _, name := range []string{"yum", "dnf", "rpm"} {
		r.Wrap(name, after(syncPackages))
	}
	for _, name := range []string{"firewall-cmd", "systemctl"} {
		r.Wrap(name, after(syncFirewall))
	}
	r.Wrap("setenforce", after(syncSELinux))
	for _, name := range []string{"export", "source", "."} {
		r.Wrap(name, after(syncEnvironment))
	}

	catalog := system.CatalogOf(r)
	catalog.AddPackage(system.Package{
		Name:      preinstallRPM,
		Version:   "1.0-1.el9",
		Repo:      "ol9_appstream",
		Size:      54_272,
		Requires:  ora.RequiredPackages,
		OnInstall: configurePreinstall,
	})
	catalog.AddArchive(vfs.InstallMedia, extractHome)
}

// after runs sync once the wrapped command has finished.
func after(fn func(s *shell.Session)) shell.Middleware {
	return func(next shell.Handler) shell.Handler {
		return func(s *shell.Session, args []string) {
			next(s, args)
			fn(s)
		}
	}
}

// syncPackages marks every required package the host now has.
func syncPackages(s *shell.Session) {
	changed := false
	for _, p := range ora.RequiredPackages {
		if system.Installed(s, p) && !s.Oracle.PackageInstalled(p) {
			s.Oracle.Packages[p] = true
			changed = true
		}
	}
	if changed {
		s.Oracle.Save()
		logging.Oracle("required packages synced, %d missing", len(s.Oracle.MissingPackages()))
	}
}

// syncFirewall records whether clients can reach the listener port.
func syncFirewall(s *shell.Session) {
	port := fmt.Sprintf("%d/tcp", s.Oracle.ListenerPort)
	open := !system.ServiceActive(s, "firewalld") || system.FirewallPortOpen(s, port)
	if open != s.Oracle.FirewallConfigured {
		s.Oracle.FirewallConfigured = open
		s.Oracle.Save()
	}
}

func syncSELinux(s *shell.Session) {
	permissive := system.SELinuxMode(s.FS) != "Enforcing"
	if permissive != s.Oracle.SELinuxPermissive {
		s.Oracle.SELinuxPermissive = permissive
		s.Oracle.Save()
	}
}

// syncEnvironment sets the environment checkpoint once the oracle user's
// shell points at this installation.
func syncEnvironment(s *shell.Session) {
	st := s.Oracle
	if st.EnvironmentSet || s.Env.User() != "oracle" {
		return
	}
	if s.Env.Value("ORACLE_HOME") == st.OracleHome && strings.EqualFold(s.Env.Value("ORACLE_SID"), st.SID) {
		st.EnvironmentSet = true
		st.Save()
		logging.Oracle("oracle environment set for %s", st.SID)
	}
}

// gate enforces what a real shell would: the tool must be found through
// PATH (or named by path) and the home must have been linked by the
// installer before its binaries load.
func gate(name string, h shell.Handler) shell.Handler {
	return func(s *shell.Session, args []string) {
		if !strings.Contains(s.Invoked(), "/") && system.Which(s, name) == "" {
			s.Errorf("-bash: %s: command not found", name)
			return
		}
		if name != "runInstaller" && name != "oraenv" && !s.Oracle.SoftwareInstalled {
			lib := "libclntsh.so.19.1"
			if name == "sqlplus" {
				lib = "libsqlplus.so"
			}
			s.Errorf("%s: error while loading shared libraries: %s: cannot open shared object file: No such file or directory", name, lib)
			return
		}
		h(s, args)
	}
}

// home returns the configured ORACLE_HOME.
func home(s *shell.Session) string { return s.Oracle.OracleHome }

func base(s *shell.Session) string { return s.Oracle.OracleBase }

// oradata is the datafile directory of the database.
func oradata(s *shell.Session) string {
	return base(s) + "/oradata/" + s.Oracle.SID
}

// diagHome is the ADR home of the database instance.
func diagHome(s *shell.Session) string {
	return base(s) + "/diag/rdbms/" + strings.ToLower(s.Oracle.DBName()) + "/" + s.Oracle.SID
}

func alertLog(s *shell.Session) string {
	return diagHome(s) + "/trace/alert_" + s.Oracle.SID + ".log"
}

// alert appends a timestamped message to the instance alert log.
func alert(s *shell.Session, lines ...string) {
	p := alertLog(s)
	if !s.FS.IsFile(p) {
		return
	}
	var b strings.Builder
	b.WriteString(s.Oracle.Now().Format("2006-01-02T15:04:05.000000-07:00"))
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	s.FS.AppendToFile(p, b.String())
}

// osdba reports whether the OS user belongs to the OSDBA group, which is
// what "/ as sysdba" authenticates against.
func osdba(s *shell.Session) bool {
	user := s.Env.User()
	acct, ok := system.LookupAccount(s.FS, user)
	if !ok {
		return false
	}
	dba, ok := system.LookupGroup(s.FS, "dba")
	if !ok {
		return false
	}
	if acct.GID == dba.GID {
		return true
	}
	for _, m := range dba.Members {
		if m == user {
			return true
		}
	}
	return false
}

// localSID reports whether ORACLE_SID names this installation's instance.
func localSID(s *shell.Session) bool {
	return strings.EqualFold(s.Env.Value("ORACLE_SID"), s.Oracle.SID)
}

// instanceUp reports whether a local connection reaches a started instance.
func instanceUp(s *shell.Session) bool {
	return s.Oracle.DatabaseStarted && localSID(s)
}

// keyValues parses Oracle-style arguments: "-name value" pairs, bare
// "-flag" switches and "key=value" words. Keys are lower-cased.
func keyValues(args []string) map[string]string {
	out := map[string]string{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			key := strings.ToLower(strings.TrimLeft(a, "-"))
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				out[key] = args[i+1]
				i++
			} else {
				out[key] = "true"
			}
			continue
		}
		if k, v, ok := strings.Cut(a, "="); ok {
			out[strings.ToLower(k)] = strings.Trim(v, `"'`)
		}
	}
	return out
}

// drive enters an interactive tool. When the command has redirected input
// (a here-document or a pipe) the lines are fed to whatever frame is on top,
// and frames still open at end of input are closed as EOF would close them.
func drive(s *shell.Session, enter func()) {
	depth := s.Modal.Depth()
	enter()
	in, ok := s.Stdin()
	if !ok {
		return
	}
	for _, line := range in {
		top := s.Modal.Top()
		if top == nil || s.Modal.Depth() <= depth {
			break
		}
		top.Handle(line)
	}
	for s.Modal.Depth() > depth {
		s.Modal.Pop()
	}
}

// askLine prompts for one line of input.
func askLine(s *shell.Session, prompt string, fn func(answer string)) {
	modal.Ask(s.Modal, prompt, false, fn)
}

// askSecret prompts without echo and without recording history.
func askSecret(s *shell.Session, prompt string, fn func(answer string)) {
	modal.Ask(s.Modal, prompt, true, fn)
}

// writeFile creates p and its parent directories.
func writeFile(s *shell.Session, p, content string) {
	s.FS.MkdirAll(path.Dir(p))
	s.FS.WriteFile(p, content)
}

// oracleDate renders the DD-MON-RR date Oracle tools print.
func oracleDate(s *shell.Session) string {
	return strings.ToUpper(s.Oracle.Now().Format("02-Jan-06"))
}

// toolBanner is the first block every command-line tool prints.
func toolBanner(s *shell.Session, tool, copyright string) {
	s.Println("")
	s.Printf("%s: Release 19.0.0.0.0 - Production on %s", tool, s.Oracle.Now().Format("Mon Jan 2 15:04:05 2006"))
	s.Println(productVersion)
	s.Println("")
	s.Printf("Copyright (c) %s, 2019, Oracle and/or its affiliates.  All rights reserved.", copyright)
	s.Println("")
}

func printError(s *shell.Session, errs ...*ora.Error) {
	for _, e := range errs {
		s.Println(e.Error())
	}
}
