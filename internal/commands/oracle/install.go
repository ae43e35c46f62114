package oracle

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"orasim/internal/commands/system"
	"orasim/internal/logging"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// homeLayout is what the gold image unpacks into ORACLE_HOME.
var homeLayout = []string{
	"bin/", "dbs/", "lib/", "network/admin/", "hs/admin/", "rdbms/admin/",
	"rdbms/log/", "assistants/dbca/templates/", "assistants/netca/",
	"install/response/", "inventory/", "OPatch/",
}

func extractHome(s *shell.Session, dest string, quiet bool) {
	if !quiet {
		s.Printf("Archive:  %s", "/opt/install/LINUX.X64_193000_db_home.zip")
	}
	for _, d := range homeLayout {
		p := dest + "/" + strings.TrimSuffix(d, "/")
		s.FS.MkdirAll(p)
		if !quiet {
			s.Printf("   creating: %s/", p)
		}
	}
	files := map[string]string{
		"runInstaller":                                  "#!/bin/sh\n# Oracle Universal Installer\n",
		"root.sh":                                       "#!/bin/sh\n. " + dest + "/install/utl/rootmacro.sh \"$@\"\n",
		"hs/admin/extproc.ora":                          extprocTemplate,
		"rdbms/admin/awrrpt.sql":                        "Rem awrrpt.sql\nRem This script defaults the dbid and instance number\n",
		"rdbms/admin/addmrpt.sql":                       "Rem addmrpt.sql\nRem Produces an ADDM report for a pair of snapshots\n",
		"assistants/netca/netca.rsp":                    netcaResponse,
		"assistants/dbca/templates/General_Purpose.dbc": "<DatabaseTemplate name=\"General Purpose\" version=\"19.0.0.0.0\"/>\n",
		"assistants/dbca/templates/New_Database.dbt":    "<DatabaseTemplate name=\"New Database\" version=\"19.0.0.0.0\"/>\n",
		"install/response/db_install.rsp":               installResponse,
		"network/admin/samples/listener.ora":            "# listener.ora sample\n",
	}
	for name := range binaries() {
		files["bin/"+name] = "#!/bin/sh\n"
	}
	for _, name := range []string{"tnslsnr", "oracle", "coraenv", "dbhome", "tfactl"} {
		files["bin/"+name] = "#!/bin/sh\n"
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := dest + "/" + name
		writeFile(s, p, files[name])
		if strings.HasPrefix(name, "bin/") || name == "runInstaller" || name == "root.sh" {
			s.FS.SetPermissions(p, "rwxr-xr-x", false)
		}
		if !quiet {
			s.Printf("  inflating: %s", p)
		}
	}
	logging.Oracle("gold image extracted into %s", dest)
}

const extprocTemplate = `#
# extproc.ora is used by extproc in the default Oracle configuration.
#
# This is a sample extproc init file that contains a name-value(s) pair which
# is same as the value of ENVS parameter in listener.ora file.
#
# Syntax: SET name=value (environment variable name and value)
#
# When specifying the EXTPROC_DLLS environment variable to restrict the DLLs
# that extproc is allowed to load, you may set EXTPROC_DLLS to one of the
# following values:
#
# * ONLY (maximum security)
#
#   When EXTPROC_DLLS=ONLY:DLL[:DLL], only the specified DLL(s) can be loaded.
#
#   Syntax: SET EXTPROC_DLLS=ONLY:DLL[:DLL]
#
# * NULL (the default value)
#
#   When EXTPROC_DLLS=, only the DLL(s) in $ORACLE_HOME/bin and $ORACLE_HOME/lib
#   can be loaded.
#
#   Syntax: SET EXTPROC_DLLS=
#
# * ANY
#   When EXTPROC_DLLS=ANY, DLL checking is disabled.
#
#   Syntax: SET EXTPROC_DLLS=ANY
#
#
# To turn extproc tracing on, set TRACE_LEVEL=ON (default is OFF).
#
#   Syntax: TRACE_LEVEL=ON
#
SET EXTPROC_DLLS=
`

const netcaResponse = `[GENERAL]
RESPONSEFILE_VERSION="19.0"
CREATE_TYPE="CUSTOM"
[oracle.net.ca]
INSTALLED_COMPONENTS={"server","net8","javavm"}
INSTALL_TYPE=""typical""
LISTENER_NUMBER=1
LISTENER_NAMES={"LISTENER"}
LISTENER_PROTOCOLS={"TCP;1521"}
LISTENER_START=""LISTENER""
NAMING_METHODS={"TNSNAMES","ONAMES","HOSTNAME"}
NSN_NUMBER=1
NSN_NAMES={"EXTPROC_CONNECTION_DATA"}
NSN_SERVICE={"PLSExtProc"}
NSN_PROTOCOLS={"TCP;HOSTNAME;1521"}
`

const installResponse = `oracle.install.responseFileVersion=/oracle/install/rspfmt_dbinstall_response_schema_v19.0.0
oracle.install.option=
UNIX_GROUP_NAME=
INVENTORY_LOCATION=
ORACLE_BASE=
oracle.install.db.InstallEdition=
oracle.install.db.OSDBA_GROUP=
oracle.install.db.OSOPER_GROUP=
oracle.install.db.OSBACKUPDBA_GROUP=
oracle.install.db.OSDGDBA_GROUP=
oracle.install.db.OSKMDBA_GROUP=
oracle.install.db.OSRACDBA_GROUP=
`

// preinstallGroups are the groups the preinstall RPM creates.
var preinstallGroups = []struct {
	name string
	gid  int
}{
	{"oinstall", 54321}, {"dba", 54322}, {"oper", 54323}, {"backupdba", 54324},
	{"dgdba", 54325}, {"kmdba", 54326}, {"racdba", 54330},
}

const (
	preinstallSysctl = "/etc/sysctl.d/99-oracle-database-preinstall-19c-sysctl.conf"
	preinstallLimits = "/etc/security/limits.d/oracle-database-preinstall-19c.conf"
)

// configurePreinstall does what the RPM's scriptlet does: groups, the
// oracle user, kernel parameters and shell limits.
func configurePreinstall(s *shell.Session) {
	fs := s.FS
	var secondary []string
	for _, g := range preinstallGroups {
		if _, ok := system.LookupGroup(fs, g.name); !ok {
			system.AddGroup(fs, g.name, g.gid)
		}
		if g.name != "oinstall" {
			secondary = append(secondary, g.name)
		}
	}
	if _, ok := system.LookupAccount(fs, "oracle"); ok {
		system.SetSupplementary(fs, "oracle", secondary, true)
	} else {
		system.AddUser(fs, system.UserSpec{Name: "oracle", UID: 54321, Group: "oinstall", Supplementary: secondary})
	}

	var b strings.Builder
	b.WriteString("# oracle-database-preinstall-19c setting for kernel parameters\n")
	for _, p := range ora.RequiredKernelParameters {
		fmt.Fprintf(&b, "%s = %s\n", p.Key, p.Value)
	}
	writeFile(s, preinstallSysctl, b.String())

	b.Reset()
	b.WriteString("# oracle-database-preinstall-19c setting for shell limits\n")
	for _, l := range ora.RequiredResourceLimits {
		fmt.Fprintf(&b, "oracle   %s   %s    %s\n", l.Type, l.Item, l.Value)
	}
	writeFile(s, preinstallLimits, b.String())

	s.Run([]string{"sysctl", "-q", "-p", preinstallSysctl})
	logging.Oracle("preinstall configuration applied")
}

func cmdRunInstaller(s *shell.Session, args []string) {
	st := s.Oracle
	if s.Env.User() == "root" {
		s.Error("The user is root. Oracle Universal Installer cannot continue installation if the user is root.")
		return
	}
	opts := keyValues(args[1:])
	if opts["silent"] == "" {
		s.Error("ERROR: Unable to verify the graphical display setup. This application requires X display. Make sure that xdpyinfo exist under PATH variable.")
		s.Error("No X11 DISPLAY variable was set, but this program performed an operation which requires it.")
		return
	}
	invoked := s.Invoked()
	if !strings.Contains(invoked, "/") {
		invoked = system.Which(s, invoked)
	}
	where := path.Dir(s.FS.Abs(invoked))
	if where != st.OracleHome {
		s.Printf("Launching Oracle Database Setup Wizard...")
		s.Println("")
		s.Errorf("[FATAL] [INS-35072] The gold image location %s does not match the Oracle home %s.", where, st.OracleHome)
		s.Error("   CAUSE: The installer must be run from the Oracle home it was unzipped into.")
		return
	}
	if rsp := opts["responsefile"]; rsp != "" {
		content, ok := s.FS.ReadFile(rsp)
		if !ok {
			s.Errorf("[FATAL] [INS-10101] The given response file %s is not found.", rsp)
			return
		}
		for _, line := range shell.SplitLines(content) {
			if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok && v != "" && !strings.HasPrefix(k, "#") {
				if _, set := opts[strings.ToLower(k)]; !set {
					opts[strings.ToLower(k)] = v
				}
			}
		}
	}
	option := opts["oracle.install.option"]
	if option == "" {
		option = "INSTALL_DB_SWONLY"
	}
	if option != "INSTALL_DB_SWONLY" && option != "INSTALL_DB_AND_CONFIG" {
		s.Errorf("[FATAL] [INS-10105] The given response file is not valid.")
		s.Errorf("   CAUSE: The value %q of oracle.install.option is not supported.", option)
		return
	}

	s.Println("Launching Oracle Database Setup Wizard...")
	s.Println("")
	if st.SoftwareInstalled {
		s.Error("[FATAL] [INS-32025] The chosen installation conflicts with software already installed in the given Oracle home.")
		s.Error("   ACTION: Install into a different Oracle home.")
		return
	}
	group := opts["unix_group_name"]
	if group == "" {
		group = "oinstall"
	}
	if _, ok := system.LookupGroup(s.FS, group); !ok {
		s.Errorf("[FATAL] [INS-32268] The inventory group %s does not exist on this system.", group)
		return
	}
	missing := len(st.MissingPackages()) + len(ora.MissingKernelParameters(s.FS)) + len(ora.MissingResourceLimits(s.FS))
	if missing > 0 {
		if opts["ignoreprereqfailure"] == "" {
			s.Error("[FATAL] [INS-13013] Target environment does not meet some mandatory requirements.")
			s.Error("   CAUSE: Some of the mandatory prerequisites are not met. See logs for details. /tmp/InstallActions" + stamp(s) + "/installActions" + stamp(s) + ".log")
			s.Error("   ACTION: Identify the list of failed prerequisite checks from the log: installActions" + stamp(s) + ".log. Then either from the log file or from installation manual find the appropriate configuration to meet the prerequisites and fix it manually.")
			return
		}
		s.Println("[WARNING] [INS-13014] Target environment does not meet some optional requirements.")
		s.Println("   CAUSE: Some of the optional prerequisites are not met. See logs for details. installActions" + stamp(s) + ".log")
		s.Println("   ACTION: Identify the list of failed prerequisite checks from the log: installActions" + stamp(s) + ".log. Then either from the log file or from installation manual find the appropriate configuration to meet the prerequisites and fix it manually.")
	}
	inventory := opts["inventory_location"]
	if inventory == "" {
		inventory = inventoryDir
	}

	s.FS.MkdirAll(inventory + "/ContentsXML")
	s.FS.MkdirAll(inventory + "/logs")
	writeFile(s, inventory+"/orainstRoot.sh", "#!/bin/sh\nAWK=/bin/awk\nCHMOD=/bin/chmod\nCHGRP=/bin/chgrp\n")
	s.FS.SetPermissions(inventory+"/orainstRoot.sh", "rwxrwx---", false)
	writeFile(s, inventory+"/oraInst.loc", "inventory_loc="+inventory+"\ninst_group="+group+"\n")
	writeFile(s, inventory+"/ContentsXML/inventory.xml", fmt.Sprintf(
		"<?xml version=\"1.0\" standalone=\"yes\" ?>\n<INVENTORY>\n<HOME_LIST>\n<HOME NAME=\"OraDB19Home1\" LOC=\"%s\" TYPE=\"O\" IDX=\"1\"/>\n</HOME_LIST>\n</INVENTORY>\n",
		st.OracleHome))
	for _, d := range []string{"/admin", "/audit", "/cfgtoollogs", "/diag", "/oradata", "/fast_recovery_area"} {
		s.FS.MkdirAll(st.OracleBase + d)
	}
	st.SoftwareInstalled = true
	st.InventoryCreated = true
	st.Save()
	logging.Oracle("software installed into %s", st.OracleHome)

	host := s.Host()
	s.Printf("The response file for this session can be found at:")
	s.Printf(" %s/install/response/db_%s.rsp", st.OracleHome, s.Oracle.Now().Format("2006-01-02_03-04-05PM"))
	s.Println("")
	s.Println("You can find the log of this install session at:")
	s.Printf(" /tmp/InstallActions%s/installActions%s.log", stamp(s), stamp(s))
	s.Println("")
	s.Println("As a root user, execute the following script(s):")
	s.Printf("\t1. %s/orainstRoot.sh", inventory)
	s.Printf("\t2. %s/root.sh", st.OracleHome)
	s.Println("")
	s.Printf("Execute %s/orainstRoot.sh on the following nodes: ", inventory)
	s.Printf("[%s]", host)
	s.Printf("Execute %s/root.sh on the following nodes: ", st.OracleHome)
	s.Printf("[%s]", host)
	s.Println("")
	s.Println("")
	if missing > 0 {
		s.Println("Successfully Setup Software with warning(s).")
	} else {
		s.Println("Successfully Setup Software.")
	}
	s.Println("Moved the install session logs to:")
	s.Printf(" %s/logs/InstallActions%s", inventory, stamp(s))
}

func stamp(s *shell.Session) string {
	return s.Oracle.Now().Format("2006-01-02_03-04-05PM")
}

func cmdOrainstRoot(s *shell.Session, args []string) {
	if s.Env.User() != "root" {
		s.Errorf("%s: line 8: /bin/chmod: Operation not permitted", args[0])
		s.Error("This script must be run as root.")
		return
	}
	st := s.Oracle
	loc, _ := s.FS.ReadFile(inventoryDir + "/oraInst.loc")
	group := "oinstall"
	for _, line := range shell.SplitLines(loc) {
		if v, ok := strings.CutPrefix(line, "inst_group="); ok {
			group = v
		}
	}
	s.Printf("Changing permissions of %s.", inventoryDir)
	s.Println("Adding read,write permissions for group.")
	s.Println("Removing read,write,execute permissions for world.")
	s.Println("")
	s.Printf("Changing groupname of %s to %s.", inventoryDir, group)
	s.Println("The execution of the script is complete.")
	s.FS.SetPermissions(inventoryDir, "rwxrwx---", true)
	s.FS.SetOwner(inventoryDir, "", group, true)
	s.FS.WriteFile("/etc/oraInst.loc", loc)
	st.OrainstRootRun = true
	st.Save()
}

func cmdRootSh(s *shell.Session, args []string) {
	st := s.Oracle
	if s.Env.User() != "root" {
		s.Errorf("%s: line 4: /etc/oratab: Permission denied", args[0])
		s.Error("You must be logged in as root to run root.sh.")
		return
	}
	if !st.SoftwareInstalled {
		s.Error("The Oracle home has not been installed yet. Run runInstaller as the software owner first.")
		return
	}
	owner := "oracle"
	if n := s.FS.Lookup(st.OracleHome); n != nil && n.Owner != "" && n.Owner != "root" {
		owner = n.Owner
	}
	s.Println("Performing root user operation.")
	s.Println("")
	s.Println("The following environment variables are set as:")
	s.Printf("    ORACLE_OWNER= %s", owner)
	s.Printf("    ORACLE_HOME=  %s", st.OracleHome)
	s.Println("")
	askLine(s, "Enter the full pathname of the local bin directory: [/usr/local/bin]: ", func(answer string) {
		bin := strings.TrimSpace(answer)
		if bin == "" {
			bin = "/usr/local/bin"
		}
		s.FS.MkdirAll(bin)
		for _, f := range []string{"dbhome", "oraenv", "coraenv"} {
			s.Printf("   Copying %s to %s ...", f, bin)
			writeFile(s, bin+"/"+f, "#!/bin/sh\n# "+f+" for "+st.OracleHome+"\n")
			s.FS.SetPermissions(bin+"/"+f, "rwxr-xr-x", false)
		}
		s.Println("")
		s.Println("")
		if !s.FS.IsFile("/etc/oratab") {
			s.Println("Creating /etc/oratab file...")
			s.FS.Touch("/etc/oratab", oratabHeader)
			s.FS.SetOwner("/etc/oratab", owner, "oinstall", false)
			s.FS.SetPermissions("/etc/oratab", "rw-rw-r--", false)
		}
		s.Println("Entries will be added to the /etc/oratab file as needed by")
		s.Println("Database Configuration Assistant when a database is created")
		s.Println("Finished running generic part of root script.")
		s.Println("Now product-specific root actions will be performed.")
		s.Printf("Oracle Trace File Analyzer (TFA) is available at : %s/bin/tfactl ", st.OracleHome)
		st.RootShRun = true
		st.Save()
		logging.Oracle("root.sh complete")
	})
}

const oratabHeader = `#



# This file is used by ORACLE utilities.  It is created by root.sh
# and updated by either Database Configuration Assistant while creating
# a database or ASM Configuration Assistant while creating ASM instance.

# A colon, ':', is used as the field terminator.  A new line terminates
# the entry.  Lines beginning with a pound sign, '#', are comments.
#
# Entries are of the form:
#   $ORACLE_SID:$ORACLE_HOME:<N|Y>:
#
# The first and second fields are the system identifier and home
# directory of the database respectively.  The third field indicates
# to the dbstart utility that the database should , "Y", or should not,
# "N", be brought up at system boot time.
#
# Multiple entries with the same $ORACLE_SID are not allowed.
#
#
`

// strongPassword follows the DBCA recommendation: eight characters with an
// upper case letter, a lower case letter and a digit.
func strongPassword(pw string) bool {
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return len(pw) >= 8 && upper && lower && digit
}

func cmdDbca(s *shell.Session, args []string) {
	opts := keyValues(args[1:])
	if opts["silent"] == "" {
		s.Error("ERROR: Unable to verify the graphical display setup. This application requires X display. Make sure that xdpyinfo exist under PATH variable.")
		return
	}
	if s.Env.User() == "root" {
		s.Error("[FATAL] [DBT-06002] The Oracle Home user (root) is not the owner of the Oracle home.")
		return
	}
	switch {
	case opts["createdatabase"] != "":
		dbcaCreate(s, opts)
	case opts["deletedatabase"] != "":
		dbcaDelete(s, opts)
	default:
		s.Error("[FATAL] [DBT-05509] Operation type not specified. Specify -createDatabase or -deleteDatabase.")
	}
}

func dbcaCreate(s *shell.Session, opts map[string]string) {
	st := s.Oracle
	gdb := opts["gdbname"]
	if gdb == "" {
		s.Error("[FATAL] [DBT-10502] The value of the global database name (-gdbName) is not specified.")
		return
	}
	name := strings.ToUpper(strings.SplitN(gdb, ".", 2)[0])
	sid := strings.ToUpper(opts["sid"])
	if sid == "" {
		sid = name
	}
	if sid != strings.ToUpper(st.SID) {
		s.Errorf("[FATAL] [DBT-11211] The SID %s differs from the instance this host is prepared for (%s).", sid, st.SID)
		return
	}
	if st.DatabaseCreated {
		s.Errorf("[FATAL] [DBT-10317] Specified SID Name (%s) already exists.", sid)
		return
	}
	tmpl := opts["templatename"]
	if tmpl == "" {
		s.Error("[FATAL] [DBT-10503] Template file is not specified.")
		return
	}
	if !strings.Contains(tmpl, "/") {
		tmpl = st.OracleHome + "/assistants/dbca/templates/" + tmpl
	}
	if !s.FS.IsFile(tmpl) {
		s.Errorf("[FATAL] [DBT-10501] The template file (%s) specified does not exist.", tmpl)
		return
	}
	sysPw, systemPw := opts["syspassword"], opts["systempassword"]
	if sysPw == "" || systemPw == "" {
		s.Error("[FATAL] [DBT-06208] The 'SYS' and 'SYSTEM' passwords must be specified in silent mode.")
		return
	}
	if !strongPassword(sysPw) {
		s.Println("[WARNING] [DBT-06208] The 'SYS' password entered does not conform to the Oracle recommended standards.")
	}
	if !strongPassword(systemPw) {
		s.Println("[WARNING] [DBT-06208] The 'SYSTEM' password entered does not conform to the Oracle recommended standards.")
	}

	st.DatabaseName = name
	st.DatabaseCreated = true
	if err := st.AlterPassword("SYS", sysPw); err != nil {
		logging.Get(logging.CategoryOracle).Warn("dbca: %v", err)
	}
	if err := st.AlterPassword("SYSTEM", systemPw); err != nil {
		logging.Get(logging.CategoryOracle).Warn("dbca: %v", err)
	}
	createDatabaseFiles(s)
	st.SetMode(ora.ModeOpen)
	logging.Oracle("database %s created", name)

	for _, step := range []string{
		"Prepare for db operation", "8% complete", "Copying database files", "31% complete",
		"Creating and starting Oracle instance", "32% complete", "36% complete", "40% complete",
		"43% complete", "46% complete", "Completing Database Creation", "51% complete",
		"53% complete", "54% complete", "Executing Post Configuration Actions", "100% complete",
	} {
		s.Println(step)
	}
	logDir := st.OracleBase + "/cfgtoollogs/dbca/" + name
	s.Println("Database creation complete. For details check the logfiles at:")
	s.Printf(" %s.", logDir)
	s.Println("Database Information:")
	s.Printf("Global Database Name:%s", gdb)
	s.Printf("System Identifier(SID):%s", sid)
	s.Printf("Look at the log file %q for further details.", logDir+"/"+name+".log")
}

// createDatabaseFiles lays out everything a new database owns on disk.
func createDatabaseFiles(s *shell.Session) {
	st := s.Oracle
	sid := st.SID
	data := oradata(s)
	s.FS.MkdirAll(data)
	for _, name := range st.TablespaceNames() {
		ts, _ := st.Tablespace(name)
		writeFile(s, ts.Datafile, "")
		s.FS.SetSize(ts.Datafile, sizeBytes(ts.Size))
		s.FS.SetDatafileGrowth(ts.Datafile, ts.Autoextend, "10M", "UNLIMITED")
	}
	writeFile(s, data+"/control01.ctl", "")
	s.FS.SetSize(data+"/control01.ctl", 10_600_448)
	for i := 1; i <= 3; i++ {
		p := fmt.Sprintf("%s/redo%02d.log", data, i)
		writeFile(s, p, "")
		s.FS.SetSize(p, 209_715_712)
	}
	fra := st.OracleBase + "/fast_recovery_area/" + strings.ToUpper(st.DBName())
	writeFile(s, fra+"/control02.ctl", "")
	s.FS.MkdirAll(st.OracleBase + "/admin/" + sid + "/adump")
	s.FS.MkdirAll(st.OracleBase + "/admin/" + sid + "/dpdump")
	s.FS.MkdirAll(st.OracleBase + "/admin/" + sid + "/pfile")
	writeFile(s, st.OracleHome+"/dbs/spfile"+sid+".ora", "")
	writeFile(s, st.OracleHome+"/dbs/orapw"+sid, "")
	writeFile(s, alertLog(s), "")
	alert(s, "Starting ORACLE instance (normal) (OS id: 4242)", "Database "+st.DBName()+" created.")
	s.FS.MkdirAll(diagHome(s) + "/incident")
	logDir := st.OracleBase + "/cfgtoollogs/dbca/" + st.DBName()
	writeFile(s, logDir+"/"+st.DBName()+".log", "[ 1] Database creation complete.\n")

	entry := st.OratabEntry(false)
	if content, ok := s.FS.ReadFile("/etc/oratab"); !ok || !hasOratabEntry(content, sid) {
		if ok {
			s.FS.AppendToFile("/etc/oratab", entry+"\n")
		} else {
			s.FS.Touch("/etc/oratab", entry+"\n")
		}
	}
	tns := st.OracleHome + "/network/admin/tnsnames.ora"
	if _, ok := tnsAlias(s, st.DBName()); !ok {
		content, _ := s.FS.ReadFile(tns)
		if content == "" {
			content = "# tnsnames.ora Network Configuration File: " + tns + "\n# Generated by Oracle configuration tools.\n\n"
		}
		writeFile(s, tns, content+tnsEntry(s, st.DBName()))
	}
}

func hasOratabEntry(content, sid string) bool {
	for _, line := range shell.SplitLines(content) {
		if strings.HasPrefix(strings.TrimSpace(line), sid+":") {
			return true
		}
	}
	return false
}

func dbcaDelete(s *shell.Session, opts map[string]string) {
	st := s.Oracle
	src := strings.ToUpper(opts["sourcedb"])
	if src == "" {
		s.Error("[FATAL] [DBT-11003] The value of -sourceDB is not specified.")
		return
	}
	if !st.DatabaseCreated || src != st.DBName() {
		s.Errorf("[FATAL] [DBT-11503] The instance (%s) is not running on the local node. This may result in partial delete of Oracle database.", src)
		return
	}
	for _, step := range []string{"[WARNING] [DBT-19202] The Database Configuration Assistant will delete the Oracle instances and datafiles for your database. All information in the database will be destroyed.",
		"Prepare for db operation", "32% complete", "Connecting to database", "35% complete",
		"39% complete", "42% complete", "45% complete", "48% complete", "52% complete",
		"65% complete", "Updating network configuration files", "68% complete",
		"Deleting instance and datafiles", "84% complete", "100% complete",
		"Database deletion completed."} {
		s.Println(step)
	}
	s.Printf("Look at the log file %q for further details.", st.OracleBase+"/cfgtoollogs/dbca/"+src+"/"+src+"0.log")
	s.FS.Rm(oradata(s), true)
	s.FS.Rm(st.OracleHome+"/dbs/spfile"+st.SID+".ora", false)
	if content, ok := s.FS.ReadFile("/etc/oratab"); ok {
		var kept []string
		for _, line := range shell.SplitLines(content) {
			if !strings.HasPrefix(strings.TrimSpace(line), st.SID+":") {
				kept = append(kept, line)
			}
		}
		s.FS.WriteFile("/etc/oratab", strings.Join(kept, "\n")+"\n")
	}
	st.DatabaseCreated = false
	st.OratabValidated = false
	st.SetMode(ora.ModeShutdown)
	logging.Oracle("database %s deleted", src)
}

var rePortSpec = regexp.MustCompile(`"TCP;(\d+)"`)

func cmdNetca(s *shell.Session, args []string) {
	st := s.Oracle
	opts := keyValues(args[1:])
	if opts["silent"] == "" {
		s.Error("ERROR: Unable to verify the graphical display setup. This application requires X display. Make sure that xdpyinfo exist under PATH variable.")
		return
	}
	s.Println("")
	s.Println("Parsing command line arguments:")
	s.Println(`    Parameter "silent" = true`)
	rsp := opts["responsefile"]
	if rsp == "" {
		s.Println("Done parsing command line arguments.")
		s.Error("Error: Response file is not specified.")
		return
	}
	s.Printf(`    Parameter "responsefile" = %s`, s.FS.Abs(rsp))
	s.Println("Done parsing command line arguments.")
	content, ok := s.FS.ReadFile(rsp)
	if !ok {
		s.Errorf("Error: response file %s does not exist.", rsp)
		return
	}
	port := st.ListenerPort
	if m := rePortSpec.FindStringSubmatch(content); m != nil {
		port, _ = strconv.Atoi(m[1])
	}
	s.Println("Oracle Net Services Configuration:")
	s.Println("Profile configuration complete.")
	if st.ListenerConfigured {
		s.Println("Listener \"LISTENER\" already exists.")
		s.Println("Oracle Net Services configuration failed.  The exit code is 1")
		s.Fail()
		return
	}
	host := s.FS.Hostname()
	admin := st.OracleHome + "/network/admin"
	writeFile(s, admin+"/listener.ora", fmt.Sprintf(`# listener.ora Network Configuration File: %s/listener.ora
# Generated by Oracle configuration tools.

LISTENER =
  (DESCRIPTION_LIST =
    (DESCRIPTION =
      (ADDRESS = (PROTOCOL = TCP)(HOST = %s)(PORT = %d))
      (ADDRESS = (PROTOCOL = IPC)(KEY = EXTPROC%d))
    )
  )

`, admin, host, port, port))
	writeFile(s, admin+"/sqlnet.ora", fmt.Sprintf(`# sqlnet.ora Network Configuration File: %s/sqlnet.ora
# Generated by Oracle configuration tools.

NAMES.DIRECTORY_PATH= (TNSNAMES, EZCONNECT)

`, admin))
	s.FS.MkdirAll(listenerHome(s) + "/alert")
	st.ListenerConfigured = true
	st.ListenerPort = port
	st.ListenerStarted = true
	st.Save()
	logging.Oracle("listener configured on port %d", port)

	s.Println("Oracle Net Listener Startup:")
	s.Println("    Running Listener Control: ")
	s.Printf("      %s/bin/lsnrctl start LISTENER", st.OracleHome)
	s.Println("    Listener Control complete.")
	s.Println("    Listener started successfully.")
	s.Println("Listener configuration complete.")
	s.Println("Oracle Net Services configuration successful. The exit code is 0")
}

// sizeBytes parses Oracle size literals such as 500M or 1G.
func sizeBytes(size string) int64 {
	size = strings.ToUpper(strings.TrimSpace(size))
	if size == "" {
		return 0
	}
	mult := int64(1)
	switch size[len(size)-1] {
	case 'K':
		mult = 1 << 10
	case 'M':
		mult = 1 << 20
	case 'G':
		mult = 1 << 30
	case 'T':
		mult = 1 << 40
	}
	if mult > 1 {
		size = size[:len(size)-1]
	}
	n, _ := strconv.ParseInt(size, 10, 64)
	return n * mult
}
