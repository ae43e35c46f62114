package oracle

import (
	"fmt"
	"math"
	"strings"

	"orasim/internal/logging"
	"orasim/internal/metrics"
)

// Task is one checkpoint and whether it is complete.
type Task struct {
	ID    string
	Label string
	Done  bool
}

// Progress is the evaluated checkpoint list.
type Progress struct {
	Tasks      []Task
	Completed  int
	Total      int
	Percentage int
}

// Hint tells the learner what to do next.
type Hint struct {
	ID          string
	Label       string
	Description string
	Commands    []string
}

type checkpoint struct {
	id          string
	label       string
	description string
	commands    func(s *State) []string
	done        func(s *State, src FileSource) bool
}

// checkpoints are evaluated in this fixed order; NextTask returns the first
// incomplete one.
var checkpoints = []checkpoint{
	{
		id:          "groups",
		label:       "Create oinstall and dba groups",
		description: "Oracle software is owned by the oinstall group; OSDBA is the dba group.",
		commands:    fixed("groupadd oinstall", "groupadd dba"),
		done: func(_ *State, src FileSource) bool {
			return hasEntry(src, "/etc/group", "oinstall") && hasEntry(src, "/etc/group", "dba")
		},
	},
	{
		id:          "oracle_user",
		label:       "Create the oracle OS user",
		description: "The software owner needs oinstall as primary group and dba as secondary group.",
		commands:    fixed("useradd -g oinstall -G dba oracle", "passwd oracle"),
		done: func(_ *State, src FileSource) bool {
			return hasEntry(src, "/etc/passwd", "oracle")
		},
	},
	{
		id:          "packages",
		label:       "Install required packages",
		description: "The preinstall RPM pulls every dependency and configures the host.",
		commands:    fixed("dnf install -y oracle-database-preinstall-19c"),
		done: func(s *State, src FileSource) bool {
			return s.CheckPrerequisites(ReqAllPackages, src)
		},
	},
	{
		id:          "kernel",
		label:       "Configure kernel parameters",
		description: "Add the Oracle sysctl settings and load them.",
		commands: func(*State) []string {
			cmds := []string{"vi /etc/sysctl.conf"}
			for _, p := range RequiredKernelParameters {
				cmds = append(cmds, "  "+p.Key+" = "+p.Value)
			}
			return append(cmds, "sysctl -p")
		},
		done: func(s *State, src FileSource) bool {
			return s.CheckPrerequisites(ReqKernelParameters, src)
		},
	},
	{
		id:          "limits",
		label:       "Configure resource limits",
		description: "Raise shell limits for the oracle user.",
		commands: func(*State) []string {
			cmds := []string{"vi /etc/security/limits.conf"}
			for _, l := range RequiredResourceLimits {
				cmds = append(cmds, "  oracle "+l.Type+" "+l.Item+" "+l.Value)
			}
			return cmds
		},
		done: func(s *State, src FileSource) bool {
			return s.CheckPrerequisites(ReqResourceLimits, src)
		},
	},
	{
		id:          "firewall",
		label:       "Open the listener port in the firewall",
		description: "Clients reach the listener over TCP.",
		commands: func(s *State) []string {
			return []string{
				fmt.Sprintf("firewall-cmd --permanent --add-port=%d/tcp", s.listenerPort()),
				"firewall-cmd --reload",
			}
		},
		done: func(s *State, _ FileSource) bool { return s.FirewallConfigured },
	},
	{
		id:          "software",
		label:       "Install Oracle Database software",
		description: "Unzip the gold image into ORACLE_HOME and run the installer as oracle.",
		commands: func(s *State) []string {
			return []string{
				"mkdir -p " + s.OracleHome,
				"chown -R oracle:oinstall /u01",
				"su - oracle",
				"cd " + s.OracleHome,
				"unzip -oq /opt/install/LINUX.X64_193000_db_home.zip",
				"./runInstaller -silent -ignorePrereqFailure oracle.install.option=INSTALL_DB_SWONLY",
			}
		},
		done: func(s *State, _ FileSource) bool { return s.SoftwareInstalled },
	},
	{
		id:          "root_scripts",
		label:       "Run the root scripts",
		description: "The installer asks root to run orainstRoot.sh and root.sh.",
		commands: func(s *State) []string {
			return []string{"exit", "/u01/app/oraInventory/orainstRoot.sh", s.OracleHome + "/root.sh"}
		},
		done: func(s *State, _ FileSource) bool { return s.OrainstRootRun && s.RootShRun },
	},
	{
		id:          "environment",
		label:       "Set the oracle environment",
		description: "Export ORACLE_BASE, ORACLE_HOME, ORACLE_SID and PATH in ~/.bash_profile.",
		commands: func(s *State) []string {
			return []string{
				"su - oracle",
				"echo 'export ORACLE_BASE=" + s.OracleBase + "' >> ~/.bash_profile",
				"echo 'export ORACLE_HOME=" + s.OracleHome + "' >> ~/.bash_profile",
				"echo 'export ORACLE_SID=" + s.SID + "' >> ~/.bash_profile",
				"echo 'export PATH=$ORACLE_HOME/bin:$PATH' >> ~/.bash_profile",
				"source ~/.bash_profile",
			}
		},
		done: func(s *State, src FileSource) bool {
			return s.EnvironmentSet || profileHasOracleEnv(src)
		},
	},
	{
		id:          "database",
		label:       "Create the database",
		description: "Use DBCA in silent mode.",
		commands: func(s *State) []string {
			return []string{fmt.Sprintf("dbca -silent -createDatabase -gdbName %s -sid %s -templateName General_Purpose.dbc -sysPassword oracle -systemPassword oracle", s.SID, s.SID)}
		},
		done: func(s *State, _ FileSource) bool { return s.DatabaseCreated },
	},
	{
		id:          "database_started",
		label:       "Start the database",
		description: "Connect as SYSDBA and start the instance.",
		commands:    fixed("sqlplus / as sysdba", "STARTUP"),
		done:        func(s *State, _ FileSource) bool { return s.DatabaseStarted },
	},
	{
		id:          "listener",
		label:       "Configure the listener",
		description: "Create listener.ora with NETCA.",
		commands:    fixed("netca -silent -responseFile $ORACLE_HOME/assistants/netca/netca.rsp"),
		done:        func(s *State, _ FileSource) bool { return s.ListenerConfigured },
	},
	{
		id:          "listener_started",
		label:       "Start the listener",
		description: "The listener must be running for remote connections.",
		commands:    fixed("lsnrctl start", "lsnrctl status"),
		done:        func(s *State, _ FileSource) bool { return s.ListenerStarted },
	},
	{
		id:          "oratab",
		label:       "Enable auto-start in /etc/oratab",
		description: "dbstart only starts databases flagged Y.",
		commands: func(s *State) []string {
			return []string{"vi /etc/oratab", "  " + s.SID + ":" + s.OracleHome + ":Y"}
		},
		done: func(s *State, src FileSource) bool {
			ok := oratabAutostart(src, s.SID)
			if ok {
				s.syncFlag(&s.OratabValidated, true)
			}
			return s.OratabValidated
		},
	},
	{
		id:          "sde_tablespace",
		label:       "Create the SDE tablespace",
		description: "The geodatabase administrator stores its repository in SDE.",
		commands: func(s *State) []string {
			return []string{
				"sqlplus / as sysdba",
				"CREATE TABLESPACE SDE DATAFILE '" + s.OracleBase + "/oradata/" + s.SID + "/sde01.dbf' SIZE 1G AUTOEXTEND ON;",
			}
		},
		done: func(s *State, _ FileSource) bool { return s.PSApp.SDETablespace },
	},
	{
		id:          "sde_user",
		label:       "Create the SDE user with geodatabase privileges",
		description: "SDE needs " + strings.Join(GeodatabasePrivileges, ", ") + ".",
		commands: fixed(
			"CREATE USER SDE IDENTIFIED BY sde DEFAULT TABLESPACE SDE;",
			"GRANT "+strings.Join(GeodatabasePrivileges, ", ")+" TO SDE;",
		),
		done: func(s *State, _ FileSource) bool { return s.PSApp.SDEUser },
	},
	{
		id:          "st_shapelib",
		label:       "Configure ST_SHAPELIB for extproc",
		description: "ST_Geometry SQL functions load libst_shapelib.so through extproc.",
		commands: func(s *State) []string {
			return []string{
				"vi " + s.OracleHome + "/hs/admin/extproc.ora",
				"  SET EXTPROC_DLLS=ONLY:" + s.OracleHome + "/lib/libst_shapelib.so",
			}
		},
		done: func(s *State, src FileSource) bool {
			s.syncFlag(&s.PSApp.STShapeLib, extprocHasShapeLib(src, s.OracleHome))
			return s.PSApp.STShapeLib
		},
	},
	{
		id:          "open_cursors",
		label:       "Raise OPEN_CURSORS to at least 4000",
		description: "Geodatabases hold many cursors open.",
		commands:    fixed("ALTER SYSTEM SET OPEN_CURSORS=4000 SCOPE=BOTH;"),
		done:        func(s *State, _ FileSource) bool { return s.PSApp.OpenCursors },
	},
}

func fixed(cmds ...string) func(*State) []string {
	return func(*State) []string { return cmds }
}

func (s *State) listenerPort() int {
	if s.ListenerPort != 0 {
		return s.ListenerPort
	}
	return s.defaultPort
}

// CalculateProgress evaluates every checkpoint in order.
func (s *State) CalculateProgress(src FileSource) Progress {
	s.refreshDictionaryChecks()
	p := Progress{Total: len(checkpoints)}
	for _, c := range checkpoints {
		done := c.done(s, src)
		p.Tasks = append(p.Tasks, Task{ID: c.id, Label: c.label, Done: done})
		if done {
			p.Completed++
		}
		s.observe(c.id, done)
	}
	p.Percentage = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	return p
}

// observe records checkpoint transitions to complete. The first evaluation
// only establishes the baseline.
func (s *State) observe(id string, done bool) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	prev, known := s.seen[id]
	s.seen[id] = done
	if known && !prev && done {
		metrics.RecordCheckpoint(id)
		logging.Audit(logging.AuditEvent{
			Type:   logging.AuditCheckpoint,
			Fields: map[string]interface{}{"checkpoint": id},
		})
		logging.Oracle("checkpoint complete: %s", id)
	}
}

// NextTask returns the hint for the first incomplete checkpoint, or nil when
// everything is done.
func (s *State) NextTask(src FileSource) *Hint {
	s.refreshDictionaryChecks()
	for _, c := range checkpoints {
		if c.done(s, src) {
			continue
		}
		return &Hint{ID: c.id, Label: c.label, Description: c.description, Commands: c.commands(s)}
	}
	return nil
}

// Markdown renders the progress as a markdown table.
func (p Progress) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Installation progress: %d%% (%d/%d)\n\n", p.Percentage, p.Completed, p.Total)
	b.WriteString("| # | Checkpoint | Status |\n|---|---|---|\n")
	for i, t := range p.Tasks {
		status := "pending"
		if t.Done {
			status = "done"
		}
		fmt.Fprintf(&b, "| %d | %s | %s |\n", i+1, t.Label, status)
	}
	return b.String()
}

func hasEntry(src FileSource, path, name string) bool {
	if src == nil {
		return false
	}
	content, ok := src.ReadFile(path)
	if !ok {
		return false
	}
	for _, line := range strings.Split(content, "\n") {
		if f := strings.SplitN(line, ":", 2); len(f) == 2 && f[0] == name {
			return true
		}
	}
	return false
}

func profileHasOracleEnv(src FileSource) bool {
	if src == nil {
		return false
	}
	content, ok := src.ReadFile("/home/oracle/.bash_profile")
	if !ok {
		return false
	}
	home, sid := false, false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "export ") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		home = home || strings.HasPrefix(line, "ORACLE_HOME=")
		sid = sid || strings.HasPrefix(line, "ORACLE_SID=")
	}
	return home && sid
}

func oratabAutostart(src FileSource, sid string) bool {
	if src == nil {
		return false
	}
	content, ok := src.ReadFile("/etc/oratab")
	if !ok {
		return false
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Split(line, ":")
		if len(f) >= 3 && f[0] == sid && strings.EqualFold(strings.TrimSpace(f[2]), "Y") {
			return true
		}
	}
	return false
}

func extprocHasShapeLib(src FileSource, home string) bool {
	if src == nil {
		return false
	}
	content, ok := src.ReadFile(home + "/hs/admin/extproc.ora")
	if !ok {
		return false
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		upperLine := strings.ToUpper(line)
		if strings.Contains(upperLine, "EXTPROC_DLLS") && strings.Contains(upperLine, "ST_SHAPELIB") {
			return true
		}
	}
	return false
}

// OratabEntry returns the oratab line for this installation.
func (s *State) OratabEntry(autostart bool) string {
	flag := "N"
	if autostart {
		flag = "Y"
	}
	return s.SID + ":" + s.OracleHome + ":" + flag
}
