package meta

import "strings"

// Category groups commands in help output.
type Category int

const (
	CategoryFiles Category = iota
	CategoryText
	CategoryHost
	CategoryAccounts
	CategoryPackages
	CategoryOracle
	CategoryTraining
)

// String returns the heading used by help.
func (c Category) String() string {
	names := []string{"Files", "Text processing", "Host information", "Users and environment", "Packages and services", "Oracle Database 19c", "Training"}
	if int(c) < len(names) {
		return names[c]
	}
	return "Other"
}

// CommandInfo describes one command for help and oracle-help.
type CommandInfo struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Category    Category
}

// Catalog lists the documented commands in display order.
var Catalog = []CommandInfo{
	{Name: "ls", Description: "List directory contents", Usage: "ls [-l] [-a] [-h] [path...]", Category: CategoryFiles},
	{Name: "cd", Description: "Change the working directory", Usage: "cd [dir]", Category: CategoryFiles},
	{Name: "pwd", Description: "Print the working directory", Usage: "pwd", Category: CategoryFiles},
	{Name: "mkdir", Description: "Create directories", Usage: "mkdir [-p] dir...", Category: CategoryFiles},
	{Name: "touch", Description: "Create empty files", Usage: "touch file...", Category: CategoryFiles},
	{Name: "rm", Aliases: []string{"rmdir"}, Description: "Remove files or directories", Usage: "rm [-r] [-f] path...", Category: CategoryFiles},
	{Name: "cat", Description: "Print file contents", Usage: "cat file...", Category: CategoryFiles},
	{Name: "echo", Description: "Print text; redirect with > or >>", Usage: "echo [text] [> file]", Category: CategoryFiles},
	{Name: "cp", Description: "Copy files", Usage: "cp [-r] src dst", Category: CategoryFiles},
	{Name: "mv", Description: "Move or rename files", Usage: "mv src dst", Category: CategoryFiles},
	{Name: "chmod", Description: "Change permission bits", Usage: "chmod [-R] mode path...", Category: CategoryFiles},
	{Name: "chown", Aliases: []string{"chgrp"}, Description: "Change file owner and group", Usage: "chown [-R] user[:group] path...", Category: CategoryFiles},
	{Name: "unzip", Description: "Extract a zip archive", Usage: "unzip [-q] archive [-d dir]", Category: CategoryFiles},
	{Name: "vi", Aliases: []string{"vim"}, Description: "Edit a file line by line", Usage: "vi file", Category: CategoryFiles},

	{Name: "grep", Description: "Print lines matching a pattern", Usage: "grep [-i] [-v] [-c] pattern [file...]", Category: CategoryText},
	{Name: "head", Description: "Print the first lines of files", Usage: "head [-n N] file", Category: CategoryText},
	{Name: "tail", Description: "Print the last lines of files", Usage: "tail [-n N] file", Category: CategoryText},
	{Name: "wc", Description: "Count lines, words and bytes", Usage: "wc [-l] file", Category: CategoryText},
	{Name: "diff", Description: "Compare two files line by line", Usage: "diff [-u] [-q] file1 file2", Category: CategoryText},
	{Name: "sort", Aliases: []string{"uniq"}, Description: "Sort lines", Usage: "sort [-r] [file]", Category: CategoryText},

	{Name: "hostname", Description: "Show the host name", Usage: "hostname", Category: CategoryHost},
	{Name: "uname", Description: "Show kernel information", Usage: "uname [-a]", Category: CategoryHost},
	{Name: "date", Description: "Show the date and time", Usage: "date [+format]", Category: CategoryHost},
	{Name: "df", Description: "Report filesystem space usage", Usage: "df [-h]", Category: CategoryHost},
	{Name: "free", Description: "Report memory usage", Usage: "free [-g|-m|-h]", Category: CategoryHost},
	{Name: "ps", Description: "List processes", Usage: "ps [-ef]", Category: CategoryHost},
	{Name: "uptime", Description: "Show how long the system has been running", Usage: "uptime", Category: CategoryHost},
	{Name: "history", Description: "Show command history", Usage: "history [N|-c]", Category: CategoryHost},
	{Name: "clear", Description: "Clear the terminal", Usage: "clear", Category: CategoryHost},

	{Name: "useradd", Aliases: []string{"usermod"}, Description: "Create a user account", Usage: "useradd [-u uid] [-g group] [-G groups] name", Category: CategoryAccounts},
	{Name: "groupadd", Description: "Create a group", Usage: "groupadd [-g gid] name", Category: CategoryAccounts},
	{Name: "passwd", Description: "Set a user's password", Usage: "passwd [user]", Category: CategoryAccounts},
	{Name: "id", Aliases: []string{"groups", "whoami"}, Description: "Show user and group ids", Usage: "id [user]", Category: CategoryAccounts},
	{Name: "su", Aliases: []string{"sudo"}, Description: "Switch user; exit returns", Usage: "su [-] [user]", Category: CategoryAccounts},
	{Name: "exit", Aliases: []string{"logout"}, Description: "Leave the current user shell", Usage: "exit", Category: CategoryAccounts},
	{Name: "export", Aliases: []string{"set", "unset", "env"}, Description: "Manage environment variables", Usage: "export NAME=value", Category: CategoryAccounts},
	{Name: "source", Aliases: []string{"."}, Description: "Run a file in the current shell", Usage: "source file", Category: CategoryAccounts},

	{Name: "dnf", Aliases: []string{"yum", "rpm"}, Description: "Install and query packages", Usage: "dnf install -y package...", Category: CategoryPackages},
	{Name: "systemctl", Description: "Control services", Usage: "systemctl start|stop|status|enable|disable unit", Category: CategoryPackages},
	{Name: "firewall-cmd", Description: "Configure firewalld", Usage: "firewall-cmd --permanent --add-port=1521/tcp", Category: CategoryPackages},
	{Name: "setenforce", Aliases: []string{"getenforce"}, Description: "Switch SELinux mode", Usage: "setenforce 0|1", Category: CategoryPackages},
	{Name: "sysctl", Description: "Read or apply kernel parameters", Usage: "sysctl -p [file]", Category: CategoryPackages},
	{Name: "reboot", Description: "Restart the host; Oracle state and history are lost", Usage: "reboot", Category: CategoryPackages},

	{Name: "runInstaller", Description: "Install the Oracle software (silent mode)", Usage: "./runInstaller -silent -responseFile file", Category: CategoryOracle},
	{Name: "dbca", Description: "Create or delete a database", Usage: "dbca -silent -createDatabase -gdbName ORCL -templateName General_Purpose.dbc ...", Category: CategoryOracle},
	{Name: "netca", Description: "Configure the listener", Usage: "netca -silent -responseFile $ORACLE_HOME/assistants/netca/netca.rsp", Category: CategoryOracle},
	{Name: "lsnrctl", Description: "Control the listener", Usage: "lsnrctl [start|stop|status|services]", Category: CategoryOracle},
	{Name: "sqlplus", Description: "SQL*Plus command-line client", Usage: "sqlplus / as sysdba | sqlplus user/password[@service]", Category: CategoryOracle},
	{Name: "rman", Description: "Recovery Manager", Usage: "rman target /", Category: CategoryOracle},
	{Name: "adrci", Description: "Automatic Diagnostic Repository interpreter", Usage: "adrci [exec=\"command\"]", Category: CategoryOracle},
	{Name: "srvctl", Description: "Oracle Restart control", Usage: "srvctl status database -db ORCL", Category: CategoryOracle},
	{Name: "orapwd", Description: "Create the password file", Usage: "orapwd file=$ORACLE_HOME/dbs/orapwORCL [force=y]", Category: CategoryOracle},
	{Name: "tnsping", Description: "Test a net service name", Usage: "tnsping ORCL [count]", Category: CategoryOracle},
	{Name: "expdp", Description: "Data Pump export", Usage: "expdp system schemas=SCOTT directory=DATA_PUMP_DIR dumpfile=scott.dmp", Category: CategoryOracle},
	{Name: "impdp", Description: "Data Pump import", Usage: "impdp system dumpfile=scott.dmp remap_schema=SCOTT:SCOTT2", Category: CategoryOracle},
	{Name: "awrrpt", Aliases: []string{"addmrpt"}, Description: "Generate AWR and ADDM reports", Usage: "awrrpt", Category: CategoryOracle},
	{Name: "oraenv", Description: "Point the environment at an oratab entry", Usage: ". oraenv", Category: CategoryOracle},
	{Name: "dbstart", Aliases: []string{"dbshut"}, Description: "Start or stop oratab databases", Usage: "dbstart $ORACLE_HOME", Category: CategoryOracle},

	{Name: "ocp", Description: "Show installation progress", Usage: "ocp [--hint|--hint-detail]", Category: CategoryTraining},
	{Name: "oracle-help", Description: "Oracle tools reference", Usage: "oracle-help [command]", Category: CategoryTraining},
	{Name: "help", Description: "Show this command reference", Usage: "help [command]", Category: CategoryTraining},
	{Name: "tictactoe", Description: "Play a game while the database is created", Usage: "tictactoe", Category: CategoryTraining},
}

// ByCategory returns the catalog entries of one category.
func ByCategory(c Category) []CommandInfo {
	var out []CommandInfo
	for _, info := range Catalog {
		if info.Category == c {
			out = append(out, info)
		}
	}
	return out
}

// Find looks a command up by name or alias.
func Find(name string) *CommandInfo {
	for i := range Catalog {
		info := &Catalog[i]
		if strings.EqualFold(info.Name, name) {
			return info
		}
		for _, a := range info.Aliases {
			if strings.EqualFold(a, name) {
				return info
			}
		}
	}
	return nil
}

// documented reports whether name appears in the catalog.
func documented(name string) bool { return Find(name) != nil }
