package oracle

import (
	"fmt"
	"path"
	"strings"
	"time"

	"orasim/internal/logging"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

func cmdOrapwd(s *shell.Session, args []string) {
	opts := keyValues(args[1:])
	file := opts["file"]
	if file == "" {
		s.Print(
			"Usage 1: orapwd file=<fname> force={y|n} asm={y|n}",
			"       dbuniquename=<dbname> format={12|12.2}",
			"       delete={y|n} input_file=<input-fname>",
			"       'sys={y | password | external(<sys-external-name>)",
			"             | global(<sys-directory-DN>)}'",
			"",
			"Usage 2: orapwd describe file=<fname>",
			"",
			"  where",
			"    file - name of password file (required),",
			"    password - password for SYS will be prompted",
			"               if not specified at command line.",
			"    force - whether to overwrite existing file (optional),",
			"",
			"  There must be no spaces around the equal-to (=) character.",
		)
		return
	}
	p := s.FS.Abs(file)
	force := strings.EqualFold(opts["force"], "y")
	if s.FS.Exists(p) && !force {
		s.Println("")
		s.Println("OPW-00005: File with same name exists - please delete or rename")
		s.Fail()
		return
	}
	if !s.FS.IsDirectory(path.Dir(p)) {
		s.Println("")
		s.Printf("OPW-00010: Could not create the password file %s.", p)
		s.Fail()
		return
	}
	write := func(pw string) {
		if msg := passwordComplexity(pw); msg != "" {
			s.Println("")
			s.Printf("OPW-00029: Password complexity failed for SYS user : %s", msg)
			s.Fail()
			return
		}
		writeFile(s, p, "ORACLE Remote Password file\n")
		s.FS.SetOwner(p, s.Env.User(), s.FS.PrimaryGroup(s.Env.User()), false)
		s.FS.SetPermissions(p, "rw-r-----", false)
		if p == home(s)+"/dbs/orapw"+s.Oracle.SID {
			if err := s.Oracle.AlterPassword("SYS", pw); err == nil {
				logging.Oracle("password file recreated, SYS password changed")
			}
		}
	}
	if pw, ok := opts["password"]; ok {
		write(pw)
		return
	}
	askSecret(s, "Enter password for SYS: ", write)
}

// passwordComplexity applies the format=12.2 verifier and returns the first
// rule the password breaks.
func passwordComplexity(pw string) string {
	if len(pw) < 8 {
		return "Password must contain at least 8 characters."
	}
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
	switch {
	case !digit:
		return "Password must contain at least 1 digit."
	case !upper:
		return "Password must contain at least 1 upper case character."
	case !lower:
		return "Password must contain at least 1 lower case character."
	}
	return ""
}

type oratabEntry struct {
	sid       string
	home      string
	autostart bool
}

func oratab(s *shell.Session) []oratabEntry {
	content, _ := s.FS.ReadFile("/etc/oratab")
	var out []oratabEntry
	for _, line := range shell.SplitLines(content) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Split(line, ":")
		if len(f) < 2 {
			continue
		}
		e := oratabEntry{sid: f[0], home: f[1]}
		if len(f) > 2 {
			e.autostart = strings.EqualFold(strings.TrimSpace(f[2]), "Y")
		}
		out = append(out, e)
	}
	return out
}

func cmdOraenv(s *shell.Session, args []string) {
	current := s.Env.Value("ORACLE_SID")
	if strings.EqualFold(s.Env.Value("ORAENV_ASK"), "NO") {
		oraenvApply(s, current)
		return
	}
	def := current
	if def == "" {
		def = s.Env.User()
	}
	askLine(s, fmt.Sprintf("ORACLE_SID = [%s] ? ", def), func(answer string) {
		answer = strings.TrimSpace(answer)
		if answer == "" {
			answer = def
		}
		oraenvApply(s, answer)
	})
}

func oraenvApply(s *shell.Session, sid string) {
	if sid == "" {
		return
	}
	for _, e := range oratab(s) {
		if e.sid == sid {
			oraenvSet(s, sid, e.home)
			return
		}
	}
	def := s.Env.Value("ORACLE_HOME")
	if def == "" {
		def = s.Env.Home()
	}
	askLine(s, fmt.Sprintf("ORACLE_HOME = [%s] ? ", def), func(answer string) {
		answer = strings.TrimSpace(answer)
		if answer == "" {
			answer = def
		}
		oraenvSet(s, sid, answer)
	})
}

// oraenvSet points the environment at one home, replacing the previous
// home's bin directory on PATH.
func oraenvSet(s *shell.Session, sid, oh string) {
	old := s.Env.Value("ORACLE_HOME")
	s.Env.Export("ORACLE_SID", sid)
	s.Env.Export("ORACLE_HOME", oh)
	var dirs []string
	for _, d := range strings.Split(s.Env.Value("PATH"), ":") {
		if d == "" || (old != "" && d == old+"/bin") || d == oh+"/bin" {
			continue
		}
		dirs = append(dirs, d)
	}
	dirs = append(dirs, oh+"/bin")
	s.Env.Export("PATH", strings.Join(dirs, ":"))
	s.Env.Export("LD_LIBRARY_PATH", oh+"/lib")

	prev := s.Env.Value("ORACLE_BASE")
	switch {
	case oh == home(s) && s.Oracle.SoftwareInstalled:
		s.Env.Export("ORACLE_BASE", base(s))
		if prev == base(s) {
			s.Printf("The Oracle base remains unchanged with value %s", base(s))
		} else {
			s.Printf("The Oracle base has been set to %s", base(s))
		}
	default:
		s.Println("ORACLE_BASE environment variable is not being set since this")
		s.Printf("information is not available for the current user ID %s.", s.Env.User())
		s.Println("You can set ORACLE_BASE manually if it is required.")
		s.Println("Resetting ORACLE_BASE to its previous value or ORACLE_HOME")
		if prev == "" {
			prev = oh
			s.Env.Export("ORACLE_BASE", oh)
		}
		s.Printf("The Oracle base remains unchanged with value %s", prev)
	}
	syncEnvironment(s)
}

// autostartLocal reports whether oratab asks for this installation's
// instance to be started by dbstart.
func autostartLocal(s *shell.Session, oh string) bool {
	for _, e := range oratab(s) {
		if e.autostart && e.sid == s.Oracle.SID && e.home == oh {
			return true
		}
	}
	return false
}

func cmdDbstart(s *shell.Session, args []string) {
	st := s.Oracle
	if len(args) < 2 {
		s.Println("ORACLE_HOME_LISTNER is not SET, unable to auto-start Oracle Net Listener")
		s.Printf("Usage: %s/bin/dbstart ORACLE_HOME", home(s))
	} else if args[1] == home(s) && st.ListenerConfigured && !st.ListenerStarted {
		st.ListenerStarted = true
		st.SetParameter(listenerStartKey, st.Now().Format(time.RFC3339))
		writeFile(s, home(s)+"/listener.log", "Starting "+home(s)+"/bin/tnslsnr: please wait...\n")
		logging.Oracle("dbstart started the listener")
	}
	if !autostartLocal(s, home(s)) {
		return
	}
	logfile := home(s) + "/rdbms/log/startup.log"
	s.Printf("Processing Database instance %q: log file %s", st.SID, logfile)
	if !st.DatabaseCreated {
		writeFile(s, logfile, ora.ErrParameterFile.Error()+"\n"+ora.ErrNoParameterFile(home(s)+"/dbs/init"+st.SID+".ora").Error()+"\n")
		return
	}
	if st.IsOpen() {
		return
	}
	st.SetMode(ora.ModeOpen)
	writeFile(s, logfile, "ORACLE instance started.\nDatabase mounted.\nDatabase opened.\n")
	alert(s, "Starting ORACLE instance (normal) (OS id: 4021)", "Completed: ALTER DATABASE OPEN")
	logging.Oracle("dbstart opened %s", st.SID)
}

func cmdDbshut(s *shell.Session, args []string) {
	st := s.Oracle
	if len(args) < 2 {
		s.Println("ORACLE_HOME_LISTNER is not SET, unable to auto-stop Oracle Net Listener")
		s.Printf("Usage: %s/bin/dbshut ORACLE_HOME", home(s))
	} else if args[1] == home(s) && st.ListenerStarted {
		st.ListenerStarted = false
		st.Save()
		logging.Oracle("dbshut stopped the listener")
	}
	if !autostartLocal(s, home(s)) {
		return
	}
	logfile := home(s) + "/rdbms/log/shutdown.log"
	s.Printf("Processing Database instance %q: log file %s", st.SID, logfile)
	if !st.DatabaseStarted {
		return
	}
	st.SetMode(ora.ModeShutdown)
	writeFile(s, logfile, "Database closed.\nDatabase dismounted.\nORACLE instance shut down.\n")
	alert(s, "Shutting down ORACLE instance (immediate) (OS id: 4188)", "Instance shutdown complete (OS id: 4188)")
	logging.Oracle("dbshut stopped %s", st.SID)
}
