package oracle

import (
	"fmt"
	"path"
	"strings"

	"orasim/internal/logging"
	"orasim/internal/modal"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// level is how far the instance must be up for a statement.
type level int

const (
	anyState level = iota
	started
	mounted
	opened
)

// sqlplus is one SQL*Plus session. user is empty while not connected.
type sqlplus struct {
	s      *shell.Session
	tool   *modal.Tool
	frame  *modal.Frame
	user   string
	priv   string // SYSDBA, SYSOPER or empty
	remote string // net service used by the connection
	silent bool
	batch  bool // leave once a report script finishes
	prompt string
	last   string
}

func (q *sqlplus) sysdba() bool { return q.priv != "" }

// up reports whether the connection reaches a started instance.
func (q *sqlplus) up() bool {
	if q.remote != "" {
		return q.s.Oracle.DatabaseStarted
	}
	return instanceUp(q.s)
}

func cmdSqlplus(s *shell.Session, args []string) {
	q := &sqlplus{s: s, prompt: "SQL> "}
	var logon []string
	script := ""
	nolog := false
	for _, a := range args[1:] {
		switch lower := strings.ToLower(a); {
		case lower == "-s" || lower == "-silent":
			q.silent = true
		case lower == "-v" || lower == "-version":
			s.Println("")
			s.Println("SQL*Plus: Release 19.0.0.0.0 - Production")
			s.Println(productVersion)
			s.Println("")
			return
		case lower == "-l" || lower == "-logon" || lower == "-nologintime":
		case lower == "/nolog":
			nolog = true
		case strings.HasPrefix(a, "@"):
			script = a[1:]
		case strings.HasPrefix(a, "-"):
			s.Println("SP2-0306: Invalid option.")
			s.Println("Usage: SQLPLUS [ [<option>] [{logon | /nolog}] [<start>] ]")
			s.Println("where <option> ::= -H | -V | [ [-C <v>] [-F] [-L] [-M \"<o>\"] [-R <n>] [-S] ]")
			return
		default:
			logon = append(logon, a)
		}
	}
	if !q.silent {
		s.Println("")
		s.Printf("SQL*Plus: Release 19.0.0.0.0 - Production on %s", s.Oracle.Now().Format("Mon Jan 2 15:04:05 2006"))
		s.Println(productVersion)
		s.Println("")
		s.Println("Copyright (c) 1982, 2019, Oracle.  All rights reserved.")
		s.Println("")
	}
	logging.Oracle("sqlplus start user=%s args=%d", s.Env.User(), len(args)-1)
	drive(s, func() {
		q.enter()
		then := func() {
			if script != "" {
				q.runScript(script)
			}
		}
		if nolog {
			then()
			return
		}
		q.connect(strings.Join(logon, " "), true, 1, then)
	})
}

func (q *sqlplus) enter() {
	q.tool = &modal.Tool{
		Name:    "sqlplus",
		Prompt:  func() string { return q.prompt },
		Rules:   q.rules(),
		Unknown: q.unknown,
		OnExit: func() {
			q.farewell()
			q.user = ""
		},
		ExitWords: []string{"EXIT", "QUIT", "EXIT SUCCESS", "EXIT FAILURE", "EXIT COMMIT", "EXIT ROLLBACK"},
	}
	q.tool.Enter(q.s.Modal)
	q.frame = q.s.Modal.Top()
}

// close leaves SQL*Plus without the disconnect banner.
func (q *sqlplus) close() {
	q.user = ""
	if q.s.Modal.Top() == q.frame {
		q.s.Modal.Pop()
	}
}

func (q *sqlplus) farewell() {
	if q.user == "" {
		return
	}
	if q.up() {
		q.s.Println("Disconnected from " + productBanner)
		q.s.Println(productVersion)
		return
	}
	q.s.Println("Disconnected")
}

// logon is a parsed connect string.
type logon struct {
	user     string
	password string
	service  string
	priv     string
	os       bool
	hasPass  bool
}

func parseLogon(spec string) logon {
	var l logon
	fields := strings.Fields(spec)
	if n := len(fields); n >= 2 && strings.EqualFold(fields[n-2], "as") {
		l.priv = strings.ToUpper(fields[n-1])
		fields = fields[:n-2]
	}
	cred := strings.Join(fields, "")
	if at := strings.LastIndexByte(cred, '@'); at >= 0 {
		l.service = cred[at+1:]
		cred = cred[:at]
	}
	if cred == "/" {
		l.os = true
		return l
	}
	user, pw, ok := strings.Cut(cred, "/")
	l.user = strings.ToUpper(strings.Trim(user, `"`))
	l.password = strings.Trim(pw, `"`)
	l.hasPass = ok
	return l
}

// connect runs the logon dialogue. Startup logons get three attempts, as
// SQL*Plus does; then runs once the dialogue ends.
func (q *sqlplus) connect(spec string, initial bool, attempt int, then func()) {
	if strings.TrimSpace(spec) == "" {
		askLine(q.s, "Enter user-name: ", func(answer string) {
			q.connectWith(parseLogon(answer), initial, attempt, then)
		})
		return
	}
	q.connectWith(parseLogon(spec), initial, attempt, then)
}

func (q *sqlplus) connectWith(l logon, initial bool, attempt int, then func()) {
	if !l.os && l.user != "" && !l.hasPass {
		askSecret(q.s, "Enter password: ", func(pw string) {
			l.password, l.hasPass = pw, true
			q.logon(l, initial, attempt, then)
		})
		return
	}
	q.logon(l, initial, attempt, then)
}

func (q *sqlplus) logon(l logon, initial bool, attempt int, then func()) {
	s := q.s
	wasConnected := q.user != ""
	if lines := q.authenticate(l); lines != nil {
		logging.Oracle("sqlplus logon refused user=%s: %s", l.user, lines[0])
		s.Println("ERROR:")
		for _, line := range lines {
			s.Println(line)
		}
		s.Println("")
		s.Println("")
		if !initial {
			if wasConnected {
				s.Println("Warning: You are no longer connected to ORACLE.")
			}
			q.user, q.priv, q.remote = "", "", ""
			then()
			return
		}
		if attempt >= 3 {
			s.Println("SP2-0157: unable to CONNECT to ORACLE after 3 attempts, exiting SQL*Plus")
			q.close()
			return
		}
		q.connect("", true, attempt+1, then)
		return
	}
	logging.Oracle("sqlplus connected user=%s priv=%s", q.user, q.priv)
	switch {
	case q.sysdba() && !q.up():
		s.Println("Connected to an idle instance.")
	case !initial:
		s.Println("Connected.")
	case !q.silent:
		s.Println("Connected to:")
		s.Println(productBanner)
		s.Println(productVersion)
	}
	if initial && !q.silent {
		s.Println("")
	}
	then()
}

// notAvailable is the stack a client gets from a down instance.
func notAvailable() []string {
	return []string{
		ora.ErrNotAvailable.Error(),
		ora.ErrNoSharedMemory.Error(),
		"Linux-x86_64 Error: 2: No such file or directory",
		"Additional information: 4376",
		"Additional information: 1538916303",
		"Process ID: 0",
		"Session ID: 0 Serial number: 0",
	}
}

// authenticate checks a logon and, on success, records the connection. It
// returns the error lines to print otherwise.
func (q *sqlplus) authenticate(l logon) []string {
	s, st := q.s, q.s.Oracle
	errs := func(e ...*ora.Error) []string {
		out := make([]string, len(e))
		for i, x := range e {
			out[i] = x.Error()
		}
		return out
	}
	switch l.priv {
	case "", "SYSDBA", "SYSOPER", "SYSBACKUP":
	default:
		return errs(ora.ErrInvalidOption)
	}
	sysdba := l.priv != ""
	up := instanceUp(s)
	if l.service == "" {
		if s.Env.Value("ORACLE_SID") == "" {
			return errs(ora.ErrBadService)
		}
	} else {
		if lines := q.reach(l.service, sysdba); lines != nil {
			return lines
		}
		up = st.DatabaseStarted
	}

	name := l.user
	switch {
	case l.os:
		if !sysdba {
			return errs(ora.ErrInvalidLogon)
		}
		if l.service != "" || !osdba(s) {
			return errs(ora.ErrInsufficientPrivs)
		}
		name = "SYS"
	case sysdba:
		// Local connections by an OSDBA member bypass the password file.
		if l.service != "" || !osdba(s) {
			u, ok := st.User(name)
			pwfile := s.FS.IsFile(home(s) + "/dbs/orapw" + st.SID)
			if !ok || !pwfile || u.Password != l.password || !st.HasPrivilege(name, l.priv) {
				return errs(ora.ErrInvalidLogon)
			}
		}
		name = "SYS"
		if l.priv == "SYSOPER" {
			name = "PUBLIC"
		}
	default:
		if !up {
			return notAvailable()
		}
		if st.DatabaseMode != ora.ModeOpen {
			return errs(ora.ErrInitInProgress)
		}
		if name == "" {
			return errs(ora.ErrInvalidLogon)
		}
		if name == "SYS" {
			return errs(ora.ErrSysNeedsSysdba)
		}
		if err := st.Authenticate(name, l.password); err != nil {
			return []string{err.Error()}
		}
		if !st.HasPrivilege(name, "CREATE SESSION") {
			return errs(ora.ErrNoCreateSession(name))
		}
	}
	q.user, q.priv, q.remote = name, l.priv, l.service
	return nil
}

// reach resolves a net service through the listener.
func (q *sqlplus) reach(service string, sysdba bool) []string {
	st := q.s.Oracle
	if !st.ListenerStarted {
		return []string{ora.ErrClientNoListener.Error()}
	}
	target, ok := resolveService(q.s, service)
	if !ok {
		return []string{ora.ErrUnresolved.Error()}
	}
	if target.port != st.ListenerPort {
		return []string{ora.ErrClientNoListener.Error()}
	}
	if !st.DatabaseStarted || !serves(st, target.service) {
		return []string{ora.ErrUnknownService.Error()}
	}
	if st.DatabaseMode != ora.ModeOpen && !sysdba {
		return []string{ora.ErrServiceBlocked.Error()}
	}
	return nil
}

// serves reports whether the instance registers service with the listener.
func serves(st *ora.State, service string) bool {
	name, _, _ := strings.Cut(service, ".")
	return strings.EqualFold(name, st.DBName())
}

// done prints statement feedback.
func (q *sqlplus) done(msg string) {
	q.s.Println("")
	q.s.Println(msg)
	q.s.Println("")
}

// fail prints a statement error stack.
func (q *sqlplus) fail(errs ...*ora.Error) {
	q.s.Println("ERROR at line 1:")
	printError(q.s, errs...)
	q.s.Println("")
}

// ready checks the instance, then the connection, then the mode, printing
// the error a real session would report first.
func (q *sqlplus) ready(need level, closed *ora.Error) bool {
	s, st := q.s, q.s.Oracle
	if need > anyState && !q.up() {
		s.Println("ERROR at line 1:")
		printError(s, ora.ErrNotAvailable)
		s.Println("Process ID: 0")
		s.Println("Session ID: 0 Serial number: 0")
		s.Println("")
		return false
	}
	if q.user == "" {
		printError(s, ora.ErrNotConnected)
		return false
	}
	switch {
	case need >= mounted && st.DatabaseMode == ora.ModeNoMount:
		q.fail(ora.ErrNotMounted)
		return false
	case need >= opened && st.DatabaseMode != ora.ModeOpen:
		if closed == nil {
			closed = ora.ErrNotOpen
		}
		q.fail(closed)
		return false
	}
	return true
}

func (q *sqlplus) may(priv string) bool {
	return q.sysdba() || q.s.Oracle.HasPrivilege(q.user, priv)
}

func (q *sqlplus) require(priv string) bool {
	if q.may(priv) {
		return true
	}
	q.fail(ora.ErrInsufficientPrivs)
	return false
}

// admin checks a SYSDBA-only command such as STARTUP.
func (q *sqlplus) admin() bool {
	switch {
	case q.user == "":
		printError(q.s, ora.ErrNotConnected)
	case !q.sysdba():
		printError(q.s, ora.ErrInsufficientPrivs)
	default:
		return true
	}
	return false
}

// stmt records the statement for "/" before running it.
func (q *sqlplus) stmt(m modal.Matcher, fn func(c modal.Call)) modal.Rule {
	return modal.Rule{Match: m, Action: func(c modal.Call) {
		q.last = c.Line
		fn(c)
	}}
}

func rule(m modal.Matcher, fn func(c modal.Call)) modal.Rule {
	return modal.Rule{Match: m, Action: fn}
}

// rules is the SQL*Plus statement table. Order matters: specific forms
// precede the generic ones that would also match them.
func (q *sqlplus) rules() []modal.Rule {
	return []modal.Rule{
		rule(modal.Func(func(u string) bool { return strings.HasPrefix(u, "--") || u == "REM" || strings.HasPrefix(u, "REM ") }), func(modal.Call) {}),
		rule(modal.Exact("/", "R", "RUN"), q.rerun),
		rule(modal.Regex(`^CONN(?:ECT)?(?:\s+(.*))?$`), func(c modal.Call) {
			q.connect(c.Groups[1], false, 1, func() {})
		}),
		rule(modal.Regex(`^DISC(?:ONNECT)?$`), func(modal.Call) {
			q.farewell()
			q.user, q.priv, q.remote = "", "", ""
		}),
		rule(modal.Regex(`^SHO(?:W)?\s+(\w+)(?:\s+(\S+))?$`), q.show),
		rule(modal.Regex(`^STARTUP(?:\s+(.*))?$`), q.startup),
		rule(modal.Regex(`^SHUTDOWN(?:\s+(\w+))?(?:\s+LOCAL)?$`), q.shutdown),
		q.stmt(modal.Regex(`^ALTER\s+DATABASE\s+(.+)$`), q.alterDatabase),
		q.stmt(modal.Regex(`^ALTER\s+SYSTEM\s+(.+)$`), q.alterSystem),
		q.stmt(modal.Prefix("ALTER SESSION"), func(modal.Call) {
			if q.ready(started, nil) {
				q.done("Session altered.")
			}
		}),
		q.stmt(modal.Regex(`^CREATE\s+USER\s+(\S+)\s+IDENTIFIED\s+(?:BY\s+("[^"]*"|\S+)|EXTERNALLY)(.*)$`), q.createUser),
		q.stmt(modal.Regex(`^ALTER\s+USER\s+(\S+)\s+(.+)$`), q.alterUser),
		q.stmt(modal.Regex(`^DROP\s+USER\s+(\S+)(\s+CASCADE)?$`), q.dropUser),
		q.stmt(modal.Regex(`^CREATE\s+ROLE\s+(\S+)(?:\s+NOT\s+IDENTIFIED|\s+IDENTIFIED\s+BY\s+\S+)?$`), q.createRole),
		q.stmt(modal.Regex(`^DROP\s+ROLE\s+(\S+)$`), q.dropRole),
		q.stmt(modal.Regex(`^GRANT\s+(.+?)\s+ON\s+(\S+)\s+TO\s+(.+?)(?:\s+WITH\s+GRANT\s+OPTION)?$`), q.grantObject),
		q.stmt(modal.Regex(`^GRANT\s+(.+?)\s+TO\s+(.+?)(?:\s+WITH\s+(?:ADMIN|DELEGATE)\s+OPTION)?$`), q.grant),
		q.stmt(modal.Regex(`^REVOKE\s+(.+?)\s+ON\s+(\S+)\s+FROM\s+(.+)$`), q.grantObject),
		q.stmt(modal.Regex(`^REVOKE\s+(.+?)\s+FROM\s+(.+)$`), q.revoke),
		q.stmt(modal.Regex(`^CREATE\s+(?:(?:BIGFILE|SMALLFILE)\s+)?(?:(TEMPORARY|UNDO)\s+)?TABLESPACE\s+(\S+)(.*)$`), q.createTablespace),
		q.stmt(modal.Regex(`^DROP\s+TABLESPACE\s+(\S+)(\s+INCLUDING\s+CONTENTS(\s+AND\s+DATAFILES)?)?(?:\s+CASCADE\s+CONSTRAINTS)?$`), q.dropTablespace),
		q.stmt(modal.Regex(`^ALTER\s+TABLESPACE\s+(\S+)\s+(.+)$`), q.alterTablespace),
		q.stmt(modal.Regex(`^CREATE\s+RESTORE\s+POINT\s+(\S+)(\s+GUARANTEE\s+FLASHBACK\s+DATABASE)?$`), q.createRestorePoint),
		q.stmt(modal.Regex(`^DROP\s+RESTORE\s+POINT\s+(\S+)$`), q.dropRestorePoint),
		q.stmt(modal.Regex(`^FLASHBACK\s+DATABASE\s+TO\s+(?:RESTORE\s+POINT\s+(\S+)|SCN\s+(\d+))$`), q.flashback),
		q.stmt(modal.Regex(`^SELECT\s+(.+?)\s+FROM\s+(?:SYS\.)?DUAL$`), q.selectDual),
		q.stmt(modal.Regex(`^SELECT\s+(.+?)\s+FROM\s+([\w$#.]+)(?:\s+WHERE\s+(.+?))?(?:\s+ORDER\s+BY\s+(.+?))?$`), q.query),
		rule(modal.Regex(`^DESC(?:RIBE)?\s+(\S+)$`), q.describe),
		q.stmt(modal.Regex(`^CREATE\s+TABLE\s+`), q.ack("CREATE TABLE", "Table created.")),
		q.stmt(modal.Regex(`^CREATE\s+(?:OR\s+REPLACE\s+)?(?:FORCE\s+)?VIEW\s+`), q.ack("CREATE VIEW", "View created.")),
		q.stmt(modal.Regex(`^CREATE\s+(?:UNIQUE\s+)?INDEX\s+`), q.ack("", "Index created.")),
		q.stmt(modal.Regex(`^CREATE\s+SEQUENCE\s+`), q.ack("CREATE SEQUENCE", "Sequence created.")),
		q.stmt(modal.Regex(`^CREATE\s+(?:OR\s+REPLACE\s+)?PUBLIC\s+SYNONYM\s+`), q.ack("CREATE PUBLIC SYNONYM", "Synonym created.")),
		q.stmt(modal.Regex(`^CREATE\s+(?:OR\s+REPLACE\s+)?SYNONYM\s+`), q.ack("CREATE SYNONYM", "Synonym created.")),
		q.stmt(modal.Regex(`^CREATE\s+(?:OR\s+REPLACE\s+)?DIRECTORY\s+`), q.ack("", "Directory created.")),
		q.stmt(modal.Regex(`^DROP\s+TABLE\s+`), q.ack("", "Table dropped.")),
		q.stmt(modal.Regex(`^TRUNCATE\s+TABLE\s+`), q.ack("", "Table truncated.")),
		q.stmt(modal.Regex(`^INSERT\s+INTO\s+`), q.ack("", "1 row created.")),
		q.stmt(modal.Regex(`^UPDATE\s+\S+\s+SET\s+`), q.ack("", "1 row updated.")),
		q.stmt(modal.Regex(`^DELETE\s+(?:FROM\s+)?\S+`), q.ack("", "1 row deleted.")),
		q.stmt(modal.Regex(`^COMMIT(?:\s+WORK)?$`), q.ack("", "Commit complete.")),
		q.stmt(modal.Regex(`^ROLLBACK(?:\s+WORK)?$`), q.ack("", "Rollback complete.")),
		q.stmt(modal.Regex(`^EXEC(?:UTE)?\s+`), q.ack("", "PL/SQL procedure successfully completed.")),
		rule(modal.Regex(`^(?:@@?|STA(?:RT)?\s+)\s*(\S+)`), func(c modal.Call) { q.runScript(c.Groups[1]) }),
		rule(modal.Regex(`^(?:HO|HOST)(?:\s+(.*))?$`), q.host),
		rule(modal.Regex(`^!\s*(.*)$`), q.host),
		rule(modal.Regex(`^SET\s+SQLP(?:ROMPT)?\s+(.+)$`), func(c modal.Call) {
			q.prompt = strings.Trim(c.Groups[1], `"'`)
		}),
		rule(modal.Prefix("SET "), func(modal.Call) {}),
		rule(modal.Regex(`^SPO(?:OL)?\s+(\S+)`), q.spool),
		rule(modal.Exact("CLEAR SCREEN", "CL SCR", "CLEAR SCR"), func(modal.Call) { q.s.ClearScreen() }),
		rule(modal.Regex(`^PRO(?:MPT)?(?:\s+(.*))?$`), func(c modal.Call) { q.s.Println(c.Groups[1]) }),
		rule(modal.Regex(`^PASSW(?:ORD)?(?:\s+(\S+))?$`), q.password),
		rule(modal.Regex(`^(?:HELP|\?)(?:\s+(.*))?$`), q.help),
	}
}

// sqlVerbs start statements the server would parse.
var sqlVerbs = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"CREATE": true, "ALTER": true, "DROP": true, "GRANT": true, "REVOKE": true,
	"TRUNCATE": true, "WITH": true, "RENAME": true, "COMMENT": true, "AUDIT": true,
	"NOAUDIT": true, "ANALYZE": true, "LOCK": true, "SAVEPOINT": true, "PURGE": true,
	"FLASHBACK": true, "EXPLAIN": true,
}

func (q *sqlplus) unknown(c modal.Call) {
	verb := strings.Fields(c.Upper)[0]
	if !sqlVerbs[verb] {
		q.s.Println(ora.UnknownCommand(c.Line))
		return
	}
	q.last = c.Line
	if q.ready(anyState, nil) {
		q.fail(ora.ErrInvalidSQL)
	}
}

func (q *sqlplus) rerun(modal.Call) {
	if q.last == "" {
		q.s.Println("SP2-0103: Nothing in SQL buffer to run.")
		return
	}
	c, _ := modal.Normalize(q.last)
	q.tool.Dispatch(c)
}

// ack builds an acknowledger for statements whose effect is not modeled.
func (q *sqlplus) ack(priv, msg string) func(modal.Call) {
	return func(modal.Call) {
		if !q.ready(opened, nil) {
			return
		}
		if priv != "" && !q.require(priv) {
			return
		}
		q.done(msg)
	}
}

func (q *sqlplus) show(c modal.Call) {
	s, st := q.s, q.s.Oracle
	switch what := strings.ToUpper(c.Groups[1]); what {
	case "USER":
		s.Printf("USER is %q", q.user)
	case "PARAMETER", "PARAMETERS", "PARAM":
		if !q.ready(started, nil) {
			return
		}
		if !q.may("SELECT ANY DICTIONARY") {
			q.fail(ora.ErrNoTable)
			return
		}
		filter := strings.ToLower(c.Groups[2])
		s.Println("")
		s.Printf("%-36s %-11s %s", "NAME", "TYPE", "VALUE")
		s.Printf("%s %s %s", strings.Repeat("-", 36), strings.Repeat("-", 11), strings.Repeat("-", 30))
		for _, p := range parameterCatalog {
			if filter != "" && !strings.Contains(p.name, filter) {
				continue
			}
			s.Println(strings.TrimRight(fmt.Sprintf("%-36s %-11s %s", p.name, p.typ, parameterValue(q.s, p)), " "))
		}
	case "SGA":
		if !q.ready(started, nil) {
			return
		}
		if !q.may("SELECT ANY DICTIONARY") {
			q.fail(ora.ErrNoTable)
			return
		}
		s.Println("")
		printSGA(s)
	case "CON_NAME":
		if !q.ready(started, nil) {
			return
		}
		s.Println("")
		s.Println("CON_NAME")
		s.Println(strings.Repeat("-", 30))
		s.Println(st.DBName())
	case "RELEASE", "REL":
		s.Println("release 1903000000")
	case "ERRORS", "ERR":
		s.Println("No errors.")
	default:
		s.Printf("SP2-0158: unknown SHOW option %q", strings.ToLower(c.Groups[1]))
	}
}

func printSGA(s *shell.Session) {
	for _, row := range []struct {
		name  string
		bytes int64
	}{
		{"Total System Global Area", 1610609888},
		{"Fixed Size", 9135328},
		{"Variable Size", 385875968},
		{"Database Buffers", 1207959552},
		{"Redo Buffers", 7639040},
	} {
		s.Printf("%-24s %10d bytes", row.name, row.bytes)
	}
}

// resetlogsKey marks an incomplete recovery awaiting OPEN RESETLOGS.
const resetlogsKey = "_resetlogs"

func (q *sqlplus) startup(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.admin() {
		return
	}
	force, target, pfile := false, ora.ModeOpen, ""
	words := strings.Fields(c.Line)[1:]
	for _, w := range words {
		switch u := strings.ToUpper(w); {
		case u == "FORCE":
			force = true
		case u == "NOMOUNT":
			target = ora.ModeNoMount
		case u == "MOUNT":
			target = ora.ModeMounted
		case u == "OPEN" || u == "RESTRICT" || u == "UPGRADE":
		case strings.HasPrefix(u, "PFILE="):
			pfile = strings.Trim(w[len("PFILE="):], `'"`)
		default:
			s.Println("SP2-0714: invalid combination of STARTUP options")
			return
		}
	}
	if q.up() && !force {
		printError(s, ora.ErrAlreadyRunning)
		return
	}
	sid := s.Env.Value("ORACLE_SID")
	params := home(s) + "/dbs/spfile" + sid + ".ora"
	if pfile != "" {
		params = s.FS.Abs(pfile)
	}
	if !st.DatabaseCreated || !localSID(s) || !s.FS.IsFile(params) {
		if pfile == "" {
			params = home(s) + "/dbs/init" + sid + ".ora"
		}
		printError(s, ora.ErrParameterFile, ora.ErrNoParameterFile(params))
		return
	}
	if force && q.up() {
		alert(s, "Shutting down instance (abort) (OS id: 4242)", "Instance shutdown complete (OS id: 4242)")
	}
	for k, v := range st.Parameters {
		if name, ok := strings.CutPrefix(k, spfilePrefix); ok {
			delete(st.Parameters, k)
			st.SetParameter(name, v)
		}
	}
	s.Println("ORACLE instance started.")
	s.Println("")
	printSGA(s)
	alert(s, "Starting ORACLE instance (normal) (OS id: 4242)")
	mode := target
	if target != ora.ModeNoMount {
		s.Println("Database mounted.")
	}
	if target == ora.ModeOpen {
		if _, pending := st.Parameter(resetlogsKey); pending {
			printError(s, ora.ErrNeedResetlogs)
			mode = ora.ModeMounted
		} else {
			s.Println("Database opened.")
			alert(s, "Completed: ALTER DATABASE OPEN")
		}
	}
	st.SetMode(mode)
}

func (q *sqlplus) shutdown(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.admin() {
		return
	}
	how := strings.ToUpper(c.Groups[1])
	switch how {
	case "", "NORMAL", "IMMEDIATE", "TRANSACTIONAL", "ABORT":
	default:
		s.Println("SP2-0717: illegal SHUTDOWN option")
		return
	}
	if !q.up() {
		for _, l := range notAvailable()[:5] {
			s.Println(l)
		}
		return
	}
	if how != "ABORT" {
		switch st.DatabaseMode {
		case ora.ModeOpen:
			s.Println("Database closed.")
			s.Println("Database dismounted.")
		case ora.ModeMounted:
			printError(s, ora.ErrNotOpen)
			s.Println("")
			s.Println("")
			s.Println("Database dismounted.")
		case ora.ModeNoMount:
			printError(s, ora.ErrNotMounted)
			s.Println("")
			s.Println("")
		}
	}
	s.Println("ORACLE instance shut down.")
	alert(s, "Shutting down ORACLE instance ("+strings.ToLower(orDefault(how, "normal"))+") (OS id: 4242)", "Instance shutdown complete (OS id: 4242)")
	st.SetMode(ora.ModeShutdown)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (q *sqlplus) alterDatabase(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.ready(started, nil) || !q.require("ALTER DATABASE") {
		return
	}
	clause := strings.Join(strings.Fields(strings.ToUpper(c.Groups[1])), " ")
	mode := st.DatabaseMode
	switch {
	case clause == "MOUNT" || clause == "MOUNT EXCLUSIVE":
		if mode != ora.ModeNoMount {
			q.fail(ora.ErrAlreadyMounted)
			return
		}
		st.SetMode(ora.ModeMounted)
		alert(s, "Completed: ALTER DATABASE MOUNT")
	case strings.HasPrefix(clause, "OPEN"):
		opt := strings.TrimSpace(strings.TrimPrefix(clause, "OPEN"))
		_, pending := st.Parameter(resetlogsKey)
		switch {
		case mode == ora.ModeNoMount:
			q.fail(ora.ErrNotMounted)
			return
		case mode == ora.ModeOpen:
			q.fail(ora.ErrAlreadyOpen)
			return
		case opt == "RESETLOGS" && !pending:
			q.fail(ora.ErrResetlogsInvalid)
			return
		case pending && opt != "RESETLOGS":
			q.fail(ora.ErrNeedResetlogs)
			return
		case opt != "" && opt != "RESETLOGS" && opt != "NORESETLOGS" && opt != "READ ONLY" && opt != "READ WRITE":
			q.fail(ora.ErrBadAlterDatabase)
			return
		}
		if pending {
			delete(st.Parameters, resetlogsKey)
		}
		st.SetMode(ora.ModeOpen)
		alert(s, "Completed: ALTER DATABASE OPEN "+opt)
	case clause == "ARCHIVELOG" || clause == "NOARCHIVELOG":
		if !q.exclusiveMount() {
			return
		}
		if clause == "NOARCHIVELOG" && st.FlashbackOn {
			q.fail(ora.ErrFlashbackEnabled)
			return
		}
		st.ArchivelogMode = clause == "ARCHIVELOG"
		st.Save()
		alert(s, "Completed: ALTER DATABASE "+clause)
	case clause == "FLASHBACK ON" || clause == "FLASHBACK OFF":
		if mode == ora.ModeNoMount {
			q.fail(ora.ErrNotMounted)
			return
		}
		on := clause == "FLASHBACK ON"
		if on && !st.ArchivelogMode {
			q.fail(ora.ErrFlashbackLogging, ora.ErrNoMediaRecovery)
			return
		}
		st.FlashbackOn = on
		st.Save()
	case strings.HasPrefix(clause, "DATAFILE "):
		if mode == ora.ModeNoMount {
			q.fail(ora.ErrNotMounted)
			return
		}
		if !q.alterDatafile(c.Groups[1]) {
			return
		}
	case strings.HasPrefix(clause, "BACKUP CONTROLFILE"),
		strings.HasPrefix(clause, "ADD LOGFILE"),
		strings.HasPrefix(clause, "FORCE LOGGING"),
		strings.HasPrefix(clause, "NO FORCE LOGGING"),
		strings.HasPrefix(clause, "ADD SUPPLEMENTAL LOG DATA"):
		if mode == ora.ModeNoMount {
			q.fail(ora.ErrNotMounted)
			return
		}
	default:
		q.fail(ora.ErrBadAlterDatabase)
		return
	}
	q.done("Database altered.")
}

// exclusiveMount checks the mounted-but-closed state log mode changes need.
func (q *sqlplus) exclusiveMount() bool {
	switch q.s.Oracle.DatabaseMode {
	case ora.ModeNoMount:
		q.fail(ora.ErrNotMounted)
	case ora.ModeOpen:
		q.fail(ora.ErrMustBeMounted)
	default:
		return true
	}
	return false
}

func (q *sqlplus) alterSystem(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.ready(started, nil) || !q.require("ALTER SYSTEM") {
		return
	}
	clause := strings.Join(strings.Fields(strings.ToUpper(c.Groups[1])), " ")
	switch {
	case clause == "SWITCH LOGFILE" || clause == "ARCHIVE LOG CURRENT":
		if !q.ready(opened, nil) {
			return
		}
		st.NextSCN()
		st.Save()
		alert(s, "Thread 1 advanced to log sequence "+fmt.Sprint(st.CurrentSCN%97+1)+" (LGWR switch)")
	case clause == "CHECKPOINT" || clause == "CHECKPOINT GLOBAL":
		if !q.ready(mounted, nil) {
			return
		}
		st.NextSCN()
		st.Save()
	case strings.HasPrefix(clause, "SET "):
		if !q.setParameter(c.Groups[1][len("SET "):]) {
			return
		}
	case clause == "REGISTER",
		strings.HasPrefix(clause, "FLUSH "),
		strings.HasPrefix(clause, "KILL SESSION"),
		strings.HasPrefix(clause, "RESET "):
	default:
		q.fail(ora.ErrNoSuchSystemParam)
		return
	}
	q.done("System altered.")
}

func (q *sqlplus) host(c modal.Call) {
	cmd := strings.TrimSpace(c.Groups[1])
	if cmd == "" {
		return
	}
	q.s.Exec(cmd)
}

// runScript executes a SQL file through the session, line by line.
func (q *sqlplus) runScript(name string) {
	s := q.s
	p := name
	if strings.HasPrefix(p, "?") {
		p = home(s) + p[1:]
	}
	if path.Ext(p) == "" {
		p += ".sql"
	}
	finish := func(failed bool) {
		if (failed || q.batch) && s.Modal.Top() == q.frame {
			s.Modal.Pop()
		}
	}
	switch path.Base(p) {
	case "awrrpt.sql", "awrrpti.sql":
		if q.ready(opened, ora.ErrFixedViewsOnly) && q.require("SELECT ANY DICTIONARY") {
			workloadReport(s, reportAWR, finish)
		}
		return
	case "addmrpt.sql":
		if q.ready(opened, ora.ErrFixedViewsOnly) && q.require("SELECT ANY DICTIONARY") {
			workloadReport(s, reportADDM, finish)
		}
		return
	}
	content, ok := s.FS.ReadFile(p)
	if !ok {
		s.Printf("SP2-0310: unable to open file %q", name)
		return
	}
	depth := s.Modal.Depth()
	for _, line := range shell.SplitLines(content) {
		top := s.Modal.Top()
		if top == nil || s.Modal.Depth() < depth {
			return
		}
		top.Handle(line)
	}
}

func (q *sqlplus) spool(c modal.Call) {
	target := c.Groups[1]
	switch strings.ToUpper(target) {
	case "OFF", "OUT":
		return
	}
	if path.Ext(target) == "" {
		target += ".lst"
	}
	writeFile(q.s, q.s.FS.Abs(target), "")
}

func (q *sqlplus) password(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if q.user == "" {
		printError(s, ora.ErrNotConnected)
		return
	}
	who := q.user
	if c.Groups[1] != "" {
		who = strings.ToUpper(c.Groups[1])
	}
	self := who == q.user
	s.Printf("Changing password for %s", who)
	change := func() {
		askSecret(s, "New password: ", func(pw string) {
			askSecret(s, "Retype new password: ", func(again string) {
				if pw != again {
					s.Println("ERROR:")
					s.Println("ORA-28008: Passwords do not match")
					s.Println("")
					s.Println("")
					s.Println("Password unchanged")
					return
				}
				if err := st.AlterPassword(who, pw); err != nil {
					s.Println("ERROR:")
					s.Println(err.Error())
					s.Println("")
					s.Println("")
					s.Println("Password unchanged")
					return
				}
				s.Println("Password changed")
			})
		})
	}
	if !self {
		if !q.may("ALTER USER") {
			q.fail(ora.ErrInsufficientPrivs)
			return
		}
		change()
		return
	}
	askSecret(s, "Old password: ", func(old string) {
		if u, ok := st.User(who); !q.sysdba() && (!ok || u.Password != old) {
			s.Println("ERROR:")
			s.Println("ORA-28008: invalid old password")
			s.Println("")
			s.Println("")
			s.Println("Password unchanged")
			return
		}
		change()
	})
}

func (q *sqlplus) help(c modal.Call) {
	s := q.s
	topic := strings.ToUpper(strings.TrimSpace(c.Groups[1]))
	if topic == "" || topic == "INDEX" {
		s.Println("")
		s.Println("Enter Help [topic] for help.")
		s.Println("")
		for _, row := range []string{
			" @             COPY         PAUSE                    SHUTDOWN",
			" @@            DEFINE       PRINT                    SPOOL",
			" /             DEL          PROMPT                   SQLPLUS",
			" ACCEPT        DESCRIBE     QUIT                     START",
			" APPEND        DISCONNECT   RECOVER                  STARTUP",
			" ARCHIVE LOG   EDIT         REMARK                   STORE",
			" ATTRIBUTE     EXECUTE      REPFOOTER                TIMING",
			" BREAK         EXIT         REPHEADER                TTITLE",
			" BTITLE        GET          RESERVED WORDS (SQL)     UNDEFINE",
			" CHANGE        HELP         RESERVED WORDS (PL/SQL)  VARIABLE",
			" CLEAR         HOST         RUN                      WHENEVER OSERROR",
			" COLUMN        INPUT        SAVE                     WHENEVER SQLERROR",
			" COMPUTE       LIST         SET                      XQUERY",
			" CONNECT       PASSWORD     SHOW",
		} {
			s.Println(row)
		}
		s.Println("")
		return
	}
	s.Printf("SP2-0172: No HELP matching this topic was found.")
}
