package oracle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"orasim/internal/logging"
	"orasim/internal/modal"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// rman is one Recovery Manager session.
type rman struct {
	s         *shell.Session
	tool      *modal.Tool
	connected bool
	remote    string
	// announced is set once the control-file repository line was printed.
	announced bool
}

var (
	errRmanNotConnected = &ora.Error{Code: "RMAN-06171", Text: "not connected to target database"}
	errRmanSession      = &ora.Error{Code: "RMAN-06403", Text: "could not obtain a fully authorized session"}
	errRmanNoBackup     = &ora.Error{Code: "RMAN-06023", Text: "no backup or copy of datafile 1 found to restore"}
	errRmanRestoreFail  = &ora.Error{Code: "RMAN-06026", Text: "some targets not found - aborting restore"}
	errRmanArchivelog   = &ora.Error{Code: "RMAN-06149", Text: "cannot BACKUP ARCHIVELOG in NOARCHIVELOG mode"}
	errRmanDatafileBusy = &ora.Error{Code: "ORA-19573", Text: "cannot obtain exclusive enqueue for datafile 1"}
)

func cmdRman(s *shell.Session, args []string) {
	r := &rman{s: s}
	opts := map[string]string{}
	for i := 1; i < len(args); i++ {
		key := strings.ToLower(strings.TrimLeft(args[i], "-"))
		if k, v, ok := strings.Cut(key, "="); ok {
			opts[k] = args[i][len(args[i])-len(v):]
			continue
		}
		switch key {
		case "target", "catalog", "auxiliary", "cmdfile", "log":
			if i+1 < len(args) {
				opts[key] = args[i+1]
				i++
			}
		case "nocatalog", "msgno":
		default:
			rmanStack(s, &ora.Error{Code: "RMAN-00552", Text: "syntax error in command line arguments"},
				&ora.Error{Code: "RMAN-01009", Text: `syntax error: found "identifier": expecting one of: "append, at, auxiliary, catalog, cmdfile, log, msglog, msgno, nocatalog, pipe, script, send, target, timeout, using, @, ;"`},
				&ora.Error{Code: "RMAN-01008", Text: "the bad identifier was: " + args[i]})
			return
		}
	}
	toolBanner(s, "Recovery Manager", "1982")
	logging.Oracle("rman start target=%q", opts["target"])
	drive(s, func() {
		r.enter()
		if t := opts["target"]; t != "" {
			r.connect(t)
		}
		if f := opts["cmdfile"]; f != "" {
			r.runFile(f)
		}
	})
}

func (r *rman) enter() {
	r.tool = &modal.Tool{
		Name:    "rman",
		Prompt:  func() string { return "RMAN> " },
		Rules:   r.rules(),
		Unknown: r.unknown,
		OnExit: func() {
			r.s.Println("")
			r.s.Println("")
			r.s.Println("Recovery Manager complete.")
		},
	}
	r.tool.Enter(r.s.Modal)
}

// rmanStack prints RMAN's error banner followed by errs.
func rmanStack(s *shell.Session, errs ...*ora.Error) {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	rmanLines(s, lines)
}

func rmanLines(s *shell.Session, lines []string) {
	s.Println("")
	s.Println("RMAN-00571: ===========================================================")
	s.Println("RMAN-00569: =============== ERROR MESSAGE STACK FOLLOWS ===============")
	s.Println("RMAN-00571: ===========================================================")
	s.Print(lines...)
	s.Println("")
}

// failure prints the stack for a failed command.
func (r *rman) failure(command string, errs ...*ora.Error) {
	head := &ora.Error{Code: "RMAN-03002", Text: fmt.Sprintf("failure of %s command at %s", command, r.s.Oracle.Now().Format("01/02/2006 15:04:05"))}
	rmanStack(r.s, append([]*ora.Error{head}, errs...)...)
}

func (r *rman) up() bool {
	if r.remote != "" {
		return r.s.Oracle.DatabaseStarted
	}
	return instanceUp(r.s)
}

func (r *rman) connect(spec string) {
	s, st := r.s, r.s.Oracle
	l := parseLogon(spec)
	if l.priv == "" {
		l.priv = "SYSDBA"
	}
	login := &sqlplus{s: s}
	if lines := login.authenticate(l); lines != nil {
		rmanLines(s, lines)
		return
	}
	r.connected, r.remote, r.announced = true, l.service, false
	switch {
	case !r.up():
		s.Println("connected to target database (not started)")
	case st.DatabaseMode == ora.ModeNoMount:
		s.Printf("connected to target database: %s (not mounted)", st.DBName())
	case st.DatabaseMode == ora.ModeMounted:
		s.Printf("connected to target database: %s (DBID=%s, not open)", st.DBName(), dbid(st.DBName()))
	default:
		s.Printf("connected to target database: %s (DBID=%s)", st.DBName(), dbid(st.DBName()))
	}
}

// ready checks the target connection for command and the instance level it
// needs.
func (r *rman) ready(command string, need level) bool {
	st := r.s.Oracle
	switch {
	case !r.connected:
		r.failure(command, errRmanNotConnected)
	case need > anyState && !r.up():
		r.failure(command, errRmanSession, ora.ErrNotAvailable, ora.ErrNoSharedMemory)
	case need >= mounted && st.DatabaseMode == ora.ModeNoMount:
		r.failure(command, ora.ErrNotMounted)
	case need >= opened && st.DatabaseMode != ora.ModeOpen:
		r.failure(command, ora.ErrNotOpen)
	default:
		if need >= mounted && !r.announced {
			r.s.Println("using target database control file instead of recovery catalog")
			r.announced = true
		}
		return true
	}
	return false
}

func (r *rman) rules() []modal.Rule {
	return []modal.Rule{
		rule(modal.Regex(`^CONNECT\s+TARGET\s*(.*)$`), func(c modal.Call) { r.connect(strings.TrimSpace(c.Groups[1])) }),
		rule(modal.Regex(`^BACKUP\s+(.+)$`), r.backup),
		rule(modal.Regex(`^LIST\s+BACKUP(?:\s+OF\s+\w+(?:\s+ALL)?)?(\s+SUMMARY)?$`), r.listBackup),
		rule(modal.Regex(`^LIST\s+RESTORE\s+POINT\s+(ALL|\S+)$`), r.listRestorePoints),
		rule(modal.Exact("REPORT SCHEMA"), r.reportSchema),
		rule(modal.Exact("REPORT OBSOLETE"), func(modal.Call) { r.obsolete("report", false, false) }),
		rule(modal.Exact("SHOW ALL"), r.showAll),
		rule(modal.Regex(`^CONFIGURE\s+(.+)$`), r.configure),
		rule(modal.Regex(`^CROSSCHECK\s+(BACKUP|ARCHIVELOG\s+ALL)$`), r.crosscheck),
		rule(modal.Regex(`^DELETE\s+(NOPROMPT\s+)?OBSOLETE$`), func(c modal.Call) { r.obsolete("delete", true, c.Groups[1] != "") }),
		rule(modal.Regex(`^DELETE\s+(NOPROMPT\s+)?EXPIRED\s+BACKUP$`), r.deleteExpired),
		rule(modal.Regex(`^RESTORE\s+DATABASE(?:\s+.*)?$`), r.restore),
		rule(modal.Regex(`^RECOVER\s+DATABASE(?:\s+.*)?$`), r.recover),
		rule(modal.Regex(`^STARTUP(?:\s+(FORCE))?(?:\s+(NOMOUNT|MOUNT))?$`), r.startup),
		rule(modal.Regex(`^SHUTDOWN(?:\s+(NORMAL|IMMEDIATE|TRANSACTIONAL|ABORT))?$`), r.shutdown),
		rule(modal.Regex(`^ALTER\s+DATABASE\s+(MOUNT|OPEN(?:\s+RESETLOGS)?)$`), r.alterDatabase),
		rule(modal.Regex(`^SQL\s+'(.+)'$`), r.sql),
		rule(modal.Regex(`^HOST\s+'(.+)'$`), func(c modal.Call) { r.s.Exec(c.Groups[1]) }),
		rule(modal.Regex(`^RUN\s*\{(.*)\}$`), func(c modal.Call) { r.runBlock(strings.Split(c.Groups[1], ";")) }),
		rule(modal.Regex(`^RUN\s*\{(.*)$`), func(c modal.Call) {
			first := c.Groups[1]
			modal.Collect(r.s.Modal, "2> ", "}", func(lines []string) {
				r.runBlock(append(strings.Split(first, ";"), strings.Split(strings.Join(lines, " "), ";")...))
			})
		}),
		rule(modal.Regex(`^@(\S+)$`), func(c modal.Call) { r.runFile(c.Groups[1]) }),
	}
}

func (r *rman) unknown(c modal.Call) {
	word := strings.Fields(c.Line)[0]
	rmanStack(r.s,
		&ora.Error{Code: "RMAN-00558", Text: "error encountered while parsing input commands"},
		&ora.Error{Code: "RMAN-01009", Text: `syntax error: found "identifier": expecting one of: "advise, allocate, alter, analyze, associate statistics, audit, backup, begin, @, call, catalog, change, comment, commit, configure, connect, convert, copy, create, create catalog, create global, create or replace global, create or replace script, create script, crosscheck, declare, delete, delete from, describe, describe catalog, disassociate statistics, drop, drop catalog, drop database, duplicate, exit, explain plan, flashback, flashback table, grant, grant catalog, grant register, host, import, insert, list, lock, merge, mount, noaudit, open, print, purge, quit, recover, register, release"`},
		&ora.Error{Code: "RMAN-01008", Text: "the bad identifier was: " + word},
		&ora.Error{Code: "RMAN-01007", Text: "at line 1 column 1 file: standard input"})
}

// runBlock executes the statements of a RUN block in order.
func (r *rman) runBlock(stmts []string) {
	for _, stmt := range stmts {
		c, ok := modal.Normalize(stmt)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(c.Upper, "ALLOCATE CHANNEL"):
			name := strings.Fields(c.Line)[2]
			r.s.Printf("allocated channel: %s", name)
			r.s.Printf("channel %s: SID=%d device type=DISK", name, 40+len(name))
			r.s.Println("")
		case strings.HasPrefix(c.Upper, "RELEASE CHANNEL"):
			r.s.Printf("released channel: %s", strings.Fields(c.Line)[2])
		case strings.HasPrefix(c.Upper, "SET "):
			r.s.Println("executing command: " + strings.Join(strings.Fields(c.Upper)[:2], " "))
		default:
			r.tool.Dispatch(c)
		}
	}
}

func (r *rman) runFile(name string) {
	s := r.s
	content, ok := s.FS.ReadFile(name)
	if !ok {
		rmanStack(s, &ora.Error{Code: "RMAN-06557", Text: fmt.Sprintf("unable to open file %q", s.FS.Abs(name))})
		return
	}
	for _, line := range shell.SplitLines(content) {
		top := s.Modal.Top()
		if top == nil {
			return
		}
		top.Handle(line)
	}
}

// fra is the fast recovery area of the database.
func fra(s *shell.Session) string {
	return base(s) + "/fast_recovery_area/" + strings.ToUpper(s.Oracle.DBName())
}

// pieceName derives a backup piece path from the record, as Oracle-managed
// file names do.
func pieceName(s *shell.Session, rec ora.BackupRecord) string {
	day := rec.Completed
	if len(day) >= 10 {
		day = strings.ReplaceAll(day[:10], "-", "_")
	}
	if rec.Type == ora.BackupControl {
		return fmt.Sprintf("%s/autobackup/%s/o1_mf_s_%d_.bkp", fra(s), day, rec.SCN)
	}
	code := map[string]string{ora.BackupFull: "nnndf", ora.BackupArchivelog: "annnn"}[rec.Type]
	if rec.Type == ora.BackupIncr {
		code = fmt.Sprintf("nnnd%d", rec.Level)
	}
	return fmt.Sprintf("%s/backupset/%s/o1_mf_%s_%s_%d_.bkp", fra(s), day, code, rec.Tag, rec.Key)
}

func (r *rman) channel() {
	r.s.Println("allocated channel: ORA_DISK_1")
	r.s.Println("channel ORA_DISK_1: SID=41 device type=DISK")
}

// store records a backup set and writes its piece.
func (r *rman) store(kind string, level int, compressed bool) ora.BackupRecord {
	rec := r.s.Oracle.AddBackup(kind, level, compressed)
	p := pieceName(r.s, rec)
	writeFile(r.s, p, "")
	r.s.FS.SetSize(p, rec.SizeBytes)
	return rec
}

func (r *rman) piece(rec ora.BackupRecord) {
	s := r.s
	date := oracleDate(s)
	s.Printf("channel ORA_DISK_1: starting piece 1 at %s", date)
	s.Printf("channel ORA_DISK_1: finished piece 1 at %s", date)
	s.Printf("piece handle=%s tag=%s comment=NONE", pieceName(s, rec), rec.Tag)
	s.Printf("channel ORA_DISK_1: backup set complete, elapsed time: %s", rec.Elapsed)
}

func (r *rman) backup(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("backup", mounted) {
		return
	}
	what := strings.Join(strings.Fields(strings.ToUpper(c.Groups[1])), " ")
	compressed := strings.Contains(what, "AS COMPRESSED BACKUPSET")
	what = strings.TrimSpace(strings.Replace(what, "AS COMPRESSED BACKUPSET", "", 1))
	what = strings.TrimSpace(strings.Replace(what, "AS BACKUPSET", "", 1))
	level := -1
	if strings.HasPrefix(what, "INCREMENTAL LEVEL ") {
		fields := strings.Fields(what)
		level, _ = strconv.Atoi(fields[2])
		what = strings.Join(fields[3:], " ")
	}
	archive := strings.Contains(what, "ARCHIVELOG")
	datafiles := strings.HasPrefix(what, "DATABASE") || strings.HasPrefix(what, "TABLESPACE") || strings.HasPrefix(what, "DATAFILE")
	controlOnly := strings.HasPrefix(what, "CURRENT CONTROLFILE") || strings.HasPrefix(what, "SPFILE")
	if !archive && !datafiles && !controlOnly {
		r.unknown(modal.Call{Line: what})
		return
	}
	if archive && !st.ArchivelogMode {
		r.failure("backup", errRmanArchivelog)
		return
	}
	if datafiles && st.DatabaseMode == ora.ModeOpen && !st.ArchivelogMode {
		r.failure("backup", ora.ErrNoArchivelog)
		return
	}
	date := oracleDate(s)
	if archive {
		st.NextSCN()
		s.Println("")
		s.Println("")
		s.Printf("Starting backup at %s", date)
		s.Println("current log archived")
		r.channel()
		s.Println("channel ORA_DISK_1: starting archived log backup set")
		s.Println("channel ORA_DISK_1: specifying archived log(s) in backup set")
		s.Printf("input archived log thread=1 sequence=%d RECID=1 STAMP=1163237400", st.CurrentSCN%97+1)
		r.piece(r.store(ora.BackupArchivelog, -1, compressed))
		s.Printf("Finished backup at %s", date)
	}
	if datafiles {
		s.Println("")
		s.Printf("Starting backup at %s", date)
		if !archive {
			r.channel()
		}
		kind := "full"
		if level >= 0 {
			kind = fmt.Sprintf("incremental level %d", level)
		}
		if compressed {
			kind = "compressed " + kind
		}
		s.Printf("channel ORA_DISK_1: starting %s datafile backup set", kind)
		s.Println("channel ORA_DISK_1: specifying datafile(s) in backup set")
		for _, f := range datafileList(st) {
			s.Printf("input datafile file number=%05d name=%s", f.Order, f.Datafile)
		}
		kindRec := ora.BackupFull
		if level >= 0 {
			kindRec = ora.BackupIncr
		}
		r.piece(r.store(kindRec, level, compressed))
		s.Printf("Finished backup at %s", date)
	}
	if archive && datafiles {
		s.Println("")
		s.Printf("Starting backup at %s", date)
		s.Println("current log archived")
		s.Println("using channel ORA_DISK_1")
		s.Println("channel ORA_DISK_1: starting archived log backup set")
		r.piece(r.store(ora.BackupArchivelog, -1, compressed))
		s.Printf("Finished backup at %s", date)
	}
	s.Println("")
	s.Printf("Starting Control File and SPFILE Autobackup at %s", date)
	rec := r.store(ora.BackupControl, -1, false)
	s.Printf("piece handle=%s comment=NONE", pieceName(s, rec))
	s.Printf("Finished Control File and SPFILE Autobackup at %s", date)
	logging.Oracle("rman backup %q complete (%d sets)", what, len(st.RMANBackups))
}

// datafileList returns the non-temporary tablespaces' files in file# order.
func datafileList(st *ora.State) []*ora.Tablespace {
	var out []*ora.Tablespace
	for _, name := range st.TablespaceNames() {
		t, _ := st.Tablespace(name)
		if t.Contents != "TEMPORARY" {
			out = append(out, t)
		}
	}
	return out
}

// rmanSize renders a byte count the way LIST BACKUP does.
func rmanSize(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.2fG", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2fM", float64(b)/(1<<20))
	default:
		return fmt.Sprintf("%.2fK", float64(b)/(1<<10))
	}
}

func levelCode(rec ora.BackupRecord) string {
	switch rec.Type {
	case ora.BackupIncr:
		return strconv.Itoa(rec.Level)
	case ora.BackupArchivelog:
		return "A"
	}
	return "F"
}

func (r *rman) listBackup(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("list", mounted) {
		return
	}
	if len(st.RMANBackups) == 0 {
		s.Println("specification does not match any backup in the repository")
		return
	}
	s.Println("")
	if c.Groups[1] != "" {
		s.Println("List of Backups")
		s.Println("===============")
		s.Println("Key     TY LV S Device Type Completion Time #Pieces #Copies Compressed Tag")
		s.Println("------- -- -- - ----------- --------------- ------- ------- ---------- ---")
		for _, rec := range st.RMANBackups {
			s.Printf("%-7d B  %-2s %s DISK        %-15s 1       1       %-10s %s",
				rec.Key, levelCode(rec), rec.Status[:1], ora.FormatOracleDate(rec.Completed), yesNo(rec.Compressed), rec.Tag)
		}
		s.Println("")
		return
	}
	s.Println("List of Backup Sets")
	s.Println("===================")
	for _, rec := range st.RMANBackups {
		typ := "Full"
		if rec.Type == ora.BackupIncr {
			typ = "Incr"
		}
		lv := ""
		if rec.Level >= 0 {
			lv = strconv.Itoa(rec.Level)
		}
		s.Println("")
		s.Println("")
		s.Println("BS Key  Type LV Size       Device Type Elapsed Time Completion Time")
		s.Println("------- ---- -- ---------- ----------- ------------ ---------------")
		s.Printf("%-7d %-4s %-2s %-10s DISK        %-12s %s", rec.Key, typ, lv, rmanSize(rec.SizeBytes), rec.Elapsed, ora.FormatOracleDate(rec.Completed))
		s.Printf("        BP Key: %d   Status: %s  Compressed: %s  Tag: %s", rec.Key, rec.Status, yesNo(rec.Compressed), rec.Tag)
		s.Printf("        Piece Name: %s", pieceName(s, rec))
		switch rec.Type {
		case ora.BackupControl:
			s.Println("  SPFILE Included: Modification time: " + ora.FormatOracleDate(rec.Completed))
			s.Printf("  Control File Included: Ckp SCN: %d       Ckp time: %s", rec.SCN, ora.FormatOracleDate(rec.Completed))
		case ora.BackupArchivelog:
			s.Println("")
			s.Println("  List of Archived Logs in backup set " + strconv.Itoa(rec.Key))
			s.Println("  Thrd Seq     Low SCN    Low Time  Next SCN   Next Time")
			s.Println("  ---- ------- ---------- --------- ---------- ---------")
			s.Printf("  1    %-7d %-10d %s %-10d %s", rec.SCN%97+1, rec.SCN-1024, ora.FormatOracleDate(rec.Completed), rec.SCN, ora.FormatOracleDate(rec.Completed))
		default:
			s.Printf("  List of Datafiles in backup set %d", rec.Key)
			s.Println("  File LV Type Ckp SCN    Ckp Time  Abs Fuz SCN Sparse Name")
			s.Println("  ---- -- ---- ---------- --------- ----------- ------ ----")
			for _, f := range datafileList(st) {
				s.Printf("  %-4d %-2s %-4s %-10d %-9s %-11s %-6s %s", f.Order, lv, typ, rec.SCN, ora.FormatOracleDate(rec.Completed), "", "NO", f.Datafile)
			}
		}
	}
	s.Println("")
}

func (r *rman) listRestorePoints(modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("list", mounted) {
		return
	}
	s.Println("SCN              RSP Time  Type       Time      Name")
	s.Println("---------------- --------- ---------- --------- ----")
	for _, name := range st.RestorePointNames() {
		rp, _ := st.RestorePoint(name)
		typ := ""
		if rp.Guarantee {
			typ = "GUARANTEED"
		}
		s.Printf("%-16d %-9s %-10s %s %s", rp.SCN, "", typ, ora.FormatOracleDate(rp.Time), name)
	}
}

func (r *rman) reportSchema(modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("report", mounted) {
		return
	}
	s.Printf("Report of database schema for database with db_unique_name %s", st.DBName())
	s.Println("")
	s.Println("List of Permanent Datafiles")
	s.Println("===========================")
	s.Println("File Size(MB) Tablespace           RB segs Datafile Name")
	s.Println("---- -------- -------------------- ------- ------------------------")
	var temps []string
	for _, name := range st.TablespaceNames() {
		t, _ := st.Tablespace(name)
		mb := sizeBytes(t.Size) >> 20
		if t.Contents == "TEMPORARY" {
			temps = append(temps, fmt.Sprintf("%-4d %-8d %-20s %-11d %s", 1, mb, name, 32767, t.Datafile))
			continue
		}
		rb := "NO"
		if t.Contents == "UNDO" || name == "SYSTEM" {
			rb = "YES"
		}
		s.Printf("%-4d %-8d %-20s %-7s %s", t.Order, mb, name, rb, t.Datafile)
	}
	s.Println("")
	s.Println("List of Temporary Files")
	s.Println("=======================")
	s.Println("File Size(MB) Tablespace           Maxsize(MB) Tempfile Name")
	s.Println("---- -------- -------------------- ----------- --------------------")
	s.Print(temps...)
	s.Println("")
}

// rmanDefaults are the configuration settings SHOW ALL lists, keyed by the
// words CONFIGURE uses to name them.
var rmanDefaults = []struct{ key, value string }{
	{"RETENTION POLICY", "RETENTION POLICY TO REDUNDANCY 1"},
	{"BACKUP OPTIMIZATION", "BACKUP OPTIMIZATION OFF"},
	{"DEFAULT DEVICE TYPE", "DEFAULT DEVICE TYPE TO DISK"},
	{"CONTROLFILE AUTOBACKUP", "CONTROLFILE AUTOBACKUP ON"},
	{"CONTROLFILE AUTOBACKUP FORMAT", "CONTROLFILE AUTOBACKUP FORMAT FOR DEVICE TYPE DISK TO '%F'"},
	{"DEVICE TYPE", "DEVICE TYPE DISK PARALLELISM 1 BACKUP TYPE TO BACKUPSET"},
	{"DATAFILE BACKUP COPIES", "DATAFILE BACKUP COPIES FOR DEVICE TYPE DISK TO 1"},
	{"ARCHIVELOG BACKUP COPIES", "ARCHIVELOG BACKUP COPIES FOR DEVICE TYPE DISK TO 1"},
	{"MAXSETSIZE", "MAXSETSIZE TO UNLIMITED"},
	{"ENCRYPTION FOR DATABASE", "ENCRYPTION FOR DATABASE OFF"},
	{"ENCRYPTION ALGORITHM", "ENCRYPTION ALGORITHM 'AES128'"},
	{"COMPRESSION ALGORITHM", "COMPRESSION ALGORITHM 'BASIC' AS OF RELEASE 'DEFAULT' OPTIMIZE FOR LOAD TRUE"},
	{"RMAN OUTPUT", "RMAN OUTPUT TO KEEP FOR 7 DAYS"},
	{"ARCHIVELOG DELETION POLICY", "ARCHIVELOG DELETION POLICY TO NONE"},
	{"SNAPSHOT CONTROLFILE NAME", "SNAPSHOT CONTROLFILE NAME TO '{HOME}/dbs/snapcf_{SID}.f'"},
}

const rmanPrefix = "_rman."

// configKey finds the longest setting name clause starts with.
func configKey(clause string) string {
	best := ""
	for _, d := range rmanDefaults {
		if strings.HasPrefix(clause, d.key) && len(d.key) > len(best) {
			best = d.key
		}
	}
	return best
}

// configured returns a setting's current value and whether it is a default.
func (r *rman) configured(key string) (string, bool) {
	if v, ok := r.s.Oracle.Parameter(rmanPrefix + key); ok {
		return v, false
	}
	for _, d := range rmanDefaults {
		if d.key == key {
			return strings.NewReplacer("{HOME}", home(r.s), "{SID}", r.s.Oracle.SID).Replace(d.value), true
		}
	}
	return "", true
}

func (r *rman) showAll(modal.Call) {
	s := r.s
	if !r.ready("show", mounted) {
		return
	}
	s.Printf("RMAN configuration parameters for database with db_unique_name %s are:", s.Oracle.DBName())
	for _, d := range rmanDefaults {
		v, def := r.configured(d.key)
		line := "CONFIGURE " + v + ";"
		if def {
			line += " # default"
		}
		s.Println(line)
	}
	s.Println("")
}

func (r *rman) configure(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("configure", mounted) {
		return
	}
	clause := strings.Join(strings.Fields(strings.ToUpper(c.Groups[1])), " ")
	key := configKey(clause)
	if key == "" {
		r.unknown(modal.Call{Line: c.Groups[1]})
		return
	}
	old, def := r.configured(key)
	if strings.HasSuffix(clause, " CLEAR") {
		delete(st.Parameters, rmanPrefix+strings.ToLower(key))
		st.Save()
		s.Println("old RMAN configuration parameters:")
		s.Printf("CONFIGURE %s;", old)
		s.Println("RMAN configuration parameters are successfully reset to default value")
		return
	}
	if !def {
		s.Println("old RMAN configuration parameters:")
		s.Printf("CONFIGURE %s;", old)
	}
	// Quoted formats keep their case.
	value := clause
	if i := strings.IndexByte(c.Groups[1], '\''); i >= 0 {
		if j := strings.IndexByte(clause, '\''); j >= 0 {
			value = clause[:j] + c.Groups[1][i:]
		}
	}
	st.SetParameter(rmanPrefix+key, value)
	s.Println("new RMAN configuration parameters:")
	s.Printf("CONFIGURE %s;", value)
	s.Println("new RMAN configuration parameters are successfully stored")
}

// obsoleteSets applies the retention policy to the datafile backups.
func (r *rman) obsoleteSets() []ora.BackupRecord {
	st := r.s.Oracle
	policy, _ := r.configured("RETENTION POLICY")
	fields := strings.Fields(policy)
	n, _ := strconv.Atoi(fields[len(fields)-1])
	window := strings.Contains(policy, "RECOVERY WINDOW")
	if window {
		n, _ = strconv.Atoi(fields[len(fields)-2])
	}
	if strings.Contains(policy, "NONE") {
		return nil
	}
	recs := append([]ora.BackupRecord(nil), st.RMANBackups...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Key > recs[j].Key })
	cutoff := st.Now().AddDate(0, 0, -n)
	kept := map[string]int{}
	var out []ora.BackupRecord
	for _, rec := range recs {
		class := rec.Type
		if rec.Type == ora.BackupIncr && rec.Level == 0 {
			class = ora.BackupFull
		}
		kept[class]++
		if window {
			done, err := time.Parse("2006-01-02T15:04:05", rec.Completed)
			if err == nil && done.Before(cutoff) && kept[class] > 1 {
				out = append(out, rec)
			}
			continue
		}
		if kept[class] > n {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *rman) obsolete(verb string, remove, noprompt bool) {
	s := r.s
	if !r.ready(verb, mounted) {
		return
	}
	policy, _ := r.configured("RETENTION POLICY")
	s.Printf("RMAN retention policy will be applied to the command")
	s.Printf("RMAN retention policy is set to %s", strings.ToLower(strings.TrimPrefix(policy, "RETENTION POLICY TO ")))
	if remove {
		s.Println("using channel ORA_DISK_1")
	}
	obsolete := r.obsoleteSets()
	if len(obsolete) == 0 {
		s.Println("no obsolete backups found")
		return
	}
	r.removable("Deleting the following obsolete backups and copies:", obsolete, remove, noprompt)
}

func (r *rman) deleteExpired(c modal.Call) {
	if !r.ready("delete", mounted) {
		return
	}
	var expired []ora.BackupRecord
	for _, rec := range r.s.Oracle.RMANBackups {
		if rec.Status == "EXPIRED" {
			expired = append(expired, rec)
		}
	}
	r.s.Println("using channel ORA_DISK_1")
	if len(expired) == 0 {
		r.s.Println("specification does not match any backup in the repository")
		return
	}
	r.removable("", expired, true, c.Groups[1] != "")
}

// removable lists backup sets and, when asked to remove them, confirms
// unless noprompt is set.
func (r *rman) removable(title string, recs []ora.BackupRecord, remove, noprompt bool) {
	s := r.s
	if title != "" {
		s.Println(title)
	}
	s.Println("Type                 Key    Completion Time    Filename/Handle")
	s.Println("-------------------- ------ ------------------ --------------------")
	for _, rec := range recs {
		s.Printf("%-20s %-6d %-18s", "Backup Set", rec.Key, ora.FormatOracleDate(rec.Completed))
		s.Printf("  %-18s %-6d %-18s %s", "Backup Piece", rec.Key, ora.FormatOracleDate(rec.Completed), pieceName(s, rec))
	}
	if !remove {
		return
	}
	del := func() {
		gone := map[int]bool{}
		for _, rec := range recs {
			gone[rec.Key] = true
			s.FS.Rm(pieceName(s, rec), false)
			s.Println("deleted backup piece")
			s.Printf("backup piece handle=%s RECID=%d STAMP=%d", pieceName(s, rec), rec.Key, 1163237400+rec.Key)
		}
		st := s.Oracle
		kept := st.RMANBackups[:0]
		for _, rec := range st.RMANBackups {
			if !gone[rec.Key] {
				kept = append(kept, rec)
			}
		}
		st.RMANBackups = kept
		st.Save()
		s.Printf("Deleted %d objects", len(recs))
		s.Println("")
	}
	if noprompt {
		del()
		return
	}
	s.Println("")
	askLine(s, "Do you really want to delete the above objects (enter YES or NO)? ", func(answer string) {
		if strings.EqualFold(strings.TrimSpace(answer), "YES") {
			del()
		}
	})
}

func (r *rman) crosscheck(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("crosscheck", mounted) {
		return
	}
	r.channel()
	n := 0
	for i, rec := range st.RMANBackups {
		if strings.HasPrefix(strings.ToUpper(c.Groups[1]), "ARCHIVELOG") && rec.Type != ora.BackupArchivelog {
			continue
		}
		status := "AVAILABLE"
		if !s.FS.IsFile(pieceName(s, rec)) {
			status = "EXPIRED"
		}
		st.RMANBackups[i].Status = status
		s.Printf("crosschecked backup piece: found to be '%s'", status)
		s.Printf("backup piece handle=%s RECID=%d STAMP=%d", pieceName(s, rec), rec.Key, 1163237400+rec.Key)
		n++
	}
	st.Save()
	s.Printf("Crosschecked %d objects", n)
	s.Println("")
}

func (r *rman) restore(modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("restore", mounted) {
		return
	}
	if st.DatabaseMode == ora.ModeOpen {
		r.failure("restore", errRmanDatafileBusy)
		return
	}
	var set *ora.BackupRecord
	for i := len(st.RMANBackups) - 1; i >= 0; i-- {
		rec := st.RMANBackups[i]
		if rec.Status == "AVAILABLE" && (rec.Type == ora.BackupFull || (rec.Type == ora.BackupIncr && rec.Level == 0)) {
			set = &st.RMANBackups[i]
			break
		}
	}
	date := oracleDate(s)
	s.Printf("Starting restore at %s", date)
	r.channel()
	s.Println("")
	if set == nil {
		r.failure("restore", errRmanRestoreFail, errRmanNoBackup)
		return
	}
	s.Println("channel ORA_DISK_1: starting datafile backup set restore")
	s.Println("channel ORA_DISK_1: specifying datafile(s) to restore from backup set")
	for _, f := range datafileList(st) {
		s.Printf("channel ORA_DISK_1: restoring datafile %05d to %s", f.Order, f.Datafile)
		if !s.FS.IsFile(f.Datafile) {
			writeFile(s, f.Datafile, "")
			s.FS.SetSize(f.Datafile, sizeBytes(f.Size))
		}
	}
	s.Printf("channel ORA_DISK_1: reading from backup piece %s", pieceName(s, *set))
	s.Printf("channel ORA_DISK_1: piece handle=%s tag=%s", pieceName(s, *set), set.Tag)
	s.Println("channel ORA_DISK_1: restored backup piece 1")
	s.Printf("channel ORA_DISK_1: restore complete, elapsed time: %s", set.Elapsed)
	s.Printf("Finished restore at %s", date)
	logging.Oracle("rman restore from backup set %d", set.Key)
}

func (r *rman) recover(modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("recover", mounted) {
		return
	}
	if st.DatabaseMode == ora.ModeOpen {
		r.failure("recover", errRmanDatafileBusy)
		return
	}
	date := oracleDate(s)
	s.Printf("Starting recover at %s", date)
	s.Println("using channel ORA_DISK_1")
	s.Println("")
	s.Println("starting media recovery")
	s.Println("media recovery complete, elapsed time: 00:00:01")
	s.Println("")
	s.Printf("Finished recover at %s", date)
	st.NextSCN()
	st.Save()
}

func (r *rman) startup(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.connected {
		r.failure("startup", errRmanNotConnected)
		return
	}
	if r.up() && c.Groups[1] == "" {
		s.Println("database is already started")
		return
	}
	if !st.DatabaseCreated || !localSID(s) {
		s.Println("")
		rmanStack(s, &ora.Error{Code: "RMAN-03002", Text: "failure of startup command at " + st.Now().Format("01/02/2006 15:04:05")},
			ora.ErrParameterFile, ora.ErrNoParameterFile(home(s)+"/dbs/init"+s.Env.Value("ORACLE_SID")+".ora"))
		return
	}
	target := ora.ModeOpen
	switch strings.ToUpper(c.Groups[2]) {
	case "NOMOUNT":
		target = ora.ModeNoMount
	case "MOUNT":
		target = ora.ModeMounted
	}
	s.Println("Oracle instance started")
	if target != ora.ModeNoMount {
		s.Println("database mounted")
	}
	if target == ora.ModeOpen {
		if _, pending := st.Parameter(resetlogsKey); pending {
			target = ora.ModeMounted
			r.failure("startup", ora.ErrNeedResetlogs)
		} else {
			s.Println("database opened")
		}
	}
	s.Println("")
	s.Printf("Total System Global Area    %10d bytes", 1610609888)
	s.Println("")
	for _, row := range []struct {
		name  string
		bytes int64
	}{{"Fixed Size", 9135328}, {"Variable Size", 385875968}, {"Database Buffers", 1207959552}, {"Redo Buffers", 7639040}} {
		s.Printf("%-27s %10d bytes", row.name, row.bytes)
	}
	st.SetMode(target)
	alert(s, "Starting ORACLE instance (normal) (OS id: 4242)")
}

func (r *rman) shutdown(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.connected {
		r.failure("shutdown", errRmanNotConnected)
		return
	}
	if !r.up() {
		r.failure("shutdown", ora.ErrNotAvailable, ora.ErrNoSharedMemory)
		return
	}
	if strings.ToUpper(c.Groups[1]) != "ABORT" {
		if st.DatabaseMode == ora.ModeOpen {
			s.Println("database closed")
		}
		if st.DatabaseMode != ora.ModeNoMount {
			s.Println("database dismounted")
		}
	}
	s.Println("Oracle instance shut down")
	st.SetMode(ora.ModeShutdown)
	alert(s, "Instance shutdown complete (OS id: 4242)")
}

func (r *rman) alterDatabase(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("alter db", started) {
		return
	}
	clause := strings.Join(strings.Fields(strings.ToUpper(c.Groups[1])), " ")
	_, pending := st.Parameter(resetlogsKey)
	switch {
	case clause == "MOUNT" && st.DatabaseMode != ora.ModeNoMount:
		r.failure("alter db", ora.ErrAlreadyMounted)
		return
	case clause == "MOUNT":
		st.SetMode(ora.ModeMounted)
		s.Println("released channel: ORA_DISK_1")
		s.Println("Statement processed")
		return
	case st.DatabaseMode == ora.ModeNoMount:
		r.failure("alter db", ora.ErrNotMounted)
		return
	case st.DatabaseMode == ora.ModeOpen:
		r.failure("alter db", ora.ErrAlreadyOpen)
		return
	case clause == "OPEN RESETLOGS" && !pending:
		r.failure("alter db", ora.ErrResetlogsInvalid)
		return
	case clause == "OPEN" && pending:
		r.failure("alter db", ora.ErrNeedResetlogs)
		return
	}
	if pending {
		delete(st.Parameters, resetlogsKey)
	}
	st.SetMode(ora.ModeOpen)
	s.Println("Statement processed")
	alert(s, "Completed: ALTER DATABASE "+clause)
}

func (r *rman) sql(c modal.Call) {
	s, st := r.s, r.s.Oracle
	if !r.ready("sql", started) {
		return
	}
	stmt := strings.TrimSpace(c.Groups[1])
	s.Printf("sql statement: %s", stmt)
	upperStmt := strings.ToUpper(stmt)
	if strings.Contains(upperStmt, "SWITCH LOGFILE") || strings.Contains(upperStmt, "ARCHIVE LOG") || strings.Contains(upperStmt, "CHECKPOINT") {
		st.NextSCN()
		st.Save()
	}
}
