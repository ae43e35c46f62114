package oracle

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"orasim/internal/logging"
	"orasim/internal/modal"
	ora "orasim/internal/oracle"
)

// failErr prints a dictionary error returned by the state.
func (q *sqlplus) failErr(err error) {
	var oe *ora.Error
	if errors.As(err, &oe) {
		q.fail(oe)
		return
	}
	q.fail(&ora.Error{Code: "ORA-00600", Text: "internal error code, arguments: [" + err.Error() + "]"})
}

// dictionary checks the open database and a system privilege before DDL.
func (q *sqlplus) dictionary(priv string) bool {
	return q.ready(opened, nil) && q.require(priv)
}

func unquote(name string) string {
	return strings.ToUpper(strings.Trim(name, `"`))
}

var (
	reDefaultTS = regexp.MustCompile(`(?i)\bDEFAULT\s+TABLESPACE\s+(\S+)`)
	reAccount   = regexp.MustCompile(`(?i)\bACCOUNT\s+(LOCK|UNLOCK)\b`)
	reIdentBy   = regexp.MustCompile(`(?i)\bIDENTIFIED\s+BY\s+("[^"]*"|\S+)`)
)

func (q *sqlplus) createUser(c modal.Call) {
	st := q.s.Oracle
	if !q.dictionary("CREATE USER") {
		return
	}
	name := unquote(c.Groups[1])
	opts := c.Groups[3]
	var tablespace string
	if m := reDefaultTS.FindStringSubmatch(opts); m != nil {
		tablespace = unquote(m[1])
		if _, ok := st.Tablespace(tablespace); !ok {
			q.fail(ora.ErrNoTablespace(tablespace))
			return
		}
	}
	if err := st.CreateUser(name, strings.Trim(c.Groups[2], `"`)); err != nil {
		q.failErr(err)
		return
	}
	if tablespace != "" {
		_ = st.SetDefaultTablespace(name, tablespace)
	}
	if m := reAccount.FindStringSubmatch(opts); m != nil && strings.EqualFold(m[1], "LOCK") {
		_ = st.SetLocked(name, true)
	}
	logging.Oracle("user %s created by %s", name, q.user)
	q.done("User created.")
}

func (q *sqlplus) alterUser(c modal.Call) {
	st := q.s.Oracle
	name := unquote(c.Groups[1])
	opts := c.Groups[2]
	if !q.ready(opened, nil) {
		return
	}
	// Anyone may change their own password.
	self := name == q.user && reIdentBy.MatchString(opts) && !reAccount.MatchString(opts) && !reDefaultTS.MatchString(opts)
	if !self && !q.require("ALTER USER") {
		return
	}
	if _, ok := st.User(name); !ok {
		q.fail(ora.ErrNoUser(name))
		return
	}
	if m := reDefaultTS.FindStringSubmatch(opts); m != nil {
		if err := st.SetDefaultTablespace(name, unquote(m[1])); err != nil {
			q.failErr(err)
			return
		}
	}
	if m := reIdentBy.FindStringSubmatch(opts); m != nil {
		_ = st.AlterPassword(name, strings.Trim(m[1], `"`))
	}
	if m := reAccount.FindStringSubmatch(opts); m != nil {
		_ = st.SetLocked(name, strings.EqualFold(m[1], "LOCK"))
	}
	q.done("User altered.")
}

func (q *sqlplus) dropUser(c modal.Call) {
	st := q.s.Oracle
	if !q.dictionary("DROP USER") {
		return
	}
	name := unquote(c.Groups[1])
	if name == "SYS" || name == "SYSTEM" {
		q.fail(ora.ErrDropAdmin)
		return
	}
	if name == q.user {
		q.fail(&ora.Error{Code: "ORA-01940", Text: "cannot drop a user who is currently connected"})
		return
	}
	if err := st.DropUser(name); err != nil {
		q.failErr(err)
		return
	}
	q.done("User dropped.")
}

func (q *sqlplus) createRole(c modal.Call) {
	if !q.dictionary("CREATE ROLE") {
		return
	}
	if err := q.s.Oracle.CreateRole(unquote(c.Groups[1])); err != nil {
		q.failErr(err)
		return
	}
	q.done("Role created.")
}

func (q *sqlplus) dropRole(c modal.Call) {
	if !q.ready(opened, nil) || !q.require("DROP ANY ROLE") {
		return
	}
	name := unquote(c.Groups[1])
	if name == "DBA" || name == "PUBLIC" {
		q.fail(ora.ErrDropAdmin)
		return
	}
	if err := q.s.Oracle.DropRole(name); err != nil {
		q.failErr(err)
		return
	}
	q.done("Role dropped.")
}

// splitList splits a comma-separated grant list.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.Join(strings.Fields(item), " "); item != "" {
			out = append(out, strings.ToUpper(item))
		}
	}
	return out
}

// grantable expands a GRANT item: ALL PRIVILEGES becomes every privilege
// except the administrative ones.
func grantable(item string) []string {
	if item != "ALL PRIVILEGES" && item != "ALL" {
		return []string{item}
	}
	var out []string
	for _, p := range ora.SystemPrivileges.Sorted() {
		switch p {
		case "SYSDBA", "SYSOPER", "SYSBACKUP":
		default:
			out = append(out, p)
		}
	}
	return out
}

func (q *sqlplus) grant(c modal.Call) {
	q.grantOrRevoke(c.Groups[1], c.Groups[2], true)
}

func (q *sqlplus) revoke(c modal.Call) {
	q.grantOrRevoke(c.Groups[1], c.Groups[2], false)
}

func (q *sqlplus) grantOrRevoke(items, grantees string, grant bool) {
	st := q.s.Oracle
	if !q.ready(opened, nil) || !q.require("GRANT ANY PRIVILEGE") {
		return
	}
	targets := splitList(grantees)
	for _, t := range targets {
		if _, ok := st.User(t); ok {
			continue
		}
		if _, ok := st.Role(t); !ok {
			q.fail(ora.ErrNoGrantee(t))
			return
		}
	}
	for _, item := range splitList(items) {
		for _, priv := range grantable(item) {
			_, isRole := st.Role(priv)
			if !isRole && !strings.Contains(priv, " ") && !ora.SystemPrivileges.Has(priv) {
				q.fail(ora.ErrNoRole(priv))
				return
			}
			for _, t := range targets {
				var err error
				switch {
				case isRole && grant:
					err = st.GrantRoleToUser(priv, t)
				case isRole:
					err = st.RevokeRoleFromUser(priv, t)
				case grant:
					err = st.GrantPrivilege(t, priv)
				default:
					err = st.RevokePrivilege(t, priv)
				}
				if err != nil {
					q.failErr(err)
					return
				}
			}
		}
	}
	logging.Oracle("%s %s -> %s", map[bool]string{true: "grant", false: "revoke"}[grant], items, grantees)
	if grant {
		q.done("Grant succeeded.")
	} else {
		q.done("Revoke succeeded.")
	}
}

// grantObject acknowledges object privileges once the grantees exist.
func (q *sqlplus) grantObject(c modal.Call) {
	st := q.s.Oracle
	if !q.ready(opened, nil) {
		return
	}
	for _, t := range splitList(c.Groups[3]) {
		if _, ok := st.User(t); ok {
			continue
		}
		if _, ok := st.Role(t); !ok {
			q.fail(ora.ErrNoGrantee(t))
			return
		}
	}
	if strings.HasPrefix(c.Upper, "REVOKE") {
		q.done("Revoke succeeded.")
		return
	}
	q.done("Grant succeeded.")
}

var (
	reFileClause = regexp.MustCompile(`(?i)\b(?:DATAFILE|TEMPFILE)\s+'([^']+)'`)
	reSize       = regexp.MustCompile(`(?i)(?:^|\s)SIZE\s+(\d+[KMGT]?)\b`)
	reReuse      = regexp.MustCompile(`(?i)\bREUSE\b`)
	reAutoextend = regexp.MustCompile(`(?i)\bAUTOEXTEND\s+(ON|OFF)\b`)
	reNext       = regexp.MustCompile(`(?i)\bNEXT\s+(\d+[KMGT]?)\b`)
	reMaxsize    = regexp.MustCompile(`(?i)\bMAXSIZE\s+(UNLIMITED|\d+[KMGT]?)\b`)
)

// datafilePath places relative names under ORACLE_HOME/dbs, as the server does.
func (q *sqlplus) datafilePath(name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return home(q.s) + "/dbs/" + name
}

func (q *sqlplus) createTablespace(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.dictionary("CREATE TABLESPACE") {
		return
	}
	name := unquote(c.Groups[2])
	opts := c.Groups[3]
	contents := "PERMANENT"
	if c.Groups[1] != "" {
		contents = strings.ToUpper(c.Groups[1])
	}
	m := reFileClause.FindStringSubmatch(opts)
	if m == nil {
		q.fail(ora.ErrMissingDatafile)
		return
	}
	if _, ok := st.Tablespace(name); ok {
		q.failErr(st.CreateTablespace(ora.TablespaceSpec{Name: name}))
		return
	}
	file := q.datafilePath(m[1])
	size := ""
	if sm := reSize.FindStringSubmatch(opts); sm != nil {
		size = strings.ToUpper(sm[1])
	}
	reuse := reReuse.MatchString(opts)
	switch {
	case s.FS.Exists(file) && !reuse:
		q.fail(ora.ErrCreateDatafile(file), ora.ErrFileExists)
		return
	case !s.FS.IsDirectory(path.Dir(file)):
		q.fail(ora.ErrCreateDatafile(file), ora.ErrFileCreate)
		s.Println("Linux-x86_64 Error: 2: No such file or directory")
		s.Println("Additional information: 1")
		s.Println("")
		return
	case size == "" && !s.FS.Exists(file):
		q.fail(ora.ErrCreateDatafile(file), ora.ErrNoSizeSpecified(file),
			&ora.Error{Code: "ORA-27037", Text: "unable to obtain file status"})
		return
	}
	autoextend := false
	if am := reAutoextend.FindStringSubmatch(opts); am != nil {
		autoextend = strings.EqualFold(am[1], "ON")
	}
	if err := st.CreateTablespace(ora.TablespaceSpec{
		Name:       name,
		Datafile:   file,
		Size:       size,
		Autoextend: autoextend,
		Contents:   contents,
	}); err != nil {
		q.failErr(err)
		return
	}
	s.FS.WriteFile(file, "")
	s.FS.SetOwner(file, "oracle", "oinstall", false)
	s.FS.SetSize(file, sizeBytes(size))
	next, max := "", ""
	if nm := reNext.FindStringSubmatch(opts); nm != nil {
		next = strings.ToUpper(nm[1])
	}
	if mm := reMaxsize.FindStringSubmatch(opts); mm != nil {
		max = strings.ToUpper(mm[1])
	}
	s.FS.SetDatafileGrowth(file, autoextend, next, max)
	alert(s, "create tablespace "+name, "Completed: create tablespace "+name)
	logging.Oracle("tablespace %s created at %s (%s)", name, file, size)
	q.done("Tablespace created.")
}

func (q *sqlplus) dropTablespace(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.dictionary("DROP TABLESPACE") {
		return
	}
	name := unquote(c.Groups[1])
	ts, ok := st.Tablespace(name)
	if !ok {
		q.fail(ora.ErrNoTablespace(name))
		return
	}
	file := ts.Datafile
	if err := st.DropTablespace(name); err != nil {
		q.failErr(err)
		return
	}
	if c.Groups[3] != "" {
		s.FS.Rm(file, false)
	}
	q.done("Tablespace dropped.")
}

func (q *sqlplus) alterTablespace(c modal.Call) {
	st := q.s.Oracle
	if !q.dictionary("ALTER TABLESPACE") {
		return
	}
	name := unquote(c.Groups[1])
	ts, ok := st.Tablespace(name)
	if !ok {
		q.fail(ora.ErrNoTablespace(name))
		return
	}
	switch clause := strings.Join(strings.Fields(strings.ToUpper(c.Groups[2])), " "); {
	case clause == "OFFLINE" || strings.HasPrefix(clause, "OFFLINE "):
		ts.Status = "OFFLINE"
	case clause == "ONLINE" || clause == "READ WRITE":
		ts.Status = "ONLINE"
	case clause == "READ ONLY":
		ts.Status = "READ ONLY"
	}
	st.Save()
	q.done("Tablespace altered.")
}

var reDatafile = regexp.MustCompile(`(?i)^DATAFILE\s+(?:'([^']+)'|(\d+))\s+(.+)$`)

// alterDatafile handles ALTER DATABASE DATAFILE and reports success.
func (q *sqlplus) alterDatafile(clause string) bool {
	s, st := q.s, q.s.Oracle
	m := reDatafile.FindStringSubmatch(strings.TrimSpace(clause))
	if m == nil {
		q.fail(ora.ErrBadAlterDatabase)
		return false
	}
	var ts *ora.Tablespace
	for _, name := range st.TablespaceNames() {
		t, _ := st.Tablespace(name)
		if (m[1] != "" && t.Datafile == q.datafilePath(m[1])) || (m[2] != "" && strconv.Itoa(t.Order) == m[2]) {
			ts = t
			break
		}
	}
	if ts == nil {
		q.fail(ora.ErrNoDatafile(m[1] + m[2]))
		return false
	}
	action := strings.Join(strings.Fields(strings.ToUpper(m[3])), " ")
	switch {
	case strings.HasPrefix(action, "RESIZE "):
		size := strings.TrimPrefix(action, "RESIZE ")
		if sizeBytes(size) == 0 {
			q.fail(ora.ErrInvalidOption)
			return false
		}
		ts.Size = size
		s.FS.SetSize(ts.Datafile, sizeBytes(size))
	case strings.HasPrefix(action, "AUTOEXTEND "):
		ts.Autoextend = strings.HasPrefix(action, "AUTOEXTEND ON")
		next, max := "", ""
		if nm := reNext.FindStringSubmatch(action); nm != nil {
			next = nm[1]
		}
		if mm := reMaxsize.FindStringSubmatch(action); mm != nil {
			max = mm[1]
		}
		s.FS.SetDatafileGrowth(ts.Datafile, ts.Autoextend, next, max)
	case action == "ONLINE":
		ts.Status = "ONLINE"
	case action == "OFFLINE" || action == "OFFLINE DROP":
		ts.Status = "OFFLINE"
	default:
		q.fail(ora.ErrBadAlterDatabase)
		return false
	}
	st.Save()
	return true
}

func (q *sqlplus) createRestorePoint(c modal.Call) {
	st := q.s.Oracle
	if !q.ready(mounted, nil) || !q.require("ALTER DATABASE") {
		return
	}
	name := unquote(c.Groups[1])
	guarantee := c.Groups[2] != ""
	if guarantee && !st.ArchivelogMode {
		q.fail(ora.ErrRestorePointCreate(name), ora.ErrGuaranteeMedia)
		return
	}
	rp, err := st.CreateRestorePoint(name, guarantee)
	if err != nil {
		q.failErr(err)
		return
	}
	logging.Oracle("restore point %s at scn %d", name, rp.SCN)
	q.done("Restore point created.")
}

func (q *sqlplus) dropRestorePoint(c modal.Call) {
	if !q.ready(mounted, nil) || !q.require("ALTER DATABASE") {
		return
	}
	if err := q.s.Oracle.DropRestorePoint(unquote(c.Groups[1])); err != nil {
		q.failErr(err)
		return
	}
	q.done("Restore point dropped.")
}

func (q *sqlplus) flashback(c modal.Call) {
	s, st := q.s, q.s.Oracle
	if !q.ready(mounted, nil) {
		return
	}
	if !q.sysdba() {
		q.fail(ora.ErrInsufficientPrivs)
		return
	}
	if st.DatabaseMode == ora.ModeOpen {
		q.fail(ora.ErrFlashbackOpen)
		return
	}
	guaranteed := false
	target := fmt.Sprintf("SCN %s", c.Groups[2])
	if name := c.Groups[1]; name != "" {
		rp, ok := st.RestorePoint(name)
		if !ok {
			q.fail(ora.ErrNoRestorePoint(unquote(name)))
			return
		}
		guaranteed = rp.Guarantee
		target = "RESTORE POINT " + unquote(name)
	}
	if !st.FlashbackOn && !guaranteed {
		q.fail(ora.ErrFlashbackOff)
		return
	}
	st.SetParameter(resetlogsKey, "TRUE")
	alert(s, "FLASHBACK DATABASE TO "+target, "Flashback Media Recovery Complete", "Completed: FLASHBACK DATABASE TO "+target)
	logging.Oracle("flashback database to %s", target)
	q.done("Flashback complete.")
}
