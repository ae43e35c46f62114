package oracle

import (
	"errors"
	"fmt"
	"hash/crc32"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ncruces/go-strftime"

	"orasim/internal/modal"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// column describes one view column. Numeric columns are right-aligned.
type column struct {
	name  string
	width int
	num   bool
}

// view is a queryable dictionary or dynamic performance view.
type view struct {
	cols []column
	need level
	// dict views need SELECT ANY DICTIONARY.
	dict bool
	rows func(q *sqlplus) [][]string
}

func chars(name string, width int) column { return column{name: name, width: width} }
func number(name string) column           { return column{name: name, width: 10, num: true} }

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// dbid derives a stable database identifier from the name.
func dbid(name string) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(name)))%9_000_000_000+1_000_000_000, 10)
}

func openMode(st *ora.State) string {
	if st.DatabaseMode == ora.ModeOpen {
		return "READ WRITE"
	}
	return "MOUNTED"
}

// sqlArea is the fixed shared-pool content V$SQL reports.
var sqlArea = [][]string{
	{"9babjv8yq8ru3", "412", "38211", "BEGIN DBMS_OUTPUT.GET_LINES(:LINES, :NUMLINES); END;"},
	{"0k8522rmdzg4k", "96", "20113", "select privilege# from sysauth$ where (grantee#=:1 or grante"},
	{"f0jxh8d6b5af2", "7", "4410", "select /*+ rule */ bucket, endpoint, col#, epvalue, epvalue_"},
	{"5ur69atw3vfhj", "1288", "171823", "select decode(failover_method, NULL, 0 , 'BASIC', 1, 'PRECON"},
	{"cnphq355f5rah", "3", "1202", "DECLARE job BINARY_INTEGER := :job; next_date TIMESTAMP WITH"},
	{"a6ygk0r9s5xuj", "24", "9854", "select count(*) from dual"},
}

// views maps a fixed name to its definition.
var views = map[string]view{
	"V$DATABASE": {
		cols: []column{number("DBID"), chars("NAME", 9), chars("CREATED", 9), chars("LOG_MODE", 12),
			chars("OPEN_MODE", 20), chars("DATABASE_ROLE", 16), chars("FLASHBACK_ON", 18)},
		need: mounted, dict: true,
		rows: func(q *sqlplus) [][]string {
			st := q.s.Oracle
			logMode := "NOARCHIVELOG"
			if st.ArchivelogMode {
				logMode = "ARCHIVELOG"
			}
			created := ""
			if sys, ok := st.User("SYS"); ok {
				created = ora.FormatOracleDate(sys.CreatedAt)
			}
			return [][]string{{dbid(st.DBName()), st.DBName(), created, logMode, openMode(st), "PRIMARY", yesNo(st.FlashbackOn)}}
		},
	},
	"V$INSTANCE": {
		cols: []column{chars("INSTANCE_NAME", 16), chars("HOST_NAME", 30), chars("VERSION", 17),
			chars("STARTUP_TIME", 9), chars("STATUS", 12), chars("DATABASE_STATUS", 17)},
		need: started, dict: true,
		rows: func(q *sqlplus) [][]string {
			st := q.s.Oracle
			status := map[ora.Mode]string{ora.ModeNoMount: "STARTED", ora.ModeMounted: "MOUNTED", ora.ModeOpen: "OPEN"}[st.DatabaseMode]
			return [][]string{{st.SID, q.s.FS.Hostname(), "19.0.0.0.0", oracleDate(q.s), status, "ACTIVE"}}
		},
	},
	"V$VERSION": {
		cols: []column{chars("BANNER", 80), number("CON_ID")},
		need: started,
		rows: func(*sqlplus) [][]string { return [][]string{{productBanner, "0"}} },
	},
	"V$SQL": {
		cols: []column{chars("SQL_ID", 13), number("EXECUTIONS"), number("ELAPSED_TIME"), chars("SQL_TEXT", 60)},
		need: started, dict: true,
		rows: func(*sqlplus) [][]string { return sqlArea },
	},
	"V$RESTORE_POINT": {
		cols: []column{number("SCN"), chars("GUARANTEE_FLASHBACK_DATABASE", 3), chars("TIME", 32), chars("NAME", 30)},
		need: mounted, dict: true,
		rows: func(q *sqlplus) [][]string {
			st := q.s.Oracle
			var out [][]string
			for _, name := range st.RestorePointNames() {
				rp, _ := st.RestorePoint(name)
				out = append(out, []string{strconv.FormatInt(rp.SCN, 10), yesNo(rp.Guarantee), ora.FormatOracleTime(rp.Time), name})
			}
			return out
		},
	},
	"V$PARAMETER": {
		cols: []column{chars("NAME", 36), chars("VALUE", 50), chars("ISDEFAULT", 9)},
		need: started, dict: true,
		rows: func(q *sqlplus) [][]string {
			var out [][]string
			for _, p := range parameterCatalog {
				_, set := q.s.Oracle.Parameter(p.name)
				out = append(out, []string{p.name, parameterValue(q.s, p), map[bool]string{true: "FALSE", false: "TRUE"}[set]})
			}
			return out
		},
	},
	"V$DATAFILE": {
		cols: []column{number("FILE#"), chars("NAME", 60), number("BYTES"), chars("STATUS", 7)},
		need: mounted, dict: true,
		rows: func(q *sqlplus) [][]string {
			return datafiles(q, false, func(t *ora.Tablespace) []string {
				status := "ONLINE"
				if t.Order == 1 {
					status = "SYSTEM"
				}
				return []string{strconv.Itoa(t.Order), t.Datafile, strconv.FormatInt(sizeBytes(t.Size), 10), status}
			})
		},
	},
	"DBA_USERS": {
		cols: []column{chars("USERNAME", 20), chars("ACCOUNT_STATUS", 16), chars("DEFAULT_TABLESPACE", 20), chars("CREATED", 9)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			st := q.s.Oracle
			var out [][]string
			for _, name := range st.UserNames() {
				u, _ := st.User(name)
				status := "OPEN"
				if u.Locked {
					status = "LOCKED"
				}
				out = append(out, []string{name, status, u.DefaultTablespace, ora.FormatOracleDate(u.CreatedAt)})
			}
			return out
		},
	},
	"ALL_USERS": {
		cols: []column{chars("USERNAME", 20), number("USER_ID"), chars("CREATED", 9)},
		need: opened,
		rows: func(q *sqlplus) [][]string {
			st := q.s.Oracle
			var out [][]string
			for i, name := range st.UserNames() {
				u, _ := st.User(name)
				out = append(out, []string{name, strconv.Itoa(100 + i), ora.FormatOracleDate(u.CreatedAt)})
			}
			return out
		},
	},
	"DBA_ROLES": {
		cols: []column{chars("ROLE", 20), chars("PASSWORD_REQUIRED", 8)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			var out [][]string
			for _, name := range q.s.Oracle.RoleNames() {
				out = append(out, []string{name, "NO"})
			}
			return out
		},
	},
	"DBA_TABLESPACES": {
		cols: []column{chars("TABLESPACE_NAME", 20), number("BLOCK_SIZE"), chars("STATUS", 9), chars("CONTENTS", 21)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			st := q.s.Oracle
			var out [][]string
			for _, name := range st.TablespaceNames() {
				t, _ := st.Tablespace(name)
				out = append(out, []string{name, "8192", t.Status, t.Contents})
			}
			return out
		},
	},
	"DBA_DATA_FILES": {
		cols: []column{chars("FILE_NAME", 60), number("FILE_ID"), chars("TABLESPACE_NAME", 20), number("BYTES"), chars("AUTOEXTENSIBLE", 3)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			return datafiles(q, false, func(t *ora.Tablespace) []string {
				return []string{t.Datafile, strconv.Itoa(t.Order), tablespaceOf(q, t), strconv.FormatInt(sizeBytes(t.Size), 10), yesNo(t.Autoextend)}
			})
		},
	},
	"DBA_TEMP_FILES": {
		cols: []column{chars("FILE_NAME", 60), number("FILE_ID"), chars("TABLESPACE_NAME", 20), number("BYTES"), chars("AUTOEXTENSIBLE", 3)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			return datafiles(q, true, func(t *ora.Tablespace) []string {
				return []string{t.Datafile, "1", tablespaceOf(q, t), strconv.FormatInt(sizeBytes(t.Size), 10), yesNo(t.Autoextend)}
			})
		},
	},
	"DBA_ROLE_PRIVS": {
		cols: []column{chars("GRANTEE", 20), chars("GRANTED_ROLE", 20), chars("ADMIN_OPTION", 3), chars("DEFAULT_ROLE", 3)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			return grants(q, func(r *ora.UserRecord) []string { return r.GrantedRoles.Sorted() }, "YES")
		},
	},
	"DBA_SYS_PRIVS": {
		cols: []column{chars("GRANTEE", 20), chars("PRIVILEGE", 40), chars("ADMIN_OPTION", 3)},
		need: opened, dict: true,
		rows: func(q *sqlplus) [][]string {
			return grants(q, func(r *ora.UserRecord) []string {
				held := ora.Set{}
				for p, ok := range r.Privileges {
					held[p] = ok
				}
				for p, ok := range r.GrantedPrivileges {
					held[p] = ok
				}
				return held.Sorted()
			}, "")
		},
	},
	"SESSION_PRIVS": {
		cols: []column{chars("PRIVILEGE", 40)},
		need: opened,
		rows: func(q *sqlplus) [][]string {
			privs := q.s.Oracle.SessionPrivileges(q.user)
			if q.sysdba() {
				privs = ora.SystemPrivileges.Sorted()
			}
			out := make([][]string, len(privs))
			for i, p := range privs {
				out[i] = []string{p}
			}
			return out
		},
	},
}

// datafiles lists permanent and undo files, or temp files when temp is set.
func datafiles(q *sqlplus, temp bool, row func(t *ora.Tablespace) []string) [][]string {
	st := q.s.Oracle
	var out [][]string
	for _, name := range st.TablespaceNames() {
		t, _ := st.Tablespace(name)
		if (t.Contents == "TEMPORARY") == temp {
			out = append(out, row(t))
		}
	}
	return out
}

func tablespaceOf(q *sqlplus, t *ora.Tablespace) string {
	for _, name := range q.s.Oracle.TablespaceNames() {
		if other, _ := q.s.Oracle.Tablespace(name); other == t {
			return name
		}
	}
	return ""
}

// grants flattens a per-grantee list into GRANTEE/item rows.
func grants(q *sqlplus, items func(r *ora.UserRecord) []string, extra string) [][]string {
	st := q.s.Oracle
	var out [][]string
	names := append(st.UserNames(), st.RoleNames()...)
	sort.Strings(names)
	for _, name := range names {
		r, ok := st.User(name)
		if !ok {
			r, _ = st.Role(name)
		}
		for _, item := range items(r) {
			row := []string{name, item, "NO"}
			if extra != "" {
				row = append(row, extra)
			}
			out = append(out, row)
		}
	}
	return out
}

// lookupView resolves owner prefixes and public synonyms.
func lookupView(name string) (view, bool) {
	name = strings.ToUpper(name)
	name = strings.TrimPrefix(name, "SYS.")
	name = strings.Replace(name, "V_$", "V$", 1)
	v, ok := views[name]
	return v, ok
}

var (
	reCondition = regexp.MustCompile(`(?i)^([\w#$]+)\s*(=|!=|<>|<=|>=|<|>|NOT\s+LIKE|LIKE)\s*(.+)$`)
	reAnd       = regexp.MustCompile(`(?i)\s+AND\s+`)
	reAlias     = regexp.MustCompile(`(?i)^(.+?)(?:\s+(?:AS\s+)?("[^"]+"|[A-Za-z_]\w*))?$`)
)

// condition is one WHERE predicate.
type condition struct {
	col   int
	op    string
	value string
}

func (c condition) matches(row []string) bool {
	v := row[c.col]
	switch c.op {
	case "LIKE", "NOT LIKE":
		re := "^" + strings.NewReplacer("%", ".*", "_", ".").Replace(regexp.QuoteMeta(c.value)) + "$"
		ok, _ := regexp.MatchString(re, v)
		return ok == (c.op == "LIKE")
	}
	cmp := strings.Compare(v, c.value)
	a, errA := strconv.ParseFloat(v, 64)
	b, errB := strconv.ParseFloat(c.value, 64)
	if errA == nil && errB == nil {
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch c.op {
	case "=":
		return cmp == 0
	case "!=", "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	default:
		return cmp >= 0
	}
}

func columnIndex(cols []column, name string) int {
	name = strings.ToUpper(strings.Trim(name, `"`))
	for i, c := range cols {
		if c.name == name {
			return i
		}
	}
	return -1
}

// query evaluates SELECT ... FROM view [WHERE ...] [ORDER BY ...].
func (q *sqlplus) query(c modal.Call) {
	v, ok := lookupView(c.Groups[2])
	if !ok {
		if q.ready(opened, ora.ErrFixedViewsOnly) {
			q.fail(ora.ErrNoTable)
		}
		return
	}
	if !q.ready(v.need, ora.ErrFixedViewsOnly) {
		return
	}
	if v.dict && !q.may("SELECT ANY DICTIONARY") {
		q.fail(ora.ErrNoTable)
		return
	}

	limit := -1
	var conds []condition
	if where := strings.TrimSpace(c.Groups[3]); where != "" {
		for _, part := range reAnd.Split(where, -1) {
			m := reCondition.FindStringSubmatch(strings.TrimSpace(part))
			if m == nil {
				q.fail(ora.ErrInvalidSQL)
				return
			}
			op := strings.Join(strings.Fields(strings.ToUpper(m[2])), " ")
			value := strings.TrimSpace(m[3])
			value = strings.TrimSuffix(strings.TrimPrefix(value, "'"), "'")
			if strings.EqualFold(m[1], "ROWNUM") {
				n, _ := strconv.Atoi(value)
				switch op {
				case "<":
					limit = n - 1
				case "<=", "=":
					limit = n
				}
				continue
			}
			idx := columnIndex(v.cols, m[1])
			if idx < 0 {
				q.fail(ora.ErrInvalidIdentifier(strings.ToUpper(m[1])))
				return
			}
			conds = append(conds, condition{col: idx, op: op, value: value})
		}
	}

	var rows [][]string
	for _, row := range v.rows(q) {
		keep := true
		for _, cond := range conds {
			if !cond.matches(row) {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, row)
		}
		if limit >= 0 && len(rows) == limit {
			break
		}
	}

	if order := strings.TrimSpace(c.Groups[4]); order != "" {
		fields := strings.Fields(order)
		idx := columnIndex(v.cols, fields[0])
		if n, err := strconv.Atoi(fields[0]); err == nil {
			idx = n - 1
		}
		if idx < 0 || idx >= len(v.cols) {
			q.fail(ora.ErrInvalidIdentifier(strings.ToUpper(fields[0])))
			return
		}
		desc := len(fields) > 1 && strings.EqualFold(fields[1], "DESC")
		num := v.cols[idx].num
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i][idx], rows[j][idx]
			less := a < b
			if num {
				x, _ := strconv.ParseFloat(a, 64)
				y, _ := strconv.ParseFloat(b, 64)
				less = x < y
			}
			if desc {
				return !less && a != b
			}
			return less
		})
	}

	list := strings.TrimSpace(c.Groups[1])
	if strings.EqualFold(strings.ReplaceAll(list, " ", ""), "COUNT(*)") {
		printTable(q.s, []column{number("COUNT(*)")}, [][]string{{strconv.Itoa(len(rows))}})
		return
	}
	cols := v.cols
	var picks []int
	if list == "*" {
		for i := range cols {
			picks = append(picks, i)
		}
	} else {
		cols = nil
		for _, item := range splitTopLevel(list) {
			m := reAlias.FindStringSubmatch(strings.TrimSpace(item))
			idx := columnIndex(v.cols, m[1])
			if idx < 0 {
				q.fail(ora.ErrInvalidIdentifier(strings.ToUpper(m[1])))
				return
			}
			col := v.cols[idx]
			if m[2] != "" {
				col.name = strings.ToUpper(strings.Trim(m[2], `"`))
			}
			cols = append(cols, col)
			picks = append(picks, idx)
		}
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(picks))
		for j, p := range picks {
			out[i][j] = row[p]
		}
	}
	printTable(q.s, cols, out)
}

// printTable renders rows the way SQL*Plus does with its default settings.
func printTable(s *shell.Session, cols []column, rows [][]string) {
	if len(rows) == 0 {
		s.Println("")
		s.Println("no rows selected")
		s.Println("")
		return
	}
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = max(c.width, len(c.name))
	}
	cell := func(i int, v string) string {
		if cols[i].num {
			return fmt.Sprintf("%*s", widths[i], v)
		}
		if len(v) > widths[i] {
			v = v[:widths[i]]
		}
		return fmt.Sprintf("%-*s", widths[i], v)
	}
	line := func(vals []string) string {
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = cell(i, v)
		}
		return strings.TrimRight(strings.Join(parts, " "), " ")
	}
	header := make([]string, len(cols))
	dashes := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
		dashes[i] = strings.Repeat("-", widths[i])
	}
	s.Println("")
	s.Println(line(header))
	s.Println(strings.Join(dashes, " "))
	for _, row := range rows {
		s.Println(line(row))
	}
	s.Println("")
	if len(rows) >= 6 {
		s.Printf("%d rows selected.", len(rows))
		s.Println("")
	}
}

// splitTopLevel splits on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var out []string
	depth, quoted, start := 0, false, 0
	for i, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func (q *sqlplus) describe(c modal.Call) {
	s := q.s
	name := strings.ToUpper(c.Groups[1])
	v, ok := lookupView(name)
	if !ok {
		if !q.ready(opened, nil) {
			return
		}
		s.Println("ERROR:")
		printError(s, ora.ErrNoObject(name))
		s.Println("")
		return
	}
	if !q.ready(v.need, ora.ErrFixedViewsOnly) {
		return
	}
	s.Printf(" %-40s %-8s %s", "Name", "Null?", "Type")
	s.Printf(" %s %s %s", strings.Repeat("-", 40), strings.Repeat("-", 8), strings.Repeat("-", 28))
	for _, col := range v.cols {
		typ := fmt.Sprintf("VARCHAR2(%d)", col.width)
		if col.num {
			typ = "NUMBER"
		}
		s.Printf(" %-40s %-8s %s", col.name, "", typ)
	}
	s.Println("")
}

var (
	reString     = regexp.MustCompile(`^'((?:[^']|'')*)'$`)
	reArithmetic = regexp.MustCompile(`^-?\d+(?:\s*[-+*/]\s*-?\d+)*$`)
	reToChar     = regexp.MustCompile(`(?i)^TO_CHAR\s*\(\s*(SYSDATE|SYSTIMESTAMP)\s*,\s*'([^']*)'\s*\)$`)
	reContext    = regexp.MustCompile(`(?i)^SYS_CONTEXT\s*\(\s*'USERENV'\s*,\s*'(\w+)'\s*\)$`)
	reDualAlias  = regexp.MustCompile(`(?i)^(.+?)\s+(?:AS\s+)?("[^"]+"|[A-Za-z_]\w*)$`)
	reToken      = regexp.MustCompile(`-?\d+|[-+*/]`)
)

// selectDual evaluates expressions against DUAL.
func (q *sqlplus) selectDual(c modal.Call) {
	if !q.ready(mounted, nil) {
		return
	}
	var cols []column
	var row []string
	for _, item := range splitTopLevel(c.Groups[1]) {
		expr, alias := strings.TrimSpace(item), ""
		value, num, err := q.evaluate(expr)
		if errors.Is(err, errUnknownExpr) {
			if m := reDualAlias.FindStringSubmatch(expr); m != nil {
				if v, n, e := q.evaluate(strings.TrimSpace(m[1])); !errors.Is(e, errUnknownExpr) {
					expr, alias, value, num, err = strings.TrimSpace(m[1]), strings.Trim(m[2], `"`), v, n, e
				}
			}
		}
		if errors.Is(err, errUnknownExpr) {
			q.fail(ora.ErrInvalidIdentifier(strings.ToUpper(expr)))
			return
		}
		if err != nil {
			q.failErr(err)
			return
		}
		header := strings.ToUpper(strings.Join(strings.Fields(expr), ""))
		if reString.MatchString(expr) {
			header = strings.ToUpper(expr)
		}
		if alias != "" {
			header = strings.ToUpper(alias)
		}
		col := column{name: header, width: len(value), num: num}
		if num {
			col.width = 10
		}
		cols = append(cols, col)
		row = append(row, value)
	}
	printTable(q.s, cols, [][]string{row})
}

// oracleFormat maps datetime format models to strftime directives.
var oracleFormat = strings.NewReplacer(
	"YYYY", "%Y", "YY", "%y", "MONTH", "%B", "MON", "%b", "MM", "%m",
	"DD", "%d", "DY", "%a", "HH24", "%H", "HH12", "%I", "HH", "%I",
	"MI", "%M", "SS", "%S", "AM", "%p", "PM", "%p",
)

// errUnknownExpr is returned by evaluate for expressions it does not know.
var errUnknownExpr = errors.New("unknown expression")

// evaluate returns an expression's value and whether it is numeric.
func (q *sqlplus) evaluate(expr string) (value string, num bool, err error) {
	st := q.s.Oracle
	now := st.Now()
	upperExpr := strings.ToUpper(strings.TrimSpace(expr))
	switch upperExpr {
	case "SYSDATE", "CURRENT_DATE":
		return oracleDate(q.s), false, nil
	case "SYSTIMESTAMP", "CURRENT_TIMESTAMP":
		return strings.ToUpper(now.Format("02-Jan-06 03.04.05.000000 PM -07:00")), false, nil
	case "USER":
		return q.user, false, nil
	case "NULL":
		return "", false, nil
	}
	if m := reString.FindStringSubmatch(expr); m != nil {
		return strings.ReplaceAll(m[1], "''", "'"), false, nil
	}
	if reArithmetic.MatchString(expr) {
		v, err := arithmetic(expr)
		return v, true, err
	}
	if m := reToChar.FindStringSubmatch(expr); m != nil {
		return strftime.Format(oracleFormat.Replace(strings.ToUpper(m[2])), now), false, nil
	}
	if m := reContext.FindStringSubmatch(expr); m != nil {
		switch strings.ToUpper(m[1]) {
		case "CURRENT_USER", "SESSION_USER", "CURRENT_SCHEMA":
			return q.user, false, nil
		case "DB_NAME", "CON_NAME", "DB_UNIQUE_NAME":
			return st.DBName(), false, nil
		case "INSTANCE_NAME":
			return st.SID, false, nil
		case "SERVER_HOST", "HOST":
			return q.s.FS.Hostname(), false, nil
		case "ISDBA":
			return strings.ToUpper(strconv.FormatBool(q.sysdba())), false, nil
		case "OS_USER":
			return q.s.Env.User(), false, nil
		}
		return "", false, nil
	}
	return "", false, errUnknownExpr
}

// arithmetic evaluates integer +, -, * and / with the usual precedence.
func arithmetic(expr string) (string, error) {
	tokens := reToken.FindAllString(strings.ReplaceAll(expr, " ", ""), -1)
	// Re-join a minus sign the tokenizer attached to a number after an operand.
	var toks []string
	for i, t := range tokens {
		if i > 0 && len(t) > 1 && t[0] == '-' && isNumber(tokens[i-1]) {
			toks = append(toks, "-", t[1:])
			continue
		}
		toks = append(toks, t)
	}
	var terms []float64
	var ops []string
	cur, _ := strconv.ParseFloat(toks[0], 64)
	for i := 1; i+1 < len(toks); i += 2 {
		n, _ := strconv.ParseFloat(toks[i+1], 64)
		switch toks[i] {
		case "*":
			cur *= n
		case "/":
			if n == 0 {
				return "", ora.ErrDivisorZero
			}
			cur /= n
		default:
			terms = append(terms, cur)
			ops = append(ops, toks[i])
			cur = n
		}
	}
	terms = append(terms, cur)
	total := terms[0]
	for i, op := range ops {
		if op == "+" {
			total += terms[i+1]
		} else {
			total -= terms[i+1]
		}
	}
	return strconv.FormatFloat(total, 'f', -1, 64), nil
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// paramDef is an initialization parameter. Defaults may reference {SID},
// {DB}, {BASE} and {HOME}.
type paramDef struct {
	name   string
	typ    string
	def    string
	static bool
}

var parameterCatalog = []paramDef{
	{"audit_file_dest", "string", "{BASE}/admin/{SID}/adump", true},
	{"audit_trail", "string", "DB", true},
	{"compatible", "string", "19.0.0", true},
	{"control_files", "string", "{BASE}/oradata/{SID}/control01.ctl, {BASE}/fast_recovery_area/{DB}/control02.ctl", true},
	{"db_block_size", "integer", "8192", true},
	{"db_create_file_dest", "string", "", false},
	{"db_domain", "string", "", true},
	{"db_name", "string", "{DB}", true},
	{"db_recovery_file_dest", "string", "{BASE}/fast_recovery_area", false},
	{"db_recovery_file_dest_size", "big integer", "12732M", false},
	{"db_unique_name", "string", "{DB}", true},
	{"diagnostic_dest", "string", "{BASE}", false},
	{"dispatchers", "string", "(PROTOCOL=TCP) (SERVICE={SID}XDB)", false},
	{"instance_name", "string", "{SID}", true},
	{"job_queue_processes", "integer", "80", false},
	{"local_listener", "string", "", false},
	{"log_archive_dest_1", "string", "", false},
	{"log_archive_format", "string", "%t_%s_%r.dbf", true},
	{"memory_target", "big integer", "0", false},
	{"nls_language", "string", "AMERICAN", false},
	{"open_cursors", "integer", "300", false},
	{"pga_aggregate_target", "big integer", "512M", false},
	{"processes", "integer", "300", true},
	{"remote_login_passwordfile", "string", "EXCLUSIVE", true},
	{"service_names", "string", "{DB}", false},
	{"sessions", "integer", "472", true},
	{"sga_max_size", "big integer", "1536M", true},
	{"sga_target", "big integer", "1536M", false},
	{"spfile", "string", "{HOME}/dbs/spfile{SID}.ora", true},
	{"undo_tablespace", "string", "UNDOTBS1", false},
}

func findParameter(name string) (paramDef, bool) {
	name = strings.ToLower(name)
	for _, p := range parameterCatalog {
		if p.name == name {
			return p, true
		}
	}
	return paramDef{}, false
}

func parameterValue(s *shell.Session, p paramDef) string {
	if v, ok := s.Oracle.Parameter(p.name); ok {
		return v
	}
	return strings.NewReplacer(
		"{SID}", s.Oracle.SID,
		"{DB}", s.Oracle.DBName(),
		"{BASE}", base(s),
		"{HOME}", home(s),
	).Replace(p.def)
}

// spfilePrefix marks a value written with SCOPE=SPFILE; STARTUP applies it.
const spfilePrefix = "_spfile."

var reSetParameter = regexp.MustCompile(`(?i)^(\w+)\s*=\s*(.+?)(?:\s+SCOPE\s*=\s*(\w+))?(?:\s+SID\s*=\s*'[^']*')?$`)

// setParameter handles ALTER SYSTEM SET and reports success.
func (q *sqlplus) setParameter(clause string) bool {
	s, st := q.s, q.s.Oracle
	m := reSetParameter.FindStringSubmatch(strings.TrimSpace(clause))
	if m == nil {
		q.fail(ora.ErrInvalidOption)
		return false
	}
	p, ok := findParameter(m[1])
	if !ok {
		q.fail(ora.ErrNoSuchSystemParam)
		return false
	}
	value := strings.Trim(strings.TrimSpace(m[2]), `'"`)
	scope := strings.ToUpper(m[3])
	switch scope {
	case "", "BOTH", "MEMORY", "SPFILE":
	default:
		q.fail(ora.ErrInvalidOption)
		return false
	}
	if p.static && scope != "SPFILE" {
		q.fail(ora.ErrStaticParameter)
		return false
	}
	switch p.typ {
	case "integer":
		if _, err := strconv.Atoi(value); err != nil {
			q.fail(ora.ErrIntegerRequired)
			return false
		}
	case "big integer":
		if _, err := strconv.Atoi(value); err != nil && sizeBytes(value) == 0 {
			q.fail(ora.ErrIntegerRequired)
			return false
		}
	}
	if scope == "SPFILE" {
		st.SetParameter(spfilePrefix+p.name, value)
	} else {
		st.SetParameter(p.name, value)
	}
	alert(s, fmt.Sprintf("ALTER SYSTEM SET %s=%s SCOPE=%s;", p.name, value, orDefault(scope, "BOTH")))
	return true
}
