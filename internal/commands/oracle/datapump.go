package oracle

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"orasim/internal/logging"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// dumpHeader starts every dump file the simulator writes; the manifest
// follows it as YAML.
const dumpHeader = "# Oracle Data Pump dump file\n"

type dumpManifest struct {
	Job     string       `yaml:"job"`
	GUID    string       `yaml:"guid"`
	Mode    string       `yaml:"mode"`
	Source  string       `yaml:"source"`
	Created string       `yaml:"created"`
	Schemas []dumpSchema `yaml:"schemas"`
}

type dumpSchema struct {
	Name              string   `yaml:"name"`
	Password          string   `yaml:"password"`
	DefaultTablespace string   `yaml:"default_tablespace,omitempty"`
	Roles             []string `yaml:"roles,omitempty"`
	Privileges        []string `yaml:"privileges,omitempty"`
	Tables            []string `yaml:"tables,omitempty"`
}

// sampleTables are the demo schema tables and what unloading them reports.
var sampleTables = map[string][]struct {
	name string
	size string
	rows int
}{
	"SCOTT": {
		{"DEPT", "6.023 KB", 4},
		{"EMP", "8.773 KB", 14},
		{"SALGRADE", "5.953 KB", 5},
		{"BONUS", "0 KB", 0},
	},
}

// oracleMaintained users are created by dbca and never exported.
var oracleMaintained = map[string]bool{"SYS": true, "SYSTEM": true, "DBSNMP": true}

var dumpObjectTypes = []string{
	"TABLE/TABLE_DATA",
	"TABLE/INDEX/STATISTICS/INDEX_STATISTICS",
	"STATISTICS/MARKER",
	"USER",
	"SYSTEM_GRANT",
	"ROLE_GRANT",
	"DEFAULT_ROLE",
	"TABLESPACE_QUOTA",
	"PRE_SCHEMA/PROCACT_SCHEMA",
	"TABLE/TABLE",
}

type dataPump struct {
	s      *shell.Session
	export bool
	opts   map[string]string
	user   string
	cmd    string
}

func cmdExpdp(s *shell.Session, args []string) { runDataPump(s, true, args) }

func cmdImpdp(s *shell.Session, args []string) { runDataPump(s, false, args) }

func runDataPump(s *shell.Session, export bool, args []string) {
	d := &dataPump{s: s, export: export, opts: map[string]string{}}
	var cred string
	for _, a := range args[1:] {
		if k, v, ok := strings.Cut(a, "="); ok {
			d.opts[strings.ToLower(k)] = strings.Trim(v, `"'`)
			continue
		}
		if cred == "" {
			cred = a
		}
	}
	if v, ok := d.opts["userid"]; ok {
		cred = v
	}
	tool := "Import"
	if export {
		tool = "Export"
	}
	toolBanner(s, tool, "1982")
	d.cmd = d.commandLine(cred)

	run := func(l logon) {
		if !d.logon(l) {
			return
		}
		if export {
			d.runExport()
		} else {
			d.runImport()
		}
	}
	if cred != "" {
		l := parseLogon(cred)
		if !l.os && !l.hasPass {
			askSecret(s, "Password: ", func(pw string) {
				l.password, l.hasPass = pw, true
				run(l)
			})
			return
		}
		run(l)
		return
	}
	askLine(s, "Username: ", func(user string) {
		l := parseLogon(user)
		if l.os || l.hasPass {
			run(l)
			return
		}
		askSecret(s, "Password: ", func(pw string) {
			l.password, l.hasPass = pw, true
			run(l)
		})
	})
}

// commandLine echoes the job parameters with the password masked.
func (d *dataPump) commandLine(cred string) string {
	parts := []string{}
	if cred != "" {
		l := parseLogon(cred)
		who := strings.ToLower(l.user) + "/********"
		if l.os {
			who = "/********"
		}
		if l.service != "" {
			who += "@" + l.service
		}
		parts = append(parts, who)
	}
	for _, k := range []string{"full", "schemas", "tables", "directory", "dumpfile", "logfile", "remap_schema", "table_exists_action"} {
		if v, ok := d.opts[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

func (d *dataPump) logon(l logon) bool {
	s := d.s
	if l.priv == "" && l.os {
		l.priv = "SYSDBA"
	}
	login := &sqlplus{s: s}
	if lines := login.authenticate(l); lines != nil {
		code := strings.TrimPrefix(strings.SplitN(lines[0], ":", 2)[0], "ORA-")
		s.Printf("UDE-%s: operation generated ORACLE error %s", code, strings.TrimLeft(code, "0"))
		s.Print(lines...)
		s.Println("")
		s.Fail()
		return false
	}
	d.user = login.user
	if login.priv == "SYSDBA" {
		d.user = "SYS"
	}
	s.Printf("Connected to: %s", productBanner)
	return true
}

// fatal prints a job-level error stack.
func (d *dataPump) fatal(lines ...string) {
	d.s.Print(lines...)
	d.s.Println("")
	d.s.Fail()
}

// directory resolves DIRECTORY=; only DATA_PUMP_DIR is defined.
func (d *dataPump) directory() (string, bool) {
	name := strings.ToUpper(d.opts["directory"])
	if name == "" {
		name = "DATA_PUMP_DIR"
	}
	if name != "DATA_PUMP_DIR" {
		d.fatal("ORA-39002: invalid operation", "ORA-39070: Unable to open the log file.", fmt.Sprintf("ORA-39087: directory name %s is invalid", name))
		return "", false
	}
	dir := base(d.s) + "/admin/" + d.s.Oracle.SID + "/dpdump"
	if !d.s.FS.IsDirectory(dir) {
		d.fatal("ORA-39002: invalid operation", "ORA-39070: Unable to open the log file.", "ORA-29283: invalid file operation: nonexistent file or path [29434]")
		return "", false
	}
	return dir, true
}

func (d *dataPump) privileged() bool {
	role := "DATAPUMP_IMP_FULL_DATABASE"
	if d.export {
		role = "DATAPUMP_EXP_FULL_DATABASE"
	}
	return d.user == "SYS" || d.s.Oracle.HasPrivilege(d.user, role)
}

func (d *dataPump) jobName(mode string) string {
	verb := "IMPORT"
	if d.export {
		verb = "EXPORT"
	}
	if v := d.opts["job_name"]; v != "" {
		return strings.ToUpper(v)
	}
	return "SYS_" + verb + "_" + mode + "_01"
}

func (d *dataPump) mode() string {
	switch {
	case strings.EqualFold(d.opts["full"], "y"), strings.EqualFold(d.opts["full"], "yes"):
		return "FULL"
	case d.opts["tables"] != "":
		return "TABLE"
	}
	return "SCHEMA"
}

func (d *dataPump) finishJob(job string, lines []string, errors int) {
	s := d.s
	when := s.Oracle.Now().Format("Mon Jan 2 15:04:05 2006")
	owner := fmt.Sprintf("%q.%q", d.user, job)
	if errors > 0 {
		lines = append(lines, fmt.Sprintf("Job %s completed with %d error(s) at %s elapsed 0 00:00:03", owner, errors, when))
	} else {
		lines = append(lines, fmt.Sprintf("Job %s successfully completed at %s elapsed 0 00:00:03", owner, when))
	}
	s.Print(lines...)
	if dir, ok := d.directory(); ok {
		logfile := d.opts["logfile"]
		if logfile == "" {
			logfile = "export.log"
			if !d.export {
				logfile = "import.log"
			}
		}
		if !strings.EqualFold(d.opts["nologfile"], "y") {
			writeFile(s, path.Join(dir, logfile), strings.Join(lines, "\n")+"\n")
		}
	}
}

func (d *dataPump) runExport() {
	s, st := d.s, d.s.Oracle
	dir, ok := d.directory()
	if !ok {
		return
	}
	mode := d.mode()
	var names []string
	switch mode {
	case "FULL":
		for _, n := range st.UserNames() {
			if !oracleMaintained[n] {
				names = append(names, n)
			}
		}
	case "SCHEMA":
		list := d.opts["schemas"]
		if list == "" {
			list = d.user
		}
		for _, n := range splitList(strings.ToUpper(list)) {
			if _, ok := st.User(n); !ok {
				d.fatal("ORA-39001: invalid argument value", fmt.Sprintf("ORA-39170: Schema expression '%s' does not correspond to any schemas.", n))
				return
			}
			names = append(names, n)
		}
	case "TABLE":
		names = []string{d.user}
	}
	for _, n := range names {
		if (n != d.user || mode == "FULL") && !d.privileged() {
			d.fatal("ORA-31631: privileges are required", "ORA-39149: cannot link privileged user to non-privileged user")
			return
		}
	}
	dumpfile := d.opts["dumpfile"]
	if dumpfile == "" {
		dumpfile = "expdat.dmp"
	}
	target := path.Join(dir, dumpfile)
	if s.FS.Exists(target) {
		d.fatal("ORA-39001: invalid argument value", "ORA-39000: bad dump file specification",
			fmt.Sprintf("ORA-31641: unable to create dump file %q", target),
			"ORA-27038: created file already exists", "Additional information: 1")
		return
	}

	job := d.jobName(mode)
	m := dumpManifest{
		Job:     job,
		GUID:    strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")),
		Mode:    mode,
		Source:  st.DBName(),
		Created: st.Now().Format("2006-01-02T15:04:05"),
	}
	lines := []string{fmt.Sprintf("Starting %q.%q:  %s ", d.user, job, d.cmd)}
	for _, t := range dumpObjectTypes {
		lines = append(lines, fmt.Sprintf("Processing object type %s_EXPORT/%s", mode, t))
	}
	for _, n := range names {
		u, _ := st.User(n)
		sch := dumpSchema{
			Name:              n,
			Password:          u.Password,
			DefaultTablespace: u.DefaultTablespace,
			Roles:             u.GrantedRoles.Sorted(),
			Privileges:        u.GrantedPrivileges.Sorted(),
		}
		for _, t := range sampleTables[n] {
			sch.Tables = append(sch.Tables, t.name)
			lines = append(lines, fmt.Sprintf(". . exported %-38s %10s %6d rows", fmt.Sprintf("%q.%q", n, t.name), t.size, t.rows))
		}
		m.Schemas = append(m.Schemas, sch)
	}
	out, err := yaml.Marshal(m)
	if err != nil {
		logging.Get(logging.CategoryOracle).Error("dump manifest: %v", err)
		d.fatal("ORA-39006: internal error")
		return
	}
	writeFile(s, target, dumpHeader+string(out))
	s.FS.SetOwner(target, "oracle", "oinstall", false)
	logging.Oracle("expdp %s wrote %s (%d schemas)", job, target, len(names))

	lines = append(lines,
		fmt.Sprintf("Master table %q.%q successfully loaded/unloaded", d.user, job),
		strings.Repeat("*", 78),
		fmt.Sprintf("Dump file set for %s.%s is:", d.user, job),
		"  "+target,
	)
	d.finishJob(job, lines, 0)
}

// remaps parses REMAP_SCHEMA=a:b[,c:d].
func (d *dataPump) remaps() map[string]string {
	out := map[string]string{}
	for _, pair := range splitList(d.opts["remap_schema"]) {
		from, to, ok := strings.Cut(pair, ":")
		if ok {
			out[strings.ToUpper(strings.TrimSpace(from))] = strings.ToUpper(strings.TrimSpace(to))
		}
	}
	return out
}

func (d *dataPump) runImport() {
	s, st := d.s, d.s.Oracle
	dir, ok := d.directory()
	if !ok {
		return
	}
	dumpfile := d.opts["dumpfile"]
	if dumpfile == "" {
		dumpfile = "expdat.dmp"
	}
	source := path.Join(dir, dumpfile)
	content, ok := s.FS.ReadFile(source)
	if !ok {
		d.fatal("ORA-39001: invalid argument value", "ORA-39000: bad dump file specification",
			fmt.Sprintf("ORA-31640: unable to open dump file %q for read", source),
			"ORA-27037: unable to obtain file status", "Linux-x86_64 Error: 2: No such file or directory", "Additional information: 7")
		return
	}
	var m dumpManifest
	if !strings.HasPrefix(content, dumpHeader) || yaml.Unmarshal([]byte(strings.TrimPrefix(content, dumpHeader)), &m) != nil || m.Job == "" {
		d.fatal("ORA-39001: invalid argument value", "ORA-39000: bad dump file specification",
			fmt.Sprintf("ORA-39143: dump file %q may be an original export dump file", source))
		return
	}
	mode := m.Mode
	if mode == "" {
		mode = "SCHEMA"
	}
	remap := d.remaps()
	if !d.privileged() {
		if len(remap) > 0 {
			d.fatal("ORA-31631: privileges are required", "ORA-39122: Unprivileged users may not perform REMAP_SCHEMA remappings.")
			return
		}
		for _, sch := range m.Schemas {
			if mode == "FULL" || sch.Name != d.user {
				d.fatal("ORA-31631: privileges are required", "ORA-39109: Unprivileged users may not operate upon other users' schemas")
				return
			}
		}
	}
	job := d.jobName(mode)
	wanted := map[string]bool{}
	for _, n := range splitList(strings.ToUpper(d.opts["schemas"])) {
		wanted[n] = true
	}

	lines := []string{
		fmt.Sprintf("Master table %q.%q successfully loaded/unloaded", d.user, job),
		fmt.Sprintf("Starting %q.%q:  %s ", d.user, job, d.cmd),
	}
	errors := 0
	for _, t := range dumpObjectTypes {
		lines = append(lines, fmt.Sprintf("Processing object type %s_EXPORT/%s", mode, t))
		if t != "USER" {
			continue
		}
		for _, sch := range m.Schemas {
			if len(wanted) > 0 && !wanted[sch.Name] {
				continue
			}
			name := sch.Name
			if to, ok := remap[name]; ok {
				name = to
			}
			if _, exists := st.User(name); exists {
				lines = append(lines, fmt.Sprintf(`ORA-31684: Object type USER:"%s" already exists`, name))
				errors++
				continue
			}
			if err := d.createSchema(name, sch); err != nil {
				lines = append(lines, err.Error())
				errors++
				continue
			}
			for _, tab := range sampleTables[sch.Name] {
				lines = append(lines, fmt.Sprintf(". . imported %-38s %10s %6d rows", fmt.Sprintf("%q.%q", name, tab.name), tab.size, tab.rows))
			}
		}
	}
	logging.Oracle("impdp %s from %s: %d error(s)", job, source, errors)
	d.finishJob(job, lines, errors)
}

// createSchema recreates an exported user with its grants.
func (d *dataPump) createSchema(name string, sch dumpSchema) error {
	st := d.s.Oracle
	if err := st.CreateUser(name, sch.Password); err != nil {
		return err
	}
	if sch.DefaultTablespace != "" {
		if _, ok := st.Tablespace(sch.DefaultTablespace); ok {
			_ = st.SetDefaultTablespace(name, sch.DefaultTablespace)
		}
	}
	for _, r := range sch.Roles {
		if _, ok := st.Role(r); ok {
			_ = st.GrantRoleToUser(r, name)
		}
	}
	for _, p := range sch.Privileges {
		if ora.SystemPrivileges.Has(p) {
			_ = st.GrantPrivilege(name, p)
		}
	}
	return nil
}
