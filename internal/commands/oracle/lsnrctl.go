package oracle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"orasim/internal/logging"
	"orasim/internal/modal"
	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// listenerStartKey holds the listener start time between sessions.
const listenerStartKey = "_listener.started"

var (
	reListenerPort = regexp.MustCompile(`(?i)\(PORT\s*=\s*(\d+)\)`)
	reListenerName = regexp.MustCompile(`(?im)^([A-Z][\w]*)\s*=`)
)

// listenerHome is the ADR home of the default listener.
func listenerHome(s *shell.Session) string {
	return base(s) + "/diag/tnslsnr/" + s.FS.Hostname() + "/listener"
}

func listenerOra(s *shell.Session) string {
	return home(s) + "/network/admin/listener.ora"
}

type lsnrctl struct {
	s *shell.Session
}

func cmdLsnrctl(s *shell.Session, args []string) {
	l := &lsnrctl{s: s}
	s.Println("")
	s.Printf("LSNRCTL for Linux: Version 19.0.0.0.0 - Production on %s", strings.ToUpper(s.Oracle.Now().Format("02-Jan-2006 15:04:05")))
	s.Println("")
	s.Println("Copyright (c) 1991, 2019, Oracle.  All rights reserved.")
	s.Println("")
	tool := &modal.Tool{
		Name:    "lsnrctl",
		Prompt:  func() string { return "LSNRCTL> " },
		Rules:   l.rules(),
		Unknown: l.unknown,
	}
	if len(args) > 1 {
		if c, ok := modal.Normalize(strings.Join(args[1:], " ")); ok {
			tool.Dispatch(c)
		}
		return
	}
	drive(s, func() { tool.Enter(s.Modal) })
}

func (l *lsnrctl) rules() []modal.Rule {
	return []modal.Rule{
		rule(modal.Regex(`^START(?:\s+(\w+))?$`), l.start),
		rule(modal.Regex(`^STOP(?:\s+(\w+))?$`), l.stop),
		rule(modal.Regex(`^STATUS(?:\s+(\w+))?$`), l.status),
		rule(modal.Regex(`^SERVICES(?:\s+(\w+))?$`), l.services),
		rule(modal.Regex(`^RELOAD(?:\s+(\w+))?$`), l.reload),
		rule(modal.Regex(`^VERSION(?:\s+(\w+))?$`), l.version),
		rule(modal.Regex(`^HELP(?:\s+.*)?$`), l.help),
		rule(modal.Regex(`^(SET|SHOW)(?:\s+.*)?$`), func(modal.Call) {}),
	}
}

func (l *lsnrctl) unknown(c modal.Call) {
	word := strings.Fields(c.Line)[0]
	l.s.Printf(`NL-00853: undefined command "%s".  Try "help"`, strings.ToLower(word))
}

// config returns listener.ora, if netca has written one.
func (l *lsnrctl) config() (string, bool) {
	return l.s.FS.ReadFile(listenerOra(l.s))
}

// port is the TCP port listener.ora names, or the configured default.
func (l *lsnrctl) port() int {
	if content, ok := l.config(); ok {
		if m := reListenerPort.FindStringSubmatch(content); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return l.s.Oracle.ListenerPort
}

func (l *lsnrctl) endpoints() []string {
	port := l.port()
	return []string{
		fmt.Sprintf("(DESCRIPTION=(ADDRESS=(PROTOCOL=tcp)(HOST=%s)(PORT=%d)))", l.s.FS.Hostname(), port),
		fmt.Sprintf("(DESCRIPTION=(ADDRESS=(PROTOCOL=ipc)(KEY=EXTPROC%d)))", port),
	}
}

func (l *lsnrctl) connecting() {
	l.s.Printf("Connecting to (DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=%s)(PORT=%d)))", l.s.FS.Hostname(), l.port())
}

// known reports whether listener.ora defines name. Without a file only the
// default listener exists.
func (l *lsnrctl) known(name string) bool {
	if name == "" || strings.EqualFold(name, "LISTENER") {
		return true
	}
	content, ok := l.config()
	if !ok {
		return false
	}
	for _, m := range reListenerName.FindAllStringSubmatch(content, -1) {
		if strings.EqualFold(m[1], name) {
			return true
		}
	}
	return false
}

// down prints what every command reports against a stopped listener.
func (l *lsnrctl) down() {
	s := l.s
	l.connecting()
	s.Println(ora.ErrNoListener.Error())
	s.Println(" TNS-12560: TNS:protocol adapter error")
	s.Println("  TNS-00511: No listener")
	s.Println("   Linux Error: 111: Connection refused")
	s.Printf("Connecting to (DESCRIPTION=(ADDRESS=(PROTOCOL=IPC)(KEY=EXTPROC%d)))", l.port())
	s.Println(ora.ErrNoListener.Error())
	s.Println(" TNS-12560: TNS:protocol adapter error")
	s.Println("  TNS-00511: No listener")
	s.Println("   Linux Error: 2: No such file or directory")
}

func (l *lsnrctl) start(c modal.Call) {
	s, st := l.s, l.s.Oracle
	name := strings.ToUpper(c.Groups[1])
	if !l.known(name) {
		s.Printf("TNS-01151: Missing listener name, %s, in LISTENER.ORA", name)
		return
	}
	if st.ListenerStarted {
		l.connecting()
		s.Println("TNS-01106: Listener using listener name LISTENER has already been started")
		return
	}
	s.Printf("Starting %s/bin/tnslsnr: please wait...", home(s))
	s.Println("")
	s.Println("TNSLSNR for Linux: Version 19.0.0.0.0 - Production")
	if _, ok := l.config(); ok {
		s.Printf("System parameter file is %s", listenerOra(s))
	}
	s.Printf("Log messages written to %s/alert/log.xml", listenerHome(s))
	for _, e := range l.endpoints() {
		s.Printf("Listening on: %s", e)
	}
	s.Println("")

	st.ListenerStarted = true
	st.ListenerPort = l.port()
	st.SetParameter(listenerStartKey, st.Now().Format(time.RFC3339))
	st.Save()
	l.log("Listener started on port %d", st.ListenerPort)
	logging.Oracle("listener started on port %d", st.ListenerPort)

	l.connecting()
	l.summary()
	s.Println("The listener supports no services")
	s.Println("The command completed successfully")
}

func (l *lsnrctl) stop(c modal.Call) {
	s, st := l.s, l.s.Oracle
	if !st.ListenerStarted {
		l.down()
		return
	}
	l.connecting()
	st.ListenerStarted = false
	st.Save()
	l.log("Listener completed notification to CRS on stop")
	logging.Oracle("listener stopped")
	s.Println("The command completed successfully")
}

func (l *lsnrctl) status(c modal.Call) {
	s := l.s
	if !s.Oracle.ListenerStarted {
		l.down()
		return
	}
	l.connecting()
	l.summary()
	l.serviceSummary(false)
	s.Println("The command completed successfully")
}

func (l *lsnrctl) services(c modal.Call) {
	if !l.s.Oracle.ListenerStarted {
		l.down()
		return
	}
	l.connecting()
	l.serviceSummary(true)
	l.s.Println("The command completed successfully")
}

func (l *lsnrctl) reload(c modal.Call) {
	if !l.s.Oracle.ListenerStarted {
		l.down()
		return
	}
	l.connecting()
	l.s.Println("The command completed successfully")
}

func (l *lsnrctl) version(c modal.Call) {
	s := l.s
	if !s.Oracle.ListenerStarted {
		l.down()
		return
	}
	l.connecting()
	s.Println("TNSLSNR for Linux: Version 19.0.0.0.0 - Production")
	s.Println("        TNS for Linux: Version 19.0.0.0.0 - Production")
	s.Println("        Unix Domain Socket IPC NT Protocol Adaptor for Linux: Version 19.0.0.0.0 - Production")
	s.Println("        Oracle Bequeath NT Protocol Adapter for Linux: Version 19.0.0.0.0 - Production")
	s.Println("        TCP/IP NT Protocol Adapter for Linux: Version 19.0.0.0.0 - Production,,")
	s.Println("The command completed successfully")
}

// summary prints the STATUS block up to the endpoint list.
func (l *lsnrctl) summary() {
	s, st := l.s, l.s.Oracle
	started := st.Now()
	if v, ok := st.Parameter(listenerStartKey); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			started = t
		}
	}
	up := st.Now().Sub(started)
	if up < 0 {
		up = 0
	}
	row := func(k, v string) { s.Printf("%-26s%s", k, v) }
	s.Println("STATUS of the LISTENER")
	s.Println("------------------------")
	row("Alias", "LISTENER")
	row("Version", "TNSLSNR for Linux: Version 19.0.0.0.0 - Production")
	row("Start Date", strings.ToUpper(started.Format("02-Jan-2006 15:04:05")))
	row("Uptime", fmt.Sprintf("%d days %d hr. %d min. %d sec",
		int(up.Hours())/24, int(up.Hours())%24, int(up.Minutes())%60, int(up.Seconds())%60))
	row("Trace Level", "off")
	row("Security", "ON: Local OS Authentication")
	row("SNMP", "OFF")
	if _, ok := l.config(); ok {
		row("Listener Parameter File", listenerOra(s))
	}
	row("Listener Log File", listenerHome(s)+"/alert/log.xml")
	s.Println("Listening Endpoints Summary...")
	for _, e := range l.endpoints() {
		s.Println("  " + e)
	}
}

// serviceSummary lists what the listener can hand connections to: the
// dynamically registered instance and any static SID_LIST entry.
func (l *lsnrctl) serviceSummary(handlers bool) {
	s, st := l.s, l.s.Oracle
	type service struct{ name, instance, status string }
	var list []service
	if content, ok := l.config(); ok && strings.Contains(strings.ToUpper(content), "SID_LIST") {
		list = append(list, service{"PLSExtProc", "PLSExtProc", "UNKNOWN"})
	}
	if st.DatabaseStarted {
		status := "READY"
		if st.DatabaseMode != ora.ModeOpen {
			status = "BLOCKED"
		}
		name := strings.ToLower(st.DBName())
		list = append(list, service{name, st.SID, status}, service{name + "XDB", st.SID, status})
	}
	if len(list) == 0 {
		s.Println("The listener supports no services")
		return
	}
	s.Println("Services Summary...")
	for _, svc := range list {
		s.Printf("Service %q has 1 instance(s).", svc.name)
		s.Printf("  Instance %q, status %s, has 1 handler(s) for this service...", svc.instance, svc.status)
		if !handlers {
			continue
		}
		s.Println("    Handler(s):")
		if strings.HasSuffix(svc.name, "XDB") {
			s.Printf(`      "D000" established:0 refused:0 current:0 max:1022 state:ready`)
			s.Printf("         DISPATCHER <machine: %s, pid: 2251>", s.FS.Hostname())
			continue
		}
		s.Printf(`      "DEDICATED" established:0 refused:0 state:%s`, strings.ToLower(svc.status))
		s.Println("         LOCAL SERVER")
	}
}

// log appends an XML message to the listener's ADR alert log.
func (l *lsnrctl) log(format string, args ...any) {
	s := l.s
	p := listenerHome(s) + "/alert/log.xml"
	entry := fmt.Sprintf("<msg time='%s' org_id='oracle' comp_id='tnslsnr'\n type='UNKNOWN' level='16' host_id='%s'\n host_addr='127.0.0.1' pid='2246'>\n <txt>%s\n </txt>\n</msg>\n",
		s.Oracle.Now().Format("2006-01-02T15:04:05.000-07:00"), s.FS.Hostname(), fmt.Sprintf(format, args...))
	if s.FS.IsFile(p) {
		s.FS.AppendToFile(p, entry)
		return
	}
	writeFile(s, p, entry)
}

func (l *lsnrctl) help(modal.Call) {
	s := l.s
	s.Println("The following operations are available")
	s.Println("An asterisk (*) denotes a modifier or extended command:")
	s.Println("")
	s.Println("start           stop            status          services        ")
	s.Println("servacls        version         reload          save_config     ")
	s.Println("trace           quit            exit            set*            ")
	s.Println("show*           ")
	s.Println("")
}
