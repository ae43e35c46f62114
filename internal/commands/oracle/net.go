package oracle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	ora "orasim/internal/oracle"
	"orasim/internal/shell"
)

// tnsTarget is a resolved connect descriptor.
type tnsTarget struct {
	alias   string
	host    string
	port    int
	service string
	ez      bool
}

func (t tnsTarget) descriptor() string {
	if t.ez {
		return fmt.Sprintf("(DESCRIPTION=(CONNECT_DATA=(SERVICE_NAME=%s))(ADDRESS=(PROTOCOL=tcp)(HOST=%s)(PORT=%d)))", t.service, t.host, t.port)
	}
	return fmt.Sprintf("(DESCRIPTION = (ADDRESS = (PROTOCOL = TCP)(HOST = %s)(PORT = %d)) (CONNECT_DATA = (SERVER = DEDICATED) (SERVICE_NAME = %s)))", t.host, t.port, t.service)
}

var (
	reTnsHost    = regexp.MustCompile(`(?i)\(HOST\s*=\s*([^)\s]+)\s*\)`)
	reTnsPort    = regexp.MustCompile(`(?i)\(PORT\s*=\s*(\d+)\s*\)`)
	reTnsService = regexp.MustCompile(`(?i)\((?:SERVICE_NAME|SID)\s*=\s*([^)\s]+)\s*\)`)
)

// netAdmin is where clients read tnsnames.ora and sqlnet.ora.
func netAdmin(s *shell.Session) string {
	if dir := s.Env.Value("TNS_ADMIN"); dir != "" {
		return dir
	}
	return home(s) + "/network/admin"
}

// tnsEntries splits tnsnames.ora into alias => descriptor text. Aliases
// start in column one; the descriptor runs until its parentheses balance.
func tnsEntries(content string) map[string]string {
	out := map[string]string{}
	var alias string
	var body strings.Builder
	depth := 0
	for _, line := range shell.SplitLines(content) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if depth == 0 && line[0] != ' ' && line[0] != '\t' && line[0] != '(' {
			name, rest, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			if alias != "" {
				out[alias] = body.String()
			}
			alias = strings.ToUpper(strings.TrimSpace(name))
			body.Reset()
			line = rest
		}
		body.WriteString(line)
		depth += strings.Count(line, "(") - strings.Count(line, ")")
	}
	if alias != "" {
		out[alias] = body.String()
	}
	return out
}

// tnsAlias looks name up in tnsnames.ora. An alias without a domain also
// matches an entry qualified with one.
func tnsAlias(s *shell.Session, name string) (tnsTarget, bool) {
	content, ok := s.FS.ReadFile(netAdmin(s) + "/tnsnames.ora")
	if !ok {
		return tnsTarget{}, false
	}
	key := strings.ToUpper(name)
	for alias, body := range tnsEntries(content) {
		short, _, _ := strings.Cut(alias, ".")
		if alias != key && short != key {
			continue
		}
		t := tnsTarget{alias: alias, port: 1521}
		if m := reTnsHost.FindStringSubmatch(body); m != nil {
			t.host = m[1]
		}
		if m := reTnsPort.FindStringSubmatch(body); m != nil {
			t.port, _ = strconv.Atoi(m[1])
		}
		if m := reTnsService.FindStringSubmatch(body); m != nil {
			t.service = m[1]
		}
		return t, true
	}
	return tnsTarget{}, false
}

// tnsEntry renders the tnsnames.ora block for a local service.
func tnsEntry(s *shell.Session, name string) string {
	return fmt.Sprintf(`%s =
  (DESCRIPTION =
    (ADDRESS = (PROTOCOL = TCP)(HOST = %s)(PORT = %d))
    (CONNECT_DATA =
      (SERVER = DEDICATED)
      (SERVICE_NAME = %s)
    )
  )

`, strings.ToUpper(name), s.FS.Hostname(), s.Oracle.ListenerPort, strings.ToLower(name))
}

// localHost reports whether host names this machine.
func localHost(s *shell.Session, host string) bool {
	host = strings.ToLower(host)
	me := strings.ToLower(s.FS.Hostname())
	short, _, _ := strings.Cut(me, ".")
	switch host {
	case "localhost", "127.0.0.1", "::1", me, short:
		return true
	}
	h, _, _ := strings.Cut(host, ".")
	return h == short
}

// resolveService turns a connect identifier into a target on this host.
// EZCONNECT strings ([//]host[:port][/service]) bypass tnsnames.ora.
func resolveService(s *shell.Session, service string) (tnsTarget, bool) {
	if strings.Contains(service, "/") || strings.Contains(service, ":") {
		spec := strings.TrimPrefix(service, "//")
		hostport, svc, _ := strings.Cut(spec, "/")
		host, port, hasPort := strings.Cut(hostport, ":")
		t := tnsTarget{alias: service, host: host, port: 1521, service: svc, ez: true}
		if hasPort {
			n, err := strconv.Atoi(port)
			if err != nil {
				return tnsTarget{}, false
			}
			t.port = n
		}
		if t.service == "" {
			t.service = host
		}
		return t, localHost(s, host)
	}
	t, ok := tnsAlias(s, service)
	if !ok || !localHost(s, t.host) {
		return tnsTarget{}, false
	}
	return t, true
}

func cmdTnsping(s *shell.Session, args []string) {
	st := s.Oracle
	s.Println("")
	s.Printf("TNS Ping Utility for Linux: Version 19.0.0.0.0 - Production on %s", strings.ToUpper(st.Now().Format("02-Jan-2006 15:04:05")))
	s.Println("")
	s.Println("Copyright (c) 1997, 2019, Oracle.  All rights reserved.")
	s.Println("")
	if len(args) < 2 {
		s.Println("TNS-03502: Insufficient arguments.  Usage:  tnsping <address> [<count>]")
		s.Fail()
		return
	}
	count := 1
	if len(args) > 2 {
		if n, err := strconv.Atoi(args[2]); err == nil && n > 0 {
			count = n
		}
	}
	s.Println("Used parameter files:")
	if sqlnet := netAdmin(s) + "/sqlnet.ora"; s.FS.IsFile(sqlnet) {
		s.Println(sqlnet)
	}
	s.Println("")
	s.Println("")
	t, ok := resolveService(s, args[1])
	if !ok {
		s.Println("TNS-03505: Failed to resolve name")
		s.Println("")
		s.Fail()
		return
	}
	if t.ez {
		s.Println("Used EZCONNECT adapter to resolve the alias")
	} else {
		s.Println("Used TNSNAMES adapter to resolve the alias")
	}
	s.Printf("Attempting to contact %s", t.descriptor())
	if !st.ListenerStarted || t.port != st.ListenerPort {
		s.Println(ora.ErrNoListener.Error())
		s.Println("")
		s.Fail()
		return
	}
	for i := 0; i < count; i++ {
		s.Println("OK (0 msec)")
	}
}

// srvctl talks to Oracle Restart, which a single-instance install without
// Grid Infrastructure does not have.
func cmdSrvctl(s *shell.Session, args []string) {
	if len(args) < 2 {
		s.Print(
			"Usage: srvctl <command> <object> [<options>]",
			"    commands: enable|disable|export|import|start|stop|relocate|status|add|remove|modify|getenv|setenv|unsetenv|config|convert|update|upgrade|downgrade|predict",
			"    objects: database|service|asm|diskgroup|listener|home|ons|exportfs|rhpserver|rhpclient|havip|oraclehome|filesystem|volume|vm|gns",
			"For detailed help on each command and object and its options use:",
			"  srvctl <command> -help [-compatible] or",
			"  srvctl <command> <object> -help [-compatible]",
		)
		return
	}
	if args[1] == "-version" || args[1] == "-V" {
		s.Println("srvctl version: 19.0.0.0.0")
		return
	}
	if len(args) < 3 {
		s.Println("PRKO-2001 : Invalid command line syntax")
		s.Fail()
		return
	}
	verb, object := strings.ToLower(args[1]), strings.ToLower(args[2])
	switch verb {
	case "enable", "disable", "start", "stop", "status", "add", "remove", "modify", "config", "relocate":
	default:
		s.Println("PRKO-2001 : Invalid command line syntax")
		s.Fail()
		return
	}
	opts := keyValues(args[3:])
	switch object {
	case "database":
		db := opts["db"]
		if db == "" {
			db = opts["d"]
		}
		if db == "" {
			if verb == "config" {
				return
			}
			s.Println("PRKO-2002 : Invalid command line option: missing -db")
			s.Fail()
			return
		}
		s.Printf("PRCD-1120 : The resource for database %s could not be found.", db)
		s.Printf("PRCR-1001 : Resource ora.%s.db does not exist", strings.ToLower(db))
	case "listener":
		s.Println("PRCN-2044 : No listener exists")
	case "service", "asm", "diskgroup", "home", "ons":
		s.Printf("PRCR-1001 : Resource ora.%s does not exist", object)
	default:
		s.Println("PRKO-2001 : Invalid command line syntax")
	}
	s.Fail()
}
