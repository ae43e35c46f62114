package system

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"orasim/internal/shell"
	"orasim/internal/vfs"
)

const (
	unitRunDir   = "/run/systemd/units"
	unitWantsDir = "/etc/systemd/system/multi-user.target.wants"
)

type unit struct {
	desc, binary, docs string
	pid                int
}

var builtinUnits = map[string]unit{
	"firewalld":      {"firewalld - dynamic firewall daemon", "/usr/sbin/firewalld", "man:firewalld(1)", 803},
	"sshd":           {"OpenSSH server daemon", "/usr/sbin/sshd", "man:sshd(8)", 912},
	"chronyd":        {"NTP client/server", "/usr/sbin/chronyd", "man:chronyd(8)", 918},
	"crond":          {"Command Scheduler", "/usr/sbin/crond", "man:crond(8)", 930},
	"NetworkManager": {"Network Manager", "/usr/sbin/NetworkManager", "man:NetworkManager(8)", 781},
	"tuned":          {"Dynamic System Tuning Daemon", "/usr/sbin/tuned", "man:tuned(8)", 0},
	"kdump":          {"Crash recovery kernel arming", "/usr/bin/kdumpctl", "man:kdump(5)", 0},
}

// defaultActive are the units running after boot.
var defaultActive = []string{"firewalld", "sshd", "chronyd", "crond", "NetworkManager"}

func unitName(name string) string {
	return strings.TrimSuffix(name, ".service")
}

// ensureUnits lays down the boot-time unit state on first use. Reboot
// wipes /run, so the active set starts over while enablement persists.
func ensureUnits(fs *vfs.FS) {
	if !fs.Exists(unitWantsDir) {
		fs.MkdirAll(unitWantsDir)
		for _, u := range defaultActive {
			fs.Touch(unitWantsDir+"/"+u+".service", "")
		}
	}
	if !fs.Exists(unitRunDir) {
		fs.MkdirAll(unitRunDir)
		for _, u := range defaultActive {
			if fs.Exists(unitWantsDir + "/" + u + ".service") {
				fs.Touch(unitRunDir+"/invocation:"+u+".service", "")
			}
		}
		if fs.Exists(unitRunDir + "/invocation:firewalld.service") {
			loadRuntimeZone(fs)
		}
	}
}

func knownUnit(fs *vfs.FS, name string) (unit, bool) {
	if u, ok := builtinUnits[name]; ok {
		return u, true
	}
	if content, ok := fs.ReadFile("/etc/systemd/system/" + name + ".service"); ok {
		u := unit{desc: name}
		for _, line := range shell.SplitLines(content) {
			if d, ok := strings.CutPrefix(strings.TrimSpace(line), "Description="); ok {
				u.desc = d
			}
		}
		return u, true
	}
	return unit{}, false
}

// unitState reports whether a unit is active and enabled.
func unitState(s *shell.Session, name string) (active, enabled bool) {
	ensureUnits(s.FS)
	return s.FS.Exists(unitRunDir + "/invocation:" + name + ".service"),
		s.FS.Exists(unitWantsDir + "/" + name + ".service")
}

// ServiceActive reports whether a systemd unit is running.
func ServiceActive(s *shell.Session, name string) bool {
	active, _ := unitState(s, unitName(name))
	return active
}

func setActive(s *shell.Session, name string, on bool) {
	p := unitRunDir + "/invocation:" + name + ".service"
	if on {
		if !s.FS.Exists(p) {
			s.FS.Touch(p, "")
		}
		if name == "firewalld" {
			loadRuntimeZone(s.FS)
		}
		return
	}
	s.FS.Rm(p, false)
}

func setEnabled(s *shell.Session, name string, on bool) {
	p := unitWantsDir + "/" + name + ".service"
	target := "/usr/lib/systemd/system/" + name + ".service"
	if on {
		if !s.FS.Exists(p) {
			s.FS.Touch(p, "")
			s.Printf("Created symlink %s → %s.", p, target)
		}
		return
	}
	if s.FS.Exists(p) {
		s.FS.Rm(p, false)
		s.Printf("Removed \"%s\".", p)
	}
}

func cmdSystemctl(s *shell.Session, args []string) {
	fs := shell.NewFlags("systemctl")
	now := fs.Bool("now", false, "")
	fs.BoolP("quiet", "q", false, "")
	fs.Bool("no-pager", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) == 0 {
		listUnits(s)
		return
	}
	verb, units := operands[0], operands[1:]

	switch verb {
	case "daemon-reload":
		mustBeRoot(s, "Failed to reload daemon: Access denied")
		return
	case "list-units":
		listUnits(s)
		return
	case "status", "is-active", "is-enabled", "start", "stop", "restart", "reload", "enable", "disable":
	default:
		s.Errorf("Unknown command verb %s.", verb)
		return
	}
	if len(units) == 0 {
		s.Error("Too few arguments.")
		return
	}
	for _, raw := range units {
		name := unitName(raw)
		u, known := knownUnit(s.FS, name)
		active, enabled := unitState(s, name)
		switch verb {
		case "status":
			if !known {
				s.Errorf("Unit %s.service could not be found.", name)
				continue
			}
			unitStatus(s, name, u, active, enabled)
		case "is-active":
			if active {
				s.Println("active")
			} else {
				s.Println("inactive")
				s.Fail()
			}
		case "is-enabled":
			switch {
			case !known:
				s.Errorf("Failed to get unit file state for %s.service: No such file or directory", name)
			case enabled:
				s.Println("enabled")
			default:
				s.Println("disabled")
				s.Fail()
			}
		default:
			if !known {
				s.Errorf("Failed to %s %s.service: Unit %s.service not found.", verb, name, name)
				continue
			}
			if s.Env.User() != "root" {
				s.Errorf("Failed to %s %s.service: Interactive authentication required.", verb, name)
				continue
			}
			switch verb {
			case "start", "restart", "reload":
				setActive(s, name, true)
			case "stop":
				setActive(s, name, false)
			case "enable":
				setEnabled(s, name, true)
				if *now {
					setActive(s, name, true)
				}
			case "disable":
				setEnabled(s, name, false)
				if *now {
					setActive(s, name, false)
				}
			}
		}
	}
}

func unitStatus(s *shell.Session, name string, u unit, active, enabled bool) {
	bullet, state := "○", "inactive (dead)"
	if active {
		bullet = "●"
		state = fmt.Sprintf("active (running) since %s; %s ago", s.Booted().Format("Mon 2006-01-02 15:04:05 MST"), prettyDuration(s.Clock().Sub(s.Booted())))
	}
	en := "disabled"
	if enabled {
		en = "enabled"
	}
	file := "/usr/lib/systemd/system/" + name + ".service"
	if _, builtin := builtinUnits[name]; !builtin {
		file = "/etc/systemd/system/" + name + ".service"
	}
	s.Printf("%s %s.service - %s", bullet, name, u.desc)
	s.Printf("     Loaded: loaded (%s; %s; preset: %s)", file, en, en)
	s.Printf("     Active: %s", state)
	if u.docs != "" {
		s.Printf("       Docs: %s", u.docs)
	}
	if active && u.pid > 0 {
		s.Printf("   Main PID: %d (%s)", u.pid, path.Base(u.binary))
	}
}

func listUnits(s *shell.Session) {
	names := make([]string, 0, len(builtinUnits))
	for n := range builtinUnits {
		names = append(names, n)
	}
	sort.Strings(names)
	s.Printf("  %-30s %-7s %-7s %-8s %s", "UNIT", "LOAD", "ACTIVE", "SUB", "DESCRIPTION")
	count := 0
	for _, n := range names {
		if active, _ := unitState(s, n); active {
			s.Printf("  %-30s %-7s %-7s %-8s %s", n+".service", "loaded", "active", "running", builtinUnits[n].desc)
			count++
		}
	}
	s.Println("")
	s.Printf("%d loaded units listed.", count)
}

// Firewall zones are stored in firewalld's XML layout, permanent under /etc
// and runtime under /run.
const (
	zonePermanent = "/etc/firewalld/zones/public.xml"
	zoneRuntime   = "/run/firewalld/zones/public.xml"
)

type zone struct {
	services []string
	ports    []string // 1521/tcp
}

var (
	reZoneService = regexp.MustCompile(`<service name="([^"]+)"/>`)
	reZonePort    = regexp.MustCompile(`<port port="([^"]+)" protocol="([^"]+)"/>`)
)

func readZone(fs *vfs.FS, p string) (zone, bool) {
	content, ok := fs.ReadFile(p)
	if !ok {
		return zone{}, false
	}
	var z zone
	for _, m := range reZoneService.FindAllStringSubmatch(content, -1) {
		z.services = append(z.services, m[1])
	}
	for _, m := range reZonePort.FindAllStringSubmatch(content, -1) {
		z.ports = append(z.ports, m[1]+"/"+m[2])
	}
	return z, true
}

func writeZone(fs *vfs.FS, p string, z zone) {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<zone>\n  <short>Public</short>\n")
	for _, svc := range z.services {
		fmt.Fprintf(&b, "  <service name=\"%s\"/>\n", svc)
	}
	for _, port := range z.ports {
		num, proto, _ := strings.Cut(port, "/")
		fmt.Fprintf(&b, "  <port port=\"%s\" protocol=\"%s\"/>\n", num, proto)
	}
	b.WriteString("</zone>\n")
	fs.MkdirAll(path.Dir(p))
	fs.WriteFile(p, b.String())
}

func permanentZone(fs *vfs.FS) zone {
	z, ok := readZone(fs, zonePermanent)
	if !ok {
		z = zone{services: []string{"cockpit", "dhcpv6-client", "ssh"}}
		writeZone(fs, zonePermanent, z)
	}
	return z
}

func runtimeZone(fs *vfs.FS) zone {
	z, ok := readZone(fs, zoneRuntime)
	if !ok {
		z = loadRuntimeZone(fs)
	}
	return z
}

// loadRuntimeZone replaces the runtime configuration with the permanent one.
func loadRuntimeZone(fs *vfs.FS) zone {
	z := permanentZone(fs)
	writeZone(fs, zoneRuntime, z)
	return z
}

// FirewallPortOpen reports whether the running firewall allows port/proto.
func FirewallPortOpen(s *shell.Session, portProto string) bool {
	if !ServiceActive(s, "firewalld") {
		return false
	}
	for _, p := range runtimeZone(s.FS).ports {
		if p == portProto {
			return true
		}
	}
	return false
}

func addUnique(list []string, v string) ([]string, bool) {
	for _, x := range list {
		if x == v {
			return list, false
		}
	}
	return append(list, v), true
}

func removeItem(list []string, v string) ([]string, bool) {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

var rePortSpec = regexp.MustCompile(`^\d+(-\d+)?/(tcp|udp)$`)

func cmdFirewall(s *shell.Session, args []string) {
	fs := shell.NewFlags("firewall-cmd")
	state := fs.Bool("state", false, "")
	permanent := fs.Bool("permanent", false, "")
	reload := fs.Bool("reload", false, "")
	fs.String("zone", "public", "")
	addPort := fs.StringArray("add-port", nil, "")
	removePort := fs.StringArray("remove-port", nil, "")
	addService := fs.StringArray("add-service", nil, "")
	removeService := fs.StringArray("remove-service", nil, "")
	listPorts := fs.Bool("list-ports", false, "")
	listServices := fs.Bool("list-services", false, "")
	listAll := fs.Bool("list-all", false, "")
	defaultZone := fs.Bool("get-default-zone", false, "")
	activeZones := fs.Bool("get-active-zones", false, "")
	queryPort := fs.String("query-port", "", "")
	if _, ok := s.ParseFlags(fs, args); !ok {
		return
	}

	running := ServiceActive(s, "firewalld")
	if *state {
		if running {
			s.Println("running")
		} else {
			s.Error("not running")
		}
		return
	}
	if !running && !*permanent {
		s.Error("FirewallD is not running")
		return
	}

	modifying := len(*addPort)+len(*removePort)+len(*addService)+len(*removeService) > 0 || *reload
	if modifying && !mustBeRoot(s, "Authorization failed.") {
		return
	}

	zonePath := zoneRuntime
	z := runtimeZone(s.FS)
	if *permanent {
		zonePath = zonePermanent
		z = permanentZone(s.FS)
	}

	switch {
	case *reload:
		loadRuntimeZone(s.FS)
		s.Println("success")
		return
	case *defaultZone:
		s.Println("public")
		return
	case *activeZones:
		s.Println("public")
		s.Println("  interfaces: enp0s3")
		return
	case *queryPort != "":
		for _, p := range z.ports {
			if p == *queryPort {
				s.Println("yes")
				return
			}
		}
		s.Println("no")
		s.Fail()
		return
	case *listPorts:
		s.Println(strings.Join(z.ports, " "))
		return
	case *listServices:
		s.Println(strings.Join(z.services, " "))
		return
	case *listAll:
		s.Print("public (active)",
			"  target: default",
			"  icmp-block-inversion: no",
			"  interfaces: enp0s3",
			"  sources: ",
			"  services: "+strings.Join(z.services, " "),
			"  ports: "+strings.Join(z.ports, " "),
			"  protocols: ",
			"  forward: yes",
			"  masquerade: no",
			"  forward-ports: ",
			"  source-ports: ",
			"  icmp-blocks: ",
			"  rich rules: ")
		return
	}

	if !modifying {
		s.Println("usage: see firewall-cmd man page")
		return
	}
	for _, p := range append(append([]string{}, *addPort...), *removePort...) {
		if !rePortSpec.MatchString(p) {
			s.Errorf("Error: INVALID_PORT: %s", p)
			return
		}
	}
	for _, p := range *addPort {
		var added bool
		if z.ports, added = addUnique(z.ports, p); !added {
			s.Printf("Warning: ALREADY_ENABLED: %s", p)
		}
	}
	for _, p := range *removePort {
		var removed bool
		if z.ports, removed = removeItem(z.ports, p); !removed {
			s.Printf("Warning: NOT_ENABLED: %s", p)
		}
	}
	for _, svc := range *addService {
		var added bool
		if z.services, added = addUnique(z.services, svc); !added {
			s.Printf("Warning: ALREADY_ENABLED: %s", svc)
		}
	}
	for _, svc := range *removeService {
		var removed bool
		if z.services, removed = removeItem(z.services, svc); !removed {
			s.Printf("Warning: NOT_ENABLED: %s", svc)
		}
	}
	writeZone(s.FS, zonePath, z)
	s.Println("success")
}

const selinuxEnforce = "/sys/fs/selinux/enforce"

// SELinuxMode returns Enforcing, Permissive or Disabled.
func SELinuxMode(fs *vfs.FS) string {
	configured := "enforcing"
	if content, ok := fs.ReadFile("/etc/selinux/config"); ok {
		for _, line := range shell.SplitLines(content) {
			if v, ok := strings.CutPrefix(strings.TrimSpace(line), "SELINUX="); ok {
				configured = strings.ToLower(strings.TrimSpace(v))
			}
		}
	}
	if configured == "disabled" {
		return "Disabled"
	}
	if v, ok := fs.ReadFile(selinuxEnforce); ok {
		if strings.TrimSpace(v) == "0" {
			return "Permissive"
		}
		return "Enforcing"
	}
	if configured == "permissive" {
		return "Permissive"
	}
	return "Enforcing"
}

func cmdGetenforce(s *shell.Session, _ []string) {
	s.Println(SELinuxMode(s.FS))
}

func cmdSetenforce(s *shell.Session, args []string) {
	if len(args) != 2 {
		s.Error("usage:  setenforce [ Enforcing | Permissive | 1 | 0 ]")
		return
	}
	var value string
	switch strings.ToLower(args[1]) {
	case "0", "permissive":
		value = "0"
	case "1", "enforcing":
		value = "1"
	default:
		s.Error("usage:  setenforce [ Enforcing | Permissive | 1 | 0 ]")
		return
	}
	if SELinuxMode(s.FS) == "Disabled" {
		s.Error("setenforce: SELinux is disabled")
		return
	}
	if !mustBeRoot(s, "setenforce:  security_setenforce() failed:  Permission denied") {
		return
	}
	s.FS.MkdirAll(path.Dir(selinuxEnforce))
	s.FS.WriteFile(selinuxEnforce, value+"\n")
}

// kernelDefaults are the runtime values of a fresh RHEL9 host.
var kernelDefaults = map[string]string{
	"fs.file-max":                     "9223372036854775807",
	"fs.aio-max-nr":                   "65536",
	"kernel.sem":                      "32000\t1024000000\t500\t32000",
	"kernel.shmmni":                   "4096",
	"kernel.shmall":                   "18446744073692774399",
	"kernel.shmmax":                   "18446744073692774399",
	"kernel.panic_on_oops":            "1",
	"kernel.osrelease":                kernelRelease,
	"kernel.ostype":                   "Linux",
	"net.core.rmem_default":           "212992",
	"net.core.rmem_max":               "212992",
	"net.core.wmem_default":           "212992",
	"net.core.wmem_max":               "212992",
	"net.ipv4.conf.all.rp_filter":     "1",
	"net.ipv4.conf.default.rp_filter": "1",
	"net.ipv4.ip_local_port_range":    "32768\t60999",
	"vm.swappiness":                   "30",
}

func procPath(key string) string {
	return "/proc/sys/" + strings.ReplaceAll(key, ".", "/")
}

// KernelValue returns the runtime value of a kernel parameter.
func KernelValue(fs *vfs.FS, key string) (string, bool) {
	if key == "kernel.hostname" {
		return fs.Hostname(), true
	}
	if v, ok := fs.ReadFile(procPath(key)); ok {
		return strings.TrimSpace(v), true
	}
	v, ok := kernelDefaults[key]
	return v, ok
}

func kernelKeys(fs *vfs.FS) []string {
	set := map[string]bool{"kernel.hostname": true}
	for k := range kernelDefaults {
		set[k] = true
	}
	var walk func(dir, prefix string)
	walk = func(dir, prefix string) {
		entries, _ := fs.Ls(dir)
		for _, e := range entries {
			key := prefix + e.Name
			if e.IsDir() {
				walk(dir+"/"+e.Name, key+".")
				continue
			}
			set[key] = true
		}
	}
	walk("/proc/sys", "")
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmdSysctl(s *shell.Session, args []string) {
	fs := shell.NewFlags("sysctl")
	load := fs.StringP("load", "p", "", "")
	fs.Lookup("load").NoOptDefVal = "/etc/sysctl.conf"
	system := fs.Bool("system", false, "")
	write := fs.BoolP("write", "w", false, "")
	all := fs.BoolP("all", "a", false, "")
	valuesOnly := fs.BoolP("values", "n", false, "")
	quiet := fs.BoolP("quiet", "q", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}

	show := func(key, value string) {
		if *quiet {
			return
		}
		value = strings.Join(strings.Fields(value), "\t")
		if *valuesOnly {
			s.Println(value)
			return
		}
		s.Printf("%s = %s", key, value)
	}
	set := func(key, value string) bool {
		if !mustBeRoot(s, fmt.Sprintf("sysctl: permission denied on key \"%s\"", key)) {
			return false
		}
		if _, known := KernelValue(s.FS, key); !known {
			s.Errorf("sysctl: cannot stat %s: No such file or directory", procPath(key))
			return false
		}
		p := procPath(key)
		s.FS.MkdirAll(path.Dir(p))
		s.FS.WriteFile(p, strings.Join(strings.Fields(value), "\t")+"\n")
		show(key, value)
		return true
	}
	apply := func(file string) {
		content, ok := s.FS.ReadFile(file)
		if !ok {
			s.Errorf("sysctl: cannot open \"%s\": No such file or directory", file)
			return
		}
		for _, line := range shell.SplitLines(content) {
			line = strings.TrimSpace(line)
			if line == "" || line[0] == '#' || line[0] == ';' {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}

	switch {
	case *system:
		var files []string
		if entries, ok := s.FS.Ls("/etc/sysctl.d"); ok {
			for _, e := range entries {
				if strings.HasSuffix(e.Name, ".conf") && !e.IsDir() {
					files = append(files, "/etc/sysctl.d/"+e.Name)
				}
			}
		}
		sort.Strings(files)
		files = append(files, "/etc/sysctl.conf")
		for _, f := range files {
			if !*quiet {
				s.Printf("* Applying %s ...", f)
			}
			apply(f)
		}
	case fs.Changed("load"):
		files := operands
		if len(files) == 0 {
			files = []string{*load}
		}
		for _, f := range files {
			apply(f)
		}
	case *all:
		for _, k := range kernelKeys(s.FS) {
			v, _ := KernelValue(s.FS, k)
			show(k, v)
		}
	case len(operands) == 0:
		s.Error("sysctl: no variables specified")
		s.Error("Try `sysctl --help' for more information.")
	default:
		for _, op := range operands {
			if key, value, ok := strings.Cut(op, "="); ok {
				set(key, value)
				continue
			}
			if *write {
				s.Errorf("sysctl: \"%s\" must be of the form name=value", op)
				continue
			}
			v, known := KernelValue(s.FS, op)
			if !known {
				s.Errorf("sysctl: cannot stat %s: No such file or directory", procPath(op))
				continue
			}
			show(op, v)
		}
	}
}
