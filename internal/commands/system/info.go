package system

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"orasim/internal/shell"
	"orasim/internal/vfs"
)

const (
	kernelRelease = "5.14.0-427.13.1.el9_4.x86_64"
	kernelVersion = "#1 SMP PREEMPT_DYNAMIC Wed Apr 10 10:29:16 EDT 2024"
	dateLayout    = "Mon Jan _2 15:04:05 MST 2006"
)

func cmdHostname(s *shell.Session, args []string) {
	fs := shell.NewFlags("hostname")
	short := fs.BoolP("short", "s", false, "")
	fqdn := fs.BoolP("fqdn", "f", false, "")
	ip := fs.BoolP("ip-address", "i", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) > 0 {
		if !mustBeRoot(s, "hostname: you must be root to change the host name") {
			return
		}
		s.FS.WriteFile("/etc/hostname", operands[0]+"\n")
		return
	}
	switch {
	case *short:
		s.Println(s.Host())
	case *fqdn:
		s.Println(s.Host() + ".localdomain")
	case *ip:
		s.Println("192.168.56.10")
	default:
		s.Println(s.FS.Hostname())
	}
}

func cmdUname(s *shell.Session, args []string) {
	fs := shell.NewFlags("uname")
	all := fs.BoolP("all", "a", false, "")
	kname := fs.BoolP("kernel-name", "s", false, "")
	node := fs.BoolP("nodename", "n", false, "")
	release := fs.BoolP("kernel-release", "r", false, "")
	version := fs.BoolP("kernel-version", "v", false, "")
	machine := fs.BoolP("machine", "m", false, "")
	osname := fs.BoolP("operating-system", "o", false, "")
	if _, ok := s.ParseFlags(fs, args); !ok {
		return
	}
	if *all {
		s.Printf("Linux %s %s %s x86_64 x86_64 x86_64 GNU/Linux", s.FS.Hostname(), kernelRelease, kernelVersion)
		return
	}
	var parts []string
	if *kname || !(*node || *release || *version || *machine || *osname) {
		parts = append(parts, "Linux")
	}
	if *node {
		parts = append(parts, s.FS.Hostname())
	}
	if *release {
		parts = append(parts, kernelRelease)
	}
	if *version {
		parts = append(parts, kernelVersion)
	}
	if *machine {
		parts = append(parts, "x86_64")
	}
	if *osname {
		parts = append(parts, "GNU/Linux")
	}
	s.Println(strings.Join(parts, " "))
}

func cmdDate(s *shell.Session, args []string) {
	now := s.Clock()
	format := ""
	for _, a := range args[1:] {
		switch {
		case a == "-u" || a == "--utc":
			now = now.UTC()
		case strings.HasPrefix(a, "+"):
			format = a[1:]
		default:
			s.Errorf("date: invalid date '%s'", a)
			return
		}
	}
	if format != "" {
		s.Println(strftime.Format(format, now))
		return
	}
	s.Println(now.Format(dateLayout))
}

func cmdUptime(s *shell.Session, args []string) {
	now := s.Clock()
	up := now.Sub(s.Booted())
	if len(args) > 1 && (args[1] == "-p" || args[1] == "--pretty") {
		s.Println("up " + prettyDuration(up))
		return
	}
	var upText string
	switch {
	case up < time.Hour:
		upText = fmt.Sprintf("%d min", int(up.Minutes()))
	case up < 24*time.Hour:
		upText = fmt.Sprintf("%d:%02d", int(up.Hours()), int(up.Minutes())%60)
	default:
		days := int(up.Hours()) / 24
		upText = fmt.Sprintf("%d days, %d:%02d", days, int(up.Hours())%24, int(up.Minutes())%60)
	}
	s.Printf(" %s up %s,  %d user,  load average: %s", now.Format("15:04:05"), upText, s.Env.Depth(), loadAverage(s))
}

func prettyDuration(d time.Duration) string {
	mins := int(d.Minutes())
	if mins < 1 {
		return "0 minutes"
	}
	var parts []string
	if h := mins / 60; h > 0 {
		parts = append(parts, pluralize(h, "hour"))
	}
	if m := mins % 60; m > 0 {
		parts = append(parts, pluralize(m, "minute"))
	}
	return strings.Join(parts, ", ")
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// loadAverage rises while the database instance is up.
func loadAverage(s *shell.Session) string {
	if s.Oracle.DatabaseStarted {
		return "0.42, 0.37, 0.31"
	}
	return "0.08, 0.12, 0.09"
}

// treeSize sums file sizes below p.
func treeSize(fs *vfs.FS, p string) int64 {
	n := fs.Lookup(p)
	if n == nil {
		return 0
	}
	var walk func(*vfs.Node) int64
	walk = func(x *vfs.Node) int64 {
		if !x.IsDir() {
			return x.Size
		}
		var total int64
		for _, name := range x.Names() {
			c, _ := x.Child(name)
			total += walk(c)
		}
		return total
	}
	return walk(n)
}

type mount struct {
	fs, target string
	size, used int64
}

func mounts(s *shell.Session) []mount {
	const gib = 1 << 30
	u01 := treeSize(s.FS, "/u01")
	opt := treeSize(s.FS, "/opt")
	return []mount{
		{"devtmpfs", "/dev", 4 << 20, 0},
		{"tmpfs", "/dev/shm", 8 * gib, 0},
		{"tmpfs", "/run", 3 * gib, 9 << 20},
		{"/dev/mapper/rhel-root", "/", 70 * gib, 6*gib + opt},
		{"/dev/sda1", "/boot", 1014 << 20, 285 << 20},
		{"/dev/mapper/rhel-u01", "/u01", 100 * gib, 740<<20 + u01},
		{"tmpfs", "/run/user/0", 1600 << 20, 4 << 10},
	}
}

func cmdDf(s *shell.Session, args []string) {
	fs := shell.NewFlags("df")
	human := fs.BoolP("human-readable", "h", false, "")
	fs.BoolP("print-type", "T", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	rows := mounts(s)
	if len(operands) > 0 {
		var picked []mount
		for _, p := range operands {
			if !s.FS.Exists(p) {
				s.Errorf("df: %s: No such file or directory", p)
				continue
			}
			picked = append(picked, mountFor(rows, s.FS.Abs(p)))
		}
		rows = picked
	}
	if *human {
		s.Printf("%-22s %5s %5s %5s %4s %s", "Filesystem", "Size", "Used", "Avail", "Use%", "Mounted on")
	} else {
		s.Printf("%-22s %10s %9s %10s %4s %s", "Filesystem", "1K-blocks", "Used", "Available", "Use%", "Mounted on")
	}
	for _, m := range rows {
		pct := "0%"
		if m.used > 0 {
			pct = strconv.FormatInt((m.used*100+m.size-1)/m.size, 10) + "%"
		}
		if *human {
			s.Printf("%-22s %5s %5s %5s %4s %s", m.fs, compactBytes(m.size), compactBytes(m.used), compactBytes(m.size-m.used), pct, m.target)
		} else {
			s.Printf("%-22s %10d %9d %10d %4s %s", m.fs, m.size/1024, m.used/1024, (m.size-m.used)/1024, pct, m.target)
		}
	}
}

// mountFor returns the mount with the longest target prefix of p.
func mountFor(rows []mount, p string) mount {
	best := rows[0]
	for _, m := range rows {
		if (p == m.target || strings.HasPrefix(p, strings.TrimSuffix(m.target, "/")+"/")) && len(m.target) >= len(best.target) {
			best = m
		}
	}
	return best
}

func cmdFree(s *shell.Session, args []string) {
	fs := shell.NewFlags("free")
	mega := fs.BoolP("mega", "m", false, "")
	giga := fs.BoolP("giga", "g", false, "")
	human := fs.BoolP("human", "h", false, "")
	if _, ok := s.ParseFlags(fs, args); !ok {
		return
	}
	// values in KiB
	total, used, free, shared, cache := int64(16030412), int64(1184220), int64(13612044), int64(17288), int64(1499376)
	if s.Oracle.DatabaseStarted {
		used += 2_621_440
		shared += 1_572_864
		free -= 2_621_440
	}
	avail := free + cache - shared/2
	swap := int64(8388604)

	render := func(kib int64) string {
		switch {
		case *human:
			return compactBytes(kib*1024) + "i"
		case *giga:
			return strconv.FormatInt(kib>>20, 10)
		case *mega:
			return strconv.FormatInt(kib>>10, 10)
		}
		return strconv.FormatInt(kib, 10)
	}
	s.Printf("%15s %11s %11s %11s %11s %11s", "total", "used", "free", "shared", "buff/cache", "available")
	s.Printf("%-7s %7s %11s %11s %11s %11s %11s", "Mem:", render(total), render(used), render(free), render(shared), render(cache), render(avail))
	s.Printf("%-7s %7s %11s %11s", "Swap:", render(swap), render(0), render(swap))
}

// backgroundProcesses are the instance processes ps shows while the
// database is started.
var backgroundProcesses = []string{
	"pmon", "clmn", "psp0", "vktm", "gen0", "mman", "gen1", "diag", "ofsd",
	"dbrm", "vkrm", "svcb", "pman", "dia0", "dbw0", "lgwr", "ckpt", "lg00",
	"smon", "lg01", "smco", "reco", "w000", "lreg", "w001", "pxmn", "mmon",
	"mmnl", "tmon", "m000", "tt00", "tt01", "tt02", "aqpc", "cjq0",
}

type proc struct {
	user, cmd string
	pid, ppid int
}

func processes(s *shell.Session) []proc {
	ps := []proc{
		{"root", "/usr/lib/systemd/systemd --switched-root --system --deserialize 31", 1, 0},
		{"root", "[kthreadd]", 2, 0},
		{"root", "/usr/lib/systemd/systemd-journald", 612, 1},
		{"root", "/usr/lib/systemd/systemd-udevd", 645, 1},
		{"root", "/usr/sbin/sshd -D", 912, 1},
		{"chrony", "/usr/sbin/chronyd -F 2", 918, 1},
		{"root", "/usr/sbin/crond -n", 930, 1},
		{"root", "sshd: root@pts/0", 1402, 912},
	}
	if active, _ := unitState(s, "firewalld"); active {
		ps = append(ps, proc{"root", "/usr/bin/python3 -s /usr/sbin/firewalld --nofork --nopid", 803, 1})
	}
	pid := 1410
	for _, u := range s.Env.Users() {
		ps = append(ps, proc{u, "-bash", pid, pid - 1})
		pid += 2
	}
	if s.Oracle.ListenerStarted {
		ps = append(ps, proc{"oracle", s.Oracle.OracleHome + "/bin/tnslsnr LISTENER -inherit", 2231, 1})
	}
	if s.Oracle.DatabaseStarted {
		base := 3101
		for i, name := range backgroundProcesses {
			if name == "reco" && !s.Oracle.IsOpen() {
				continue
			}
			ps = append(ps, proc{"oracle", fmt.Sprintf("ora_%s_%s", name, s.Oracle.SID), base + i*2, 1})
		}
		if s.Oracle.ArchivelogMode {
			ps = append(ps, proc{"oracle", "ora_arc0_" + s.Oracle.SID, base + len(backgroundProcesses)*2, 1})
		}
	}
	ps = append(ps, proc{s.Env.User(), "ps", pid + 900, pid - 2})
	return ps
}

func cmdPs(s *shell.Session, args []string) {
	full := false
	for _, a := range args[1:] {
		a = strings.TrimPrefix(a, "-")
		if strings.ContainsAny(a, "efa") || strings.Contains(a, "aux") {
			full = true
		}
	}
	ps := processes(s)
	if !full {
		bash := ps[0]
		for _, p := range ps {
			if p.cmd == "-bash" {
				bash = p
			}
		}
		s.Println("    PID TTY          TIME CMD")
		s.Printf("%7d pts/0    00:00:00 bash", bash.pid)
		s.Printf("%7d pts/0    00:00:00 ps", ps[len(ps)-1].pid)
		return
	}
	stime := s.Booted().Format("15:04")
	s.Println("UID          PID    PPID  C STIME TTY          TIME CMD")
	for _, p := range ps {
		tty := "?"
		if p.cmd == "-bash" || p.cmd == "ps" {
			tty = "pts/0"
		}
		s.Printf("%-8s %7d %7d  0 %s %-8s 00:00:00 %s", p.user, p.pid, p.ppid, stime, tty, p.cmd)
	}
}

func cmdClear(s *shell.Session, _ []string) {
	s.ClearScreen()
}

func cmdHistory(s *shell.Session, args []string) {
	if len(args) > 1 && args[1] == "-c" {
		s.History.Clear()
		return
	}
	lines := s.History.Lines()
	start := 0
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n < len(lines) {
			start = len(lines) - n
		}
	}
	for i := start; i < len(lines); i++ {
		s.Printf("%5d  %s", i+1, lines[i])
	}
}
