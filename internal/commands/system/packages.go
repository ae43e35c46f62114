package system

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"orasim/internal/logging"
	"orasim/internal/shell"
)

// rpmLog is where transactions are recorded. Installed state is replayed
// from it.
const rpmLog = "/var/log/dnf.rpm.log"

// Package is one installable RPM.
type Package struct {
	Name     string
	Version  string
	Repo     string
	Size     int64 // installed bytes
	Requires []string
	// OnInstall runs once the package is installed.
	OnInstall func(s *shell.Session)
}

// NEVRA renders name-version.arch.
func (p Package) NEVRA() string {
	return p.Name + "-" + p.Version + ".x86_64"
}

// Catalog holds the packages and archives one registry's commands know.
// Extensions add to it while they register; it is read-only afterwards.
type Catalog struct {
	packages map[string]*Package
	archives map[string]Archive
	// hooks run for every package a transaction touches, including
	// packages that were already present.
	hooks []func(s *shell.Session, name string)
}

type catalogKey struct{}

// CatalogOf returns r's catalog, attaching one with the base repositories on
// first use.
func CatalogOf(r *shell.Registry) *Catalog {
	if c, ok := r.Attached(catalogKey{}).(*Catalog); ok {
		return c
	}
	c := &Catalog{
		packages: make(map[string]*Package, len(repoPackages)),
		archives: make(map[string]Archive),
	}
	for _, p := range repoPackages {
		c.AddPackage(p)
	}
	r.Attach(catalogKey{}, c)
	return c
}

func catalogOf(s *shell.Session) *Catalog { return CatalogOf(s.Registry) }

// AddPackage adds or replaces a package.
func (c *Catalog) AddPackage(p Package) {
	c.packages[p.Name] = &p
}

// Package returns the named package.
func (c *Catalog) Package(name string) (*Package, bool) {
	p, ok := c.packages[name]
	return p, ok
}

// OnInstall registers a hook run for each package a yum transaction
// resolves.
func (c *Catalog) OnInstall(fn func(s *shell.Session, name string)) {
	c.hooks = append(c.hooks, fn)
}

// AddArchive binds a handler to an archive's absolute path.
func (c *Catalog) AddArchive(abs string, a Archive) {
	c.archives[abs] = a
}

// repoPackages is what the configured repositories offer.
var repoPackages = []Package{
	{Name: "bash", Version: "5.1.8-9.el9", Repo: "@System", Size: 7_738_634},
	{Name: "coreutils", Version: "8.32-35.el9", Repo: "@System", Size: 5_910_544},
	{Name: "dnf", Version: "4.14.0-9.el9", Repo: "@System", Size: 2_303_201},
	{Name: "firewalld", Version: "1.3.4-1.el9", Repo: "@System", Size: 2_072_394},
	{Name: "glibc", Version: "2.34-100.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 6_355_862},
	{Name: "kernel", Version: "5.14.0-427.13.1.el9_4", Repo: "@System", Size: 0},
	{Name: "libgcc", Version: "11.4.1-3.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 191_792},
	{Name: "libstdc++", Version: "11.4.1-3.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 2_743_120},
	{Name: "openssh-server", Version: "8.7p1-38.el9", Repo: "@System", Size: 1_408_372},
	{Name: "rpm", Version: "4.16.1.3-29.el9", Repo: "@System", Size: 2_792_000},
	{Name: "sudo", Version: "1.9.5p2-10.el9_3", Repo: "@System", Size: 4_983_372},
	{Name: "systemd", Version: "252-32.el9_4", Repo: "@System", Size: 14_114_611},
	{Name: "unzip", Version: "6.0-56.el9", Repo: "@System", Size: 404_531},
	{Name: "vim-minimal", Version: "8.2.2637-20.el9_1", Repo: "@System", Size: 1_504_411},
	{Name: "chrony", Version: "4.5-1.el9", Repo: "@System", Size: 652_178},

	{Name: "bc", Version: "1.07.1-14.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 235_914},
	{Name: "binutils", Version: "2.35.2-43.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 26_880_213},
	{Name: "compat-openssl11", Version: "1.1.1k-4.el9_0", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 3_960_338},
	{Name: "elfutils-libelf", Version: "0.190-2.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 1_012_416},
	{Name: "fontconfig", Version: "2.14.0-2.el9_1", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 816_424},
	{Name: "glibc-devel", Version: "2.34-100.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 2_267_210},
	{Name: "ksh", Version: "1.0.6-3.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 3_108_784},
	{Name: "libaio", Version: "0.3.111-13.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 100_400},
	{Name: "libasan", Version: "11.4.1-3.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 1_506_976},
	{Name: "liblsan", Version: "11.4.1-3.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 584_216},
	{Name: "libX11", Version: "1.7.0-9.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 3_556_312},
	{Name: "libXau", Version: "1.0.9-8.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 74_100},
	{Name: "libXi", Version: "1.7.10-8.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 87_548},
	{Name: "libXrender", Version: "0.9.10-16.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 54_512},
	{Name: "libXtst", Version: "1.2.3-16.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 38_784},
	{Name: "libxcrypt-compat", Version: "4.4.18-3.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 200_128},
	{Name: "libibverbs", Version: "48.0-1.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 1_163_468},
	{Name: "libnsl", Version: "2.34-100.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 119_136},
	{Name: "librdmacm", Version: "48.0-1.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 166_860},
	{Name: "libxcb", Version: "1.13.1-9.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 1_145_212},
	{Name: "libvirt-libs", Version: "10.0.0-6.el9_4", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 17_004_100},
	{Name: "make", Version: "4.3-8.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 1_757_496},
	{Name: "policycoreutils", Version: "3.6-2.1.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 702_348},
	{Name: "policycoreutils-python-utils", Version: "3.6-2.1.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 139_412},
	{Name: "smartmontools", Version: "7.2-9.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 2_126_312},
	{Name: "sysstat", Version: "12.5.4-7.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 1_796_412},

	{Name: "net-tools", Version: "2.0-0.62.20160912git.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 955_324},
	{Name: "wget", Version: "1.21.1-7.el9", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 3_148_456},
	{Name: "zip", Version: "3.0-35.el9", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 724_308},
	{Name: "tar", Version: "1.34-6.el9_4", Repo: "rhel-9-for-x86_64-baseos-rpms", Size: 3_163_420},
	{Name: "vim-enhanced", Version: "8.2.2637-20.el9_1", Repo: "rhel-9-for-x86_64-appstream-rpms", Size: 4_050_784},
	{Name: "rlwrap", Version: "0.46.1-1.el9", Repo: "epel", Size: 298_356},
}

// baseSystem is what a minimal RHEL9 install ships.
var baseSystem = []string{
	"bash", "chrony", "coreutils", "dnf", "firewalld", "glibc", "kernel",
	"libgcc", "libstdc++", "openssh-server", "rpm", "sudo", "systemd", "unzip",
	"vim-minimal",
}

// installedSet replays the transaction log over the base system.
func installedSet(s *shell.Session) map[string]bool {
	c := catalogOf(s)
	set := make(map[string]bool, len(baseSystem))
	for _, n := range baseSystem {
		set[n] = true
	}
	content, _ := s.FS.ReadFile(rpmLog)
	for _, line := range shell.SplitLines(content) {
		f := strings.Fields(line)
		if len(f) < 4 {
			continue
		}
		name := c.packageName(f[3])
		switch f[2] {
		case "Installed:":
			set[name] = true
		case "Erase:":
			delete(set, name)
		}
	}
	return set
}

// packageName strips -version-release.arch from a NEVRA.
func (c *Catalog) packageName(nevra string) string {
	for name, p := range c.packages {
		if nevra == p.NEVRA() {
			return name
		}
	}
	return nevra
}

// Installed reports whether the named package is installed on the
// session's host.
func Installed(s *shell.Session, name string) bool {
	return installedSet(s)[name]
}

func logTransaction(s *shell.Session, verb string, pkgs []*Package) {
	stamp := s.Clock().UTC().Format("2006-01-02T15:04:05Z0700")
	var b strings.Builder
	for _, p := range pkgs {
		fmt.Fprintf(&b, "%s SUBDEBUG %s %s\n", stamp, verb, p.NEVRA())
	}
	if !s.FS.Exists(rpmLog) {
		s.FS.Touch(rpmLog, "")
	}
	s.FS.AppendToFile(rpmLog, b.String())
}

// resolvePackages expands requested names with their dependencies, in request
// order. Unknown names are returned separately.
func (c *Catalog) resolve(names []string) (pkgs []*Package, unknown []string) {
	seen := map[string]bool{}
	var visit func(string, bool)
	visit = func(name string, requested bool) {
		if seen[name] {
			return
		}
		p, ok := c.packages[name]
		if !ok {
			if requested {
				unknown = append(unknown, name)
			}
			return
		}
		seen[name] = true
		pkgs = append(pkgs, p)
		for _, dep := range p.Requires {
			visit(dep, false)
		}
	}
	for _, n := range names {
		visit(n, true)
	}
	return pkgs, unknown
}

func cmdYum(s *shell.Session, args []string) {
	tool := args[0]
	if i := strings.LastIndexByte(tool, '/'); i >= 0 {
		tool = tool[i+1:]
	}
	var sub string
	var names []string
	yes := false
	for _, a := range args[1:] {
		switch {
		case a == "-y" || a == "--assumeyes":
			yes = true
		case strings.HasPrefix(a, "-"):
		case sub == "":
			sub = a
		default:
			names = append(names, a)
		}
	}

	switch sub {
	case "":
		s.Errorf("%s: error: the following arguments are required: command", tool)
		return
	case "list":
		yumList(s, names)
		return
	case "info":
		yumInfo(s, names)
		return
	case "repolist":
		s.Println("Updating Subscription Management repositories.")
		s.Printf("%-40s %s", "repo id", "repo name")
		s.Printf("%-40s %s", "rhel-9-for-x86_64-appstream-rpms", "Red Hat Enterprise Linux 9 for x86_64 - AppStream (RPMs)")
		s.Printf("%-40s %s", "rhel-9-for-x86_64-baseos-rpms", "Red Hat Enterprise Linux 9 for x86_64 - BaseOS (RPMs)")
		return
	case "install", "remove", "erase":
	default:
		s.Errorf("No such command: %s. Please use /usr/bin/%s --help", sub, tool)
		return
	}

	if s.Env.User() != "root" {
		s.Error("Error: This command has to be run with superuser privileges (under the root user on most systems).")
		return
	}
	if len(names) == 0 {
		s.Errorf("Error: Need to pass a list of pkgs to %s", sub)
		return
	}
	if sub == "install" {
		yumInstall(s, names, yes)
	} else {
		yumRemove(s, names, yes)
	}
}

func yumInstall(s *shell.Session, names []string, yes bool) {
	s.Println("Updating Subscription Management repositories.")
	s.Printf("Last metadata expiration check: 0:12:44 ago on %s.", s.Clock().Add(-12*time.Minute).Format("Mon 02 Jan 2006 03:04:05 PM MST"))
	pkgs, unknown := catalogOf(s).resolve(names)
	for _, n := range unknown {
		s.Println("No match for argument: " + n)
	}
	if len(unknown) > 0 {
		s.Errorf("Error: Unable to find a match: %s", strings.Join(unknown, " "))
		return
	}

	installed := installedSet(s)
	var todo []*Package
	for _, p := range pkgs {
		if installed[p.Name] {
			for _, n := range names {
				if n == p.Name {
					s.Printf("Package %s is already installed.", p.NEVRA())
				}
			}
			runInstallHooks(s, p.Name)
			continue
		}
		todo = append(todo, p)
	}
	if len(todo) == 0 {
		s.Print("Dependencies resolved.", "Nothing to do.", "Complete!")
		return
	}

	transactionTable(s, "Installing:", todo)
	commit := func() {
		s.Print("Downloading Packages:", "Running transaction check", "Transaction check succeeded.",
			"Running transaction test", "Transaction test succeeded.", "Running transaction")
		for i, p := range todo {
			s.Printf("  Installing       : %-50s %3d/%d", p.NEVRA(), i+1, len(todo))
		}
		logTransaction(s, "Installed:", todo)
		s.Println("")
		s.Println("Installed:")
		for _, p := range todo {
			s.Println("  " + p.NEVRA())
		}
		s.Println("")
		s.Println("Complete!")
		logging.Get(logging.CategoryDispatch).Info("yum installed %d packages", len(todo))
		for _, p := range todo {
			if p.OnInstall != nil {
				p.OnInstall(s)
			}
			runInstallHooks(s, p.Name)
		}
	}
	confirm(s, yes, commit)
}

func yumRemove(s *shell.Session, names []string, yes bool) {
	installed := installedSet(s)
	var todo []*Package
	for _, n := range names {
		p, ok := catalogOf(s).packages[n]
		if !ok || !installed[n] {
			s.Println("No match for argument: " + n)
			continue
		}
		todo = append(todo, p)
	}
	if len(todo) == 0 {
		s.Error("No packages marked for removal.")
		s.Print("Dependencies resolved.", "Nothing to do.", "Complete!")
		return
	}
	transactionTable(s, "Removing:", todo)
	confirm(s, yes, func() {
		logTransaction(s, "Erase:", todo)
		s.Println("Removed:")
		for _, p := range todo {
			s.Println("  " + p.NEVRA())
		}
		s.Println("")
		s.Println("Complete!")
	})
}

func confirm(s *shell.Session, yes bool, commit func()) {
	if yes {
		s.Println("Is this ok [y/N]: y")
		commit()
		return
	}
	askLine(s, "Is this ok [y/N]: ", func(answer string) {
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			commit()
		default:
			s.Println("Operation aborted.")
		}
	})
}

func runInstallHooks(s *shell.Session, name string) {
	for _, h := range catalogOf(s).hooks {
		h(s, name)
	}
}

func transactionTable(s *shell.Session, heading string, pkgs []*Package) {
	rule := strings.Repeat("=", 80)
	s.Println("Dependencies resolved.")
	s.Println(rule)
	s.Printf(" %-29s %-7s %-22s %-14s %s", "Package", "Arch", "Version", "Repository", "Size")
	s.Println(rule)
	s.Println(heading)
	var total int64
	for _, p := range pkgs {
		total += p.Size
		s.Printf(" %-29s %-7s %-22s %-14s %s", p.Name, "x86_64", p.Version, shortRepo(p.Repo), humanize.Bytes(uint64(p.Size/3)))
	}
	s.Println("")
	s.Println("Transaction Summary")
	s.Println(rule)
	verb := "Install"
	if heading == "Removing:" {
		verb = "Remove"
	}
	s.Printf("%s  %d Package%s", verb, len(pkgs), plural(len(pkgs)))
	s.Println("")
	if verb == "Install" {
		s.Printf("Total download size: %s", humanize.Bytes(uint64(total/3)))
		s.Printf("Installed size: %s", humanize.Bytes(uint64(total)))
	} else {
		s.Printf("Freed space: %s", humanize.Bytes(uint64(total)))
	}
}

func shortRepo(repo string) string {
	switch repo {
	case "rhel-9-for-x86_64-baseos-rpms":
		return "rhel-9-baseos"
	case "rhel-9-for-x86_64-appstream-rpms":
		return "rhel-9-appstream"
	}
	return repo
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func yumList(s *shell.Session, args []string) {
	installed := installedSet(s)
	onlyInstalled := len(args) > 0 && args[0] == "installed"
	if onlyInstalled {
		args = args[1:]
	}
	c := catalogOf(s)
	names := make([]string, 0, len(c.packages))
	for name := range c.packages {
		names = append(names, name)
	}
	sort.Strings(names)

	s.Println("Updating Subscription Management repositories.")
	var inst, avail []string
	for _, name := range names {
		if len(args) > 0 && !matchAny(args, name) {
			continue
		}
		p := c.packages[name]
		row := fmt.Sprintf("%-40s %-28s %s", p.Name+".x86_64", p.Version, p.Repo)
		if installed[name] {
			row = fmt.Sprintf("%-40s %-28s %s", p.Name+".x86_64", p.Version, "@"+strings.TrimPrefix(p.Repo, "@"))
			inst = append(inst, row)
		} else if !onlyInstalled {
			avail = append(avail, row)
		}
	}
	if len(inst) == 0 && len(avail) == 0 {
		s.Error("Error: No matching Packages to list")
		return
	}
	if len(inst) > 0 {
		s.Println("Installed Packages")
		s.Print(inst...)
	}
	if len(avail) > 0 {
		s.Println("Available Packages")
		s.Print(avail...)
	}
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

func yumInfo(s *shell.Session, names []string) {
	installed := installedSet(s)
	for _, n := range names {
		p, ok := catalogOf(s).packages[n]
		if !ok {
			s.Error("Error: No matching Packages to list")
			continue
		}
		if installed[n] {
			s.Println("Installed Packages")
		} else {
			s.Println("Available Packages")
		}
		version, release, _ := strings.Cut(p.Version, "-")
		s.Printf("Name         : %s", p.Name)
		s.Printf("Version      : %s", version)
		s.Printf("Release      : %s", release)
		s.Println("Architecture : x86_64")
		s.Printf("Size         : %s", humanize.Bytes(uint64(p.Size)))
		s.Printf("Repository   : %s", p.Repo)
		s.Println("")
	}
}

func cmdRpm(s *shell.Session, args []string) {
	fs := shell.NewFlags("rpm")
	query := fs.BoolP("query", "q", false, "")
	all := fs.BoolP("all", "a", false, "")
	info := fs.BoolP("info", "i", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if !*query {
		s.Error("rpm: no operation specified")
		return
	}
	installed := installedSet(s)
	if *all {
		names := make([]string, 0, len(installed))
		for n := range installed {
			if p, ok := catalogOf(s).packages[n]; ok {
				names = append(names, p.NEVRA())
			}
		}
		sort.Strings(names)
		s.Print(names...)
		return
	}
	missing := false
	for _, n := range operands {
		p, ok := catalogOf(s).packages[n]
		if !ok || !installed[n] {
			s.Printf("package %s is not installed", n)
			missing = true
			continue
		}
		if *info {
			yumInfo(s, []string{n})
			continue
		}
		s.Println(p.NEVRA())
	}
	if missing {
		s.Fail()
	}
}
