package system

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"orasim/internal/shell"
	"orasim/internal/vfs"
)

func cmdLs(s *shell.Session, args []string) {
	fs := shell.NewFlags("ls")
	long := fs.BoolP("long", "l", false, "")
	all := fs.BoolP("all", "a", false, "")
	human := fs.BoolP("human-readable", "h", false, "")
	byTime := fs.BoolP("time", "t", false, "")
	reverse := fs.BoolP("reverse", "r", false, "")
	dirOnly := fs.BoolP("directory", "d", false, "")
	fs.BoolP("one", "1", false, "")
	targets, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(targets) == 0 {
		targets = []string{"."}
	}

	format := func(name string, n *vfs.Node) string {
		if !*long {
			return name
		}
		size := strconv.FormatInt(n.Size, 10)
		if *human {
			size = compactBytes(n.Size)
		}
		links := 1
		if n.IsDir() {
			links = 2
		}
		return fmt.Sprintf("%s. %d %s %s %5s %s %s", n.Permissions, links, n.Owner, n.Group, size, lsTime(n.Modified, s.Clock()), name)
	}

	var files []string
	var dirs []string
	for _, t := range targets {
		n := s.FS.Lookup(t)
		switch {
		case n == nil:
			s.Errorf("ls: cannot access '%s': No such file or directory", t)
		case n.IsDir() && !*dirOnly:
			dirs = append(dirs, t)
		default:
			files = append(files, format(t, n))
		}
	}
	emit := func(lines []string) {
		if *long || len(lines) == 0 {
			for _, l := range lines {
				s.Println(l)
			}
			return
		}
		s.Println(strings.Join(lines, "  "))
	}
	emit(files)

	for i, d := range dirs {
		if len(targets) > 1 {
			if i > 0 || len(files) > 0 {
				s.Println("")
			}
			s.Println(d + ":")
		}
		entries, _ := s.FS.Ls(d)
		if !*all {
			visible := entries[:0:0]
			for _, e := range entries {
				if !strings.HasPrefix(e.Name, ".") {
					visible = append(visible, e)
				}
			}
			entries = visible
		}
		sort.SliceStable(entries, func(a, b int) bool {
			if *byTime {
				return entries[a].Modified.After(entries[b].Modified)
			}
			return strings.ToLower(strings.TrimLeft(entries[a].Name, ".")) < strings.ToLower(strings.TrimLeft(entries[b].Name, "."))
		})
		if *reverse {
			for l, r := 0, len(entries)-1; l < r; l, r = l+1, r-1 {
				entries[l], entries[r] = entries[r], entries[l]
			}
		}
		var lines []string
		if *long {
			var blocks int64
			for _, e := range entries {
				blocks += (e.Size + 4095) / 4096 * 4
			}
			lines = append(lines, fmt.Sprintf("total %d", blocks))
		}
		if *all {
			self := s.FS.Lookup(d)
			parent := s.FS.Lookup(path.Join(s.FS.Abs(d), ".."))
			lines = append(lines, format(".", self), format("..", parent))
		}
		for _, e := range entries {
			lines = append(lines, format(e.Name, e.Node))
		}
		emit(lines)
	}
}

// lsTime uses the year instead of the clock for entries older than six months.
func lsTime(t, now time.Time) string {
	if now.Sub(t) > 180*24*time.Hour {
		return t.Format("Jan _2  2006")
	}
	return t.Format("Jan _2 15:04")
}

func cmdCd(s *shell.Session, args []string) {
	target := ""
	if len(args) > 1 {
		target = args[1]
	}
	if target == "-" {
		target = s.Env.Value("OLDPWD")
		if target == "" {
			s.Error("-bash: cd: OLDPWD not set")
			return
		}
		s.Println(target)
	}
	prev := s.Env.Path()
	if !s.FS.Cd(target) {
		if s.FS.IsFile(target) {
			s.Errorf("-bash: cd: %s: Not a directory", target)
			return
		}
		s.Errorf("-bash: cd: %s: No such file or directory", target)
		return
	}
	s.Env.Set("OLDPWD", prev)
}

func cmdPwd(s *shell.Session, _ []string) {
	s.Println(s.Env.Path())
}

func cmdMkdir(s *shell.Session, args []string) {
	fs := shell.NewFlags("mkdir")
	parents := fs.BoolP("parents", "p", false, "")
	verbose := fs.BoolP("verbose", "v", false, "")
	mode := fs.StringP("mode", "m", "", "")
	targets, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(targets) == 0 {
		s.Error("mkdir: missing operand")
		s.Error("Try 'mkdir --help' for more information.")
		return
	}
	for _, t := range targets {
		switch {
		case *parents:
			if s.FS.IsDirectory(t) {
				continue
			}
			if !s.FS.MkdirAll(t) {
				s.Errorf("mkdir: cannot create directory '%s': Not a directory", t)
				continue
			}
		case s.FS.Exists(t):
			s.Errorf("mkdir: cannot create directory '%s': File exists", t)
			continue
		case !s.FS.Mkdir(t):
			s.Errorf("mkdir: cannot create directory '%s': No such file or directory", t)
			continue
		}
		if *mode != "" {
			if perm, ok := parseMode(*mode, "rwxr-xr-x"); ok {
				s.FS.SetPermissions(t, perm, false)
			}
		}
		if *verbose {
			s.Printf("mkdir: created directory '%s'", t)
		}
	}
}

func cmdTouch(s *shell.Session, args []string) {
	if len(args) < 2 {
		s.Error("touch: missing file operand")
		s.Error("Try 'touch --help' for more information.")
		return
	}
	for _, t := range args[1:] {
		if content, ok := s.FS.ReadFile(t); ok {
			s.FS.UpdateFile(t, content)
			continue
		}
		if s.FS.IsDirectory(t) {
			continue
		}
		if !s.FS.Touch(t, "") {
			s.Errorf("touch: cannot touch '%s': No such file or directory", t)
		}
	}
}

func cmdRm(s *shell.Session, args []string) {
	fs := shell.NewFlags("rm")
	recursive := fs.BoolP("recursive", "r", false, "")
	recursiveUpper := fs.BoolP("Recursive", "R", false, "")
	force := fs.BoolP("force", "f", false, "")
	fs.BoolP("interactive", "i", false, "")
	verbose := fs.BoolP("verbose", "v", false, "")
	targets, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	rec := *recursive || *recursiveUpper
	if len(targets) == 0 {
		if !*force {
			s.Error("rm: missing operand")
			s.Error("Try 'rm --help' for more information.")
		}
		return
	}
	for _, t := range targets {
		n := s.FS.Lookup(t)
		switch {
		case n == nil:
			if !*force {
				s.Errorf("rm: cannot remove '%s': No such file or directory", t)
			}
			continue
		case len(s.FS.ResolvePath(t)) == 0:
			s.Error("rm: it is dangerous to operate recursively on '/'")
			s.Error("rm: use --no-preserve-root to override this failsafe")
			continue
		case n.IsDir() && !rec:
			s.Errorf("rm: cannot remove '%s': Is a directory", t)
			continue
		}
		if !s.FS.Rm(t, rec) {
			s.Errorf("rm: cannot remove '%s': Directory not empty", t)
			continue
		}
		if *verbose {
			s.Printf("removed '%s'", t)
		}
	}
}

func cmdRmdir(s *shell.Session, args []string) {
	for _, t := range args[1:] {
		n := s.FS.Lookup(t)
		switch {
		case n == nil:
			s.Errorf("rmdir: failed to remove '%s': No such file or directory", t)
		case !n.IsDir():
			s.Errorf("rmdir: failed to remove '%s': Not a directory", t)
		case n.Len() > 0:
			s.Errorf("rmdir: failed to remove '%s': Directory not empty", t)
		default:
			s.FS.Rm(t, false)
		}
	}
}

func cmdCat(s *shell.Session, args []string) {
	fs := shell.NewFlags("cat")
	number := fs.BoolP("number", "n", false, "")
	files, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	lines, err := s.Input("cat", files)
	if err != nil {
		return
	}
	for i, l := range lines {
		if *number {
			l = fmt.Sprintf("%6d\t%s", i+1, l)
		}
		s.Println(l)
	}
}

func cmdEcho(s *shell.Session, args []string) {
	words := args[1:]
	escapes := false
flags:
	for len(words) > 0 {
		switch words[0] {
		case "-n":
		case "-e", "-ne", "-en":
			escapes = true
		case "-E":
			escapes = false
		default:
			break flags
		}
		words = words[1:]
	}
	text := strings.Join(words, " ")
	if escapes {
		text = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`).Replace(text)
	}
	s.Print(text)
}

func cmdCp(s *shell.Session, args []string) {
	fs := shell.NewFlags("cp")
	recursive := fs.BoolP("recursive", "r", false, "")
	recursiveUpper := fs.BoolP("Recursive", "R", false, "")
	fs.BoolP("archive", "a", false, "")
	fs.BoolP("preserve", "p", false, "")
	fs.BoolP("force", "f", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if !twoOperands(s, "cp", operands) {
		return
	}
	dst := operands[len(operands)-1]
	rec := *recursive || *recursiveUpper || fs.Changed("archive")
	for _, src := range operands[:len(operands)-1] {
		n := s.FS.Lookup(src)
		switch {
		case n == nil:
			s.Errorf("cp: cannot stat '%s': No such file or directory", src)
		case n.IsDir() && !rec:
			s.Errorf("cp: -r not specified; omitting directory '%s'", src)
		case !s.FS.Copy(src, dst):
			s.Errorf("cp: cannot create regular file '%s': No such file or directory", dst)
		}
	}
}

func cmdMv(s *shell.Session, args []string) {
	fs := shell.NewFlags("mv")
	fs.BoolP("force", "f", false, "")
	fs.BoolP("verbose", "v", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if !twoOperands(s, "mv", operands) {
		return
	}
	dst := operands[len(operands)-1]
	for _, src := range operands[:len(operands)-1] {
		if !s.FS.Exists(src) {
			s.Errorf("mv: cannot stat '%s': No such file or directory", src)
			continue
		}
		if !s.FS.Move(src, dst) {
			s.Errorf("mv: cannot move '%s' to '%s': No such file or directory", src, dst)
		}
	}
}

func twoOperands(s *shell.Session, name string, operands []string) bool {
	switch len(operands) {
	case 0:
		s.Errorf("%s: missing file operand", name)
	case 1:
		s.Errorf("%s: missing destination file operand after '%s'", name, operands[0])
	default:
		return true
	}
	s.Errorf("Try '%s --help' for more information.", name)
	return false
}

func cmdChmod(s *shell.Session, args []string) {
	fs := shell.NewFlags("chmod")
	recursive := fs.BoolP("recursive", "R", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) < 2 {
		s.Error("chmod: missing operand")
		return
	}
	for _, t := range operands[1:] {
		n := s.FS.Lookup(t)
		if n == nil {
			s.Errorf("chmod: cannot access '%s': No such file or directory", t)
			continue
		}
		perm, ok := parseMode(operands[0], n.Permissions[1:])
		if !ok {
			s.Errorf("chmod: invalid mode: '%s'", operands[0])
			return
		}
		s.FS.SetPermissions(t, perm, *recursive)
	}
}

// parseMode applies an octal (755) or symbolic (u+x, +x, go-w) mode to the
// nine-character permission string current.
func parseMode(mode, current string) (string, bool) {
	if v, err := strconv.ParseUint(mode, 8, 32); err == nil && len(mode) <= 4 {
		const letters = "rwxrwxrwx"
		b := []byte("---------")
		for i := 0; i < 9; i++ {
			if v&(1<<(8-i)) != 0 {
				b[i] = letters[i]
			}
		}
		return string(b), true
	}
	if len(current) != 9 {
		current = "rw-r--r--"
	}
	b := []byte(current)
	for _, clause := range strings.Split(mode, ",") {
		i := strings.IndexAny(clause, "+-=")
		if i < 0 {
			return "", false
		}
		who, op, what := clause[:i], clause[i], clause[i+1:]
		if who == "" || who == "a" {
			who = "ugo"
		}
		for _, w := range who {
			base := strings.IndexRune("ugo", w)
			if base < 0 {
				return "", false
			}
			for j, p := range "rwx" {
				pos := base*3 + j
				set := strings.ContainsRune(what, p)
				switch op {
				case '+':
					if set {
						b[pos] = byte(p)
					}
				case '-':
					if set {
						b[pos] = '-'
					}
				case '=':
					b[pos] = '-'
					if set {
						b[pos] = byte(p)
					}
				}
			}
		}
	}
	return string(b), true
}

func cmdChown(s *shell.Session, args []string) {
	fs := shell.NewFlags("chown")
	recursive := fs.BoolP("recursive", "R", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) < 2 {
		s.Error("chown: missing operand")
		return
	}
	if !mustBeRoot(s, fmt.Sprintf("chown: changing ownership of '%s': Operation not permitted", operands[1])) {
		return
	}
	owner, group, _ := strings.Cut(strings.Replace(operands[0], ".", ":", 1), ":")
	if owner != "" {
		if _, ok := LookupAccount(s.FS, owner); !ok {
			s.Errorf("chown: invalid user: '%s'", operands[0])
			return
		}
	}
	if group != "" {
		if _, ok := LookupGroup(s.FS, group); !ok {
			s.Errorf("chown: invalid group: '%s'", operands[0])
			return
		}
	}
	for _, t := range operands[1:] {
		if !s.FS.SetOwner(t, owner, group, *recursive) {
			s.Errorf("chown: cannot access '%s': No such file or directory", t)
		}
	}
}

func cmdChgrp(s *shell.Session, args []string) {
	fs := shell.NewFlags("chgrp")
	recursive := fs.BoolP("recursive", "R", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) < 2 {
		s.Error("chgrp: missing operand")
		return
	}
	if _, ok := LookupGroup(s.FS, operands[0]); !ok {
		s.Errorf("chgrp: invalid group: '%s'", operands[0])
		return
	}
	for _, t := range operands[1:] {
		if !s.FS.SetOwner(t, "", operands[0], *recursive) {
			s.Errorf("chgrp: cannot access '%s': No such file or directory", t)
		}
	}
}

func cmdWhich(s *shell.Session, args []string) {
	for _, name := range args[1:] {
		if found := Which(s, name); found != "" {
			s.Println(found)
			continue
		}
		s.Errorf("/usr/bin/which: no %s in (%s)", name, s.Env.Value("PATH"))
	}
}

// Which searches PATH for name. A directory entry counts when the file
// exists in the filesystem or name is a system command installed there.
func Which(s *shell.Session, name string) string {
	builtin := Table()
	for _, dir := range strings.Split(s.Env.Value("PATH"), ":") {
		if dir == "" {
			continue
		}
		candidate := path.Join(dir, name)
		if s.FS.IsFile(candidate) {
			return candidate
		}
		if _, ok := builtin[name]; ok && dir == binDir(name) {
			return candidate
		}
	}
	return ""
}

func cmdTee(s *shell.Session, args []string) {
	fs := shell.NewFlags("tee")
	appendMode := fs.BoolP("append", "a", false, "")
	files, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	in, _ := s.Stdin()
	content := ""
	if len(in) > 0 {
		content = strings.Join(in, "\n") + "\n"
	}
	for _, f := range files {
		var written bool
		if *appendMode && s.FS.IsFile(f) {
			written = s.FS.AppendToFile(f, content)
		} else {
			written = s.FS.WriteFile(f, content)
		}
		if !written {
			s.Errorf("tee: %s: No such file or directory", f)
		}
	}
	for _, l := range in {
		s.Println(l)
	}
}

// Archive extracts a simulated zip into dest. Extensions add archives whose
// layout they own, such as the Oracle gold image, to the Catalog.
type Archive func(s *shell.Session, dest string, quiet bool)

func cmdUnzip(s *shell.Session, args []string) {
	fs := shell.NewFlags("unzip")
	fs.BoolP("overwrite", "o", false, "")
	quiet := fs.BoolP("quiet", "q", false, "")
	dest := fs.StringP("dir", "d", "", "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) == 0 {
		s.Error("UnZip 6.00 of 20 April 2009, by Info-ZIP.  Maintained by C. Spieler.")
		s.Error("Usage: unzip [-Z] [-opts[modifiers]] file[.zip] [list] [-x xlist] [-d exdir]")
		return
	}
	zip := operands[0]
	if !s.FS.IsFile(zip) {
		s.Errorf("unzip:  cannot find or open %s, %s.zip or %s.ZIP.", zip, zip, zip)
		return
	}
	target := s.Env.Path()
	if *dest != "" {
		if !s.FS.IsDirectory(*dest) && !s.FS.MkdirAll(*dest) {
			s.Errorf("checkdir:  cannot create extraction directory: %s", *dest)
			return
		}
		target = s.FS.Abs(*dest)
	}
	if a, ok := catalogOf(s).archives[s.FS.Abs(zip)]; ok {
		a(s, target, *quiet)
		return
	}

	// Plain archives list their members one per line; a trailing slash marks
	// a directory.
	content, _ := s.FS.ReadFile(zip)
	members := shell.SplitLines(content)
	if len(members) == 0 {
		s.Printf("Archive:  %s", zip)
		s.Error("  End-of-central-directory signature not found.  Either this file is not")
		s.Error("  a zipfile, or it constitutes one disk of a multi-part archive.")
		return
	}
	if !*quiet {
		s.Printf("Archive:  %s", zip)
	}
	for _, m := range members {
		p := path.Join(target, m)
		if strings.HasSuffix(m, "/") {
			s.FS.MkdirAll(p)
			if !*quiet {
				s.Printf("   creating: %s/", p)
			}
			continue
		}
		s.FS.MkdirAll(path.Dir(p))
		s.FS.WriteFile(p, "")
		if !*quiet {
			s.Printf("  inflating: %s", p)
		}
	}
}
