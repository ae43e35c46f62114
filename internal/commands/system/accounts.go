package system

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"orasim/internal/shell"
	"orasim/internal/vfs"
)

// Account is one /etc/passwd entry.
type Account struct {
	Name  string
	UID   int
	GID   int
	Gecos string
	Home  string
	Shell string
}

// Group is one /etc/group entry.
type Group struct {
	Name    string
	GID     int
	Members []string
}

func (g Group) line() string {
	return fmt.Sprintf("%s:x:%d:%s", g.Name, g.GID, strings.Join(g.Members, ","))
}

// Accounts parses /etc/passwd.
func Accounts(fs *vfs.FS) []Account {
	content, _ := fs.ReadFile("/etc/passwd")
	var out []Account
	for _, line := range shell.SplitLines(content) {
		f := strings.Split(line, ":")
		if len(f) < 7 {
			continue
		}
		uid, _ := strconv.Atoi(f[2])
		gid, _ := strconv.Atoi(f[3])
		out = append(out, Account{Name: f[0], UID: uid, GID: gid, Gecos: f[4], Home: f[5], Shell: f[6]})
	}
	return out
}

// LookupAccount finds a user by name.
func LookupAccount(fs *vfs.FS, name string) (Account, bool) {
	for _, a := range Accounts(fs) {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

// Groups parses /etc/group.
func Groups(fs *vfs.FS) []Group {
	content, _ := fs.ReadFile("/etc/group")
	var out []Group
	for _, line := range shell.SplitLines(content) {
		f := strings.Split(line, ":")
		if len(f) < 4 {
			continue
		}
		gid, _ := strconv.Atoi(f[2])
		g := Group{Name: f[0], GID: gid}
		if f[3] != "" {
			g.Members = strings.Split(f[3], ",")
		}
		out = append(out, g)
	}
	return out
}

// LookupGroup finds a group by name or numeric id.
func LookupGroup(fs *vfs.FS, nameOrGID string) (Group, bool) {
	gid, numeric := strconv.Atoi(nameOrGID)
	for _, g := range Groups(fs) {
		if g.Name == nameOrGID || numeric == nil && g.GID == gid {
			return g, true
		}
	}
	return Group{}, false
}

func groupByID(fs *vfs.FS, gid int) (Group, bool) {
	for _, g := range Groups(fs) {
		if g.GID == gid {
			return g, true
		}
	}
	return Group{}, false
}

func writeGroups(fs *vfs.FS, groups []Group) {
	var b strings.Builder
	for _, g := range groups {
		b.WriteString(g.line())
		b.WriteByte('\n')
	}
	fs.WriteFile("/etc/group", b.String())
}

// AddGroup appends a group. A gid of zero picks the next free id.
func AddGroup(fs *vfs.FS, name string, gid int) Group {
	if gid == 0 {
		gid = fs.NextGID()
	}
	g := Group{Name: name, GID: gid}
	appendLine(fs, "/etc/group", g.line())
	appendLine(fs, "/etc/gshadow", name+":!::")
	return g
}

// appendLine adds one line to a file, creating it when missing.
func appendLine(fs *vfs.FS, p, line string) {
	if !fs.AppendToFile(p, line+"\n") {
		fs.Touch(p, line+"\n")
	}
}

// SetSupplementary makes user a member of exactly the named groups, or adds
// them to the existing memberships when appending.
func SetSupplementary(fs *vfs.FS, user string, names []string, appending bool) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	groups := Groups(fs)
	for i := range groups {
		g := &groups[i]
		idx := -1
		for j, m := range g.Members {
			if m == user {
				idx = j
			}
		}
		switch {
		case want[g.Name] && idx < 0:
			g.Members = append(g.Members, user)
		case !want[g.Name] && idx >= 0 && !appending:
			g.Members = append(g.Members[:idx], g.Members[idx+1:]...)
		}
	}
	writeGroups(fs, groups)
}

// UserSpec describes an account to create.
type UserSpec struct {
	Name          string
	UID           int
	Group         string // primary group name or id; empty creates a private group
	Supplementary []string
	Home          string
	Shell         string
	Comment       string
}

// AddUser creates the passwd, shadow and group entries and the home
// directory with the usual skeleton files.
func AddUser(fs *vfs.FS, spec UserSpec) Account {
	if spec.UID == 0 {
		spec.UID = fs.NextUID()
	}
	if spec.Home == "" {
		spec.Home = "/home/" + spec.Name
	}
	if spec.Shell == "" {
		spec.Shell = "/bin/bash"
	}
	var primary Group
	if spec.Group != "" {
		primary, _ = LookupGroup(fs, spec.Group)
	} else if g, ok := LookupGroup(fs, spec.Name); ok {
		primary = g
	} else {
		gid := spec.UID
		if _, taken := groupByID(fs, gid); taken {
			gid = 0
		}
		primary = AddGroup(fs, spec.Name, gid)
	}

	a := Account{Name: spec.Name, UID: spec.UID, GID: primary.GID, Gecos: spec.Comment, Home: spec.Home, Shell: spec.Shell}
	appendLine(fs, "/etc/passwd", fmt.Sprintf("%s:x:%d:%d:%s:%s:%s", a.Name, a.UID, a.GID, a.Gecos, a.Home, a.Shell))
	appendLine(fs, "/etc/shadow", a.Name+":!!:19700:0:99999:7:::")
	if len(spec.Supplementary) > 0 {
		SetSupplementary(fs, a.Name, spec.Supplementary, true)
	}

	if !fs.Exists(a.Home) {
		fs.MkdirAll(a.Home)
		fs.Touch(a.Home+"/.bash_profile", userBashProfile)
		fs.Touch(a.Home+"/.bashrc", userBashrc)
		fs.Touch(a.Home+"/.bash_logout", "# ~/.bash_logout\n")
		fs.SetOwner(a.Home, a.Name, primary.Name, true)
		fs.SetPermissions(a.Home, "rwx------", false)
	}
	fs.MkdirAll("/var/spool/mail")
	fs.Touch("/var/spool/mail/"+a.Name, "")
	return a
}

const userBashProfile = `# .bash_profile

# Get the aliases and functions
if [ -f ~/.bashrc ]; then
	. ~/.bashrc
fi

# User specific environment and startup programs
`

const userBashrc = `# .bashrc

# Source global definitions
if [ -f /etc/bashrc ]; then
	. /etc/bashrc
fi
`

// hashPassword renders a shadow field for pw.
func hashPassword(pw string) string {
	sum := sha512.Sum512([]byte(pw))
	return "$6$rounds=656000$orasim$" + hex.EncodeToString(sum[:])[:86]
}

// setShadow replaces the password field of user in /etc/shadow.
func setShadow(fs *vfs.FS, user, field string) bool {
	content, _ := fs.ReadFile("/etc/shadow")
	lines := shell.SplitLines(content)
	found := false
	for i, line := range lines {
		f := strings.Split(line, ":")
		if len(f) > 1 && f[0] == user {
			f[1] = field
			lines[i] = strings.Join(f, ":")
			found = true
		}
	}
	if !found {
		lines = append(lines, user+":"+field+":19700:0:99999:7:::")
	}
	fs.WriteFile("/etc/shadow", strings.Join(lines, "\n")+"\n")
	return found
}

func shadowField(fs *vfs.FS, user string) string {
	content, _ := fs.ReadFile("/etc/shadow")
	for _, line := range shell.SplitLines(content) {
		f := strings.Split(line, ":")
		if len(f) > 1 && f[0] == user {
			return f[1]
		}
	}
	return ""
}

func cmdGroupadd(s *shell.Session, args []string) {
	if !mustBeRoot(s, "groupadd: Permission denied.") {
		return
	}
	fs := shell.NewFlags("groupadd")
	gid := fs.IntP("gid", "g", 0, "")
	system := fs.BoolP("system", "r", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) != 1 {
		s.Error("Usage: groupadd [options] GROUP")
		return
	}
	name := operands[0]
	if _, exists := LookupGroup(s.FS, name); exists {
		s.Errorf("groupadd: group '%s' already exists", name)
		return
	}
	if *gid != 0 {
		if _, taken := groupByID(s.FS, *gid); taken {
			s.Errorf("groupadd: GID '%d' already exists", *gid)
			return
		}
	} else if *system {
		*gid = 900
		for {
			if _, taken := groupByID(s.FS, *gid); !taken {
				break
			}
			*gid--
		}
	}
	AddGroup(s.FS, name, *gid)
}

func cmdUseradd(s *shell.Session, args []string) {
	if !mustBeRoot(s, "useradd: Permission denied.") {
		return
	}
	fs := shell.NewFlags("useradd")
	uid := fs.IntP("uid", "u", 0, "")
	group := fs.StringP("gid", "g", "", "")
	supp := fs.StringP("groups", "G", "", "")
	home := fs.StringP("home-dir", "d", "", "")
	shellPath := fs.StringP("shell", "s", "", "")
	comment := fs.StringP("comment", "c", "", "")
	fs.BoolP("create-home", "m", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) != 1 {
		s.Error("Usage: useradd [options] LOGIN")
		return
	}
	name := operands[0]
	if _, exists := LookupAccount(s.FS, name); exists {
		s.Errorf("useradd: user '%s' already exists", name)
		return
	}
	if *group != "" {
		if _, ok := LookupGroup(s.FS, *group); !ok {
			s.Errorf("useradd: group '%s' does not exist", *group)
			return
		}
	}
	var groups []string
	if *supp != "" {
		for _, g := range strings.Split(*supp, ",") {
			grp, ok := LookupGroup(s.FS, g)
			if !ok {
				s.Errorf("useradd: group '%s' does not exist", g)
				return
			}
			groups = append(groups, grp.Name)
		}
	}
	if *uid != 0 {
		for _, a := range Accounts(s.FS) {
			if a.UID == *uid {
				s.Error("useradd: UID " + strconv.Itoa(*uid) + " is not unique")
				return
			}
		}
	}
	AddUser(s.FS, UserSpec{
		Name:          name,
		UID:           *uid,
		Group:         *group,
		Supplementary: groups,
		Home:          *home,
		Shell:         *shellPath,
		Comment:       *comment,
	})
}

func cmdUsermod(s *shell.Session, args []string) {
	if !mustBeRoot(s, "usermod: Permission denied.") {
		return
	}
	fs := shell.NewFlags("usermod")
	group := fs.StringP("gid", "g", "", "")
	supp := fs.StringP("groups", "G", "", "")
	appending := fs.BoolP("append", "a", false, "")
	lock := fs.BoolP("lock", "L", false, "")
	unlock := fs.BoolP("unlock", "U", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	if len(operands) != 1 {
		s.Error("Usage: usermod [options] LOGIN")
		return
	}
	name := operands[0]
	acct, exists := LookupAccount(s.FS, name)
	if !exists {
		s.Errorf("usermod: user '%s' does not exist", name)
		return
	}
	if *group != "" {
		g, ok := LookupGroup(s.FS, *group)
		if !ok {
			s.Errorf("usermod: group '%s' does not exist", *group)
			return
		}
		content, _ := s.FS.ReadFile("/etc/passwd")
		lines := shell.SplitLines(content)
		for i, line := range lines {
			f := strings.Split(line, ":")
			if len(f) >= 7 && f[0] == name {
				f[3] = strconv.Itoa(g.GID)
				lines[i] = strings.Join(f, ":")
			}
		}
		s.FS.WriteFile("/etc/passwd", strings.Join(lines, "\n")+"\n")
		s.FS.SetOwner(acct.Home, "", g.Name, true)
	}
	if *supp != "" {
		var names []string
		for _, gname := range strings.Split(*supp, ",") {
			g, ok := LookupGroup(s.FS, gname)
			if !ok {
				s.Errorf("usermod: group '%s' does not exist", gname)
				return
			}
			names = append(names, g.Name)
		}
		SetSupplementary(s.FS, name, names, *appending)
	}
	switch {
	case *lock:
		if f := shadowField(s.FS, name); !strings.HasPrefix(f, "!") {
			setShadow(s.FS, name, "!"+f)
		}
	case *unlock:
		setShadow(s.FS, name, strings.TrimPrefix(shadowField(s.FS, name), "!"))
	}
}

func cmdPasswd(s *shell.Session, args []string) {
	fs := shell.NewFlags("passwd")
	stdin := fs.Bool("stdin", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	user := s.Env.User()
	if len(operands) > 0 {
		user = operands[0]
	}
	if user != s.Env.User() && !mustBeRoot(s, "passwd: Only root can specify a user name.") {
		return
	}
	if _, exists := LookupAccount(s.FS, user); !exists {
		s.Errorf("passwd: Unknown user name '%s'.", user)
		return
	}

	finish := func(pw string) {
		setShadow(s.FS, user, hashPassword(pw))
		s.Println("passwd: all authentication tokens updated successfully.")
	}
	if *stdin {
		in, _ := s.Stdin()
		if len(in) == 0 {
			s.Error("passwd: Authentication token manipulation error")
			return
		}
		s.Println("Changing password for user " + user + ".")
		finish(in[0])
		return
	}

	s.Println("Changing password for user " + user + ".")
	askPassword(s, "New password: ", func(first string) {
		if len(first) < 8 {
			s.Println("BAD PASSWORD: The password is shorter than 8 characters")
		}
		askPassword(s, "Retype new password: ", func(second string) {
			if first != second {
				s.Println("Sorry, passwords do not match.")
				s.Error("passwd: Authentication token manipulation error")
				return
			}
			finish(first)
		})
	})
}

func cmdSu(s *shell.Session, args []string) {
	login := false
	user := "root"
	var command string
	for i := 1; i < len(args); i++ {
		switch a := args[i]; a {
		case "-", "-l", "--login":
			login = true
		case "-c", "--command":
			if i+1 < len(args) {
				i++
				command = args[i]
			}
		default:
			if strings.HasPrefix(a, "-") {
				s.Errorf("su: invalid option -- '%s'", strings.TrimLeft(a, "-"))
				return
			}
			user = a
		}
	}
	acct, ok := LookupAccount(s.FS, user)
	if !ok {
		s.Errorf("su: user %s does not exist or the user entry does not contain all the required fields", user)
		return
	}
	if strings.HasSuffix(acct.Shell, "nologin") {
		s.Println("This account is currently not available.")
		return
	}

	enter := func() {
		if w := s.Env.Push(user, login); w != "" {
			s.Println(w)
		}
		if command != "" {
			s.Exec(command)
			s.Env.Pop()
		}
	}
	if s.Env.User() == "root" {
		enter()
		return
	}
	askPassword(s, "Password: ", func(pw string) {
		if hashPassword(pw) != shadowField(s.FS, user) {
			s.Error("su: Authentication failure")
			return
		}
		enter()
	})
}

// sudoers are the users allowed to run sudo: members of wheel.
func sudoer(s *shell.Session, user string) bool {
	if user == "root" {
		return true
	}
	g, ok := LookupGroup(s.FS, "wheel")
	if !ok {
		return false
	}
	for _, m := range g.Members {
		if m == user {
			return true
		}
	}
	return false
}

func cmdSudo(s *shell.Session, args []string) {
	if len(args) < 2 {
		s.Error("usage: sudo command")
		return
	}
	user := s.Env.User()
	if !sudoer(s, user) {
		s.Errorf("%s is not in the sudoers file.  This incident will be reported.", user)
		return
	}
	rest := args[1:]
	if rest[0] == "-i" || rest[0] == "-s" || rest[0] == "su" {
		if w := s.Env.Push("root", true); w != "" {
			s.Println(w)
		}
		return
	}
	if user == "root" {
		s.Run(rest)
		return
	}
	s.Env.Push("root", false)
	defer s.Env.Pop()
	s.Run(rest)
}

func cmdExit(s *shell.Session, _ []string) {
	s.Println("logout")
	if !s.Env.Pop() {
		s.Logout()
	}
}

// idLine renders the id(1) summary for an account.
func idLine(s *shell.Session, a Account) string {
	primary, _ := groupByID(s.FS, a.GID)
	parts := []string{fmt.Sprintf("%d(%s)", a.GID, primary.Name)}
	for _, g := range memberOf(s, a) {
		parts = append(parts, fmt.Sprintf("%d(%s)", g.GID, g.Name))
	}
	return fmt.Sprintf("uid=%d(%s) gid=%d(%s) groups=%s", a.UID, a.Name, a.GID, primary.Name, strings.Join(parts, ","))
}

// memberOf returns the supplementary groups of a, excluding the primary one.
func memberOf(s *shell.Session, a Account) []Group {
	var out []Group
	for _, g := range Groups(s.FS) {
		if g.GID == a.GID {
			continue
		}
		for _, m := range g.Members {
			if m == a.Name {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func cmdID(s *shell.Session, args []string) {
	fs := shell.NewFlags("id")
	onlyUser := fs.BoolP("user", "u", false, "")
	onlyGroup := fs.BoolP("group", "g", false, "")
	allGroups := fs.BoolP("groups", "G", false, "")
	names := fs.BoolP("name", "n", false, "")
	operands, ok := s.ParseFlags(fs, args)
	if !ok {
		return
	}
	user := s.Env.User()
	if len(operands) > 0 {
		user = operands[0]
	}
	a, found := LookupAccount(s.FS, user)
	if !found {
		s.Errorf("id: '%s': no such user", user)
		return
	}
	primary, _ := groupByID(s.FS, a.GID)
	switch {
	case *onlyUser && *names:
		s.Println(a.Name)
	case *onlyUser:
		s.Println(strconv.Itoa(a.UID))
	case *onlyGroup && *names:
		s.Println(primary.Name)
	case *onlyGroup:
		s.Println(strconv.Itoa(a.GID))
	case *allGroups:
		fields := []string{strconv.Itoa(a.GID)}
		if *names {
			fields[0] = primary.Name
		}
		for _, g := range memberOf(s, a) {
			if *names {
				fields = append(fields, g.Name)
			} else {
				fields = append(fields, strconv.Itoa(g.GID))
			}
		}
		s.Println(strings.Join(fields, " "))
	default:
		line := idLine(s, a)
		if len(operands) == 0 {
			line += " context=unconfined_u:unconfined_r:unconfined_t:s0-s0:c0.c1023"
		}
		s.Println(line)
	}
}

func cmdGroups(s *shell.Session, args []string) {
	users := args[1:]
	if len(users) == 0 {
		users = []string{s.Env.User()}
	}
	for _, user := range users {
		a, ok := LookupAccount(s.FS, user)
		if !ok {
			s.Errorf("groups: '%s': no such user", user)
			continue
		}
		primary, _ := groupByID(s.FS, a.GID)
		names := []string{primary.Name}
		for _, g := range memberOf(s, a) {
			names = append(names, g.Name)
		}
		if len(args) > 1 {
			s.Printf("%s : %s", user, strings.Join(names, " "))
		} else {
			s.Println(strings.Join(names, " "))
		}
	}
}

func cmdWhoami(s *shell.Session, _ []string) {
	s.Println(s.Env.User())
}
