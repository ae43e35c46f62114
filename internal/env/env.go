// Package env holds the per-session shell environment: variables and the
// su/exit user stack. The acting user and working directory live in the
// filesystem because they persist with it.
package env

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"orasim/internal/logging"
	"orasim/internal/vfs"
)

const defaultPath = "/usr/local/bin:/usr/bin:/usr/local/sbin:/usr/sbin"

// frame remembers what to restore when a su level exits.
type frame struct {
	user string
	cwd  string
	vars map[string]string
}

// Context is the environment of one shell session.
type Context struct {
	fs     *vfs.FS
	stack  []frame
	vars   map[string]string
	status int
}

// New creates the environment for the filesystem's current user and sources
// that user's ~/.bash_profile.
func New(fs *vfs.FS) *Context {
	c := &Context{fs: fs}
	c.vars = c.loginVars(fs.User())
	c.stack = []frame{{user: fs.User(), cwd: fs.Cwd()}}
	c.sourceProfile(fs.User())
	return c
}

func (c *Context) loginVars(user string) map[string]string {
	path := defaultPath
	if user != "root" {
		path = "/usr/local/bin:/usr/bin:/usr/local/sbin:/usr/sbin:/home/" + user + "/.local/bin:/home/" + user + "/bin"
	}
	return map[string]string{
		"HOME":     c.fs.HomeOf(user),
		"USER":     user,
		"LOGNAME":  user,
		"SHELL":    "/bin/bash",
		"PATH":     path,
		"HOSTNAME": c.fs.Hostname(),
		"LANG":     "en_US.UTF-8",
		"TERM":     "xterm-256color",
		"HISTSIZE": "1000",
	}
}

// User returns the current user, the top of the su stack.
func (c *Context) User() string { return c.fs.User() }

// Path returns the working directory.
func (c *Context) Path() string { return c.fs.Cwd() }

// Home returns the current user's home directory.
func (c *Context) Home() string { return c.fs.HomeOf(c.fs.User()) }

// AtHome reports whether the working directory is the user's home.
func (c *Context) AtHome() bool { return c.fs.Cwd() == c.Home() }

// Depth returns the number of entries on the user stack. It is never zero.
func (c *Context) Depth() int { return len(c.stack) }

// Users returns the user stack, bottom first.
func (c *Context) Users() []string {
	out := make([]string, len(c.stack))
	for i, f := range c.stack {
		out[i] = f.user
	}
	return out
}

// Get returns a variable. PWD is derived from the working directory.
func (c *Context) Get(name string) (string, bool) {
	if name == "PWD" {
		return c.fs.Cwd(), true
	}
	v, ok := c.vars[name]
	return v, ok
}

// Value returns a variable or the empty string.
func (c *Context) Value(name string) string {
	v, _ := c.Get(name)
	return v
}

// Set assigns a variable.
func (c *Context) Set(name, value string) {
	c.vars[name] = value
	logging.DispatchDebug("env set %s=%s", name, value)
}

// Export assigns a variable. Every variable in the simulator is exported.
func (c *Context) Export(name, value string) { c.Set(name, value) }

// Unset removes a variable.
func (c *Context) Unset(name string) { delete(c.vars, name) }

// Environ returns NAME=value pairs sorted by name.
func (c *Context) Environ() []string {
	out := make([]string, 0, len(c.vars)+1)
	for k, v := range c.vars {
		out = append(out, k+"="+v)
	}
	out = append(out, "PWD="+c.fs.Cwd())
	sort.Strings(out)
	return out
}

// SetStatus records the exit status "$?" expands to.
func (c *Context) SetStatus(code int) { c.status = code }

// Expand substitutes $VAR and ${VAR}.
func (c *Context) Expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(name string) string {
		switch name {
		case "?":
			return strconv.Itoa(c.status)
		case "$":
			return "4242"
		}
		return c.Value(name)
	})
}

// Push switches to user, as su does. A login switch moves to the user's home,
// rebuilds the environment and sources ~/.bash_profile; the returned warning
// is non-empty when the home directory is missing.
func (c *Context) Push(user string, login bool) string {
	saved := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		saved[k] = v
	}
	c.stack[len(c.stack)-1].cwd = c.fs.Cwd()
	c.stack[len(c.stack)-1].vars = saved
	c.stack = append(c.stack, frame{user: user})

	warning := ""
	if login {
		home := c.fs.HomeOf(user)
		if !c.fs.SwitchUser(user, home) {
			warning = "su: warning: cannot change directory to " + home + ": No such file or directory"
		}
		c.vars = c.loginVars(user)
		c.sourceProfile(user)
	} else {
		c.fs.SwitchUser(user, "")
		c.vars["USER"] = user
		c.vars["LOGNAME"] = user
		c.vars["HOME"] = c.fs.HomeOf(user)
	}
	logging.Dispatch("su to %s (login=%v) depth=%d", user, login, len(c.stack))
	return warning
}

// Pop returns to the previous user and working directory. It refuses to pop
// the last entry.
func (c *Context) Pop() bool {
	if len(c.stack) <= 1 {
		return false
	}
	c.stack = c.stack[:len(c.stack)-1]
	prev := c.stack[len(c.stack)-1]
	c.fs.SwitchUser(prev.user, prev.cwd)
	if prev.vars != nil {
		c.vars = prev.vars
	}
	logging.Dispatch("exit to %s depth=%d", prev.user, len(c.stack))
	return true
}

// Reset drops every su level and rebuilds the environment for user.
func (c *Context) Reset(user string) {
	c.fs.SwitchUser(user, c.fs.HomeOf(user))
	c.vars = c.loginVars(user)
	c.stack = []frame{{user: user, cwd: c.fs.Cwd()}}
	c.status = 0
	c.sourceProfile(user)
}

func (c *Context) sourceProfile(user string) {
	profile, ok := c.fs.ReadFile(c.fs.HomeOf(user) + "/.bash_profile")
	if !ok {
		return
	}
	c.Source(profile)
}

// Source applies the variable assignments in a shell script: lines of the
// form "export NAME=value" or "NAME=value". Everything else is ignored. It
// returns the number of assignments applied.
func (c *Context) Source(script string) int {
	n := 0
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		name, value, ok := ParseAssignment(line)
		if !ok {
			continue
		}
		c.Set(name, c.Expand(value))
		n++
	}
	return n
}

// ParseAssignment splits NAME=value, stripping one layer of matching quotes
// from the value.
func ParseAssignment(s string) (name, value string, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	name = s[:i]
	if !validName(name) {
		return "", "", false
	}
	value = s[i+1:]
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return name, value, true
}

func validName(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
