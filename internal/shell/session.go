// Package shell is the command dispatcher: it owns a session's state bundle,
// routes submitted lines to the active modal frame or to a registered
// command, and implements the small slice of bash syntax the simulator
// understands (quoting, variables, redirection, pipes, heredocs).
package shell

import (
	"fmt"
	"strings"
	"time"

	"orasim/internal/config"
	"orasim/internal/env"
	"orasim/internal/logging"
	"orasim/internal/modal"
	"orasim/internal/oracle"
	"orasim/internal/store"
	"orasim/internal/vfs"
)

// Writer receives output lines.
type Writer interface {
	WriteLine(text string)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(text string)

func (f WriterFunc) WriteLine(text string) { f(text) }

// Clearer is implemented by writers that can clear the screen.
type Clearer interface {
	Clear()
}

// Options configures a session.
type Options struct {
	ID       string
	Config   *config.Config
	Store    store.BlobStore
	Registry *Registry
	Out      Writer
	Clock    func() time.Time
}

// Session bundles all state for one user session. Handlers receive it
// explicitly; there are no package-level singletons.
type Session struct {
	ID       string
	Config   *config.Config
	FS       *vfs.FS
	Env      *env.Context
	Oracle   *oracle.State
	Modal    *modal.Stack
	History  *History
	Registry *Registry
	Clock    func() time.Time

	out   Writer
	store store.BlobStore

	stdout *sink
	stderr *sink
	stdin  []string
	hasIn  bool

	// invoked is args[0] of the running command as typed.
	invoked     string
	failed      bool
	missing     bool
	scriptDepth int
	done        bool
	booted      time.Time
}

// sink collects redirected output.
type sink struct {
	lines   []string
	discard bool
}

// New builds a session from the store, falling back to defaults for any
// blob that is absent.
func New(opts Options) *Session {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Out == nil {
		opts.Out = WriterFunc(func(string) {})
	}
	s := &Session{
		ID:       opts.ID,
		Config:   opts.Config,
		Registry: opts.Registry,
		Clock:    opts.Clock,
		out:      opts.Out,
		store:    opts.Store,
	}
	s.build()
	logging.Audit(logging.AuditEvent{Type: logging.AuditSessionStart, SessionID: s.ID})
	return s
}

func (s *Session) build() {
	cfg := s.Config
	s.FS = vfs.New(vfs.Options{
		Store:    s.store,
		Clock:    s.Clock,
		Hostname: cfg.Hostname,
		User:     cfg.DefaultUser,
	})
	s.Env = env.New(s.FS)
	s.Oracle = oracle.New(oracle.Options{
		Store:        s.store,
		Clock:        s.Clock,
		SID:          cfg.Oracle.SID,
		OracleBase:   cfg.Oracle.OracleBase,
		OracleHome:   cfg.Oracle.OracleHome,
		ListenerPort: cfg.Oracle.ListenerPort,
	})
	s.Modal = &modal.Stack{}
	s.History = NewHistory(s.store)
	s.booted = s.Clock()
	s.done = false
}

// SetOutput replaces the terminal writer.
func (s *Session) SetOutput(w Writer) { s.out = w }

// Println writes one line to standard output.
func (s *Session) Println(text string) {
	if s.stdout != nil {
		if !s.stdout.discard {
			s.stdout.lines = append(s.stdout.lines, text)
		}
		return
	}
	s.out.WriteLine(text)
}

// Printf formats and writes one line to standard output.
func (s *Session) Printf(format string, args ...any) {
	s.Println(fmt.Sprintf(format, args...))
}

// Print writes each line, splitting embedded newlines.
func (s *Session) Print(lines ...string) {
	for _, l := range lines {
		for _, part := range strings.Split(l, "\n") {
			s.Println(part)
		}
	}
}

// Error writes one line to standard error and marks the command failed.
func (s *Session) Error(text string) {
	s.failed = true
	if s.stderr != nil {
		if !s.stderr.discard {
			s.stderr.lines = append(s.stderr.lines, text)
		}
		return
	}
	s.out.WriteLine(text)
}

// Errorf formats and writes one line to standard error.
func (s *Session) Errorf(format string, args ...any) {
	s.Error(fmt.Sprintf(format, args...))
}

// Stdin returns piped or redirected input lines for the running command.
func (s *Session) Stdin() ([]string, bool) { return s.stdin, s.hasIn }

// Invoked returns the command name as typed, including any path.
func (s *Session) Invoked() string { return s.invoked }

// ClearScreen asks the front-end to clear the terminal.
func (s *Session) ClearScreen() {
	if c, ok := s.out.(Clearer); ok {
		c.Clear()
	}
}

// Logout marks the session finished. Front-ends close on Done.
func (s *Session) Logout() { s.done = true }

// Done reports whether the user logged out of the last shell level.
func (s *Session) Done() bool { return s.done }

// Booted returns when the simulated host last started.
func (s *Session) Booted() time.Time { return s.booted }

// Host returns the short host name.
func (s *Session) Host() string {
	h := s.FS.Hostname()
	if i := strings.IndexByte(h, '.'); i > 0 {
		return h[:i]
	}
	return h
}

// Prompt returns the active modal prompt or the bash prompt.
func (s *Session) Prompt() string {
	if f := s.Modal.Top(); f != nil && f.Prompt != nil {
		return f.Prompt()
	}
	user := s.Env.User()
	dir := s.Env.Path()
	switch {
	case s.Env.AtHome():
		dir = "~"
	case dir != "/":
		dir = dir[strings.LastIndexByte(dir, '/')+1:]
	}
	mark := "$"
	if user == "root" {
		mark = "#"
	}
	return fmt.Sprintf("[%s@%s %s]%s ", user, s.Host(), dir, mark)
}

// Masked reports whether the front-end should hide the next input line.
func (s *Session) Masked() bool {
	f := s.Modal.Top()
	return f != nil && f.Masked
}

// Reboot discards the Oracle state and history blobs, keeps the filesystem,
// and rebuilds the session from scratch.
func (s *Session) Reboot() {
	if s.store != nil {
		for _, key := range []string{store.KeyOracle, store.KeyHistory} {
			if err := s.store.Remove(key); err != nil {
				logging.Get(logging.CategoryStore).Error("failed to remove %s blob: %v", key, err)
			}
		}
	}
	s.Modal.Clear()
	s.build()
	s.Env.Reset("root")
	logging.Audit(logging.AuditEvent{Type: logging.AuditSessionReset, SessionID: s.ID, Fields: map[string]interface{}{"scope": "reboot"}})
	logging.Dispatch("session %s rebooted", s.ID)
}

// ResetAll discards every blob including the filesystem.
func (s *Session) ResetAll() {
	if s.store != nil {
		if err := s.store.Remove(store.KeyFilesystem); err != nil {
			logging.Get(logging.CategoryStore).Error("failed to remove fs blob: %v", err)
		}
	}
	s.Reboot()
	s.FS.Reset()
	s.Env.Reset("root")
}
