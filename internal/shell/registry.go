package shell

import (
	"sort"
)

// Handler runs one top-level command. args[0] is the command name as typed.
type Handler func(s *Session, args []string)

// Middleware wraps a handler. It receives the handler it replaces.
type Middleware func(next Handler) Handler

// Table is a set of handlers registered together by one extension.
type Table map[string]Handler

// Registry maps command names to handlers. It is one flat namespace: the last
// registration for a name wins, and middleware added with Wrap applies on top
// of whatever handler is registered at lookup time.
type Registry struct {
	handlers   map[string]Handler
	scripts    map[string]Handler
	middleware map[string][]Middleware
	values     map[any]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:   make(map[string]Handler),
		scripts:    make(map[string]Handler),
		middleware: make(map[string][]Middleware),
		values:     make(map[any]any),
	}
}

// Attach stores a value that command tables share, such as a catalog one
// extension fills and another reads. Keys follow the context.WithValue
// convention: an unexported type per package. Attach belongs to setup; the
// registry is read-only once sessions use it.
func (r *Registry) Attach(key, value any) {
	r.values[key] = value
}

// Attached returns the value stored under key, or nil.
func (r *Registry) Attached(key any) any {
	return r.values[key]
}

// Register binds name to h, replacing any earlier binding.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// RegisterTable registers every entry of t.
func (r *Registry) RegisterTable(t Table) {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Register(name, t[name])
	}
}

// RegisterScript binds a handler reachable only through an explicit path
// (./name or /abs/path/name), the way scripts outside PATH behave.
func (r *Registry) RegisterScript(basename string, h Handler) {
	r.scripts[basename] = h
}

// Wrap adds middleware around name. Later middleware runs outermost.
func (r *Registry) Wrap(name string, mw Middleware) {
	r.middleware[name] = append(r.middleware[name], mw)
}

// Lookup returns the handler for name with its middleware applied.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, false
	}
	return r.wrap(name, h), true
}

// LookupScript returns the path-only handler for a script basename.
func (r *Registry) LookupScript(basename string) (Handler, bool) {
	if h, ok := r.scripts[basename]; ok {
		return r.wrap(basename, h), true
	}
	return r.Lookup(basename)
}

// Script returns a handler registered with RegisterScript only.
func (r *Registry) Script(basename string) (Handler, bool) {
	h, ok := r.scripts[basename]
	if !ok {
		return nil, false
	}
	return r.wrap(basename, h), true
}

func (r *Registry) wrap(name string, h Handler) Handler {
	for _, mw := range r.middleware[name] {
		h = mw(h)
	}
	return h
}

// Names returns registered command names sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
