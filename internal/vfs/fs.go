// Package vfs implements the simulated filesystem: a tree of named nodes
// with cosmetic metadata, path resolution relative to a working directory,
// and blob persistence after every mutation.
package vfs

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"orasim/internal/logging"
	"orasim/internal/metrics"
	"orasim/internal/store"
)

// Options configures a filesystem.
type Options struct {
	Store    store.BlobStore
	Clock    func() time.Time
	Hostname string
	User     string // initial user when no blob exists
}

// Entry is one directory listing row.
type Entry struct {
	Name string
	*Node
}

// FS is the simulated filesystem for one session. It also owns the current
// user and working directory because both persist in the same blob.
type FS struct {
	root     *Node
	cwd      string
	user     string
	hostname string
	store    store.BlobStore
	clock    func() time.Time
}

// snapshot is the persisted filesystem blob.
type snapshot struct {
	Root        *Node  `json:"root"`
	CurrentPath string `json:"currentPath"`
	CurrentUser string `json:"currentUser"`
}

// New loads the filesystem blob from the store, or builds the default tree
// when no blob exists or it cannot be decoded.
func New(opts Options) *FS {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Hostname == "" {
		opts.Hostname = "localhost"
	}
	if opts.User == "" {
		opts.User = "root"
	}
	fs := &FS{
		hostname: opts.Hostname,
		store:    opts.Store,
		clock:    opts.Clock,
	}
	if !fs.load() {
		fs.reset(opts.User)
	}
	fs.EnsureCwd()
	return fs
}

func (fs *FS) load() bool {
	if fs.store == nil {
		return false
	}
	data, err := fs.store.Get(store.KeyFilesystem)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Get(logging.CategoryFS).Warn("failed to read filesystem blob: %v", err)
		}
		return false
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Root == nil || !snap.Root.IsDir() {
		logging.Get(logging.CategoryFS).Warn("discarding unreadable filesystem blob: %v", err)
		return false
	}
	fs.root = snap.Root
	fs.cwd = snap.CurrentPath
	fs.user = snap.CurrentUser
	if fs.user == "" {
		fs.user = "root"
	}
	logging.FS("loaded filesystem blob (%d bytes), cwd=%s user=%s", len(data), fs.cwd, fs.user)
	return true
}

// Reset replaces the tree with the default skeleton and persists it.
func (fs *FS) Reset() {
	fs.reset("root")
	fs.persist()
}

func (fs *FS) reset(user string) {
	fs.root = defaultTree(fs.hostname, fs.clock())
	fs.user = user
	fs.cwd = fs.HomeOf(user)
}

// persist writes the whole tree. Failures are logged and otherwise ignored;
// the in-memory tree stays authoritative.
func (fs *FS) persist() {
	if fs.store == nil {
		return
	}
	data, err := json.Marshal(snapshot{Root: fs.root, CurrentPath: fs.cwd, CurrentUser: fs.user})
	if err == nil {
		err = fs.store.Set(store.KeyFilesystem, data)
	}
	if err != nil {
		logging.Get(logging.CategoryFS).Error("failed to persist filesystem: %v", err)
		metrics.RecordPersistFailure(store.KeyFilesystem)
		logging.Audit(logging.AuditEvent{Type: logging.AuditPersistFail, Fields: map[string]interface{}{"key": store.KeyFilesystem}})
		return
	}
	logging.FSDebug("persisted filesystem (%d bytes)", len(data))
}

// User returns the acting user.
func (fs *FS) User() string { return fs.user }

// SetUser changes the acting user and persists.
func (fs *FS) SetUser(user string) {
	fs.user = user
	fs.persist()
}

// Cwd returns the current working directory as an absolute path.
func (fs *FS) Cwd() string { return fs.cwd }

// Hostname returns the simulated host name.
func (fs *FS) Hostname() string { return fs.hostname }

// HomeOf returns the home directory for user.
func (fs *FS) HomeOf(user string) string {
	if user == "root" {
		return "/root"
	}
	if passwd, ok := fs.ReadFile("/etc/passwd"); ok {
		for _, line := range strings.Split(passwd, "\n") {
			f := strings.Split(line, ":")
			if len(f) >= 6 && f[0] == user && f[5] != "" {
				return f[5]
			}
		}
	}
	return "/home/" + user
}

// ResolvePath normalizes p into path segments. Relative paths start from the
// working directory; ".." is clamped at the root. A leading "~" expands to
// the acting user's home. ResolvePath never touches the tree.
func (fs *FS) ResolvePath(p string) []string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		p = fs.HomeOf(fs.user) + p[1:]
	}
	var segs []string
	if !strings.HasPrefix(p, "/") {
		segs = splitSegments(fs.cwd)
	}
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	if segs == nil {
		segs = []string{}
	}
	return segs
}

func splitSegments(abs string) []string {
	var out []string
	for _, s := range strings.Split(abs, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Join renders segments as an absolute path.
func Join(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// Abs resolves p to a normalized absolute path string.
func (fs *FS) Abs(p string) string {
	return Join(fs.ResolvePath(p))
}

// GetNode walks segments from the root. It returns nil on a missing segment
// or when asked to descend through a file.
func (fs *FS) GetNode(segs []string) *Node {
	n := fs.root
	for _, s := range segs {
		c, ok := n.Child(s)
		if !ok {
			return nil
		}
		n = c
	}
	return n
}

// Lookup resolves p and returns its node.
func (fs *FS) Lookup(p string) *Node {
	return fs.GetNode(fs.ResolvePath(p))
}

func (fs *FS) Exists(p string) bool      { return fs.Lookup(p) != nil }
func (fs *FS) IsDirectory(p string) bool { return fs.Lookup(p).IsDir() }

func (fs *FS) IsFile(p string) bool {
	n := fs.Lookup(p)
	return n != nil && n.Kind == KindFile
}

// parentOf resolves p and returns its parent directory and base name.
func (fs *FS) parentOf(p string) (*Node, string, bool) {
	segs := fs.ResolvePath(p)
	if len(segs) == 0 {
		return nil, "", false
	}
	parent := fs.GetNode(segs[:len(segs)-1])
	if !parent.IsDir() {
		return nil, "", false
	}
	return parent, segs[len(segs)-1], true
}

// Mkdir creates one directory. The parent must already exist and the name
// must be free; intermediate directories are not created.
func (fs *FS) Mkdir(p string) bool {
	parent, name, ok := fs.parentOf(p)
	if !ok {
		return false
	}
	if _, exists := parent.Child(name); exists {
		return false
	}
	parent.put(name, newDir(fs.user, fs.primaryGroup(fs.user), fs.clock()))
	parent.Modified = fs.clock()
	fs.persist()
	logging.FSDebug("mkdir %s", fs.Abs(p))
	return true
}

// MkdirAll creates p and any missing parents by calling Mkdir on each prefix.
func (fs *FS) MkdirAll(p string) bool {
	segs := fs.ResolvePath(p)
	for i := 1; i <= len(segs); i++ {
		prefix := Join(segs[:i])
		n := fs.GetNode(segs[:i])
		switch {
		case n == nil:
			if !fs.Mkdir(prefix) {
				return false
			}
		case !n.IsDir():
			return false
		}
	}
	return true
}

// Touch creates or overwrites a file with content.
func (fs *FS) Touch(p, content string) bool {
	parent, name, ok := fs.parentOf(p)
	if !ok {
		return false
	}
	if existing, exists := parent.Child(name); exists && existing.IsDir() {
		return false
	}
	parent.put(name, newFile(fs.user, fs.primaryGroup(fs.user), content, fs.clock()))
	fs.persist()
	logging.FSDebug("touch %s (%d bytes)", fs.Abs(p), len(content))
	return true
}

// UpdateFile replaces the content of an existing file.
func (fs *FS) UpdateFile(p, content string) bool {
	n := fs.Lookup(p)
	if n == nil || n.Kind != KindFile {
		return false
	}
	n.Content = content
	n.Size = int64(len(content))
	n.Modified = fs.clock()
	fs.persist()
	return true
}

// AppendToFile appends content to an existing file.
func (fs *FS) AppendToFile(p, content string) bool {
	current, ok := fs.ReadFile(p)
	if !ok {
		return false
	}
	return fs.UpdateFile(p, current+content)
}

// WriteFile creates the file if absent and replaces its content otherwise,
// preserving existing metadata.
func (fs *FS) WriteFile(p, content string) bool {
	if fs.IsFile(p) {
		return fs.UpdateFile(p, content)
	}
	return fs.Touch(p, content)
}

// ReadFile returns the content of a file.
func (fs *FS) ReadFile(p string) (string, bool) {
	n := fs.Lookup(p)
	if n == nil || n.Kind != KindFile {
		return "", false
	}
	return n.Content, true
}

// Rm removes p. A non-empty directory requires recursive. The root cannot be
// removed.
func (fs *FS) Rm(p string, recursive bool) bool {
	parent, name, ok := fs.parentOf(p)
	if !ok {
		return false
	}
	n, exists := parent.Child(name)
	if !exists {
		return false
	}
	if n.IsDir() && n.Len() > 0 && !recursive {
		return false
	}
	parent.remove(name)
	parent.Modified = fs.clock()
	fs.EnsureCwd()
	fs.persist()
	logging.FSDebug("rm %s recursive=%v", fs.Abs(p), recursive)
	return true
}

// Cd changes the working directory. "~" is the acting user's home.
func (fs *FS) Cd(p string) bool {
	if p == "" {
		p = "~"
	}
	segs := fs.ResolvePath(p)
	if !fs.GetNode(segs).IsDir() {
		return false
	}
	fs.cwd = Join(segs)
	fs.persist()
	return true
}

// setCwd moves to an existing directory without persisting.
func (fs *FS) setCwd(p string) bool {
	segs := fs.ResolvePath(p)
	if !fs.GetNode(segs).IsDir() {
		return false
	}
	fs.cwd = Join(segs)
	return true
}

// SwitchUser changes the acting user and working directory together and
// persists once. If dir is not a directory the working directory is left
// alone and false is returned.
func (fs *FS) SwitchUser(user, dir string) bool {
	fs.user = user
	ok := true
	if dir != "" {
		ok = fs.setCwd(dir)
	}
	fs.EnsureCwd()
	fs.persist()
	return ok
}

// EnsureCwd moves the working directory to its nearest existing ancestor.
func (fs *FS) EnsureCwd() {
	segs := splitSegments(fs.cwd)
	for len(segs) > 0 && !fs.GetNode(segs).IsDir() {
		segs = segs[:len(segs)-1]
	}
	fs.cwd = Join(segs)
}

// Ls lists a directory in insertion order.
func (fs *FS) Ls(p string) ([]Entry, bool) {
	if p == "" {
		p = "."
	}
	n := fs.Lookup(p)
	if !n.IsDir() {
		return nil, false
	}
	out := make([]Entry, 0, n.Len())
	for _, name := range n.order {
		out = append(out, Entry{Name: name, Node: n.children[name]})
	}
	return out, true
}

// Copy copies src to dst. When dst is an existing directory the copy is
// placed inside it under the source's base name.
func (fs *FS) Copy(src, dst string) bool {
	n := fs.Lookup(src)
	if n == nil {
		return false
	}
	target, ok := fs.placement(src, dst)
	if !ok {
		return false
	}
	parent := fs.GetNode(target[:len(target)-1])
	c := n.clone()
	c.Owner = fs.user
	c.Group = fs.primaryGroup(fs.user)
	c.Modified = fs.clock()
	parent.put(target[len(target)-1], c)
	fs.persist()
	return true
}

// Move renames src to dst, with the same placement rule as Copy. A directory
// cannot be moved into itself.
func (fs *FS) Move(src, dst string) bool {
	srcSegs := fs.ResolvePath(src)
	n := fs.GetNode(srcSegs)
	if n == nil || len(srcSegs) == 0 {
		return false
	}
	target, ok := fs.placement(src, dst)
	if !ok || hasPrefix(target, srcSegs) {
		return false
	}
	fs.GetNode(srcSegs[:len(srcSegs)-1]).remove(srcSegs[len(srcSegs)-1])
	fs.GetNode(target[:len(target)-1]).put(target[len(target)-1], n)
	n.Modified = fs.clock()
	fs.EnsureCwd()
	fs.persist()
	return true
}

// placement returns the segments where src lands when copied or moved to dst.
func (fs *FS) placement(src, dst string) ([]string, bool) {
	srcSegs := fs.ResolvePath(src)
	dstSegs := fs.ResolvePath(dst)
	if len(srcSegs) == 0 {
		return nil, false
	}
	if fs.GetNode(dstSegs).IsDir() {
		return append(dstSegs, srcSegs[len(srcSegs)-1]), true
	}
	if len(dstSegs) == 0 || !fs.GetNode(dstSegs[:len(dstSegs)-1]).IsDir() {
		return nil, false
	}
	return dstSegs, true
}

func hasPrefix(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}

// SetOwner changes owner and group, optionally for the whole subtree.
func (fs *FS) SetOwner(p, owner, group string, recursive bool) bool {
	n := fs.Lookup(p)
	if n == nil {
		return false
	}
	var apply func(*Node)
	apply = func(x *Node) {
		if owner != "" {
			x.Owner = owner
		}
		if group != "" {
			x.Group = group
		}
		if recursive && x.IsDir() {
			for _, name := range x.order {
				apply(x.children[name])
			}
		}
	}
	apply(n)
	fs.persist()
	return true
}

// SetPermissions replaces the permission string, optionally recursively.
func (fs *FS) SetPermissions(p, perm string, recursive bool) bool {
	n := fs.Lookup(p)
	if n == nil {
		return false
	}
	var apply func(*Node)
	apply = func(x *Node) {
		prefix := "-"
		if x.IsDir() {
			prefix = "d"
		}
		x.Permissions = prefix + perm
		if recursive && x.IsDir() {
			for _, name := range x.order {
				apply(x.children[name])
			}
		}
	}
	apply(n)
	fs.persist()
	return true
}

// SetDatafileGrowth records autoextend metadata on a datafile.
func (fs *FS) SetDatafileGrowth(p string, autoextend bool, next, max string) bool {
	n := fs.Lookup(p)
	if n == nil || n.Kind != KindFile {
		return false
	}
	n.Autoextend = autoextend
	n.NextSize = next
	n.MaxSize = max
	fs.persist()
	return true
}

// SetSize overrides the cosmetic size of a file, for simulated binaries and
// datafiles whose content is not modeled.
func (fs *FS) SetSize(p string, size int64) bool {
	n := fs.Lookup(p)
	if n == nil || n.Kind != KindFile {
		return false
	}
	n.Size = size
	fs.persist()
	return true
}

// NextUID returns the next free user id from /etc/passwd.
func (fs *FS) NextUID() int { return fs.nextID("/etc/passwd") }

// NextGID returns the next free group id from /etc/group.
func (fs *FS) NextGID() int { return fs.nextID("/etc/group") }

// nextID returns max(999, highest id in [1000,65533]) + 1 over the third
// colon-delimited field of each line.
func (fs *FS) nextID(path string) int {
	content, _ := fs.ReadFile(path)
	highest := 999
	for _, line := range strings.Split(content, "\n") {
		f := strings.Split(line, ":")
		if len(f) < 3 {
			continue
		}
		id, err := strconv.Atoi(f[2])
		if err != nil || id < 1000 || id > 65533 {
			continue
		}
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

// primaryGroup maps a user to their primary group name through /etc/passwd
// and /etc/group, falling back to the user name.
func (fs *FS) primaryGroup(user string) string {
	if user == "root" {
		return "root"
	}
	passwd, _ := fs.ReadFile("/etc/passwd")
	gid := ""
	for _, line := range strings.Split(passwd, "\n") {
		f := strings.Split(line, ":")
		if len(f) >= 4 && f[0] == user {
			gid = f[3]
			break
		}
	}
	if gid == "" {
		return user
	}
	group, _ := fs.ReadFile("/etc/group")
	for _, line := range strings.Split(group, "\n") {
		f := strings.Split(line, ":")
		if len(f) >= 3 && f[2] == gid {
			return f[0]
		}
	}
	return user
}

// PrimaryGroup returns the primary group name for user.
func (fs *FS) PrimaryGroup(user string) string { return fs.primaryGroup(user) }
