package vfs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Node is a file or directory in the simulated tree. Metadata is cosmetic:
// nothing enforces permissions or ownership.
type Node struct {
	Kind        Kind
	Permissions string
	Owner       string
	Group       string
	Size        int64
	Modified    time.Time

	// Content holds the file body. Unused for directories.
	Content string

	// Datafile growth metadata attached to Oracle .dbf files.
	Autoextend bool
	NextSize   string
	MaxSize    string

	children map[string]*Node
	order    []string
}

func newDir(owner, group string, now time.Time) *Node {
	return &Node{
		Kind:        KindDirectory,
		Permissions: "drwxr-xr-x",
		Owner:       owner,
		Group:       group,
		Size:        4096,
		Modified:    now,
		children:    make(map[string]*Node),
	}
}

func newFile(owner, group, content string, now time.Time) *Node {
	return &Node{
		Kind:        KindFile,
		Permissions: "-rw-r--r--",
		Owner:       owner,
		Group:       group,
		Size:        int64(len(content)),
		Modified:    now,
		Content:     content,
	}
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n != nil && n.Kind == KindDirectory }

// Child returns the named child of a directory.
func (n *Node) Child(name string) (*Node, bool) {
	if !n.IsDir() {
		return nil, false
	}
	c, ok := n.children[name]
	return c, ok
}

// Names returns child names in insertion order.
func (n *Node) Names() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// Len returns the number of children.
func (n *Node) Len() int { return len(n.order) }

func (n *Node) put(name string, child *Node) {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	if _, exists := n.children[name]; !exists {
		n.order = append(n.order, name)
	}
	n.children[name] = child
}

func (n *Node) remove(name string) {
	if _, ok := n.children[name]; !ok {
		return
	}
	delete(n.children, name)
	for i, o := range n.order {
		if o == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// clone deep-copies the subtree rooted at n.
func (n *Node) clone() *Node {
	c := *n
	c.children = nil
	c.order = nil
	if n.IsDir() {
		c.children = make(map[string]*Node, len(n.children))
		for _, name := range n.order {
			c.put(name, n.children[name].clone())
		}
	}
	return &c
}

// wireNode is the persisted form. Children are an ordered array so listing
// order survives a round-trip through JSON.
type wireNode struct {
	Kind        string      `json:"kind"`
	Permissions string      `json:"permissions"`
	Owner       string      `json:"owner"`
	Group       string      `json:"group"`
	Size        int64       `json:"size"`
	Modified    time.Time   `json:"modified"`
	Content     string      `json:"content,omitempty"`
	Autoextend  bool        `json:"autoextend,omitempty"`
	NextSize    string      `json:"nextSize,omitempty"`
	MaxSize     string      `json:"maxSize,omitempty"`
	Children    []wireChild `json:"children,omitempty"`
}

type wireChild struct {
	Name string `json:"name"`
	Node *Node  `json:"node"`
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireNode{
		Kind:        n.Kind.String(),
		Permissions: n.Permissions,
		Owner:       n.Owner,
		Group:       n.Group,
		Size:        n.Size,
		Modified:    n.Modified,
		Content:     n.Content,
		Autoextend:  n.Autoextend,
		NextSize:    n.NextSize,
		MaxSize:     n.MaxSize,
	}
	for _, name := range n.order {
		w.Children = append(w.Children, wireChild{Name: name, Node: n.children[name]})
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "file":
		n.Kind = KindFile
	case "directory":
		n.Kind = KindDirectory
		n.children = make(map[string]*Node, len(w.Children))
	default:
		return fmt.Errorf("unknown node kind %q", w.Kind)
	}
	n.Permissions = w.Permissions
	n.Owner = w.Owner
	n.Group = w.Group
	n.Size = w.Size
	n.Modified = w.Modified
	n.Content = w.Content
	n.Autoextend = w.Autoextend
	n.NextSize = w.NextSize
	n.MaxSize = w.MaxSize
	for _, c := range w.Children {
		if n.Kind != KindDirectory || c.Node == nil || c.Name == "" {
			continue
		}
		n.put(c.Name, c.Node)
	}
	return nil
}
