// Package store provides durable key-value blob storage for session state.
// Each blob (filesystem tree, Oracle state, command history) is read once on
// session start and rewritten after every mutation.
package store

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("blob not found")

// Well-known blob keys.
const (
	KeyFilesystem = "fs"
	KeyOracle     = "oracle"
	KeyHistory    = "history"
)

// BlobStore is durable key-value blob storage with get/set/remove.
type BlobStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Close() error
}

// Open returns a BlobStore for the configured driver.
func Open(driver, path string) (BlobStore, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewLocalStore(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// MemoryStore keeps blobs in process memory. Used by tests and as the
// degraded mode when the database cannot be opened.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Namespaced prefixes every key so several sessions can share one store.
type Namespaced struct {
	inner  BlobStore
	prefix string
}

// WithNamespace wraps inner so keys become "<ns>/<key>". Closing the
// namespaced view does not close inner.
func WithNamespace(inner BlobStore, ns string) *Namespaced {
	return &Namespaced{inner: inner, prefix: ns + "/"}
}

func (n *Namespaced) Get(key string) ([]byte, error)    { return n.inner.Get(n.prefix + key) }
func (n *Namespaced) Set(key string, value []byte) error { return n.inner.Set(n.prefix+key, value) }
func (n *Namespaced) Remove(key string) error            { return n.inner.Remove(n.prefix + key) }
func (n *Namespaced) Close() error                       { return nil }
