package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orasim/internal/store"
)

func exerciseStore(t *testing.T, s store.BlobStore) {
	t.Helper()

	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.Set(store.KeyOracle, []byte(`{"a":1}`)))
	got, err := s.Get(store.KeyOracle)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, s.Set(store.KeyOracle, []byte(`{"a":2}`)))
	got, err = s.Get(store.KeyOracle)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, s.Remove(store.KeyOracle))
	_, err = s.Get(store.KeyOracle)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// Removing twice is fine.
	require.NoError(t, s.Remove(store.KeyOracle))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, store.NewMemoryStore())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := store.NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, s.Set("k", buf))
	buf[0] = 'z'
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLocalStore(t *testing.T) {
	s, err := store.NewLocalStore(filepath.Join(t.TempDir(), "sub", "orasim.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestLocalStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orasim.db")

	s, err := store.NewLocalStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(store.KeyHistory, []byte(`["ls"]`)))
	require.NoError(t, s.Close())

	s2, err := store.NewLocalStore(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(store.KeyHistory)
	require.NoError(t, err)
	assert.Equal(t, `["ls"]`, string(got))
}

func TestNamespaced(t *testing.T) {
	inner := store.NewMemoryStore()
	a := store.WithNamespace(inner, "a")
	b := store.WithNamespace(inner, "b")

	require.NoError(t, a.Set("fs", []byte("A")))
	require.NoError(t, b.Set("fs", []byte("B")))

	got, err := a.Get("fs")
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))

	raw, err := inner.Get("b/fs")
	require.NoError(t, err)
	assert.Equal(t, "B", string(raw))

	exerciseStore(t, a)
}

func TestOpen(t *testing.T) {
	s, err := store.Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)

	_, err = store.Open("bogus", "")
	assert.Error(t, err)
}
