package main

import (
	"fmt"

	"orasim/internal/commands"
	"orasim/internal/logging"
	"orasim/internal/shell"
	"orasim/internal/store"
)

// localSessionID names the single session of the terminal front-ends.
const localSessionID = "local"

// host is an opened store plus the session that lives in it.
type host struct {
	store   store.BlobStore
	session *shell.Session
}

// openHost opens the configured store, degrading to memory when the
// database cannot be opened, and boots the local session on it.
func openHost(out shell.Writer) (*host, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	bs, err := store.Open(cfg.Store.Driver, cfg.StorePath())
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("store unavailable, state will not persist: %v", err)
		bs = store.NewMemoryStore()
	}
	s := shell.New(shell.Options{
		ID:       localSessionID,
		Config:   cfg,
		Store:    bs,
		Registry: commands.NewRegistry(),
		Out:      out,
	})
	return &host{store: bs, session: s}, nil
}

func (h *host) Close() error {
	return h.store.Close()
}
