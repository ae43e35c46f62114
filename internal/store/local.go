package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"orasim/internal/logging"
)

// LocalStore persists blobs in a single SQLite table.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the blob table.
func (s *LocalStore) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create blobs table: %w", err)
	}
	return nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *LocalStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRow("SELECT value FROM blobs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to read blob %s: %v", key, err)
		return nil, err
	}
	logging.StoreDebug("Read blob %s (%d bytes)", key, len(value))
	return value, nil
}

// Set upserts the blob under key.
func (s *LocalStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to write blob %s: %v", key, err)
		return err
	}
	logging.StoreDebug("Wrote blob %s (%d bytes)", key, len(value))
	return nil
}

// Remove deletes the blob under key. Removing a missing key is not an error.
func (s *LocalStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM blobs WHERE key = ?", key); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to remove blob %s: %v", key, err)
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	logging.Store("Closing LocalStore database connection")
	return s.db.Close()
}
