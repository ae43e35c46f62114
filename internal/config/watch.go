package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"orasim/internal/logging"
)

// Watch reloads the config file whenever it changes and hands the new value
// to onChange. The parent directory is watched so editors that replace the
// file atomically are still observed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Get(logging.CategoryConfig).Info("watching config file %s", path)

	const debounce = 250 * time.Millisecond
	target := filepath.Clean(path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Reload once the burst of events settles.
			timer.Reset(debounce)
		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				logging.Get(logging.CategoryConfig).Warn("config reload failed: %v", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				logging.Get(logging.CategoryConfig).Warn("ignoring invalid config: %v", err)
				continue
			}
			logging.Get(logging.CategoryConfig).Info("config reloaded from %s", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryConfig).Warn("config watcher error: %v", err)
		}
	}
}
