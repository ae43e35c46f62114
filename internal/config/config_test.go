package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Hostname != "dbserver01" {
		t.Errorf("expected Hostname=dbserver01, got %s", cfg.Hostname)
	}
	if cfg.Oracle.SID != "ORCL" {
		t.Errorf("expected SID=ORCL, got %s", cfg.Oracle.SID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("ORASIM_HOSTNAME", "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Hostname = "lab42"
	cfg.Oracle.ListenerPort = 1522
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lab42", loaded.Hostname)
	assert.Equal(t, 1522, loaded.Oracle.ListenerPort)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hostname: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORASIM_HOSTNAME", "envhost")
	t.Setenv("ORASIM_STORE_DRIVER", "memory")
	t.Setenv("ORASIM_LISTEN", "0.0.0.0:9999")
	t.Setenv("ORASIM_DEBUG", "true")
	t.Setenv("ORASIM_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "envhost", cfg.Hostname)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:9999", cfg.Web.Listen)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty hostname", func(c *Config) { c.Hostname = "" }},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"bad listen", func(c *Config) { c.Web.Listen = "nohostport" }},
		{"bad port", func(c *Config) { c.Oracle.ListenerPort = 70000 }},
		{"long sid", func(c *Config) { c.Oracle.SID = "TOOLONGSID" }},
		{"home outside base", func(c *Config) { c.Oracle.OracleHome = "/opt/oracle" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/srv/orasim"
	assert.Equal(t, "/srv/orasim/orasim.db", cfg.StorePath())
	cfg.Store.Path = "/data/x.db"
	assert.Equal(t, "/data/x.db", cfg.StorePath())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Setenv("ORASIM_HOSTNAME", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Hostname = "reloaded"
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-got:
		assert.Equal(t, "reloaded", c.Hostname)
	case <-time.After(3 * time.Second):
		t.Fatal("config change not observed")
	}
	cancel()
	require.NoError(t, <-done)
}
