// Package config loads the orasim configuration file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"orasim/internal/logging"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all orasim configuration.
type Config struct {
	// Simulated host
	Hostname    string `yaml:"hostname"`
	DefaultUser string `yaml:"default_user"`

	// Directory holding the blob database and logs
	Workspace string `yaml:"workspace"`

	Store   StoreConfig    `yaml:"store"`
	Web     WebConfig      `yaml:"web"`
	Oracle  OracleConfig   `yaml:"oracle"`
	Logging logging.Config `yaml:"logging"`
}

// StoreConfig selects the durable blob storage.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory
	Path   string `yaml:"path"`   // relative paths are resolved against Workspace
}

// WebConfig configures the browser terminal server.
type WebConfig struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"`
}

// OracleConfig holds the simulated installation layout.
type OracleConfig struct {
	SID          string `yaml:"sid"`
	ListenerPort int    `yaml:"listener_port"`
	OracleBase   string `yaml:"oracle_base"`
	OracleHome   string `yaml:"oracle_home"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:    "dbserver01",
		DefaultUser: "root",
		Workspace:   defaultWorkspace(),
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "orasim.db",
		},
		Web: WebConfig{
			Listen:  "127.0.0.1:8080",
			Metrics: true,
		},
		Oracle: OracleConfig{
			SID:          "ORCL",
			ListenerPort: 1521,
			OracleBase:   "/u01/app/oracle",
			OracleHome:   "/u01/app/oracle/product/19.0.0/dbhome_1",
		},
		Logging: logging.Config{
			Level: "info",
		},
	}
}

func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orasim"
	}
	return filepath.Join(home, ".orasim")
}

// DefaultPath returns the config file location inside the default workspace.
func DefaultPath() string {
	return filepath.Join(defaultWorkspace(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ORASIM_HOSTNAME"); v != "" {
		c.Hostname = v
	}
	if v := os.Getenv("ORASIM_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("ORASIM_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("ORASIM_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ORASIM_LISTEN"); v != "" {
		c.Web.Listen = v
	}
	if v := os.Getenv("ORASIM_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	if v := os.Getenv("ORASIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// StorePath returns the absolute blob database path.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Workspace, c.Store.Path)
}

// LogFile returns the log file path, defaulting to the workspace logs dir.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Workspace, "logs", "orasim.log")
}

// ValidDrivers lists the supported store drivers.
var ValidDrivers = []string{"sqlite", "memory"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Hostname) == "" || strings.ContainsAny(c.Hostname, " \t/") {
		return fmt.Errorf("%w: hostname %q", ErrInvalid, c.Hostname)
	}
	validDriver := false
	for _, d := range ValidDrivers {
		if c.Store.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("%w: store driver %q (valid: %v)", ErrInvalid, c.Store.Driver, ValidDrivers)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("%w: store path required for sqlite", ErrInvalid)
	}
	if _, _, err := net.SplitHostPort(c.Web.Listen); err != nil {
		return fmt.Errorf("%w: web listen address %q: %v", ErrInvalid, c.Web.Listen, err)
	}
	if c.Oracle.ListenerPort <= 0 || c.Oracle.ListenerPort > 65535 {
		return fmt.Errorf("%w: listener port %d", ErrInvalid, c.Oracle.ListenerPort)
	}
	if c.Oracle.SID == "" || len(c.Oracle.SID) > 8 {
		return fmt.Errorf("%w: oracle sid %q", ErrInvalid, c.Oracle.SID)
	}
	if !strings.HasPrefix(c.Oracle.OracleHome, c.Oracle.OracleBase+"/") {
		return fmt.Errorf("%w: oracle_home must live under oracle_base", ErrInvalid)
	}
	return nil
}
