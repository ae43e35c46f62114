// Package logging provides config-driven categorized logging for orasim.
// Loggers are backed by zap. Logging is controlled by debug_mode in the
// config file - when false, every logger is a silent no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config load
	CategoryConfig   Category = "config"   // Config reloads
	CategoryFS       Category = "fs"       // Virtual filesystem mutations
	CategoryDispatch Category = "dispatch" // Command routing
	CategoryModal    Category = "modal"    // Sub-shell enter/exit
	CategoryOracle   Category = "oracle"   // Simulated Oracle state changes
	CategoryStore    Category = "store"    // Blob persistence
	CategoryWeb      Category = "web"      // Browser transport
)

// Config mirrors the logging section of the orasim config file.
type Config struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	File       string          `yaml:"file" json:"file"`
}

// Logger wraps a named zap logger for one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	current Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds the process logger from cfg. Calling it again replaces
// the previous logger, which is how config reloads take effect.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	_ = base.Sync()
	current = cfg
	loggers = make(map[Category]*Logger)

	if !cfg.DebugMode {
		base = zap.NewNop()
		return nil
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.Sampling = nil
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !cfg.JSONFormat {
		zcfg.Encoding = "console"
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
	}

	l, err := zcfg.Build()
	if err != nil {
		base = zap.NewNop()
		return fmt.Errorf("failed to build logger: %w", err)
	}
	base = l
	base.Named(string(CategoryBoot)).Sugar().Infof("logging initialized (level=%s json=%v)", cfg.Level, cfg.JSONFormat)
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return current.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()

	if !current.DebugMode {
		return false
	}
	if current.Categories == nil {
		return true
	}
	enabled, exists := current.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries (call at shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// FS logs to the fs category
func FS(format string, args ...interface{}) {
	Get(CategoryFS).Info(format, args...)
}

// FSDebug logs debug to the fs category
func FSDebug(format string, args ...interface{}) {
	Get(CategoryFS).Debug(format, args...)
}

// Dispatch logs to the dispatch category
func Dispatch(format string, args ...interface{}) {
	Get(CategoryDispatch).Info(format, args...)
}

// DispatchDebug logs debug to the dispatch category
func DispatchDebug(format string, args ...interface{}) {
	Get(CategoryDispatch).Debug(format, args...)
}

// Modal logs to the modal category
func Modal(format string, args ...interface{}) {
	Get(CategoryModal).Info(format, args...)
}

// Oracle logs to the oracle category
func Oracle(format string, args ...interface{}) {
	Get(CategoryOracle).Info(format, args...)
}

// OracleDebug logs debug to the oracle category
func OracleDebug(format string, args ...interface{}) {
	Get(CategoryOracle).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Web logs to the web category
func Web(format string, args ...interface{}) {
	Get(CategoryWeb).Info(format, args...)
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures the duration of an operation
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
