package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLogging(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = Initialize(Config{})
	})
}

func TestDisabledByDefault(t *testing.T) {
	resetLogging(t)
	if err := Initialize(Config{}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if IsDebugMode() {
		t.Error("debug mode should be off")
	}
	l := Get(CategoryFS)
	if l.sugar != nil {
		t.Error("expected no-op logger when debug mode is off")
	}
	// Must not panic on a no-op logger.
	l.Info("nothing %d", 1)
	l.With("k", "v").Error("still nothing")
}

func TestCategoryFilter(t *testing.T) {
	resetLogging(t)
	logPath := filepath.Join(t.TempDir(), "logs", "orasim.log")
	cfg := Config{
		DebugMode:  true,
		Level:      "debug",
		File:       logPath,
		Categories: map[string]bool{"web": false},
	}
	if err := Initialize(cfg); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryWeb) {
		t.Error("web category should be disabled")
	}
	if !IsCategoryEnabled(CategoryOracle) {
		t.Error("unlisted categories default to enabled")
	}

	Oracle("database %s started", "ORCL")
	Web("this line is filtered")
	Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "database ORCL started") {
		t.Errorf("expected oracle line in log, got:\n%s", out)
	}
	if strings.Contains(out, "this line is filtered") {
		t.Errorf("disabled category leaked into log:\n%s", out)
	}
}

func TestLevelParsing(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"bogus":   "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestTimerStop(t *testing.T) {
	timer := StartTimer(CategoryStore, "op")
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}
