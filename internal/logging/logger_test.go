package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"debug", Config{Level: "debug"}},
		{"info", Config{Level: "info"}},
		{"warn", Config{Level: "warn"}},
		{"error", Config{Level: "error"}},
		{"default", Config{}},
		{"unknown", Config{Level: "verbose"}},
		{"stderr", Config{Output: "stderr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New(%+v) returned error: %v", tt.cfg, err)
			}
			if l == nil {
				t.Fatalf("New(%+v) returned nil logger", tt.cfg)
			}
		})
	}
}

func TestNewFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "impbridge.log")

	l, err := New(Config{Level: "info", Output: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	l.Info("hello")
	l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain the entry")
	}
}

func TestGlobalSetGlobal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := Global()
	defer SetGlobal(prev)

	SetGlobal(zap.New(core))
	Info("from global", zap.String("k", "v"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "from global" {
		t.Errorf("unexpected message: %s", entries[0].Message)
	}
}

func TestWith(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := Global()
	defer SetGlobal(prev)

	SetGlobal(zap.New(core))
	With(zap.String("component", "router")).Info("scoped")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["component"] != "router" {
		t.Errorf("expected component field, got %v", entries[0].ContextMap())
	}
}
