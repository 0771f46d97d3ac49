package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Info("run started", "prompt_len", 42)

	data, err := os.ReadFile(filepath.Join(dir, "analysis.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry map[string]any
	line := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\nline: %s", err, line)
	}
	if entry["msg"] != "run started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "run started")
	}
	if entry["prompt_len"] != float64(42) {
		t.Errorf("prompt_len = %v, want 42", entry["prompt_len"])
	}
}

func TestChildLoggerAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	child := logger.WithRun("run-1").WithProvider("claude").WithLevel("2")
	child.Debug("stream event")

	// The parent logger must not inherit the child's attributes.
	if len(logger.attrs) != 0 {
		t.Errorf("parent logger gained %d attributes", len(logger.attrs))
	}

	data, err := os.ReadFile(filepath.Join(dir, "analysis.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["run_id"] != "run-1" || entry["provider"] != "claude" || entry["level"] != "2" {
		t.Errorf("unexpected attributes: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")

	data, err := os.ReadFile(filepath.Join(dir, "analysis.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), string(data))
	}
	if !strings.Contains(lines[0], "kept") {
		t.Errorf("surviving line should be the warning: %s", lines[0])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("goes nowhere")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on nop logger: %v", err)
	}

	// A nil receiver must not panic either; adapters treat the logger as optional.
	var nilLogger *Logger
	nilLogger.Error("still fine")
}
