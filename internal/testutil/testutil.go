// Package testutil provides helpers shared by package tests, chiefly for
// standing in fake reviewer binaries as shell scripts.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes an executable /bin/sh script into a fresh temp dir
// and returns its path.
func WriteScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake script %s: %v", name, err)
	}
	return path
}

// WriteFixture writes content to a temp file and returns its path. Fake
// scripts cat fixture files instead of wrestling with shell quoting.
func WriteFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}
