package cmd

import (
	"testing"
)

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}
	if rootCmd.Use != "pair-review" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "pair-review")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"analyze", "probe", "policy"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestAnalyzeFlags(t *testing.T) {
	for _, name := range []string{"provider", "council", "json", "no-progress", "dir"} {
		if analyzeCmd.Flags().Lookup(name) == nil {
			t.Errorf("analyze is missing flag --%s", name)
		}
	}
}
