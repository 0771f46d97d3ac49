package provider

import (
	"strings"
	"testing"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/sandbox"
)

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestClaudeArgsRestrictedPolicy(t *testing.T) {
	args := claudeArgs(BuildOptions{Policy: sandbox.Default(), Model: "claude-sonnet-4-5"})

	for _, want := range []string{"--print", "--output-format", "stream-json", "--model", "claude-sonnet-4-5"} {
		if !contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if contains(args, "--dangerously-skip-permissions") {
		t.Error("restricted policy must not skip permissions")
	}
	if !contains(args, "--allowedTools") || !contains(args, "--disallowedTools") {
		t.Errorf("policy not rendered into tool flags: %v", args)
	}
}

func TestClaudeArgsUnrestricted(t *testing.T) {
	args := claudeArgs(BuildOptions{Policy: sandbox.Unrestricted()})

	if !contains(args, "--dangerously-skip-permissions") {
		t.Errorf("unrestricted policy missing bypass flag: %v", args)
	}
	if contains(args, "--allowedTools") {
		t.Error("unrestricted policy must not carry tool rules")
	}
}

func TestClaudeToolRules(t *testing.T) {
	rules := claudeToolRules([]string{"git diff*", "ls*", "cat *"})

	want := "Bash(git diff:*),Bash(ls:*),Bash(cat:*)"
	if rules != want {
		t.Errorf("rules = %q, want %q", rules, want)
	}
}

func TestCodexArgsSandboxModes(t *testing.T) {
	restricted := codexArgs(BuildOptions{Policy: sandbox.Default()})
	if !contains(restricted, "--sandbox") || !contains(restricted, "read-only") {
		t.Errorf("restricted policy not mapped to read-only sandbox: %v", restricted)
	}
	if restricted[len(restricted)-1] != "-" {
		t.Errorf("prompt must come from stdin, args: %v", restricted)
	}

	open := codexArgs(BuildOptions{Policy: sandbox.Unrestricted()})
	if !contains(open, "--dangerously-bypass-approvals-and-sandbox") {
		t.Errorf("unrestricted policy missing bypass flag: %v", open)
	}
	if contains(open, "read-only") {
		t.Error("unrestricted policy must not force read-only sandbox")
	}
}

func TestCodexArgsModel(t *testing.T) {
	args := codexArgs(BuildOptions{Policy: sandbox.Default(), Model: "gpt-5"})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--model gpt-5") {
		t.Errorf("model flag not rendered: %v", args)
	}
}
