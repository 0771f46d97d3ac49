package provider

import (
	"github.com/in-the-loop-labs/pair-review-sub008/internal/sandbox"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// NewCodex returns the capability record for the Codex CLI. command
// overrides the binary path; empty means "codex" from PATH.
func NewCodex(command string) *Capabilities {
	if command == "" {
		command = "codex"
	}
	return &Capabilities{
		Name:           "codex",
		DisplayName:    "Codex",
		Command:        command,
		InstallHint:    "install it with: npm install -g @openai/codex",
		PromptViaStdin: true,
		ParseLine:      stream.ParseCodexLine,
		VersionArgs:    []string{"--version"},
		FallbackModel:  "gpt-4.1-mini",
		BuildArgs:      codexArgs,
		FallbackArgs:   codexFallbackArgs,
	}
}

func codexArgs(opts BuildOptions) []string {
	args := []string{"exec", "--json", "--skip-git-repo-check"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, codexSandboxArgs(opts.Policy)...)
	// "-" reads the prompt from stdin.
	return append(args, "-")
}

// codexSandboxArgs renders a policy into Codex's coarser sandbox modes.
// Codex has no per-command rule syntax, so any restricted policy maps to
// its read-only sandbox.
func codexSandboxArgs(policy *sandbox.Policy) []string {
	if policy != nil && policy.Unrestricted {
		return []string{"--dangerously-bypass-approvals-and-sandbox"}
	}
	return []string{"--sandbox", "read-only"}
}

func codexFallbackArgs(model string) []string {
	return []string{"exec", "--skip-git-repo-check", "--sandbox", "read-only", "--model", model, "-"}
}
