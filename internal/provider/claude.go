package provider

import (
	"strings"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/sandbox"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// NewClaude returns the capability record for the Claude CLI. command
// overrides the binary path; empty means "claude" from PATH.
func NewClaude(command string) *Capabilities {
	if command == "" {
		command = "claude"
	}
	return &Capabilities{
		Name:           "claude",
		DisplayName:    "Claude",
		Command:        command,
		InstallHint:    "install it with: npm install -g @anthropic-ai/claude-code",
		PromptViaStdin: true,
		ParseLine:      stream.ParseClaudeLine,
		VersionArgs:    []string{"--version"},
		FallbackModel:  "claude-3-5-haiku-latest",
		BuildArgs:      claudeArgs,
		FallbackArgs:   claudeFallbackArgs,
	}
}

func claudeArgs(opts BuildOptions) []string {
	args := []string{"--print", "--verbose", "--output-format", "stream-json"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, claudeSandboxArgs(opts.Policy)...)
	return args
}

// claudeSandboxArgs renders a policy into Claude's tool permission flags.
func claudeSandboxArgs(policy *sandbox.Policy) []string {
	if policy == nil {
		policy = sandbox.Default()
	}
	if policy.Unrestricted {
		return []string{"--dangerously-skip-permissions"}
	}

	var args []string
	if rules := claudeToolRules(policy.Allow); rules != "" {
		args = append(args, "--allowedTools", rules)
	}
	if rules := claudeToolRules(policy.Deny); rules != "" {
		args = append(args, "--disallowedTools", rules)
	}
	return args
}

// claudeToolRules converts command glob patterns into Claude's
// Bash(prefix:*) permission rule syntax.
func claudeToolRules(patterns []string) string {
	rules := make([]string, 0, len(patterns))
	for _, p := range patterns {
		prefix := strings.TrimSpace(strings.TrimSuffix(p, "*"))
		if prefix == "" {
			continue
		}
		rules = append(rules, "Bash("+prefix+":*)")
	}
	return strings.Join(rules, ",")
}

// claudeFallbackArgs is the minimal tool-free invocation used only to
// restate an unparseable response as JSON.
func claudeFallbackArgs(model string) []string {
	return []string{"--print", "--model", model, "--disallowedTools", "*"}
}
