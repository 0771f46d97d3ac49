// Package sandbox defines the allow/deny rules constraining which shell
// sub-commands an external reviewer process may execute. Reviewers need
// read-only file and VCS inspection to do their job; destructive commands
// are denied unless the operator explicitly opts into unrestricted mode.
package sandbox

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Policy is one provider-agnostic sandbox policy. Allow and Deny entries
// are glob patterns matched against the full command line of a requested
// sub-command. Unrestricted drops all denial rules.
type Policy struct {
	Allow        []string `yaml:"allow"`
	Deny         []string `yaml:"deny"`
	Unrestricted bool     `yaml:"unrestricted"`

	allowGlobs []glob.Glob
	denyGlobs  []glob.Glob
}

// Default returns the built-in policy: benign read-only file and VCS
// inspection is allowed, destructive commands (remove, move, permission
// change, VCS history mutation) are denied.
func Default() *Policy {
	p := &Policy{
		Allow: []string{
			"ls*", "cat *", "head *", "tail *", "wc *", "file *",
			"grep *", "rg *", "find *", "tree*", "pwd",
			"git status*", "git diff*", "git log*", "git show*",
			"git blame*", "git branch*",
		},
		Deny: []string{
			"rm *", "rmdir *", "mv *", "chmod *", "chown *",
			"git push*", "git reset*", "git rebase*", "git commit*",
			"git checkout*", "git clean*", "git filter-branch*",
		},
	}
	// The built-in patterns always compile.
	_ = p.Compile()
	return p
}

// Unrestricted returns a policy with all denial rules dropped.
func Unrestricted() *Policy {
	p := &Policy{Unrestricted: true}
	_ = p.Compile()
	return p
}

// Load reads a policy from a YAML file and compiles its patterns.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Compile builds the glob matchers. It must be called after mutating
// Allow or Deny.
func (p *Policy) Compile() error {
	p.allowGlobs = make([]glob.Glob, 0, len(p.Allow))
	for _, pattern := range p.Allow {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid allow pattern %q: %w", pattern, err)
		}
		p.allowGlobs = append(p.allowGlobs, g)
	}

	p.denyGlobs = make([]glob.Glob, 0, len(p.Deny))
	for _, pattern := range p.Deny {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
		p.denyGlobs = append(p.denyGlobs, g)
	}
	return nil
}

// Permits reports whether the policy allows the given sub-command.
// Denial rules win over allowance; an empty allow list permits anything
// not denied; unrestricted mode permits everything.
func (p *Policy) Permits(command string) bool {
	if p.Unrestricted {
		return true
	}

	command = strings.TrimSpace(command)
	for _, g := range p.denyGlobs {
		if g.Match(command) {
			return false
		}
	}

	if len(p.allowGlobs) == 0 {
		return true
	}
	for _, g := range p.allowGlobs {
		if g.Match(command) {
			return true
		}
	}
	return false
}
