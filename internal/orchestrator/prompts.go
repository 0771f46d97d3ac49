package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// Level labels for the three analysis passes. Slot 4 is the synthesis
// pass, labeled "orchestration" with "consolidation-L<n>" sub-steps.
var analysisLabels = []string{"1", "2", "3"}

// levelFocus describes the lens each analysis level applies to the change.
var levelFocus = map[string]string{
	"1": "line-level correctness: bugs, off-by-one errors, nil handling, error paths, resource leaks, and concurrency hazards in the changed lines themselves",
	"2": "module-level design: API shape, naming, cohesion, duplicated logic, missing tests, and how the change fits the conventions of the surrounding package",
	"3": "system-level impact: cross-cutting behavior changes, backward compatibility, security and performance implications, and interactions with other components",
}

// analysisPrompt builds the prompt for one analysis level.
func analysisPrompt(subject, label string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing a code change. Focus exclusively on %s.\n\n", levelFocus[label])
	fmt.Fprintf(&b, "The change under review:\n%s\n\n", subject)
	fmt.Fprintf(&b, "Inspect the repository in the working directory as needed. "+
		"Respond with a single JSON object of the form "+
		`{"level": %s, "summary": "...", "suggestions": [{"title": "...", "body": "...", "file": "...", "severity": "info|minor|major"}]}`+
		" and no other text.\n", label)
	return b.String()
}

// consolidationPrompt merges the per-voice findings of one level into a
// single set, used in council mode.
func consolidationPrompt(label string, voices map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Multiple reviewers analyzed the same code change independently. "+
		"Merge their level-%s findings: deduplicate overlapping suggestions, keep disagreements as separate entries, and drop anything one reviewer retracted.\n\n", label)

	ids := make([]string, 0, len(voices))
	for id := range voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "Findings from %s:\n%s\n\n", id, voices[id])
	}

	fmt.Fprintf(&b, "Respond with a single JSON object of the form "+
		`{"level": %s, "summary": "...", "suggestions": [...]}`+
		" and no other text.\n", label)
	return b.String()
}

// synthesisPrompt reconciles the consolidated levels into the final
// review. sections maps level label to that level's JSON findings.
func synthesisPrompt(subject string, sections map[string]string) string {
	var b strings.Builder
	b.WriteString("You are finalizing a layered code review. Three analysis passes ran over the same change, each with a different focus. " +
		"Reconcile them into one review: order suggestions by severity, merge duplicates that surfaced at multiple levels, and write a short overall verdict.\n\n")
	fmt.Fprintf(&b, "The change under review:\n%s\n\n", subject)

	for _, label := range analysisLabels {
		if section, ok := sections[label]; ok {
			fmt.Fprintf(&b, "Level %s findings (%s):\n%s\n\n", label, firstClause(levelFocus[label]), section)
		}
	}

	b.WriteString("Respond with a single JSON object of the form " +
		`{"verdict": "...", "summary": "...", "suggestions": [...]}` +
		" and no other text.\n")
	return b.String()
}

// firstClause trims a focus description to its leading clause for use in
// a section heading.
func firstClause(s string) string {
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return s
}
