package stream

import (
	"fmt"
	"sort"
	"strings"
)

// textPreviewLimit bounds the narration preview carried on text-delta and
// turn-summary events.
const textPreviewLimit = 160

// argPreviewLimit bounds the rendered tool-argument preview.
const argPreviewLimit = 120

// Field name variants across provider dialects. A tool's identifying field
// is "id" in Claude's tool_use records, "tool_use_id" in its tool_result
// records, and "call_id" in Codex's exec records.
var (
	correlationFields = []string{"id", "tool_use_id", "call_id", "toolCallId"}
	toolNameFields    = []string{"name", "tool_name", "tool"}
	commandFields     = []string{"command", "cmd"}
	pathFields        = []string{"file_path", "path", "filePath", "pattern", "url", "query"}
)

// correlationID returns the first identifying field present on the record.
func correlationID(m map[string]any) string {
	for _, field := range correlationFields {
		if s, ok := m[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// toolName returns the first tool-name field present on the record.
func toolName(m map[string]any) string {
	for _, field := range toolNameFields {
		if s, ok := m[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// argumentPreview derives a short rendering of a tool's arguments. It
// prefers a command-like field, then a path-like field, then the first
// scalar field, then a short list of key names.
func argumentPreview(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}

	for _, field := range commandFields {
		if preview := scalarOrJoined(args[field]); preview != "" {
			return truncate(preview, argPreviewLimit)
		}
	}

	for _, field := range pathFields {
		if s, ok := args[field].(string); ok && s != "" {
			return truncate(s, argPreviewLimit)
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			if v != "" {
				return truncate(v, argPreviewLimit)
			}
		case float64, bool:
			return truncate(fmt.Sprintf("%s=%v", k, v), argPreviewLimit)
		}
	}

	if len(keys) > 4 {
		keys = keys[:4]
	}
	return truncate(strings.Join(keys, ", "), argPreviewLimit)
}

// scalarOrJoined renders a value that may be a string or a list of argv
// elements (Codex emits commands as arrays).
func scalarOrJoined(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// truncate bounds s to n runes, appending an ellipsis when cut. Newlines
// are flattened so previews stay single-line.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
