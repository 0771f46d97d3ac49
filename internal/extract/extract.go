// Package extract recovers a structured JSON payload from the free-form
// text an AI reviewer prints. Reviewer output routinely wraps the intended
// JSON object in prose, markdown fencing, or stream noise; this package
// applies a cascade of deterministic strategies and returns the first
// object or array any of them recovers.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/errors"
)

// PreviewLimit bounds the diagnostic preview attached to extraction
// failures.
const PreviewLimit = 300

// maxForwardScanStarts caps how many '{' candidates the forward-scan
// strategy will try, so pathological inputs stay cheap.
const maxForwardScanStarts = 20

// DefaultAnchorKeys are top-level key names that mark the expected review
// payload. The anchored-key strategy uses them to find the true start of
// the object when '{' characters appear earlier inside prose (for example
// in quoted code snippets).
var DefaultAnchorKeys = []string{
	"level",
	"suggestions",
	"findings",
	"summary",
	"issues",
	"verdict",
}

// Extractor recovers JSON payloads from noisy text. The zero value is not
// usable; call New.
type Extractor struct {
	anchorKeys []string
}

// New returns an Extractor using the default anchor keys.
func New() *Extractor {
	return &Extractor{anchorKeys: DefaultAnchorKeys}
}

// NewWithAnchors returns an Extractor that anchors on the given top-level
// key names instead of the defaults.
func NewWithAnchors(keys []string) *Extractor {
	if len(keys) == 0 {
		return New()
	}
	return &Extractor{anchorKeys: keys}
}

// Extract recovers one JSON-shaped value (object or array) from text.
// Strategies are tried in order; the first that yields a non-null
// object/array wins. On total failure it returns an *errors.ExtractionError
// carrying a bounded preview of the input. It never panics.
func (e *Extractor) Extract(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.NewExtractionError("")
	}

	strategies := []func(string) (any, bool){
		e.fromFencedBlock,
		e.fromWholeText,
		e.fromFirstToLastBrace,
		e.fromAnchorKey,
		e.fromForwardScan,
		e.fromBalancedBraces,
	}

	for _, strategy := range strategies {
		if value, ok := strategy(trimmed); ok {
			return value, nil
		}
	}

	return nil, errors.NewExtractionError(Preview(trimmed))
}

// Extract is a convenience wrapper using the default anchor keys.
func Extract(text string) (any, error) {
	return New().Extract(text)
}

// Preview returns a bounded-length prefix of text for diagnostics.
func Preview(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= PreviewLimit {
		return text
	}
	return text[:PreviewLimit] + "..."
}

// parseValue parses candidate as JSON and reports success only for
// non-null objects and arrays. Scalars and null are rejected: a bare
// number inside prose is never the review payload.
func parseValue(candidate string) (any, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, false
	}

	var value any
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, false
	}

	switch value.(type) {
	case map[string]any, []any:
		return value, true
	default:
		return nil, false
	}
}

// fromFencedBlock locates a markdown code fence, preferring one labeled
// json, and parses its interior only if it is brace-delimited.
func (e *Extractor) fromFencedBlock(text string) (any, bool) {
	interior, ok := fencedInterior(text, "```json")
	if !ok {
		interior, ok = fencedInterior(text, "```")
	}
	if !ok {
		return nil, false
	}

	interior = strings.TrimSpace(interior)
	if !strings.HasPrefix(interior, "{") || !strings.HasSuffix(interior, "}") {
		return nil, false
	}
	return parseValue(interior)
}

// fencedInterior returns the text between the first fence opened with the
// given marker and its closing fence.
func fencedInterior(text, marker string) (string, bool) {
	start := strings.Index(text, marker)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(marker):]

	// Skip the remainder of the opening fence line (e.g. ```json\n).
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// fromWholeText parses the entire trimmed input as-is.
func (e *Extractor) fromWholeText(text string) (any, bool) {
	return parseValue(text)
}

// fromFirstToLastBrace parses the substring from the first '{' to the
// last '}'.
func (e *Extractor) fromFirstToLastBrace(text string) (any, bool) {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return nil, false
	}
	return parseValue(text[first : last+1])
}

// fromAnchorKey searches for a known top-level key name to locate the true
// start of the payload, defeating false matches from '{' characters inside
// prose. The object start is the nearest '{' preceding the anchor; the
// candidate runs from there to the last '}'.
func (e *Extractor) fromAnchorKey(text string) (any, bool) {
	last := strings.LastIndexByte(text, '}')
	if last < 0 {
		return nil, false
	}

	for _, key := range e.anchorKeys {
		marker := `"` + key + `"`
		anchor := strings.Index(text, marker)
		if anchor < 0 {
			continue
		}

		start := strings.LastIndexByte(text[:anchor], '{')
		if start < 0 || last <= start {
			continue
		}

		if value, ok := parseValue(text[start : last+1]); ok {
			return value, true
		}
	}
	return nil, false
}

// fromForwardScan tries each '{' occurrence as a candidate start, paired
// with the last '}', stopping at the first successful parse. The number of
// candidate starts is bounded to cap cost on brace-heavy prose.
func (e *Extractor) fromForwardScan(text string) (any, bool) {
	last := strings.LastIndexByte(text, '}')
	if last < 0 {
		return nil, false
	}

	offset := 0
	for i := 0; i < maxForwardScanStarts; i++ {
		start := strings.IndexByte(text[offset:], '{')
		if start < 0 {
			return nil, false
		}
		start += offset

		if start < last {
			if value, ok := parseValue(text[start : last+1]); ok {
				return value, true
			}
		}
		offset = start + 1
	}
	return nil, false
}

// fromBalancedBraces walks the text from the first '{', tracking nesting
// depth while treating characters inside quoted strings (and their
// backslash escapes) as inert, to find the exact end of the first
// top-level object.
func (e *Extractor) fromBalancedBraces(text string) (any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// String contents are inert, including braces.
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return parseValue(text[start : i+1])
			}
		}
	}
	return nil, false
}
