// Package stream normalizes the line-delimited output of external
// reviewer programs into a canonical set of progress events. Each provider
// speaks its own JSON dialect; the normalizer buffers partial lines across
// delivery chunks, maps provider-specific field names onto one event
// shape, and accumulates the provider's final-answer records for
// extraction.
package stream

// EventKind identifies a canonical stream event.
type EventKind string

// The four canonical event kinds. Every provider dialect is mapped onto
// these; anything else is dropped.
const (
	// KindTextDelta carries a preview of narration text from the reviewer.
	KindTextDelta EventKind = "text-delta"
	// KindToolCallStart marks the beginning of a tool invocation.
	KindToolCallStart EventKind = "tool-call-start"
	// KindToolCallEnd marks the completion of a tool invocation.
	KindToolCallEnd EventKind = "tool-call-end"
	// KindTurnSummary carries end-of-turn bookkeeping (final text preview).
	KindTurnSummary EventKind = "turn-summary"
)

// Event is one provider-agnostic progress event.
type Event struct {
	Kind EventKind `json:"kind"`

	// Text is a bounded preview of narration or summary text.
	Text string `json:"text,omitempty"`

	// ToolName names the tool being invoked, for tool-call events.
	ToolName string `json:"toolName,omitempty"`

	// CorrelationID pairs a tool-call-end with its start.
	CorrelationID string `json:"correlationId,omitempty"`

	// ArgumentPreview is a short human-readable rendering of the tool's
	// arguments, derived heuristically.
	ArgumentPreview string `json:"argumentPreview,omitempty"`
}

// Parsed is the result of parsing one protocol line. A line may yield any
// number of canonical events (a single assistant record can contain both
// narration and tool calls) and may carry a fragment of the provider's
// final answer.
type Parsed struct {
	Events []Event

	// Final is final-answer text carried by this record, if any. For
	// providers whose protocol wraps the true answer inside the stream's
	// own records, the adapter extracts from the concatenation of these
	// fragments instead of the raw output.
	Final string
}

// ParseLineFunc parses one complete line of a provider's protocol.
// A nil error with an empty Parsed means the record kind is unknown and
// should be dropped. A non-nil error means the line is malformed; the
// normalizer logs and skips it without aborting the stream.
type ParseLineFunc func(line []byte) (Parsed, error)
