package stream

import (
	"bytes"
	"strings"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
)

// Normalizer converts a provider's line-delimited protocol into canonical
// events. It implements io.Writer so a process's stdout can be copied
// straight into it; partial lines are buffered across writes and only
// complete lines are parsed.
//
// A Normalizer is driven by a single reader goroutine and is not safe for
// concurrent writes.
type Normalizer struct {
	parse   ParseLineFunc
	onEvent func(Event)
	logger  *logging.Logger
	verbose bool

	buf   bytes.Buffer
	final strings.Builder
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger attaches a logger for skipped-line diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

// WithVerbose enables tracing of records that map to no canonical event.
// Without it, unknown record kinds are silently dropped.
func WithVerbose(verbose bool) Option {
	return func(n *Normalizer) { n.verbose = verbose }
}

// NewNormalizer creates a Normalizer for one provider dialect. onEvent may
// be nil when the caller only needs final-answer accumulation.
func NewNormalizer(parse ParseLineFunc, onEvent func(Event), opts ...Option) *Normalizer {
	n := &Normalizer{
		parse:   parse,
		onEvent: onEvent,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Write accepts a chunk of provider output. Complete lines are parsed
// immediately; a trailing partial line waits for the next write.
func (n *Normalizer) Write(p []byte) (int, error) {
	n.buf.Write(p)

	for {
		data := n.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		n.buf.Next(idx + 1)
		n.processLine(line)
	}

	return len(p), nil
}

// Flush processes any trailing partial line. Call once at end of stream.
func (n *Normalizer) Flush() {
	if n.buf.Len() == 0 {
		return
	}
	line := append([]byte(nil), n.buf.Bytes()...)
	n.buf.Reset()
	n.processLine(line)
}

// FinalText returns the concatenated final-answer fragments seen so far.
// Empty when the provider's protocol does not wrap its answer in stream
// records.
func (n *Normalizer) FinalText() string {
	return n.final.String()
}

// processLine parses one complete line. A line that fails to parse is
// skipped and logged, never aborting the stream.
func (n *Normalizer) processLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	parsed, err := n.parse(line)
	if err != nil {
		n.logger.Debug("skipping unparseable stream line",
			"error", err,
			"line", truncate(string(line), 200))
		return
	}

	if parsed.Final != "" {
		n.final.WriteString(parsed.Final)
	}

	if len(parsed.Events) == 0 {
		if n.verbose && parsed.Final == "" {
			n.logger.Debug("dropping unknown stream record",
				"line", truncate(string(line), 200))
		}
		return
	}

	if n.onEvent == nil {
		return
	}
	for _, ev := range parsed.Events {
		n.onEvent(ev)
	}
}
