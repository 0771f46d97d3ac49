// Package provider executes prompts against external AI-reviewer CLI
// programs. Each provider is described by a capability-set record selected
// from a name-keyed registry; the adapter owns the process lifecycle:
// sandboxed command construction, prompt delivery, stream normalization,
// timeout enforcement, exit classification, and response extraction with
// an LLM fallback pass.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/errors"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/extract"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/procreg"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/sandbox"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// DefaultTimeout is the wall-clock budget for one provider execution.
const DefaultTimeout = 300 * time.Second

// fallbackTimeout bounds the LLM extraction fallback pass.
const fallbackTimeout = 60 * time.Second

// probeTimeout bounds the availability probe.
const probeTimeout = 10 * time.Second

// stderrTailLimit bounds the diagnostic text attached to exit errors.
const stderrTailLimit = 1000

// BuildOptions parameterize command-line construction for one execution.
type BuildOptions struct {
	// Policy is the sandbox policy to render into provider flags.
	Policy *sandbox.Policy
	// Model selects the model tier, empty for the provider default.
	Model string
}

// Capabilities describes one external reviewer program. Providers are
// plain records, not types in a hierarchy; behavior differences live in
// the three function fields.
type Capabilities struct {
	// Name keys the registry ("claude", "codex").
	Name string
	// DisplayName is the human-readable provider name.
	DisplayName string
	// Command is the binary to invoke.
	Command string
	// InstallHint tells the user how to install a missing binary.
	InstallHint string

	// BuildArgs renders the argument list for one execution.
	BuildArgs func(opts BuildOptions) []string

	// PromptViaStdin selects stdin prompt delivery. This is the default:
	// the prompt is never interpolated into a shell string. Only when a
	// provider's interface mandates a flag-based prompt is the prompt
	// passed as a trailing argv element instead.
	PromptViaStdin bool

	// ParseLine parses one line of the provider's streaming protocol.
	ParseLine stream.ParseLineFunc

	// VersionArgs invoke the program's version flag for the probe.
	VersionArgs []string

	// FallbackModel is the lowest-cost tier, used only by the extraction
	// fallback pass.
	FallbackModel string
	// FallbackArgs renders a minimal tool-free invocation for the
	// extraction fallback. Nil disables the fallback for this provider.
	FallbackArgs func(model string) []string
}

// Registry maps provider names to capability records.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Capabilities
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(caps ...*Capabilities) *Registry {
	r := &Registry{providers: make(map[string]*Capabilities)}
	for _, c := range caps {
		r.Register(c)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in providers.
func DefaultRegistry() *Registry {
	return NewRegistry(NewClaude(""), NewCodex(""))
}

// Register adds or replaces a provider.
func (r *Registry) Register(caps *Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[caps.Name] = caps
}

// Lookup returns the capability record for a provider name.
func (r *Registry) Lookup(name string) (*Capabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownProvider, name)
	}
	return caps, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options configure one execution.
type Options struct {
	// Dir is the working directory (the repository under review).
	Dir string
	// Timeout is the wall-clock budget; DefaultTimeout when zero.
	Timeout time.Duration
	// LevelLabel tags log entries and stream events ("1".."3",
	// "orchestration", "consolidation-L2").
	LevelLabel string
	// RunID keys process registration and cancellation.
	RunID string
	// Policy is the sandbox policy; sandbox.Default() when nil.
	Policy *sandbox.Policy
	// Model overrides the provider's default model tier.
	Model string
	// OnStreamEvent receives canonical progress events; may be nil.
	OnStreamEvent func(stream.Event)
	// Verbose enables tracing of unknown stream records.
	Verbose bool
}

// Outcome is a settled execution. Parsed is false when neither the
// deterministic strategies nor the LLM fallback recovered JSON; Raw then
// still carries the reviewer's prose so the caller can show something.
type Outcome struct {
	Data   any
	Raw    string
	Parsed bool
}

// Adapter executes prompts against one provider.
type Adapter struct {
	caps   *Capabilities
	procs  *procreg.Registry
	logger *logging.Logger
}

// NewAdapter creates an adapter for one provider.
func NewAdapter(caps *Capabilities, procs *procreg.Registry, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Adapter{
		caps:   caps,
		procs:  procs,
		logger: logger.WithProvider(caps.Name),
	}
}

// Capabilities returns the adapter's capability record.
func (a *Adapter) Capabilities() *Capabilities {
	return a.caps
}

// Execute runs one prompt to completion. It returns an Outcome on
// success (possibly degraded to raw/unparsed), or one of the taxonomy
// errors: SpawnNotFoundError, TimeoutError, CancellationError,
// ProviderExitError.
func (a *Adapter) Execute(ctx context.Context, prompt string, opts Options) (*Outcome, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	policy := opts.Policy
	if policy == nil {
		policy = sandbox.Default()
	}
	logger := a.logger.WithRun(opts.RunID).WithLevel(opts.LevelLabel)

	args := a.caps.BuildArgs(BuildOptions{Policy: policy, Model: opts.Model})
	if !a.caps.PromptViaStdin {
		// Flag-based prompt delivery: the prompt is its own argv element,
		// never a shell-interpolated string.
		args = append(args, prompt)
	}

	cmd := exec.Command(a.caps.Command, args...)
	cmd.Dir = opts.Dir

	var stdin io.WriteCloser
	if a.caps.PromptViaStdin {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, errors.Wrap(err, "opening stdin pipe")
		}
		stdin = pipe
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening stderr pipe")
	}

	logger.Info("starting provider", "command", a.caps.Command, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, errors.NewSpawnNotFoundError(a.caps.Command, a.caps.InstallHint).WithCause(err)
		}
		return nil, errors.Wrapf(err, "starting %s", a.caps.Command)
	}

	// Register before reading any output so a cancellation issued
	// immediately after start still reaches the process.
	release := a.procs.Register(opts.RunID, cmd.Process)
	defer release()

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		_ = cmd.Process.Signal(syscall.SIGTERM)
	})
	// The timer is always cleared on settlement so it cannot fire after
	// completion.
	defer timer.Stop()

	settled := make(chan struct{})
	defer close(settled)
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)
		case <-settled:
		}
	}()

	if stdin != nil {
		go func() {
			defer stdin.Close()
			_, _ = io.WriteString(stdin, prompt)
		}()
	}

	var stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stderr, stderrPipe)
	}()

	norm := stream.NewNormalizer(a.caps.ParseLine, opts.OnStreamEvent,
		stream.WithLogger(logger), stream.WithVerbose(opts.Verbose))
	var raw bytes.Buffer

	// Chunks are processed strictly in arrival order by this single
	// reader; the full text is accumulated separately for extraction.
	_, copyErr := io.Copy(io.MultiWriter(&raw, norm), stdout)
	norm.Flush()

	wg.Wait()
	waitErr := cmd.Wait()

	if stderr.Len() > 0 {
		logger.Debug("provider stderr", "stderr", tail(stderr.String(), stderrTailLimit))
	}

	if waitErr != nil {
		return nil, a.classifyExit(waitErr, opts.RunID, timeout, timedOut.Load(), stderr.String(), logger)
	}
	if copyErr != nil {
		logger.Warn("reading provider output", "error", copyErr)
	}

	return a.extractOutcome(ctx, norm.FinalText(), raw.String(), opts, logger), nil
}

// classifyExit maps a non-nil Wait error onto the failure taxonomy.
func (a *Adapter) classifyExit(waitErr error, runID string, timeout time.Duration, timedOut bool, stderr string, logger *logging.Logger) error {
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return errors.Wrapf(waitErr, "waiting for %s", a.caps.Command)
	}

	if a.procs.IsCancelled(runID) && exitWasTermination(exitErr) {
		// User-initiated stoppage, not a crash.
		logger.Info("provider terminated by cancellation")
		return errors.NewCancellationError(runID)
	}

	// The timeout timer fired and the process died to our SIGTERM.
	if timedOut && exitWasTermination(exitErr) {
		logger.Warn("provider timed out", "timeout", timeout)
		return errors.NewTimeoutError("provider execution", timeout).WithProvider(a.caps.Name)
	}

	code := exitErr.ExitCode()
	logger.Error("provider exited non-zero", "exit_code", code)
	return errors.NewProviderExitError(a.caps.Name, code, tail(stderr, stderrTailLimit))
}

// extractOutcome recovers the structured result, falling back once to an
// LLM extraction pass, and degrading to raw output rather than failing.
func (a *Adapter) extractOutcome(ctx context.Context, finalText, rawText string, opts Options, logger *logging.Logger) *Outcome {
	// For providers whose protocol wraps the true answer inside stream
	// records, extract from the concatenated final-answer fragments.
	source := finalText
	if strings.TrimSpace(source) == "" {
		source = rawText
	}

	data, err := extract.Extract(source)
	if err == nil {
		return &Outcome{Data: data, Raw: source, Parsed: true}
	}
	logger.Warn("deterministic extraction failed, trying LLM fallback", "error", err)

	if a.caps.FallbackArgs != nil {
		if data, fbErr := a.fallbackExtract(ctx, source, opts); fbErr == nil {
			return &Outcome{Data: data, Raw: source, Parsed: true}
		} else {
			logger.Warn("LLM extraction fallback failed", "error", fbErr)
		}
	}

	// Degrade, don't reject: the caller can still show the raw prose.
	return &Outcome{Raw: source, Parsed: false}
}

// fallbackExtract re-invokes the provider with its lowest-cost model and
// a minimal tool-free configuration, prompted only to restate the prior
// output as JSON.
func (a *Adapter) fallbackExtract(ctx context.Context, rawOutput string, opts Options) (any, error) {
	prompt := "Restate the following code-review output as a single JSON object. " +
		"Respond with only the JSON object and nothing else.\n\n" + rawOutput

	args := a.caps.FallbackArgs(a.caps.FallbackModel)
	cmd := exec.Command(a.caps.Command, args...)
	cmd.Dir = opts.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// The fallback subprocess belongs to the same run: cancellation must
	// reach it too.
	release := a.procs.Register(opts.RunID, cmd.Process)
	defer release()

	timer := time.AfterFunc(fallbackTimeout, func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	})
	defer timer.Stop()

	go func() {
		defer stdin.Close()
		_, _ = io.WriteString(stdin, prompt)
	}()

	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	if a.procs.IsCancelled(opts.RunID) {
		return nil, errors.NewCancellationError(opts.RunID)
	}

	return extract.Extract(out.String())
}

// Probe checks whether the provider binary is available by invoking its
// version flag. It resolves to a boolean and never returns an error; it
// is used for capability discovery before a run is offered to a user.
func (a *Adapter) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.caps.Command, a.caps.VersionArgs...)
	if err := cmd.Run(); err != nil {
		a.logger.Debug("provider probe failed", "error", err)
		return false
	}
	return true
}

// exitWasTermination reports whether the exit corresponds to a
// termination signal (or its shell-style exit-code equivalents).
func exitWasTermination(exitErr *exec.ExitError) bool {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		switch ws.Signal() {
		case syscall.SIGTERM, syscall.SIGINT, syscall.SIGKILL:
			return true
		}
	}
	switch exitErr.ExitCode() {
	case 130, 137, 143: // 128+SIGINT, 128+SIGKILL, 128+SIGTERM
		return true
	}
	return false
}

// tail returns the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
