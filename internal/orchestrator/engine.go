// Package orchestrator coordinates a layered analysis run: three analysis
// levels execute in parallel against reviewer CLIs, then a synthesis pass
// reconciles their findings. Progress flows through the tracker to any
// subscribed observer; cancellation tears down every live subprocess.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/broadcast"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/config"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/errors"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/procreg"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/progress"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/provider"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/sandbox"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// Request describes one analysis run.
type Request struct {
	// RunID identifies the run; a fresh UUID is assigned when empty.
	RunID string
	// Dir is the repository under review.
	Dir string
	// Subject describes the change under review (a diff, a ref range, or
	// a prose description).
	Subject string
	// Provider names the reviewer to use; the configured default when
	// empty. Ignored in council mode.
	Provider string
	// Council runs every registered provider per level and consolidates
	// their findings.
	Council bool
}

// VoiceResult is one provider's contribution to a level.
type VoiceResult struct {
	Provider string            `json:"provider"`
	Outcome  *provider.Outcome `json:"outcome,omitempty"`
	Err      error             `json:"-"`
}

// LevelResult is the settled state of one analysis level. In council
// mode Outcome holds the consolidated findings and Voices the per-model
// contributions; otherwise Outcome is the single voice's result.
type LevelResult struct {
	Label   string                  `json:"label"`
	Outcome *provider.Outcome       `json:"outcome,omitempty"`
	Voices  map[string]*VoiceResult `json:"voices,omitempty"`
	Err     error                   `json:"-"`
}

// Result is the settled state of a whole run.
type Result struct {
	RunID     string                  `json:"runId"`
	Status    progress.Status         `json:"status"`
	Levels    map[string]*LevelResult `json:"levels"`
	Synthesis *provider.Outcome       `json:"synthesis,omitempty"`
}

// voice pairs a provider adapter with its configured model.
type voice struct {
	name    string
	adapter *provider.Adapter
	model   string
}

// Engine owns the run lifecycle. Safe for concurrent use; each Analyze
// call is an independent run.
type Engine struct {
	cfg      *config.Config
	registry *provider.Registry
	procs    *procreg.Registry
	tracker  *progress.Tracker
	hub      *broadcast.Hub
	logger   *logging.Logger

	policyMu sync.RWMutex
	policy   *sandbox.Policy
	watcher  *sandbox.Watcher
}

// NewEngine creates an engine. If the configuration names a sandbox
// policy file it is loaded now and hot-reloaded on change for the
// engine's lifetime.
func NewEngine(cfg *config.Config, registry *provider.Registry, procs *procreg.Registry,
	tracker *progress.Tracker, hub *broadcast.Hub, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		procs:    procs,
		tracker:  tracker,
		hub:      hub,
		logger:   logger,
	}

	switch {
	case cfg.Sandbox.Unrestricted:
		e.policy = sandbox.Unrestricted()
	case cfg.Sandbox.PolicyFile != "":
		policy, err := sandbox.Load(cfg.Sandbox.PolicyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading sandbox policy")
		}
		e.policy = policy
		watcher, err := sandbox.WatchPolicy(cfg.Sandbox.PolicyFile, e.setPolicy, logger)
		if err != nil {
			return nil, errors.Wrap(err, "watching sandbox policy")
		}
		e.watcher = watcher
	default:
		e.policy = sandbox.Default()
	}

	return e, nil
}

// Close releases the engine's background resources.
func (e *Engine) Close() error {
	if e.watcher != nil {
		return e.watcher.Close()
	}
	return nil
}

// Policy returns the currently effective sandbox policy.
func (e *Engine) Policy() *sandbox.Policy {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	return e.policy
}

func (e *Engine) setPolicy(p *sandbox.Policy) {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()
	e.policy = p
}

// Subscribe attaches an observer to a run's progress stream. The cancel
// function detaches it.
func (e *Engine) Subscribe(runID string) (<-chan any, func()) {
	return e.hub.Subscribe(runID)
}

// Snapshot returns the run's current progress state.
func (e *Engine) Snapshot(runID string) (progress.Message, bool) {
	return e.tracker.Snapshot(runID)
}

// Cancel terminates every live subprocess of the run and marks it
// cancelled. Cancellation is monotonic: the run never resumes, and late
// process exits are classified as cancelled rather than failed.
func (e *Engine) Cancel(runID string) error {
	if _, ok := e.tracker.Snapshot(runID); !ok {
		return errors.Wrapf(errors.ErrRunNotFound, "cancelling %s", runID)
	}

	e.procs.MarkCancelled(runID)
	killed := e.procs.KillAll(runID)
	e.logger.WithRun(runID).Info("run cancelled", "processes_signalled", killed)

	e.tracker.SetRunStatus(runID, progress.StatusCancelled, "run cancelled")
	return nil
}

// Analyze executes one full run: the three analysis levels in parallel,
// then the synthesis pass. The returned Result is populated even on
// partial failure; the error reports cancellation or the first level
// failure.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.WithRun(runID)

	voices, err := e.voicesFor(req)
	if err != nil {
		return nil, err
	}
	council := req.Council && len(voices) > 1

	e.tracker.StartRun(runID)
	logger.Info("analysis run started", "voices", len(voices), "council", council)

	result := &Result{
		RunID:  runID,
		Levels: make(map[string]*LevelResult, len(analysisLabels)),
	}
	for _, label := range analysisLabels {
		result.Levels[label] = &LevelResult{
			Label:  label,
			Voices: make(map[string]*VoiceResult, len(voices)),
		}
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, label := range analysisLabels {
		for _, v := range voices {
			wg.Add(1)
			go func(label string, v voice) {
				defer wg.Done()

				e.markRunning(runID, label, v, council)
				outcome, execErr := v.adapter.Execute(ctx,
					analysisPrompt(req.Subject, label),
					e.execOptions(runID, label, v, req.Dir))
				e.markSettled(runID, label, v, council, execErr)

				mu.Lock()
				defer mu.Unlock()
				lr := result.Levels[label]
				lr.Voices[v.name] = &VoiceResult{Provider: v.name, Outcome: outcome, Err: execErr}
				if !council {
					lr.Outcome = outcome
					lr.Err = execErr
				}
			}(label, v)
		}
	}
	wg.Wait()

	if e.procs.IsCancelled(runID) {
		e.tracker.SetRunStatus(runID, progress.StatusCancelled, "run cancelled")
		result.Status = progress.StatusCancelled
		return result, errors.NewCancellationError(runID)
	}

	if firstErr := firstLevelError(result); firstErr != nil {
		e.tracker.SetRunStatus(runID, progress.StatusFailed, errors.UserLabel(firstErr))
		result.Status = progress.StatusFailed
		return result, firstErr
	}

	if err := e.synthesize(ctx, req, runID, voices[0], council, result); err != nil {
		if errors.IsCancellation(err) {
			e.tracker.SetRunStatus(runID, progress.StatusCancelled, "run cancelled")
			result.Status = progress.StatusCancelled
		} else {
			e.tracker.SetRunStatus(runID, progress.StatusFailed, errors.UserLabel(err))
			result.Status = progress.StatusFailed
		}
		return result, err
	}

	e.tracker.SetRunStatus(runID, progress.StatusCompleted, "analysis complete")
	result.Status = progress.StatusCompleted
	logger.Info("analysis run completed")
	return result, nil
}

// synthesize runs the fourth slot: per-level consolidation steps in
// council mode, then the final reconciliation pass.
func (e *Engine) synthesize(ctx context.Context, req Request, runID string, v voice, council bool, result *Result) error {
	if !council {
		e.tracker.UpdateLevel(runID, progress.LabelOrchestration, progress.StatusRunning, "reconciling findings")
	}

	sections := make(map[string]string, len(analysisLabels))
	for _, label := range analysisLabels {
		stepLabel := "consolidation-L" + label
		lr := result.Levels[label]

		if !council {
			sections[label] = outcomeJSON(lr.Outcome)
			continue
		}

		e.tracker.UpdateStep(runID, stepLabel, progress.StatusRunning, "merging reviewer findings")
		perVoice := make(map[string]string, len(lr.Voices))
		for name, vr := range lr.Voices {
			perVoice[name] = outcomeJSON(vr.Outcome)
		}
		outcome, err := v.adapter.Execute(ctx,
			consolidationPrompt(label, perVoice),
			e.execOptions(runID, stepLabel, v, req.Dir))
		if err != nil {
			e.tracker.UpdateStep(runID, stepLabel, progress.StatusFailed, errors.UserLabel(err))
			return err
		}
		e.tracker.UpdateStep(runID, stepLabel, progress.StatusCompleted, "level consolidated")
		lr.Outcome = outcome
		sections[label] = outcomeJSON(outcome)
	}

	outcome, err := v.adapter.Execute(ctx,
		synthesisPrompt(req.Subject, sections),
		e.execOptions(runID, progress.LabelOrchestration, v, req.Dir))
	if err != nil {
		if !council {
			e.tracker.UpdateLevel(runID, progress.LabelOrchestration, progress.StatusFailed, errors.UserLabel(err))
		}
		return err
	}

	result.Synthesis = outcome
	if !council {
		e.tracker.UpdateLevel(runID, progress.LabelOrchestration, progress.StatusCompleted, "review finalized")
	}
	return nil
}

// voicesFor resolves the adapters participating in a run.
func (e *Engine) voicesFor(req Request) ([]voice, error) {
	names := []string{req.Provider}
	if req.Council {
		names = e.registry.Names()
	} else if req.Provider == "" {
		names = []string{e.cfg.Providers.Default}
	}

	voices := make([]voice, 0, len(names))
	for _, name := range names {
		caps, err := e.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		voices = append(voices, voice{
			name:    name,
			adapter: provider.NewAdapter(caps, e.procs, e.logger),
			model:   e.modelFor(name),
		})
	}
	return voices, nil
}

// modelFor returns the configured model tier for a provider.
func (e *Engine) modelFor(name string) string {
	switch name {
	case "claude":
		return e.cfg.Providers.Claude.Model
	case "codex":
		return e.cfg.Providers.Codex.Model
	}
	return ""
}

// execOptions assembles the adapter options for one execution, routing
// its stream events to the tracker under the given label.
func (e *Engine) execOptions(runID, label string, v voice, dir string) provider.Options {
	return provider.Options{
		Dir:        dir,
		Timeout:    e.cfg.Engine.Timeout(),
		LevelLabel: label,
		RunID:      runID,
		Policy:     e.Policy(),
		Model:      v.model,
		Verbose:    e.cfg.Engine.Verbose,
		OnStreamEvent: func(ev stream.Event) {
			e.tracker.StreamEvent(runID, label, ev)
		},
	}
}

// markRunning flips a level (or a voice within it) to running.
func (e *Engine) markRunning(runID, label string, v voice, council bool) {
	if council {
		e.tracker.UpdateVoice(runID, label, v.name, progress.StatusRunning, "analyzing")
		return
	}
	e.tracker.UpdateLevel(runID, label, progress.StatusRunning, "analyzing")
}

// markSettled records a level or voice outcome on the tracker.
func (e *Engine) markSettled(runID, label string, v voice, council bool, err error) {
	status := progress.StatusCompleted
	text := "level complete"
	switch {
	case errors.IsCancellation(err):
		status, text = progress.StatusCancelled, "cancelled"
	case err != nil:
		status, text = progress.StatusFailed, errors.UserLabel(err)
	}

	if council {
		e.tracker.UpdateVoice(runID, label, v.name, status, text)
		return
	}
	e.tracker.UpdateLevel(runID, label, status, text)
}

// firstLevelError returns the first non-cancellation failure among the
// analysis levels, in label order.
func firstLevelError(result *Result) error {
	for _, label := range analysisLabels {
		lr := result.Levels[label]
		if lr.Err != nil {
			return lr.Err
		}
		for _, vr := range lr.Voices {
			if vr.Err != nil {
				return vr.Err
			}
		}
	}
	return nil
}

// outcomeJSON renders an outcome for inclusion in a downstream prompt.
// Unparsed outcomes contribute their raw prose.
func outcomeJSON(o *provider.Outcome) string {
	if o == nil {
		return "{}"
	}
	if !o.Parsed {
		return o.Raw
	}
	data, err := json.Marshal(o.Data)
	if err != nil {
		return o.Raw
	}
	return string(data)
}
