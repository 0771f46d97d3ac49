package progress

import (
	"strconv"
	"sync"
	"time"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/broadcast"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// Config holds the tuning constants for stream-event admission. Both
// windows were chosen empirically; they are configuration, not invariants.
type Config struct {
	// Throttle is the minimum spacing between stream-event broadcasts on
	// one slot. Events inside the window update stored state without
	// broadcasting; the next admitted broadcast carries the latest state.
	Throttle time.Duration

	// Suppress is how long a text-delta on a slot silences tool-call
	// events on that slot. Tool-call chatter is hidden while the reviewer
	// is actively narrating.
	Suppress time.Duration
}

// DefaultConfig returns the empirically chosen admission windows.
func DefaultConfig() Config {
	return Config{
		Throttle: 300 * time.Millisecond,
		Suppress: 2000 * time.Millisecond,
	}
}

// gate holds per-slot admission state for stream events.
type gate struct {
	lastBroadcast time.Time
	lastTextDelta time.Time
}

// runState is the mutable record behind one AnalysisRun.
type runState struct {
	status   Status
	progress string
	levels   map[int]*LevelStatus
	gates    map[int]*gate
}

// Tracker is the progress aggregator. All updates are applied under one
// mutex and must tolerate arbitrary interleaving across adapters; within
// one adapter, events arrive in output order. Updates referencing an
// unknown run or an out-of-vocabulary label are silently ignored so
// malformed input can never become an unbounded growth vector.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	runs   map[string]*runState
	hub    *broadcast.Hub
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Tests use this to drive the
// admission gates deterministically.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker that publishes snapshots to hub.
func NewTracker(cfg Config, hub *broadcast.Hub, logger *logging.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	t := &Tracker{
		cfg:    cfg,
		runs:   make(map[string]*runState),
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartRun creates the run's status record with all four slots pending
// and broadcasts the initial snapshot. Starting an existing run is a
// no-op: a cancelled run never returns to running.
func (t *Tracker) StartRun(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.runs[runID]; exists {
		return
	}

	r := &runState{
		status:   StatusRunning,
		progress: "starting analysis",
		levels:   make(map[int]*LevelStatus, MaxSlot),
		gates:    make(map[int]*gate, MaxSlot),
	}
	for slot := MinSlot; slot <= MaxSlot; slot++ {
		r.levels[slot] = &LevelStatus{Status: StatusPending}
		r.gates[slot] = &gate{}
	}
	t.runs[runID] = r

	t.publishLocked(runID, r)
}

// SetRunStatus updates the run's headline status and progress text.
// Terminal states are sticky: once the run leaves running it never
// transitions again.
func (t *Tracker) SetRunStatus(runID string, status Status, progress string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.runs[runID]
	if !ok || r.status.Terminal() {
		return
	}

	r.status = status
	if progress != "" {
		r.progress = progress
	}
	t.publishLocked(runID, r)
}

// UpdateLevel applies a simple status+progress update to a slot. The
// stale stream event and voice mirror are cleared so observers don't see
// leftovers from an earlier phase of the slot.
func (t *Tracker) UpdateLevel(runID, label string, status Status, progress string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, lvl, _, ok := t.lookupLocked(runID, label)
	if !ok {
		return
	}

	lvl.Status = status
	lvl.Progress = progress
	lvl.StreamEvent = nil
	lvl.VoiceID = ""

	t.publishLocked(runID, r)
}

// UpdateVoice applies a per-voice update in council mode. Only the named
// voice's entry changes; the slot's single-value mirror fields track the
// most recently updated voice for backward-compatible consumers.
func (t *Tracker) UpdateVoice(runID, label, voiceID string, status Status, progress string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, lvl, _, ok := t.lookupLocked(runID, label)
	if !ok || voiceID == "" {
		return
	}

	if lvl.Voices == nil {
		lvl.Voices = make(map[string]*VoiceStatus)
	}
	lvl.Voices[voiceID] = &VoiceStatus{Status: status, Progress: progress}
	lvl.VoiceID = voiceID
	lvl.Progress = progress

	t.publishLocked(runID, r)
}

// UpdateStep applies a consolidation sub-phase update on the synthesis
// slot. The label must be a consolidation label ("consolidation-L2");
// anything else is ignored.
func (t *Tracker) UpdateStep(runID, label string, status Status, progress string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, lvl, step, ok := t.lookupLocked(runID, label)
	if !ok || step == "" {
		return
	}

	if lvl.Steps == nil {
		lvl.Steps = make(map[string]*StepStatus)
	}
	lvl.Steps[step] = &StepStatus{Status: status, Progress: progress}
	lvl.ConsolidationStep = step
	lvl.Progress = progress

	t.publishLocked(runID, r)
}

// StreamEvent records a canonical stream event on a slot, subject to the
// two admission gates. The stored event is always the latest one accepted;
// only its broadcast visibility is gated.
func (t *Tracker) StreamEvent(runID, label string, ev stream.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, lvl, _, ok := t.lookupLocked(runID, label)
	if !ok {
		return
	}

	slot, _, _ := ParseLabel(label)
	g := r.gates[slot]
	now := t.now()

	// Priority gate: tool-call chatter is suppressed while the reviewer
	// is narrating on this slot.
	isToolCall := ev.Kind == stream.KindToolCallStart || ev.Kind == stream.KindToolCallEnd
	if isToolCall && !g.lastTextDelta.IsZero() && now.Sub(g.lastTextDelta) < t.cfg.Suppress {
		return
	}

	lvl.StreamEvent = &ev
	if ev.Kind == stream.KindTextDelta {
		g.lastTextDelta = now
	}

	// Throttle gate: at most one broadcast per slot per window. The first
	// event after a quiet period goes out immediately; later events only
	// update stored state until the window elapses.
	if !g.lastBroadcast.IsZero() && now.Sub(g.lastBroadcast) < t.cfg.Throttle {
		return
	}
	g.lastBroadcast = now

	t.publishLocked(runID, r)
}

// Snapshot returns a deep copy of the run's current broadcast message.
func (t *Tracker) Snapshot(runID string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.runs[runID]
	if !ok {
		return Message{}, false
	}
	return t.snapshotLocked(r), true
}

// Forget drops a run's state. Callers remove runs once their final status
// has been consumed; the tracker itself never expires entries.
func (t *Tracker) Forget(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, runID)
}

// lookupLocked resolves a run and label to their state. ok=false for
// unknown runs and out-of-vocabulary labels.
func (t *Tracker) lookupLocked(runID, label string) (*runState, *LevelStatus, string, bool) {
	r, exists := t.runs[runID]
	if !exists {
		return nil, nil, "", false
	}
	slot, step, ok := ParseLabel(label)
	if !ok {
		return nil, nil, "", false
	}
	return r, r.levels[slot], step, true
}

// publishLocked pushes the current snapshot to the broadcast hub. If no
// observer is subscribed the push is dropped, never buffered.
func (t *Tracker) publishLocked(runID string, r *runState) {
	t.hub.Publish(runID, t.snapshotLocked(r))
}

// snapshotLocked builds a deep copy of the run's state. Derived slot
// statuses for multi-voice and multi-step slots are computed here, never
// stored.
func (t *Tracker) snapshotLocked(r *runState) Message {
	levels := make(map[string]*LevelStatus, len(r.levels))
	for slot, lvl := range r.levels {
		levels[strconv.Itoa(slot)] = copyLevel(lvl)
	}
	return Message{
		Type:     "progress",
		Status:   r.status,
		Progress: r.progress,
		Levels:   levels,
	}
}

// copyLevel deep-copies a level and computes its derived status.
func copyLevel(lvl *LevelStatus) *LevelStatus {
	cp := &LevelStatus{
		Status:            lvl.Status,
		Progress:          lvl.Progress,
		VoiceID:           lvl.VoiceID,
		ConsolidationStep: lvl.ConsolidationStep,
	}

	if lvl.StreamEvent != nil {
		ev := *lvl.StreamEvent
		cp.StreamEvent = &ev
	}

	if len(lvl.Voices) > 0 {
		cp.Voices = make(map[string]*VoiceStatus, len(lvl.Voices))
		statuses := make([]Status, 0, len(lvl.Voices))
		for id, v := range lvl.Voices {
			vc := *v
			cp.Voices[id] = &vc
			statuses = append(statuses, v.Status)
		}
		cp.Status = aggregate(statuses)
	}

	if len(lvl.Steps) > 0 {
		cp.Steps = make(map[string]*StepStatus, len(lvl.Steps))
		statuses := make([]Status, 0, len(lvl.Steps))
		for name, s := range lvl.Steps {
			sc := *s
			cp.Steps[name] = &sc
			statuses = append(statuses, s.Status)
		}
		cp.Status = aggregate(statuses)
	}

	return cp
}
