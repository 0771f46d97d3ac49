package progress

import (
	"testing"
	"time"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/broadcast"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestTracker wires a tracker to a hub subscription for run-1.
func newTestTracker(t *testing.T) (*Tracker, *fakeClock, <-chan any) {
	t.Helper()

	hub := broadcast.NewHub()
	clock := newFakeClock()
	tracker := NewTracker(DefaultConfig(), hub, nil, WithClock(clock.now))

	ch, cancel := hub.Subscribe("run-1")
	t.Cleanup(cancel)

	return tracker, clock, ch
}

// drain empties the subscription channel and returns the messages seen.
func drain(ch <-chan any) []Message {
	var msgs []Message
	for {
		select {
		case raw, ok := <-ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, raw.(Message))
		default:
			return msgs
		}
	}
}

func TestStartRunInitializesFourSlots(t *testing.T) {
	tracker, _, ch := newTestTracker(t)
	tracker.StartRun("run-1")

	msgs := drain(ch)
	if len(msgs) != 1 {
		t.Fatalf("got %d broadcasts, want 1", len(msgs))
	}

	msg := msgs[0]
	if msg.Type != "progress" || msg.Status != StatusRunning {
		t.Errorf("unexpected headline: %+v", msg)
	}
	if len(msg.Levels) != 4 {
		t.Fatalf("got %d levels, want 4", len(msg.Levels))
	}
	for _, key := range []string{"1", "2", "3", "4"} {
		lvl, ok := msg.Levels[key]
		if !ok {
			t.Fatalf("missing level %s", key)
		}
		if lvl.Status != StatusPending {
			t.Errorf("level %s status = %s, want pending", key, lvl.Status)
		}
	}
}

func TestUnknownRunAndLabelAreNoOps(t *testing.T) {
	tracker, _, ch := newTestTracker(t)
	tracker.StartRun("run-1")
	drain(ch)

	tracker.UpdateLevel("ghost-run", "1", StatusRunning, "x")
	tracker.UpdateLevel("run-1", "5", StatusRunning, "x")
	tracker.UpdateLevel("run-1", "consolidation-L9", StatusRunning, "x")
	tracker.StreamEvent("run-1", "nope", stream.Event{Kind: stream.KindTextDelta})

	if msgs := drain(ch); len(msgs) != 0 {
		t.Errorf("malformed updates produced %d broadcasts", len(msgs))
	}
	if _, ok := tracker.Snapshot("ghost-run"); ok {
		t.Error("no-op update created run state")
	}
}

func TestSimpleUpdateClearsStaleFields(t *testing.T) {
	tracker, _, ch := newTestTracker(t)
	tracker.StartRun("run-1")

	tracker.UpdateVoice("run-1", "2", "claude", StatusRunning, "voice going")
	tracker.StreamEvent("run-1", "2", stream.Event{Kind: stream.KindTextDelta, Text: "hi"})
	drain(ch)

	tracker.UpdateLevel("run-1", "2", StatusCompleted, "level done")

	msg, _ := tracker.Snapshot("run-1")
	lvl := msg.Levels["2"]
	if lvl.StreamEvent != nil {
		t.Error("stale stream event survived a simple update")
	}
	if lvl.VoiceID != "" {
		t.Error("stale voice id survived a simple update")
	}
	if lvl.Progress != "level done" {
		t.Errorf("progress = %q", lvl.Progress)
	}
}

func TestVoiceMirrorTracksLatestVoice(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.StartRun("run-1")

	tracker.UpdateVoice("run-1", "1", "claude", StatusRunning, "claude working")
	tracker.UpdateVoice("run-1", "1", "codex", StatusRunning, "codex working")

	msg, _ := tracker.Snapshot("run-1")
	lvl := msg.Levels["1"]
	if lvl.VoiceID != "codex" {
		t.Errorf("VoiceID mirror = %q, want codex", lvl.VoiceID)
	}
	if len(lvl.Voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(lvl.Voices))
	}
	if lvl.Voices["claude"].Progress != "claude working" {
		t.Error("earlier voice entry was clobbered")
	}
}

func TestDerivedVoiceStatus(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.StartRun("run-1")

	tracker.UpdateVoice("run-1", "3", "claude", StatusCompleted, "done")
	tracker.UpdateVoice("run-1", "3", "codex", StatusRunning, "going")

	msg, _ := tracker.Snapshot("run-1")
	if got := msg.Levels["3"].Status; got != StatusRunning {
		t.Errorf("aggregate = %s, want running while any voice runs", got)
	}

	tracker.UpdateVoice("run-1", "3", "codex", StatusFailed, "crashed")
	msg, _ = tracker.Snapshot("run-1")
	if got := msg.Levels["3"].Status; got != StatusFailed {
		t.Errorf("aggregate = %s, want failed once any voice failed", got)
	}
}

func TestConsolidationStepAggregate(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.StartRun("run-1")

	tracker.UpdateStep("run-1", "consolidation-L1", StatusCompleted, "level 1 merged")
	tracker.UpdateStep("run-1", "consolidation-L2", StatusRunning, "merging level 2")

	msg, _ := tracker.Snapshot("run-1")
	lvl := msg.Levels["4"]
	if lvl.Status != StatusRunning {
		t.Errorf("aggregate = %s, want running", lvl.Status)
	}
	if lvl.ConsolidationStep != "consolidation-L2" {
		t.Errorf("ConsolidationStep = %q", lvl.ConsolidationStep)
	}

	tracker.UpdateStep("run-1", "consolidation-L2", StatusCompleted, "level 2 merged")
	msg, _ = tracker.Snapshot("run-1")
	if got := msg.Levels["4"].Status; got != StatusCompleted {
		t.Errorf("aggregate = %s, want completed once all steps completed", got)
	}

	// A failure wins regardless of later reports from other sub-steps.
	tracker.UpdateStep("run-1", "consolidation-L3", StatusFailed, "merge conflict")
	tracker.UpdateStep("run-1", "consolidation-L1", StatusCompleted, "re-reported")
	msg, _ = tracker.Snapshot("run-1")
	if got := msg.Levels["4"].Status; got != StatusFailed {
		t.Errorf("aggregate = %s, want failed", got)
	}
}

func TestThrottleGate(t *testing.T) {
	tracker, clock, ch := newTestTracker(t)
	tracker.StartRun("run-1")
	drain(ch)

	ev := stream.Event{Kind: stream.KindTextDelta, Text: "tick"}

	// Events at t=0, 100, 250, 350ms: broadcasts only at t=0 and t=350.
	tracker.StreamEvent("run-1", "1", ev)
	clock.advance(100 * time.Millisecond)
	tracker.StreamEvent("run-1", "1", ev)
	clock.advance(150 * time.Millisecond)
	tracker.StreamEvent("run-1", "1", ev)
	clock.advance(100 * time.Millisecond)
	tracker.StreamEvent("run-1", "1", ev)

	if msgs := drain(ch); len(msgs) != 2 {
		t.Errorf("got %d broadcasts, want 2 (t=0 and t=350)", len(msgs))
	}
}

func TestThrottleIsPerSlot(t *testing.T) {
	tracker, _, ch := newTestTracker(t)
	tracker.StartRun("run-1")
	drain(ch)

	ev := stream.Event{Kind: stream.KindTextDelta, Text: "tick"}
	tracker.StreamEvent("run-1", "1", ev)
	tracker.StreamEvent("run-1", "2", ev)

	if msgs := drain(ch); len(msgs) != 2 {
		t.Errorf("got %d broadcasts, want 2 (gates are per slot)", len(msgs))
	}
}

func TestThrottledEventStateIsNotLost(t *testing.T) {
	tracker, clock, ch := newTestTracker(t)
	tracker.StartRun("run-1")
	drain(ch)

	tracker.StreamEvent("run-1", "1", stream.Event{Kind: stream.KindTextDelta, Text: "first"})
	clock.advance(100 * time.Millisecond)
	tracker.StreamEvent("run-1", "1", stream.Event{Kind: stream.KindTextDelta, Text: "second"})

	// The second event was not broadcast, but the stored state carries it.
	msg, _ := tracker.Snapshot("run-1")
	if got := msg.Levels["1"].StreamEvent.Text; got != "second" {
		t.Errorf("stored event text = %q, want the latest", got)
	}
}

func TestPriorityGate(t *testing.T) {
	tracker, clock, _ := newTestTracker(t)
	tracker.StartRun("run-1")

	tracker.StreamEvent("run-1", "2", stream.Event{Kind: stream.KindTextDelta, Text: "narrating"})

	// A tool call 500ms after the text delta is suppressed.
	clock.advance(500 * time.Millisecond)
	tracker.StreamEvent("run-1", "2", stream.Event{Kind: stream.KindToolCallStart, ToolName: "Bash"})

	msg, _ := tracker.Snapshot("run-1")
	if got := msg.Levels["2"].StreamEvent.Kind; got != stream.KindTextDelta {
		t.Errorf("suppressed tool call replaced the stored event: %s", got)
	}

	// One arriving 2100ms after the text delta is admitted.
	clock.advance(1600 * time.Millisecond)
	tracker.StreamEvent("run-1", "2", stream.Event{Kind: stream.KindToolCallStart, ToolName: "Bash"})

	msg, _ = tracker.Snapshot("run-1")
	if got := msg.Levels["2"].StreamEvent.Kind; got != stream.KindToolCallStart {
		t.Errorf("stored event kind = %s, want tool-call-start", got)
	}
}

func TestToolCallAdmittedWithoutRecentTextDelta(t *testing.T) {
	tracker, _, ch := newTestTracker(t)
	tracker.StartRun("run-1")
	drain(ch)

	tracker.StreamEvent("run-1", "3", stream.Event{Kind: stream.KindToolCallStart, ToolName: "Read"})

	if msgs := drain(ch); len(msgs) != 1 {
		t.Errorf("got %d broadcasts, want 1 (no text delta to defer to)", len(msgs))
	}
}

func TestCancellationIsMonotonic(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.StartRun("run-1")

	tracker.SetRunStatus("run-1", StatusCancelled, "cancelled by user")
	tracker.SetRunStatus("run-1", StatusRunning, "resurrected")
	tracker.SetRunStatus("run-1", StatusCompleted, "done")

	msg, _ := tracker.Snapshot("run-1")
	if msg.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled to stick", msg.Status)
	}

	// StartRun on the same id must not reset the record either.
	tracker.StartRun("run-1")
	msg, _ = tracker.Snapshot("run-1")
	if msg.Status != StatusCancelled {
		t.Errorf("status after re-start = %s, want cancelled", msg.Status)
	}
}

func TestStatusChangesBypassThrottle(t *testing.T) {
	tracker, _, ch := newTestTracker(t)
	tracker.StartRun("run-1")
	drain(ch)

	// Plain status changes in quick succession all broadcast.
	tracker.UpdateLevel("run-1", "1", StatusRunning, "go")
	tracker.UpdateLevel("run-1", "1", StatusCompleted, "done")
	tracker.UpdateLevel("run-1", "2", StatusRunning, "go")

	if msgs := drain(ch); len(msgs) != 3 {
		t.Errorf("got %d broadcasts, want 3", len(msgs))
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		label string
		slot  int
		step  string
		ok    bool
	}{
		{"1", 1, "", true},
		{"2", 2, "", true},
		{"3", 3, "", true},
		{"orchestration", 4, "", true},
		{"consolidation-L1", 4, "consolidation-L1", true},
		{"consolidation-L3", 4, "consolidation-L3", true},
		{"4", 0, "", false},
		{"consolidation-L4", 0, "", false},
		{"", 0, "", false},
		{"synthesis", 0, "", false},
	}

	for _, tt := range tests {
		slot, step, ok := ParseLabel(tt.label)
		if slot != tt.slot || step != tt.step || ok != tt.ok {
			t.Errorf("ParseLabel(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.label, slot, step, ok, tt.slot, tt.step, tt.ok)
		}
	}
}
