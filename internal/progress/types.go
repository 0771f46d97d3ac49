// Package progress maintains one hierarchical status per analysis run,
// updated concurrently by any number of in-flight provider adapters, and
// emits a throttled broadcast stream of state snapshots.
package progress

import (
	"strings"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/stream"
)

// Status is the lifecycle state of a run, level, voice, or step.
type Status string

// Status values. A run is terminal once its status leaves running.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// The aggregator tracks exactly four level slots. Slot 4 is the
// synthesis/orchestration pass that reconciles the analysis levels.
const (
	MinSlot       = 1
	MaxSlot       = 4
	SynthesisSlot = 4
)

// Level labels from the fixed vocabulary.
const (
	LabelOrchestration = "orchestration"
	consolidationPfx   = "consolidation-L"
)

// VoiceStatus is one model's contribution to a level when several models
// run that level in parallel ("council" mode).
type VoiceStatus struct {
	Status   Status `json:"status"`
	Progress string `json:"progress"`
}

// StepStatus is one named sub-phase of the synthesis level.
type StepStatus struct {
	Status   Status `json:"status"`
	Progress string `json:"progress"`
}

// LevelStatus is the externally visible state of one level slot. For
// multi-voice and multi-step slots the Status field in snapshots is
// computed from the members, never stored independently.
type LevelStatus struct {
	Status   Status `json:"status"`
	Progress string `json:"progress"`

	// StreamEvent is the most recent canonical stream event on this slot.
	StreamEvent *stream.Event `json:"streamEvent,omitempty"`

	// VoiceID mirrors the most recently updated voice for consumers that
	// predate council mode.
	VoiceID string `json:"voiceId,omitempty"`

	// Voices maps voice id to per-voice state in council mode.
	Voices map[string]*VoiceStatus `json:"voices,omitempty"`

	// ConsolidationStep names the most recently updated sub-phase.
	// Synthesis slot only.
	ConsolidationStep string `json:"consolidationStep,omitempty"`

	// Steps maps sub-phase name to its state. Synthesis slot only.
	Steps map[string]*StepStatus `json:"steps,omitempty"`
}

// Message is the progress broadcast payload consumed by external
// observers such as a long-lived HTTP stream.
type Message struct {
	Type     string                  `json:"type"`
	Status   Status                  `json:"status"`
	Progress string                  `json:"progress"`
	Levels   map[string]*LevelStatus `json:"levels"`
}

// ParseLabel maps a level label from the fixed vocabulary to its slot and,
// for consolidation labels, the step name. Returns ok=false for anything
// outside the vocabulary; callers must treat that as a no-op rather than
// growing state.
func ParseLabel(label string) (slot int, step string, ok bool) {
	switch label {
	case "1":
		return 1, "", true
	case "2":
		return 2, "", true
	case "3":
		return 3, "", true
	case LabelOrchestration:
		return SynthesisSlot, "", true
	}
	if strings.HasPrefix(label, consolidationPfx) {
		switch strings.TrimPrefix(label, consolidationPfx) {
		case "1", "2", "3":
			return SynthesisSlot, label, true
		}
	}
	return 0, "", false
}

// aggregate computes the derived status of a multi-member slot:
// failed if any member failed, else running if any member is running,
// else completed only if every member completed.
func aggregate(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusPending
	}

	allCompleted := true
	anyRunning := false
	for _, s := range statuses {
		switch s {
		case StatusFailed:
			return StatusFailed
		case StatusRunning:
			anyRunning = true
		}
		if s != StatusCompleted {
			allCompleted = false
		}
	}

	if anyRunning {
		return StatusRunning
	}
	if allCompleted {
		return StatusCompleted
	}
	return StatusPending
}
