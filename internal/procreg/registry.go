// Package procreg tracks every live reviewer subprocess per run identifier
// and can mass-terminate them. The provider adapter registers a process
// before it reads any output, so a cancellation request issued immediately
// after start still reaches the process; it consults IsCancelled when the
// process later exits to tell user-initiated stoppage apart from a crash.
package procreg

import (
	"os"
	"sync"
	"syscall"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
)

// Registry is process-wide state with an explicit lifecycle: a run's entry
// is created on the first Register, handles self-remove via the release
// function, and the entry is deleted once its set is empty. Safe for
// concurrent use.
type Registry struct {
	mu        sync.Mutex
	procs     map[string]map[int]*os.Process
	cancelled map[string]bool
	logger    *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{
		procs:     make(map[string]map[int]*os.Process),
		cancelled: make(map[string]bool),
		logger:    logger,
	}
}

// Register adds a process handle to the run's set and returns a release
// function. The caller must invoke release when the process exits (on
// every termination path); release removes the handle and deletes the
// run's entry once the set becomes empty. Release is idempotent.
func (r *Registry) Register(runID string, proc *os.Process) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.procs[runID] == nil {
		r.procs[runID] = make(map[int]*os.Process)
	}
	pid := proc.Pid
	r.procs[runID][pid] = proc

	r.logger.Debug("registered process", "run_id", runID, "pid", pid)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if set, ok := r.procs[runID]; ok {
				delete(set, pid)
				if len(set) == 0 {
					delete(r.procs, runID)
				}
			}
		})
	}
}

// KillAll sends a graceful termination signal to every tracked handle of
// the run and marks the run cancelled. It returns how many signals were
// delivered; failures for processes that already exited are swallowed.
// The run's set is cleared unconditionally afterward, so a repeated call
// is a safe no-op returning zero.
func (r *Registry) KillAll(runID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelled[runID] = true

	killed := 0
	for pid, proc := range r.procs[runID] {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			r.logger.Debug("signal failed, process likely exited",
				"run_id", runID, "pid", pid, "error", err)
			continue
		}
		killed++
	}
	delete(r.procs, runID)

	r.logger.Info("terminated run processes", "run_id", runID, "count", killed)
	return killed
}

// IsCancelled reports whether KillAll (or MarkCancelled) was issued for
// the run. The provider adapter uses this to classify a subsequent
// termination-signal exit as cancellation rather than a provider failure.
func (r *Registry) IsCancelled(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled[runID]
}

// MarkCancelled records the cancelled status without signalling anything.
// Used when a run is cancelled before any process has been registered.
func (r *Registry) MarkCancelled(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[runID] = true
}

// LiveCount reports how many handles are currently tracked for the run.
func (r *Registry) LiveCount(runID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs[runID])
}
