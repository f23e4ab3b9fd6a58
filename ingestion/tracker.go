package ingestion

import (
	"log/slog"
	"sync"

	"github.com/papyrus-systems/papyrus/core"
)

// StatusTracker keeps the last observed state of every task. Transitions
// only move forward: once a task reaches a terminal status, later updates
// for it are dropped. A Snapshot is a point-in-time copy, so callers can
// inspect it without racing the pipeline.
type StatusTracker struct {
	mu     sync.RWMutex
	tasks  map[string]*core.Task
	logger *slog.Logger
}

var _ TaskObserver = (*StatusTracker)(nil)

// NewStatusTracker creates an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		tasks:  make(map[string]*core.Task),
		logger: slog.Default().With("component", "status-tracker"),
	}
}

// TaskUpdated records a task state change. Backward transitions are
// rejected and logged rather than applied.
func (t *StatusTracker) TaskUpdated(task *core.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.tasks[task.ID]
	if ok && !current.Status.CanTransition(task.Status) {
		t.logger.Warn("dropping backward task transition",
			"task_id", task.ID, "from", current.Status, "to", task.Status)
		return
	}

	t.tasks[task.ID] = task.Clone()
}

// Get returns the last known state of a task.
func (t *StatusTracker) Get(taskID string) (*core.Task, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Snapshot partitions all known tasks by status at a single point in time.
type Snapshot struct {
	Queued     []*core.Task
	Processing []*core.Task
	Completed  []*core.Task
	Failed     []*core.Task
}

// Total returns the number of tasks in the snapshot.
func (s *Snapshot) Total() int {
	return len(s.Queued) + len(s.Processing) + len(s.Completed) + len(s.Failed)
}

// Snapshot returns a consistent point-in-time view of all tasks.
func (t *StatusTracker) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := &Snapshot{}
	for _, task := range t.tasks {
		clone := task.Clone()
		switch task.Status {
		case core.TaskQueued:
			snap.Queued = append(snap.Queued, clone)
		case core.TaskProcessing:
			snap.Processing = append(snap.Processing, clone)
		case core.TaskCompleted:
			snap.Completed = append(snap.Completed, clone)
		case core.TaskFailed:
			snap.Failed = append(snap.Failed, clone)
		}
	}
	return snap
}

// Forget drops terminal tasks from the tracker, returning how many were
// removed. Long-running deployments call this to bound memory.
func (t *StatusTracker) Forget() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, task := range t.tasks {
		if task.Status.Terminal() {
			delete(t.tasks, id)
			removed++
		}
	}
	return removed
}
