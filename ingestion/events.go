package ingestion

import "github.com/papyrus-systems/papyrus/core"

// TaskObserver receives a snapshot of a task every time its state
// changes. Observers are called synchronously from pipeline goroutines
// and must not block; each observer gets its own clone of the task.
type TaskObserver interface {
	TaskUpdated(task *core.Task)
}

// TaskObserverFunc adapts a function to the TaskObserver interface.
type TaskObserverFunc func(task *core.Task)

// TaskUpdated calls f(task).
func (f TaskObserverFunc) TaskUpdated(task *core.Task) {
	f(task)
}
