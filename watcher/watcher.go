// Copyright 2025 Papyrus Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watcher polls a directory tree for ingestable files and feeds
// them to the pipeline. Files that keep failing are blacklisted so one
// corrupt document cannot burn a worker on every poll forever.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/ingestion"
	"github.com/papyrus-systems/papyrus/parser"
	"github.com/papyrus-systems/papyrus/storage"
)

// Submitter is the slice of the pipeline the watcher needs.
type Submitter interface {
	Submit(ctx context.Context, sub *ingestion.Submission) (string, error)
}

// Watcher polls a root directory on an interval, submitting new eligible
// files to the pipeline. Per-path attempt counts and blacklists persist
// in the record store so they survive restarts.
type Watcher struct {
	root        string
	registry    *parser.Registry
	submitter   Submitter
	documents   storage.DocumentRepository
	entries     storage.WatchRepository
	interval    time.Duration
	maxAttempts int
	maxDepth    int
	logger      *slog.Logger

	mu      sync.Mutex
	state   map[string]*core.WatchEntry
	pending map[string]string // path -> task ID in flight

	stop     chan struct{}
	done     chan struct{}
	started  bool
	startOne sync.Once
	stopOne  sync.Once
}

var _ ingestion.TaskObserver = (*Watcher)(nil)

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the poll interval.
// Default is 10 seconds.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxAttempts sets how many failed ingestions a path survives before
// it is blacklisted.
// Default is 10.
func WithMaxAttempts(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithMaxDepth bounds directory recursion below the root.
// Default is 16.
func WithMaxDepth(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher over root. Call Start to begin polling;
// register the watcher as a pipeline observer so it sees task outcomes.
func NewWatcher(
	root string,
	registry *parser.Registry,
	submitter Submitter,
	documents storage.DocumentRepository,
	entries storage.WatchRepository,
	opts ...Option,
) (*Watcher, error) {
	if root == "" {
		return nil, ErrRootRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if submitter == nil {
		return nil, ErrSubmitterRequired
	}
	if documents == nil || entries == nil {
		return nil, ErrRepositoryRequired
	}

	w := &Watcher{
		root:        filepath.Clean(root),
		registry:    registry,
		submitter:   submitter,
		documents:   documents,
		entries:     entries,
		interval:    10 * time.Second,
		maxAttempts: 10,
		maxDepth:    16,
		logger:      slog.Default().With("component", "watcher"),
		state:       make(map[string]*core.WatchEntry),
		pending:     make(map[string]string),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.loadState(context.Background()); err != nil {
		return nil, err
	}

	return w, nil
}

// loadState warms the in-memory cache from persisted entries.
func (w *Watcher) loadState(ctx context.Context) error {
	persisted, err := w.entries.ListWatchEntries(ctx)
	if err != nil {
		return err
	}
	for _, entry := range persisted {
		w.state[entry.Path] = entry
	}
	return nil
}

// Start begins polling in a background goroutine. The first scan runs
// immediately rather than one interval in.
func (w *Watcher) Start() {
	w.startOne.Do(func() {
		w.started = true
		go w.run()
	})
}

// Stop halts polling and waits for the current scan to finish. In-flight
// pipeline tasks are not interrupted.
func (w *Watcher) Stop() {
	w.stopOne.Do(func() {
		close(w.stop)
	})
	if w.started {
		<-w.done
	}
}

func (w *Watcher) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Scan(context.Background())
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.Scan(context.Background())
		}
	}
}

// Scan walks the root once, submitting every eligible file that is not
// already ingested, pending, or blacklisted. A full queue defers the
// remaining files to the next poll.
func (w *Watcher) Scan(ctx context.Context) {
	deferred := false

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("walk error", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if w.depth(path) > w.maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		// Symlinks are not followed: a link out of the root could pull
		// in arbitrary trees or loop.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if deferred || !w.registry.Eligible(path) {
			return nil
		}

		if retry := w.consider(ctx, path); retry {
			deferred = true
		}
		return nil
	})
	if err != nil {
		w.logger.Error("scan failed", "root", w.root, "err", err)
	}
}

// depth counts path separators below the root.
func (w *Watcher) depth(path string) int {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// consider decides whether to submit one file. It reports true when the
// queue was full and the scan should stop submitting this cycle.
func (w *Watcher) consider(ctx context.Context, path string) bool {
	w.mu.Lock()
	if _, inFlight := w.pending[path]; inFlight {
		w.mu.Unlock()
		return false
	}
	entry := w.state[path]
	if entry != nil && entry.Blacklisted {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	// Already ingested from this path.
	if _, err := w.documents.GetDocumentBySourcePath(ctx, path); err == nil {
		return false
	} else if err != storage.ErrNotFound {
		w.logger.Error("source path lookup failed", "path", path, "err", err)
		return false
	}

	taskID, err := w.submitter.Submit(ctx, &ingestion.Submission{
		Source: core.SourceWatch,
		Path:   path,
	})
	if err == ingestion.ErrQueueFull {
		w.logger.Debug("queue full, deferring to next poll", "path", path)
		return true
	}
	if err != nil {
		w.logger.Error("submission failed", "path", path, "err", err)
		return false
	}

	w.mu.Lock()
	w.pending[path] = taskID
	if entry == nil {
		entry = &core.WatchEntry{Path: path}
		w.state[path] = entry
	}
	entry.LastSeenAt = time.Now().UTC()
	w.mu.Unlock()

	if err := w.entries.PutWatchEntry(ctx, entry); err != nil {
		w.logger.Error("failed to persist watch entry", "path", path, "err", err)
	}
	return false
}

// TaskUpdated receives task outcomes from the pipeline. Success resets
// the path's attempt count; failure blacklists it once the ceiling is
// reached.
func (w *Watcher) TaskUpdated(task *core.Task) {
	if task.Source != core.SourceWatch || !task.Status.Terminal() {
		return
	}

	path := task.PayloadRef

	w.mu.Lock()
	if w.pending[path] != task.ID {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)

	entry := w.state[path]
	if entry == nil {
		entry = &core.WatchEntry{Path: path}
		w.state[path] = entry
	}

	switch task.Status {
	case core.TaskCompleted:
		entry.Attempts = 0
		entry.Blacklisted = false
	case core.TaskFailed:
		entry.Attempts++
		if entry.Attempts >= w.maxAttempts {
			entry.Blacklisted = true
		}
	}
	snapshot := *entry
	w.mu.Unlock()

	if snapshot.Blacklisted {
		w.logger.Warn("path blacklisted after repeated failures",
			"path", path, "attempts", snapshot.Attempts)
	}

	if err := w.entries.PutWatchEntry(context.Background(), &snapshot); err != nil {
		w.logger.Error("failed to persist watch entry", "path", path, "err", err)
	}
}

// Reset clears a path's attempts and blacklist flag so the next scan
// retries it.
func (w *Watcher) Reset(ctx context.Context, path string) error {
	w.mu.Lock()
	entry := w.state[path]
	if entry == nil {
		w.mu.Unlock()
		return storage.ErrNotFound
	}
	entry.Attempts = 0
	entry.Blacklisted = false
	snapshot := *entry
	w.mu.Unlock()

	return w.entries.PutWatchEntry(ctx, &snapshot)
}

// Blacklisted lists all currently blacklisted paths.
func (w *Watcher) Blacklisted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	for path, entry := range w.state {
		if entry.Blacklisted {
			paths = append(paths, path)
		}
	}
	return paths
}
