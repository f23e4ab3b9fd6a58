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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/papyrus-systems/papyrus/ai"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/parser"
	"github.com/papyrus-systems/papyrus/storage"
)

// Progress checkpoints reported while a task moves through the stages.
const (
	progressStarted   = 5
	progressMetadata  = 15
	progressParsed    = 45
	progressChunked   = 65
	progressEmbedded  = 85
	progressCompleted = 100
)

// Submission describes one document handed to the pipeline. Exactly one
// of Text or Path must carry the payload: Text for inline uploads, Path
// for files discovered on disk.
type Submission struct {
	Source   core.TaskSource
	Path     string
	Text     string
	Title    string
	Metadata map[string]string
}

// queueItem pairs a task with its inline payload so uploads never
// round-trip through the filesystem.
type queueItem struct {
	task  *core.Task
	text  string
	title string
}

// Pipeline accepts document submissions on a bounded queue and processes
// them on a worker pool: parse, hash, deduplicate, chunk, embed, persist.
// A full queue rejects the submission immediately rather than blocking
// the producer.
type Pipeline struct {
	parsers   *parser.Registry
	embedder  ai.Embedder
	documents storage.DocumentRepository
	persister *Persister
	chunker   *Chunker
	dedup     *Deduplicator
	metrics   *Metrics
	logger    *slog.Logger

	workers  int
	capacity int
	pool     *ants.Pool
	queue    chan *queueItem

	mu        sync.Mutex
	cancelled map[string]bool
	queued    map[string]bool
	observers []TaskObserver

	closed         atomic.Bool
	dispatcherDone chan struct{}
	inFlight       sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the worker pool size.
// Default is 4, with a minimum of 1.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.workers = n
		return nil
	}
}

// WithQueueCapacity bounds how many tasks may wait for a worker.
// Default is 100, with a minimum of 1.
func WithQueueCapacity(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.capacity = n
		return nil
	}
}

// WithChunking sets the chunk size and overlap used when splitting
// document text.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		p.chunker = NewChunker(size, overlap)
		return nil
	}
}

// WithObserver subscribes an observer to task state changes.
func WithObserver(observer TaskObserver) Option {
	return func(p *Pipeline) error {
		if observer != nil {
			p.observers = append(p.observers, observer)
		}
		return nil
	}
}

// WithMetrics attaches a metrics set.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = metrics
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline over the given parser registry,
// embedder, and stores, and starts its dispatcher.
func NewPipeline(
	parsers *parser.Registry,
	embedder ai.Embedder,
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	opts ...Option,
) (*Pipeline, error) {
	if parsers == nil {
		return nil, ErrParserRegistryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}

	p := &Pipeline{
		parsers:        parsers,
		embedder:       embedder,
		documents:      documents,
		persister:      NewPersister(documents, chunks),
		chunker:        NewChunker(1000, 100),
		dedup:          NewDeduplicator(),
		logger:         slog.Default(),
		workers:        4,
		capacity:       100,
		cancelled:      make(map[string]bool),
		queued:         make(map[string]bool),
		dispatcherDone: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	p.queue = make(chan *queueItem, p.capacity)

	go p.dispatch()

	return p, nil
}

// Submit enqueues a document for ingestion and returns the task ID.
// Returns ErrQueueFull when the queue is at capacity and
// ErrPipelineClosed after Shutdown has begun.
func (p *Pipeline) Submit(ctx context.Context, sub *Submission) (string, error) {
	if sub == nil || (sub.Text == "" && sub.Path == "") {
		return "", ErrEmptyPayload
	}

	source := sub.Source
	if source == "" {
		source = core.SourceUpload
	}

	now := time.Now().UTC()
	task := &core.Task{
		ID:         uuid.NewString(),
		Source:     source,
		PayloadRef: sub.Path,
		Title:      sub.Title,
		Metadata:   sub.Metadata,
		Status:     core.TaskQueued,
		QueuedAt:   now,
		UpdatedAt:  now,
	}
	if task.PayloadRef == "" {
		task.PayloadRef = "inline:" + task.ID
	}
	if err := core.ValidateTask(task); err != nil {
		return "", err
	}

	item := &queueItem{task: task, text: sub.Text, title: sub.Title}

	// Snapshot before the send. Once the item is on the queue a worker
	// owns the task, so the producer must not touch it again.
	queued := task.Clone()

	// The lock covers the closed check and the send so Shutdown cannot
	// close the queue between them. It also pins the dispatcher until
	// the queued notification is out, keeping observer order intact.
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return "", ErrPipelineClosed
	}
	select {
	case p.queue <- item:
		p.queued[task.ID] = true
		if p.metrics != nil {
			p.metrics.queueDepth.Inc()
		}
		p.notify(queued)
		p.mu.Unlock()
		p.logger.Debug("task queued", "task_id", task.ID, "source", task.Source, "ref", task.PayloadRef)
		return task.ID, nil
	default:
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.tasksTotal.WithLabelValues(outcomeRejected).Inc()
		}
		return "", ErrQueueFull
	}
}

// Cancel withdraws a task that has not yet been picked up by a worker.
// Returns ErrTaskNotFound when the task is unknown or already running.
func (p *Pipeline) Cancel(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.queued[taskID] {
		return ErrTaskNotFound
	}
	p.cancelled[taskID] = true
	return nil
}

// Shutdown stops accepting submissions, drains queued tasks, and waits
// for in-flight work up to the context deadline.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-p.dispatcherDone
		p.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.pool.Release()
		return nil
	case <-ctx.Done():
		p.pool.Release()
		return ctx.Err()
	}
}

// dispatch feeds queued tasks to the worker pool in submission order.
// pool.Submit blocks when every worker is busy, which is what keeps the
// queue bounded instead of the pool.
func (p *Pipeline) dispatch() {
	defer close(p.dispatcherDone)

	for item := range p.queue {
		if p.metrics != nil {
			p.metrics.queueDepth.Dec()
		}

		p.mu.Lock()
		delete(p.queued, item.task.ID)
		wasCancelled := p.cancelled[item.task.ID]
		delete(p.cancelled, item.task.ID)
		p.mu.Unlock()

		if wasCancelled {
			p.fail(item.task, ErrTaskCancelled)
			if p.metrics != nil {
				p.metrics.tasksTotal.WithLabelValues(outcomeCancelled).Inc()
			}
			continue
		}

		p.inFlight.Add(1)
		if err := p.pool.Submit(func() {
			defer p.inFlight.Done()
			p.runTask(item)
		}); err != nil {
			p.inFlight.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				// Shutdown deadline hit. The task stays queued in the
				// tracker and is safe to resubmit after a restart.
				continue
			}
			p.fail(item.task, err)
			if p.metrics != nil {
				p.metrics.tasksTotal.WithLabelValues(outcomeFailed).Inc()
			}
		}
	}
}

// runTask drives one task through the full ingestion sequence.
func (p *Pipeline) runTask(item *queueItem) {
	ctx := context.Background()
	task := item.task
	started := time.Now()

	if p.metrics != nil {
		p.metrics.inFlight.Inc()
		defer p.metrics.inFlight.Dec()
	}

	task.Attempts++
	p.progress(task, progressStarted)

	// Resolve the payload to text and a title.
	text := item.text
	title := item.title
	if text == "" {
		result, err := p.parsers.Parse(ctx, task.PayloadRef)
		if err != nil {
			p.finishFailed(task, fmt.Errorf("%w: %w", ErrParseFailed, err), started)
			return
		}
		text = result.Text
		if title == "" {
			title = result.Title
		}
	}
	if title == "" {
		title = parser.TitleFromPath(task.PayloadRef)
	}
	task.Title = title
	if item.text == "" {
		p.collectMetadata(task)
	}
	p.progress(task, progressMetadata)

	contentHash := core.HashContent(text)

	// The store's hash index catches content that already finished.
	existing, err := p.documents.GetDocumentByHash(ctx, contentHash)
	if err != nil && err != storage.ErrNotFound {
		p.finishFailed(task, fmt.Errorf("%w: %w", ErrStorageFailed, err), started)
		return
	}
	if existing != nil {
		p.finishDuplicate(task, existing.Id, started)
		return
	}

	// The reservation catches identical content still in flight.
	if p.dedup.CheckAndReserve(contentHash, task.ID) == ReservationDuplicate {
		p.finishDuplicate(task, 0, started)
		return
	}

	p.progress(task, progressParsed)

	pieces, err := p.chunker.Split(text)
	if err != nil {
		p.dedup.Release(contentHash)
		p.finishFailed(task, fmt.Errorf("%w: %w", ErrParseFailed, err), started)
		return
	}
	if len(pieces) == 0 {
		pieces = []string{text}
	}
	p.progress(task, progressChunked)

	vectors, err := p.embedder.EmbedTexts(ctx, pieces)
	if err != nil {
		p.dedup.Release(contentHash)
		p.finishFailed(task, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err), started)
		return
	}
	if len(vectors) != len(pieces) {
		p.dedup.Release(contentHash)
		p.finishFailed(task, fmt.Errorf("%w: got %d embeddings for %d chunks",
			ErrEmbeddingFailed, len(vectors), len(pieces)), started)
		return
	}
	p.progress(task, progressEmbedded)

	chunks := make([]*core.VectorChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &core.VectorChunk{
			ChunkIndex: i,
			Text:       piece,
			Embedding:  NormalizeVector(vectors[i]),
		}
	}

	sourcePath := ""
	if item.text == "" {
		sourcePath = task.PayloadRef
	}
	record := &core.DocumentRecord{
		Title:       title,
		SourcePath:  sourcePath,
		ContentHash: contentHash,
		Text:        text,
	}

	stored, err := p.persister.Persist(ctx, record, chunks)
	if err != nil {
		p.dedup.Release(contentHash)
		// A racing insert can land between the hash check and the write.
		if existing, lookupErr := p.documents.GetDocumentByHash(ctx, contentHash); lookupErr == nil && existing != nil {
			p.finishDuplicate(task, existing.Id, started)
			return
		}
		p.finishFailed(task, err, started)
		return
	}

	p.dedup.Commit(contentHash)

	task.DocumentID = stored.Id
	task.Status = core.TaskCompleted
	task.Progress = progressCompleted
	task.UpdatedAt = time.Now().UTC()
	p.notify(task)

	if p.metrics != nil {
		p.metrics.taskFinished(outcomeCompleted, time.Since(started).Seconds())
	}
	p.logger.Info("document ingested",
		"task_id", task.ID, "document_id", stored.Id, "chunks", len(chunks), "title", title)
}

// collectMetadata records file facts on the task for status consumers.
// A stat failure is not fatal; the parser already read the file.
func (p *Pipeline) collectMetadata(task *core.Task) {
	info, err := os.Stat(task.PayloadRef)
	if err != nil {
		return
	}
	if task.Metadata == nil {
		task.Metadata = make(map[string]string)
	}
	task.Metadata["filename"] = filepath.Base(task.PayloadRef)
	task.Metadata["size"] = strconv.FormatInt(info.Size(), 10)
	task.Metadata["modified_at"] = info.ModTime().UTC().Format(time.RFC3339)
}

// finishDuplicate completes a task whose content is already ingested or
// in flight. Duplicates are a success, not an error.
func (p *Pipeline) finishDuplicate(task *core.Task, documentID core.ID, started time.Time) {
	task.DocumentID = documentID
	task.Status = core.TaskCompleted
	task.Progress = progressCompleted
	task.UpdatedAt = time.Now().UTC()
	p.notify(task)

	if p.metrics != nil {
		p.metrics.dedupHits.Inc()
		p.metrics.taskFinished(outcomeDuplicate, time.Since(started).Seconds())
	}
	p.logger.Info("duplicate content skipped", "task_id", task.ID, "document_id", documentID)
}

func (p *Pipeline) finishFailed(task *core.Task, err error, started time.Time) {
	p.fail(task, err)
	if p.metrics != nil {
		p.metrics.taskFinished(outcomeFailed, time.Since(started).Seconds())
	}
}

func (p *Pipeline) fail(task *core.Task, err error) {
	task.Status = core.TaskFailed
	task.Error = err.Error()
	task.UpdatedAt = time.Now().UTC()
	p.notify(task)
	p.logger.Warn("task failed", "task_id", task.ID, "ref", task.PayloadRef, "err", err)
}

func (p *Pipeline) progress(task *core.Task, value float64) {
	task.Status = core.TaskProcessing
	task.Progress = value
	task.UpdatedAt = time.Now().UTC()
	p.notify(task)
}

func (p *Pipeline) notify(task *core.Task) {
	for _, observer := range p.observers {
		observer.TaskUpdated(task.Clone())
	}
}
