package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyrus-systems/papyrus/ai/mock"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/parser"
	"github.com/papyrus-systems/papyrus/parser/markdown"
	"github.com/papyrus-systems/papyrus/storage"
	storagebadger "github.com/papyrus-systems/papyrus/storage/badger"
)

// failingChunkRepository wraps a real repository and fails AddChunks on demand.
type failingChunkRepository struct {
	storage.ChunkRepository
	failAdd bool
}

func (f *failingChunkRepository) AddChunks(ctx context.Context, chunks ...*core.VectorChunk) error {
	if f.failAdd {
		return errors.New("injected chunk write failure")
	}
	return f.ChunkRepository.AddChunks(ctx, chunks...)
}

type pipelineFixture struct {
	pipeline *Pipeline
	tracker  *StatusTracker
	stores   *storagebadger.MemoryStores
	embedder *mock.MockEmbedder
}

func newFixture(t *testing.T, opts ...Option) *pipelineFixture {
	t.Helper()

	stores, err := storagebadger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())

	tracker := NewStatusTracker()
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 8

	allOpts := append([]Option{WithObserver(tracker), WithWorkers(2)}, opts...)
	pipeline, err := NewPipeline(registry, embedder, stores.Documents, stores.Chunks, allOpts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipeline.Shutdown(ctx)
	})

	return &pipelineFixture{
		pipeline: pipeline,
		tracker:  tracker,
		stores:   stores,
		embedder: embedder,
	}
}

func (f *pipelineFixture) waitTerminal(t *testing.T, taskID string) *core.Task {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := f.tracker.Get(taskID)
		if err == nil && task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal status", taskID)
	return nil
}

func TestPipelineIngestsInlineText(t *testing.T) {
	f := newFixture(t)

	taskID, err := f.pipeline.Submit(context.Background(), &Submission{
		Text:  "# Design Notes\n\nSome content worth keeping.",
		Title: "Design Notes",
	})
	require.NoError(t, err)

	task := f.waitTerminal(t, taskID)
	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, float64(100), task.Progress)
	require.NotZero(t, task.DocumentID)

	record, err := f.stores.Documents.GetDocument(context.Background(), task.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Design Notes", record.Title)

	chunks, err := f.stores.Chunks.GetChunks(context.Background(), task.DocumentID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestPipelineIngestsFile(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# From Disk\n\nbody text\n"), 0o644))

	taskID, err := f.pipeline.Submit(context.Background(), &Submission{
		Source: core.SourceWatch,
		Path:   path,
	})
	require.NoError(t, err)

	task := f.waitTerminal(t, taskID)
	require.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, "From Disk", task.Title)

	record, err := f.stores.Documents.GetDocumentBySourcePath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, task.DocumentID, record.Id)

	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "notes.md", task.Metadata["filename"])
	assert.NotEmpty(t, task.Metadata["size"])
	assert.NotEmpty(t, task.Metadata["modified_at"])
}

func TestPipelineDuplicateContentIsInert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, &Submission{Text: "identical content"})
	require.NoError(t, err)
	firstTask := f.waitTerminal(t, first)
	require.Equal(t, core.TaskCompleted, firstTask.Status)

	second, err := f.pipeline.Submit(ctx, &Submission{Text: "identical content"})
	require.NoError(t, err)
	secondTask := f.waitTerminal(t, second)

	// The duplicate completes successfully but writes nothing new.
	assert.Equal(t, core.TaskCompleted, secondTask.Status)
	assert.Equal(t, firstTask.DocumentID, secondTask.DocumentID)

	records, err := f.stores.Documents.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPipelineConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, WithWorkers(4), WithQueueCapacity(64))
	ctx := context.Background()

	// Stall embeddings briefly so identical submissions overlap in flight.
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		time.Sleep(20 * time.Millisecond)
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0, 0, 0}
		}
		return out, nil
	}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.pipeline.Submit(ctx, &Submission{Text: "racing content"})
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		task := f.waitTerminal(t, id)
		assert.Equal(t, core.TaskCompleted, task.Status)
	}

	records, err := f.stores.Documents.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPipelineRollbackOnChunkFailure(t *testing.T) {
	stores, err := storagebadger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	failing := &failingChunkRepository{ChunkRepository: stores.Chunks, failAdd: true}

	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())
	tracker := NewStatusTracker()

	pipeline, err := NewPipeline(registry, mock.NewMockEmbedder(), stores.Documents, failing,
		WithObserver(tracker), WithWorkers(1))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipeline.Shutdown(ctx)
	})

	ctx := context.Background()
	taskID, err := pipeline.Submit(ctx, &Submission{Text: "doomed content"})
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	var task *core.Task
	for time.Now().Before(deadline) {
		task, err = tracker.Get(taskID)
		if err == nil && task.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, task)
	require.Equal(t, core.TaskFailed, task.Status)
	assert.Contains(t, task.Error, "storage write failed")

	// The compensating delete must leave both stores empty.
	records, err := stores.Documents.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	// And the content is retryable once the fault clears.
	failing.failAdd = false
	retryID, err := pipeline.Submit(ctx, &Submission{Text: "doomed content"})
	require.NoError(t, err)

	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err = tracker.Get(retryID)
		if err == nil && task.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, core.TaskCompleted, task.Status)
}

func TestPipelineQueueFull(t *testing.T) {
	f := newFixture(t, WithWorkers(1), WithQueueCapacity(1))
	ctx := context.Background()

	release := make(chan struct{})
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-release
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}

	// Saturate the single worker, then the single queue slot.
	var accepted []string
	var rejected int
	for i := 0; i < 10; i++ {
		id, err := f.pipeline.Submit(ctx, &Submission{Text: fmt.Sprintf("doc %d", i)})
		if err != nil {
			require.ErrorIs(t, err, ErrQueueFull)
			rejected++
			continue
		}
		accepted = append(accepted, id)
	}
	assert.NotZero(t, rejected, "expected at least one rejection at capacity")

	close(release)
	for _, id := range accepted {
		task := f.waitTerminal(t, id)
		assert.Equal(t, core.TaskCompleted, task.Status)
	}
}

func TestPipelineParseFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taskID, err := f.pipeline.Submit(ctx, &Submission{
		Path: filepath.Join(t.TempDir(), "missing.md"),
	})
	require.NoError(t, err)

	task := f.waitTerminal(t, taskID)
	require.Equal(t, core.TaskFailed, task.Status)
	assert.Contains(t, task.Error, "parsing failed")

	records, err := f.stores.Documents.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPipelineUnsupportedFormat(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "binary.exe")
	require.NoError(t, os.WriteFile(path, []byte{0x4d, 0x5a}, 0o644))

	taskID, err := f.pipeline.Submit(context.Background(), &Submission{Path: path})
	require.NoError(t, err)

	task := f.waitTerminal(t, taskID)
	assert.Equal(t, core.TaskFailed, task.Status)
}

func TestPipelineCancelQueuedTask(t *testing.T) {
	f := newFixture(t, WithWorkers(1), WithQueueCapacity(4))
	ctx := context.Background()

	release := make(chan struct{})
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-release
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}

	blocker, err := f.pipeline.Submit(ctx, &Submission{Text: "blocker"})
	require.NoError(t, err)

	victim, err := f.pipeline.Submit(ctx, &Submission{Text: "victim"})
	require.NoError(t, err)

	require.NoError(t, f.pipeline.Cancel(victim))
	assert.ErrorIs(t, f.pipeline.Cancel("no-such-task"), ErrTaskNotFound)

	close(release)

	blockerTask := f.waitTerminal(t, blocker)
	assert.Equal(t, core.TaskCompleted, blockerTask.Status)

	victimTask := f.waitTerminal(t, victim)
	assert.Equal(t, core.TaskFailed, victimTask.Status)
	assert.Contains(t, victimTask.Error, "cancelled")
}

func TestPipelineRejectsAfterShutdown(t *testing.T) {
	stores, err := storagebadger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())

	pipeline, err := NewPipeline(registry, mock.NewMockEmbedder(), stores.Documents, stores.Chunks)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pipeline.Shutdown(ctx))

	_, err = pipeline.Submit(context.Background(), &Submission{Text: "late"})
	assert.ErrorIs(t, err, ErrPipelineClosed)
}

func TestPipelineEmptySubmission(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Submit(context.Background(), &Submission{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestPipelineStatusMonotonicity(t *testing.T) {
	stores, err := storagebadger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())

	var mu sync.Mutex
	transitions := make(map[string][]*core.Task)
	recorder := TaskObserverFunc(func(task *core.Task) {
		mu.Lock()
		defer mu.Unlock()
		transitions[task.ID] = append(transitions[task.ID], task)
	})

	tracker := NewStatusTracker()
	pipeline, err := NewPipeline(registry, mock.NewMockEmbedder(), stores.Documents, stores.Chunks,
		WithObserver(recorder), WithObserver(tracker), WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipeline.Shutdown(ctx)
	})

	ctx := context.Background()
	ids := make([]string, 5)
	for i := range ids {
		ids[i], err = pipeline.Submit(ctx, &Submission{Text: fmt.Sprintf("doc %d", i)})
		require.NoError(t, err)
	}

	for _, id := range ids {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			task, err := tracker.Get(id)
			if err == nil && task.Status.Terminal() {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for id, seen := range transitions {
		for i := 1; i < len(seen); i++ {
			prev, next := seen[i-1], seen[i]
			assert.True(t, prev.Status.CanTransition(next.Status),
				"task %s: illegal transition %s -> %s", id, prev.Status, next.Status)
			if prev.Status == core.TaskProcessing && next.Status == core.TaskProcessing {
				assert.LessOrEqual(t, prev.Progress, next.Progress,
					"task %s: progress went backwards", id)
			}
		}
	}
}

// The queued notification must be a snapshot taken before a worker can
// own the task; a slow observer must never see worker-side mutations.
func TestSubmitPublishesQueuedSnapshot(t *testing.T) {
	var mu sync.Mutex
	first := make(map[string]*core.Task)
	slowRecorder := TaskObserverFunc(func(task *core.Task) {
		mu.Lock()
		if _, seen := first[task.ID]; !seen {
			first[task.ID] = task
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			return
		}
		mu.Unlock()
	})

	f := newFixture(t, WithObserver(slowRecorder), WithWorkers(4))
	ctx := context.Background()

	ids := make([]string, 8)
	for i := range ids {
		var err error
		ids[i], err = f.pipeline.Submit(ctx, &Submission{Text: fmt.Sprintf("snapshot doc %d", i)})
		require.NoError(t, err)
	}
	for _, id := range ids {
		f.waitTerminal(t, id)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, first, len(ids))
	for id, task := range first {
		assert.Equal(t, core.TaskQueued, task.Status, "task %s: first notification not queued", id)
		assert.Zero(t, task.Progress, "task %s", id)
		assert.Zero(t, task.Attempts, "task %s", id)
	}
}

func TestSubmitRacingShutdownDoesNotPanic(t *testing.T) {
	f := newFixture(t, WithWorkers(2), WithQueueCapacity(4))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := f.pipeline.Submit(ctx, &Submission{Text: fmt.Sprintf("racing %d", i)})
				if err != nil {
					assert.True(t, errors.Is(err, ErrQueueFull) || errors.Is(err, ErrPipelineClosed),
						"unexpected submit error: %v", err)
				}
			}
		}()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.pipeline.Shutdown(shutdownCtx))
	wg.Wait()

	_, err := f.pipeline.Submit(ctx, &Submission{Text: "after close"})
	assert.ErrorIs(t, err, ErrPipelineClosed)
}
