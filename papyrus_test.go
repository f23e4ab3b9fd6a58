package papyrus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyrus-systems/papyrus/ai/mock"
	"github.com/papyrus-systems/papyrus/config"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/ingestion"
)

func testConfig() config.Config {
	cfg := config.Load()
	cfg.Workers = 2
	cfg.QueueCapacity = 16
	cfg.MinSimilarity = 0.0
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16

	engine, err := NewEngine(cfg, WithEmbedder(embedder), WithInMemoryStores())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func waitTerminal(t *testing.T, engine *Engine, taskID string) *core.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := engine.Tracker().Get(taskID)
		if err == nil && task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", taskID)
	return nil
}

func TestEngineIngestAndSearch(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()

	taskID, err := engine.Pipeline().Submit(ctx, &ingestion.Submission{
		Text:  "# Roadmap\n\nShip the ingestion engine this quarter.",
		Title: "Roadmap",
	})
	require.NoError(t, err)

	task := waitTerminal(t, engine, taskID)
	require.Equal(t, core.TaskCompleted, task.Status)

	results, err := engine.Searcher().FindSimilar(ctx, "Ship the ingestion engine this quarter.", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Roadmap", results[0].Title)

	record, err := engine.Searcher().FetchDocument(ctx, "Roadmap")
	require.NoError(t, err)
	assert.Equal(t, task.DocumentID, record.Id)
}

func TestEngineWatcherIntegration(t *testing.T) {
	cfg := testConfig()
	cfg.WatchEnabled = true
	cfg.WatchRoot = t.TempDir()
	cfg.WatchInterval = 20 * time.Millisecond

	engine := newTestEngine(t, cfg)
	require.NotNil(t, engine.Watcher())

	path := filepath.Join(cfg.WatchRoot, "dropped.md")
	require.NoError(t, os.WriteFile(path, []byte("# Dropped In\n\nwatched content\n"), 0o644))

	engine.Watcher().Start()

	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := engine.Documents().GetDocumentBySourcePath(ctx, path); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	record, err := engine.Documents().GetDocumentBySourcePath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Dropped In", record.Title)
}

func TestEngineMetricsGather(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	ctx := context.Background()

	taskID, err := engine.Pipeline().Submit(ctx, &ingestion.Submission{Text: "counted"})
	require.NoError(t, err)
	waitTerminal(t, engine, taskID)

	families, err := engine.Metrics().Gather()
	require.NoError(t, err)

	found := false
	for _, family := range families {
		if family.GetName() == "papyrus_ingestion_tasks_total" {
			found = true
		}
	}
	assert.True(t, found, "expected task counter in gathered metrics")
}
