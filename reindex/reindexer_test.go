package reindex

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyrus-systems/papyrus/ai/mock"
	"github.com/papyrus-systems/papyrus/core"
	storagebadger "github.com/papyrus-systems/papyrus/storage/badger"
)

func seedDocument(t *testing.T, stores *storagebadger.MemoryStores, text string, chunkCount int) *core.DocumentRecord {
	t.Helper()
	ctx := context.Background()

	record, err := stores.Documents.AddDocument(ctx, &core.DocumentRecord{
		Title:       "seed",
		ContentHash: core.HashContent(text),
		Text:        text,
	})
	require.NoError(t, err)

	chunks := make([]*core.VectorChunk, chunkCount)
	for i := range chunks {
		chunks[i] = &core.VectorChunk{
			DocumentId: record.Id,
			ChunkIndex: i,
			Text:       "stale chunk",
			Embedding:  []float32{1, 0, 0, 0},
		}
	}
	require.NoError(t, stores.Chunks.AddChunks(ctx, chunks...))
	return record
}

func TestReindexerReplacesChunks(t *testing.T) {
	stores, err := storagebadger.NewMemoryStores(4)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	record := seedDocument(t, stores, "fresh text to re-embed", 3)

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4

	var out bytes.Buffer
	reindexer := NewReindexer(stores.Documents, stores.Chunks, embedder, nil, &out)
	require.NoError(t, reindexer.Run(context.Background()))

	chunks, err := stores.Chunks.GetChunks(context.Background(), record.Id)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.NotEqual(t, "stale chunk", chunk.Text)
	}
	assert.Contains(t, out.String(), "Reindexing complete")
}

func TestReindexerEmptyStore(t *testing.T) {
	stores, err := storagebadger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	var out bytes.Buffer
	reindexer := NewReindexer(stores.Documents, stores.Chunks, mock.NewMockEmbedder(), nil, &out)
	require.NoError(t, reindexer.Run(context.Background()))
	assert.Contains(t, out.String(), "No documents")
}

func TestReindexerEmbeddingFailureKeepsOldChunks(t *testing.T) {
	stores, err := storagebadger.NewMemoryStores(4)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	record := seedDocument(t, stores, "text that will fail", 2)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("model offline")
	}

	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = time.Millisecond

	var out bytes.Buffer
	reindexer := NewReindexer(stores.Documents, stores.Chunks, embedder, config, &out)
	err = reindexer.Run(context.Background())
	require.Error(t, err)

	// The failed run must not have touched the existing index.
	chunks, err := stores.Chunks.GetChunks(context.Background(), record.Id)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "stale chunk", chunks[0].Text)
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryWithBackoff(ctx, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithBackoff(ctx, func() error {
		calls++
		return errors.New("always")
	}, 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	assert.ErrorIs(t, RetryWithBackoff(ctx, func() error { return nil }, 0, time.Millisecond),
		ErrInvalidMaxAttempts)
}

func TestProgressTrackerReporting(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTracker(&out, 10, 5)

	// Updates before Start are ignored.
	tracker.Update(3)
	assert.Empty(t, out.String())

	tracker.Start()
	tracker.Update(5)
	assert.Contains(t, out.String(), "5/10")

	tracker.Finish()
	assert.Contains(t, out.String(), "10/10")
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}
