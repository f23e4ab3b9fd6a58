package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/storage"
)

func newTestChunkRepository(t *testing.T, dimension int) *ChunkRepository {
	t.Helper()

	backend, err := OpenBackend("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	repo, err := NewChunkRepository(backend, dimension)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testChunk(docID core.ID, index int, embedding []float32) *core.VectorChunk {
	return &core.VectorChunk{
		DocumentId: docID,
		ChunkIndex: index,
		Text:       "chunk text",
		Embedding:  embedding,
	}
}

func TestChunkRepository_AddAndGet(t *testing.T) {
	repo := newTestChunkRepository(t, 3)
	ctx := context.Background()

	err := repo.AddChunks(ctx,
		testChunk(1, 0, []float32{1, 0, 0}),
		testChunk(1, 1, []float32{0, 1, 0}),
		testChunk(2, 0, []float32{0, 0, 1}),
	)
	require.NoError(t, err)

	chunks, err := repo.GetChunks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestChunkRepository_DimensionMismatch(t *testing.T) {
	repo := newTestChunkRepository(t, 3)

	err := repo.AddChunks(context.Background(), testChunk(1, 0, []float32{1, 0}))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestChunkRepository_AdoptsDimension(t *testing.T) {
	backend, err := OpenBackend("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	repo, err := NewChunkRepository(backend, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.Dimension())

	err = repo.AddChunks(context.Background(), testChunk(1, 0, []float32{1, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 4, repo.Dimension())

	err = repo.AddChunks(context.Background(), testChunk(1, 1, []float32{1, 0}))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	// The adopted dimension survives a reopen over the same backend.
	reopened, err := NewChunkRepository(backend, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, reopened.Dimension())
}

func TestChunkRepository_DeleteChunks(t *testing.T) {
	repo := newTestChunkRepository(t, 2)
	ctx := context.Background()

	err := repo.AddChunks(ctx,
		testChunk(1, 0, []float32{1, 0}),
		testChunk(1, 1, []float32{0, 1}),
		testChunk(2, 0, []float32{1, 0}),
	)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteChunks(ctx, 1))

	chunks, err := repo.GetChunks(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Other documents are untouched.
	chunks, err = repo.GetChunks(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	// Deleting a document with no chunks is not an error.
	assert.NoError(t, repo.DeleteChunks(ctx, 99))
}

func TestChunkRepository_FindSimilar(t *testing.T) {
	repo := newTestChunkRepository(t, 2)
	ctx := context.Background()

	err := repo.AddChunks(ctx,
		testChunk(1, 0, []float32{1, 0}),
		testChunk(1, 1, []float32{0, 1}),
		testChunk(2, 0, []float32{0.7071, 0.7071}),
	)
	require.NoError(t, err)

	matches, err := repo.FindSimilar(ctx, []float32{1, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, core.ID(1), matches[0].Chunk.DocumentId)
	assert.Equal(t, 0, matches[0].Chunk.ChunkIndex)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-6)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	matches, err = repo.FindSimilar(ctx, []float32{1, 0}, 0.0, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
