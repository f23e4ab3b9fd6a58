package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyrus-systems/papyrus/core"
)

func TestDocumentRecordRoundTrip(t *testing.T) {
	record := &core.DocumentRecord{
		Id:          42,
		Title:       "Release Notes",
		SourcePath:  "/watch/release-notes.md",
		ContentHash: core.HashContent("release notes body"),
		Text:        "release notes body",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	got, err := UnmarshalDocumentRecord(MarshalDocumentRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record.Id, got.Id)
	assert.Equal(t, record.Title, got.Title)
	assert.Equal(t, record.SourcePath, got.SourcePath)
	assert.Equal(t, record.ContentHash, got.ContentHash)
	assert.Equal(t, record.Text, got.Text)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
}

func TestChunkRoundTrip(t *testing.T) {
	chunk := &core.VectorChunk{
		DocumentId: 7,
		ChunkIndex: 3,
		Text:       "chunk body",
		Embedding:  []float32{0.25, -0.5, 0.75, 1.0},
	}

	got, err := UnmarshalChunk(MarshalChunk(chunk))
	require.NoError(t, err)
	assert.Equal(t, chunk.DocumentId, got.DocumentId)
	assert.Equal(t, chunk.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, chunk.Embedding, got.Embedding)
}

func TestWatchEntryRoundTrip(t *testing.T) {
	entry := &core.WatchEntry{
		Path:        "/watch/broken.pdf",
		Attempts:    10,
		Blacklisted: true,
		LastSeenAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	got, err := UnmarshalWatchEntry(MarshalWatchEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry.Path, got.Path)
	assert.Equal(t, entry.Attempts, got.Attempts)
	assert.True(t, got.Blacklisted)
	assert.True(t, entry.LastSeenAt.Equal(got.LastSeenAt))
}

func TestUnmarshalTruncated(t *testing.T) {
	data := MarshalDocumentRecord(&core.DocumentRecord{
		Id:          1,
		ContentHash: "abc",
		Text:        "text",
	})

	_, err := UnmarshalDocumentRecord(data[:len(data)/2])
	assert.Error(t, err)

	_, err = UnmarshalChunk(nil)
	assert.Error(t, err)
}

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []core.ID{0, 1, 127, 128, 1 << 40} {
		got, err := UnmarshalID(MarshalID(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}
