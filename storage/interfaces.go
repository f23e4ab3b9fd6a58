package storage

import (
	"context"

	"github.com/papyrus-systems/papyrus/core"
)

// DocumentRepository provides operations for the record store, the
// canonical home of parsed document text and metadata.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// AddDocument persists a document record.
	// For records with Id=0, generates a new ID from sequence.
	// Sets CreatedAt if not already set.
	// Returns ErrDuplicateKey if a record with the same content hash exists.
	AddDocument(ctx context.Context, record *core.DocumentRecord) (*core.DocumentRecord, error)

	// DeleteDocument removes a document record and its lookup indices.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// GetDocument retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.DocumentRecord, error)

	// GetDocumentByHash retrieves the record with the given content hash.
	// Returns ErrNotFound if no record matches.
	GetDocumentByHash(ctx context.Context, contentHash string) (*core.DocumentRecord, error)

	// GetDocumentByTitle retrieves the first record with the given title.
	// Returns ErrNotFound if no record matches.
	GetDocumentByTitle(ctx context.Context, title string) (*core.DocumentRecord, error)

	// GetDocumentBySourcePath retrieves the record ingested from the given
	// filesystem path. Returns ErrNotFound if no record matches.
	GetDocumentBySourcePath(ctx context.Context, path string) (*core.DocumentRecord, error)

	// ListDocuments returns all document records, ordered by ID.
	ListDocuments(ctx context.Context) ([]*core.DocumentRecord, error)

	// Close releases repository resources.
	Close() error
}

// ChunkRepository provides operations for the vector store.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// AddChunks persists the given chunks.
	// Returns ErrDimensionMismatch if any embedding does not match the
	// store's configured dimension.
	AddChunks(ctx context.Context, chunks ...*core.VectorChunk) error

	// DeleteChunks removes every chunk belonging to the given document.
	// Deleting chunks for an unknown document is not an error.
	DeleteChunks(ctx context.Context, documentID core.ID) error

	// GetChunks retrieves all chunks for a document, ordered by chunk index.
	GetChunks(ctx context.Context, documentID core.ID) ([]*core.VectorChunk, error)

	// FindSimilar scans the store for chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results,
	// ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error)

	// Dimension returns the configured embedding dimension, or 0 if the
	// store accepts the first dimension it sees.
	Dimension() int

	// Close releases repository resources.
	Close() error
}

// WatchRepository persists the directory watcher's per-path bookkeeping.
// The watcher is the only writer; entries survive process restarts so a
// blacklist is not forgotten.
type WatchRepository interface {
	// PutWatchEntry inserts or overwrites the entry for its path.
	PutWatchEntry(ctx context.Context, entry *core.WatchEntry) error

	// GetWatchEntry retrieves the entry for a path.
	// Returns ErrNotFound if the path has never been recorded.
	GetWatchEntry(ctx context.Context, path string) (*core.WatchEntry, error)

	// ListWatchEntries returns all known entries.
	ListWatchEntries(ctx context.Context) ([]*core.WatchEntry, error)

	// DeleteWatchEntry removes the entry for a path. This is the explicit
	// reset that clears a blacklist.
	DeleteWatchEntry(ctx context.Context, path string) error

	// Close releases repository resources.
	Close() error
}
