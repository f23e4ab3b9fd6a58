package badger

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// The embedding dimension is fixed per deployment: either configured up
// front or adopted from the first write, and persisted so restarts keep
// rejecting mismatched vectors.
type ChunkRepository struct {
	backend *Backend

	mu  sync.Mutex
	dim int
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
// dimension 0 means "adopt the dimension of the first chunk written".
func NewChunkRepository(backend *Backend, dimension int) (*ChunkRepository, error) {
	r := &ChunkRepository{
		backend: backend,
		dim:     dimension,
	}

	// A previously persisted dimension wins over the zero default.
	err := backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(chunkDimensionKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stored, err := storage.UnmarshalID(val)
			if err != nil {
				return err
			}
			if r.dim == 0 {
				r.dim = int(stored)
			} else if r.dim != int(stored) {
				return storage.ErrDimensionMismatch
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *ChunkRepository) Close() error {
	return nil
}

// Dimension returns the configured embedding dimension.
func (r *ChunkRepository) Dimension() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dim
}

// AddChunks persists the given chunks, validating each embedding against
// the store's dimension.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.VectorChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	adopted := false
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if r.dim == 0 {
			r.dim = len(chunk.Embedding)
			adopted = true
		}
		if len(chunk.Embedding) != r.dim {
			return storage.ErrDimensionMismatch
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if adopted {
			dimValue := storage.MarshalID(core.ID(r.dim))
			if err := tx.Set([]byte(chunkDimensionKey), dimValue); err != nil {
				return err
			}
		}
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.DocumentId, chunk.ChunkIndex)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteChunks removes every chunk belonging to the given document.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, documentID core.ID) error {
	prefix := makeChunkDocumentPrefix(documentID)

	// Collect keys first; deleting while iterating invalidates the iterator.
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetChunks retrieves all chunks for a document, ordered by chunk index.
func (r *ChunkRepository) GetChunks(ctx context.Context, documentID core.ID) ([]*core.VectorChunk, error) {
	var results []*core.VectorChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeChunkDocumentPrefix(documentID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			var chunk *core.VectorChunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, chunk)
		}
		return nil
	}, false)
	return results, err
}

// FindSimilar scans all chunks and scores them against the query vector.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	var results []*core.ChunkMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(chunkPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}

			var chunk *core.VectorChunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Embedding) == 0 {
				continue
			}

			// Dot product equals cosine similarity for unit vectors,
			// which is what the pipeline stores.
			similarity := dotProduct(vector, chunk.Embedding)
			if similarity >= minSimilarity {
				results = append(results, &core.ChunkMatch{
					Chunk: chunk,
					Score: similarity,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.ChunkMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
