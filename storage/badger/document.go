package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// AddDocument persists a document record together with its hash, title,
// and source-path lookup indices. The content hash is unique: inserting
// a record whose hash is already indexed returns ErrDuplicateKey.
func (r *DocumentRepository) AddDocument(ctx context.Context, record *core.DocumentRecord) (*core.DocumentRecord, error) {
	if err := core.ValidateDocumentRecord(record); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Content hash uniqueness gate
		hashKey := makeDocumentHashKey(record.ContentHash)
		if _, err := tx.Get(hashKey); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if record.Id == 0 {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			record.Id = core.ID(nextID)
		}

		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}

		key := makeDocumentKey(record.Id)
		if err := tx.Set(key, storage.MarshalDocumentRecord(record)); err != nil {
			return err
		}

		idValue := storage.MarshalID(record.Id)
		if err := tx.Set(hashKey, idValue); err != nil {
			return err
		}
		if record.Title != "" {
			if err := tx.Set(makeDocumentTitleKey(record.Title), idValue); err != nil {
				return err
			}
		}
		if record.SourcePath != "" {
			if err := tx.Set(makeDocumentSourceKey(record.SourcePath), idValue); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return record, err
}

// DeleteDocument removes a document record and its lookup indices.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		record, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}

		if err := tx.Delete(makeDocumentHashKey(record.ContentHash)); err != nil {
			return err
		}
		if record.Title != "" {
			if err := tx.Delete(makeDocumentTitleKey(record.Title)); err != nil {
				return err
			}
		}
		if record.SourcePath != "" {
			if err := tx.Delete(makeDocumentSourceKey(record.SourcePath)); err != nil {
				return err
			}
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a single record by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.DocumentRecord, error) {
	var result *core.DocumentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetDocumentByHash retrieves the record with the given content hash.
func (r *DocumentRepository) GetDocumentByHash(ctx context.Context, contentHash string) (*core.DocumentRecord, error) {
	return r.getByIndex(makeDocumentHashKey(contentHash))
}

// GetDocumentByTitle retrieves the record with the given title.
func (r *DocumentRepository) GetDocumentByTitle(ctx context.Context, title string) (*core.DocumentRecord, error) {
	return r.getByIndex(makeDocumentTitleKey(title))
}

// GetDocumentBySourcePath retrieves the record ingested from the given path.
func (r *DocumentRepository) GetDocumentBySourcePath(ctx context.Context, path string) (*core.DocumentRecord, error) {
	return r.getByIndex(makeDocumentSourceKey(path))
}

// ListDocuments returns all document records, ordered by ID.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.DocumentRecord, error) {
	var results []*core.DocumentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(documentPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			var record *core.DocumentRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalDocumentRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}

// getByIndex resolves an index key to its document record.
func (r *DocumentRepository) getByIndex(indexKey []byte) (*core.DocumentRecord, error) {
	var result *core.DocumentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(indexKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		var id core.ID
		if err := item.Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}

		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// readDocument reads a document record from the transaction.
// Returns (nil, nil) when the key does not exist.
func readDocument(tx *badger.Txn, key []byte) (*core.DocumentRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.DocumentRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalDocumentRecord(val)
		return unmarshalErr
	})
	return record, err
}
