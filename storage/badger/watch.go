package badger

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/storage"
)

// WatchRepository implements storage.WatchRepository for BadgerDB.
// Entries share the record store's database so blacklists survive
// restarts without a third store.
type WatchRepository struct {
	backend *Backend
}

var _ storage.WatchRepository = (*WatchRepository)(nil)

// NewWatchRepository creates a new WatchRepository.
func NewWatchRepository(backend *Backend) *WatchRepository {
	return &WatchRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *WatchRepository) Close() error {
	return nil
}

// PutWatchEntry inserts or overwrites the entry for its path.
func (r *WatchRepository) PutWatchEntry(ctx context.Context, entry *core.WatchEntry) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeWatchEntryKey(entry.Path)
		if err := tx.Set(key, storage.MarshalWatchEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetWatchEntry retrieves the entry for a path.
func (r *WatchRepository) GetWatchEntry(ctx context.Context, path string) (*core.WatchEntry, error) {
	var result *core.WatchEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeWatchEntryKey(path))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			result, err = storage.UnmarshalWatchEntry(val)
			return err
		})
	}, false)
	return result, err
}

// ListWatchEntries returns all known entries.
func (r *WatchRepository) ListWatchEntries(ctx context.Context) ([]*core.WatchEntry, error) {
	var results []*core.WatchEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(watchEntryPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			var entry *core.WatchEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalWatchEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	}, false)
	return results, err
}

// DeleteWatchEntry removes the entry for a path.
func (r *WatchRepository) DeleteWatchEntry(ctx context.Context, path string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeWatchEntryKey(path)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
