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
	"fmt"
	"log/slog"

	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/storage"
)

// Persister is the only component that writes to both stores. The record
// store is written first so its hash index gates duplicates; if the
// chunk write then fails, the record is rolled back so neither store
// keeps a half-ingested document.
type Persister struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	logger    *slog.Logger
}

// NewPersister creates a persister over both stores.
func NewPersister(documents storage.DocumentRepository, chunks storage.ChunkRepository) *Persister {
	return &Persister{
		documents: documents,
		chunks:    chunks,
		logger:    slog.Default().With("component", "persister"),
	}
}

// Persist writes a document record and its chunks. Chunk DocumentId
// fields are filled in from the stored record's assigned ID.
func (p *Persister) Persist(ctx context.Context, record *core.DocumentRecord, chunks []*core.VectorChunk) (*core.DocumentRecord, error) {
	stored, err := p.documents.AddDocument(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}

	for _, chunk := range chunks {
		chunk.DocumentId = stored.Id
	}

	if err := p.chunks.AddChunks(ctx, chunks...); err != nil {
		p.rollback(ctx, stored.Id)
		return nil, fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}

	return stored, nil
}

// Remove deletes a document and its chunks. Chunks go first so a
// partial failure never leaves chunks behind without their record.
func (p *Persister) Remove(ctx context.Context, id core.ID) error {
	if err := p.chunks.DeleteChunks(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}
	if err := p.documents.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}
	return nil
}

// rollback undoes a record write whose chunk write failed. Rollback
// failures are logged, not returned: the original storage error is the
// one the caller needs to see.
func (p *Persister) rollback(ctx context.Context, id core.ID) {
	if err := p.chunks.DeleteChunks(ctx, id); err != nil {
		p.logger.Error("rollback: failed to delete chunks", "document_id", id, "err", err)
	}
	if err := p.documents.DeleteDocument(ctx, id); err != nil {
		p.logger.Error("rollback: failed to delete document record", "document_id", id, "err", err)
	}
}
