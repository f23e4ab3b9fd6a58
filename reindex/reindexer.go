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

// Package reindex rebuilds the vector store from the record store.
// Run it after switching embedding models: every document's text is
// re-chunked, re-embedded, and its old chunks replaced.
package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/papyrus-systems/papyrus/ai"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/ingestion"
	"github.com/papyrus-systems/papyrus/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// ChunkSize and ChunkOverlap control how document text is re-split.
	ChunkSize    int
	ChunkOverlap int

	// ReportInterval is how often to report progress (number of documents).
	ReportInterval int

	// MaxRetries is the maximum number of attempts for embedding calls.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:      1000,
		ChunkOverlap:   100,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reindexer walks every document record and rewrites its chunks.
type Reindexer struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	embedder  ai.Embedder
	chunker   *ingestion.Chunker
	config    *Config
	progress  io.Writer
}

// NewReindexer creates a reindexer.
// progress: where to write progress output (typically os.Stderr).
func NewReindexer(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reindexer{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		chunker:   ingestion.NewChunker(config.ChunkSize, config.ChunkOverlap),
		config:    config,
		progress:  progress,
	}
}

// Run re-embeds every document in the record store.
func (r *Reindexer) Run(ctx context.Context) error {
	records, err := r.documents.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintf(r.progress, "No documents found in record store\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Reindexing %d documents\n", len(records))

	tracker := NewProgressTracker(r.progress, len(records), r.config.ReportInterval)
	tracker.Start()

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reindexDocument(ctx, record); err != nil {
			return fmt.Errorf("document %d (%q): %w", record.Id, record.Title, err)
		}
		tracker.Update(i + 1)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindexing complete. Processed %d documents in %v (%.1f docs/sec)\n",
		len(records), elapsed.Round(time.Second), float64(len(records))/elapsed.Seconds())

	return nil
}

// reindexDocument replaces one document's chunks with freshly embedded
// ones. The old chunks are deleted only after the new embeddings exist,
// so an embedding failure leaves the previous index intact.
func (r *Reindexer) reindexDocument(ctx context.Context, record *core.DocumentRecord) error {
	pieces, err := r.chunker.Split(record.Text)
	if err != nil {
		return fmt.Errorf("failed to chunk text: %w", err)
	}
	if len(pieces) == 0 {
		pieces = []string{record.Text}
	}

	var vectors [][]float32
	err = RetryWithBackoff(ctx, func() error {
		var embedErr error
		vectors, embedErr = r.embedder.EmbedTexts(ctx, pieces)
		return embedErr
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.config.MaxRetries, err)
	}
	if len(vectors) != len(pieces) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(pieces), len(vectors))
	}

	fresh := make([]*core.VectorChunk, len(pieces))
	for i, piece := range pieces {
		fresh[i] = &core.VectorChunk{
			DocumentId: record.Id,
			ChunkIndex: i,
			Text:       piece,
			Embedding:  ingestion.NormalizeVector(vectors[i]),
		}
	}

	if err := r.chunks.DeleteChunks(ctx, record.Id); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if err := r.chunks.AddChunks(ctx, fresh...); err != nil {
		return fmt.Errorf("failed to write new chunks: %w", err)
	}
	return nil
}
