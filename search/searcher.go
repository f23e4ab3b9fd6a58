package search

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/papyrus-systems/papyrus/ai"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/ingestion"
	"github.com/papyrus-systems/papyrus/storage"
)

// DefaultMinSimilarity is the similarity floor applied when the caller
// does not supply one.
const DefaultMinSimilarity float32 = 0.60

// Searcher provides semantic search over ingested documents.
type Searcher struct {
	documents     storage.DocumentRepository
	chunks        storage.ChunkRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity overrides the similarity floor for matches.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		documents:     documents,
		chunks:        chunks,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar searches for document chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score. Every result
// is guaranteed to reference a live document record.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	ingestion.NormalizeVector(embedding)

	matches, err := s.chunks.FindSimilar(ctx, embedding, s.minSimilarity, maxHits)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}

	// Join against the record store; document titles come from there and
	// chunks whose record vanished mid-search are dropped.
	titles := make(map[core.ID]string)
	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		chunk := match.Chunk
		title, known := titles[chunk.DocumentId]
		if !known {
			record, err := s.documents.GetDocument(ctx, chunk.DocumentId)
			if err == storage.ErrNotFound {
				s.logger.Warn("chunk references missing document, skipping",
					"document_id", chunk.DocumentId, "chunk_index", chunk.ChunkIndex)
				continue
			}
			if err != nil {
				return nil, err
			}
			title = record.Title
			titles[chunk.DocumentId] = title
		}

		score := match.Score
		if containsAllQueryWords(chunk.Text, query) {
			score += 0.3
		}

		results = append(results, &core.SearchResult{
			DocumentId: chunk.DocumentId,
			Title:      title,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
			Score:      score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if maxHits > 0 && len(results) > maxHits {
		results = results[:maxHits]
	}

	return results, nil
}

// FetchDocument resolves a reference to a full document record. Numeric
// references are treated as document IDs first, then as titles.
func (s *Searcher) FetchDocument(ctx context.Context, ref string) (*core.DocumentRecord, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		record, err := s.documents.GetDocument(ctx, core.ID(id))
		if err == nil {
			return record, nil
		}
		if err != storage.ErrNotFound {
			return nil, err
		}
	}
	return s.documents.GetDocumentByTitle(ctx, ref)
}
