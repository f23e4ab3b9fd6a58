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

// Package papyrus wires the document ingestion system together: two
// embedded stores, the parser registry, the embedding service, the
// pipeline, the directory watcher, and search.
package papyrus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/papyrus-systems/papyrus/ai"
	"github.com/papyrus-systems/papyrus/ai/ollama"
	"github.com/papyrus-systems/papyrus/ai/openai"
	"github.com/papyrus-systems/papyrus/config"
	"github.com/papyrus-systems/papyrus/ingestion"
	"github.com/papyrus-systems/papyrus/parser"
	"github.com/papyrus-systems/papyrus/parser/markdown"
	"github.com/papyrus-systems/papyrus/parser/pdf"
	"github.com/papyrus-systems/papyrus/search"
	"github.com/papyrus-systems/papyrus/storage"
	"github.com/papyrus-systems/papyrus/storage/badger"
	"github.com/papyrus-systems/papyrus/watcher"
)

// Engine is the assembled ingestion system.
type Engine struct {
	recordBackend *badger.Backend
	vectorBackend *badger.Backend
	documents     storage.DocumentRepository
	chunks        storage.ChunkRepository
	watchEntries  storage.WatchRepository
	embedder      ai.Embedder
	registry      *parser.Registry
	pipeline      *ingestion.Pipeline
	tracker       *ingestion.StatusTracker
	metrics       *ingestion.Metrics
	searcher      *search.Searcher
	watcher       *watcher.Watcher
	logger        *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	embedder ai.Embedder
	inMemory bool
}

// WithEmbedder supplies a pre-built embedder instead of constructing one
// from the configured backend. Tests use this to inject mocks.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithInMemoryStores keeps both stores in memory. Nothing survives Close.
func WithInMemoryStores() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// NewEngine assembles the system from configuration. The watcher is
// created only when cfg.WatchEnabled is set; call Watcher to start it.
func NewEngine(cfg config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	embedder := options.embedder
	if embedder == nil {
		built, err := buildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		embedder = built
	}

	recordPath, vectorPath := cfg.RecordStorePath(), cfg.VectorStorePath()
	if options.inMemory {
		recordPath, vectorPath = "", ""
	}

	recordBackend, err := badger.OpenBackend(recordPath, options.inMemory,
		slog.Default().With("store", "records"))
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	vectorBackend, err := badger.OpenBackend(vectorPath, options.inMemory,
		slog.Default().With("store", "vectors"))
	if err != nil {
		recordBackend.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	documents, err := badger.NewDocumentRepository(recordBackend)
	if err != nil {
		vectorBackend.Close()
		recordBackend.Close()
		return nil, err
	}
	chunks, err := badger.NewChunkRepository(vectorBackend, cfg.EmbeddingDim)
	if err != nil {
		documents.Close()
		vectorBackend.Close()
		recordBackend.Close()
		return nil, err
	}
	watchEntries := badger.NewWatchRepository(recordBackend)

	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())
	registry.Register(pdf.NewParser())

	tracker := ingestion.NewStatusTracker()
	metrics := ingestion.NewMetrics()

	e := &Engine{
		recordBackend: recordBackend,
		vectorBackend: vectorBackend,
		documents:     documents,
		chunks:        chunks,
		watchEntries:  watchEntries,
		embedder:      embedder,
		registry:      registry,
		tracker:       tracker,
		metrics:       metrics,
		logger:        slog.Default(),
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithObserver(tracker),
		ingestion.WithMetrics(metrics),
		ingestion.WithWorkers(cfg.Workers),
		ingestion.WithQueueCapacity(cfg.QueueCapacity),
		ingestion.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
	}

	if cfg.WatchEnabled {
		w, err := watcher.NewWatcher(cfg.WatchRoot, registry, &deferredSubmitter{engine: e},
			documents, watchEntries,
			watcher.WithInterval(cfg.WatchInterval),
			watcher.WithMaxAttempts(cfg.MaxAttempts),
			watcher.WithMaxDepth(cfg.MaxWatchDepth),
		)
		if err != nil {
			e.closeStores()
			return nil, err
		}
		e.watcher = w
		pipelineOpts = append(pipelineOpts, ingestion.WithObserver(w))
	}

	pipeline, err := ingestion.NewPipeline(registry, embedder, documents, chunks, pipelineOpts...)
	if err != nil {
		e.closeStores()
		return nil, err
	}
	e.pipeline = pipeline

	searcher, err := search.NewSearcher(documents, chunks, embedder,
		search.WithMinSimilarity(float32(cfg.MinSimilarity)))
	if err != nil {
		pipeline.Shutdown(context.Background())
		e.closeStores()
		return nil, err
	}
	e.searcher = searcher

	return e, nil
}

// buildEmbedder constructs the embedder named by the configuration,
// wrapped with retry.
func buildEmbedder(cfg config.Config) (ai.Embedder, error) {
	aiCfg := ai.NewConfig(
		ai.WithBackend(ai.Backend(cfg.EmbeddingBackend)),
		ai.WithHost(cfg.EmbeddingHost),
		ai.WithModel(cfg.EmbeddingModel),
		ai.WithDimension(cfg.EmbeddingDim),
		ai.WithMaxRetries(cfg.EmbedMaxRetries),
		ai.WithRetryInterval(cfg.EmbedRetryDelay),
	)

	var (
		embedder ai.Embedder
		err      error
	)
	switch aiCfg.Backend {
	case ai.BackendRemote:
		embedder, err = openai.NewEmbedder(aiCfg)
	default:
		embedder, err = ollama.NewEmbedder(aiCfg)
	}
	if err != nil {
		return nil, err
	}

	return ai.NewRetryingEmbedder(embedder, aiCfg.MaxRetries, aiCfg.RetryInterval), nil
}

// deferredSubmitter lets the watcher be constructed before the pipeline
// while still submitting to it.
type deferredSubmitter struct {
	engine *Engine
}

func (d *deferredSubmitter) Submit(ctx context.Context, sub *ingestion.Submission) (string, error) {
	return d.engine.pipeline.Submit(ctx, sub)
}

// Pipeline returns the ingestion pipeline.
func (e *Engine) Pipeline() *ingestion.Pipeline {
	return e.pipeline
}

// Tracker returns the task status tracker.
func (e *Engine) Tracker() *ingestion.StatusTracker {
	return e.tracker
}

// Metrics returns the pipeline metrics set.
func (e *Engine) Metrics() *ingestion.Metrics {
	return e.metrics
}

// Searcher returns the document searcher.
func (e *Engine) Searcher() *search.Searcher {
	return e.searcher
}

// Watcher returns the directory watcher, or nil when watching is
// disabled.
func (e *Engine) Watcher() *watcher.Watcher {
	return e.watcher
}

// Documents returns the record store repository.
func (e *Engine) Documents() storage.DocumentRepository {
	return e.documents
}

// Chunks returns the vector store repository.
func (e *Engine) Chunks() storage.ChunkRepository {
	return e.chunks
}

// Embedder returns the configured embedding service.
func (e *Engine) Embedder() ai.Embedder {
	return e.embedder
}

// Close shuts the system down: the watcher stops feeding the pipeline,
// the pipeline drains, then the stores close.
func (e *Engine) Close() error {
	if e.watcher != nil {
		e.watcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.pipeline.Shutdown(ctx); err != nil {
		e.logger.Error("pipeline shutdown did not drain cleanly", "err", err)
	}

	return e.closeStores()
}

func (e *Engine) closeStores() error {
	if err := e.chunks.Close(); err != nil {
		e.logger.Error("error closing chunk repository", "err", err)
	}
	if err := e.documents.Close(); err != nil {
		e.logger.Error("error closing document repository", "err", err)
	}
	if err := e.vectorBackend.Close(); err != nil {
		e.logger.Error("error closing vector store", "err", err)
		return err
	}
	if err := e.recordBackend.Close(); err != nil {
		e.logger.Error("error closing record store", "err", err)
		return err
	}
	return nil
}
