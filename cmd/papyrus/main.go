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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/papyrus-systems/papyrus"
	"github.com/papyrus-systems/papyrus/ai"
	"github.com/papyrus-systems/papyrus/ai/ollama"
	"github.com/papyrus-systems/papyrus/ai/openai"
	"github.com/papyrus-systems/papyrus/config"
	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/ingestion"
	"github.com/papyrus-systems/papyrus/reindex"
	"github.com/papyrus-systems/papyrus/storage/badger"
)

func main() {
	app := &cli.App{
		Name:  "papyrus",
		Usage: "Document ingestion and semantic search engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion engine with the directory watcher",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "watch-root",
						Usage: "Directory to watch for new documents (overrides PAPYRUS_WATCH_ROOT)",
					},
					&cli.DurationFlag{
						Name:  "watch-interval",
						Usage: "Poll interval for the watcher (overrides PAPYRUS_WATCH_INTERVAL)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest one or more document files",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
			},
			{
				Name:      "search",
				Usage:     "Search ingested documents semantically",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max-hits",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
				},
			},
			{
				Name:      "fetch",
				Usage:     "Fetch a full document by ID or title",
				ArgsUsage: "ID|TITLE",
				Action:    fetchCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-chunk and re-embed every stored document",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the env file (when present) and configures logging.
func setup(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", c.String("log-level"))
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg := config.Load()
	cfg.WatchEnabled = true
	if root := c.String("watch-root"); root != "" {
		cfg.WatchRoot = root
	}
	if interval := c.Duration("watch-interval"); interval > 0 {
		cfg.WatchInterval = interval
	}

	engine, err := papyrus.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Watcher().Start()
	slog.Info("papyrus serving", "watch_root", cfg.WatchRoot, "interval", cfg.WatchInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down")
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}

	engine, err := papyrus.NewEngine(config.Load())
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	taskIDs := make([]string, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		taskID, err := engine.Pipeline().Submit(ctx, &ingestion.Submission{
			Source: core.SourceUpload,
			Path:   path,
		})
		if err != nil {
			return fmt.Errorf("failed to submit %s: %w", path, err)
		}
		taskIDs = append(taskIDs, taskID)
	}

	// Engine.Close drains the pipeline; poll so we can report outcomes.
	for i, taskID := range taskIDs {
		task := awaitTask(engine, taskID, 10*time.Minute)
		path := c.Args().Get(i)
		switch {
		case task == nil:
			fmt.Printf("%s: timed out\n", path)
		case task.Status == core.TaskCompleted:
			fmt.Printf("%s: document %d (%s)\n", path, task.DocumentID, task.Title)
		default:
			fmt.Printf("%s: failed: %s\n", path, task.Error)
		}
	}
	return nil
}

func awaitTask(engine *papyrus.Engine, taskID string, timeout time.Duration) *core.Task {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := engine.Tracker().Get(taskID)
		if err == nil && task.Status.Terminal() {
			return task
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	engine, err := papyrus.NewEngine(config.Load())
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Searcher().FindSimilar(context.Background(), query, c.Int("max-hits"))
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, result := range results {
		fmt.Printf("[%.3f] #%d %s (chunk %d)\n\t%s\n",
			result.Score, result.DocumentId, result.Title, result.ChunkIndex,
			firstLine(result.Text))
	}
	return nil
}

func fetchCommand(c *cli.Context) error {
	ref := c.Args().First()
	if ref == "" {
		return fmt.Errorf("a document ID or title is required")
	}

	engine, err := papyrus.NewEngine(config.Load())
	if err != nil {
		return err
	}
	defer engine.Close()

	record, err := engine.Searcher().FetchDocument(context.Background(), ref)
	if err != nil {
		return err
	}

	fmt.Printf("# %d: %s\n", record.Id, record.Title)
	if record.SourcePath != "" {
		fmt.Printf("source: %s\n", record.SourcePath)
	}
	fmt.Printf("ingested: %s\n\n", record.CreatedAt.Format(time.RFC3339))
	fmt.Println(record.Text)
	return nil
}

func reindexCommand(c *cli.Context) error {
	cfg := config.Load()

	recordBackend, err := badger.OpenBackend(cfg.RecordStorePath(), false,
		slog.Default().With("store", "records"))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer recordBackend.Close()

	vectorBackend, err := badger.OpenBackend(cfg.VectorStorePath(), false,
		slog.Default().With("store", "vectors"))
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer vectorBackend.Close()

	documents, err := badger.NewDocumentRepository(recordBackend)
	if err != nil {
		return err
	}
	defer documents.Close()

	chunks, err := badger.NewChunkRepository(vectorBackend, cfg.EmbeddingDim)
	if err != nil {
		return err
	}

	aiCfg := ai.NewConfig(
		ai.WithBackend(ai.Backend(cfg.EmbeddingBackend)),
		ai.WithHost(cfg.EmbeddingHost),
		ai.WithModel(cfg.EmbeddingModel),
	)
	var embedder ai.Embedder
	if aiCfg.Backend == ai.BackendRemote {
		embedder, err = openai.NewEmbedder(aiCfg)
	} else {
		embedder, err = ollama.NewEmbedder(aiCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	reindexCfg := &reindex.Config{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reindexCfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reindexer := reindex.NewReindexer(documents, chunks, embedder, reindexCfg, os.Stderr)
	return reindexer.Run(context.Background())
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	if len(text) > 120 {
		text = text[:117] + "..."
	}
	return text
}
