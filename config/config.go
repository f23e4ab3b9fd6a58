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

// Package config reads runtime settings from the environment. Every
// value has a default suitable for a single-machine deployment with a
// local Ollama server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all runtime settings.
type Config struct {
	DataDir  string
	LogLevel string

	EmbeddingBackend string
	EmbeddingHost    string
	EmbeddingModel   string
	EmbeddingDim     int

	ChunkSize    int
	ChunkOverlap int

	Workers       int
	QueueCapacity int

	WatchEnabled  bool
	WatchRoot     string
	WatchInterval time.Duration
	MaxAttempts   int
	MaxWatchDepth int

	SearchMaxHits int
	MinSimilarity float64

	EmbedMaxRetries int
	EmbedRetryDelay time.Duration
}

// Load reads configuration from the environment, falling back to
// defaults for anything unset or unparsable.
func Load() Config {
	return Config{
		DataDir:  mustEnv("PAPYRUS_DATA_DIR", "./data"),
		LogLevel: mustEnv("PAPYRUS_LOG_LEVEL", "info"),

		EmbeddingBackend: mustEnv("PAPYRUS_EMBEDDING_BACKEND", "local"),
		EmbeddingHost:    mustEnv("PAPYRUS_EMBEDDING_HOST", "http://localhost:11434"),
		EmbeddingModel:   mustEnv("PAPYRUS_EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:     mustEnvInt("PAPYRUS_EMBEDDING_DIM", 0),

		ChunkSize:    mustEnvInt("PAPYRUS_CHUNK_SIZE", 1000),
		ChunkOverlap: mustEnvInt("PAPYRUS_CHUNK_OVERLAP", 100),

		Workers:       mustEnvInt("PAPYRUS_WORKERS", 4),
		QueueCapacity: mustEnvInt("PAPYRUS_QUEUE_CAPACITY", 100),

		WatchEnabled:  mustEnvBool("PAPYRUS_WATCH_ENABLED", false),
		WatchRoot:     mustEnv("PAPYRUS_WATCH_ROOT", "./watch"),
		WatchInterval: mustEnvDuration("PAPYRUS_WATCH_INTERVAL", 10*time.Second),
		MaxAttempts:   mustEnvInt("PAPYRUS_MAX_PROCESS_ATTEMPTS", 10),
		MaxWatchDepth: mustEnvInt("PAPYRUS_MAX_WATCH_DEPTH", 16),

		SearchMaxHits: mustEnvInt("PAPYRUS_SEARCH_MAX_HITS", 10),
		MinSimilarity: mustEnvFloat("PAPYRUS_MIN_SIMILARITY", 0.60),

		EmbedMaxRetries: mustEnvInt("PAPYRUS_EMBED_MAX_RETRIES", 3),
		EmbedRetryDelay: mustEnvDuration("PAPYRUS_EMBED_RETRY_DELAY", 500*time.Millisecond),
	}
}

// RecordStorePath is the record store database directory.
func (c Config) RecordStorePath() string {
	return filepath.Join(c.DataDir, "records")
}

// VectorStorePath is the vector store database directory.
func (c Config) VectorStorePath() string {
	return filepath.Join(c.DataDir, "vectors")
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
