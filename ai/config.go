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

package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend selects which embedding service implementation to use.
type Backend string

const (
	// BackendLocal talks to a local Ollama server over its native API.
	BackendLocal Backend = "local"

	// BackendRemote talks to any OpenAI-compatible embeddings endpoint.
	BackendRemote Backend = "remote"
)

// Config holds configuration for embedding service providers.
type Config struct {
	// Backend selects the embedding service implementation.
	// Default: BackendLocal
	Backend Backend

	// Host is the base URL of the embedding service.
	// Example: "http://localhost:11434" for a local Ollama server.
	Host string

	// Model is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	Model string

	// Dimension is the expected embedding dimension. Zero means the
	// dimension is adopted from the first vector the service returns.
	Dimension int

	// MaxRetries bounds how many times a failed embedding call is retried.
	// Default: 3
	MaxRetries int

	// RetryInterval is the initial delay between retries; subsequent
	// delays back off exponentially.
	// Default: 500ms
	RetryInterval time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend selects the embedding backend.
func WithBackend(backend Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithDimension sets the expected embedding dimension.
func WithDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dim
	}
}

// WithMaxRetries sets the retry ceiling for failed embedding calls.
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRetryInterval sets the initial retry delay.
func WithRetryInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryInterval = d
	}
}

// DefaultConfig returns a Config with sensible defaults for a local Ollama server.
func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendLocal,
		Host:          "http://localhost:11434",
		Model:         "nomic-embed-text",
		MaxRetries:    3,
		RetryInterval: 500 * time.Millisecond,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// For the remote backend it adds the /v1 suffix required by
// OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.Backend == BackendRemote && c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/") + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Backend {
	case BackendLocal, BackendRemote:
	default:
		return fmt.Errorf("ai config: unknown backend %q", c.Backend)
	}
	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.Dimension < 0 {
		return errors.New("ai config: Dimension must not be negative")
	}
	if c.MaxRetries < 0 {
		return errors.New("ai config: MaxRetries must not be negative")
	}
	return nil
}
