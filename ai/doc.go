// Package ai defines the embedding service abstraction and its
// configuration. Concrete implementations live in the openai, ollama,
// and mock subpackages.
package ai
