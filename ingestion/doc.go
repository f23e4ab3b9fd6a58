// Package ingestion implements the document ingestion pipeline: a
// bounded task queue feeding a worker pool that parses, deduplicates,
// chunks, embeds, and persists documents across the record and vector
// stores.
package ingestion
