// Package storage defines the repository interfaces for the two
// persistent stores and the binary serialization of their entities.
//
// The record store (DocumentRepository) is the source of truth for
// parsed document text and metadata. The vector store (ChunkRepository)
// holds embedding chunks for similarity search. They are independent
// databases; the ingestion package's Persister is the only component
// allowed to write to both, and it is responsible for keeping them
// consistent.
package storage
