package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for persisted entities.
// Document IDs are generated from database sequences.
type ID uint64

// HashContent computes a deterministic content hash of parsed text using
// BLAKE2b. Identical text always produces identical hashes, which is what
// the ingestion pipeline uses to detect duplicate documents.
func HashContent(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// TaskSource identifies how a task entered the pipeline.
type TaskSource string

const (
	// SourceUpload marks tasks submitted directly through the API surface.
	SourceUpload TaskSource = "upload"
	// SourceWatch marks tasks discovered by the directory watcher.
	SourceWatch TaskSource = "watch"
)

// TaskStatus is the lifecycle state of an ingestion task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to next.
// The lifecycle is strictly forward: queued -> processing -> {completed, failed}.
// Self-transitions while processing are allowed for progress updates.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskQueued:
		return next == TaskProcessing || next == TaskFailed
	case TaskProcessing:
		return next == TaskProcessing || next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Task is one unit of ingestion work tracked through its lifecycle.
type Task struct {
	ID         string
	Source     TaskSource
	PayloadRef string            // Path to the bytes to ingest
	Title      string            // Human-readable label, usually the filename stem
	Metadata   map[string]string // Producer-supplied metadata (filename, size, ...)
	Status     TaskStatus
	Attempts   int
	Progress   float64 // 0-100, meaningful only while processing
	Error      string  // Populated only when Status is TaskFailed
	DocumentID ID      // Populated on completion
	QueuedAt   time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of the task. Snapshots hand out clones so
// readers never observe concurrent mutation.
func (t *Task) Clone() *Task {
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// DocumentRecord is the canonical parsed output of one ingested document.
type DocumentRecord struct {
	Id          ID
	Title       string
	SourcePath  string // Where the bytes came from, indexed for watcher lookups
	ContentHash string // BLAKE2b hash of Text, unique across all records
	Text        string // Full parsed markdown
	CreatedAt   time.Time
}

// VectorChunk is one retrievable unit of a document's embedding.
type VectorChunk struct {
	DocumentId ID
	ChunkIndex int // Zero-based position within the document
	Text       string
	Embedding  []float32 // Unit-normalized, fixed dimension per deployment
}

// WatchEntry is the watcher's bookkeeping for one filesystem path.
// Blacklisted is monotonic: once set it stays set until an explicit reset.
type WatchEntry struct {
	Path        string
	Attempts    int
	Blacklisted bool
	LastSeenAt  time.Time
}

// ChunkMatch is one vector-store hit before joining with its document.
type ChunkMatch struct {
	Chunk *VectorChunk
	Score float32
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	DocumentId ID
	Title      string
	ChunkIndex int
	Text       string
	Score      float32
}
