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

package ingestion

import "errors"

var (
	// ErrQueueFull indicates the task queue is at capacity and the
	// submission was rejected. Callers may retry later.
	ErrQueueFull = errors.New("ingestion queue is full")

	// ErrPipelineClosed indicates the pipeline is shutting down and no
	// longer accepts submissions.
	ErrPipelineClosed = errors.New("ingestion pipeline is closed")

	// ErrTaskNotFound indicates no task with the given ID is known.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEmptyPayload indicates a submission carried neither inline text
	// nor a file path.
	ErrEmptyPayload = errors.New("submission has no payload")

	// Failure classes wrapped into task errors so callers can tell which
	// stage broke.
	ErrParseFailed     = errors.New("document parsing failed")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrStorageFailed   = errors.New("storage write failed")

	// ErrTaskCancelled marks tasks withdrawn before a worker picked them up.
	ErrTaskCancelled = errors.New("task cancelled")

	// Constructor dependency errors.
	ErrParserRegistryRequired     = errors.New("parser registry is required")
	ErrEmbedderRequired           = errors.New("embedder is required")
	ErrDocumentRepositoryRequired = errors.New("document repository is required")
	ErrChunkRepositoryRequired    = errors.New("chunk repository is required")
)
