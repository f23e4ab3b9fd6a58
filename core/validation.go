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


package core

import "fmt"

// ValidateTask validates a Task according to domain rules.
//
// Validation rules:
//   - PayloadRef must not be empty
//   - Source must be a known TaskSource
//
// NOT validated (populated by the pipeline):
//   - ID (assigned at submission)
//   - Status, Progress, Attempts (owned by the status tracker)
func ValidateTask(task *Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}

	if task.PayloadRef == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTask, ErrEmptyPayloadRef)
	}

	if err := ValidateSource(task.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	return nil
}

// ValidateDocumentRecord validates a DocumentRecord according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - ContentHash must not be empty
//
// NOT validated:
//   - Id (0 is valid from database sequences)
//   - Title, SourcePath (may legitimately be empty)
func ValidateDocumentRecord(record *DocumentRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidDocument)
	}

	if record.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyText)
	}

	if record.ContentHash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContentHash)
	}

	return nil
}

// ValidateChunk validates a VectorChunk according to domain rules.
//
// Validation rules:
//   - ChunkIndex must not be negative
//   - Embedding must not be empty
func ValidateChunk(chunk *VectorChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index %d", ErrInvalidChunk, chunk.ChunkIndex)
	}

	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyEmbedding)
	}

	return nil
}

// ValidateSource validates that a TaskSource has a known value.
func ValidateSource(source TaskSource) error {
	if source != SourceUpload && source != SourceWatch {
		return fmt.Errorf("%w: value %q", ErrInvalidSource, source)
	}
	return nil
}
