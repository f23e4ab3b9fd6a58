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

import "errors"

// Domain validation errors
var (
	// ErrInvalidTask indicates a Task failed validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidDocument indicates a DocumentRecord failed validation.
	ErrInvalidDocument = errors.New("invalid document record")

	// ErrInvalidChunk indicates a VectorChunk failed validation.
	ErrInvalidChunk = errors.New("invalid vector chunk")

	// ErrInvalidTransition indicates a disallowed task status transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyPayloadRef indicates the PayloadRef field is empty.
	ErrEmptyPayloadRef = errors.New("payload reference cannot be empty")

	// ErrEmptyText indicates the Text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptyContentHash indicates the ContentHash field is empty.
	ErrEmptyContentHash = errors.New("content hash cannot be empty")

	// ErrEmptyEmbedding indicates a chunk has no embedding vector.
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")

	// ErrInvalidSource indicates an unknown TaskSource value.
	ErrInvalidSource = errors.New("invalid task source")
)
