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

package badger

import "github.com/papyrus-systems/papyrus/storage"

// MemoryStores bundles in-memory repositories for testing.
type MemoryStores struct {
	Documents storage.DocumentRepository
	Chunks    storage.ChunkRepository
	Watch     storage.WatchRepository

	recordBackend *Backend
	vectorBackend *Backend
}

// NewMemoryStores creates in-memory record and vector stores for testing.
// Caller must Close the result when done.
func NewMemoryStores(dimension int) (*MemoryStores, error) {
	recordBackend, err := OpenBackend("", true, nil)
	if err != nil {
		return nil, err
	}

	vectorBackend, err := OpenBackend("", true, nil)
	if err != nil {
		recordBackend.Close()
		return nil, err
	}

	docs, err := NewDocumentRepository(recordBackend)
	if err != nil {
		vectorBackend.Close()
		recordBackend.Close()
		return nil, err
	}

	chunks, err := NewChunkRepository(vectorBackend, dimension)
	if err != nil {
		docs.Close()
		vectorBackend.Close()
		recordBackend.Close()
		return nil, err
	}

	return &MemoryStores{
		Documents:     docs,
		Chunks:        chunks,
		Watch:         NewWatchRepository(recordBackend),
		recordBackend: recordBackend,
		vectorBackend: vectorBackend,
	}, nil
}

// Close closes both stores.
func (m *MemoryStores) Close() error {
	m.Documents.Close()
	if err := m.recordBackend.Close(); err != nil {
		return err
	}
	return m.vectorBackend.Close()
}
