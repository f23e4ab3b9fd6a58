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


package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/papyrus-systems/papyrus/core"
)

// Entities are serialized with the MUS format, fields in declaration
// order. Timestamps are stored as Unix microseconds.

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(v), err
}

// MarshalDocumentRecord serializes a DocumentRecord to bytes.
func MarshalDocumentRecord(record *core.DocumentRecord) []byte {
	createdAt := record.CreatedAt.UnixMicro()
	size := varint.Uint64.Size(uint64(record.Id)) +
		ord.String.Size(record.Title) +
		ord.String.Size(record.SourcePath) +
		ord.String.Size(record.ContentHash) +
		ord.String.Size(record.Text) +
		varint.Int64.Size(createdAt)

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(record.Id), buf)
	n += ord.String.Marshal(record.Title, buf[n:])
	n += ord.String.Marshal(record.SourcePath, buf[n:])
	n += ord.String.Marshal(record.ContentHash, buf[n:])
	n += ord.String.Marshal(record.Text, buf[n:])
	varint.Int64.Marshal(createdAt, buf[n:])
	return buf
}

// UnmarshalDocumentRecord deserializes a DocumentRecord from bytes.
func UnmarshalDocumentRecord(data []byte) (*core.DocumentRecord, error) {
	record := &core.DocumentRecord{}

	id, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	record.Id = core.ID(id)

	var m int
	if record.Title, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m
	if record.SourcePath, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m
	if record.ContentHash, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m
	if record.Text, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m

	createdAt, _, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	record.CreatedAt = time.UnixMicro(createdAt).UTC()
	return record, nil
}

// MarshalChunk serializes a VectorChunk to bytes.
func MarshalChunk(chunk *core.VectorChunk) []byte {
	size := varint.Uint64.Size(uint64(chunk.DocumentId)) +
		varint.Int.Size(chunk.ChunkIndex) +
		ord.String.Size(chunk.Text) +
		varint.Int.Size(len(chunk.Embedding)) +
		raw.Float32.Size(0)*len(chunk.Embedding)

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(chunk.DocumentId), buf)
	n += varint.Int.Marshal(chunk.ChunkIndex, buf[n:])
	n += ord.String.Marshal(chunk.Text, buf[n:])
	n += varint.Int.Marshal(len(chunk.Embedding), buf[n:])
	for _, v := range chunk.Embedding {
		n += raw.Float32.Marshal(v, buf[n:])
	}
	return buf
}

// UnmarshalChunk deserializes a VectorChunk from bytes.
func UnmarshalChunk(data []byte) (*core.VectorChunk, error) {
	chunk := &core.VectorChunk{}

	docID, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	chunk.DocumentId = core.ID(docID)

	var m int
	if chunk.ChunkIndex, m, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m
	if chunk.Text, m, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m

	length, m, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += m
	if length < 0 {
		return nil, ErrSerializationFailed
	}

	chunk.Embedding = make([]float32, length)
	for i := 0; i < length; i++ {
		v, m, err := raw.Float32.Unmarshal(data[n:])
		if err != nil {
			return nil, err
		}
		chunk.Embedding[i] = v
		n += m
	}
	return chunk, nil
}

// MarshalWatchEntry serializes a WatchEntry to bytes.
func MarshalWatchEntry(entry *core.WatchEntry) []byte {
	lastSeen := entry.LastSeenAt.UnixMicro()
	size := ord.String.Size(entry.Path) +
		varint.Int.Size(entry.Attempts) +
		ord.Bool.Size(entry.Blacklisted) +
		varint.Int64.Size(lastSeen)

	buf := make([]byte, size)
	n := ord.String.Marshal(entry.Path, buf)
	n += varint.Int.Marshal(entry.Attempts, buf[n:])
	n += ord.Bool.Marshal(entry.Blacklisted, buf[n:])
	varint.Int64.Marshal(lastSeen, buf[n:])
	return buf
}

// UnmarshalWatchEntry deserializes a WatchEntry from bytes.
func UnmarshalWatchEntry(data []byte) (*core.WatchEntry, error) {
	entry := &core.WatchEntry{}

	path, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	entry.Path = path

	var m int
	if entry.Attempts, m, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m
	if entry.Blacklisted, m, err = ord.Bool.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += m

	lastSeen, _, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	entry.LastSeenAt = time.UnixMicro(lastSeen).UTC()
	return entry, nil
}
