package badger

import (
	"encoding/binary"

	"github.com/papyrus-systems/papyrus/core"
)

// Key prefixes for different data types. Documents and watch entries
// live in the record store database; chunks live in the vector store
// database, so the prefixes never collide across stores.
const (
	documentPrefix       = "docrec"
	documentHashPrefix   = "dochash"
	documentTitlePrefix  = "doctitle"
	documentSourcePrefix = "docsrc"
	documentIDSeq        = "docrecseq"
	chunkPrefix          = "chk"
	chunkDimensionKey    = "chkdim"
	watchEntryPrefix     = "wch"
)

// makeDocumentKey generates a key for a document record by ID.
// The ID is BigEndian so lexicographic iteration yields ID order.
func makeDocumentKey(id core.ID) []byte {
	prefix := documentPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeDocumentHashKey generates a key for the content-hash lookup index.
func makeDocumentHashKey(contentHash string) []byte {
	return []byte(documentHashPrefix + ":" + contentHash)
}

// makeDocumentTitleKey generates a key for the title lookup index.
func makeDocumentTitleKey(title string) []byte {
	return []byte(documentTitlePrefix + ":" + title)
}

// makeDocumentSourceKey generates a key for the source-path lookup index.
func makeDocumentSourceKey(path string) []byte {
	return []byte(documentSourcePrefix + ":" + path)
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:documentID:chunkIndex, both BigEndian so iteration over
// a document prefix yields chunks in index order.
func makeChunkKey(documentID core.ID, chunkIndex int) []byte {
	prefix := chunkPrefix + ":"
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkIndex))
	return buf
}

// makeChunkDocumentPrefix generates the key prefix shared by all chunks
// of one document.
func makeChunkDocumentPrefix(documentID core.ID) []byte {
	prefix := chunkPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}

// makeWatchEntryKey generates a key for a watch entry by path.
func makeWatchEntryKey(path string) []byte {
	return []byte(watchEntryPrefix + ":" + path)
}
