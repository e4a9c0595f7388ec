package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbindex/core"
)

const (
	documentPrefix = "kbdoc"
	documentIDSeq  = "kbdocseq"
	chunkPrefix    = "kbchk"
)

// makeDocumentKey generates a key for a document by ID.
// Format: prefix:id, with the ID in BigEndian so key order is ID order.
func makeDocumentKey(id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeDocumentScanPrefix(), uint64(id))
}

// makeDocumentScanPrefix is the prefix shared by all document keys.
// The trailing separator keeps the sequence key out of scans.
func makeDocumentScanPrefix() []byte {
	return []byte(documentPrefix + ":")
}

// makeOwnerChunkPrefix generates the prefix of every chunk an owner holds.
// Format: prefix:ownerHash:
func makeOwnerChunkPrefix(ownerID string) []byte {
	prefix := []byte(chunkPrefix + ":")
	buf := make([]byte, len(prefix)+9)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(ownerID)))
	buf[offset+8] = ':'
	return buf
}

// makeDocumentChunkPrefix generates the prefix of every chunk of a document.
// Format: prefix:ownerHash:documentID
func makeDocumentChunkPrefix(ownerID string, documentID core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeOwnerChunkPrefix(ownerID), uint64(documentID))
}

// makeGenerationChunkPrefix generates the prefix of one document generation.
// Format: prefix:ownerHash:documentID:generation
func makeGenerationChunkPrefix(ownerID string, documentID core.ID, generation uint64) []byte {
	return binary.BigEndian.AppendUint64(makeDocumentChunkPrefix(ownerID, documentID), generation)
}

// makeChunkKey generates the key of a chunk.
// Written in BigEndian order so that a generation scan yields chunks by index.
func makeChunkKey(chunk *core.Chunk) []byte {
	prefix := makeGenerationChunkPrefix(chunk.OwnerID, chunk.DocumentId, chunk.Generation)
	return binary.BigEndian.AppendUint64(prefix, uint64(chunk.Index))
}

// generationFromChunkKey extracts the generation from a chunk key that
// starts with the document chunk prefix of length prefixLen.
func generationFromChunkKey(key []byte, prefixLen int) (uint64, bool) {
	if len(key) < prefixLen+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[prefixLen:]), true
}
