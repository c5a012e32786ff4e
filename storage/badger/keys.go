package badger

import (
	"encoding/binary"

	"github.com/poiesic/itk/core"
)

// Key prefixes for different data types
const (
	collectionPrefix = "veccol"
	chunkPrefix      = "vecchk"
	chunkIDSeq       = "vecseq"
	runPrefix        = "runrec"
)

// makeCollectionKey generates the key holding a collection's name.
// Format: prefix:collectionID
func makeCollectionKey(id core.ID) []byte {
	prefix := []byte(collectionPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeChunkKey generates a composite key for a chunk within a collection.
// Format: prefix:collectionID:chunkID
func makeChunkKey(collectionID, chunkID core.ID) []byte {
	buf := makePartialChunkKey(collectionID)
	// Write in BigEndian order so chunks iterate in insertion order
	return binary.BigEndian.AppendUint64(buf, uint64(chunkID))
}

// makePartialChunkKey generates the iteration prefix for a collection's chunks.
// Format: prefix:collectionID
func makePartialChunkKey(collectionID core.ID) []byte {
	prefix := []byte(chunkPrefix + ":")
	buf := make([]byte, len(prefix)+8, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(collectionID))
	return buf
}

// makeRunKey generates the key for a stored run summary.
func makeRunKey(name string) []byte {
	return []byte(runPrefix + ":" + name)
}
