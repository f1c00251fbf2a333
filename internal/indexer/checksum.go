package indexer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Checksum fingerprints a document set. Docs are hashed in name order so
// listing order never matters; any added, removed, renamed or edited
// document yields a different sum.
func Checksum(docs []Document) string {
	sorted := make([]Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	var sizeBuf [8]byte
	for _, d := range sorted {
		h.Write([]byte(d.Name))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(sizeBuf[:], uint64(d.Size))
		h.Write(sizeBuf[:])
		h.Write(d.Content)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
