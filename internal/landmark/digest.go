package landmark

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Digest computes a single content-based hash over a landmark set:
// SHA-256 over the sorted key list, truncated to 128 bits. It ignores
// anchor time so two encodings of the same clip (which may produce
// landmarks in a different order but an identical key multiset) still
// digest identically, making it a cheap exact-duplicate short-circuit
// ahead of landmark scoring in clip lookup.
func Digest(landmarks []Landmark) string {
	keys := make([]uint64, len(landmarks))
	for i, lm := range landmarks {
		keys[i] = lm.Key
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	data := make([]byte, len(keys)*8)
	for i, k := range keys {
		binary.LittleEndian.PutUint64(data[i*8:], k)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
