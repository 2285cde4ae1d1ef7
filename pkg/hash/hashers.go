package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// HashFunc maps a key to a 32-bit hash. The table indexes its directory with
// the hash's low-order bits, so the function must be deterministic and stable
// across processes sharing the same index file.
type HashFunc func(key int64) uint32

// Comparator is a total order over keys: negative if a < b, zero if equal,
// positive if a > b.
type Comparator func(a, b int64) int

// CompareInt64 is the default integer-key comparator.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// getHash uses the given hasher function to calculate the 32-bit hash
// of a key.
func getHash(hasher func(b []byte) uint64, key int64) uint32 {
	buf := make([]byte, binary.MaxVarintLen64)
	binary.PutVarint(buf, key)
	return uint32(hasher(buf))
}

// XxHasher returns the xxHash hash of the given key.
func XxHasher(key int64) uint32 {
	return getHash(xxhash.Sum64, key)
}

// MurmurHasher returns the MurmurHash3 hash of the given key.
func MurmurHasher(key int64) uint32 {
	return getHash(murmur3.Sum64, key)
}
