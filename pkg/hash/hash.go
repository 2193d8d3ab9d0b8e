// Package hash implements an extendible hash table over pages pulled from a
// shared page cache: a directory page of (local depth, bucket page id)
// pairs, and bucket pages holding fixed-stride key/value pairs behind an
// occupied/readable bitmap pair.
package hash

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// hashBytes returns a 64-bit hash of b with good bit distribution across its
// whole width, since extendible hashing repeatedly masks to a growing prefix
// of low bits as global_depth increases — a weak hash would cluster buckets
// long before the directory actually needed to grow.
func hashBytes(b []byte) uint64 {
	sum := blake2b.Sum512(b)
	return binary.BigEndian.Uint64(sum[:8])
}
