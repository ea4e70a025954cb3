package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// Seeds
// --------------------------------------------------------------------------

// GenerateSeed returns a random seed for key hashing.
// It falls back to the current time if the system random source fails.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hashing
// --------------------------------------------------------------------------

// HashString hashes s with the seeded FNV-1a algorithm.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// ShardIndex maps a key to one of n shards.
// The hash is shifted by 7 bits first since the low bits of FNV-1a are the weakest.
func ShardIndex(key string, seed uint64, n int) int {
	if n <= 1 {
		return 0
	}
	return int((HashString(key, seed) >> 7) % uint64(n))
}
