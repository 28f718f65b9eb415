// Package crypto collects the hash primitives Athena's spawn/deploy address
// derivation and precompiles build on, grounded on the teacher's
// pkg/svm/syscall/syscall.go sol_blake3/sol_keccak256 syscalls (same two
// libraries: github.com/zeebo/blake3 and golang.org/x/crypto/sha3).
package crypto

import (
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Blake3 returns the blake3 digest of data, domain-separated by tag (e.g.
// "athena-spawn:" or "athena-deploy:") so address spaces derived from
// different operations never collide by construction.
func Blake3(tag string, data ...[]byte) [32]byte {
	h := blake3.New()
	h.Write([]byte(tag))
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Keccak256 returns the legacy Keccak256 digest of data. No syscall or
// host in this module calls it.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveAddress truncates a 32-byte digest to Athena's 24-byte address
// width (spec §3's Address is 24 bytes, narrower than a full hash).
func DeriveAddress(digest [32]byte) [24]byte {
	var addr [24]byte
	copy(addr[:], digest[:len(addr)])
	return addr
}
