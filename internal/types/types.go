// Package types defines the core value types shared across the Athena engine:
// account addresses, 256-bit storage words, and block hashes.
//
// These mirror athena_interface's Address/Bytes32 types from the reference
// implementation, encoded here as fixed-size byte arrays with base58 text
// encoding for logs and CLI output.
package types

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size constants for core types.
const (
	AddressSize   = 24
	Word256Size   = 32
	SignatureSize = 64
)

var (
	// ErrInvalidAddress is returned when an address has invalid length.
	ErrInvalidAddress = errors.New("invalid address: must be 24 bytes")

	// ErrInvalidWord256 is returned when a word has invalid length.
	ErrInvalidWord256 = errors.New("invalid word256: must be 32 bytes")

	// ErrInvalidSignature is returned when a signature has invalid length.
	ErrInvalidSignature = errors.New("invalid signature: must be 64 bytes")
)

// Address is a 24-byte opaque account identifier. Equality and ordering are
// byte-wise; the chain supplies addresses deterministically (derived by the
// host on SPAWN/DEPLOY).
type Address [AddressSize]byte

// AddressFromBase58 parses a base58-encoded address.
func AddressFromBase58(s string) (Address, error) {
	var a Address
	data, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], data)
	return a, nil
}

// AddressFromBytes creates an Address from a byte slice.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

// MustAddressFromBase58 parses a base58-encoded address, panicking on error.
// Used for well-known constants only.
func MustAddressFromBase58(s string) Address {
	a, err := AddressFromBase58(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base58-encoded representation.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Equals returns true if two addresses are equal.
func (a Address) Equals(other Address) bool {
	return a == other
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromBase58(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Word256 is a 32-byte big-endian blob used for storage keys/values and the
// chain ID. Unlike Address it carries no implied integer endianness of its
// own; callers that need an integer view index into it directly.
type Word256 [Word256Size]byte

// Word256FromBytes creates a Word256 from a byte slice.
func Word256FromBytes(b []byte) (Word256, error) {
	var w Word256
	if len(b) != Word256Size {
		return w, ErrInvalidWord256
	}
	copy(w[:], b)
	return w, nil
}

// Word256FromHex parses a hex-encoded Word256.
func Word256FromHex(s string) (Word256, error) {
	var w Word256
	data, err := hex.DecodeString(s)
	if err != nil {
		return w, fmt.Errorf("hex decode: %w", err)
	}
	if len(data) != Word256Size {
		return w, ErrInvalidWord256
	}
	copy(w[:], data)
	return w, nil
}

// ComputeHash computes the SHA256 hash of data, returned as a Word256.
func ComputeHash(data []byte) Word256 {
	return sha256.Sum256(data)
}

// Hex returns the hex-encoded representation.
func (w Word256) Hex() string {
	return hex.EncodeToString(w[:])
}

// IsZero returns true if the word is all zeros.
func (w Word256) IsZero() bool {
	return w == Word256{}
}

// Equals returns true if two words are equal.
func (w Word256) Equals(other Word256) bool {
	return w == other
}

// Bytes returns the word as a byte slice.
func (w Word256) Bytes() []byte {
	return w[:]
}

// Signature is a 64-byte Ed25519 signature, used by the PRECOMPILE_ED25519_VERIFY
// syscall and the reference wallet template (scenarios 5/6).
type Signature [SignatureSize]byte

// SignatureFromBytes creates a Signature from a byte slice.
func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureSize {
		return s, ErrInvalidSignature
	}
	copy(s[:], b)
	return s, nil
}

// Verify verifies this signature against a message and a 32-byte Ed25519
// public key. An all-zero signature always fails verification.
func (s Signature) Verify(pubkey [32]byte, message []byte) bool {
	return ed25519.Verify(pubkey[:], message, s[:])
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return s[:]
}
