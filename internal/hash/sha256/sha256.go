// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the length of truncated digests used for record identifiers
// and content fingerprints.
const ShortLen = 16

// Hasher computes SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short hashes the input and returns the digest truncated to ShortLen hex
// characters. Truncation keeps identifiers compact while staying stable for
// a given input.
func (h *Hasher) Short(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:ShortLen]
}
