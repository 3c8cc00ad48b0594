// Package state implements the content-addressed fingerprint that identifies
// a database state, and the scoped accumulator that folds deployment inputs
// into it.
//
// Every input a deployment consumes — file names, file contents, rendered
// scripts, backup descriptors — is folded into a Hash. Two deployments that
// consume byte-identical inputs in the same order produce the same Hash on
// every platform. That determinism is what makes the backup cache correct:
// a cached backup is keyed by the Hash of everything that produced it.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the width of a Hash in bytes.
const Size = sha256.Size

// hashDomain separates dbbm fingerprints from any other use of SHA-256
// over the same bytes. The version suffix enables future algorithm
// migration without colliding with existing cache entries.
const hashDomain = "dbbm/state/v1"

// Hash is a fixed-width fingerprint of all inputs consumed up to a point
// in a deployment. Hashes compare with == and order lexicographically
// via Compare. The zero value is not a valid fingerprint; use Empty for
// the fingerprint of no inputs.
type Hash [Size]byte

// Empty is the fingerprint of zero inputs: a fresh accumulator finalized
// without ever being fed.
var Empty = func() Hash {
	t := NewTransformer(Hash{})
	return t.Result()
}()

// ErrInvalidHash is returned by Parse for input that is not a
// lowercase-or-uppercase hex string of exactly Size*2 characters.
type ErrInvalidHash struct {
	Input string
}

func (e *ErrInvalidHash) Error() string {
	return fmt.Sprintf("invalid state hash %q", e.Input)
}

// Hex returns the lowercase hexadecimal form of h. This is the canonical
// serialization: cache file names, the resume file, and the hit table all
// store hashes in this form.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer with a short prefix for log lines.
func (h Hash) String() string {
	return h.Hex()[:12]
}

// Parse decodes a hex string produced by Hex. It fails with *ErrInvalidHash
// on wrong length or non-hex characters; callers treat that as a
// recoverable error (a corrupt resume file, a junk file in the cache).
func Parse(s string) (Hash, error) {
	if len(s) != Size*2 {
		return Hash{}, &ErrInvalidHash{Input: s}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, &ErrInvalidHash{Input: s}
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// Compare orders hashes lexicographically by byte. It returns -1, 0, or 1.
func (h Hash) Compare(o Hash) int {
	for i := range h {
		switch {
		case h[i] < o[i]:
			return -1
		case h[i] > o[i]:
			return 1
		}
	}
	return 0
}
