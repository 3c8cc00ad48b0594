package state

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Transformer is a scoped accumulator that folds bytes and files into a new
// Hash. It is seeded with an input Hash and finalized exactly once with
// Result; any use after finalization panics. The usual shape is:
//
//	t := state.NewTransformer(in)
//	defer t.Discard()
//	if err := t.TransformFileSmart(path, rel); err != nil { ... }
//	return t.Result(), nil
//
// Discard makes the exactly-once discipline hold on early-error paths:
// it is a no-op after Result has run.
//
// Folding is incremental: Transform(a) followed by Transform(b) yields the
// same Result as Transform(a ‖ b). Ordering matters — feeding the same
// inputs in a different order produces a different Hash.
type Transformer struct {
	digest hash.Hash
	done   bool
}

// NewTransformer creates an accumulator seeded with the given Hash.
// The seed is folded first, under a domain prefix with a null separator
// so the seed/data boundary is unambiguous.
func NewTransformer(seed Hash) *Transformer {
	d := newDigest()
	d.Write(seed[:])
	return &Transformer{digest: d}
}

func newDigest() hash.Hash {
	d := sha256.New()
	d.Write([]byte(hashDomain))
	d.Write([]byte{0x00})
	return d
}

// Transform folds raw bytes into the running state.
func (t *Transformer) Transform(p []byte) {
	t.check()
	t.digest.Write(p)
}

// TransformString folds a string into the running state.
func (t *Transformer) TransformString(s string) {
	t.check()
	io.WriteString(t.digest, s)
}

// TransformFileSmart folds a canonical encoding of one file: its relative
// name, a null separator, the content length as a big-endian 64-bit
// integer, and the content bytes. The relative name is normalized before
// folding — path separators become '/' and the name is Unicode NFC — so
// the same tree hashed on different platforms yields the same Hash.
// Content bytes are folded verbatim; line endings are the author's
// responsibility, not ours.
func (t *Transformer) TransformFileSmart(path, relName string) error {
	t.check()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hash file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("hash file %s: %w", path, err)
	}

	t.digest.Write([]byte(NormalizeRelName(relName)))
	t.digest.Write([]byte{0x00})

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(info.Size()))
	t.digest.Write(size[:])

	if _, err := io.Copy(t.digest, f); err != nil {
		return fmt.Errorf("hash file %s: %w", path, err)
	}
	return nil
}

// Result finalizes the accumulator and returns the new Hash.
// The Transformer must not be used again.
func (t *Transformer) Result() Hash {
	t.check()
	t.done = true
	var h Hash
	copy(h[:], t.digest.Sum(nil))
	return h
}

// Discard finalizes the accumulator without producing a Hash. Deferred at
// construction time it guarantees the exactly-once discipline on error
// paths; after Result it is a no-op.
func (t *Transformer) Discard() {
	t.done = true
}

func (t *Transformer) check() {
	if t.done {
		panic("state: Transformer used after finalization")
	}
}

// NormalizeRelName converts a relative path to the canonical form used for
// hashing: forward slashes and Unicode NFC. Comparison stays case-sensitive.
func NormalizeRelName(rel string) string {
	return norm.NFC.String(strings.ReplaceAll(rel, "\\", "/"))
}
