package testutil

import (
	"fmt"
	"sync"
)

// FixedTokens generates predictable run tokens for tests: run-1, run-2, …
// Unlike the production UUID generator, the sequence resets with each
// instance so golden output stays stable.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedTokens struct {
	mu sync.Mutex
	n  int
}

// NewFixedTokens creates a generator starting at run-1.
func NewFixedTokens() *FixedTokens {
	return &FixedTokens{}
}

// Generate returns the next token in the sequence.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}
