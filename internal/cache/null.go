package cache

import (
	"context"

	"github.com/roach88/dbbm/internal/state"
)

// Null is the cache used by --no-cache: no hits, no adds, no collection.
type Null struct{}

// TryGet never hits.
func (Null) TryGet(string, state.Hash, bool) (string, bool, error) {
	return "", false, nil
}

// Add does nothing.
func (Null) Add(context.Context, string, string, state.Hash) error { return nil }

// UpdateHits does nothing.
func (Null) UpdateHits([]Key) error { return nil }

// GarbageCollect does nothing.
func (Null) GarbageCollect(bool) (Stats, error) { return Stats{}, nil }

// Verify both implementations satisfy the contract at compile time.
var (
	_ Cache = (*Manager)(nil)
	_ Cache = Null{}
)
