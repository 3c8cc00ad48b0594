package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbbm/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := DefaultPath(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func leafHash(t *testing.T, label string) state.Hash {
	t.Helper()
	tr := state.NewTransformer(state.Empty)
	tr.TransformString(label)
	return tr.Result()
}

// TestJournal_RunLifecycle tests begin, leaves, finish, and readback.
func TestJournal_RunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, "run-1", "R2", "dev"))

	h1 := leafHash(t, "leaf-1")
	h2 := leafHash(t, "leaf-2")
	require.NoError(t, s.RecordLeaf(ctx, "run-1", 1, "restore 2 database(s)", h1, 2*time.Second))
	require.NoError(t, s.RecordLeaf(ctx, "run-1", 2, "sql scripts", h2, 5*time.Second))
	require.NoError(t, s.FinishRun(ctx, "run-1", "success", &h2))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].Token)
	assert.Equal(t, "R2", runs[0].Release)
	assert.Equal(t, "success", runs[0].Outcome)
	assert.Equal(t, h2.Hex(), runs[0].FinalHash)
	assert.Equal(t, 2, runs[0].Leaves)
	assert.False(t, runs[0].FinishedAt.IsZero())

	leaves, err := s.Leaves(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, "restore 2 database(s)", leaves[0].Description)
	assert.Equal(t, 5*time.Second, leaves[1].Elapsed)
}

// TestJournal_RecentOrdersNewestFirst tests ordering and limit.
func TestJournal_RecentOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1000, 0)
	for i, token := range []string{"run-1", "run-2", "run-3"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		require.NoError(t, s.BeginRun(ctx, token, "R1", "dev"))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].Token)
	assert.Equal(t, "run-2", runs[1].Token)
	assert.Empty(t, runs[0].Outcome, "unfinished run has no outcome")
}

// TestJournal_IdempotentWrites tests that duplicate begin/leaf writes
// are silently ignored.
func TestJournal_IdempotentWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, "run-1", "R1", "dev"))
	require.NoError(t, s.BeginRun(ctx, "run-1", "R1", "dev"))

	h := leafHash(t, "leaf")
	require.NoError(t, s.RecordLeaf(ctx, "run-1", 1, "leaf", h, time.Second))
	require.NoError(t, s.RecordLeaf(ctx, "run-1", 1, "leaf", h, time.Second))

	leaves, err := s.Leaves(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, leaves, 1)
}
