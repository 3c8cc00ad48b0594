package task

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbbm/internal/state"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newCopyTransform(t *testing.T, from, to, pattern string) *Copy {
	t.Helper()
	return &Copy{From: from, To: to, Pattern: regexp.MustCompile(pattern)}
}

// TestCopy_CalculateIsDeterministic tests that the fingerprint ignores
// directory enumeration order and tracks content.
func TestCopy_CalculateIsDeterministic(t *testing.T) {
	from := t.TempDir()
	writeTree(t, from, map[string]string{
		"b.txt":       "bravo",
		"a.txt":       "alpha",
		"sub/c.txt":   "charlie",
		"ignored.log": "nope",
	})
	c := newCopyTransform(t, from, t.TempDir(), `\.txt$`)

	h1, err := c.CalculateTransform(state.Empty)
	require.NoError(t, err)
	h2, err := c.CalculateTransform(state.Empty)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Non-matching files stay out of the fingerprint.
	require.NoError(t, os.WriteFile(filepath.Join(from, "ignored.log"), []byte("changed"), 0o644))
	h3, err := c.CalculateTransform(state.Empty)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	// Matching content changes it.
	require.NoError(t, os.WriteFile(filepath.Join(from, "a.txt"), []byte("ALPHA"), 0o644))
	h4, err := c.CalculateTransform(state.Empty)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}

// TestCopy_RunCopiesAndAgrees tests effects plus the calculate/run
// agreement invariant.
func TestCopy_RunCopiesAndAgrees(t *testing.T) {
	from, to := t.TempDir(), filepath.Join(t.TempDir(), "dest")
	writeTree(t, from, map[string]string{"a.txt": "alpha", "sub/c.txt": "charlie"})
	c := newCopyTransform(t, from, to, `\.txt$`)

	want, err := c.CalculateTransform(state.Empty)
	require.NoError(t, err)

	got, err := c.RunTransform(context.Background(), state.Empty, false, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := os.ReadFile(filepath.Join(to, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	assert.FileExists(t, filepath.Join(to, "sub", "c.txt"))
}

// TestCopy_SkipsUnchangedByModTime tests the mtime skip: a destination
// stamped with the source's mtime is not rewritten.
func TestCopy_SkipsUnchangedByModTime(t *testing.T) {
	from, to := t.TempDir(), t.TempDir()
	writeTree(t, from, map[string]string{"a.txt": "alpha"})
	c := newCopyTransform(t, from, to, `\.txt$`)

	_, err := c.RunTransform(context.Background(), state.Empty, false, nil)
	require.NoError(t, err)

	// Sabotage the destination, keep its mtime equal to the source's.
	dest := filepath.Join(to, "a.txt")
	srcInfo, err := os.Stat(filepath.Join(from, "a.txt"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dest, []byte("sabotaged"), 0o644))
	require.NoError(t, os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime()))

	_, err = c.RunTransform(context.Background(), state.Empty, false, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "sabotaged", string(data), "matching mtime skips the copy")

	// A different mtime re-copies.
	require.NoError(t, os.Chtimes(dest, srcInfo.ModTime().Add(time.Hour), srcInfo.ModTime().Add(time.Hour)))
	_, err = c.RunTransform(context.Background(), state.Empty, false, nil)
	require.NoError(t, err)
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

// TestCopy_OverwritesReadOnlyDestination tests the read-only clear.
func TestCopy_OverwritesReadOnlyDestination(t *testing.T) {
	from, to := t.TempDir(), t.TempDir()
	writeTree(t, from, map[string]string{"a.txt": "alpha"})
	dest := filepath.Join(to, "a.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o444))

	c := newCopyTransform(t, from, to, `\.txt$`)
	_, err := c.RunTransform(context.Background(), state.Empty, false, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

// TestCopy_DryRunTouchesNothing tests dry-run purity.
func TestCopy_DryRunTouchesNothing(t *testing.T) {
	from, to := t.TempDir(), filepath.Join(t.TempDir(), "dest")
	writeTree(t, from, map[string]string{"a.txt": "alpha"})
	c := newCopyTransform(t, from, to, `\.txt$`)

	want, err := c.CalculateTransform(state.Empty)
	require.NoError(t, err)
	got, err := c.RunTransform(context.Background(), state.Empty, true, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoDirExists(t, to)
}
