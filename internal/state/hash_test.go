package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHash_HexRoundTrip tests that Hex and Parse are inverses.
func TestHash_HexRoundTrip(t *testing.T) {
	tr := NewTransformer(Empty)
	tr.Transform([]byte("round trip"))
	h := tr.Result()

	s := h.Hex()
	assert.Len(t, s, Size*2)
	assert.Equal(t, strings.ToLower(s), s, "hex form must be lowercase")

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

// TestParse_RejectsInvalidInput tests the recoverable parse failure.
func TestParse_RejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short", "deadbeef"},
		{"too long", strings.Repeat("ab", Size) + "cd"},
		{"non-hex", strings.Repeat("zz", Size)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.input)
			var invalid *ErrInvalidHash
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.input, invalid.Input)
		})
	}
}

// TestEmpty_DistinctFromNonEmpty tests that Empty differs from any hash
// produced by feeding bytes.
func TestEmpty_DistinctFromNonEmpty(t *testing.T) {
	tr := NewTransformer(Empty)
	tr.Transform([]byte{0x00})
	assert.NotEqual(t, Empty, tr.Result())

	// Empty is also not the zero value.
	assert.NotEqual(t, Hash{}, Empty)
}

// TestCompare_Ordering tests the lexicographic total order.
func TestCompare_Ordering(t *testing.T) {
	a := Hash{}
	b := Hash{}
	b[Size-1] = 1
	c := Hash{}
	c[0] = 1

	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, -1, b.Compare(c), "leading byte dominates")
}
