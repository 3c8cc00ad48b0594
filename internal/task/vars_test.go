package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() *Vars {
	return &Vars{
		Values:  map[string]string{"out": "build/out", "db": "app"},
		Feature: map[string]string{"name": "schema"},
		LookupEnv: func(key string) (string, bool) {
			if key == "HOME" {
				return "/home/dev", true
			}
			return "", false
		},
	}
}

// TestExpand_Forms tests every reference form in one string.
func TestExpand_Forms(t *testing.T) {
	got, err := testVars().Expand("$(out)/$(f:name)-$(e:HOME)")
	require.NoError(t, err)
	assert.Equal(t, "build/out/schema-/home/dev", got)
}

// TestExpand_EscapeDefersEvaluation tests that $$(name) survives as a
// literal $(name) for the task to expand later.
func TestExpand_EscapeDefersEvaluation(t *testing.T) {
	got, err := testVars().Expand(":r $$(file) -- $(db)")
	require.NoError(t, err)
	assert.Equal(t, ":r $(file) -- app", got)

	// The deferred reference expands on the second pass.
	second, err := (&Vars{Values: map[string]string{"file": "001.sql"}}).Expand(got)
	require.NoError(t, err)
	assert.Equal(t, ":r 001.sql -- app", second)
}

// TestExpand_Errors tests unknown references and malformed input.
func TestExpand_Errors(t *testing.T) {
	v := testVars()

	_, err := v.Expand("$(missing)")
	assert.ErrorContains(t, err, "undefined variable")

	_, err = v.Expand("$(e:NOPE)")
	assert.ErrorContains(t, err, "environment variable")

	_, err = v.Expand("$(f:nope)")
	assert.ErrorContains(t, err, "feature attribute")

	_, err = v.Expand("$(unclosed")
	assert.ErrorContains(t, err, "unclosed")
}

// TestWith_LayersWithoutMutating tests scope layering.
func TestWith_LayersWithoutMutating(t *testing.T) {
	base := testVars()
	child := base.With(map[string]string{"db": "audit", "extra": "x"})

	got, err := child.Expand("$(db)/$(extra)")
	require.NoError(t, err)
	assert.Equal(t, "audit/x", got)

	// The parent scope is untouched.
	orig, err := base.Expand("$(db)")
	require.NoError(t, err)
	assert.Equal(t, "app", orig)
}
