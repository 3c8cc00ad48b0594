package logx

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

// TestLog_IndentsScopes tests pre/post framing and nesting.
func TestLog_IndentsScopes(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := New(&buf)

	l.Printf("top")
	leave := l.Scope("Release r1")
	l.Printf("task")
	inner := l.Scope("Feature f1")
	inner("")
	leave("done")

	assert.Equal(t, "top\nRelease r1\n  task\n  Feature f1\ndone\n", buf.String())
}

// TestLog_NilIsSilent tests that a nil log discards all calls.
func TestLog_NilIsSilent(t *testing.T) {
	var l *Log
	l.Printf("ignored")
	l.Warnf("ignored")
	leave := l.Scope("ignored")
	leave("ignored")
}

// TestTerminalBeeper_PlaysConfiguredPattern tests bell output.
func TestTerminalBeeper_PlaysConfiguredPattern(t *testing.T) {
	var buf bytes.Buffer
	var slept int
	b := &TerminalBeeper{
		W:        &buf,
		Patterns: map[string]string{"error": ".-."},
		Sleep:    func(time.Duration) { slept++ },
	}

	b.Beep("error")
	assert.Equal(t, "\a\a\a", buf.String())
	assert.Equal(t, 1, slept)

	buf.Reset()
	b.Beep("unknown")
	assert.Empty(t, buf.String())
}
