package logx

import (
	"io"
	"strings"
	"time"
)

// Beeper is the buzzer side-channel. Tones are symbolic names ("start",
// "success", "error") mapped to patterns by the user configuration.
type Beeper interface {
	Beep(tone string)
}

// TerminalBeeper writes BEL characters to a terminal. A pattern is a
// string of '.' and '-': '.' is one bell, '-' is a bell after a pause.
// Unknown tones are silent.
type TerminalBeeper struct {
	W        io.Writer
	Patterns map[string]string
	// Sleep is swappable for tests. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// Beep plays the pattern configured for tone.
func (b *TerminalBeeper) Beep(tone string) {
	pattern, ok := b.Patterns[tone]
	if !ok || b.W == nil {
		return
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for _, c := range strings.TrimSpace(pattern) {
		if c == '-' {
			sleep(150 * time.Millisecond)
		}
		io.WriteString(b.W, "\a")
	}
}

// NullBeeper discards every tone. Used for --no-beeps and in tests.
type NullBeeper struct{}

// Beep does nothing.
func (NullBeeper) Beep(string) {}
