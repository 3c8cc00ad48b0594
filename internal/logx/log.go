// Package logx implements the deployment log: an indenting line writer that
// frames group execution with pre/post lines, and the beeper side-channel.
package logx

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Log writes indented deployment output. Group scopes push one indent
// level; leaf lines print at the current level. A nil *Log discards
// everything, which is what the pure Calculate pass uses.
type Log struct {
	w      io.Writer
	depth  int
	group  *color.Color
	warn   *color.Color
	errcol *color.Color
}

// New creates a Log writing to w. Color is enabled or suppressed by the
// fatih/color package's own TTY detection; tests pass a plain buffer and
// set color.NoColor.
func New(w io.Writer) *Log {
	return &Log{
		w:      w,
		group:  color.New(color.FgCyan),
		warn:   color.New(color.FgYellow),
		errcol: color.New(color.FgRed, color.Bold),
	}
}

// Printf writes one line at the current indent level.
func (l *Log) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.line(nil, format, args...)
}

// Warnf writes one highlighted warning line at the current indent level.
func (l *Log) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.line(l.warn, format, args...)
}

// Errorf writes one highlighted error line at the current indent level.
func (l *Log) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.line(l.errcol, format, args...)
}

// Scope opens a group: it prints the pre line (when non-empty), indents,
// and returns a closer that unindents and prints the post line. The
// closer must run on every exit path.
func (l *Log) Scope(pre string) func(post string) {
	if l == nil {
		return func(string) {}
	}
	if pre != "" {
		l.line(l.group, "%s", pre)
	}
	l.depth++
	return func(post string) {
		l.depth--
		if post != "" {
			l.line(l.group, "%s", post)
		}
	}
}

func (l *Log) line(c *color.Color, format string, args ...any) {
	if l.w == nil {
		return
	}
	indent := strings.Repeat("  ", l.depth)
	msg := fmt.Sprintf(format, args...)
	if c != nil {
		c.Fprintf(l.w, "%s%s\n", indent, msg)
		return
	}
	fmt.Fprintf(l.w, "%s%s\n", indent, msg)
}
