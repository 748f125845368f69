package agent

import (
	"io"
	"strings"
)

// lineRing keeps the last N lines of a stream. Stderr can be huge on a
// misbehaving CLI, only the tail is useful in error reports.
type lineRing struct {
	max   int
	lines []string
}

func newLineRing(max int) *lineRing {
	return &lineRing{max: max}
}

func (r *lineRing) Append(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}

// Tail returns the last n lines joined with newlines.
func (r *lineRing) Tail(n int) string {
	if n > len(r.lines) {
		n = len(r.lines)
	}
	return strings.Join(r.lines[len(r.lines)-n:], "\n")
}

func (r *lineRing) Len() int { return len(r.lines) }

// drainLines feeds a stream into the ring until EOF. It must keep reading
// even when nobody cares about the content, otherwise the subprocess blocks
// on a full pipe. Overlong lines degrade to raw chunks instead of stopping
// the drain.
func drainLines(r io.Reader, ring *lineRing) {
	_ = readLines(r, ring.Append)
}
