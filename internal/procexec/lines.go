package procexec

import (
	"regexp"
	"strings"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b[()][A-Za-z0-9]|\x1b[=>]`)

// StripANSI removes terminal control sequences from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// LineSplitter buffers raw output and emits complete lines. Lines end at '\n'
// or '\r'; empty lines are skipped. The zero value is not usable, construct
// with NewLineSplitter.
type LineSplitter struct {
	emit    func(string)
	partial []byte
}

// NewLineSplitter returns a splitter forwarding complete lines to emit.
func NewLineSplitter(emit func(string)) *LineSplitter {
	return &LineSplitter{emit: emit}
}

// Write consumes a chunk of output. It never fails.
func (s *LineSplitter) Write(p []byte) (int, error) {
	start := 0
	for i, b := range p {
		if b != '\n' && b != '\r' {
			continue
		}
		s.partial = append(s.partial, p[start:i]...)
		s.flushPartial()
		start = i + 1
	}
	s.partial = append(s.partial, p[start:]...)
	return len(p), nil
}

// Flush emits any buffered partial line. Call once at EOF.
func (s *LineSplitter) Flush() {
	s.flushPartial()
}

func (s *LineSplitter) flushPartial() {
	if len(s.partial) == 0 {
		return
	}
	line := strings.TrimSpace(StripANSI(string(s.partial)))
	s.partial = s.partial[:0]
	if line == "" {
		return
	}
	s.emit(line)
}

// tail keeps the last n lines.
type tail struct {
	lines []string
	limit int
}

func newTail(limit int) *tail {
	if limit <= 0 {
		limit = DefaultTailLines
	}
	return &tail{limit: limit}
}

func (t *tail) add(line string) {
	if len(t.lines) == t.limit {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.limit-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tail) snapshot() []string {
	return append([]string(nil), t.lines...)
}
