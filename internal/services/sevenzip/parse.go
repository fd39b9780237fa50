package sevenzip

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// WrongPasswordMarker is the 7z error text for a rejected password. Matched
// case-sensitively.
const WrongPasswordMarker = "Wrong password"

// EventKind classifies a parsed output line.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventTotal
	EventFileDone
	EventWrongPassword
)

// Event is the structured form of one output line.
type Event struct {
	Kind  EventKind
	Total int
	Name  string
}

var filesSummaryPattern = regexp.MustCompile(`^Files:\s*(\d+)\s*$`)

// ParseLine classifies one complete line of `7z x -bb1` output. Only the
// closing "Files: N" summary carries a total; the "1 file, N bytes" scan
// line near the top counts archives, not entries.
func ParseLine(line string) Event {
	if strings.Contains(line, WrongPasswordMarker) {
		return Event{Kind: EventWrongPassword}
	}
	line = strings.TrimSpace(line)
	if name, ok := strings.CutPrefix(line, "- "); ok {
		return Event{Kind: EventFileDone, Name: strings.TrimSpace(name)}
	}
	if m := filesSummaryPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return Event{Kind: EventTotal, Total: n}
		}
	}
	return Event{Kind: EventUnrecognized}
}

const listSeparator = "----------"

// FileCounter counts regular files in `7z l -slt` output. Entry blocks
// follow the "----------" separator; the archive property blocks before it
// are skipped.
type FileCounter struct {
	entries       bool
	files         int
	wrongPassword bool
}

// Feed consumes one listing line.
func (c *FileCounter) Feed(line string) {
	if strings.Contains(line, WrongPasswordMarker) {
		c.wrongPassword = true
		return
	}
	line = strings.TrimSpace(line)
	if line == listSeparator {
		c.entries = true
		return
	}
	if !c.entries {
		return
	}
	key, value, ok := strings.Cut(line, "=")
	if ok && strings.TrimSpace(key) == "Folder" && strings.TrimSpace(value) == "-" {
		c.files++
	}
}

// Files returns the number of regular files seen.
func (c *FileCounter) Files() int { return c.files }

// WrongPassword reports whether the listing was refused for the password.
func (c *FileCounter) WrongPassword() bool { return c.wrongPassword }

// Percent derives extract progress, reserving 100 for a clean exit.
func Percent(extracted, total int) int {
	if total <= 0 || extracted <= 0 {
		return 0
	}
	pct := int(math.Round(float64(extracted) / float64(total) * 100))
	return min(pct, 99)
}
