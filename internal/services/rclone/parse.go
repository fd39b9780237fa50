package rclone

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// ObjectID returns the remote directory name for a release: the lowercase hex
// MD5 of the release name followed by a newline.
func ObjectID(releaseName string) string {
	sum := md5.Sum([]byte(releaseName + "\n")) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// EventKind classifies a parsed output line.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventProgress
	EventAuthFailure
)

// Event is the structured form of one output line.
type Event struct {
	Kind EventKind
	// Percent is -1 when the line carries no percentage.
	Percent int
	Speed   string
	ETA     string
	// Marker is the auth-failure text that matched.
	Marker string
}

var (
	percentPattern = regexp.MustCompile(`B\s*/\s*[\d.]+\s*[KMGTPE]?i?B,\s*(\d{1,3})%`)
	speedPattern   = regexp.MustCompile(`,\s*([\d.]+\s*[KMGTPE]?i?B/s)`)
	etaPattern     = regexp.MustCompile(`ETA\s+([0-9a-zA-Z:.]+|-)`)
)

// authMarkers are matched case-insensitively.
var authMarkers = []string{
	"401 unauthorized",
	"403 forbidden",
	"http error 401",
	"http error 403",
	"authentication failed",
}

// ParseLine classifies one complete line of rclone output.
func ParseLine(line string) Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{Kind: EventUnrecognized, Percent: -1}
	}
	lower := strings.ToLower(line)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return Event{Kind: EventAuthFailure, Percent: -1, Marker: marker}
		}
	}

	evt := Event{Kind: EventUnrecognized, Percent: -1}
	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil && pct >= 0 && pct <= 100 {
			evt.Percent = pct
			evt.Kind = EventProgress
		}
	}
	if m := speedPattern.FindStringSubmatch(line); m != nil {
		evt.Speed = strings.TrimSpace(m[1])
		evt.Kind = EventProgress
	}
	if m := etaPattern.FindStringSubmatch(line); m != nil {
		if m[1] != "-" {
			evt.ETA = m[1]
		}
		evt.Kind = EventProgress
	}
	return evt
}
