package rclone_test

import (
	"testing"

	"vrdl/internal/services/rclone"
)

func TestObjectIDHashesReleaseWithTrailingNewline(t *testing.T) {
	if got := rclone.ObjectID("Beat Saber v1.0 +Quest"); got != "20842a5f03a371146dd61e30d220de70" {
		t.Fatalf("ObjectID = %q", got)
	}
	if got := rclone.ObjectID(""); got != "68b329da9893e34099c7d8ad5cb9c940" {
		t.Fatalf("ObjectID(\"\") = %q", got)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    rclone.EventKind
		percent int
		speed   string
		eta     string
	}{
		{
			name:    "stats one line",
			line:    "Transferred:   	  1.234 GiB / 10.000 GiB, 12%, 5.000 MiB/s, ETA 30m0s",
			kind:    rclone.EventProgress,
			percent: 12,
			speed:   "5.000 MiB/s",
			eta:     "30m0s",
		},
		{
			name:    "compact units",
			line:    "512KiB / 1MiB, 50%, 256KiB/s, ETA 2s",
			kind:    rclone.EventProgress,
			percent: 50,
			speed:   "256KiB/s",
			eta:     "2s",
		},
		{
			name:    "unknown eta",
			line:    "0 B / 2.5 GiB, 0%, 0 B/s, ETA -",
			kind:    rclone.EventProgress,
			percent: 0,
			speed:   "0 B/s",
		},
		{
			name:    "complete",
			line:    "2.500 GiB / 2.500 GiB, 100%, 12.1 MiB/s, ETA 0s",
			kind:    rclone.EventProgress,
			percent: 100,
			speed:   "12.1 MiB/s",
			eta:     "0s",
		},
		{
			name:    "unrelated",
			line:    "2024/05/01 10:00:00 NOTICE: Config file not found - using defaults",
			kind:    rclone.EventUnrecognized,
			percent: -1,
		},
		{
			name:    "blank",
			line:    "   ",
			kind:    rclone.EventUnrecognized,
			percent: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := rclone.ParseLine(tt.line)
			if evt.Kind != tt.kind || evt.Percent != tt.percent || evt.Speed != tt.speed || evt.ETA != tt.eta {
				t.Fatalf("ParseLine(%q) = %+v", tt.line, evt)
			}
		})
	}
}

func TestParseLineDetectsAuthFailures(t *testing.T) {
	lines := []string{
		"ERROR : failed to read directory: HTTP Error 401: 401 Unauthorized",
		"Failed to copy: 403 Forbidden",
		"http error 403 returned by server",
		"Authentication failed for remote",
	}
	for _, line := range lines {
		evt := rclone.ParseLine(line)
		if evt.Kind != rclone.EventAuthFailure {
			t.Fatalf("ParseLine(%q) kind = %v, want auth failure", line, evt.Kind)
		}
		if evt.Marker == "" {
			t.Fatalf("ParseLine(%q) missing marker", line)
		}
	}
}
