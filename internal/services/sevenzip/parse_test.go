package sevenzip_test

import (
	"testing"

	"vrdl/internal/services/sevenzip"
	"vrdl/internal/testsupport"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line  string
		kind  sevenzip.EventKind
		total int
		name  string
	}{
		{line: "Files: 10", kind: sevenzip.EventTotal, total: 10},
		{line: "1 file, 104857600 bytes (100 MiB)", kind: sevenzip.EventUnrecognized},
		{line: "12 files, 2147483648 bytes (2048 MiB)", kind: sevenzip.EventUnrecognized},
		{line: "Folders: 1", kind: sevenzip.EventUnrecognized},
		{line: "--", kind: sevenzip.EventUnrecognized},
		{line: "- com.beatgames.beatsaber/base.apk", kind: sevenzip.EventFileDone, name: "com.beatgames.beatsaber/base.apk"},
		{line: "ERROR: Wrong password : main.obb", kind: sevenzip.EventWrongPassword},
		{line: "wrong password", kind: sevenzip.EventUnrecognized},
		{line: "Extracting archive: 3f2a.7z.001", kind: sevenzip.EventUnrecognized},
		{line: "Everything is Ok", kind: sevenzip.EventUnrecognized},
	}
	for _, tt := range tests {
		evt := sevenzip.ParseLine(tt.line)
		if evt.Kind != tt.kind || evt.Total != tt.total || evt.Name != tt.name {
			t.Fatalf("ParseLine(%q) = %+v", tt.line, evt)
		}
	}
}

func TestFileCounterSkipsArchiveProperties(t *testing.T) {
	var counter sevenzip.FileCounter
	for _, line := range testsupport.SevenZipListing("/downloads/abc/abc.7z.001", 7) {
		counter.Feed(line)
	}
	if counter.Files() != 7 || counter.WrongPassword() {
		t.Fatalf("files=%d wrongPassword=%v, want 7 files", counter.Files(), counter.WrongPassword())
	}

	var refused sevenzip.FileCounter
	refused.Feed("Can not open encrypted archive. Wrong password?")
	if !refused.WrongPassword() || refused.Files() != 0 {
		t.Fatalf("expected refused listing, got files=%d", refused.Files())
	}
}

func TestExtractionTranscriptHasNoEarlyTotal(t *testing.T) {
	head, entries, tail := testsupport.SevenZipExtraction("/downloads/abc/abc.7z.001", 10)
	for _, line := range append(head, entries...) {
		if evt := sevenzip.ParseLine(line); evt.Kind == sevenzip.EventTotal {
			t.Fatalf("ParseLine(%q) reported total %d before the summary", line, evt.Total)
		}
	}
	var total int
	for _, line := range tail {
		if evt := sevenzip.ParseLine(line); evt.Kind == sevenzip.EventTotal {
			total = evt.Total
		}
	}
	if total != 10 {
		t.Fatalf("summary total = %d, want 10", total)
	}
}

func TestPercentReservesCompletion(t *testing.T) {
	tests := []struct {
		extracted, total, want int
	}{
		{0, 10, 0},
		{1, 10, 10},
		{5, 10, 50},
		{10, 10, 99},
		{2, 3, 67},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := sevenzip.Percent(tt.extracted, tt.total); got != tt.want {
			t.Fatalf("Percent(%d, %d) = %d, want %d", tt.extracted, tt.total, got, tt.want)
		}
	}
}
