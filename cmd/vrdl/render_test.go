package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"vrdl/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("vrdl", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "vrdl:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("vrdl", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green wrapped line, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "rclone", Available: true, Command: "rclone"},
		{Name: "7-Zip", Available: false},
		{Name: "adb", Available: false, Optional: true, Detail: "not found"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] 1 required missing, 1 optional missing") {
		t.Fatalf("unexpected summary %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: rclone)") {
		t.Fatalf("unexpected ready line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[ERROR] not available") {
		t.Fatalf("unexpected missing line %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN] not found") {
		t.Fatalf("unexpected optional line %q", lines[3])
	}
}

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"install_error": "Install Error",
		"downloading":   "Downloading",
		"":              "Unknown",
	}
	for in, want := range cases {
		if got := formatStatusLabel(in); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQueueItemProgress(t *testing.T) {
	extract := 40
	tests := []struct {
		item api.QueueItem
		want string
	}{
		{api.QueueItem{Status: "downloading", Progress: 12}, "12%"},
		{api.QueueItem{Status: "extracting", ExtractProgress: &extract}, "40%"},
		{api.QueueItem{Status: "error", Error: "wrong password"}, "wrong password"},
		{api.QueueItem{Status: "queued"}, ""},
	}
	for _, tt := range tests {
		if got := queueItemProgress(tt.item); got != tt.want {
			t.Fatalf("queueItemProgress(%s) = %q, want %q", tt.item.Status, got, tt.want)
		}
	}
}

func TestQueueWatcherPlainOutput(t *testing.T) {
	var out bytes.Buffer
	w := newQueueWatcher(&out, false)
	item := api.QueueItem{ReleaseName: "Alpha v1", Status: "downloading", Progress: 10, Speed: "1.2 MB/s"}
	w.render(&item)
	w.render(&item)
	item.Progress = 20
	w.render(&item)
	w.render(nil)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"Alpha v1 Downloading 10% (1.2 MB/s)",
		"Alpha v1 Downloading 20% (1.2 MB/s)",
		"Idle",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestActiveItem(t *testing.T) {
	items := []api.QueueItem{
		{ReleaseName: "a", Status: "completed"},
		{ReleaseName: "b", Status: "extracting"},
		{ReleaseName: "c", Status: "queued"},
	}
	if got := activeItem(items); got == nil || got.ReleaseName != "b" {
		t.Fatalf("activeItem = %+v", got)
	}
	if activeItem(items[:1]) != nil {
		t.Fatalf("expected no active item")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
