package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vrdl/internal/logging"
)

func makeRelease(t *testing.T, root, name string, age time.Duration, files ...string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	if age > 0 {
		ts := time.Now().Add(-age)
		if err := os.Chtimes(dir, ts, ts); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	return dir
}

func TestRemoveArtifacts(t *testing.T) {
	root := t.TempDir()
	dir := makeRelease(t, root, "Game v1", 0, "game.apk")

	if err := RemoveArtifacts(root, dir); err != nil {
		t.Fatalf("RemoveArtifacts: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, stat err=%v", err)
	}
	if err := RemoveArtifacts(root, dir); err != nil {
		t.Fatalf("second removal should be a no-op, got %v", err)
	}
}

func TestRemoveArtifactsRejectsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	for _, path := range []string{root, filepath.Join(root, ".."), outside, filepath.Join(root, "..", "x"), ""} {
		err := RemoveArtifacts(root, path)
		if !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("RemoveArtifacts(%q) = %v, want ErrOutsideRoot", path, err)
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("outside directory touched: %v", err)
	}
}

func TestPruneStalePartials(t *testing.T) {
	root := t.TempDir()
	stale := makeRelease(t, root, "stale", 3*time.Hour, "stale.7z.001", "stale.7z.002")
	fresh := makeRelease(t, root, "fresh", 0, "fresh.7z.001")
	extracted := makeRelease(t, root, "extracted", 3*time.Hour, "game.apk")
	active := makeRelease(t, root, "active", 3*time.Hour, "active.7z.001")

	keep := map[string]struct{}{active: {}}
	result := PruneStalePartials(context.Background(), root, time.Hour, keep, logging.NewNop())

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %#v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("expected only %s removed, got %v", stale, result.Removed)
	}
	for _, dir := range []string{fresh, extracted, active} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should remain: %v", dir, err)
		}
	}
}

func TestPruneStalePartialsInvalidRoots(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := PruneStalePartials(context.Background(), dir, time.Hour, nil, nil)
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for root %q", dir)
		}
	}
}

func TestListDirectories(t *testing.T) {
	root := t.TempDir()
	makeRelease(t, root, "a", 0, "a.7z.001")
	makeRelease(t, root, "b", 0, "b.apk")
	if err := os.WriteFile(filepath.Join(root, "loose.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dirs, err := ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 dirs, got %d", len(dirs))
	}
	byName := map[string]DirInfo{}
	for _, d := range dirs {
		byName[d.Name] = d
	}
	if !byName["a"].Partial || byName["b"].Partial {
		t.Fatalf("unexpected partial flags: %#v", byName)
	}
	if byName["a"].Size != 4 {
		t.Fatalf("expected size 4, got %d", byName["a"].Size)
	}

	missing, err := ListDirectories(filepath.Join(root, "nope"))
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing root, got %v %v", missing, err)
	}
}
