package sevenzip_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"vrdl/internal/services"
	"vrdl/internal/services/sevenzip"
	"vrdl/internal/stage"
	"vrdl/internal/testsupport"
)

const password = "s3cret!"

func newDriver(t *testing.T, launcher *testsupport.FakeLauncher) *sevenzip.Driver {
	t.Helper()
	driver, err := sevenzip.New(func() string { return "7z" }, sevenzip.WithLauncher(launcher))
	if err != nil {
		t.Fatalf("sevenzip.New: %v", err)
	}
	return driver
}

func extractAsync(driver *sevenzip.Driver, req sevenzip.Request, obs sevenzip.Observer) <-chan stage.Outcome {
	out := make(chan stage.Outcome, 1)
	go func() { out <- driver.Extract(context.Background(), req, obs) }()
	return out
}

func await(t *testing.T, ch <-chan stage.Outcome) stage.Outcome {
	t.Helper()
	select {
	case outcome := <-ch:
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("extraction did not finish")
		return stage.Outcome{}
	}
}

// answerListing serves the listing pass with files regular files and
// returns the listing process.
func answerListing(t *testing.T, launcher *testsupport.FakeLauncher, archive string, files int) *testsupport.FakeProcess {
	t.Helper()
	p := launcher.Next(t)
	if len(p.Spec.Args) < 2 || p.Spec.Args[0] != "l" || p.Spec.Args[1] != "-slt" {
		t.Fatalf("expected listing launch, got %v", p.Spec.Args)
	}
	p.Emit(testsupport.SevenZipListing(archive, files)...)
	p.Exit(0)
	return p
}

func nextExtraction(t *testing.T, launcher *testsupport.FakeLauncher) *testsupport.FakeProcess {
	t.Helper()
	p := launcher.Next(t)
	if len(p.Spec.Args) == 0 || p.Spec.Args[0] != "x" {
		t.Fatalf("expected extraction launch, got %v", p.Spec.Args)
	}
	return p
}

func TestFindArchivePrefersFirstVolume(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteVolumes(t, dir, "abc", 3)
	testsupport.WriteFile(t, filepath.Join(dir, "other.7z"), 8)

	got, err := sevenzip.FindArchive(dir)
	if err != nil {
		t.Fatalf("FindArchive: %v", err)
	}
	if filepath.Base(got) != "abc.7z.001" {
		t.Fatalf("expected first volume, got %q", got)
	}
	if parts := sevenzip.ArchiveParts(got); len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %v", parts)
	}
}

func TestFindArchiveFallsBackToSingleFile(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "single.7z"), 8)
	got, err := sevenzip.FindArchive(dir)
	if err != nil || filepath.Base(got) != "single.7z" {
		t.Fatalf("FindArchive = %q, %v", got, err)
	}
	if _, err := sevenzip.FindArchive(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without archives")
	}
}

func TestExtractMissingDirectory(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)
	outcome := driver.Extract(context.Background(), sevenzip.Request{
		ReleaseName:  "X",
		DownloadPath: filepath.Join(t.TempDir(), "missing"),
		Password:     password,
	}, sevenzip.Observer{})
	if outcome.Result != stage.Failed || !errors.Is(outcome.Err, services.ErrArchive) {
		t.Fatalf("expected archive failure, got %+v", outcome)
	}
	if len(launcher.Launches()) != 0 {
		t.Fatal("no process should start without a download directory")
	}
}

func TestExtractSuccessRemovesVolumes(t *testing.T) {
	dir := t.TempDir()
	volumes := testsupport.WriteVolumes(t, dir, "abc", 2)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	var mu sync.Mutex
	var seen []int
	obs := sevenzip.Observer{OnProgress: func(p int) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}}
	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, obs)
	list := answerListing(t, launcher, volumes[0], 10)
	if !slices.Contains(list.Spec.Args, volumes[0]) || !slices.Contains(list.Spec.Secrets, password) {
		t.Fatalf("unexpected listing spec %+v", list.Spec)
	}
	proc := nextExtraction(t, launcher)

	if !slices.Contains(proc.Spec.Args, "-p"+password) || !slices.Contains(proc.Spec.Args, "-o"+dir) {
		t.Fatalf("unexpected args %v", proc.Spec.Args)
	}
	if !slices.Contains(proc.Spec.Secrets, password) {
		t.Fatal("password must be registered as a secret")
	}

	head, entries, tail := testsupport.SevenZipExtraction(volumes[0], 10)
	proc.Emit(head...)
	proc.Emit(entries...)
	proc.Emit(tail...)
	proc.Exit(0)

	outcome := await(t, done)
	if outcome.Result != stage.Succeeded {
		t.Fatalf("expected success, got %+v", outcome)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 99}) {
		t.Fatalf("unexpected progress %v", seen)
	}
	for _, v := range volumes {
		if _, err := os.Stat(v); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("volume %s not removed: %v", v, err)
		}
	}
}

func TestExtractWrongPasswordTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	volumes := testsupport.WriteVolumes(t, dir, "abc", 1)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, sevenzip.Observer{})
	answerListing(t, launcher, volumes[0], 1)
	proc := nextExtraction(t, launcher)
	proc.Emit("ERROR: Wrong password : base.apk", "Sub items Errors: 1")
	proc.Exit(2)

	outcome := await(t, done)
	if !errors.Is(outcome.Err, services.ErrArchivePassword) {
		t.Fatalf("expected password failure, got %+v", outcome)
	}
	if errors.Is(outcome.Err, services.ErrArchive) {
		t.Fatal("password failure must be distinct from generic archive failure")
	}
}

func TestExtractFailureRedactsPassword(t *testing.T) {
	dir := t.TempDir()
	volumes := testsupport.WriteVolumes(t, dir, "abc", 1)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, sevenzip.Observer{})
	answerListing(t, launcher, volumes[0], 1)
	proc := nextExtraction(t, launcher)
	proc.Emit("Command Line Error: bad switch -p"+password, "ERROR: Data Error : base.apk")
	proc.Exit(2)

	outcome := await(t, done)
	if !errors.Is(outcome.Err, services.ErrArchive) {
		t.Fatalf("expected archive failure, got %+v", outcome)
	}
	msg := outcome.Message()
	if strings.Contains(msg, password) {
		t.Fatalf("message leaks password: %q", msg)
	}
	if !strings.Contains(msg, "Data Error") {
		t.Fatalf("message should carry diagnostic tail: %q", msg)
	}
}

func cancelWhenTracked(t *testing.T, driver *sevenzip.Driver, release string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !driver.Cancel(release) {
		if time.Now().After(deadline) {
			t.Fatal("extraction was never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExtractCancelDuringListing(t *testing.T) {
	dir := t.TempDir()
	volumes := testsupport.WriteVolumes(t, dir, "abc", 1)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, sevenzip.Observer{})
	list := launcher.Next(t)
	cancelWhenTracked(t, driver, "X")
	outcome := await(t, done)
	if outcome.Result != stage.Cancelled {
		t.Fatalf("expected cancellation, got %+v", outcome)
	}
	if !list.Cancelled() || len(launcher.Launches()) != 1 {
		t.Fatalf("listing should be cancelled before extraction starts, launches=%d", len(launcher.Launches()))
	}
	if _, err := os.Stat(volumes[0]); err != nil {
		t.Fatalf("cancelled extraction must keep volumes: %v", err)
	}
}

func TestExtractCancel(t *testing.T) {
	dir := t.TempDir()
	volumes := testsupport.WriteVolumes(t, dir, "abc", 1)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, sevenzip.Observer{})
	answerListing(t, launcher, volumes[0], 4)
	proc := nextExtraction(t, launcher)
	cancelWhenTracked(t, driver, "X")
	outcome := await(t, done)
	if outcome.Result != stage.Cancelled {
		t.Fatalf("expected cancellation, got %+v", outcome)
	}
	if !proc.Cancelled() {
		t.Fatal("extraction process should be cancelled")
	}
	if _, err := os.Stat(volumes[0]); err != nil {
		t.Fatalf("cancelled extraction must keep volumes: %v", err)
	}
}

func TestExtractListingRejectsPassword(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteVolumes(t, dir, "abc", 1)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, sevenzip.Observer{})
	list := launcher.Next(t)
	list.Emit("ERROR: abc.7z.001", "Can not open encrypted archive. Wrong password?", "ERRORS:", "Is not archive")
	list.Exit(2)

	outcome := await(t, done)
	if !errors.Is(outcome.Err, services.ErrArchivePassword) {
		t.Fatalf("expected password failure, got %+v", outcome)
	}
	if n := len(launcher.Launches()); n != 1 {
		t.Fatalf("extraction must not start after a rejected listing, launches=%d", n)
	}
}

func TestExtractWithoutListingTotal(t *testing.T) {
	dir := t.TempDir()
	volumes := testsupport.WriteVolumes(t, dir, "abc", 1)
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	var mu sync.Mutex
	var seen []int
	obs := sevenzip.Observer{OnProgress: func(p int) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}}
	done := extractAsync(driver, sevenzip.Request{ReleaseName: "X", DownloadPath: dir, Password: password}, obs)
	list := launcher.Next(t)
	list.Emit("ERROR: Unsupported feature")
	list.Exit(2)

	proc := nextExtraction(t, launcher)
	head, entries, tail := testsupport.SevenZipExtraction(volumes[0], 3)
	proc.Emit(head...)
	proc.Emit(entries...)
	proc.Emit(tail...)
	proc.Exit(0)

	if outcome := await(t, done); outcome.Result != stage.Succeeded {
		t.Fatalf("expected success, got %+v", outcome)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, []int{0, 99}) {
		t.Fatalf("unexpected progress %v", seen)
	}
}
