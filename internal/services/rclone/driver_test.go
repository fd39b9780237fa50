package rclone_test

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

	"vrdl/internal/endpoint"
	"vrdl/internal/procexec"
	"vrdl/internal/services"
	"vrdl/internal/services/rclone"
	"vrdl/internal/stage"
	"vrdl/internal/testsupport"
)

const release = "Beat Saber v1.0 +Quest"

type recorder struct {
	mu       sync.Mutex
	progress []rclone.Progress
	started  int
	auth     []error
}

func (r *recorder) observer() rclone.Observer {
	return rclone.Observer{
		OnStarted: func(procexec.Handle) {
			r.mu.Lock()
			r.started++
			r.mu.Unlock()
		},
		OnProgress: func(p rclone.Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnAuthFailure: func(err error) {
			r.mu.Lock()
			r.auth = append(r.auth, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.progress))
	for _, p := range r.progress {
		out = append(out, p.Percent)
	}
	return out
}

func newDriver(t *testing.T, launcher procexec.Launcher, opts ...rclone.Option) *rclone.Driver {
	t.Helper()
	opts = append([]rclone.Option{rclone.WithLauncher(launcher)}, opts...)
	driver, err := rclone.New(func() string { return "rclone" }, opts...)
	if err != nil {
		t.Fatalf("rclone.New: %v", err)
	}
	return driver
}

func request(t *testing.T) rclone.Request {
	t.Helper()
	return rclone.Request{
		ReleaseName:  release,
		DownloadPath: filepath.Join(t.TempDir(), "dl"),
		Endpoint:     endpoint.Config{BaseURI: "https://content.example.test/", Password: "c2VjcmV0"},
	}
}

func runAsync(driver *rclone.Driver, req rclone.Request, obs rclone.Observer) <-chan stage.Outcome {
	out := make(chan stage.Outcome, 1)
	go func() { out <- driver.Transfer(context.Background(), req, obs) }()
	return out
}

func await(t *testing.T, ch <-chan stage.Outcome) stage.Outcome {
	t.Helper()
	select {
	case outcome := <-ch:
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish")
		return stage.Outcome{}
	}
}

func TestArgsIncludeObjectPathAndLimits(t *testing.T) {
	driver := newDriver(t, testsupport.NewFakeLauncher(), rclone.WithLimits("8M", 4))
	req := request(t)
	args := driver.Args(req)

	if args[0] != "copy" {
		t.Fatalf("expected copy subcommand, got %q", args[0])
	}
	if args[1] != ":http:/"+rclone.ObjectID(release)+"/" {
		t.Fatalf("unexpected source %q", args[1])
	}
	if args[2] != req.DownloadPath {
		t.Fatalf("unexpected destination %q", args[2])
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"--http-url https://content.example.test/", "--bwlimit 8M", "--tpslimit 4", "--stats-one-line"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "c2VjcmV0") {
		t.Fatalf("args leak the password: %q", joined)
	}
}

func TestTransferMissingConfiguration(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)
	req := request(t)
	req.Endpoint.Password = ""

	outcome := driver.Transfer(context.Background(), req, rclone.Observer{})
	if outcome.Result != stage.Failed {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, services.ErrConfigurationMissing) {
		t.Fatalf("expected configuration marker, got %v", outcome.Err)
	}
	if outcome.Message() != "missing configuration" {
		t.Fatalf("unexpected message %q", outcome.Message())
	}
	if len(launcher.Launches()) != 0 {
		t.Fatal("no process should be spawned without configuration")
	}
}

func TestTransferSuccessReportsMonotonicProgress(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)
	rec := &recorder{}
	req := request(t)

	done := runAsync(driver, req, rec.observer())
	proc := launcher.Next(t)
	proc.Emit(
		"0 B / 1 GiB, 0%, 0 B/s, ETA -",
		"100 MiB / 1 GiB, 10%, 20 MiB/s, ETA 45s",
		"50 MiB / 1 GiB, 5%, 20 MiB/s, ETA 50s",
		"1 GiB / 1 GiB, 100%, 20 MiB/s, ETA 0s",
	)
	proc.Exit(0)

	outcome := await(t, done)
	if outcome.Result != stage.Succeeded || !outcome.NextStage {
		t.Fatalf("expected success with next stage, got %+v", outcome)
	}
	if got := rec.percents(); !slices.Equal(got, []int{0, 10, 100}) {
		t.Fatalf("unexpected progress sequence %v", got)
	}
	if _, err := os.Stat(req.DownloadPath); err != nil {
		t.Fatalf("download dir not created: %v", err)
	}
	if rec.started != 1 {
		t.Fatalf("expected one start callback, got %d", rec.started)
	}
}

func TestTransferNonZeroExitCarriesDiagnosticTail(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)

	done := runAsync(driver, request(t), rclone.Observer{})
	proc := launcher.Next(t)
	proc.Emit("ERROR : object not found", "Failed to copy: directory not found")
	proc.Exit(3)

	outcome := await(t, done)
	if outcome.Result != stage.Failed || !errors.Is(outcome.Err, services.ErrTransfer) {
		t.Fatalf("expected transfer failure, got %+v", outcome)
	}
	if !strings.Contains(outcome.Message(), "directory not found") {
		t.Fatalf("message should include output tail: %q", outcome.Message())
	}
	if !strings.Contains(outcome.Message(), "exit status 3") {
		t.Fatalf("message should include exit status: %q", outcome.Message())
	}
}

func TestTransferAuthFailureCancelsImmediately(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)
	rec := &recorder{}

	done := runAsync(driver, request(t), rec.observer())
	proc := launcher.Next(t)
	proc.Emit("10 MiB / 1 GiB, 1%, 2 MiB/s, ETA 8m", "ERROR : HTTP Error 401: 401 Unauthorized")

	outcome := await(t, done)
	if outcome.Result != stage.Failed || !errors.Is(outcome.Err, services.ErrAuth) {
		t.Fatalf("expected auth failure, got %+v", outcome)
	}
	if !proc.Cancelled() || !proc.Detached() {
		t.Fatal("auth failure should detach and cancel the process")
	}
	rec.mu.Lock()
	authCalls := len(rec.auth)
	rec.mu.Unlock()
	if authCalls != 1 {
		t.Fatalf("expected one auth callback, got %d", authCalls)
	}
	if !strings.Contains(outcome.Message(), "credentials") {
		t.Fatalf("expected credential message, got %q", outcome.Message())
	}
}

func TestTransferCancelStopsProgress(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	driver := newDriver(t, launcher)
	rec := &recorder{}

	done := runAsync(driver, request(t), rec.observer())
	proc := launcher.Next(t)
	proc.Emit("100 MiB / 1 GiB, 10%, 20 MiB/s, ETA 45s")

	deadline := time.Now().Add(2 * time.Second)
	for !driver.Cancel(release) {
		if time.Now().After(deadline) {
			t.Fatal("transfer was never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	proc.Emit("200 MiB / 1 GiB, 20%, 20 MiB/s, ETA 40s")

	outcome := await(t, done)
	if outcome.Result != stage.Cancelled {
		t.Fatalf("expected cancellation, got %+v", outcome)
	}
	if got := rec.percents(); !slices.Equal(got, []int{10}) {
		t.Fatalf("progress after cancel must be dropped, got %v", got)
	}
	if driver.Cancel(release) {
		t.Fatal("cancel after exit should report nothing running")
	}
}

func TestTransferSpawnFailure(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	launcher.Err = errors.New("exec: \"rclone\": executable file not found in $PATH")
	driver := newDriver(t, launcher)

	outcome := driver.Transfer(context.Background(), request(t), rclone.Observer{})
	if outcome.Result != stage.Failed || !errors.Is(outcome.Err, services.ErrProcessSpawn) {
		t.Fatalf("expected spawn failure, got %+v", outcome)
	}
}

// lineThenFailLauncher delivers one output line from its own goroutine and
// fails the launch.
type lineThenFailLauncher struct {
	line      string
	delivered chan struct{}
}

func (l *lineThenFailLauncher) Launch(_ context.Context, _ procexec.Spec, onLine func(string)) (procexec.Handle, error) {
	go func() {
		defer close(l.delivered)
		onLine(l.line)
	}()
	return nil, errors.New("fork/exec rclone: resource temporarily unavailable")
}

func TestTransferAuthLineWithoutProcess(t *testing.T) {
	launcher := &lineThenFailLauncher{line: "ERROR : HTTP Error 401: 401 Unauthorized", delivered: make(chan struct{})}
	driver := newDriver(t, launcher)
	rec := &recorder{}

	outcome := driver.Transfer(context.Background(), request(t), rec.observer())
	if outcome.Result != stage.Failed || !errors.Is(outcome.Err, services.ErrProcessSpawn) {
		t.Fatalf("expected spawn failure, got %+v", outcome)
	}
	select {
	case <-launcher.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("output line was never handled")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.auth) != 0 {
		t.Fatalf("no auth callback without a process, got %d", len(rec.auth))
	}
}
