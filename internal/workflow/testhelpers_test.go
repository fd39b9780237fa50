package workflow_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vrdl/internal/catalog"
	"vrdl/internal/config"
	"vrdl/internal/endpoint"
	"vrdl/internal/events"
	"vrdl/internal/history"
	"vrdl/internal/notifications"
	"vrdl/internal/queue"
	"vrdl/internal/services/rclone"
	"vrdl/internal/services/sevenzip"
	"vrdl/internal/stage"
	"vrdl/internal/testsupport"
	"vrdl/internal/workflow"
)

const waitTimeout = 5 * time.Second

type installCall struct {
	path   string
	serial string
}

type stubInstaller struct {
	mu    sync.Mutex
	calls []installCall
	err   error
	block chan struct{}
}

func (s *stubInstaller) InstallPackage(ctx context.Context, path, serial string) error {
	s.mu.Lock()
	s.calls = append(s.calls, installCall{path: path, serial: serial})
	block, err := s.block, s.err
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *stubInstaller) InstalledVersion(context.Context, string, string) (string, bool, error) {
	return "42", true, nil
}

func (s *stubInstaller) Calls() []installCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]installCall(nil), s.calls...)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (r *memoryRecorder) Record(_ context.Context, entry history.Entry) (history.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memoryRecorder) kinds(release string) []history.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Kind
	for _, e := range r.entries {
		if e.ReleaseName == release {
			out = append(out, e.Kind)
		}
	}
	return out
}

type capturedNotification struct {
	event   notifications.Event
	payload notifications.Payload
}

type memoryNotifier struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (n *memoryNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, capturedNotification{event: event, payload: payload})
	return nil
}

func (n *memoryNotifier) events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Event, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.event)
	}
	return out
}

type harness struct {
	cfg       *config.Config
	store     *queue.Store
	launcher  *testsupport.FakeLauncher
	installer *stubInstaller
	recorder  *memoryRecorder
	notifier  *memoryNotifier
	hub       *events.Hub
	mgr       *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:       cfg,
		store:     queue.NewStore(),
		launcher:  testsupport.NewFakeLauncher(),
		installer: &stubInstaller{},
		recorder:  &memoryRecorder{},
		notifier:  &memoryNotifier{},
		hub:       events.NewHub(),
	}
	transfer, err := rclone.New(cfg.RcloneBinary, rclone.WithLauncher(h.launcher))
	if err != nil {
		t.Fatalf("rclone.New: %v", err)
	}
	extract, err := sevenzip.New(cfg.SevenZipBinary, sevenzip.WithLauncher(h.launcher))
	if err != nil {
		t.Fatalf("sevenzip.New: %v", err)
	}
	source := endpoint.NewStatic(endpoint.Config{BaseURI: cfg.Endpoint.BaseURI, Password: cfg.Endpoint.Password})

	mgr, err := workflow.NewManager(cfg, h.store, nil, transfer, extract, source,
		workflow.WithInstaller(h.installer),
		workflow.WithHistory(h.recorder),
		workflow.WithNotifier(h.notifier),
		workflow.WithHub(h.hub),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	h.mgr = mgr
	return h
}

func (h *harness) releaseDir(release string) string {
	return filepath.Join(h.cfg.Paths.DownloadDir, release)
}

// prepareVolumes places archive volumes where the transfer would have written
// them.
func (h *harness) prepareVolumes(t *testing.T, release string) []string {
	t.Helper()
	return testsupport.WriteVolumes(t, h.releaseDir(release), "game", 2)
}

func (h *harness) add(t *testing.T, release string) {
	t.Helper()
	if _, err := h.mgr.AddToQueue(context.Background(), workflow.AddRequest{ReleaseName: release}); err != nil {
		t.Fatalf("AddToQueue(%q): %v", release, err)
	}
}

// nextTransfer waits for the next launch and checks it is an rclone
// transfer for release.
func (h *harness) nextTransfer(t *testing.T, release string) *testsupport.FakeProcess {
	t.Helper()
	p := h.launcher.Next(t)
	if p.Spec.Binary != "rclone" {
		t.Fatalf("expected rclone launch, got %q", p.Spec.Binary)
	}
	if got := filepath.Base(p.Spec.Args[2]); got != release {
		t.Fatalf("expected transfer of %q, got %q", release, got)
	}
	return p
}

// extractFiles is the entry count of every archive the harness lists.
const extractFiles = 10

// nextExtract answers the archive listing for release with extractFiles
// entries and returns the extraction process that follows it.
func (h *harness) nextExtract(t *testing.T, release string) *testsupport.FakeProcess {
	t.Helper()
	list := h.next7z(t, release, "l")
	list.Emit(testsupport.SevenZipListing(list.Spec.Args[len(list.Spec.Args)-1], extractFiles)...)
	list.Exit(0)
	return h.next7z(t, release, "x")
}

func (h *harness) next7z(t *testing.T, release, command string) *testsupport.FakeProcess {
	t.Helper()
	p := h.launcher.Next(t)
	if p.Spec.Binary != "7z" || len(p.Spec.Args) == 0 || p.Spec.Args[0] != command {
		t.Fatalf("expected 7z %s launch, got %q %v", command, p.Spec.Binary, p.Spec.Args)
	}
	if got := filepath.Base(p.Spec.Dir); got != release {
		t.Fatalf("expected extraction of %q, got %q", release, got)
	}
	return p
}

func finishTransfer(p *testsupport.FakeProcess) {
	p.Emit(
		"0 B / 1 GiB, 0%, 0 B/s, ETA -",
		"512 MiB / 1 GiB, 50%, 10 MiB/s, ETA 50s",
		"1 GiB / 1 GiB, 100%, 10 MiB/s, ETA 0s",
	)
	p.Exit(0)
}

func finishExtract(p *testsupport.FakeProcess) {
	head, entries, tail := testsupport.SevenZipExtraction(p.Spec.Args[1], extractFiles)
	p.Emit(head...)
	p.Emit(entries...)
	p.Emit(tail...)
	p.Exit(0)
}

// runToCompletion drives a queued release through both stages.
func (h *harness) runToCompletion(t *testing.T, release string) queue.Item {
	t.Helper()
	finishTransfer(h.nextTransfer(t, release))
	finishExtract(h.nextExtract(t, release))
	return h.waitStatus(t, release, queue.StatusCompleted)
}

func (h *harness) waitItem(t *testing.T, release string, cond func(queue.Item) bool) queue.Item {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		item, ok := h.store.Find(release)
		if ok && cond(item) {
			return item
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting on %q (last: %+v, found=%v)", release, item, ok)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitStatus(t *testing.T, release string, status queue.Status) queue.Item {
	t.Helper()
	return h.waitItem(t, release, func(item queue.Item) bool { return item.Status == status })
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func processingCount(items []queue.Item) int {
	n := 0
	for _, item := range items {
		if queue.IsProcessingStatus(item.Status) {
			n++
		}
	}
	return n
}

type fakeCatalog map[string]catalog.Entry

func (c fakeCatalog) Find(release string) (catalog.Entry, bool) {
	e, ok := c[release]
	return e, ok
}

// noopTransfer blocks until cancelled.
type noopTransfer struct{}

func (noopTransfer) Transfer(ctx context.Context, _ rclone.Request, _ rclone.Observer) stage.Outcome {
	<-ctx.Done()
	return stage.Cancel()
}

func (noopTransfer) Cancel(string) bool { return false }

type noopExtract struct{}

func (noopExtract) Extract(ctx context.Context, _ sevenzip.Request, _ sevenzip.Observer) stage.Outcome {
	<-ctx.Done()
	return stage.Cancel()
}

func (noopExtract) Cancel(string) bool { return false }

// staticSource reports no endpoint configuration.
type staticSource struct{}

func (staticSource) Current() (endpoint.Config, bool) { return endpoint.Config{}, false }

func (h *harness) mgrTransfer(t *testing.T) *rclone.Driver {
	t.Helper()
	d, err := rclone.New(h.cfg.RcloneBinary, rclone.WithLauncher(h.launcher))
	if err != nil {
		t.Fatalf("rclone.New: %v", err)
	}
	return d
}
