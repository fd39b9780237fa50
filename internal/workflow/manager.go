package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vrdl/internal/catalog"
	"vrdl/internal/config"
	"vrdl/internal/endpoint"
	"vrdl/internal/events"
	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/metrics"
	"vrdl/internal/notifications"
	"vrdl/internal/queue"
	"vrdl/internal/services/rclone"
	"vrdl/internal/services/sevenzip"
	"vrdl/internal/stage"
)

// ErrNotRunning is returned by commands issued before Start or after Stop.
var ErrNotRunning = errors.New("workflow not running")

// Transferer runs the transfer stage.
type Transferer interface {
	Transfer(ctx context.Context, req rclone.Request, obs rclone.Observer) stage.Outcome
	Cancel(releaseName string) bool
}

// Extractor runs the extraction stage.
type Extractor interface {
	Extract(ctx context.Context, req sevenzip.Request, obs sevenzip.Observer) stage.Outcome
	Cancel(releaseName string) bool
}

// Installer is the device collaborator.
type Installer interface {
	InstallPackage(ctx context.Context, path, serial string) error
	InstalledVersion(ctx context.Context, serial, pkg string) (string, bool, error)
}

// Recorder journals terminal outcomes.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (history.Entry, error)
}

// Catalog resolves release names to package metadata.
type Catalog interface {
	Find(releaseName string) (catalog.Entry, bool)
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithInstaller sets the device installer.
func WithInstaller(i Installer) Option { return func(m *Manager) { m.installer = i } }

// WithHub sets the event hub used for install-succeeded events.
func WithHub(h *events.Hub) Option { return func(m *Manager) { m.hub = h } }

// WithNotifier overrides the push notification service.
func WithNotifier(n notifications.Service) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithHistory sets the outcome journal.
func WithHistory(r Recorder) Option { return func(m *Manager) { m.history = r } }

// WithMetrics sets the Prometheus collectors.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithCatalog sets the catalog used to complete add requests.
func WithCatalog(c Catalog) Option { return func(m *Manager) { m.catalog = c } }

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager coordinates queue processing.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	transfer  Transferer
	extract   Extractor
	endpoint  endpoint.Source
	installer Installer
	hub       *events.Hub
	notifier  notifications.Service
	history   Recorder
	metrics   *metrics.Metrics
	catalog   Catalog
	now       func() time.Time

	cmds  chan func(*loopState)
	msgs  chan message
	done  chan struct{}
	bg    sync.WaitGroup
	runWG sync.WaitGroup

	mu      sync.RWMutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	status  statusSnapshot
}

// NewManager constructs a manager. Transfer, extraction, and the endpoint
// source are required.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, transfer Transferer, extract Extractor, source endpoint.Source, opts ...Option) (*Manager, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("workflow: config required")
	case store == nil:
		return nil, errors.New("workflow: queue store required")
	case transfer == nil || extract == nil:
		return nil, errors.New("workflow: stage drivers required")
	case source == nil:
		return nil, errors.New("workflow: endpoint source required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		transfer: transfer,
		extract:  extract,
		endpoint: source,
		notifier: notifications.NewService(cfg),
		now:      time.Now,
		cmds:     make(chan func(*loopState)),
		msgs:     make(chan message, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start launches the control goroutine and picks up any queued items.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.stopped {
		m.mu.Unlock()
		return errors.New("workflow stopped")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	st := newLoopState(runCtx)
	go m.loop(runCtx, st)
	return nil
}

// Stop cancels the active run, abandons installs in flight, and waits for
// the control goroutine and all stage goroutines to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	<-m.done
	m.runWG.Wait()
	m.bg.Wait()
}

// Queue returns a snapshot of every item in queue order.
func (m *Manager) Queue() []queue.Item {
	return m.store.All()
}

// do runs fn on the control goroutine and waits for it to finish.
func (m *Manager) do(ctx context.Context, fn func(*loopState) error) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	result := make(chan error, 1)
	wrapped := func(st *loopState) { result <- fn(st) }
	select {
	case m.cmds <- wrapped:
	case <-m.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-m.done:
		return ErrNotRunning
	}
}

// post delivers a stage message to the control goroutine. Messages posted
// after shutdown are dropped.
func (m *Manager) post(msg message) {
	select {
	case m.msgs <- msg:
	case <-m.done:
	}
}

// background runs fn outside the control goroutine; Stop waits for it.
func (m *Manager) background(fn func()) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		fn()
	}()
}

func (m *Manager) loop(ctx context.Context, st *loopState) {
	defer close(m.done)
	stall := time.NewTicker(stallCheckInterval)
	defer stall.Stop()

	m.startNext(st)
	for {
		select {
		case <-ctx.Done():
			m.shutdown(st)
			return
		case fn := <-m.cmds:
			fn(st)
		case msg := <-m.msgs:
			m.handle(st, msg)
		case <-stall.C:
			m.checkStall(st)
		}
		m.publishStatus(st)
	}
}
