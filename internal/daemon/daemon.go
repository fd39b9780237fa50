package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"vrdl/internal/api"
	"vrdl/internal/catalog"
	"vrdl/internal/config"
	"vrdl/internal/deps"
	"vrdl/internal/device"
	"vrdl/internal/endpoint"
	"vrdl/internal/events"
	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/metrics"
	"vrdl/internal/notifications"
	"vrdl/internal/queue"
	"vrdl/internal/workflow"
)

// ErrHistoryUnavailable is returned when no journal is configured.
var ErrHistoryUnavailable = errors.New("history journal unavailable")

// Option configures optional daemon collaborators.
type Option func(*Daemon)

// WithHub sets the event hub served by the HTTP event stream.
func WithHub(h *events.Hub) Option { return func(d *Daemon) { d.hub = h } }

// WithHistory sets the outcome journal.
func WithHistory(h *history.Store) Option { return func(d *Daemon) { d.history = h } }

// WithMetrics sets the collectors exposed at /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(d *Daemon) { d.metrics = m } }

// WithCatalog sets the game list used by catalog search.
func WithCatalog(c *catalog.Catalog) Option { return func(d *Daemon) { d.catalog = c } }

// WithEndpoint sets the endpoint source reported in status.
func WithEndpoint(s endpoint.Source) Option { return func(d *Daemon) { d.endpoint = s } }

// WithDeviceMonitor sets the headset monitor started with the daemon.
func WithDeviceMonitor(m *device.Monitor) Option { return func(d *Daemon) { d.monitor = m } }

// WithLogPath records the current run log file.
func WithLogPath(path string) Option { return func(d *Daemon) { d.logPath = path } }

// WithNotifier overrides the service used for test notifications.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	hub      *events.Hub
	history  *history.Store
	metrics  *metrics.Metrics
	catalog  *catalog.Catalog
	endpoint endpoint.Source
	monitor  *device.Monitor
	notifier notifications.Service
	api      *apiServer
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the workflow manager, the
// headset monitor, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vrdl daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}
	if d.monitor != nil {
		if err := d.monitor.Start(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "device monitor unavailable", "device_monitor_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check udev netlink permissions"),
				logging.String(logging.FieldImpact, "headset attach events will not be published"),
			)
		}
	}

	d.running.Store(true)
	d.logger.Info("vrdl daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.monitor != nil {
		d.monitor.Stop()
	}
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vrdl daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the history journal.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// Queue returns a snapshot of the queue in order.
func (d *Daemon) Queue() []queue.Item {
	return d.store.All()
}

// AddToQueue enqueues a release.
func (d *Daemon) AddToQueue(ctx context.Context, req api.AddRequest) (queue.Item, error) {
	return d.workflow.AddToQueue(ctx, workflow.AddRequest{
		ReleaseName: req.ReleaseName,
		PackageName: req.PackageName,
		DisplayName: req.DisplayName,
	})
}

// RemoveFromQueue drops a release, cancelling it first when active.
func (d *Daemon) RemoveFromQueue(ctx context.Context, releaseName string) error {
	return d.workflow.RemoveFromQueue(ctx, releaseName)
}

// CancelDownload cancels the active download or extraction.
func (d *Daemon) CancelDownload(ctx context.Context, releaseName string) error {
	return d.workflow.CancelUserRequest(ctx, releaseName)
}

// RetryDownload re-queues a failed or cancelled release.
func (d *Daemon) RetryDownload(ctx context.Context, releaseName string) error {
	return d.workflow.RetryDownload(ctx, releaseName)
}

// DeleteDownloadedFiles removes a release's artifacts and its queue entry.
func (d *Daemon) DeleteDownloadedFiles(ctx context.Context, releaseName string) error {
	return d.workflow.DeleteDownloadedFiles(ctx, releaseName)
}

// Install hands a completed release to the device installer.
func (d *Daemon) Install(ctx context.Context, releaseName, deviceID string) error {
	return d.workflow.InstallFromCompleted(ctx, releaseName, deviceID)
}

// History returns journal entries, newest first.
func (d *Daemon) History(ctx context.Context, filter history.Filter) ([]history.Entry, error) {
	if d.history == nil {
		return nil, ErrHistoryUnavailable
	}
	return d.history.List(ctx, filter)
}

// SearchCatalog returns catalog entries matching term. An empty catalog
// yields no matches.
func (d *Daemon) SearchCatalog(term string) []catalog.Entry {
	if d.catalog == nil {
		return nil
	}
	return d.catalog.Search(term)
}

// Subscribe registers an event stream consumer. It returns nil when the
// daemon has no hub.
func (d *Daemon) Subscribe(buffer int) *events.Subscription {
	if d.hub == nil {
		return nil
	}
	return d.hub.Subscribe(buffer)
}

// MetricsHandler serves the Prometheus registry.
func (d *Daemon) MetricsHandler() http.Handler {
	if d.metrics == nil {
		return http.NotFoundHandler()
	}
	return d.metrics.Handler()
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the current run log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
		LogPath:      d.logPath,
		APIAddress:   d.api.address(),
		Workflow:     api.FromStatusSummary(d.workflow.Status()),
		Dependencies: api.FromDependencies(deps.CheckBinaries(deps.Requirements(d.cfg))),
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	if d.catalog != nil {
		status.CatalogEntries = d.catalog.Len()
	}
	if d.endpoint != nil {
		_, status.EndpointReady = d.endpoint.Current()
	}
	if d.monitor != nil {
		status.DeviceMonitor = d.monitor.Running()
	}
	if d.hub != nil {
		status.EventSubscribers = d.hub.Subscribers()
	}
	return status
}
