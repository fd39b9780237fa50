package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vrdl/internal/catalog"
	"vrdl/internal/config"
	"vrdl/internal/daemon"
	"vrdl/internal/device"
	"vrdl/internal/endpoint"
	"vrdl/internal/events"
	"vrdl/internal/history"
	"vrdl/internal/ipc"
	"vrdl/internal/logging"
	"vrdl/internal/metrics"
	"vrdl/internal/preflight"
	"vrdl/internal/procexec"
	"vrdl/internal/queue"
	"vrdl/internal/services/adb"
	"vrdl/internal/services/rclone"
	"vrdl/internal/services/sevenzip"
	"vrdl/internal/staging"
	"vrdl/internal/workflow"
)

// historyRetention bounds how long journal rows are kept.
const historyRetention = 90 * 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the vrdl daemon and blocks until it is signalled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, logPath, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vrdl.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logging.RunLogPattern, Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	source, fileSource, err := endpoint.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("load endpoint: %w", err)
	}

	var cat *catalog.Catalog
	if cfg.Paths.CatalogFile != "" {
		cat, err = catalog.Load(cfg.Paths.CatalogFile)
		if err != nil {
			logging.WarnWithContext(logger, "catalog unavailable", "catalog_load_failed",
				logging.Error(err),
				logging.String("path", cfg.Paths.CatalogFile),
				logging.String(logging.FieldErrorHint, "check paths.catalog_file"),
				logging.String(logging.FieldImpact, "add requests need explicit package names"),
			)
			cat = nil
		}
	}

	journal, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if removed, pruneErr := journal.Prune(signalCtx, time.Now().Add(-historyRetention)); pruneErr != nil {
		logger.Warn("history prune failed", logging.Error(pruneErr))
	} else if removed > 0 {
		logger.Info("history pruned", logging.Int64("removed", removed))
	}

	mt := metrics.New()
	hub := events.NewHub()
	var coalescer *events.Coalescer
	store := queue.NewStore(queue.WithObserver(func() {
		coalescer.Notify()
	}))
	coalescer = events.NewCoalescer(hub, store.All, cfg.NotifyWindow())

	launcher := procexec.NewLauncher(
		procexec.WithKillGrace(cfg.KillGrace()),
		procexec.WithLogger(logger),
	)
	transfer, err := rclone.New(preflight.ToolPath(cfg.RcloneBinary),
		rclone.WithLauncher(launcher),
		rclone.WithLogger(logger),
		rclone.WithLimits(cfg.Transfer.BandwidthLimit, cfg.Transfer.TPSLimit),
		rclone.WithDiagnosticLines(cfg.Transfer.DiagnosticLines),
	)
	if err != nil {
		return fmt.Errorf("transfer driver: %w", err)
	}
	extract, err := sevenzip.New(preflight.ToolPath(cfg.SevenZipBinary),
		sevenzip.WithLauncher(launcher),
		sevenzip.WithLogger(logger),
		sevenzip.WithDiagnosticLines(cfg.Transfer.DiagnosticLines),
	)
	if err != nil {
		return fmt.Errorf("archive driver: %w", err)
	}

	wfOpts := []workflow.Option{
		workflow.WithHub(hub),
		workflow.WithHistory(journal),
		workflow.WithMetrics(mt),
	}
	if cat != nil {
		wfOpts = append(wfOpts, workflow.WithCatalog(cat))
	}
	installer, err := adb.New(preflight.ToolPath(cfg.ADBBinary),
		adb.WithLogger(logger),
		adb.WithDefaultSerial(cfg.Device.DefaultSerial),
	)
	if err != nil {
		logger.Warn("device installer unavailable", logging.Error(err))
	} else {
		wfOpts = append(wfOpts, workflow.WithInstaller(installer))
	}

	mgr, err := workflow.NewManager(cfg, store, logger, transfer, extract, source, wfOpts...)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}

	monitor := device.New(cfg, logger, func(_ context.Context, dev device.Attached) {
		hub.PublishDeviceAttached(dev.Serial)
	})

	daemonOpts := []daemon.Option{
		daemon.WithHub(hub),
		daemon.WithHistory(journal),
		daemon.WithMetrics(mt),
		daemon.WithEndpoint(source),
		daemon.WithLogPath(logPath),
	}
	if cat != nil {
		daemonOpts = append(daemonOpts, daemon.WithCatalog(cat))
	}
	if monitor != nil {
		daemonOpts = append(daemonOpts, daemon.WithDeviceMonitor(monitor))
	}
	d, err := daemon.New(cfg, store, logger, mgr, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logPreflight(signalCtx, logger, cfg, source)
	pruneStalePartials(signalCtx, logger, cfg)

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		d.Stop()
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		coalescer.Run(gctx)
		return nil
	})
	if fileSource != nil {
		g.Go(func() error {
			if err := fileSource.Watch(gctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(logger, "endpoint watch stopped", "endpoint_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "endpoint file changes require a restart"),
				)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("vrdl daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		d.Stop()
		return nil
	})
	return g.Wait()
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, source endpoint.Source) {
	results := preflight.RunAll(ctx, cfg, source)
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "affected stages will fail until resolved"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}

func pruneStalePartials(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	maxAge := cfg.StalePartialAge()
	if maxAge <= 0 {
		return
	}
	result := staging.PruneStalePartials(ctx, cfg.Paths.DownloadDir, maxAge, nil, logger)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		logger.Info("stale partial downloads pruned",
			logging.String(logging.FieldEventType, "stale_partials_pruned"),
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vrdl.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
