package rclone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"vrdl/internal/endpoint"
	"vrdl/internal/logging"
	"vrdl/internal/procexec"
	"vrdl/internal/services"
	"vrdl/internal/stage"
	"vrdl/internal/textutil"
)

// StageName labels transfer logs and errors.
const StageName = "transfer"

const maxDiagnosticBytes = 1024

// Request describes one transfer.
type Request struct {
	ReleaseName  string
	DownloadPath string
	Endpoint     endpoint.Config
}

// Progress is a monotonic transfer update.
type Progress struct {
	Percent int
	Speed   string
	ETA     string
}

// Observer receives run events. Callbacks run on the output goroutine and
// must not block.
type Observer struct {
	// OnStarted is called once the process is running.
	OnStarted func(procexec.Handle)
	OnProgress func(Progress)
	// OnAuthFailure is called as soon as an auth marker is seen, before the
	// process exits.
	OnAuthFailure func(error)
}

// Option configures the driver.
type Option func(*Driver)

// WithLauncher injects a custom process launcher (primarily for tests).
func WithLauncher(l procexec.Launcher) Option {
	return func(d *Driver) {
		if l != nil {
			d.launcher = l
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithLimits sets rclone's --bwlimit and --tpslimit. Empty or zero values
// are omitted.
func WithLimits(bandwidth string, tps int) Option {
	return func(d *Driver) {
		d.bwLimit = strings.TrimSpace(bandwidth)
		d.tpsLimit = tps
	}
}

// WithDiagnosticLines bounds the output tail kept for failure messages.
func WithDiagnosticLines(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.tailLines = n
		}
	}
}

// Driver runs rclone transfers. It is safe to run transfers for different
// releases concurrently.
type Driver struct {
	binary    func() string
	launcher  procexec.Launcher
	logger    *slog.Logger
	bwLimit   string
	tpsLimit  int
	tailLines int

	mu     sync.Mutex
	active map[string]procexec.Handle
}

// New constructs a Driver. binary is consulted at every launch so a
// bootstrapped tool path can change without rebuilding the driver.
func New(binary func() string, opts ...Option) (*Driver, error) {
	if binary == nil {
		return nil, errors.New("rclone binary resolver required")
	}
	d := &Driver{
		binary:    binary,
		launcher:  procexec.NewLauncher(),
		logger:    logging.NewNop(),
		tailLines: procexec.DefaultTailLines,
		active:    make(map[string]procexec.Handle),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Args returns the rclone command line for req.
func (d *Driver) Args(req Request) []string {
	args := []string{
		"copy",
		":http:/" + ObjectID(req.ReleaseName) + "/",
		req.DownloadPath,
		"--http-url", req.Endpoint.BaseURI,
		"--no-check-certificate",
		"--progress",
		"--stats", "1s",
		"--stats-one-line",
	}
	if d.bwLimit != "" {
		args = append(args, "--bwlimit", d.bwLimit)
	}
	if d.tpsLimit > 0 {
		args = append(args, "--tpslimit", strconv.Itoa(d.tpsLimit))
	}
	return args
}

// Transfer runs one transfer to completion, cancellation, or failure. It
// blocks until the process exits.
func (d *Driver) Transfer(ctx context.Context, req Request, obs Observer) stage.Outcome {
	logger := logging.WithContext(ctx, d.logger)

	if !req.Endpoint.Complete() {
		return stage.Failure(fmt.Errorf("%w", services.ErrConfigurationMissing))
	}
	if strings.TrimSpace(req.DownloadPath) == "" {
		return stage.Failure(services.Wrap(services.ErrTransfer, StageName, "prepare", "download path required", nil))
	}
	if err := os.MkdirAll(req.DownloadPath, 0o755); err != nil {
		return stage.Failure(services.Wrap(services.ErrTransfer, StageName, "prepare", "create download directory", err))
	}

	var (
		handle   procexec.Handle
		ready    = make(chan struct{})
		authErr  error
		authOnce sync.Once
		last     = Progress{Percent: -1}
	)
	onLine := func(line string) {
		evt := ParseLine(line)
		switch evt.Kind {
		case EventAuthFailure:
			authOnce.Do(func() {
				authErr = services.Wrap(services.ErrAuth, StageName, "", "content host rejected credentials ("+evt.Marker+")", nil)
				<-ready
				if handle == nil {
					return
				}
				handle.Detach()
				handle.Cancel()
				logging.WarnWithContext(logger, "transfer authentication failed", "transfer_auth_failed",
					logging.String("marker", evt.Marker),
					logging.String(logging.FieldErrorHint, "refresh the endpoint password"),
					logging.String(logging.FieldImpact, "release marked as error"),
				)
				if obs.OnAuthFailure != nil {
					obs.OnAuthFailure(authErr)
				}
			})
		case EventProgress:
			next := last
			if evt.Percent >= 0 {
				if evt.Percent < last.Percent {
					return
				}
				next.Percent = evt.Percent
			}
			if evt.Speed != "" {
				next.Speed = evt.Speed
			}
			if evt.ETA != "" {
				next.ETA = evt.ETA
			}
			if next.Percent < 0 {
				next.Percent = 0
			}
			last = next
			if obs.OnProgress != nil {
				obs.OnProgress(next)
			}
		}
	}

	spec := procexec.Spec{
		Binary:    d.binary(),
		Args:      d.Args(req),
		TailLines: d.tailLines,
		Secrets:   []string{req.Endpoint.Password, req.Endpoint.DecodedPassword()},
	}
	h, err := d.launcher.Launch(ctx, spec, onLine)
	if err != nil {
		close(ready)
		return stage.Failure(services.Wrap(services.ErrProcessSpawn, StageName, "start rclone", "", err))
	}
	handle = h
	close(ready)
	d.track(req.ReleaseName, h)
	defer d.untrack(req.ReleaseName, h)

	logger.Info("transfer started",
		logging.String("object_id", ObjectID(req.ReleaseName)),
		logging.String("path", req.DownloadPath),
		logging.Int("pid", h.PID()),
		logging.String(logging.FieldEventType, "transfer_started"),
	)
	if obs.OnStarted != nil {
		obs.OnStarted(h)
	}

	<-h.Done()
	res := h.Result()

	switch {
	case authErr != nil:
		return stage.Failure(authErr)
	case res.Cancelled:
		logger.Info("transfer cancelled", logging.String(logging.FieldEventType, "transfer_cancelled"))
		return stage.Cancel()
	case !res.Success():
		return stage.Failure(services.Wrap(services.ErrTransfer, StageName, "rclone", exitDetail(res), res.Err))
	default:
		logger.Info("transfer completed", logging.String(logging.FieldEventType, "transfer_completed"))
		return stage.Success(true)
	}
}

// Cancel detaches output and signals the running transfer for release. It
// reports false when nothing is running.
func (d *Driver) Cancel(releaseName string) bool {
	d.mu.Lock()
	h, ok := d.active[releaseName]
	d.mu.Unlock()
	if !ok {
		return false
	}
	h.Detach()
	h.Cancel()
	return true
}

func (d *Driver) track(release string, h procexec.Handle) {
	d.mu.Lock()
	d.active[release] = h
	d.mu.Unlock()
}

func (d *Driver) untrack(release string, h procexec.Handle) {
	d.mu.Lock()
	if d.active[release] == h {
		delete(d.active, release)
	}
	d.mu.Unlock()
}

func exitDetail(res procexec.Result) string {
	detail := "exit status " + strconv.Itoa(res.ExitCode)
	if len(res.Tail) > 0 {
		detail += ": " + strings.Join(res.Tail, " | ")
	}
	return textutil.Truncate(detail, maxDiagnosticBytes)
}
