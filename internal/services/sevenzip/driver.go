package sevenzip

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"vrdl/internal/logging"
	"vrdl/internal/procexec"
	"vrdl/internal/services"
	"vrdl/internal/stage"
	"vrdl/internal/textutil"
)

// StageName labels extraction logs and errors.
const StageName = "extract"

const maxDiagnosticBytes = 1024

// Request describes one extraction.
type Request struct {
	ReleaseName  string
	DownloadPath string
	// Password is the decoded archive password.
	Password string
}

// Observer receives run events. Callbacks run on the output goroutine.
type Observer struct {
	OnStarted  func(procexec.Handle)
	OnProgress func(percent int)
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

// WithDiagnosticLines bounds the output tail kept for failure messages.
func WithDiagnosticLines(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.tailLines = n
		}
	}
}

// Driver runs 7z extractions.
type Driver struct {
	binary    func() string
	launcher  procexec.Launcher
	logger    *slog.Logger
	tailLines int

	mu     sync.Mutex
	active map[string]procexec.Handle
}

// New constructs a Driver.
func New(binary func() string, opts ...Option) (*Driver, error) {
	if binary == nil {
		return nil, errors.New("7z binary resolver required")
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

// FindArchive returns the first volume of the archive in dir: a *.7z.001
// volume when present, otherwise a single *.7z file.
func FindArchive(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var volumes, singles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		switch {
		case strings.HasSuffix(lower, ".7z.001"):
			volumes = append(volumes, name)
		case strings.HasSuffix(lower, ".7z"):
			singles = append(singles, name)
		}
	}
	sort.Strings(volumes)
	sort.Strings(singles)
	switch {
	case len(volumes) > 0:
		return filepath.Join(dir, volumes[0]), nil
	case len(singles) > 0:
		return filepath.Join(dir, singles[0]), nil
	default:
		return "", fs.ErrNotExist
	}
}

// ArchiveParts lists every archive file belonging to the archive rooted at
// first (all numbered volumes, or the single file).
func ArchiveParts(first string) []string {
	lower := strings.ToLower(first)
	if !strings.HasSuffix(lower, ".7z.001") {
		return []string{first}
	}
	base := first[:len(first)-len(".001")]
	matches, err := filepath.Glob(globEscape(base) + ".[0-9][0-9][0-9]")
	if err != nil || len(matches) == 0 {
		return []string{first}
	}
	sort.Strings(matches)
	return matches
}

func globEscape(path string) string {
	replacer := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return replacer.Replace(path)
}

// Extract lists the archive, runs one extraction and blocks until the
// process exits. Archive volumes are removed after a clean exit.
func (d *Driver) Extract(ctx context.Context, req Request, obs Observer) stage.Outcome {
	logger := logging.WithContext(ctx, d.logger)

	info, err := os.Stat(req.DownloadPath)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", req.DownloadPath)
		}
		return stage.Failure(services.Wrap(services.ErrArchive, StageName, "prepare", "download directory missing", err))
	}
	archive, err := FindArchive(req.DownloadPath)
	if err != nil {
		return stage.Failure(services.Wrap(services.ErrArchive, StageName, "prepare", "no archive found in download directory", err))
	}

	counted, outcome, ok := d.countFiles(ctx, logger, req, archive)
	if !ok {
		return outcome
	}
	if ctx.Err() != nil {
		return stage.Cancel()
	}

	var (
		total         = counted
		extracted     int
		lastPct       = -1
		wrongPassword bool
	)
	onLine := func(line string) {
		evt := ParseLine(line)
		switch evt.Kind {
		case EventWrongPassword:
			wrongPassword = true
			return
		case EventTotal:
			if total == 0 {
				total = evt.Total
			}
		case EventFileDone:
			extracted++
		default:
			return
		}
		pct := Percent(extracted, total)
		if pct <= lastPct {
			return
		}
		lastPct = pct
		if obs.OnProgress != nil {
			obs.OnProgress(pct)
		}
	}

	spec := procexec.Spec{
		Binary:    d.binary(),
		Args:      []string{"x", archive, "-o" + req.DownloadPath, "-p" + req.Password, "-y", "-bb1"},
		Dir:       req.DownloadPath,
		TailLines: d.tailLines,
		Secrets:   []string{req.Password},
	}
	h, err := d.launcher.Launch(ctx, spec, onLine)
	if err != nil {
		return stage.Failure(services.Wrap(services.ErrProcessSpawn, StageName, "start 7z", "", err))
	}
	d.track(req.ReleaseName, h)
	defer d.untrack(req.ReleaseName, h)

	logger.Info("extraction started",
		logging.String("archive", filepath.Base(archive)),
		logging.Int("pid", h.PID()),
		logging.String(logging.FieldEventType, "extract_started"),
	)
	if obs.OnStarted != nil {
		obs.OnStarted(h)
	}

	<-h.Done()
	res := h.Result()

	switch {
	case res.Cancelled:
		logger.Info("extraction cancelled", logging.String(logging.FieldEventType, "extract_cancelled"))
		return stage.Cancel()
	case wrongPassword:
		return stage.Failure(services.Wrap(services.ErrArchivePassword, StageName, "", "archive password rejected; refresh the endpoint password", nil))
	case !res.Success():
		detail := "exit status " + strconv.Itoa(res.ExitCode)
		if len(res.Tail) > 0 {
			detail += ": " + strings.Join(res.Tail, " | ")
		}
		detail = textutil.Truncate(textutil.Redact(detail, req.Password), maxDiagnosticBytes)
		return stage.Failure(services.Wrap(services.ErrArchive, StageName, "7z", detail, res.Err))
	}

	for _, part := range ArchiveParts(archive) {
		if err := os.Remove(part); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(logger, "archive volume cleanup failed", "extract_cleanup_failed",
				logging.String("path", part),
				logging.Error(err),
				logging.String(logging.FieldImpact, "volume remains on disk"),
			)
		}
	}
	logger.Info("extraction completed",
		logging.Int("files", extracted),
		logging.String(logging.FieldEventType, "extract_completed"),
	)
	return stage.Success(false)
}

// countFiles lists the archive so progress has a file total before the
// first entry is written. A listing failure other than a rejected password
// or cancellation leaves the total unknown and extraction goes ahead.
func (d *Driver) countFiles(ctx context.Context, logger *slog.Logger, req Request, archive string) (int, stage.Outcome, bool) {
	var counter FileCounter
	spec := procexec.Spec{
		Binary:    d.binary(),
		Args:      []string{"l", "-slt", "-p" + req.Password, "-y", archive},
		Dir:       req.DownloadPath,
		TailLines: d.tailLines,
		Secrets:   []string{req.Password},
	}
	h, err := d.launcher.Launch(ctx, spec, counter.Feed)
	if err != nil {
		return 0, stage.Failure(services.Wrap(services.ErrProcessSpawn, StageName, "list archive", "", err)), false
	}
	d.track(req.ReleaseName, h)
	<-h.Done()
	d.untrack(req.ReleaseName, h)
	res := h.Result()

	switch {
	case res.Cancelled:
		logger.Info("extraction cancelled", logging.String(logging.FieldEventType, "extract_cancelled"))
		return 0, stage.Cancel(), false
	case counter.WrongPassword():
		return 0, stage.Failure(services.Wrap(services.ErrArchivePassword, StageName, "list archive", "archive password rejected; refresh the endpoint password", nil)), false
	case !res.Success():
		logging.WarnWithContext(logger, "archive listing failed", "extract_list_failed",
			logging.Int("exit_code", res.ExitCode),
			logging.String(logging.FieldImpact, "extraction progress unknown until 7z finishes"),
		)
		return 0, stage.Outcome{}, true
	}
	logger.Debug("archive listed", logging.Int("files", counter.Files()))
	return counter.Files(), stage.Outcome{}, true
}

// Cancel detaches output and signals the running extraction for release.
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
