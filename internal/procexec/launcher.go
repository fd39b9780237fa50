package procexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"vrdl/internal/logging"
	"vrdl/internal/textutil"
)

const (
	// DefaultTailLines bounds the diagnostic output retained per process.
	DefaultTailLines = 8
	// DefaultKillGrace is how long a cancelled process may linger before SIGKILL.
	DefaultKillGrace = 5 * time.Second

	pumpDrainTimeout = 2 * time.Second
)

// Spec describes one process launch.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
	// Secrets are redacted from the diagnostic tail and from log output.
	Secrets []string
	// TailLines overrides DefaultTailLines.
	TailLines int
}

// Result describes a finished process.
type Result struct {
	ExitCode  int
	Cancelled bool
	// Err carries wait failures that are not plain non-zero exits.
	Err  error
	Tail []string
}

// Success reports a clean zero exit that was not cancelled.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.Cancelled
}

// Handle is the live reference to a launched process.
type Handle interface {
	PID() int
	// Cancel marks the handle cancelled and signals the process. Safe to call
	// more than once and after exit.
	Cancel()
	Cancelled() bool
	// Detach stops line delivery. Output after Detach is only kept in the tail.
	Detach()
	Done() <-chan struct{}
	// Result is valid once Done is closed.
	Result() Result
}

// Launcher starts processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec, onLine func(string)) (Handle, error)
}

// Option configures the OS launcher.
type Option func(*OSLauncher)

// WithKillGrace overrides the SIGTERM to SIGKILL grace period.
func WithKillGrace(d time.Duration) Option {
	return func(l *OSLauncher) {
		if d > 0 {
			l.killGrace = d
		}
	}
}

// WithLogger attaches a logger for launch and exit events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *OSLauncher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// OSLauncher runs real processes in their own process group.
type OSLauncher struct {
	killGrace time.Duration
	logger    *slog.Logger
}

// NewLauncher constructs an OSLauncher.
func NewLauncher(opts ...Option) *OSLauncher {
	l := &OSLauncher{killGrace: DefaultKillGrace, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts spec and streams merged output lines to onLine. Cancelling ctx
// cancels the process.
func (l *OSLauncher) Launch(ctx context.Context, spec Spec, onLine func(string)) (Handle, error) {
	binary := strings.TrimSpace(spec.Binary)
	if binary == "" {
		return nil, errors.New("binary required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer
	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	_ = writer.Close()

	p := &process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		onLine:    onLine,
		tail:      newTail(spec.TailLines),
		secrets:   spec.Secrets,
		killGrace: l.killGrace,
		done:      make(chan struct{}),
		pumped:    make(chan struct{}),
	}
	l.logger.Debug("process started",
		logging.String("binary", binary),
		logging.Int("pid", p.pid),
		logging.String("args", strings.Join(textutil.RedactArgs(spec.Args, spec.Secrets...), " ")),
	)

	go p.pump(reader)
	go p.wait(reader, l.logger)
	go func() {
		select {
		case <-ctx.Done():
			p.Cancel()
		case <-p.done:
		}
	}()
	return p, nil
}

type process struct {
	cmd       *exec.Cmd
	pid       int
	onLine    func(string)
	secrets   []string
	killGrace time.Duration

	cancelled  atomic.Bool
	detached   atomic.Bool
	cancelOnce sync.Once

	mu     sync.Mutex
	tail   *tail
	result Result

	done   chan struct{}
	pumped chan struct{}
}

func (p *process) PID() int { return p.pid }

func (p *process) Cancelled() bool { return p.cancelled.Load() }

func (p *process) Detach() { p.detached.Store(true) }

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.result
	res.Tail = append([]string(nil), p.result.Tail...)
	return res
}

func (p *process) Cancel() {
	p.cancelOnce.Do(func() {
		p.cancelled.Store(true)
		select {
		case <-p.done:
			return
		default:
		}
		_ = unix.Kill(-p.pid, unix.SIGTERM)
		go func() {
			timer := time.NewTimer(p.killGrace)
			defer timer.Stop()
			select {
			case <-p.done:
			case <-timer.C:
				_ = unix.Kill(-p.pid, unix.SIGKILL)
			}
		}()
	})
}

func (p *process) pump(r io.Reader) {
	defer close(p.pumped)
	splitter := NewLineSplitter(func(line string) {
		p.mu.Lock()
		p.tail.add(textutil.Redact(line, p.secrets...))
		p.mu.Unlock()
		if p.onLine != nil && !p.detached.Load() {
			p.onLine(line)
		}
	})
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = splitter.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	splitter.Flush()
}

func (p *process) wait(reader *os.File, logger *slog.Logger) {
	waitErr := p.cmd.Wait()
	select {
	case <-p.pumped:
	case <-time.After(pumpDrainTimeout):
		// A grandchild still holds the pipe open.
		_ = reader.Close()
		<-p.pumped
	}
	_ = reader.Close()

	res := Result{Cancelled: p.cancelled.Load()}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = waitErr
	}

	p.mu.Lock()
	res.Tail = p.tail.snapshot()
	p.result = res
	p.mu.Unlock()

	logger.Debug("process exited",
		logging.Int("pid", p.pid),
		logging.Int("exit_code", res.ExitCode),
		logging.Bool("cancelled", res.Cancelled),
	)
	close(p.done)
}
