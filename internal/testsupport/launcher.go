package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"vrdl/internal/procexec"
	"vrdl/internal/textutil"
)

// CancelExitCode is the exit status a FakeProcess reports after Cancel.
const CancelExitCode = 143

// FakeLauncher records launches and hands out scriptable processes.
type FakeLauncher struct {
	// Err, when set, is returned by every Launch.
	Err error
	// Script runs in its own goroutine for every launched process.
	Script func(*FakeProcess)

	mu       sync.Mutex
	launches []*FakeProcess
	started  chan *FakeProcess
	nextPID  int
}

// NewFakeLauncher constructs a launcher with an empty history.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{started: make(chan *FakeProcess, 64), nextPID: 1000}
}

// Launch implements procexec.Launcher.
func (l *FakeLauncher) Launch(ctx context.Context, spec procexec.Spec, onLine func(string)) (procexec.Handle, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	l.mu.Lock()
	l.nextPID++
	p := &FakeProcess{
		Spec:   spec,
		pid:    l.nextPID,
		onLine: onLine,
		done:   make(chan struct{}),
	}
	l.launches = append(l.launches, p)
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			p.Cancel()
		case <-p.done:
		}
	}()
	if l.Script != nil {
		go l.Script(p)
	}
	l.started <- p
	return p, nil
}

// Launches returns every process started so far.
func (l *FakeLauncher) Launches() []*FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeProcess(nil), l.launches...)
}

// Next waits for the next launched process.
func (l *FakeLauncher) Next(t testing.TB) *FakeProcess {
	t.Helper()
	select {
	case p := <-l.started:
		return p
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for process launch")
		return nil
	}
}

// FakeProcess is a procexec.Handle driven by the test.
type FakeProcess struct {
	Spec procexec.Spec

	pid    int
	onLine func(string)

	mu        sync.Mutex
	cancelled bool
	detached  bool
	lines     []string
	result    procexec.Result
	once      sync.Once
	done      chan struct{}
}

func (p *FakeProcess) PID() int { return p.pid }

// Cancel marks the process cancelled and exits it with CancelExitCode.
func (p *FakeProcess) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
	p.finish(CancelExitCode)
}

func (p *FakeProcess) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *FakeProcess) Detach() {
	p.mu.Lock()
	p.detached = true
	p.mu.Unlock()
}

// Detached reports whether the consumer stopped listening.
func (p *FakeProcess) Detached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detached
}

func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) Result() procexec.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.result
	res.Tail = append([]string(nil), p.result.Tail...)
	return res
}

// Emit delivers output lines to the consumer unless it has detached or the
// process already exited.
func (p *FakeProcess) Emit(lines ...string) {
	for _, line := range lines {
		p.mu.Lock()
		p.lines = append(p.lines, line)
		deliver := !p.detached && !p.exited()
		p.mu.Unlock()
		if deliver && p.onLine != nil {
			p.onLine(line)
		}
	}
}

// Exit finishes the process with code. Later calls are ignored.
func (p *FakeProcess) Exit(code int) {
	p.finish(code)
}

// Exited reports whether the process finished.
func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited()
}

func (p *FakeProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *FakeProcess) finish(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		tail := p.lines
		if limit := p.Spec.TailLines; limit > 0 && len(tail) > limit {
			tail = tail[len(tail)-limit:]
		}
		p.result = procexec.Result{
			ExitCode:  code,
			Cancelled: p.cancelled,
			Tail:      textutil.RedactArgs(tail, p.Spec.Secrets...),
		}
		p.mu.Unlock()
		close(p.done)
	})
}
