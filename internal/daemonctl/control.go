package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vrdl/internal/api"
	"vrdl/internal/config"
	"vrdl/internal/deps"
	"vrdl/internal/endpoint"
	"vrdl/internal/ipc"
	"vrdl/internal/preflight"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached vrdl daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	state := StartStateAlreadyRunning
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		state = StartStateStarted
	}
	defer client.Close()

	result := StartResult{State: state}
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		result.PID = status.PID
	}
	return result, nil
}

// WaitForShutdown waits for daemon IPC to disappear.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// ReadPID reads the daemon pid file. It returns 0 when the file is absent.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q in %s", pidStr, pidPath)
	}
	return pid, nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("unable to determine daemon pid")
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return 0, err
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopAndTerminate sends SIGTERM so the daemon shuts down cleanly (the
// active download ends Cancelled) and force-kills it if it is still alive
// after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	alive, pid, err := ProcessInfo(socketPath)
	if err != nil {
		return StopResult{}, err
	}
	if !alive {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		if pid, err = ReadPID(cfg.PIDPath()); err != nil {
			return StopResult{}, err
		}
	}
	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Snapshot is the status report shown by the CLI. Checks are populated only
// when the daemon is offline.
type Snapshot struct {
	Online bool
	Status api.DaemonStatus
	Checks []preflight.Result
	Lines  []api.StatusLine
}

// BuildStatusSnapshot collects daemon status and falls back to local checks
// when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}

	client, err := ipc.Dial(cfg.SocketPath())
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snap.Online = true
			snap.Status = *resp
		}
	}

	if !snap.Online {
		source, _, srcErr := endpoint.FromConfig(cfg)
		if srcErr != nil {
			source = nil
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		snap.Checks = preflight.RunAll(checkCtx, cfg, source)
		snap.Status.Dependencies = api.FromDependencies(deps.CheckBinaries(deps.Requirements(cfg)))
		snap.Status.LockFilePath = cfg.LockPath()
		snap.Status.SocketPath = cfg.SocketPath()
	}

	snap.Lines = BuildStatusLines(snap)
	return snap, nil
}

// BuildStatusLines resolves the labelled rows of the status report.
func BuildStatusLines(snap *Snapshot) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 8)
	if !snap.Online {
		lines = append(lines, api.StatusLine{Label: "vrdl", Severity: "warn", Detail: "Not running (run `vrdl start`)"})
		for _, check := range snap.Checks {
			severity := "ok"
			if !check.Passed {
				severity = "error"
			}
			lines = append(lines, api.StatusLine{Label: check.Name, Severity: severity, Detail: check.Detail})
		}
		return lines
	}

	status := snap.Status
	lines = append(lines, api.StatusLine{Label: "vrdl", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
	if status.Workflow.ActiveRelease != "" {
		lines = append(lines, api.StatusLine{
			Label:    "Active",
			Severity: "info",
			Detail:   fmt.Sprintf("%s (%s)", status.Workflow.ActiveRelease, status.Workflow.ActiveStage),
		})
	}
	if status.EndpointReady {
		lines = append(lines, api.StatusLine{Label: "Endpoint", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Endpoint", Severity: "error", Detail: "Not configured"})
	}
	for _, health := range status.Workflow.StageHealth {
		severity := "ok"
		detail := "Ready"
		if !health.Ready {
			severity = "error"
			detail = health.Detail
		}
		lines = append(lines, api.StatusLine{Label: "Stage " + health.Name, Severity: severity, Detail: detail})
	}
	if status.APIAddress != "" {
		lines = append(lines, api.StatusLine{Label: "HTTP API", Severity: "info", Detail: status.APIAddress})
	}
	monitor := api.StatusLine{Label: "Device monitor", Severity: "info", Detail: "Disabled"}
	if status.DeviceMonitor {
		monitor = api.StatusLine{Label: "Device monitor", Severity: "ok", Detail: "Listening"}
	}
	lines = append(lines, monitor)
	if status.Workflow.LastError != "" {
		lines = append(lines, api.StatusLine{Label: "Last error", Severity: "warn", Detail: status.Workflow.LastError})
	}
	return lines
}

// DependencySummary counts unavailable tools by severity.
func DependencySummary(statuses []api.DependencyStatus) (missingRequired, missingOptional int) {
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}
	return missingRequired, missingOptional
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
