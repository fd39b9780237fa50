package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vrdl/internal/catalog"
	"vrdl/internal/endpoint"
)

const endpointCheckName = "Content endpoint"

// ResolveTool locates command on PATH (or at its explicit path) and confirms
// it is executable.
func ResolveTool(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("command not configured")
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("binary %q not found: %w", command, err)
	}
	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return "", fmt.Errorf("binary %q not executable: %w", path, err)
	}
	return path, nil
}

// ToolPath wraps a configured binary accessor so drivers receive the resolved
// absolute path. Unresolvable commands are passed through unchanged and fail
// at spawn time.
func ToolPath(command func() string) func() string {
	return func() string {
		name := command()
		if path, err := ResolveTool(name); err == nil {
			return path
		}
		return name
	}
}

// CheckExecutable verifies a tool can be resolved and executed.
func CheckExecutable(name, command string) Result {
	path, err := ResolveTool(command)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCatalog verifies the game list parses and is not empty.
func CheckCatalog(path string) Result {
	const name = "Catalog"
	cat, err := catalog.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if cat.Len() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no entries)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", path, cat.Len())}
}

// CheckEndpoint verifies the content host answers and accepts anonymous
// listing. A 401 or 403 indicates the endpoint has rotated.
func CheckEndpoint(ctx context.Context, cfg endpoint.Config) Result {
	base := strings.TrimSpace(cfg.BaseURI)
	if base == "" {
		return Result{Name: endpointCheckName, Detail: "missing base uri"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base, nil)
	if err != nil {
		return Result{Name: endpointCheckName, Detail: fmt.Sprintf("check failed (%v)", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: endpointCheckName, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: endpointCheckName, Detail: fmt.Sprintf("access denied (%d)", resp.StatusCode)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: endpointCheckName, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	default:
		return Result{Name: endpointCheckName, Passed: true, Detail: "Reachable"}
	}
}
