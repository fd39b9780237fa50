package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vrdl/internal/config"
	"vrdl/internal/stage"
)

// Requirement defines an external tool vrdl drives.
type Requirement struct {
	Name        string
	Stage       string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Stage       string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Requirements lists the tools configured in cfg. adb is optional because
// downloads work without a device.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "rclone", Stage: stage.NameTransfer, Command: cfg.RcloneBinary(), Description: "Transfers release volumes from the endpoint"},
		{Name: "7-Zip", Stage: stage.NameExtract, Command: cfg.SevenZipBinary(), Description: "Extracts encrypted release archives"},
		{Name: "adb", Stage: stage.NameInstall, Command: cfg.ADBBinary(), Description: "Installs releases on a headset", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Stage:       req.Stage,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Missing returns the required tools that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
