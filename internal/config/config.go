package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	LogDir      string `toml:"log_dir"`
	CatalogFile string `toml:"catalog_file"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Tools names the external binaries. Bare names are resolved through PATH.
type Tools struct {
	Rclone   string `toml:"rclone"`
	SevenZip string `toml:"sevenzip"`
	ADB      string `toml:"adb"`
}

// Endpoint describes the content host. When File is set the base URI and
// password are read from that JSON file and refreshed when it changes.
type Endpoint struct {
	BaseURI  string `toml:"base_uri"`
	Password string `toml:"password"`
	File     string `toml:"file"`
}

// Transfer tunes the rclone invocation.
type Transfer struct {
	BandwidthLimit   string `toml:"bandwidth_limit"`
	TPSLimit         int    `toml:"tpslimit"`
	DiagnosticLines  int    `toml:"diagnostic_lines"`
	KillGraceSeconds int    `toml:"kill_grace_seconds"`
}

// Workflow contains queue timing settings.
type Workflow struct {
	NotifyWindowMS    int `toml:"notify_window_ms"`
	StalePartialHours int `toml:"stale_partial_hours"`
}

// Device configures headset detection and the default install target.
type Device struct {
	Monitor       bool     `toml:"monitor"`
	VendorIDs     []string `toml:"vendor_ids"`
	DefaultSerial string   `toml:"default_serial"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Downloads      bool   `toml:"downloads"`
	Installs       bool   `toml:"installs"`
	Queue          bool   `toml:"queue"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for vrdl.
//
// Configuration sections by subsystem:
//   - Paths: download and log directories, catalog file, API bind address
//   - Tools: rclone, 7z, and adb binaries
//   - Endpoint: content host base URI and archive password
//   - Transfer: rclone bandwidth and diagnostics
//   - Workflow: notification window and stale download pruning
//   - Device: headset hotplug monitor and default serial
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tools         Tools         `toml:"tools"`
	Endpoint      Endpoint      `toml:"endpoint"`
	Transfer      Transfer      `toml:"transfer"`
	Workflow      Workflow      `toml:"workflow"`
	Device        Device        `toml:"device"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vrdl.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RcloneBinary returns the transfer tool executable.
func (c *Config) RcloneBinary() string {
	return binaryOrDefault(c.Tools.Rclone, "rclone")
}

// SevenZipBinary returns the archive tool executable.
func (c *Config) SevenZipBinary() string {
	return binaryOrDefault(c.Tools.SevenZip, "7z")
}

// ADBBinary returns the device bridge executable.
func (c *Config) ADBBinary() string {
	return binaryOrDefault(c.Tools.ADB, "adb")
}

// SocketPath is the daemon IPC socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "vrdl.sock")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "vrdl.lock")
}

// PIDPath is the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "vrdl.pid")
}

// HistoryPath is the SQLite outcome journal.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// KillGrace is how long a cancelled tool may run before it is killed.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Transfer.KillGraceSeconds) * time.Second
}

// NotifyWindow is the queue-changed coalescing window.
func (c *Config) NotifyWindow() time.Duration {
	return time.Duration(c.Workflow.NotifyWindowMS) * time.Millisecond
}

// StalePartialAge is the age after which never-extracted downloads are pruned.
// Zero disables pruning.
func (c *Config) StalePartialAge() time.Duration {
	return time.Duration(c.Workflow.StalePartialHours) * time.Hour
}

func binaryOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
