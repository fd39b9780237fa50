package adb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"vrdl/internal/logging"
	"vrdl/internal/services"
	"vrdl/internal/textutil"
)

// StageName labels install logs and errors.
const StageName = "install"

// RemoteOBBRoot is where expansion files are pushed on the device.
const RemoteOBBRoot = "/sdcard/Android/obb/"

const maxDiagnosticBytes = 512

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the installer.
type Option func(*Installer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(i *Installer) {
		if exec != nil {
			i.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Installer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithDefaultSerial sets the device used when callers pass an empty id.
func WithDefaultSerial(serial string) Option {
	return func(i *Installer) {
		i.defaultSerial = strings.TrimSpace(serial)
	}
}

// Installer wraps adb interactions.
type Installer struct {
	binary        func() string
	exec          Executor
	logger        *slog.Logger
	defaultSerial string
}

// New constructs an Installer.
func New(binary func() string, opts ...Option) (*Installer, error) {
	if binary == nil {
		return nil, errors.New("adb binary resolver required")
	}
	i := &Installer{
		binary: binary,
		exec:   commandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// InstallPackage installs every APK below path and pushes the release's OBB
// directory, if any.
func (i *Installer) InstallPackage(ctx context.Context, path, serial string) error {
	logger := logging.WithContext(ctx, i.logger)
	serial = i.resolveSerial(serial)

	apks, obbDirs, err := scanRelease(path)
	if err != nil {
		return services.Wrap(services.ErrInstall, StageName, "scan", "read release directory", err)
	}
	if len(apks) == 0 {
		return services.Wrap(services.ErrInstall, StageName, "scan", "no apk found in "+path, nil)
	}

	for _, apk := range apks {
		args := i.deviceArgs(serial, "install", "-r", "-g", apk)
		out, err := i.exec.Run(ctx, i.binary(), args)
		if err != nil {
			return services.Wrap(services.ErrInstall, StageName, "install "+filepath.Base(apk), diagnostic(out), err)
		}
		if !strings.Contains(out, "Success") {
			return services.Wrap(services.ErrInstall, StageName, "install "+filepath.Base(apk), diagnostic(out), nil)
		}
		logger.Info("apk installed",
			logging.String("apk", filepath.Base(apk)),
			logging.String("serial", serial),
			logging.String(logging.FieldEventType, "apk_installed"),
		)
	}

	for _, dir := range obbDirs {
		args := i.deviceArgs(serial, "push", dir, RemoteOBBRoot)
		out, err := i.exec.Run(ctx, i.binary(), args)
		if err != nil {
			return services.Wrap(services.ErrInstall, StageName, "push "+filepath.Base(dir), diagnostic(out), err)
		}
		logger.Info("obb pushed",
			logging.String("obb_dir", filepath.Base(dir)),
			logging.String(logging.FieldEventType, "obb_pushed"),
		)
	}
	return nil
}

var versionCodePattern = regexp.MustCompile(`versionCode=(\d+)`)

// InstalledVersion returns the installed version code of pkg, or false when
// the package is absent.
func (i *Installer) InstalledVersion(ctx context.Context, serial, pkg string) (string, bool, error) {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return "", false, errors.New("package name required")
	}
	args := i.deviceArgs(i.resolveSerial(serial), "shell", "dumpsys", "package", pkg)
	out, err := i.exec.Run(ctx, i.binary(), args)
	if err != nil {
		return "", false, fmt.Errorf("adb dumpsys %s: %w", pkg, err)
	}
	if !strings.Contains(out, "Package ["+pkg+"]") {
		return "", false, nil
	}
	m := versionCodePattern.FindStringSubmatch(out)
	if m == nil {
		return "", false, nil
	}
	return m[1], true, nil
}

// Devices lists the serials adb reports in the "device" state.
func (i *Installer) Devices(ctx context.Context) ([]string, error) {
	out, err := i.exec.Run(ctx, i.binary(), []string{"devices"})
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	return ParseDevices(out), nil
}

// ParseDevices extracts ready device serials from `adb devices` output.
func ParseDevices(out string) []string {
	var serials []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials
}

func (i *Installer) resolveSerial(serial string) string {
	if serial = strings.TrimSpace(serial); serial != "" {
		return serial
	}
	return i.defaultSerial
}

func (i *Installer) deviceArgs(serial string, args ...string) []string {
	if serial == "" {
		return args
	}
	return append([]string{"-s", serial}, args...)
}

// scanRelease finds APKs anywhere below root and directories that directly
// contain OBB files.
func scanRelease(root string) ([]string, []string, error) {
	var apks []string
	obbSet := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".apk":
			apks = append(apks, path)
		case ".obb":
			obbSet[filepath.Dir(path)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	obbDirs := make([]string, 0, len(obbSet))
	for dir := range obbSet {
		if dir == filepath.Clean(root) {
			continue
		}
		obbDirs = append(obbDirs, dir)
	}
	sort.Strings(apks)
	sort.Strings(obbDirs)
	return apks, obbDirs, nil
}

func diagnostic(out string) string {
	return textutil.Truncate(strings.Join(strings.Fields(out), " "), maxDiagnosticBytes)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return "", fmt.Errorf("%w: %w", services.ErrProcessSpawn, err)
	}
	return string(out), err
}
