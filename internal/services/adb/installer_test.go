package adb_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"vrdl/internal/services"
	"vrdl/internal/services/adb"
	"vrdl/internal/testsupport"
)

type stubExecutor struct {
	outputs map[string]string
	err     error
	calls   [][]string
}

func (s *stubExecutor) Run(_ context.Context, _ string, args []string) (string, error) {
	s.calls = append(s.calls, append([]string(nil), args...))
	for key, out := range s.outputs {
		if slices.Contains(args, key) {
			return out, s.err
		}
	}
	return "", s.err
}

func newInstaller(t *testing.T, exec adb.Executor, opts ...adb.Option) *adb.Installer {
	t.Helper()
	opts = append([]adb.Option{adb.WithExecutor(exec)}, opts...)
	installer, err := adb.New(func() string { return "adb" }, opts...)
	if err != nil {
		t.Fatalf("adb.New: %v", err)
	}
	return installer
}

func releaseDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "Beat Saber", "base.apk"), 16)
	testsupport.WriteFile(t, filepath.Join(dir, "Beat Saber", "com.beatgames.beatsaber", "main.1.obb"), 16)
	return dir
}

func TestInstallPackageInstallsApksAndPushesObb(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]string{"install": "Performing Streamed Install\nSuccess\n"}}
	installer := newInstaller(t, exec, adb.WithDefaultSerial("1WMHH000000000"))
	dir := releaseDir(t)

	if err := installer.InstallPackage(context.Background(), dir, ""); err != nil {
		t.Fatalf("InstallPackage: %v", err)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected install and push calls, got %v", exec.calls)
	}
	install := exec.calls[0]
	if !slices.Equal(install[:5], []string{"-s", "1WMHH000000000", "install", "-r", "-g"}) {
		t.Fatalf("unexpected install args %v", install)
	}
	push := exec.calls[1]
	if push[2] != "push" || !strings.HasSuffix(push[3], "com.beatgames.beatsaber") || push[4] != adb.RemoteOBBRoot {
		t.Fatalf("unexpected push args %v", push)
	}
}

func TestInstallPackageRequiresSuccessMarker(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]string{"install": "Failure [INSTALL_FAILED_INSUFFICIENT_STORAGE]"}}
	installer := newInstaller(t, exec)

	err := installer.InstallPackage(context.Background(), releaseDir(t), "serial")
	if !errors.Is(err, services.ErrInstall) {
		t.Fatalf("expected install failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "INSTALL_FAILED_INSUFFICIENT_STORAGE") {
		t.Fatalf("error should carry adb output: %v", err)
	}
}

func TestInstallPackageWithoutApk(t *testing.T) {
	installer := newInstaller(t, &stubExecutor{})
	err := installer.InstallPackage(context.Background(), t.TempDir(), "serial")
	if !errors.Is(err, services.ErrInstall) {
		t.Fatalf("expected install failure, got %v", err)
	}
}

func TestInstalledVersion(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]string{"dumpsys": "Packages:\n  Package [com.beatgames.beatsaber] (1a2b):\n    versionCode=1130 minSdk=29 targetSdk=32\n    versionName=1.28.0\n"}}
	installer := newInstaller(t, exec)

	version, ok, err := installer.InstalledVersion(context.Background(), "serial", "com.beatgames.beatsaber")
	if err != nil || !ok || version != "1130" {
		t.Fatalf("InstalledVersion = %q, %v, %v", version, ok, err)
	}

	version, ok, err = installer.InstalledVersion(context.Background(), "serial", "com.example.absent")
	if err != nil || ok || version != "" {
		t.Fatalf("absent package = %q, %v, %v", version, ok, err)
	}
}

func TestParseDevices(t *testing.T) {
	out := "List of devices attached\n1WMHH000000000\tdevice\nEMU\toffline\n\n"
	if got := adb.ParseDevices(out); !slices.Equal(got, []string{"1WMHH000000000"}) {
		t.Fatalf("ParseDevices = %v", got)
	}
}
