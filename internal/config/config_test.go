package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vrdl/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VRDL_BASE_URI", "")
	t.Setenv("VRDL_PASSWORD", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantDownloads := filepath.Join(tempHome, ".local", "share", "vrdl", "downloads")
	if cfg.Paths.DownloadDir != wantDownloads {
		t.Fatalf("unexpected download dir: got %q want %q", cfg.Paths.DownloadDir, wantDownloads)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.RcloneBinary() != "rclone" || cfg.SevenZipBinary() != "7z" || cfg.ADBBinary() != "adb" {
		t.Fatalf("unexpected tool defaults: %+v", cfg.Tools)
	}
	if cfg.NotifyWindow().Milliseconds() != 250 {
		t.Fatalf("unexpected notify window: %v", cfg.NotifyWindow())
	}
	if len(cfg.Device.VendorIDs) != 1 || cfg.Device.VendorIDs[0] != "2833" {
		t.Fatalf("unexpected vendor ids: %v", cfg.Device.VendorIDs)
	}
	if filepath.Dir(cfg.SocketPath()) != cfg.Paths.LogDir {
		t.Fatalf("expected socket under log dir, got %q", cfg.SocketPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vrdl.toml")

	type payload struct {
		Endpoint struct {
			BaseURI  string `toml:"base_uri"`
			Password string `toml:"password"`
		} `toml:"endpoint"`
		Transfer struct {
			BandwidthLimit string `toml:"bandwidth_limit"`
			TPSLimit       int    `toml:"tpslimit"`
		} `toml:"transfer"`
		Device struct {
			VendorIDs []string `toml:"vendor_ids"`
		} `toml:"device"`
	}
	custom := payload{}
	custom.Endpoint.BaseURI = "https://content.example.com/"
	custom.Endpoint.Password = "c2VjcmV0"
	custom.Transfer.BandwidthLimit = "5M"
	custom.Transfer.TPSLimit = 4
	custom.Device.VendorIDs = []string{" 2833 ", "2833", "18D1"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Endpoint.BaseURI != "https://content.example.com/" || cfg.Endpoint.Password != "c2VjcmV0" {
		t.Fatalf("unexpected endpoint: %+v", cfg.Endpoint)
	}
	if cfg.Transfer.BandwidthLimit != "5M" || cfg.Transfer.TPSLimit != 4 {
		t.Fatalf("unexpected transfer: %+v", cfg.Transfer)
	}
	if strings.Join(cfg.Device.VendorIDs, ",") != "2833,18d1" {
		t.Fatalf("expected vendor ids normalized, got %v", cfg.Device.VendorIDs)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vrdl.toml")
	if err := os.WriteFile(configPath, []byte("[tmdb]\napi_key = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestEnvFallbackForEndpoint(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VRDL_BASE_URI", "https://env.example.com/")
	t.Setenv("VRDL_PASSWORD", "ZW52")

	configPath := filepath.Join(t.TempDir(), "vrdl.toml")
	if err := os.WriteFile(configPath, []byte("[endpoint]\npassword = \"ZmlsZQ==\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Endpoint.BaseURI != "https://env.example.com/" {
		t.Fatalf("expected base uri from env, got %q", cfg.Endpoint.BaseURI)
	}
	if cfg.Endpoint.Password != "ZmlsZQ==" {
		t.Fatalf("expected file password to win over env, got %q", cfg.Endpoint.Password)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DownloadDir, "vrdl") {
		t.Fatalf("expected download dir to contain vrdl, got %q", cfg.Paths.DownloadDir)
	}
	if cfg.Workflow.NotifyWindowMS != 250 {
		t.Fatalf("unexpected sample notify window %d", cfg.Workflow.NotifyWindowMS)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.APIBind = "no-port"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for api bind without port")
	}

	cfg = config.Default()
	cfg.Endpoint.BaseURI = "ftp://host/"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http base uri")
	}

	cfg = config.Default()
	cfg.Endpoint.BaseURI = "https://"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for base uri without host")
	}

	cfg = config.Default()
	cfg.Transfer.BandwidthLimit = "10 M"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bandwidth limit with whitespace")
	}

	cfg = config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
