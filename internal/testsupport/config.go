package testsupport

import (
	"path/filepath"
	"testing"

	"vrdl/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The endpoint is populated so transfers pass the configuration precondition.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Endpoint.BaseURI = "https://content.example.test/"
	cfgVal.Endpoint.Password = "c2VjcmV0" // "secret"
	cfgVal.Tools.Rclone = "rclone"
	cfgVal.Tools.SevenZip = "7z"
	cfgVal.Tools.ADB = "adb"
	cfgVal.Workflow.NotifyWindowMS = 20

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithoutEndpoint clears the content host settings.
func WithoutEndpoint() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Endpoint = config.Endpoint{}
	}
}

// WithCatalog writes a game list with the given rows and points the config
// at it. Rows use the catalog's ';' layout without the header.
func WithCatalog(rows ...string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "VRP-GameList.txt")
		content := "Game Name;Release Name;Package Name;Version Code;Last Updated;Size (MB)\n"
		for _, row := range rows {
			content += row + "\n"
		}
		WriteText(b.t, path, content)
		b.cfg.Paths.CatalogFile = path
	}
}

// WithNtfyTopic enables push notifications to topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
