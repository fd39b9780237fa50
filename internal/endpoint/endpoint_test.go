package endpoint_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vrdl/internal/config"
	"vrdl/internal/endpoint"
	"vrdl/internal/logging"
)

func TestDecodedPassword(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"c2VjcmV0", "secret"},
		{"not base64!", "not base64!"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := (endpoint.Config{Password: tc.raw}).DecodedPassword(); got != tc.want {
			t.Fatalf("DecodedPassword(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestStaticRequiresBothFields(t *testing.T) {
	if _, ok := endpoint.NewStatic(endpoint.Config{BaseURI: "https://x/"}).Current(); ok {
		t.Fatal("expected incomplete record to be absent")
	}
	cfg, ok := endpoint.NewStatic(endpoint.Config{BaseURI: " https://x/ ", Password: "cA=="}).Current()
	if !ok || cfg.BaseURI != "https://x/" {
		t.Fatalf("unexpected record %+v ok=%v", cfg, ok)
	}
}

func TestFromConfigPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.json")
	writeEndpoint(t, path, `{"baseUri":"https://file/","password":"ZmlsZQ=="}`)

	cfg := config.Default()
	cfg.Endpoint.BaseURI = "https://static/"
	cfg.Endpoint.Password = "c3RhdGlj"
	cfg.Endpoint.File = path

	source, fileSource, err := endpoint.FromConfig(&cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if fileSource == nil {
		t.Fatal("expected file source")
	}
	got, ok := source.Current()
	if !ok || got.BaseURI != "https://file/" || got.DecodedPassword() != "file" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestFileSourceMissingFileIsAbsent(t *testing.T) {
	source, err := endpoint.NewFileSource(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	if _, ok := source.Current(); ok {
		t.Fatal("expected absent record")
	}
}

func TestFileSourceRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.json")
	writeEndpoint(t, path, `{not json`)
	if _, err := endpoint.NewFileSource(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFileSourceWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.json")
	writeEndpoint(t, path, `{"baseUri":"https://one/","password":"b25l"}`)
	source, err := endpoint.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- source.Watch(ctx, logging.NewNop()) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeEndpoint(t, path, `{"baseUri":"https://two/","password":"dHdv"}`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cfg, ok := source.Current(); ok && cfg.BaseURI == "https://two/" {
			cancel()
			<-done
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected endpoint to reload after write")
}

func writeEndpoint(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write endpoint file: %v", err)
	}
}
