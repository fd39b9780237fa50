// Package endpoint supplies the content host base URI and archive password.
//
// The record is either fixed from configuration or read from a JSON file that
// is reloaded whenever it changes on disk. Callers read it through Source and
// treat an incomplete record as absent.
package endpoint

import (
	"encoding/base64"
	"strings"

	"vrdl/internal/config"
)

// Config is the content host record.
type Config struct {
	BaseURI  string `json:"baseUri"`
	Password string `json:"password"`
}

// Complete reports whether both fields are populated.
func (c Config) Complete() bool {
	return strings.TrimSpace(c.BaseURI) != "" && strings.TrimSpace(c.Password) != ""
}

// DecodedPassword returns the archive password. The host publishes it base64
// encoded; values that do not decode are used verbatim.
func (c Config) DecodedPassword() string {
	raw := strings.TrimSpace(c.Password)
	if raw == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) == 0 {
		return raw
	}
	return string(decoded)
}

// Source provides the current endpoint record.
type Source interface {
	// Current returns the record, or false when it is absent or incomplete.
	Current() (Config, bool)
}

// Static is a fixed Source.
type Static struct {
	cfg Config
}

// NewStatic returns a Source that always reports cfg.
func NewStatic(cfg Config) Static {
	return Static{cfg: normalize(cfg)}
}

// Current implements Source.
func (s Static) Current() (Config, bool) {
	return s.cfg, s.cfg.Complete()
}

func normalize(cfg Config) Config {
	cfg.BaseURI = strings.TrimSpace(cfg.BaseURI)
	cfg.Password = strings.TrimSpace(cfg.Password)
	return cfg
}

// FromConfig builds the Source described by the [endpoint] section. The
// returned FileSource is nil when the record is static.
func FromConfig(cfg *config.Config) (Source, *FileSource, error) {
	if cfg == nil {
		return NewStatic(Config{}), nil, nil
	}
	if path := strings.TrimSpace(cfg.Endpoint.File); path != "" {
		fs, err := NewFileSource(path)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	}
	return NewStatic(Config{BaseURI: cfg.Endpoint.BaseURI, Password: cfg.Endpoint.Password}), nil, nil
}
