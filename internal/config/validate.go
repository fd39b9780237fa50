package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Endpoint credentials are not
// required here: a missing endpoint fails individual transfers instead.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEndpoint(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateEndpoint() error {
	if c.Endpoint.BaseURI == "" {
		return nil
	}
	parsed, err := url.Parse(c.Endpoint.BaseURI)
	if err != nil {
		return fmt.Errorf("endpoint.base_uri: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint.base_uri must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("endpoint.base_uri must include a host")
	}
	return nil
}

func (c *Config) validateTransfer() error {
	limit := c.Transfer.BandwidthLimit
	if limit == "" {
		return nil
	}
	if strings.ContainsAny(limit, " \t") {
		return fmt.Errorf("transfer.bandwidth_limit %q must not contain whitespace", limit)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
