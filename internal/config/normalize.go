package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envBaseURI  = "VRDL_BASE_URI"
	envPassword = "VRDL_PASSWORD"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEndpoint(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeTransfer()
	c.normalizeWorkflow()
	c.normalizeDevice()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.CatalogFile, err = expandPath(strings.TrimSpace(c.Paths.CatalogFile)); err != nil {
		return fmt.Errorf("paths.catalog_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VRDL_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeEndpoint() error {
	c.Endpoint.BaseURI = strings.TrimSpace(c.Endpoint.BaseURI)
	if c.Endpoint.BaseURI == "" {
		if value, ok := os.LookupEnv(envBaseURI); ok {
			c.Endpoint.BaseURI = strings.TrimSpace(value)
		}
	}
	c.Endpoint.Password = strings.TrimSpace(c.Endpoint.Password)
	if c.Endpoint.Password == "" {
		if value, ok := os.LookupEnv(envPassword); ok {
			c.Endpoint.Password = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Endpoint.File, err = expandPath(strings.TrimSpace(c.Endpoint.File)); err != nil {
		return fmt.Errorf("endpoint.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Rclone = strings.TrimSpace(c.Tools.Rclone)
	c.Tools.SevenZip = strings.TrimSpace(c.Tools.SevenZip)
	c.Tools.ADB = strings.TrimSpace(c.Tools.ADB)
	for _, tool := range []*string{&c.Tools.Rclone, &c.Tools.SevenZip, &c.Tools.ADB} {
		if strings.HasPrefix(*tool, "~") {
			if expanded, err := expandPath(*tool); err == nil {
				*tool = expanded
			}
		}
	}
}

func (c *Config) normalizeTransfer() {
	c.Transfer.BandwidthLimit = strings.TrimSpace(c.Transfer.BandwidthLimit)
	if c.Transfer.TPSLimit < 0 {
		c.Transfer.TPSLimit = 0
	}
	if c.Transfer.DiagnosticLines <= 0 {
		c.Transfer.DiagnosticLines = defaultDiagnosticLines
	}
	if c.Transfer.KillGraceSeconds <= 0 {
		c.Transfer.KillGraceSeconds = defaultKillGraceSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.NotifyWindowMS <= 0 {
		c.Workflow.NotifyWindowMS = defaultNotifyWindowMS
	}
	if c.Workflow.StalePartialHours < 0 {
		c.Workflow.StalePartialHours = 0
	}
}

func (c *Config) normalizeDevice() {
	ids := make([]string, 0, len(c.Device.VendorIDs))
	seen := make(map[string]struct{}, len(c.Device.VendorIDs))
	for _, id := range c.Device.VendorIDs {
		normalized := strings.ToLower(strings.TrimSpace(id))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		ids = append(ids, normalized)
	}
	if len(ids) == 0 {
		ids = []string{defaultOculusVendorID}
	}
	c.Device.VendorIDs = ids
	c.Device.DefaultSerial = strings.TrimSpace(c.Device.DefaultSerial)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
