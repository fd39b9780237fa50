package config

const (
	defaultConfigPath           = "~/.config/vrdl/config.toml"
	defaultDownloadDir          = "~/.local/share/vrdl/downloads"
	defaultLogDir               = "~/.local/share/vrdl/logs"
	defaultAPIBind              = "127.0.0.1:7489"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultDiagnosticLines      = 8
	defaultKillGraceSeconds     = 5
	defaultNotifyWindowMS       = 250
	defaultStalePartialHours    = 72
	defaultNotifyRequestTimeout = 10
	defaultOculusVendorID       = "2833"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Tools: Tools{
			Rclone:   "rclone",
			SevenZip: "7z",
			ADB:      "adb",
		},
		Transfer: Transfer{
			DiagnosticLines:  defaultDiagnosticLines,
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Workflow: Workflow{
			NotifyWindowMS:    defaultNotifyWindowMS,
			StalePartialHours: defaultStalePartialHours,
		},
		Device: Device{
			VendorIDs: []string{defaultOculusVendorID},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Downloads:      true,
			Installs:       true,
			Queue:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
