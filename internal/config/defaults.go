package config

const (
	defaultConfigPath           = "~/.config/casework/config.toml"
	defaultRemoteRoot           = "/mnt/cases"
	defaultWorkspaceDir         = "~/cases"
	defaultStateDir             = "~/.local/share/casework"
	defaultLogDir               = "~/.local/share/casework/logs"
	defaultExtensionsDir        = "~/.config/casework/extensions"
	defaultBufferSize           = 1 << 20
	defaultDecryptBinary        = "casedecrypt"
	defaultTwoStageBinary       = "casedecrypt-zip"
	defaultExtractBinary        = "7z"
	defaultToolTimeout          = 1800
	defaultPollInterval         = 300
	defaultStatusTimeoutSeconds = 5
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

var (
	defaultTwoStageExtensions    = []string{".enc"}
	defaultSingleStageExtensions = []string{".sec"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RemoteRoot:    defaultRemoteRoot,
			WorkspaceDir:  defaultWorkspaceDir,
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
			ExtensionsDir: defaultExtensionsDir,
		},
		Transfer: Transfer{
			BufferSize: defaultBufferSize,
		},
		Unpack: Unpack{
			AutoUnpack:            true,
			DecryptBinary:         defaultDecryptBinary,
			TwoStageBinary:        defaultTwoStageBinary,
			ExtractBinary:         defaultExtractBinary,
			TwoStageExtensions:    append([]string(nil), defaultTwoStageExtensions...),
			SingleStageExtensions: append([]string(nil), defaultSingleStageExtensions...),
			ToolTimeout:           defaultToolTimeout,
		},
		Poll: Poll{
			Enabled:              true,
			IntervalSeconds:      defaultPollInterval,
			StatusTimeoutSeconds: defaultStatusTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			TaskFailures:   true,
			NewFiles:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
