package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory locations for case data and daemon state.
type Paths struct {
	RemoteRoot    string `toml:"remote_root"`
	WorkspaceDir  string `toml:"workspace_dir"`
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
	ExtensionsDir string `toml:"extensions_dir"`
}

// Transfer controls the chunked copy engine.
type Transfer struct {
	BufferSize int  `toml:"buffer_size"`
	Verify     bool `toml:"verify"`
}

// Unpack configures the archive chains and their external tools.
type Unpack struct {
	AutoUnpack            bool     `toml:"auto_unpack"`
	ArchivePassword       string   `toml:"archive_password"`
	DecryptBinary         string   `toml:"decrypt_binary"`
	TwoStageBinary        string   `toml:"two_stage_binary"`
	ExtractBinary         string   `toml:"extract_binary"`
	TwoStageExtensions    []string `toml:"two_stage_extensions"`
	SingleStageExtensions []string `toml:"single_stage_extensions"`
	ToolTimeout           int      `toml:"tool_timeout"`
}

// Poll configures the periodic case synchronization check.
type Poll struct {
	Enabled              bool   `toml:"enabled"`
	IntervalSeconds      int    `toml:"interval_seconds"`
	StatusTimeoutSeconds int    `toml:"status_timeout_seconds"`
	StatusCommand        string `toml:"status_command"`
}

// Favorites lists file names surfaced in the per-case favorites index.
type Favorites struct {
	Names []string `toml:"names"`
}

// Metrics configures the Prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// API configures the read-only HTTP status API. An empty bind disables it;
// a non-empty token requires "Authorization: Bearer <token>".
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications configures ntfy push messages. An empty topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskFailures   bool   `toml:"task_failures"`
	NewFiles       bool   `toml:"new_files"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for casework.
//
// Configuration sections by subsystem:
//   - Paths: remote share root, local workspace, daemon state, logs, automations
//   - Transfer: copy buffer size and optional content verification
//   - Unpack: archive chains, external tool names, shared password
//   - Poll: interval and per-case status timeout
//   - Favorites: file names tracked in the favorites index
//   - Metrics: Prometheus bind address
//   - API: HTTP status API bind address and bearer token
//   - Notifications: ntfy topic and which events are pushed
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transfer      Transfer      `toml:"transfer"`
	Unpack        Unpack        `toml:"unpack"`
	Poll          Poll          `toml:"poll"`
	Favorites     Favorites     `toml:"favorites"`
	Metrics       Metrics       `toml:"metrics"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("casework.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The remote root is a mount owned by someone else and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.ExtensionsDir) != "" {
		_ = os.MkdirAll(c.Paths.ExtensionsDir, 0o755)
	}
	return nil
}

// DatabasePath is the SQLite file holding cases, records, and task history.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "casework.db")
}

// LockPath is the single-instance daemon lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "casework.lock")
}

// LogPath is the daemon log file. It is empty when no log directory is set.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "casework.log")
}

// SocketPath is the IPC socket used by the CLI to reach the daemon.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "casework.sock")
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// StatusTimeout bounds a single external status lookup.
func (c *Config) StatusTimeout() time.Duration {
	return time.Duration(c.Poll.StatusTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds a single ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// ToolTimeout bounds a single external unpack tool invocation.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Unpack.ToolTimeout) * time.Second
}

// CaseRemoteDir returns the remote directory of a case.
func (c *Config) CaseRemoteDir(caseID string) string {
	return filepath.Join(c.Paths.RemoteRoot, caseID)
}

// CaseLocalDir returns the local workspace directory of a case.
func (c *Config) CaseLocalDir(caseID string) string {
	return filepath.Join(c.Paths.WorkspaceDir, caseID)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		switch {
		case pathValue == "~":
			pathValue = home
		case len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\'):
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
