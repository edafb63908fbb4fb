package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTransfer()
	c.normalizeUnpack()
	c.normalizePoll()
	c.normalizeFavorites()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.remote_root", &c.Paths.RemoteRoot, defaultRemoteRoot},
		{"paths.workspace_dir", &c.Paths.WorkspaceDir, defaultWorkspaceDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.extensions_dir", &c.Paths.ExtensionsDir, defaultExtensionsDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeTransfer() {
	if c.Transfer.BufferSize <= 0 {
		c.Transfer.BufferSize = defaultBufferSize
	}
}

func (c *Config) normalizeUnpack() {
	if c.Unpack.ArchivePassword == "" {
		if value, ok := os.LookupEnv("CASEWORK_ARCHIVE_PASSWORD"); ok {
			c.Unpack.ArchivePassword = value
		}
	}
	c.Unpack.DecryptBinary = trimOr(c.Unpack.DecryptBinary, defaultDecryptBinary)
	c.Unpack.TwoStageBinary = trimOr(c.Unpack.TwoStageBinary, defaultTwoStageBinary)
	c.Unpack.ExtractBinary = trimOr(c.Unpack.ExtractBinary, defaultExtractBinary)
	c.Unpack.TwoStageExtensions = normalizeExtensions(c.Unpack.TwoStageExtensions, defaultTwoStageExtensions)
	c.Unpack.SingleStageExtensions = normalizeExtensions(c.Unpack.SingleStageExtensions, defaultSingleStageExtensions)
	if c.Unpack.ToolTimeout <= 0 {
		c.Unpack.ToolTimeout = defaultToolTimeout
	}
}

func (c *Config) normalizePoll() {
	if c.Poll.IntervalSeconds <= 0 {
		c.Poll.IntervalSeconds = defaultPollInterval
	}
	if c.Poll.StatusTimeoutSeconds <= 0 {
		c.Poll.StatusTimeoutSeconds = defaultStatusTimeoutSeconds
	}
	c.Poll.StatusCommand = strings.TrimSpace(c.Poll.StatusCommand)
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = strings.TrimSpace(os.Getenv("CASEWORK_API_TOKEN"))
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(os.Getenv("CASEWORK_NTFY_TOPIC"))
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeFavorites() {
	names := make([]string, 0, len(c.Favorites.Names))
	seen := make(map[string]struct{}, len(c.Favorites.Names))
	for _, name := range c.Favorites.Names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		names = append(names, trimmed)
	}
	c.Favorites.Names = names
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// NormalizeExtension lowercases an extension and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func normalizeExtensions(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := NormalizeExtension(value)
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func trimOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
