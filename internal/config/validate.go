package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateUnpack(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"transfer.buffer_size":          c.Transfer.BufferSize,
		"unpack.tool_timeout":           c.Unpack.ToolTimeout,
		"poll.interval_seconds":         c.Poll.IntervalSeconds,
		"poll.status_timeout_seconds":   c.Poll.StatusTimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Poll.StatusTimeoutSeconds >= c.Poll.IntervalSeconds {
		return errors.New("poll.status_timeout_seconds must be less than poll.interval_seconds")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RemoteRoot == "" {
		return errors.New("paths.remote_root must be set")
	}
	if c.Paths.WorkspaceDir == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if c.Paths.RemoteRoot == c.Paths.WorkspaceDir {
		return errors.New("paths.remote_root and paths.workspace_dir must differ")
	}
	return nil
}

func (c *Config) validateUnpack() error {
	for _, ext := range c.Unpack.TwoStageExtensions {
		if ext == ".zip" {
			return errors.New("unpack.two_stage_extensions must not include .zip")
		}
		if slices.Contains(c.Unpack.SingleStageExtensions, ext) {
			return fmt.Errorf("unpack extension %s is listed for both chains", ext)
		}
	}
	if slices.Contains(c.Unpack.SingleStageExtensions, ".zip") {
		return errors.New("unpack.single_stage_extensions must not include .zip")
	}
	if strings.ContainsAny(c.Unpack.ArchivePassword, "\n\r") {
		return errors.New("unpack.archive_password must be a single line")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
