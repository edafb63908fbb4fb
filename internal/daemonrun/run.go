package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"casework/internal/config"
	"casework/internal/daemon"
	"casework/internal/deps"
	"casework/internal/ipc"
	"casework/internal/logging"
	"casework/internal/preflight"
	"casework/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the casework daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return err
	}

	logDependencySnapshot(logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, filepath.Join(cfg.Paths.LogDir, "debug"), "casework-*.log")
	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "tasks depending on this check will fail"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "casework.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("casework daemon shutting down")
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	outputs := []string{"stdout"}
	if path := cfg.LogPath(); path != "" {
		outputs = append(outputs, path)
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: outputs,
		Development:      opts.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if !opts.Diagnostic {
		return logger, nil
	}

	sessionID := uuid.NewString()
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug log directory: %w", err)
	}
	debugLogPath := filepath.Join(debugDir, fmt.Sprintf("casework-%s.log", runID))
	debugLogger, err := logging.New(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{debugLogPath},
		ErrorOutputPaths: []string{debugLogPath},
		Development:      true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", err)
		return logger, nil
	}
	logger = logging.TeeLogger(logger, debugLogger.Handler()).With(logging.String("session_id", sessionID))
	logger.Info("diagnostic mode enabled",
		logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
		logging.String("debug_log_path", debugLogPath),
	)
	return logger, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("auto_unpack", cfg.Unpack.AutoUnpack),
		logging.Bool("archive_password_set", cfg.Unpack.ArchivePassword != ""),
		logging.Bool("poll_enabled", cfg.Poll.Enabled),
	}
	for _, status := range deps.CheckBinaries(deps.UnpackRequirements(cfg)) {
		attrs = append(attrs,
			logging.Bool(status.Command+"_available", status.Available),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
