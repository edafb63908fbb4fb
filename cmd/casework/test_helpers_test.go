package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"casework/internal/config"
	"casework/internal/daemon"
	"casework/internal/ipc"
	"casework/internal/logging"
	"casework/internal/store"
	"casework/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	baseDir    string
}

// setupCLIConfig writes a config file for a fresh temp tree without starting
// a daemon.
func setupCLIConfig(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg.Poll.Enabled = false
	cfg.Favorites.Names = []string{"notes.txt"}

	configPath := filepath.Join(homeDir, ".config", "casework", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		baseDir:    base,
	}
}

// setupCLITestEnv additionally runs a daemon and IPC server on the config's
// socket.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	env := setupCLIConfig(t)
	env.store = testsupport.MustOpenStore(t, env.cfg)

	logger := logging.NewNop()
	d, err := daemon.New(env.cfg, env.store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI daemon test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	env.daemon = d

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runCLI(t, args, env.socketPath, env.configPath)
	return stdout, err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
remote_root = %q
workspace_dir = %q
state_dir = %q
log_dir = %q
extensions_dir = %q

[unpack]
archive_password = %q

[poll]
enabled = %t
status_timeout_seconds = %d

[favorites]
names = ["notes.txt"]
`,
		cfg.Paths.RemoteRoot,
		cfg.Paths.WorkspaceDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.ExtensionsDir,
		cfg.Unpack.ArchivePassword,
		cfg.Poll.Enabled,
		cfg.Poll.StatusTimeoutSeconds,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
