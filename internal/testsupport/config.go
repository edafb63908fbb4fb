package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"casework/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RemoteRoot = filepath.Join(base, "remote")
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ExtensionsDir = filepath.Join(base, "extensions")
	cfg.Transfer.BufferSize = 4 * 1024
	cfg.Unpack.ArchivePassword = "test-password"
	cfg.Unpack.ToolTimeout = 30
	cfg.Poll.StatusTimeoutSeconds = 1

	for _, dir := range []string{cfg.Paths.RemoteRoot, cfg.Paths.WorkspaceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfg}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithFavorites sets the favorites list.
func WithFavorites(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Favorites.Names = append([]string(nil), names...)
	}
}

// WithAutoUnpack toggles unpacking after downloads.
func WithAutoUnpack(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Unpack.AutoUnpack = enabled
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured unpack tools are
// stubbed. Each stub exits 0 without side effects.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Unpack.DecryptBinary, b.cfg.Unpack.TwoStageBinary, b.cfg.Unpack.ExtractBinary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}
		PrependPath(b.t, binDir)
	}
}

// PrependPath puts dir at the front of PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
