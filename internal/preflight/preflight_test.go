package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"casework/internal/services"
	"casework/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_WithStubbedTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	// remote, workspace, state, extensions, plus three tools
	if len(results) != 7 {
		t.Fatalf("expected 7 results, got %d: %+v", len(results), results)
	}
}

func TestRunAll_MissingToolFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	cfg.Unpack.DecryptBinary = "clearly-not-present-binary"

	found := false
	for _, r := range Failed(RunAll(context.Background(), cfg)) {
		if r.Name == "Decrypt tool" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected decrypt tool failure")
	}
}

func TestRequireReadableMissingIsAccessError(t *testing.T) {
	err := RequireReadable("download", filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, services.ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
}

func TestRequireWritableDirCreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := RequireWritableDir("download", dir); err != nil {
		t.Fatalf("RequireWritableDir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory created: %v", err)
	}
}

func TestClassifyIOError(t *testing.T) {
	err := ClassifyIOError("upload", "/x", os.ErrPermission)
	if !errors.Is(err, services.ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
	other := errors.New("boom")
	if got := ClassifyIOError("upload", "/x", other); got != other {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if ClassifyIOError("upload", "/x", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
