package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"casework/internal/config"
	"casework/internal/deps"
	"casework/internal/services"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckSystemDeps evaluates the external tools required by the unpack chains.
// Both the daemon and the CLI status command use this.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.UnpackRequirements(cfg))
}

// RequireReadable returns an ErrAccess error when path is missing or cannot
// be read by the current user.
func RequireReadable(operation, path string) error {
	if _, err := os.Stat(path); err != nil {
		return services.Wrap(services.ErrAccess, "preflight", operation, fmt.Sprintf("cannot stat %s", path), err)
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return services.Wrap(services.ErrAccess, "preflight", operation, fmt.Sprintf("%s is not readable", path), err)
	}
	return nil
}

// RequireWritableDir creates dir when needed and returns an ErrAccess error
// when it cannot be written.
func RequireWritableDir(operation, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrAccess, "preflight", operation, fmt.Sprintf("cannot create %s", dir), err)
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return services.Wrap(services.ErrAccess, "preflight", operation, fmt.Sprintf("%s is not writable", dir), err)
	}
	return nil
}

// ClassifyIOError maps permission and missing-path errors to ErrAccess and
// returns other errors untouched.
func ClassifyIOError(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrAccess) {
		return err
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) || errors.Is(err, unix.EROFS) {
		return services.Wrap(services.ErrAccess, "preflight", operation, filepath.Clean(path), err)
	}
	return err
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
