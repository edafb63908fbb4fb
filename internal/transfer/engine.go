package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"casework/internal/config"
	"casework/internal/fileutil"
	"casework/internal/logging"
	"casework/internal/preflight"
	"casework/internal/services"
)

const (
	defaultBufferSize = 1 << 20
	partSuffix        = ".part"
)

// ProgressFunc receives cumulative byte counts after each chunk.
type ProgressFunc func(done, total int64)

// Result summarizes a completed transfer.
type Result struct {
	Source  string
	Dest    string
	Skipped bool
	Bytes   int64
	Files   int
}

// Engine copies between the remote share and the workspace.
type Engine struct {
	bufferSize int
	verify     bool
	logger     *slog.Logger
}

// New builds an engine from the transfer config section.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	bufferSize, verify := defaultBufferSize, false
	if cfg != nil {
		bufferSize = cfg.Transfer.BufferSize
		verify = cfg.Transfer.Verify
	}
	return NewEngine(bufferSize, verify, logger)
}

// NewEngine builds an engine with explicit settings.
func NewEngine(bufferSize int, verify bool, logger *slog.Logger) *Engine {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{bufferSize: bufferSize, verify: verify, logger: logger}
}

// Copy transfers src (file or directory) to dst. When dst already exists
// nothing is copied and Result.Skipped is set.
func (e *Engine) Copy(ctx context.Context, src, dst string, onProgress ProgressFunc) (Result, error) {
	result := Result{Source: src, Dest: dst}
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}
	logger := logging.WithContext(ctx, e.logger)

	present, err := fileutil.Exists(dst)
	if err != nil {
		return result, preflight.ClassifyIOError("transfer", dst, err)
	}
	if present {
		logger.Info("destination exists; skipping transfer",
			logging.String("source", src),
			logging.String("destination", dst),
			logging.String(logging.FieldEventType, "transfer_skipped"),
		)
		result.Skipped = true
		return result, nil
	}

	if err := preflight.RequireReadable("transfer", src); err != nil {
		return result, err
	}
	if err := preflight.RequireWritableDir("transfer", filepath.Dir(dst)); err != nil {
		return result, err
	}

	info, err := os.Stat(src)
	if err != nil {
		return result, preflight.ClassifyIOError("transfer", src, err)
	}

	plan, err := planCopy(src, info)
	if err != nil {
		return result, preflight.ClassifyIOError("transfer", src, err)
	}

	staging := dst + partSuffix
	if err := os.RemoveAll(staging); err != nil {
		return result, preflight.ClassifyIOError("transfer", staging, err)
	}

	c := &copier{engine: e, ctx: ctx, total: plan.total, report: onProgress, buf: make([]byte, e.bufferSize)}
	c.report(0, c.total)
	if err := c.run(plan, src, staging); err != nil {
		_ = os.RemoveAll(staging)
		return result, err
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.RemoveAll(staging)
		return result, preflight.ClassifyIOError("transfer", dst, err)
	}

	result.Bytes = c.done
	result.Files = len(plan.files)
	logger.Info("transfer complete",
		logging.String("source", src),
		logging.String("destination", dst),
		logging.Int64("bytes", result.Bytes),
		logging.Int("files", result.Files),
		logging.String(logging.FieldEventType, "transfer_complete"),
	)
	return result, nil
}

type plannedFile struct {
	rel  string
	mode fs.FileMode
}

type copyPlan struct {
	dirs  []string
	files []plannedFile
	total int64
	isDir bool
}

// planCopy sizes the transfer up front so progress has a stable total.
func planCopy(src string, info fs.FileInfo) (copyPlan, error) {
	if !info.IsDir() {
		return copyPlan{
			files: []plannedFile{{rel: "", mode: info.Mode().Perm()}},
			total: info.Size(),
		}, nil
	}
	plan := copyPlan{isDir: true}
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			plan.dirs = append(plan.dirs, rel)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		plan.files = append(plan.files, plannedFile{rel: rel, mode: fi.Mode().Perm()})
		plan.total += fi.Size()
		return nil
	})
	return plan, err
}

type copier struct {
	engine *Engine
	ctx    context.Context
	buf    []byte
	done   int64
	total  int64
	report ProgressFunc
}

func (c *copier) run(plan copyPlan, src, staging string) error {
	if !plan.isDir {
		return c.copyFile(src, staging, plan.files[0].mode)
	}
	for _, rel := range plan.dirs {
		if err := os.MkdirAll(filepath.Join(staging, rel), 0o755); err != nil {
			return preflight.ClassifyIOError("transfer", staging, err)
		}
	}
	for _, f := range plan.files {
		if err := c.copyFile(filepath.Join(src, f.rel), filepath.Join(staging, f.rel), f.mode); err != nil {
			return err
		}
	}
	return nil
}

func (c *copier) copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return preflight.ClassifyIOError("transfer", src, err)
	}
	defer in.Close()

	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return preflight.ClassifyIOError("transfer", dst, err)
	}
	defer func() {
		_ = out.Close()
	}()

	for {
		if err := c.ctx.Err(); err != nil {
			return fmt.Errorf("transfer %s: %w", src, err)
		}
		n, readErr := in.Read(c.buf)
		if n > 0 {
			if _, err := out.Write(c.buf[:n]); err != nil {
				return preflight.ClassifyIOError("transfer", dst, err)
			}
			c.done += int64(n)
			// A source that grows mid-copy raises the total rather than
			// reporting more than 100%.
			if c.done > c.total {
				c.total = c.done
			}
			c.report(c.done, c.total)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return preflight.ClassifyIOError("transfer", src, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return preflight.ClassifyIOError("transfer", dst, err)
	}

	if c.engine.verify {
		if err := fileutil.VerifyCopy(src, dst); err != nil {
			return services.Wrap(services.ErrIntegrity, "transfer", "verify copy", filepath.Base(src), err)
		}
	}
	return nil
}
