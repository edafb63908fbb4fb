package unpack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"casework/internal/config"
	"casework/internal/fileutil"
	"casework/internal/logging"
	"casework/internal/preflight"
	"casework/internal/services"
)

// Chain identifies an unpack chain.
type Chain int

const (
	ChainNone Chain = iota
	ChainNested
	ChainTwoStage
	ChainSingleStage
)

func (c Chain) String() string {
	switch c {
	case ChainNested:
		return "nested"
	case ChainTwoStage:
		return "two_stage"
	case ChainSingleStage:
		return "single_stage"
	default:
		return "none"
	}
}

// Result describes one unpack attempt.
type Result struct {
	Source  string
	Dest    string
	Chain   Chain
	Skipped bool
	// Nested holds bundles found inside an extracted zip.
	Nested []NestedResult
}

// NestedResult is the outcome for one bundle found inside a zip.
type NestedResult struct {
	Result
	Err error
}

// NestedFailures counts nested bundles that failed to unpack.
func (r Result) NestedFailures() int {
	n := 0
	for _, nested := range r.Nested {
		if nested.Err != nil {
			n++
		}
	}
	return n
}

// Options configures a Pipeline.
type Options struct {
	Password              string
	DecryptBinary         string
	TwoStageBinary        string
	ExtractBinary         string
	TwoStageExtensions    []string
	SingleStageExtensions []string
	ToolTimeout           time.Duration
}

// OptionsFromConfig maps the unpack config section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Password:              cfg.Unpack.ArchivePassword,
		DecryptBinary:         cfg.Unpack.DecryptBinary,
		TwoStageBinary:        cfg.Unpack.TwoStageBinary,
		ExtractBinary:         cfg.Unpack.ExtractBinary,
		TwoStageExtensions:    cfg.Unpack.TwoStageExtensions,
		SingleStageExtensions: cfg.Unpack.SingleStageExtensions,
		ToolTimeout:           cfg.ToolTimeout(),
	}
}

type chainFunc func(ctx context.Context, src, dest string) (Result, error)

// Pipeline runs the unpack chains.
type Pipeline struct {
	opts   Options
	exec   services.Executor
	logger *slog.Logger
	exts   map[string]Chain
	chains map[Chain]chainFunc
}

// New builds a pipeline. A nil executor runs real processes.
func New(opts Options, exec services.Executor, logger *slog.Logger) *Pipeline {
	if exec == nil {
		exec = services.CommandExecutor{}
	}
	p := &Pipeline{
		opts:   opts,
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "unpack"),
		exts:   map[string]Chain{".zip": ChainNested},
	}
	register := func(exts []string, chain Chain) {
		for _, ext := range exts {
			if ext = config.NormalizeExtension(ext); ext != "" {
				p.exts[ext] = chain
			}
		}
	}
	register(opts.TwoStageExtensions, ChainTwoStage)
	register(opts.SingleStageExtensions, ChainSingleStage)
	p.chains = map[Chain]chainFunc{
		ChainNested:      p.unpackNested,
		ChainTwoStage:    p.unpackTwoStage,
		ChainSingleStage: p.unpackSingleStage,
	}
	return p
}

// ChainFor reports which chain handles path.
func (p *Pipeline) ChainFor(path string) Chain {
	return p.exts[strings.ToLower(filepath.Ext(path))]
}

// Supports reports whether any chain handles path.
func (p *Pipeline) Supports(path string) bool {
	return p.ChainFor(path) != ChainNone
}

// Destination is the directory an archive unpacks into: its path with the
// extension stripped.
func Destination(archivePath string) string {
	return fileutil.StripExt(archivePath)
}

// Unpack runs the chain matching archivePath.
func (p *Pipeline) Unpack(ctx context.Context, archivePath string) (Result, error) {
	chain := p.ChainFor(archivePath)
	result := Result{Source: archivePath, Dest: Destination(archivePath), Chain: chain}
	run, ok := p.chains[chain]
	if !ok {
		return result, services.Wrap(services.ErrValidation, "unpack", "select chain",
			fmt.Sprintf("unsupported archive type %q", filepath.Ext(archivePath)), nil)
	}
	if err := preflight.RequireReadable("unpack", archivePath); err != nil {
		return result, err
	}

	done, err := fileutil.NonEmptyDir(result.Dest)
	if err != nil {
		return result, preflight.ClassifyIOError("unpack", result.Dest, err)
	}
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String("archive", archivePath),
		logging.String("chain", chain.String()),
	)
	if done {
		logger.Info("destination already populated; skipping unpack",
			logging.String("destination", result.Dest),
			logging.String(logging.FieldEventType, "unpack_skipped"),
		)
		result.Skipped = true
		return result, nil
	}

	started := time.Now()
	out, err := run(ctx, archivePath, result.Dest)
	out.Source, out.Dest, out.Chain = archivePath, result.Dest, chain
	if err != nil {
		logging.WarnWithContext(logger, "unpack failed", "unpack_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String("stderr", services.Details(err).Stderr),
			logging.String(logging.FieldImpact, "destination not created"),
			logging.String(logging.FieldErrorHint, "re-enqueue the download after fixing the cause"),
		)
		return out, err
	}
	logger.Info("unpack complete",
		logging.String("destination", result.Dest),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("nested", len(out.Nested)),
		logging.Int("nested_failed", out.NestedFailures()),
		logging.String(logging.FieldEventType, "unpack_complete"),
	)
	return out, nil
}

func (p *Pipeline) unpackNested(ctx context.Context, src, dest string) (Result, error) {
	if err := testZip(src); err != nil {
		return Result{}, services.Wrap(services.ErrIntegrity, "unpack", "test zip", filepath.Base(src), err)
	}

	tmp, err := p.tempDir(src)
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmp)

	staged := filepath.Join(tmp, "final")
	if err := extractZip(ctx, src, staged); err != nil {
		return Result{}, p.extractError("extract zip", src, err, false)
	}
	if err := commit(staged, dest); err != nil {
		return Result{}, preflight.ClassifyIOError("unpack", dest, err)
	}

	var result Result
	for _, bundle := range p.findEncrypted(dest) {
		nested, err := p.Unpack(ctx, bundle)
		result.Nested = append(result.Nested, NestedResult{Result: nested, Err: err})
		if errors.Is(err, context.Canceled) {
			return result, err
		}
	}
	return result, nil
}

func (p *Pipeline) findEncrypted(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch p.ChainFor(path) {
		case ChainTwoStage, ChainSingleStage:
			out = append(out, path)
		}
		return nil
	})
	return out
}

func (p *Pipeline) unpackTwoStage(ctx context.Context, src, dest string) (Result, error) {
	tmp, err := p.tempDir(src)
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmp)

	stage1 := filepath.Join(tmp, "stage1.zip")
	if err := p.runTool(ctx, tmp, p.opts.TwoStageBinary, []string{src, stage1}); err != nil {
		return Result{}, fmt.Errorf("two-stage decrypt: %w", err)
	}
	if ok, _ := fileutil.Exists(stage1); !ok {
		return Result{}, services.Wrap(services.ErrToolFailure, "unpack", "two-stage decrypt",
			fmt.Sprintf("%s exited 0 without producing %s", p.opts.TwoStageBinary, filepath.Base(stage1)), nil)
	}

	stage2 := filepath.Join(tmp, "stage2")
	args := []string{"x", "-p" + p.opts.Password, "-o" + stage2, "-y", stage1}
	if err := p.runTool(ctx, tmp, p.opts.ExtractBinary, args); err != nil {
		return Result{}, services.Wrap(services.ErrPartialStage, "unpack", "extract protected archive", filepath.Base(src), err)
	}

	inner, err := findInnerZip(stage2)
	if err != nil {
		return Result{}, services.Wrap(services.ErrPartialStage, "unpack", "locate inner archive", filepath.Base(src), err)
	}
	if err := testZip(inner); err != nil {
		return Result{}, services.Wrap(services.ErrPartialStage, "unpack", "test inner archive", filepath.Base(inner),
			services.Wrap(services.ErrIntegrity, "unpack", "test zip", "", err))
	}
	staged := filepath.Join(tmp, "final")
	if err := extractZip(ctx, inner, staged); err != nil {
		return Result{}, p.extractError("extract inner archive", src, err, true)
	}
	if err := commit(staged, dest); err != nil {
		return Result{}, preflight.ClassifyIOError("unpack", dest, err)
	}
	return Result{}, nil
}

// ResidualPath is the compressed artifact the single-stage tool leaves next
// to its input.
func ResidualPath(src string) string {
	return fileutil.StripExt(src) + ".tgz"
}

func (p *Pipeline) unpackSingleStage(ctx context.Context, src, dest string) (Result, error) {
	tmp, err := p.tempDir(src)
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmp)

	if err := p.runTool(ctx, filepath.Dir(src), p.opts.DecryptBinary, []string{"-t", src}); err != nil {
		return Result{}, fmt.Errorf("decrypt: %w", err)
	}
	residual := ResidualPath(src)
	if ok, _ := fileutil.Exists(residual); !ok {
		return Result{}, services.Wrap(services.ErrToolFailure, "unpack", "decrypt",
			fmt.Sprintf("%s exited 0 without producing %s", p.opts.DecryptBinary, filepath.Base(residual)), nil)
	}

	staged := filepath.Join(tmp, "final")
	if err := extractTarGz(ctx, residual, staged); err != nil {
		return Result{}, p.extractError("extract decrypted payload", src, err, true)
	}
	if err := commit(staged, dest); err != nil {
		return Result{}, preflight.ClassifyIOError("unpack", dest, err)
	}
	if err := os.Remove(residual); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(p.logger, "failed to remove decrypted residual", "unpack_residual_cleanup_failed",
			logging.String("path", residual),
			logging.Error(err),
			logging.String(logging.FieldImpact, "residual archive left beside the bundle"),
			logging.String(logging.FieldErrorHint, "remove the .tgz manually"),
		)
	}
	return Result{}, nil
}

// tempDir creates a hidden per-attempt directory beside src so the final
// rename never crosses filesystems.
func (p *Pipeline) tempDir(src string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dir, err := os.MkdirTemp(filepath.Dir(src), ".unpack-"+base+"-")
	if err != nil {
		return "", preflight.ClassifyIOError("unpack", filepath.Dir(src), err)
	}
	return dir, nil
}

func (p *Pipeline) runTool(ctx context.Context, dir, binary string, args []string) error {
	if p.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ToolTimeout)
		defer cancel()
	}
	exec := p.exec
	if ce, ok := exec.(services.CommandExecutor); ok && ce.Dir == "" {
		ce.Dir = dir
		exec = ce
	}
	err := exec.Run(ctx, binary, args, nil)
	if err == nil {
		return nil
	}
	redactArgs(err, p.opts.Password)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "unpack", binary, fmt.Sprintf("exceeded %s", p.opts.ToolTimeout), err)
	}
	return err
}

func (p *Pipeline) extractError(operation, src string, err error, partial bool) error {
	marker := services.ErrIntegrity
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, fs.ErrPermission) {
		marker = services.ErrAccess
	}
	wrapped := services.Wrap(marker, "unpack", operation, filepath.Base(src), err)
	if partial {
		return services.Wrap(services.ErrPartialStage, "unpack", operation, filepath.Base(src), wrapped)
	}
	return wrapped
}

// redactArgs hides the shared archive password in recorded tool arguments.
func redactArgs(err error, secret string) {
	if secret == "" {
		return
	}
	var toolErr *services.ToolError
	if !errors.As(err, &toolErr) {
		return
	}
	args := make([]string, len(toolErr.Args))
	for i, arg := range toolErr.Args {
		args[i] = strings.ReplaceAll(arg, secret, "***")
	}
	toolErr.Args = args
}
