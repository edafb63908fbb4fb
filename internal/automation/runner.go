package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"casework/internal/logging"
	"casework/internal/services"
)

// Invocation is the JSON blob passed to an automation with -i.
type Invocation struct {
	TargetPath      string                   `json:"target_path"`
	LocalTargetPath string                   `json:"local_target_path"`
	Options         map[string]optionPayload `json:"options"`
}

// BuildInvocation encodes the automation parameter blob.
func BuildInvocation(targetPath, localPath string, opts []Option) ([]byte, error) {
	return json.Marshal(Invocation{
		TargetPath:      targetPath,
		LocalTargetPath: localPath,
		Options:         encodeOptions(opts),
	})
}

// Runner executes an automation out of process.
type Runner interface {
	Run(ctx context.Context, desc Descriptor, targetPath, localPath string, opts []Option) error
}

// ExecRunner runs automations through a services.Executor.
type ExecRunner struct {
	exec    services.Executor
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecRunner builds a runner. A nil executor runs real processes; a zero
// timeout disables the per-run deadline.
func NewExecRunner(exec services.Executor, timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if exec == nil {
		exec = services.CommandExecutor{}
	}
	return &ExecRunner{exec: exec, timeout: timeout, logger: logging.NewComponentLogger(logger, "automation")}
}

// Run invokes "<exe> -i <json>". Exit 0 is success; anything else surfaces
// as a *services.ToolError carrying stderr verbatim.
func (r *ExecRunner) Run(ctx context.Context, desc Descriptor, targetPath, localPath string, opts []Option) error {
	blob, err := BuildInvocation(targetPath, localPath, opts)
	if err != nil {
		return services.Wrap(services.ErrValidation, "automation", "encode invocation", desc.Name, err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, r.logger).With(logging.String("automation", desc.Name))
	exec := r.exec
	if ce, ok := exec.(services.CommandExecutor); ok && ce.Dir == "" {
		ce.Dir = filepath.Dir(desc.ExecutablePath)
		exec = ce
	}
	logger.Info("automation starting",
		logging.String("executable", desc.ExecutablePath),
		logging.String("target_path", targetPath),
		logging.String(logging.FieldEventType, "automation_start"),
	)
	err = exec.Run(ctx, desc.ExecutablePath, []string{"-i", string(blob)}, func(line string) {
		logger.Debug("automation output", logging.String("line", line))
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return services.Wrap(services.ErrTimeout, "automation", desc.Name, fmt.Sprintf("exceeded %s", r.timeout), err)
		}
		return err
	}
	return nil
}
