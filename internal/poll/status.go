package poll

import (
	"context"
	"errors"
	"strings"

	"casework/internal/config"
	"casework/internal/services"
	"casework/internal/store"
)

// StatusChecker reports an external status string for a case.
type StatusChecker interface {
	Check(ctx context.Context, c store.Case) (string, error)
}

// NoopChecker reports no external status.
type NoopChecker struct{}

// Check returns an empty status.
func (NoopChecker) Check(context.Context, store.Case) (string, error) { return "", nil }

// CommandChecker runs a command with the case id appended and reports the
// last non-empty stdout line.
type CommandChecker struct {
	Binary string
	Args   []string
	Exec   services.Executor
}

// Check runs the command for c.
func (cc CommandChecker) Check(ctx context.Context, c store.Case) (string, error) {
	exec := cc.Exec
	if exec == nil {
		exec = services.CommandExecutor{}
	}
	args := append(append([]string(nil), cc.Args...), c.ID)
	var status string
	err := exec.Run(ctx, cc.Binary, args, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			status = line
		}
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "poll", "status", c.ID, err)
		}
		return "", err
	}
	return status, nil
}

// NewStatusChecker builds a CommandChecker from poll.status_command, or a
// NoopChecker when none is configured.
func NewStatusChecker(cfg *config.Config, exec services.Executor) StatusChecker {
	if cfg == nil {
		return NoopChecker{}
	}
	fields := strings.Fields(cfg.Poll.StatusCommand)
	if len(fields) == 0 {
		return NoopChecker{}
	}
	return CommandChecker{Binary: fields[0], Args: fields[1:], Exec: exec}
}
