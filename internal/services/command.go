package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// CommandExecutor runs real processes. Stdout lines are forwarded to the
// callback; stderr is captured and attached to a *ToolError on failure.
type CommandExecutor struct {
	Dir string
}

// Run executes binary with args and waits for it to exit.
func (e CommandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = e.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	// Stderr is kept whole; ToolError carries it verbatim.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &ToolError{Tool: binary, Args: args, ExitCode: -1, Err: err}
	}

	var scanErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		if onStdout != nil {
			onStdout(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		scanErr = err
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	if waitErr == nil && scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if waitErr == nil {
		return nil
	}

	toolErr := &ToolError{Tool: binary, Args: args, ExitCode: -1, Stderr: stderr.String(), Err: waitErr}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.Err = errors.Join(waitErr, ctxErr)
	}
	return toolErr
}
