package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Every terminal task failure wraps exactly one of the first
// four; the rest classify configuration and lookup problems.
var (
	ErrIntegrity     = errors.New("integrity check failed")
	ErrToolFailure   = errors.New("external tool failed")
	ErrAccess        = errors.New("access denied")
	ErrPartialStage  = errors.New("partial stage failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ToolError describes a non-zero exit from an external executable.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

// Unwrap exposes both the tool-failure marker and the underlying exec error.
func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrToolFailure}
	}
	return []error{ErrToolFailure, e.Err}
}

// ErrorDetails is the classified view of a task failure.
type ErrorDetails struct {
	Kind    string
	Message string
	Tool    string
	Stderr  string
}

// Details classifies err by the first marker it wraps.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Kind(err), Message: err.Error()}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		details.Tool = toolErr.Tool
		details.Stderr = toolErr.Stderr
	}
	return details
}

// Kind returns a short label for the failure class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialStage):
		return "partial_stage"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrToolFailure):
		return "tool_failure"
	case errors.Is(err, ErrAccess):
		return "access"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
