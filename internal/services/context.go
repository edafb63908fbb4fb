package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	caseIDKey    contextKey = "case_id"
	taskKindKey  contextKey = "task_kind"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with the work queue task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, taskIDKey)
}

// WithCaseID annotates context with the owning case.
func WithCaseID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, caseIDKey, id)
}

// CaseIDFromContext returns the case identifier if present.
func CaseIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, caseIDKey)
}

// WithTaskKind annotates context with the task kind (download, upload, ...).
func WithTaskKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKindKey, kind)
}

// TaskKindFromContext returns the task kind if present.
func TaskKindFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, taskKindKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
