package logging

import (
	"context"
	"log/slog"

	"casework/internal/services"
)

// Standard structured logging keys.
const (
	FieldComponent     = "component"
	FieldTaskID        = "task_id"
	FieldCaseID        = "case_id"
	FieldTaskKind      = "task_kind"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.TaskIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTaskID, id))
	}
	if id, ok := services.CaseIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCaseID, id))
	}
	if kind, ok := services.TaskKindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTaskKind, kind))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
