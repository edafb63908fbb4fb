package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// teeHandler writes each record to every handler whose level admits it.
type teeHandler []slog.Handler

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	live := slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return teeHandler(live)
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

// Handle returns the joined errors of all sinks; one failing sink does not
// stop delivery to the others.
func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) derive(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = fn(h)
	}
	return next
}

// TeeLogger returns a logger that writes to base and to each extra handler.
// The daemon uses it to mirror records into the diagnostic debug log.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	handlers := extra
	if base != nil {
		handlers = append([]slog.Handler{base.Handler()}, extra...)
	}
	return slog.New(newFanoutHandler(handlers...))
}
