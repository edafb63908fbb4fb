package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when all handlers are nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoH := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugH := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(infoH, debugH))
	logger.Debug("debug only")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Fatal("info handler should not receive debug records")
	}
	if !strings.Contains(debugBuf.String(), "debug only") || !strings.Contains(debugBuf.String(), "both") {
		t.Fatalf("debug handler missing records: %q", debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "both") {
		t.Fatalf("info handler missing record: %q", infoBuf.String())
	}
}

func TestFanoutHandlerWithAttrsPropagates(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(slog.NewTextHandler(&a, nil), slog.NewTextHandler(&b, nil))
	logger := slog.New(h).With(FieldComponent, "poll")
	logger.InfoContext(context.Background(), "tick")
	for _, buf := range []*bytes.Buffer{&a, &b} {
		if !strings.Contains(buf.String(), "component=poll") {
			t.Fatalf("expected component attr in %q", buf.String())
		}
	}
}

func TestTeeLoggerDuplicates(t *testing.T) {
	var base, extra bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewTextHandler(&base, nil)), slog.NewTextHandler(&extra, nil))
	logger.Info("copied")
	if !strings.Contains(base.String(), "copied") || !strings.Contains(extra.String(), "copied") {
		t.Fatalf("expected both outputs, got %q and %q", base.String(), extra.String())
	}
}
