package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"casework/internal/config"
)

const userAgent = "casework"

// Event names a notification template.
type Event string

const (
	EventTaskFailed Event = "task_failed"
	EventNewFiles   Event = "new_files"
	EventTest       Event = "test"
)

// Payload carries template values for an event.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op service when no topic
// is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc delivers anything.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTaskFailed:
		kind := payloadString(payload, "kind")
		caseID := payloadString(payload, "case_id")
		body := fmt.Sprintf("Task %s failed", orUnknown(kind))
		if caseID != "" {
			body += " for case " + caseID
		}
		if errText := payloadString(payload, "error"); errText != "" {
			body += ": " + errText
		}
		return message{
			title:    "Casework - Task Failed",
			body:     body,
			tags:     []string{"casework", "task", "failed"},
			priority: "high",
		}, true
	case EventNewFiles:
		caseID := payloadString(payload, "case_id")
		count := payloadInt(payload, "count")
		noun := "files"
		if count == 1 {
			noun = "file"
		}
		return message{
			title: "Casework - New Files",
			body:  fmt.Sprintf("%d new %s in case %s", count, noun, orUnknown(caseID)),
			tags:  []string{"casework", "poll", "new"},
		}, true
	case EventTest:
		return message{
			title:    "Casework - Test",
			body:     "Notification system test",
			tags:     []string{"casework", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(p Payload, key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func payloadInt(p Payload, key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
