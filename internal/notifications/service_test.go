package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"casework/internal/config"
	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func configWithTopic(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configWithTopic(""))
	if notifications.Enabled(svc) {
		t.Fatal("expected noop service without a topic")
	}
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "task failed",
			event: notifications.EventTaskFailed,
			payload: notifications.Payload{
				"kind":    "download",
				"case_id": "c-100",
				"error":   "hash mismatch",
			},
			expectTitle:    "Casework - Task Failed",
			expectBody:     "Task download failed for case c-100: hash mismatch",
			expectTags:     "casework,task,failed",
			expectPriority: "high",
		},
		{
			name:        "single new file",
			event:       notifications.EventNewFiles,
			payload:     notifications.Payload{"case_id": "c-7", "count": 1},
			expectTitle: "Casework - New Files",
			expectBody:  "1 new file in case c-7",
			expectTags:  "casework,poll,new",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Casework - Test",
			expectBody:     "Notification system test",
			expectTags:     "casework,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, received := newCaptureServer(t)
			svc := notifications.NewService(configWithTopic(srv.URL))
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			got := received()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle || got[0].body != tc.expectBody {
				t.Fatalf("unexpected message %+v", got[0])
			}
			if got[0].tags != tc.expectTags || got[0].priority != tc.expectPriority {
				t.Fatalf("unexpected headers %+v", got[0])
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	svc := notifications.NewService(configWithTopic(srv.URL))
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.Event("bogus"), nil); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestAttachDeliversFailuresAndNewFiles(t *testing.T) {
	srv, received := newCaptureServer(t)
	cfg := configWithTopic(srv.URL)
	bus := events.NewBus(logging.NewNop())
	detach := notifications.Attach(bus, notifications.NewService(cfg), cfg, logging.NewNop())

	bus.Publish(&events.TaskCompleted{TaskID: "t1", Kind: "refresh", CaseID: "c1"})
	bus.Publish(&events.TaskCompleted{TaskID: "t2", Kind: "upload", CaseID: "c1", Err: errors.New("boom"), Message: "boom"})
	bus.Publish(&events.PollCompleted{Results: map[string]events.CasePoll{
		"c1": {NewFileDelta: 0, FileCount: 4},
		"c2": {NewFileDelta: 3, FileCount: 9},
	}})
	detach()

	got := received()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d: %+v", len(got), got)
	}
	if got[0].body != "Task upload failed for case c1: boom" {
		t.Fatalf("unexpected failure body %q", got[0].body)
	}
	if got[1].body != "3 new files in case c2" {
		t.Fatalf("unexpected poll body %q", got[1].body)
	}
	if bus.Count() != 0 {
		t.Fatalf("expected detach to unsubscribe, %d subscribers remain", bus.Count())
	}
}

func TestAttachHonorsEventToggles(t *testing.T) {
	srv, received := newCaptureServer(t)
	cfg := configWithTopic(srv.URL)
	cfg.Notifications.TaskFailures = false
	cfg.Notifications.NewFiles = false
	bus := events.NewBus(logging.NewNop())
	detach := notifications.Attach(bus, notifications.NewService(cfg), cfg, logging.NewNop())

	bus.Publish(&events.TaskCompleted{TaskID: "t1", Err: errors.New("boom")})
	bus.Publish(&events.PollCompleted{Results: map[string]events.CasePoll{"c1": {NewFileDelta: 1}}})
	detach()

	if got := received(); len(got) != 0 {
		t.Fatalf("expected no notifications, got %+v", got)
	}
}

func TestAttachWithoutTopicIsNoop(t *testing.T) {
	cfg := configWithTopic("")
	bus := events.NewBus(logging.NewNop())
	detach := notifications.Attach(bus, notifications.NewService(cfg), cfg, logging.NewNop())
	if bus.Count() != 0 {
		t.Fatal("expected no subscription without a topic")
	}
	done := make(chan struct{})
	go func() {
		detach()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detach blocked")
	}
}
