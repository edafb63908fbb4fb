package notifications

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"casework/internal/config"
	"casework/internal/events"
	"casework/internal/logging"
)

const queueSize = 32

type pending struct {
	event   Event
	payload Payload
}

// Attach subscribes svc to bus. Bus handlers only enqueue; a single sender
// goroutine performs HTTP delivery. When the queue is full the notification is
// dropped with a warning. The returned function unsubscribes and waits for
// queued notifications to drain.
func Attach(bus *events.Bus, svc Service, cfg *config.Config, logger *slog.Logger) (detach func()) {
	if bus == nil || !Enabled(svc) || cfg == nil {
		return func() {}
	}
	logger = logging.NewComponentLogger(logger, "notifications")
	queue := make(chan pending, queueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for item := range queue {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout())
			if err := svc.Publish(ctx, item.event, item.payload); err != nil {
				logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
					logging.String("event", string(item.event)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "the notification was not delivered"),
				)
			}
			cancel()
		}
	}()

	var mu sync.Mutex
	closed := false
	enqueue := func(item pending) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case queue <- item:
		default:
			logging.WarnWithContext(logger, "notification queue full", "notification_dropped",
				logging.String("event", string(item.event)),
				logging.String(logging.FieldImpact, "the notification was dropped"),
			)
		}
	}

	unsubscribe := bus.Subscribe(func(e events.Event) {
		switch ev := e.(type) {
		case *events.TaskCompleted:
			if ev.Succeeded() || !cfg.Notifications.TaskFailures {
				return
			}
			enqueue(pending{event: EventTaskFailed, payload: Payload{
				"task_id": ev.TaskID,
				"case_id": ev.CaseID,
				"kind":    ev.Kind,
				"error":   ev.Message,
			}})
		case *events.PollCompleted:
			if !cfg.Notifications.NewFiles {
				return
			}
			ids := make([]string, 0, len(ev.Results))
			for id, result := range ev.Results {
				if result.NewFileDelta > 0 {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)
			for _, id := range ids {
				enqueue(pending{event: EventNewFiles, payload: Payload{
					"case_id": id,
					"count":   ev.Results[id].NewFileDelta,
				}})
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(queue)
			mu.Unlock()
			wg.Wait()
		})
	}
}
