package events

import (
	"log/slog"
	"sync"
	"time"

	"casework/internal/logging"
)

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine, in publish order, and must treat the event as
// read-only. They must not publish or enqueue work themselves.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler

	// deliver serializes publishes so Seq order equals delivery order.
	deliver sync.Mutex
	seq     uint64
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logging.NewComponentLogger(logger, "events"),
		now:    time.Now,
		subs:   make(map[int]Handler),
	}
}

// Subscribe registers fn for every event and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// SubscribeProgress registers fn for TaskProgress events only.
func (b *Bus) SubscribeProgress(fn func(TaskProgress)) func() {
	return b.Subscribe(func(e Event) {
		if p, ok := e.(*TaskProgress); ok {
			fn(*p)
		}
	})
}

// SubscribeQueueDepth registers fn for QueueDepthChanged events only.
func (b *Bus) SubscribeQueueDepth(fn func(int)) func() {
	return b.Subscribe(func(e Event) {
		if d, ok := e.(*QueueDepthChanged); ok {
			fn(d.Depth)
		}
	})
}

// SubscribeCompletion registers fn for TaskCompleted events only.
func (b *Bus) SubscribeCompletion(fn func(TaskCompleted)) func() {
	return b.Subscribe(func(e Event) {
		if c, ok := e.(*TaskCompleted); ok {
			fn(*c)
		}
	})
}

// Publish stamps the event with the next sequence number and the current time,
// then delivers it to every subscriber. A nil bus discards events.
func (b *Bus) Publish(e Event) {
	if b == nil || e == nil {
		return
	}
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.seq++
	h := e.header()
	h.Seq = b.seq
	if h.At.IsZero() {
		h.At = b.now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.subs[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.dispatch(fn, e)
	}
}

func (b *Bus) dispatch(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(b.logger, "event subscriber panicked", "subscriber_panic",
				logging.String("event", string(e.EventType())),
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "fix the subscriber; the event was delivered to the remaining subscribers"),
			)
		}
	}()
	fn(e)
}

// Count returns the number of active subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
