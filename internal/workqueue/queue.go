package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"casework/internal/events"
)

// Queue is an unbounded FIFO. Depth counts tasks waiting plus the one in
// flight, so it only drops when a task finishes.
type Queue struct {
	bus *events.Bus
	now func() time.Time

	// publish serializes depth events so subscribers see them in order.
	publish sync.Mutex

	mu     sync.Mutex
	items  []Task
	depth  int
	notify chan struct{}
}

// NewQueue builds an empty queue publishing depth changes on bus.
func NewQueue(bus *events.Bus) *Queue {
	return &Queue{bus: bus, now: time.Now, notify: make(chan struct{}, 1)}
}

// Enqueue appends task, assigning an id and timestamp when missing. It never
// blocks on capacity.
func (q *Queue) Enqueue(task Task) (Task, error) {
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = q.now().UTC()
	}

	q.publish.Lock()
	defer q.publish.Unlock()

	q.mu.Lock()
	q.items = append(q.items, task)
	q.depth++
	depth := q.depth
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.bus.Publish(&events.QueueDepthChanged{Depth: depth})
	return task, nil
}

// Pop blocks until a task is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Task, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			task := q.items[0]
			q.items[0] = Task{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return task, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, false
		case <-q.notify:
		}
	}
}

// Done marks a popped task finished and publishes the reduced depth.
func (q *Queue) Done() {
	q.publish.Lock()
	defer q.publish.Unlock()

	q.mu.Lock()
	if q.depth > 0 {
		q.depth--
	}
	depth := q.depth
	q.mu.Unlock()

	q.bus.Publish(&events.QueueDepthChanged{Depth: depth})
}

// Depth returns waiting plus in-flight tasks.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Pending returns a copy of the waiting tasks in FIFO order.
func (q *Queue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.items...)
}
