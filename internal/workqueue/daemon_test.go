package workqueue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/services"
	"casework/internal/store"
	"casework/internal/workqueue"
)

// startDaemon runs d until the test ends and returns a channel receiving one
// value per completed task.
func startDaemon(t *testing.T, d *workqueue.Daemon) <-chan events.TaskCompleted {
	t.Helper()
	done := make(chan events.TaskCompleted, 64)
	unsubscribe := d.Bus().SubscribeCompletion(func(c events.TaskCompleted) {
		done <- c
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		unsubscribe()
	})
	return done
}

func waitCompleted(t *testing.T, done <-chan events.TaskCompleted, n int) []events.TaskCompleted {
	t.Helper()
	var out []events.TaskCompleted
	timeout := time.After(10 * time.Second)
	for len(out) < n {
		select {
		case c := <-done:
			out = append(out, c)
		case <-timeout:
			t.Fatalf("timed out after %d of %d completions", len(out), n)
		}
	}
	return out
}

// waitIdle polls until the queue drains; the depth drops after the
// completion event is delivered.
func waitIdle(t *testing.T, d *workqueue.Daemon) workqueue.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		status := d.Status()
		if status.Depth == 0 && status.Current == nil {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained: %+v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTasksRunInFIFOOrderOneAtATime(t *testing.T) {
	d := workqueue.New(events.NewBus(logging.NewNop()), nil, logging.NewNop())
	var (
		mu       sync.Mutex
		order    []string
		inFlight atomic.Int32
		overlap  atomic.Bool
	)
	d.Register(workqueue.KindRefresh, workqueue.HandlerFunc(func(_ context.Context, job *workqueue.Job) error {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		defer inFlight.Add(-1)
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, job.Task.CaseID)
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	want := []string{"a", "b", "c", "d", "e"}
	for _, id := range want {
		if _, err := d.EnqueueRefresh(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if depth := d.Status().Depth; depth != len(want) {
		t.Fatalf("depth before start = %d, want %d", depth, len(want))
	}

	done := startDaemon(t, d)
	waitCompleted(t, done, len(want))

	if overlap.Load() {
		t.Fatal("more than one task ran at a time")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if status := waitIdle(t, d); status.Processed != len(want) || status.Failed != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCompletionThenDepthThenClearOrdering(t *testing.T) {
	bus := events.NewBus(logging.NewNop())
	d := workqueue.New(bus, nil, logging.NewNop())
	d.Register(workqueue.KindPoll, workqueue.HandlerFunc(func(context.Context, *workqueue.Job) error {
		return nil
	}))

	var (
		mu  sync.Mutex
		got []string
	)
	bus.Subscribe(func(e events.Event) {
		label := string(e.EventType())
		switch ev := e.(type) {
		case *events.TaskStateChanged:
			label += ":" + ev.To
		case *events.QueueDepthChanged:
			label += ":" + string(rune('0'+ev.Depth))
		case *events.TaskProgress:
			label += ":" + string(ev.Mode)
		}
		mu.Lock()
		got = append(got, label)
		mu.Unlock()
	})

	if _, err := d.EnqueuePoll(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitCompleted(t, startDaemon(t, d), 1)
	// The clear event follows the completion; give the worker a moment to
	// publish it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 6 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := []string{
		"queue_depth_changed:1",
		"task_state_changed:running",
		"task_state_changed:succeeded",
		"task_completed",
		"queue_depth_changed:0",
		"task_progress:none",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestFailuresAndPanicsDoNotStopTheLoop(t *testing.T) {
	d := workqueue.New(events.NewBus(logging.NewNop()), nil, logging.NewNop())
	var calls atomic.Int32
	d.Register(workqueue.KindRefresh, workqueue.HandlerFunc(func(_ context.Context, job *workqueue.Job) error {
		calls.Add(1)
		switch job.Task.CaseID {
		case "panic":
			panic("boom")
		case "fail":
			return services.Wrap(services.ErrToolFailure, "test", "run", "exit 3", nil)
		}
		return nil
	}))

	ctx := context.Background()
	for _, id := range []string{"panic", "fail", "ok"} {
		if _, err := d.EnqueueRefresh(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	results := waitCompleted(t, startDaemon(t, d), 3)

	if results[0].Err == nil || results[1].Err == nil || results[2].Err != nil {
		t.Fatalf("unexpected outcomes: %+v", results)
	}
	if results[1].ErrKind != "tool_failure" {
		t.Fatalf("err kind = %q", results[1].ErrKind)
	}
	status := d.Status()
	if status.Processed != 3 || status.Failed != 2 || status.LastError == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if calls.Load() != 3 {
		t.Fatalf("handler calls = %d", calls.Load())
	}
}

func TestMissingHandlerFailsTask(t *testing.T) {
	d := workqueue.New(events.NewBus(logging.NewNop()), nil, logging.NewNop())
	if _, err := d.EnqueuePoll(context.Background()); err != nil {
		t.Fatal(err)
	}
	results := waitCompleted(t, startDaemon(t, d), 1)
	if !errors.Is(results[0].Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", results[0].Err)
	}
}

func TestEnqueueValidatesTasks(t *testing.T) {
	d := workqueue.New(events.NewBus(logging.NewNop()), nil, logging.NewNop())
	ctx := context.Background()
	cases := []workqueue.Task{
		{Kind: workqueue.KindDownload, CaseID: "c1"},
		{Kind: workqueue.KindUpload, SourcePath: "/x"},
		{Kind: workqueue.KindRefresh},
		{Kind: workqueue.KindAutomation, SourcePath: "/x"},
		{Kind: "bogus"},
	}
	for _, task := range cases {
		if _, err := d.Enqueue(ctx, task); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Enqueue(%+v) err = %v, want validation", task, err)
		}
	}
	if depth := d.Status().Depth; depth != 0 {
		t.Fatalf("rejected tasks must not count toward depth, got %d", depth)
	}
}

type memoryHistory struct {
	mu   sync.Mutex
	rows map[string][]store.TaskState
}

func (m *memoryHistory) RecordTask(_ context.Context, rec store.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string][]store.TaskState)
	}
	m.rows[rec.ID] = append(m.rows[rec.ID], rec.State)
	return nil
}

func TestHistoryFollowsLifecycle(t *testing.T) {
	history := &memoryHistory{}
	d := workqueue.New(events.NewBus(logging.NewNop()), history, logging.NewNop())
	d.Register(workqueue.KindPoll, workqueue.HandlerFunc(func(context.Context, *workqueue.Job) error {
		return errors.New("status endpoint unreachable")
	}))
	id, err := d.EnqueuePoll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	waitCompleted(t, startDaemon(t, d), 1)

	history.mu.Lock()
	defer history.mu.Unlock()
	got := history.rows[id]
	want := []store.TaskState{store.TaskPending, store.TaskRunning, store.TaskFailed}
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
}

func TestStopCancelsInFlightHandler(t *testing.T) {
	d := workqueue.New(events.NewBus(logging.NewNop()), nil, logging.NewNop())
	started := make(chan struct{})
	d.Register(workqueue.KindPoll, workqueue.HandlerFunc(func(ctx context.Context, _ *workqueue.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	if _, err := d.EnqueuePoll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}
	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after cancelling the handler")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	d.Stop()
}
