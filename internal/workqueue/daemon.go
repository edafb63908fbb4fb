package workqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/services"
	"casework/internal/store"
)

// HistoryStore records task lifecycle rows.
type HistoryStore interface {
	RecordTask(ctx context.Context, t store.TaskRecord) error
}

// Daemon owns the queue and the single worker that drains it.
type Daemon struct {
	queue    *Queue
	bus      *events.Bus
	history  HistoryStore
	logger   *slog.Logger
	now      func() time.Time
	handlers map[Kind]Handler

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	current   *Task
	lastErr   error
	lastTask  *Task
	processed int
	failed    int
}

// New builds a daemon. history may be nil.
func New(bus *events.Bus, history HistoryStore, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		queue:    NewQueue(bus),
		bus:      bus,
		history:  history,
		logger:   logging.NewComponentLogger(logger, "workqueue"),
		now:      time.Now,
		handlers: make(map[Kind]Handler),
	}
}

// Register installs the handler for kind, replacing any previous one.
// Handlers must be registered before Start.
func (d *Daemon) Register(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Bus returns the bus events are published on.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// SubscribeProgress registers fn for progress events and returns an
// unsubscribe function.
func (d *Daemon) SubscribeProgress(fn func(events.TaskProgress)) func() {
	return d.bus.SubscribeProgress(fn)
}

// SubscribeQueueDepth registers fn for queue depth changes.
func (d *Daemon) SubscribeQueueDepth(fn func(int)) func() {
	return d.bus.SubscribeQueueDepth(fn)
}

// Enqueue appends task to the queue and records it as pending.
func (d *Daemon) Enqueue(ctx context.Context, task Task) (Task, error) {
	task, err := d.queue.Enqueue(task)
	if err != nil {
		return Task{}, err
	}
	d.recordTask(ctx, task, store.TaskPending, nil, time.Time{}, time.Time{})
	logging.WithContext(ctx, d.logger).Debug("task enqueued",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskKind, string(task.Kind)),
		logging.String(logging.FieldCaseID, task.CaseID),
	)
	return task, nil
}

// Start launches the worker in the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("work daemon already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		_ = d.Run(runCtx)
	}()
	return nil
}

// Stop cancels the worker and waits for the in-flight task to return.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Run drains the queue on the calling goroutine until ctx is done. Handler
// errors never stop the loop.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Debug("work daemon started")
	for {
		task, ok := d.queue.Pop(ctx)
		if !ok {
			d.logger.Debug("work daemon stopped")
			return ctx.Err()
		}
		d.process(ctx, task)
	}
}

func (d *Daemon) process(ctx context.Context, task Task) {
	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithCaseID(taskCtx, task.CaseID)
	taskCtx = services.WithTaskKind(taskCtx, string(task.Kind))
	logger := logging.WithContext(taskCtx, d.logger)

	d.setCurrent(&task)
	job := newJob(d, task, logger)
	h := d.handler(task.Kind)

	var tracks bool
	if st, ok := h.(StateTracker); ok {
		tracks = st.TracksState()
	}
	if !tracks {
		job.SetState(store.TaskRunning)
	}

	start := d.now()
	logger.Info("task started", logging.String("source", task.SourcePath))
	err := d.invoke(taskCtx, h, job)
	elapsed := d.now().Sub(start)

	final := store.TaskSucceeded
	if err != nil {
		final = store.TaskFailed
	}
	if !job.State().IsTerminal() {
		job.SetState(final)
	}
	d.record(job, final, err)
	d.finish(task, err)

	details := services.Details(err)
	d.bus.Publish(&events.TaskCompleted{
		TaskID:   task.ID,
		CaseID:   task.CaseID,
		Kind:     string(task.Kind),
		Duration: elapsed,
		Err:      err,
		ErrKind:  details.Kind,
		Message:  details.Message,
		Stderr:   details.Stderr,
	})
	if err != nil {
		d.handleFailure(logger, task, err)
	} else {
		logger.Info("task completed", logging.Duration("duration", elapsed))
	}

	d.queue.Done()
	d.bus.Publish(&events.TaskProgress{Mode: events.ModeNone})
}

func (d *Daemon) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	if h == nil {
		return services.Wrap(services.ErrConfiguration, "workqueue", "dispatch",
			fmt.Sprintf("no handler registered for %s tasks", job.Task.Kind), nil)
	}
	defer func() {
		if r := recover(); r != nil {
			job.logger.Debug("handler panic stack", logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%s handler panicked: %v", job.Task.Kind, r)
		}
	}()
	return h.Handle(ctx, job)
}

func (d *Daemon) handler(kind Kind) Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[kind]
}

func (d *Daemon) handleFailure(logger *slog.Logger, task Task, err error) {
	details := services.Details(err)
	attrs := []logging.Attr{
		logging.Alert("task_failure"),
		logging.String("error_kind", details.Kind),
		logging.String("source", task.SourcePath),
		logging.Error(err),
		logging.String(logging.FieldEventType, "task_failure"),
	}
	if details.Tool != "" {
		attrs = append(attrs, logging.String("tool", details.Tool))
	}
	if details.Stderr != "" {
		attrs = append(attrs, logging.String("stderr", details.Stderr))
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("task cancelled", logging.Args(attrs...)...)
		return
	}
	logger.Error("task failed", logging.Args(attrs...)...)
}

func (d *Daemon) record(job *Job, state store.TaskState, err error) {
	job.mu.Lock()
	started := job.started
	job.mu.Unlock()
	var finished time.Time
	if state.IsTerminal() {
		finished = d.now()
	}
	d.recordTask(context.Background(), job.Task, state, err, started, finished)
}

// recordTask writes history with a detached context so rows still land
// while the daemon is shutting down.
func (d *Daemon) recordTask(ctx context.Context, task Task, state store.TaskState, err error, started, finished time.Time) {
	if d.history == nil {
		return
	}
	details := services.Details(err)
	rec := store.TaskRecord{
		ID:             task.ID,
		Kind:           string(task.Kind),
		CaseID:         task.CaseID,
		SourcePath:     task.SourcePath,
		DestPath:       task.DestPath,
		AutomationName: task.AutomationName,
		State:          state,
		ErrorKind:      details.Kind,
		ErrorMessage:   details.Message,
		Stderr:         details.Stderr,
		EnqueuedAt:     task.EnqueuedAt,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if rerr := d.history.RecordTask(context.WithoutCancel(ctx), rec); rerr != nil {
		d.logger.Warn("failed to record task history",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(rerr),
		)
	}
}
