package workqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/store"
)

// Handler executes tasks of one kind.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }

// StateTracker is implemented by handlers that publish their own Running
// transition (for example after an optional Downloading phase).
type StateTracker interface {
	TracksState() bool
}

// Job is the handle a handler uses to report on the task it runs.
type Job struct {
	Task Task

	daemon  *Daemon
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	started time.Time

	mu    sync.Mutex
	state store.TaskState
	last  int64
}

func newJob(d *Daemon, task Task, logger *slog.Logger) *Job {
	return &Job{
		Task:    task,
		daemon:  d,
		logger:  logger,
		sampler: logging.NewProgressSampler(25),
		state:   store.TaskPending,
	}
}

// Logger returns a logger annotated with the task's identity.
func (j *Job) Logger() *slog.Logger { return j.logger }

// State returns the last published lifecycle state.
func (j *Job) State() store.TaskState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// SetState publishes a lifecycle transition and records it in task history.
// Repeating the current state is a no-op.
func (j *Job) SetState(to store.TaskState) {
	j.mu.Lock()
	from := j.state
	if from == to {
		j.mu.Unlock()
		return
	}
	j.state = to
	if to == store.TaskRunning || to == store.TaskDownloading {
		if j.started.IsZero() {
			j.started = j.daemon.now()
		}
	}
	j.mu.Unlock()

	j.daemon.bus.Publish(&events.TaskStateChanged{
		TaskID: j.Task.ID,
		CaseID: j.Task.CaseID,
		Kind:   string(j.Task.Kind),
		From:   string(from),
		To:     string(to),
	})
	if !to.IsTerminal() {
		j.daemon.record(j, to, nil)
	}
}

// Progress publishes cumulative bytes for the task. BytesDone never moves
// backwards within one job.
func (j *Job) Progress(mode events.Mode, done, total int64) {
	j.mu.Lock()
	if done < j.last {
		done = j.last
	}
	j.last = done
	j.mu.Unlock()

	j.daemon.bus.Publish(&events.TaskProgress{
		TaskID:     j.Task.ID,
		CaseID:     j.Task.CaseID,
		Mode:       mode,
		SourcePath: j.Task.SourcePath,
		BytesDone:  done,
		BytesTotal: total,
	})
	if j.sampler.ShouldLog(string(mode)+":"+j.Task.SourcePath, done, total) {
		j.logger.Debug("transfer progress",
			logging.String("mode", string(mode)),
			logging.Int64("bytes_done", done),
			logging.Int64("bytes_total", total),
		)
	}
}

// ProgressFunc returns a callback suitable for transfer.Engine.Copy.
// Each new phase restarts the byte counter.
func (j *Job) ProgressFunc(mode events.Mode) func(done, total int64) {
	j.mu.Lock()
	j.last = 0
	j.mu.Unlock()
	return func(done, total int64) {
		j.Progress(mode, done, total)
	}
}

// Enqueue lets a handler schedule follow-up work.
func (j *Job) Enqueue(ctx context.Context, task Task) (Task, error) {
	return j.daemon.Enqueue(ctx, task)
}
