package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"casework/internal/automation"
	"casework/internal/config"
	"casework/internal/deps"
	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/metrics"
	"casework/internal/notifications"
	"casework/internal/poll"
	"casework/internal/scanner"
	"casework/internal/services"
	"casework/internal/store"
	"casework/internal/transfer"
	"casework/internal/unpack"
	"casework/internal/workqueue"
)

// Daemon coordinates the work queue, poll scheduler and metrics endpoint and
// enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	bus       *events.Bus
	work      *workqueue.Daemon
	registry  *automation.Registry
	poller    *poll.Poller
	scheduler *poll.Scheduler
	metrics   *metrics.Collector
	api       *apiServer
	notifier  notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	detach  func()
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Work         workqueue.Status
	DatabasePath string
	LockPath     string
	Dependencies []deps.Status
}

// New wires the work daemon and its handlers against st.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	exec := services.CommandExecutor{}
	bus := events.NewBus(logger)
	work := workqueue.New(bus, st, logger)
	registry := automation.NewFromConfig(cfg, st, exec, logger)
	poller := poll.NewFromConfig(cfg, st, exec, bus, logger)

	workqueue.RegisterHandlers(work, workqueue.Services{
		Store:       st,
		Transfer:    transfer.New(cfg, logger),
		Scanner:     scanner.New(cfg.Favorites.Names, logger),
		Unpack:      unpack.New(unpack.OptionsFromConfig(cfg), exec, logger),
		Automations: registry,
		Poller:      poller,
		AutoUnpack:  cfg.Unpack.AutoUnpack,
	})

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     st,
		bus:       bus,
		work:      work,
		registry:  registry,
		poller:    poller,
		scheduler: poll.NewScheduler(work, logger),
		metrics:   metrics.New(),
		notifier:  notifications.NewService(cfg),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.API.Bind, cfg.API.Token, d, logger)
	return d, nil
}

// Start acquires the daemon lock, fails tasks left running by a previous
// process, loads automations and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another casework daemon instance is already running")
	}

	if n, err := d.store.FailInterruptedTasks(ctx, "daemon restarted before the task finished"); err != nil {
		d.logger.Warn("failed to close out interrupted tasks", logging.Error(err))
	} else if n > 0 {
		d.logger.Info("marked interrupted tasks failed", logging.Int64("count", n))
	}
	if err := d.registry.Load(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("load automations: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.work.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start work daemon: %w", err)
	}
	d.mu.Lock()
	d.cancel = cancel
	detachMetrics := d.metrics.Attach(d.bus)
	detachNotify := notifications.Attach(d.bus, d.notifier, d.cfg, d.logger)
	d.detach = func() {
		detachMetrics()
		detachNotify()
	}
	d.mu.Unlock()

	if d.cfg.Poll.Enabled {
		d.goRun(func() {
			_ = d.scheduler.Schedule(runCtx, d.cfg.PollInterval())
		})
	}
	if bind := d.cfg.Metrics.Bind; bind != "" {
		d.goRun(func() {
			if err := d.metrics.Serve(runCtx, bind, d.logger); err != nil {
				logging.WarnWithContext(d.logger, "metrics endpoint failed", "metrics_serve_failed",
					logging.String("bind", bind),
					logging.Error(err),
					logging.String(logging.FieldImpact, "metrics unavailable until restart"),
				)
			}
		})
	}

	if d.api != nil {
		d.goRun(func() {
			if err := d.api.serve(runCtx); err != nil {
				logging.WarnWithContext(d.logger, "api server failed", "api_serve_failed",
					logging.String("bind", d.api.bind),
					logging.Error(err),
					logging.String(logging.FieldImpact, "http status api unavailable until restart"),
				)
			}
		})
	}

	d.running.Store(true)
	d.logger.Info("casework daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("automations", len(d.registry.List())),
		logging.Bool("poll_enabled", d.cfg.Poll.Enabled),
	)
	return nil
}

func (d *Daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel, detach := d.cancel, d.detach
	d.cancel, d.detach = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.work.Stop()
	d.wg.Wait()
	if detach != nil {
		detach()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("casework daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Bus returns the event bus shared by the work and poll daemons.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Enqueue adds a task. Automation tasks go through the registry so a missing
// local copy is downloaded first.
func (d *Daemon) Enqueue(ctx context.Context, task workqueue.Task) ([]string, error) {
	if task.Kind == workqueue.KindAutomation {
		return d.registry.Dispatch(ctx, d.work, automation.DispatchRequest{
			Name:       task.AutomationName,
			CaseID:     task.CaseID,
			TargetPath: task.SourcePath,
			LocalPath:  task.DestPath,
			Overrides:  task.Options,
		})
	}
	queued, err := d.work.Enqueue(ctx, task)
	if err != nil {
		return nil, err
	}
	return []string{queued.ID}, nil
}

// PollNow queues an immediate poll pass.
func (d *Daemon) PollNow(ctx context.Context) (string, error) {
	return d.work.EnqueuePoll(ctx)
}

// Automations lists the admitted automations.
func (d *Daemon) Automations() []automation.Descriptor {
	return d.registry.List()
}

// SetAutomationEnabled toggles an automation.
func (d *Daemon) SetAutomationEnabled(ctx context.Context, name string, enabled bool) error {
	return d.registry.SetEnabled(ctx, name, enabled)
}

// RecentTasks returns task history, newest first.
func (d *Daemon) RecentTasks(ctx context.Context, limit int) ([]store.TaskRecord, error) {
	return d.store.RecentTasks(ctx, limit)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Work:         d.work.Status(),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.lockPath,
		Dependencies: deps.CheckBinaries(deps.UnpackRequirements(d.cfg)),
	}
}

// LogPath returns the daemon log file, or "" when file logging is off.
func (d *Daemon) LogPath() string { return d.cfg.LogPath() }
