package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"casework/internal/config"
	"casework/internal/fileutil"
	"casework/internal/logging"
	"casework/internal/services"
	"casework/internal/store"
)

// Store persists registry rows so enabled flags survive rediscovery.
type Store interface {
	SyncAutomation(ctx context.Context, a store.Automation) error
	SetAutomationEnabled(ctx context.Context, name string, enabled bool) (bool, error)
	ListAutomations(ctx context.Context) (map[string]store.Automation, error)
}

// Enqueuer accepts the tasks produced by Dispatch.
type Enqueuer interface {
	// EnqueuePrefetch queues the download an automation waits for. The
	// download must not trigger auto-unpack of its own.
	EnqueuePrefetch(ctx context.Context, caseID, automation, sourcePath, destPath string) (string, error)
	EnqueueAutomation(ctx context.Context, caseID, name, targetPath, localPath string, overrides map[string]string) (string, error)
}

// FetchFunc copies a remote target to its local path.
type FetchFunc func(ctx context.Context, sourcePath, destPath string) error

// Registry is the catalog of admitted automations.
type Registry struct {
	dir    string
	store  Store
	runner Runner
	base   *slog.Logger
	logger *slog.Logger

	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry builds a registry over dir. st may be nil, in which case
// enabled flags live only in memory.
func NewRegistry(dir string, st Store, runner Runner, logger *slog.Logger) *Registry {
	if runner == nil {
		runner = NewExecRunner(nil, 0, logger)
	}
	return &Registry{
		dir:         dir,
		store:       st,
		runner:      runner,
		base:        logger,
		logger:      logging.NewComponentLogger(logger, "automation"),
		descriptors: make(map[string]Descriptor),
	}
}

// NewFromConfig builds a registry over the configured extensions directory.
func NewFromConfig(cfg *config.Config, st Store, exec services.Executor, logger *slog.Logger) *Registry {
	return NewRegistry(cfg.Paths.ExtensionsDir, st, NewExecRunner(exec, cfg.ToolTimeout(), logger), logger)
}

// Load rediscovers automations and applies persisted enabled flags.
func (r *Registry) Load(ctx context.Context) error {
	found, err := Discover(r.dir, r.base)
	if err != nil {
		return err
	}

	if r.store != nil {
		now := time.Now().UTC()
		for _, d := range found {
			row := store.Automation{
				Name:           d.Name,
				Enabled:        true,
				Version:        d.Version,
				Kind:           d.Kind.String(),
				ExecutablePath: d.ExecutablePath,
				ExecutableHash: d.ExecutableHash,
				DiscoveredAt:   now,
			}
			if err := r.store.SyncAutomation(ctx, row); err != nil {
				return fmt.Errorf("sync automation %s: %w", d.Name, err)
			}
		}
		rows, err := r.store.ListAutomations(ctx)
		if err != nil {
			return fmt.Errorf("list automations: %w", err)
		}
		for i := range found {
			if row, ok := rows[found[i].Name]; ok {
				found[i].Enabled = row.Enabled
			}
		}
	}

	next := make(map[string]Descriptor, len(found))
	for _, d := range found {
		next[d.Name] = d
	}
	r.mu.Lock()
	r.descriptors = next
	r.mu.Unlock()

	r.logger.Info("automations loaded",
		logging.Int("count", len(found)),
		logging.String("dir", r.dir),
		logging.String(logging.FieldEventType, "automations_loaded"),
	)
	return nil
}

// List returns all admitted automations sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the named automation.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// SetEnabled toggles an automation and persists the flag.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	r.mu.Lock()
	d, ok := r.descriptors[name]
	if ok {
		d.Enabled = enabled
		r.descriptors[name] = d
	}
	r.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "automation", "set enabled", name, nil)
	}
	if r.store != nil {
		if _, err := r.store.SetAutomationEnabled(ctx, name, enabled); err != nil {
			return fmt.Errorf("persist enabled flag for %s: %w", name, err)
		}
	}
	return nil
}

// ForExtension returns enabled automations declaring ext, sorted by name.
func (r *Registry) ForExtension(ext string) []Descriptor {
	ext = config.NormalizeExtension(ext)
	var out []Descriptor
	for _, d := range r.List() {
		if d.Enabled && d.Handles(ext) {
			out = append(out, d)
		}
	}
	return out
}

// Validate re-hashes the executable and rejects a descriptor whose binary
// changed since discovery.
func (r *Registry) Validate(desc Descriptor) error {
	hash, err := fileutil.HashFile(desc.ExecutablePath)
	if err != nil {
		return services.Wrap(services.ErrAccess, "automation", "hash executable", desc.Name, err)
	}
	if hash != desc.ExecutableHash {
		return services.Wrap(services.ErrIntegrity, "automation", "verify executable",
			fmt.Sprintf("%s changed since discovery", desc.ExecutablePath), nil)
	}
	return nil
}

// DispatchRequest asks for an automation run on one case file.
type DispatchRequest struct {
	Name       string
	CaseID     string
	TargetPath string
	LocalPath  string
	Overrides  map[string]string
}

// Dispatch enqueues an implicit download when the automation wants a local
// copy that is missing, then the automation task. It returns the task ids in
// enqueue order.
func (r *Registry) Dispatch(ctx context.Context, q Enqueuer, req DispatchRequest) ([]string, error) {
	desc, err := r.runnable(req.Name)
	if err != nil {
		return nil, err
	}
	if _, err := ApplyOverrides(desc.Options, req.Overrides); err != nil {
		return nil, err
	}

	var ids []string
	if desc.DownloadFirst && req.LocalPath != "" {
		present, err := fileutil.Exists(req.LocalPath)
		if err != nil {
			return nil, services.Wrap(services.ErrAccess, "automation", "dispatch", req.LocalPath, err)
		}
		if !present {
			id, err := q.EnqueuePrefetch(ctx, req.CaseID, desc.Name, req.TargetPath, req.LocalPath)
			if err != nil {
				return nil, fmt.Errorf("enqueue download for %s: %w", desc.Name, err)
			}
			ids = append(ids, id)
		}
	}
	id, err := q.EnqueueAutomation(ctx, req.CaseID, desc.Name, req.TargetPath, req.LocalPath, req.Overrides)
	if err != nil {
		return ids, fmt.Errorf("enqueue automation %s: %w", desc.Name, err)
	}
	return append(ids, id), nil
}

// Execute runs a dispatched automation through its lifecycle. fetch is used
// only when the automation wants a local copy that is still missing.
func (r *Registry) Execute(ctx context.Context, req DispatchRequest, lc *Lifecycle, fetch FetchFunc) (err error) {
	if lc == nil {
		lc = NewLifecycle(nil)
	}
	defer func() {
		if err != nil {
			lc.fail()
		}
	}()

	desc, err := r.runnable(req.Name)
	if err != nil {
		return err
	}
	if err := r.Validate(desc); err != nil {
		return err
	}
	opts, err := ApplyOverrides(desc.Options, req.Overrides)
	if err != nil {
		return err
	}

	if desc.DownloadFirst && req.LocalPath != "" {
		present, err := fileutil.Exists(req.LocalPath)
		if err != nil {
			return services.Wrap(services.ErrAccess, "automation", "check local copy", req.LocalPath, err)
		}
		if !present {
			if err := lc.Advance(store.TaskDownloading); err != nil {
				return err
			}
			if fetch == nil {
				return services.Wrap(services.ErrConfiguration, "automation", "download first", "no fetcher configured", nil)
			}
			if err := fetch(ctx, req.TargetPath, req.LocalPath); err != nil {
				return err
			}
		}
	}

	if err := lc.Advance(store.TaskRunning); err != nil {
		return err
	}
	if err := r.runner.Run(ctx, desc, req.TargetPath, req.LocalPath, opts); err != nil {
		return err
	}
	if err := postChecks[desc.Kind](desc, req.LocalPath); err != nil {
		return err
	}
	return lc.Advance(store.TaskSucceeded)
}

func (r *Registry) runnable(name string) (Descriptor, error) {
	desc, ok := r.Get(name)
	if !ok {
		return Descriptor{}, services.Wrap(services.ErrNotFound, "automation", "lookup", name, nil)
	}
	if !desc.Enabled {
		return Descriptor{}, services.Wrap(services.ErrValidation, "automation", "lookup", name+" is disabled", nil)
	}
	return desc, nil
}
