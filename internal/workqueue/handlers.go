package workqueue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"casework/internal/automation"
	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/scanner"
	"casework/internal/services"
	"casework/internal/store"
	"casework/internal/transfer"
	"casework/internal/unpack"
)

var _ automation.Enqueuer = (*Daemon)(nil)

// CaseStore is the slice of the store the handlers write to.
type CaseStore interface {
	GetCase(ctx context.Context, id string) (*store.Case, error)
	UpsertFileRecords(ctx context.Context, records []store.FileRecord) error
	UpsertFavorites(ctx context.Context, favorites []store.Favorite) error
	PutSyncState(ctx context.Context, state store.CaseSyncState) error
}

// PollRunner executes one poll pass over every known case.
type PollRunner interface {
	RunAll(ctx context.Context) error
}

// Services are the collaborators the built-in handlers need. Nil members
// disable the handlers that depend on them.
type Services struct {
	Store       CaseStore
	Transfer    *transfer.Engine
	Scanner     *scanner.Scanner
	Unpack      *unpack.Pipeline
	Automations *automation.Registry
	Poller      PollRunner
	AutoUnpack  bool
}

// RegisterHandlers installs the built-in handler for every kind whose
// collaborators are present.
func RegisterHandlers(d *Daemon, svc Services) {
	if svc.Transfer != nil && svc.Store != nil {
		d.Register(KindDownload, &transferHandler{svc: svc, daemon: d, mode: events.ModeDownload})
		d.Register(KindUpload, &transferHandler{svc: svc, daemon: d, mode: events.ModeUpload})
	}
	if svc.Scanner != nil && svc.Store != nil {
		d.Register(KindRefresh, &refreshHandler{svc: svc})
	}
	if svc.Automations != nil {
		d.Register(KindAutomation, &automationHandler{svc: svc})
	}
	if svc.Poller != nil {
		d.Register(KindPoll, HandlerFunc(func(ctx context.Context, _ *Job) error {
			return svc.Poller.RunAll(ctx)
		}))
	}
}

type transferHandler struct {
	svc    Services
	daemon *Daemon
	mode   events.Mode
}

func (h *transferHandler) Handle(ctx context.Context, job *Job) error {
	task := job.Task
	c, err := lookupCase(ctx, h.svc.Store, task.CaseID)
	if err != nil {
		return err
	}
	from, to, location := c.RemotePath, c.LocalPath, store.LocationLocal
	if h.mode == events.ModeUpload {
		from, to, location = c.LocalPath, c.RemotePath, store.LocationRemote
	}
	dest := task.DestPath
	if dest == "" {
		if dest, err = mirrorPath(from, to, task.SourcePath); err != nil {
			return err
		}
	}

	result, err := h.svc.Transfer.Copy(ctx, task.SourcePath, dest, job.ProgressFunc(h.mode))
	if err != nil {
		return err
	}
	if c.ID != "" {
		h.upsertRecord(ctx, job, scanner.Target{CaseID: c.ID, Root: to, Location: location}, dest)
	}
	if h.mode == events.ModeDownload && !result.Skipped && h.svc.AutoUnpack && task.PrefetchFor == "" {
		return h.autoUnpack(ctx, job, dest)
	}
	return nil
}

// upsertRecord stores the transferred entry itself; its children appear on
// the next refresh.
func (h *transferHandler) upsertRecord(ctx context.Context, job *Job, target scanner.Target, dest string) {
	if h.svc.Scanner == nil {
		return
	}
	rec, err := h.svc.Scanner.Record(target, dest)
	if err != nil {
		job.Logger().Debug("transferred path outside case tree; no record stored",
			logging.String("dest", dest), logging.Error(err))
		return
	}
	if err := h.svc.Store.UpsertFileRecords(ctx, []store.FileRecord{rec}); err != nil {
		logging.WarnWithContext(job.Logger(), "failed to store file record", "record_upsert_failed",
			logging.String("path", rec.Path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "record appears after the next refresh"),
		)
	}
}

// autoUnpack runs the built-in chain for the file, or queues every enabled
// unpack automation declaring its extension.
func (h *transferHandler) autoUnpack(ctx context.Context, job *Job, local string) error {
	logger := job.Logger()
	if h.svc.Unpack != nil && h.svc.Unpack.Supports(local) {
		result, err := h.svc.Unpack.Unpack(ctx, local)
		if err != nil {
			return err
		}
		attrs := []logging.Attr{
			logging.String("chain", result.Chain.String()),
			logging.String("dest", result.Dest),
			logging.Bool("skipped", result.Skipped),
		}
		if n := result.NestedFailures(); n > 0 {
			logging.WarnWithContext(logger, "nested bundles failed to unpack", "unpack_nested_failed",
				append(attrs, logging.Int("failures", n),
					logging.String(logging.FieldImpact, "outer archive extracted; some inner bundles remain packed"))...)
			return nil
		}
		logger.Info("auto-unpack complete", logging.Args(attrs...)...)
		return nil
	}
	if h.svc.Automations == nil {
		return nil
	}
	for _, desc := range h.svc.Automations.ForExtension(filepath.Ext(local)) {
		if desc.Kind != automation.KindUnpack {
			continue
		}
		ids, err := h.svc.Automations.Dispatch(ctx, h.daemon, automation.DispatchRequest{
			Name:       desc.Name,
			CaseID:     job.Task.CaseID,
			TargetPath: job.Task.SourcePath,
			LocalPath:  local,
		})
		if err != nil {
			return err
		}
		logger.Info("queued unpack automation",
			logging.String("automation", desc.Name),
			logging.String("queued", strings.Join(ids, ",")),
		)
	}
	return nil
}

type refreshHandler struct {
	svc Services
}

func (h *refreshHandler) Handle(ctx context.Context, job *Job) error {
	c, err := lookupCase(ctx, h.svc.Store, job.Task.CaseID)
	if err != nil {
		return err
	}
	favorites := scanner.NewFavoriteIndex()
	total := 0
	for _, target := range []scanner.Target{
		{CaseID: c.ID, Root: c.RemotePath, Location: store.LocationRemote},
		{CaseID: c.ID, Root: c.LocalPath, Location: store.LocationLocal},
	} {
		err := h.svc.Scanner.ScanLevels(ctx, target, func(_ int, records []store.FileRecord) error {
			favorites.Add(records...)
			total += len(records)
			return h.svc.Store.UpsertFileRecords(ctx, records)
		})
		if err != nil {
			return fmt.Errorf("refresh %s tree: %w", target.Location, err)
		}
	}
	if favorites.Len() > 0 {
		if err := h.svc.Store.UpsertFavorites(ctx, favorites.Favorites()); err != nil {
			return fmt.Errorf("store favorites: %w", err)
		}
	}

	count, err := scanner.RootCount(c.RemotePath)
	if err != nil {
		return services.Wrap(services.ErrAccess, "refresh", "count remote root", c.RemotePath, err)
	}
	if err := h.svc.Store.PutSyncState(ctx, store.CaseSyncState{CaseID: c.ID, LastFileCount: count}); err != nil {
		return fmt.Errorf("store sync state: %w", err)
	}
	job.Logger().Info("case refreshed",
		logging.Int("records", total),
		logging.Int("favorites", favorites.Len()),
		logging.Int("remote_root_entries", count),
	)
	return nil
}

type automationHandler struct {
	svc Services
}

// TracksState reports that automation runs publish their own transitions.
func (*automationHandler) TracksState() bool { return true }

func (h *automationHandler) Handle(ctx context.Context, job *Job) error {
	task := job.Task
	local := task.DestPath
	if local == "" && task.CaseID != "" && h.svc.Store != nil {
		c, err := lookupCase(ctx, h.svc.Store, task.CaseID)
		if err != nil {
			return err
		}
		if mirrored, err := mirrorPath(c.RemotePath, c.LocalPath, task.SourcePath); err == nil {
			local = mirrored
		}
	}

	lc := automation.NewLifecycle(func(_, to store.TaskState) {
		job.SetState(to)
		if to == store.TaskRunning {
			job.ProgressFunc(events.ModeAutomation)(0, 0)
		}
	})
	fetch := func(ctx context.Context, src, dst string) error {
		if h.svc.Transfer == nil {
			return services.Wrap(services.ErrConfiguration, "automation", "download first", "transfer engine unavailable", nil)
		}
		_, err := h.svc.Transfer.Copy(ctx, src, dst, job.ProgressFunc(events.ModeDownload))
		return err
	}
	return h.svc.Automations.Execute(ctx, automation.DispatchRequest{
		Name:       task.AutomationName,
		CaseID:     task.CaseID,
		TargetPath: task.SourcePath,
		LocalPath:  local,
		Overrides:  task.Options,
	}, lc, fetch)
}

// lookupCase resolves id; an empty id yields an empty case.
func lookupCase(ctx context.Context, st CaseStore, id string) (store.Case, error) {
	if id == "" {
		return store.Case{}, nil
	}
	c, err := st.GetCase(ctx, id)
	if err != nil {
		return store.Case{}, fmt.Errorf("load case %s: %w", id, err)
	}
	if c == nil {
		return store.Case{}, services.Wrap(services.ErrNotFound, "workqueue", "load case", id, nil)
	}
	return *c, nil
}

// mirrorPath maps src under fromRoot to the same relative path under toRoot.
func mirrorPath(fromRoot, toRoot, src string) (string, error) {
	if fromRoot == "" || toRoot == "" {
		return "", services.Wrap(services.ErrValidation, "workqueue", "derive destination", "case has no tree for "+src, nil)
	}
	rel, err := filepath.Rel(fromRoot, src)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrValidation, "workqueue", "derive destination",
			fmt.Sprintf("%s is outside %s", src, fromRoot), nil)
	}
	return filepath.Join(toRoot, rel), nil
}
