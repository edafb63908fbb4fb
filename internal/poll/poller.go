package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"casework/internal/config"
	"casework/internal/events"
	"casework/internal/logging"
	"casework/internal/scanner"
	"casework/internal/services"
	"casework/internal/store"
)

const defaultStatusTimeout = 5 * time.Second

// Store is the slice of the store a pass reads and writes.
type Store interface {
	ListCases(ctx context.Context) ([]store.Case, error)
	GetSyncState(ctx context.Context, caseID string) (store.CaseSyncState, bool, error)
	PutSyncState(ctx context.Context, state store.CaseSyncState) error
}

// Result is the outcome for one case. NewFileDelta is never negative.
type Result struct {
	NewFileDelta   int    `json:"new_file_delta"`
	FileCount      int    `json:"file_count"`
	ExternalStatus string `json:"external_status,omitempty"`
	StatusErr      string `json:"status_error,omitempty"`
	ScanErr        string `json:"scan_error,omitempty"`
}

// Snapshot aggregates one pass.
type Snapshot struct {
	At      time.Time         `json:"at"`
	Results map[string]Result `json:"results"`
}

// NewFiles sums the deltas of every case.
func (s Snapshot) NewFiles() int {
	total := 0
	for _, r := range s.Results {
		total += r.NewFileDelta
	}
	return total
}

// CaseIDs returns the polled case ids sorted.
func (s Snapshot) CaseIDs() []string {
	ids := make([]string, 0, len(s.Results))
	for id := range s.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Poller runs poll passes.
type Poller struct {
	store         Store
	checker       StatusChecker
	bus           *events.Bus
	statusTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// New builds a poller. A nil checker disables external status.
func New(st Store, checker StatusChecker, bus *events.Bus, statusTimeout time.Duration, logger *slog.Logger) *Poller {
	if checker == nil {
		checker = NoopChecker{}
	}
	if statusTimeout <= 0 {
		statusTimeout = defaultStatusTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		store:         st,
		checker:       checker,
		bus:           bus,
		statusTimeout: statusTimeout,
		logger:        logging.NewComponentLogger(logger, "poll"),
		now:           time.Now,
	}
}

// NewFromConfig builds a poller using the poll config section.
func NewFromConfig(cfg *config.Config, st Store, exec services.Executor, bus *events.Bus, logger *slog.Logger) *Poller {
	return New(st, NewStatusChecker(cfg, exec), bus, cfg.StatusTimeout(), logger)
}

// RunAll polls every registered case.
func (p *Poller) RunAll(ctx context.Context) error {
	cases, err := p.store.ListCases(ctx)
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}
	snap := p.RunOnce(ctx, cases)
	logging.WithContext(ctx, p.logger).Info("poll pass complete",
		logging.Int("cases", len(snap.Results)),
		logging.Int("new_files", snap.NewFiles()),
	)
	return ctx.Err()
}

// RunOnce polls cases in order and publishes the aggregate snapshot. Per-case
// failures are recorded in the result and never abort the pass.
func (p *Poller) RunOnce(ctx context.Context, cases []store.Case) Snapshot {
	snap := Snapshot{At: p.now().UTC(), Results: make(map[string]Result, len(cases))}
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		snap.Results[c.ID] = p.pollCase(ctx, c, snap.At)
	}

	published := make(map[string]events.CasePoll, len(snap.Results))
	for id, r := range snap.Results {
		published[id] = events.CasePoll{
			NewFileDelta:   r.NewFileDelta,
			FileCount:      r.FileCount,
			ExternalStatus: r.ExternalStatus,
			StatusErr:      r.StatusErr,
			ScanErr:        r.ScanErr,
		}
	}
	p.bus.Publish(&events.PollCompleted{Results: published})
	return snap
}

func (p *Poller) pollCase(ctx context.Context, c store.Case, at time.Time) Result {
	logger := logging.WithContext(services.WithCaseID(ctx, c.ID), p.logger)
	var result Result

	count, err := scanner.RootCount(c.RemotePath)
	if err != nil {
		result.ScanErr = err.Error()
		logging.WarnWithContext(logger, "remote tree unreadable", "poll_scan_failed",
			logging.String("path", c.RemotePath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "new files for this case are not reported this pass"),
		)
	} else {
		result.FileCount = count
		result.NewFileDelta = p.updateCount(ctx, logger, c.ID, count, at)
	}

	statusCtx, cancel := context.WithTimeout(ctx, p.statusTimeout)
	status, err := p.checker.Check(statusCtx, c)
	cancel()
	if err != nil {
		result.StatusErr = err.Error()
		logging.WarnWithContext(logger, "status check failed", "poll_status_failed",
			logging.Error(err),
			logging.Duration("timeout", p.statusTimeout),
			logging.String(logging.FieldImpact, "external status missing for this case"),
		)
	} else {
		result.ExternalStatus = status
	}

	if result.NewFileDelta > 0 {
		logger.Info("new remote files", logging.Int("delta", result.NewFileDelta), logging.Int("count", count))
	}
	return result
}

// updateCount stores count and returns its growth over the last pass. The
// first observation of a case only seeds state.
func (p *Poller) updateCount(ctx context.Context, logger *slog.Logger, caseID string, count int, at time.Time) int {
	prev, ok, err := p.store.GetSyncState(ctx, caseID)
	if err != nil {
		logger.Warn("failed to read sync state", logging.Error(err))
		return 0
	}
	delta := 0
	if ok {
		delta = max(count-prev.LastFileCount, 0)
	}
	if err := p.store.PutSyncState(ctx, store.CaseSyncState{CaseID: caseID, LastFileCount: count, LastPollTime: at}); err != nil {
		logger.Warn("failed to store sync state", logging.Error(err))
	}
	return delta
}
