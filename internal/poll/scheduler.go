package poll

import (
	"context"
	"log/slog"
	"time"

	"casework/internal/logging"
)

// Enqueuer accepts poll tasks.
type Enqueuer interface {
	EnqueuePoll(ctx context.Context) (string, error)
}

// Scheduler feeds poll tasks to the work queue on a fixed interval.
type Scheduler struct {
	queue  Enqueuer
	logger *slog.Logger
}

// NewScheduler builds a scheduler enqueueing into q.
func NewScheduler(q Enqueuer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{queue: q, logger: logging.NewComponentLogger(logger, "poll-scheduler")}
}

// Schedule enqueues one poll task every interval until ctx is done. The
// first task is enqueued after one full interval.
func (s *Scheduler) Schedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Debug("poll scheduler started", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			id, err := s.queue.EnqueuePoll(ctx)
			if err != nil {
				s.logger.Warn("failed to enqueue poll", logging.Error(err))
				continue
			}
			s.logger.Debug("poll enqueued", logging.String(logging.FieldTaskID, id))
		}
	}
}
