package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionAge is how long finished batches stay queryable
// before the sweeper deletes them.
const DefaultRetentionAge = 24 * time.Hour

// RetentionSweeper deletes terminal batches once they have been
// finished for longer than the retention age, reclaiming their store
// blobs. The schedule accepts standard cron expressions as well as
// @every descriptors.
type RetentionSweeper struct {
	orch     *Orchestrator
	schedule cron.Schedule
	maxAge   time.Duration
	log      *slog.Logger

	poll     time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	lastRun time.Time
	deleted int64
}

// NewRetentionSweeper creates a sweeper over the orchestrator's
// batches. A non-positive maxAge falls back to DefaultRetentionAge.
func NewRetentionSweeper(orch *Orchestrator, expr string, maxAge time.Duration, log *slog.Logger) (*RetentionSweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		maxAge = DefaultRetentionAge
	}
	return &RetentionSweeper{
		orch:     orch,
		schedule: schedule,
		maxAge:   maxAge,
		log:      log.With("component", "retention"),
		poll:     time.Second,
		stopChan: make(chan struct{}),
	}, nil
}

// Start runs the sweep loop until Stop is called. Most callers run it
// in its own goroutine.
func (s *RetentionSweeper) Start() {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	next := s.schedule.Next(time.Now())
	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			deleted := s.sweepOnce(now)
			next = s.schedule.Next(now)

			s.mu.Lock()
			s.lastRun = now
			s.deleted += int64(deleted)
			s.mu.Unlock()

			if deleted > 0 {
				s.log.Info("retired finished batches", "deleted", deleted)
			}
		}
	}
}

// sweepOnce deletes every terminal batch whose completion time is
// older than the cutoff and returns how many were removed.
func (s *RetentionSweeper) sweepOnce(now time.Time) int {
	cutoff := now.Add(-s.maxAge)
	deleted := 0
	for _, rec := range s.orch.repo.all() {
		rec.mu.Lock()
		expired := rec.status.IsTerminal() && rec.completedAt != nil && rec.completedAt.Before(cutoff)
		rec.mu.Unlock()
		if !expired {
			continue
		}
		if err := s.orch.Delete(rec.id); err != nil {
			s.log.Warn("retention delete failed", "batch_id", rec.id, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// Stop terminates the sweep loop. Safe to call more than once.
func (s *RetentionSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Stats returns the time of the last sweep and the total batches deleted
func (s *RetentionSweeper) Stats() (lastRun time.Time, deleted int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.deleted
}
