package blobstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically sweeps expired entries out of a Store, independent
// of Put traffic. The schedule accepts standard cron expressions as well
// as @every descriptors.
type Janitor struct {
	store    *Store
	schedule cron.Schedule
	log      *slog.Logger

	poll     time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	lastRun time.Time
	removed int64
}

// NewJanitor creates a janitor sweeping store on the given cron schedule
func NewJanitor(store *Store, expr string, log *slog.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		log:      log.With("component", "janitor"),
		poll:     time.Second,
		stopChan: make(chan struct{}),
	}, nil
}

// Start runs the sweep loop until Stop is called. Most callers run it
// in its own goroutine.
func (j *Janitor) Start() {
	ticker := time.NewTicker(j.poll)
	defer ticker.Stop()

	next := j.schedule.Next(time.Now())
	for {
		select {
		case <-j.stopChan:
			return
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			removed := j.store.Sweep()
			next = j.schedule.Next(now)

			j.mu.Lock()
			j.lastRun = now
			j.removed += int64(removed)
			j.mu.Unlock()

			if removed > 0 {
				j.log.Info("swept expired entries", "removed", removed, "remaining", j.store.Len())
			}
		}
	}
}

// Stop terminates the sweep loop. Safe to call more than once.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// Stats returns the time of the last sweep and the total entries removed
func (j *Janitor) Stats() (lastRun time.Time, removed int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun, j.removed
}
