// Package scheduler turns per-target check cadences into queued check jobs.
//
// On every tick it asks the store which active targets are due (never
// checked, or last checked longer ago than their cadence) and enqueues a
// check for each. The queue's single-flight constraint absorbs the race
// between ticks: a target whose check is still in flight is skipped, not
// double-checked.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/vigil/jobq"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// Enqueuer is the slice of the job queue the scheduler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, targetID string) (string, error)
}

// Config configures the scheduler.
type Config struct {
	// Interval between due-target scans. Default: 15s.
	Interval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler scans for due targets and enqueues checks.
type Scheduler struct {
	store *store.Store
	queue Enqueuer
	cfg   Config
}

// New creates a Scheduler.
func New(st *store.Store, q Enqueuer, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{store: st, queue: q, cfg: cfg}
}

// Tick runs one due-target scan. Returns how many checks were enqueued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.DueTargets(ctx, now)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, t := range due {
		_, err := s.queue.Enqueue(ctx, t.ID)
		switch {
		case errors.Is(err, jobq.ErrInFlight):
			s.cfg.Logger.Debug("scheduler: check already in flight", "target", t.ID)
		case err != nil:
			s.cfg.Logger.Error("scheduler: enqueue failed", "target", t.ID, "error", err)
		default:
			enqueued++
			s.cfg.Logger.Debug("scheduler: check enqueued", "target", t.ID, "url", t.URL)
		}
	}
	return enqueued, nil
}

// Run ticks until ctx is cancelled. The first scan happens immediately so
// a restart does not wait a full interval to resume overdue checks.
func (s *Scheduler) Run(ctx context.Context) {
	if _, err := s.Tick(ctx, time.Now()); err != nil {
		s.cfg.Logger.Error("scheduler: scan failed", "error", err)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.Tick(ctx, now); err != nil {
				s.cfg.Logger.Error("scheduler: scan failed", "error", err)
			}
		}
	}
}
