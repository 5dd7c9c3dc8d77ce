// Package pipeline drives detected changes through analysis and
// notification.
//
// A change is born pending_analysis. The pipeline summarizes it, marks it
// analyzed, delivers it, and marks it notified. Every transition is a
// guarded UPDATE, so a crash between steps leaves the change where the
// redrive loop can pick it up without duplicating work.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/hazyhaar/vigil/monitor/internal/diff"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// Event is a fully analyzed change ready for delivery.
type Event struct {
	Target   *store.Target  `json:"target"`
	Change   *store.Change  `json:"change"`
	Segments []diff.Segment `json:"segments"`
	Summary  string         `json:"summary"`
}

// Summarizer produces a human-readable summary of a change.
type Summarizer interface {
	Summarize(ctx context.Context, target *store.Target, segments []diff.Segment) (string, error)
}

// Notifier delivers an analyzed change.
type Notifier interface {
	Notify(ctx context.Context, ev *Event) error
}

// Config configures the pipeline.
type Config struct {
	// RedriveInterval is how often stuck changes are re-examined.
	// Default: 1m.
	RedriveInterval time.Duration

	// RedriveBatch bounds how many stuck changes one redrive pass picks up
	// per status. Default: 50.
	RedriveBatch int

	// Attempts bounds retries around each stage within a single drive.
	// Default: 3.
	Attempts uint

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RedriveInterval <= 0 {
		c.RedriveInterval = time.Minute
	}
	if c.RedriveBatch <= 0 {
		c.RedriveBatch = 50
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline advances changes through their status lifecycle.
type Pipeline struct {
	store      *store.Store
	summarizer Summarizer
	notifier   Notifier
	cfg        Config
}

// New creates a Pipeline.
func New(st *store.Store, sum Summarizer, not Notifier, cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{store: st, summarizer: sum, notifier: not, cfg: cfg}
}

// Drive advances one change as far as it will go. Safe to call repeatedly
// and from multiple workers: the guarded status transitions ensure each
// stage runs to completion exactly once.
func (p *Pipeline) Drive(ctx context.Context, changeID string) error {
	ch, err := p.store.GetChange(ctx, changeID)
	if err != nil {
		return fmt.Errorf("pipeline: load change: %w", err)
	}
	if ch == nil {
		return fmt.Errorf("pipeline: change %s not found", changeID)
	}
	target, err := p.store.GetTarget(ctx, ch.TargetID)
	if err != nil {
		return fmt.Errorf("pipeline: load target: %w", err)
	}
	if target == nil {
		return fmt.Errorf("pipeline: target %s not found", ch.TargetID)
	}
	segments, err := diff.Unmarshal(ch.DiffJSON)
	if err != nil {
		return fmt.Errorf("pipeline: decode diff: %w", err)
	}

	if ch.Status == store.StatusPendingAnalysis {
		summary, err := p.summarize(ctx, target, segments)
		if err != nil {
			return fmt.Errorf("pipeline: summarize %s: %w", ch.ID, err)
		}
		advanced, err := p.store.MarkAnalyzed(ctx, ch.ID, summary)
		if err != nil {
			return fmt.Errorf("pipeline: mark analyzed: %w", err)
		}
		if advanced {
			ch.Status = store.StatusAnalyzed
			ch.Summary = summary
		} else {
			// Someone else got there first; reload their summary.
			ch, err = p.store.GetChange(ctx, ch.ID)
			if err != nil || ch == nil {
				return fmt.Errorf("pipeline: reload change: %w", err)
			}
		}
	}

	if ch.Status == store.StatusAnalyzed {
		ev := &Event{Target: target, Change: ch, Segments: segments, Summary: ch.Summary}
		if err := p.deliver(ctx, ev); err != nil {
			return fmt.Errorf("pipeline: notify %s: %w", ch.ID, err)
		}
		advanced, err := p.store.MarkNotified(ctx, ch.ID)
		if err != nil {
			return fmt.Errorf("pipeline: mark notified: %w", err)
		}
		if !advanced {
			p.cfg.Logger.Debug("pipeline: change already notified", "change", ch.ID)
		}
	}
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, target *store.Target, segments []diff.Segment) (string, error) {
	var summary string
	err := retry.Do(
		func() error {
			var err error
			summary, err = p.summarizer.Summarize(ctx, target, segments)
			return err
		},
		retry.Attempts(p.cfg.Attempts),
		retry.Delay(time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return summary, err
}

func (p *Pipeline) deliver(ctx context.Context, ev *Event) error {
	return retry.Do(
		func() error { return p.notifier.Notify(ctx, ev) },
		retry.Attempts(p.cfg.Attempts),
		retry.Delay(time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.cfg.Logger.Warn("pipeline: notify retry", "change", ev.Change.ID, "attempt", n, "error", err)
		}),
	)
}

// Redrive makes one pass over stuck changes. Errors are logged, not
// returned: a poisoned change must not block the rest of the batch.
func (p *Pipeline) Redrive(ctx context.Context) {
	for _, status := range []string{store.StatusPendingAnalysis, store.StatusAnalyzed} {
		stuck, err := p.store.ListChangesByStatus(ctx, status, p.cfg.RedriveBatch)
		if err != nil {
			p.cfg.Logger.Error("pipeline: list stuck changes", "status", status, "error", err)
			continue
		}
		for _, ch := range stuck {
			if err := p.Drive(ctx, ch.ID); err != nil {
				p.cfg.Logger.Warn("pipeline: redrive failed", "change", ch.ID, "error", err)
			}
		}
	}
}

// Run redrives stuck changes on a ticker until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RedriveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Redrive(ctx)
		}
	}
}
