package monitor

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/vigil/jobq"
	"github.com/hazyhaar/vigil/monitor/internal/canon"
	"github.com/hazyhaar/vigil/monitor/internal/fetch"
	"github.com/hazyhaar/vigil/monitor/internal/pipeline"
	"github.com/hazyhaar/vigil/monitor/internal/scheduler"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// Summarizer produces a human-readable summary of a change. The built-in
// implementation renders diff segments as text; an analysis backend can be
// plugged in via WithSummarizer.
type Summarizer interface {
	Summarize(ctx context.Context, target *Target, segments []Segment) (string, error)
}

// Notifier delivers analyzed change events.
type Notifier interface {
	Notify(ctx context.Context, ev *Event) error
}

// Service is the vigil monitoring orchestrator.
type Service struct {
	store    *store.Store
	queue    *jobq.Q
	sched    *scheduler.Scheduler
	pipe     *pipeline.Pipeline
	canon    *canon.Canonicalizer
	fetchers *fetch.Registry
	session  *fetch.Session // nil when no browser is configured
	logger   *slog.Logger
	config   *Config

	summarizer Summarizer
	notifier   Notifier
}

// Option customises Service construction.
type Option func(*Service)

// WithSummarizer replaces the built-in text summarizer.
func WithSummarizer(s Summarizer) Option {
	return func(svc *Service) { svc.summarizer = s }
}

// WithNotifier replaces the delivery backend.
func WithNotifier(n Notifier) Option {
	return func(svc *Service) { svc.notifier = n }
}

// WithFetcher overrides the fetcher for one target type. Used by tests and
// by deployments that front LinkedIn with their own scraping service.
func WithFetcher(targetType string, f fetch.Fetcher) Option {
	return func(svc *Service) { svc.fetchers.Register(targetType, f) }
}

// New creates a Service on an already-opened database (see dbopen) and
// ensures its schema. The caller owns the database handle.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	st := store.New(db)
	if err := st.EnsureSchema(); err != nil {
		return nil, err
	}
	queue := jobq.New(db, jobq.Options{
		LeaseTTL:     cfg.Queue.LeaseTTL,
		PollInterval: cfg.Queue.PollInterval,
		MaxRetries:   cfg.Queue.MaxRetries,
		BackoffBase:  cfg.Queue.BackoffBase,
		BackoffMax:   cfg.Queue.BackoffMax,
		Logger:       logger,
	})
	if err := queue.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}

	svc := &Service{
		store:    st,
		queue:    queue,
		canon:    canon.New(),
		fetchers: fetch.NewRegistry(),
		logger:   logger,
		config:   cfg,
	}

	svc.fetchers.Register(store.TypeWebsite, fetch.NewWebsite(fetch.WebsiteConfig{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
	}))

	// One browser session serves both LinkedIn target types. Chrome launches
	// lazily on the first LinkedIn check.
	svc.session = fetch.NewSession(fetch.SessionConfig{
		RemoteURL:       cfg.Browser.Remote,
		CookieFile:      cfg.Browser.CookieFile,
		RecycleInterval: cfg.Browser.RecycleInterval,
		NavTimeout:      cfg.Browser.NavTimeout,
		Logger:          logger,
	})
	li := fetch.NewLinkedIn(svc.session)
	svc.fetchers.Register(store.TypeLinkedInProfile, li)
	svc.fetchers.Register(store.TypeLinkedInCompany, li)

	for _, opt := range opts {
		opt(svc)
	}

	if svc.summarizer == nil {
		svc.summarizer = &pipeline.TextSummarizer{}
	}
	if svc.notifier == nil {
		svc.notifier = nopNotifier{logger: logger}
	}

	svc.pipe = pipeline.New(st, svc.summarizer, svc.notifier, pipeline.Config{
		RedriveInterval: cfg.Pipeline.RedriveInterval,
		Attempts:        cfg.Pipeline.Attempts,
		Logger:          logger,
	})
	svc.sched = scheduler.New(st, queue, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Logger:   logger,
	})
	return svc, nil
}

// Run starts the scheduler, the check worker pool, the redrive loop, and
// the job retention sweep, then blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("monitor: starting",
		"workers", s.config.Workers,
		"scheduler_interval", s.config.Scheduler.Interval,
	)

	done := make(chan struct{}, 3)
	go func() { s.sched.Run(ctx); done <- struct{}{} }()
	go func() { s.pipe.Run(ctx); done <- struct{}{} }()
	go func() { s.cleanupLoop(ctx); done <- struct{}{} }()

	// RunBatch blocks until ctx is cancelled and all handlers drained.
	s.queue.RunBatch(ctx, s.config.Workers, s.runCheck)

	for i := 0; i < 3; i++ {
		<-done
	}
	if s.session != nil {
		s.session.Close()
	}
	s.logger.Info("monitor: stopped")
	return ctx.Err()
}

func (s *Service) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.queue.Cleanup(ctx, s.config.Queue.Retention)
			if err != nil {
				s.logger.Warn("monitor: job cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("monitor: pruned terminal jobs", "count", n)
			}
		}
	}
}

// nopNotifier logs deliveries instead of sending them. Default until a
// real backend is wired in.
type nopNotifier struct {
	logger *slog.Logger
}

func (n nopNotifier) Notify(_ context.Context, ev *Event) error {
	n.logger.Info("monitor: change detected (no notifier configured)",
		"target", ev.Target.ID, "url", ev.Target.URL, "summary", ev.Summary)
	return nil
}
