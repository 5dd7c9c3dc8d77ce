// Package jobq implements the check-job queue backed by SQLite.
//
// Each row is one CheckJob for one monitoring target. A partial unique
// index over the non-terminal states guarantees at most one in-flight job
// per target: a second Enqueue — scheduled or manual — fails with
// ErrInFlight instead of double-fetching.
//
// Claiming a job transitions it to running and stamps next_attempt_at with
// a lease expiry. If the holder finalises the job (Complete, Fail, FailAuth,
// Exhaust) the row settles into a state; if the holder crashes the lease
// expires and the job becomes claimable again — no manual intervention.
//
// Lifecycle:
//
//	scheduled → running → succeeded
//	                    → retrying → running            (backoff, up to MaxRetries)
//	                    → exhausted                      (terminal)
//	                    → needs_reauth                   (terminal, auth failures)
//
// Schema (created by EnsureSchema):
//
//	CREATE TABLE check_jobs (
//	    id              TEXT PRIMARY KEY,
//	    target_id       TEXT NOT NULL,
//	    state           TEXT NOT NULL DEFAULT 'scheduled',
//	    attempts        INTEGER NOT NULL DEFAULT 0,
//	    next_attempt_at INTEGER NOT NULL DEFAULT 0,  -- ms since epoch; lease expiry while running
//	    last_error      TEXT NOT NULL DEFAULT '',
//	    created_at      INTEGER NOT NULL,
//	    updated_at      INTEGER NOT NULL
//	);
package jobq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/vigil/idgen"
)

// State is a CheckJob lifecycle state.
type State string

const (
	StateScheduled   State = "scheduled"
	StateRunning     State = "running"
	StateRetrying    State = "retrying"
	StateSucceeded   State = "succeeded"
	StateExhausted   State = "exhausted"
	StateNeedsReauth State = "needs_reauth"
)

// Terminal reports whether s is a resting state. Terminal jobs stay in the
// table as the audit trail of the attempt but no longer block a new Enqueue.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExhausted, StateNeedsReauth:
		return true
	}
	return false
}

// ErrInFlight is returned by Enqueue when the target already has a job in a
// non-terminal state.
var ErrInFlight = errors.New("jobq: check already in flight for target")

// ErrNotRunning is returned when finalising a job that is not in running
// state (e.g. its lease expired and another worker reclaimed it).
var ErrNotRunning = errors.New("jobq: job is not running")

// ErrNotFound is returned by Get for an unknown job ID.
var ErrNotFound = errors.New("jobq: job not found")

// Job is one check attempt row.
type Job struct {
	ID            string
	TargetID      string
	State         State
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Options configures queue behaviour.
type Options struct {
	// LeaseTTL is how long a claimed job stays invisible before a crashed
	// worker's job becomes reclaimable. Must exceed the fetch timeout.
	// Default: 2m.
	LeaseTTL time.Duration
	// PollInterval is the delay between claim attempts in RunBatch.
	// Default: 1s.
	PollInterval time.Duration
	// MaxRetries is the attempt count at which a failing job becomes
	// exhausted. Default: 3.
	MaxRetries int
	// BackoffBase is the base of the exponential retry delay:
	// next_attempt_at = now + BackoffBase * 2^attempts. Default: 30s.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay. Default: 30m.
	BackoffMax time.Duration
	// NewID generates job IDs. Default: idgen.Job.
	NewID idgen.Generator
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 2 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 30 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Minute
	}
	if o.NewID == nil {
		o.NewID = idgen.Job
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureSchema once at startup.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

// EnsureSchema creates the check_jobs table and indexes if they don't exist.
func (q *Q) EnsureSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS check_jobs (
			id              TEXT PRIMARY KEY,
			target_id       TEXT NOT NULL,
			state           TEXT NOT NULL DEFAULT 'scheduled',
			attempts        INTEGER NOT NULL DEFAULT 0,
			next_attempt_at INTEGER NOT NULL DEFAULT 0,
			last_error      TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_check_jobs_inflight
			ON check_jobs(target_id)
			WHERE state IN ('scheduled','running','retrying');
		CREATE INDEX IF NOT EXISTS idx_check_jobs_due
			ON check_jobs(state, next_attempt_at);
		CREATE INDEX IF NOT EXISTS idx_check_jobs_target
			ON check_jobs(target_id, created_at DESC);
	`)
	return err
}

// Enqueue inserts a scheduled job for the target, immediately claimable.
// Returns ErrInFlight if a non-terminal job already exists for the target.
func (q *Q) Enqueue(ctx context.Context, targetID string) (string, error) {
	id := q.opts.NewID()
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO check_jobs (id, target_id, state, created_at, updated_at)
		VALUES (?, ?, 'scheduled', ?, ?)`,
		id, targetID, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", ErrInFlight
		}
		return "", fmt.Errorf("jobq: enqueue: %w", err)
	}
	return id, nil
}

// Claim atomically picks the oldest due job and transitions it to running
// under a fresh lease. Due means: scheduled or retrying with
// next_attempt_at in the past, or running with an expired lease (crashed
// worker). Returns nil, nil when nothing is due.
func (q *Q) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	leaseUntil := now.Add(q.opts.LeaseTTL).UnixMilli()
	nowMs := now.UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE check_jobs
		SET state = 'running', attempts = attempts + 1,
		    next_attempt_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM check_jobs
			WHERE state IN ('scheduled','retrying','running')
			  AND next_attempt_at <= ?
			ORDER BY next_attempt_at ASC, created_at ASC
			LIMIT 1
		)
		RETURNING id, target_id, state, attempts, next_attempt_at, last_error, created_at, updated_at`,
		leaseUntil, nowMs, nowMs,
	)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobq: claim: %w", err)
	}
	return j, nil
}

// Complete transitions a running job to succeeded.
func (q *Q) Complete(ctx context.Context, jobID string) error {
	return q.finalize(ctx, jobID, StateSucceeded, "", 0)
}

// Fail records a retryable failure. If the job's attempt count has reached
// MaxRetries it becomes exhausted; otherwise it transitions to retrying with
// next_attempt_at = now + BackoffBase * 2^attempts, capped at BackoffMax.
// The resulting state is returned.
func (q *Q) Fail(ctx context.Context, jobID, errMsg string) (State, error) {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.State != StateRunning {
		return job.State, ErrNotRunning
	}

	if job.Attempts >= q.opts.MaxRetries {
		if err := q.finalize(ctx, jobID, StateExhausted, errMsg, 0); err != nil {
			return "", err
		}
		return StateExhausted, nil
	}

	next := time.Now().Add(q.backoff(job.Attempts)).UnixMilli()
	if err := q.finalize(ctx, jobID, StateRetrying, errMsg, next); err != nil {
		return "", err
	}
	return StateRetrying, nil
}

// FailAuth transitions a running job directly to needs_reauth. Retrying an
// expired session cannot succeed, so the backoff loop is bypassed entirely.
func (q *Q) FailAuth(ctx context.Context, jobID, errMsg string) error {
	return q.finalize(ctx, jobID, StateNeedsReauth, errMsg, 0)
}

// Exhaust transitions a running job directly to exhausted, regardless of its
// attempt count. Used when the target itself is being deactivated.
func (q *Q) Exhaust(ctx context.Context, jobID, errMsg string) error {
	return q.finalize(ctx, jobID, StateExhausted, errMsg, 0)
}

func (q *Q) finalize(ctx context.Context, jobID string, state State, errMsg string, nextAt int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE check_jobs
		SET state = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND state = 'running'`,
		string(state), errMsg, nextAt, time.Now().UnixMilli(), jobID,
	)
	if err != nil {
		return fmt.Errorf("jobq: finalize %s: %w", state, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobq: finalize %s: %w", state, err)
	}
	if n == 0 {
		return ErrNotRunning
	}
	return nil
}

func (q *Q) backoff(attempts int) time.Duration {
	d := q.opts.BackoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= q.opts.BackoffMax {
			return q.opts.BackoffMax
		}
	}
	return d
}

// Get retrieves a job by ID.
func (q *Q) Get(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, target_id, state, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM check_jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jobq: get: %w", err)
	}
	return j, nil
}

// InFlight reports whether the target has a non-terminal job.
func (q *Q) InFlight(ctx context.Context, targetID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM check_jobs
		WHERE target_id = ? AND state IN ('scheduled','running','retrying')`,
		targetID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("jobq: in flight: %w", err)
	}
	return n > 0, nil
}

// ResetTarget deletes terminal jobs for a target. Exhausted and
// needs_reauth states persist until this manual reset (typically alongside
// reactivating the target or refreshing its session).
func (q *Q) ResetTarget(ctx context.Context, targetID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM check_jobs
		WHERE target_id = ? AND state IN ('succeeded','exhausted','needs_reauth')`,
		targetID,
	)
	if err != nil {
		return fmt.Errorf("jobq: reset target: %w", err)
	}
	return nil
}

// Cleanup deletes terminal jobs older than the retention window.
func (q *Q) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM check_jobs
		WHERE state IN ('succeeded','exhausted','needs_reauth') AND updated_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("jobq: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Handler processes a claimed job. The handler owns finalisation: it must
// call Complete, Fail, FailAuth, or Exhaust before returning. A job left
// running is reclaimed after its lease expires.
type Handler func(ctx context.Context, job *Job)

// RunBatch polls for due jobs and dispatches them to handler with bounded
// concurrency. The claim loop never blocks on a fetch in progress: claiming
// is a single SQL statement and slow handlers only occupy semaphore slots.
// Blocks until ctx is cancelled, draining in-flight handlers before
// returning.
func (q *Q) RunBatch(ctx context.Context, maxConcurrency int, handler Handler) {
	log := q.opts.Logger
	log.Info("jobq: consumer started",
		"max_concurrency", maxConcurrency,
		"lease_ttl", q.opts.LeaseTTL,
		"poll", q.opts.PollInterval,
	)

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("jobq: consumer stopping, draining in-flight handlers")
			wg.Wait()
			log.Info("jobq: consumer stopped")
			return
		case <-ticker.C:
			q.dispatch(ctx, sem, &wg, handler)
		}
	}
}

func (q *Q) dispatch(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup, handler Handler) {
	for {
		// Acquire the slot before claiming, so a claimed job never waits
		// with a ticking lease.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job, err := q.Claim(ctx)
		if err != nil {
			<-sem
			if ctx.Err() == nil {
				q.opts.Logger.Warn("jobq: claim failed", "error", err)
			}
			return
		}
		if job == nil {
			<-sem
			return // nothing due
		}

		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			defer func() { <-sem }()
			handler(ctx, j)
		}(job)
	}
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var state string
	var nextAt, creAt, updAt int64
	err := row.Scan(&j.ID, &j.TargetID, &state, &j.Attempts, &nextAt, &j.LastError, &creAt, &updAt)
	if err != nil {
		return nil, err
	}
	j.State = State(state)
	j.NextAttemptAt = time.UnixMilli(nextAt)
	j.CreatedAt = time.UnixMilli(creAt)
	j.UpdatedAt = time.UnixMilli(updAt)
	return &j, nil
}
