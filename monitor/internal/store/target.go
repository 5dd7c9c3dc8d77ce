package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const targetCols = `id, owner, url, target_type, check_frequency, active,
	deactivated_reason, last_checked_at, not_found_count, created_at, updated_at`

// InsertTarget adds a new monitoring target.
func (s *Store) InsertTarget(ctx context.Context, t *Target) error {
	now := time.Now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = now
	}
	if t.Type == "" {
		t.Type = TypeWebsite
	}
	if t.CheckFrequency == 0 {
		t.CheckFrequency = 3600_000
	}
	// New targets start active; Deactivate is the only way out.
	t.Active = true

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO targets (id, owner, url, target_type, check_frequency, active,
		deactivated_reason, last_checked_at, not_found_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.URL, t.Type, t.CheckFrequency, t.Active,
		t.DeactivatedReason, t.LastCheckedAt, t.NotFoundCount, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetTarget retrieves a target by ID. Returns nil, nil when absent.
func (s *Store) GetTarget(ctx context.Context, id string) (*Target, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+targetCols+` FROM targets WHERE id = ?`, id)
	return scanTarget(row)
}

// GetTargetByOwnerURL returns the owner's target for a URL, or nil.
func (s *Store) GetTargetByOwnerURL(ctx context.Context, owner, url string) (*Target, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+targetCols+` FROM targets WHERE owner = ? AND url = ? LIMIT 1`, owner, url)
	return scanTarget(row)
}

// ListTargets returns all targets belonging to an owner.
func (s *Store) ListTargets(ctx context.Context, owner string) ([]*Target, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+targetCols+` FROM targets WHERE owner = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTargets(rows)
}

// DueTargets returns active targets whose next check time has passed.
// next check = last_checked_at + check_frequency; never-checked targets are
// always due. In-flight exclusion is the job queue's business, not this
// query's: Enqueue rejects duplicates.
func (s *Store) DueTargets(ctx context.Context, now time.Time) ([]*Target, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+targetCols+` FROM targets
		WHERE active = 1
		  AND (last_checked_at IS NULL OR last_checked_at + check_frequency <= ?)
		ORDER BY last_checked_at ASC NULLS FIRST`, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTargets(rows)
}

// UpdateTarget updates a target's mutable configuration fields.
func (s *Store) UpdateTarget(ctx context.Context, t *Target) error {
	t.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE targets SET url=?, target_type=?, check_frequency=?, updated_at=? WHERE id=?`,
		t.URL, t.Type, t.CheckFrequency, t.UpdatedAt, t.ID,
	)
	return err
}

// DeleteTarget removes a target (cascades to snapshots and changes).
func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	return err
}

// TouchChecked stamps last_checked_at. Called only on job completion
// (success or exhaustion), never on enqueue, so a crashed worker leaves the
// target due instead of silently skipped.
func (s *Store) TouchChecked(ctx context.Context, id string, at time.Time) error {
	ms := at.UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE targets SET last_checked_at=?, updated_at=? WHERE id=?`, ms, ms, id)
	return err
}

// ResetNotFound zeroes the consecutive NotFound counter after a successful
// fetch.
func (s *Store) ResetNotFound(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE targets SET not_found_count=0, updated_at=? WHERE id=?`,
		time.Now().UnixMilli(), id)
	return err
}

// BumpNotFound increments the consecutive NotFound counter and returns the
// new value.
func (s *Store) BumpNotFound(ctx context.Context, id string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`UPDATE targets SET not_found_count = not_found_count + 1, updated_at=?
		WHERE id=? RETURNING not_found_count`,
		time.Now().UnixMilli(), id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bump not_found: %w", err)
	}
	return n, nil
}

// Deactivate marks a target inactive with a recorded reason.
func (s *Store) Deactivate(ctx context.Context, id, reason string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE targets SET active=0, deactivated_reason=?, updated_at=? WHERE id=?`,
		reason, time.Now().UnixMilli(), id)
	return err
}

// Activate re-enables a target and clears the deactivation bookkeeping.
func (s *Store) Activate(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE targets SET active=1, deactivated_reason='', not_found_count=0, updated_at=?
		WHERE id=?`, time.Now().UnixMilli(), id)
	return err
}

func scanTarget(row *sql.Row) (*Target, error) {
	var t Target
	var active int
	err := row.Scan(
		&t.ID, &t.Owner, &t.URL, &t.Type, &t.CheckFrequency, &active,
		&t.DeactivatedReason, &t.LastCheckedAt, &t.NotFoundCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan target: %w", err)
	}
	t.Active = active != 0
	return &t, nil
}

func collectTargets(rows *sql.Rows) ([]*Target, error) {
	var targets []*Target
	for rows.Next() {
		var t Target
		var active int
		err := rows.Scan(
			&t.ID, &t.Owner, &t.URL, &t.Type, &t.CheckFrequency, &active,
			&t.DeactivatedReason, &t.LastCheckedAt, &t.NotFoundCount, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.Active = active != 0
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}
