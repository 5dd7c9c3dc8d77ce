package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const changeCols = `id, target_id, from_seq, to_seq, detected_at, diff_json, status, summary, notified_at`

// InsertChange persists a detected change with status pending_analysis.
// The UNIQUE(target_id, to_seq) constraint makes reprocessing after a crash
// idempotent: a second insert for the same snapshot pair is rejected.
func (s *Store) InsertChange(ctx context.Context, c *Change) error {
	if c.Status == "" {
		c.Status = StatusPendingAnalysis
	}
	if c.DetectedAt == 0 {
		c.DetectedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO changes (id, target_id, from_seq, to_seq, detected_at, diff_json, status, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TargetID, c.FromSeq, c.ToSeq, c.DetectedAt, c.DiffJSON, c.Status, c.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert change %d→%d: %w", c.FromSeq, c.ToSeq, err)
	}
	return nil
}

// GetChange retrieves a change by ID. Returns nil, nil when absent.
func (s *Store) GetChange(ctx context.Context, id string) (*Change, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+changeCols+` FROM changes WHERE id = ?`, id)
	return scanChange(row)
}

// GetChangeForSeq returns the change whose to_seq matches, or nil. Used to
// detect an already-recorded change when resuming after a crash.
func (s *Store) GetChangeForSeq(ctx context.Context, targetID string, toSeq int64) (*Change, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+changeCols+` FROM changes WHERE target_id = ? AND to_seq = ?`, targetID, toSeq)
	return scanChange(row)
}

// ListChanges returns changes for a target detected at or after since,
// newest first.
func (s *Store) ListChanges(ctx context.Context, targetID string, since time.Time) ([]*Change, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+changeCols+` FROM changes
		WHERE target_id = ? AND detected_at >= ?
		ORDER BY detected_at DESC`, targetID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChanges(rows)
}

// ListChangesByStatus returns the oldest changes in a given status, for the
// redrive loop.
func (s *Store) ListChangesByStatus(ctx context.Context, status string, limit int) ([]*Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+changeCols+` FROM changes
		WHERE status = ? ORDER BY detected_at ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChanges(rows)
}

// MarkAnalyzed transitions pending_analysis → analyzed and stores the
// summary. Returns false if the change was not in pending_analysis — the
// guard that makes redelivery idempotent.
func (s *Store) MarkAnalyzed(ctx context.Context, id, summary string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE changes SET status=?, summary=? WHERE id=? AND status=?`,
		StatusAnalyzed, summary, id, StatusPendingAnalysis)
	if err != nil {
		return false, fmt.Errorf("mark analyzed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkNotified transitions analyzed → notified. Returns false if the change
// was not in analyzed, so a redelivered change cannot notify twice.
func (s *Store) MarkNotified(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE changes SET status=?, notified_at=? WHERE id=? AND status=?`,
		StatusNotified, time.Now().UnixMilli(), id, StatusAnalyzed)
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanChange(row *sql.Row) (*Change, error) {
	var c Change
	err := row.Scan(&c.ID, &c.TargetID, &c.FromSeq, &c.ToSeq, &c.DetectedAt,
		&c.DiffJSON, &c.Status, &c.Summary, &c.NotifiedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan change: %w", err)
	}
	return &c, nil
}

func collectChanges(rows *sql.Rows) ([]*Change, error) {
	var changes []*Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.ID, &c.TargetID, &c.FromSeq, &c.ToSeq, &c.DetectedAt,
			&c.DiffJSON, &c.Status, &c.Summary, &c.NotifiedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
