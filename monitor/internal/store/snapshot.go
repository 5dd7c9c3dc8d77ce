package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/vigil/dbopen"
)

// InsertSnapshot appends a snapshot row inside a transaction. The
// UNIQUE(target_id, seq) constraint rejects duplicate or out-of-order
// writes, so two workers racing on the same target cannot fork the history.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return insertSnapshotTx(ctx, tx, snap)
	})
}

func insertSnapshotTx(ctx context.Context, tx *sql.Tx, snap *Snapshot) error {
	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().UnixMilli()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, target_id, seq, captured_at, title, canonical_content, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TargetID, snap.Seq, snap.CapturedAt, snap.Title,
		snap.CanonicalContent, snap.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot seq %d: %w", snap.Seq, err)
	}
	return nil
}

// HeadSnapshot returns the latest snapshot for a target, or nil if the
// target has never been captured.
func (s *Store) HeadSnapshot(ctx context.Context, targetID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, target_id, seq, captured_at, title, canonical_content, content_hash
		FROM snapshots WHERE target_id = ? ORDER BY seq DESC LIMIT 1`, targetID)
	return scanSnapshot(row)
}

// GetSnapshot returns a specific snapshot version, or nil.
func (s *Store) GetSnapshot(ctx context.Context, targetID string, seq int64) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, target_id, seq, captured_at, title, canonical_content, content_hash
		FROM snapshots WHERE target_id = ? AND seq = ?`, targetID, seq)
	return scanSnapshot(row)
}

// ListSnapshots returns the most recent snapshots for a target, newest first.
func (s *Store) ListSnapshots(ctx context.Context, targetID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, target_id, seq, captured_at, title, canonical_content, content_hash
		FROM snapshots WHERE target_id = ? ORDER BY seq DESC LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.ID, &sn.TargetID, &sn.Seq, &sn.CapturedAt, &sn.Title,
			&sn.CanonicalContent, &sn.ContentHash); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, &sn)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var sn Snapshot
	err := row.Scan(&sn.ID, &sn.TargetID, &sn.Seq, &sn.CapturedAt, &sn.Title,
		&sn.CanonicalContent, &sn.ContentHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &sn, nil
}
