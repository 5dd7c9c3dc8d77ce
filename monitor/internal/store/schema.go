package store

// Schema is the complete vigil monitoring schema. The check_jobs table is
// owned by the jobq package and created separately.
const Schema = `
-- Targets under monitoring
CREATE TABLE IF NOT EXISTS targets (
    id                 TEXT PRIMARY KEY,
    owner              TEXT NOT NULL,
    url                TEXT NOT NULL,
    target_type        TEXT NOT NULL DEFAULT 'website',
    check_frequency    INTEGER NOT NULL DEFAULT 3600000,
    active             INTEGER NOT NULL DEFAULT 1,
    deactivated_reason TEXT NOT NULL DEFAULT '',
    last_checked_at    INTEGER,
    not_found_count    INTEGER NOT NULL DEFAULT 0,
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_targets_owner_url ON targets(owner, url);
CREATE INDEX IF NOT EXISTS idx_targets_due ON targets(active, last_checked_at);

-- Append-only versioned captures per target
CREATE TABLE IF NOT EXISTS snapshots (
    id                TEXT PRIMARY KEY,
    target_id         TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    seq               INTEGER NOT NULL,
    captured_at       INTEGER NOT NULL,
    title             TEXT NOT NULL DEFAULT '',
    canonical_content TEXT NOT NULL,
    content_hash      TEXT NOT NULL,
    UNIQUE(target_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_target ON snapshots(target_id, seq DESC);

-- Detected differences between adjacent snapshots
CREATE TABLE IF NOT EXISTS changes (
    id          TEXT PRIMARY KEY,
    target_id   TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    from_seq    INTEGER NOT NULL,
    to_seq      INTEGER NOT NULL,
    detected_at INTEGER NOT NULL,
    diff_json   TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending_analysis',
    summary     TEXT NOT NULL DEFAULT '',
    notified_at INTEGER,
    UNIQUE(target_id, to_seq),
    CHECK(to_seq = from_seq + 1)
);
CREATE INDEX IF NOT EXISTS idx_changes_target_time ON changes(target_id, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_changes_status ON changes(status, detected_at);
`
