// Package store provides the data access layer for monitoring targets,
// snapshots, and change records.
//
// The store receives an already-opened *sql.DB (see dbopen) and shares it
// with the job queue. All timestamps are milliseconds since epoch.
package store

import "database/sql"

// Store wraps the vigil database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// EnsureSchema creates all tables and indexes.
func (s *Store) EnsureSchema() error {
	_, err := s.DB.Exec(Schema)
	return err
}
