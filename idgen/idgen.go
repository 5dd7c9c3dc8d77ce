// Package idgen provides pluggable ID generation for vigil.
//
// Stores and the job queue accept a Generator, making the ID strategy a
// startup-time decision rather than a compile-time one. IDs are UUIDv7
// (time-sortable) with a type prefix so a bare ID in a log line is
// self-describing: trg_… target, job_… check job, snp_… snapshot, chg_… change.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the plain UUIDv7 generator. Prefixed variants compose on top.
var Default Generator = UUIDv7()

// Type-scoped generators used across the repo.
var (
	Target   = Prefixed("trg_", Default)
	Job      = Prefixed("job_", Default)
	Snapshot = Prefixed("snp_", Default)
	Change   = Prefixed("chg_", Default)
)

