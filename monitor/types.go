// Package monitor watches web pages and LinkedIn profiles for content
// changes.
//
// Each target is fetched on its own cadence, reduced to a canonical text
// form, and compared against the latest stored snapshot by hash. A real
// difference appends an immutable snapshot, records a change with a line
// diff, and drives it through analysis and notification.
package monitor

import (
	"github.com/hazyhaar/vigil/jobq"
	"github.com/hazyhaar/vigil/monitor/internal/diff"
	"github.com/hazyhaar/vigil/monitor/internal/pipeline"
	"github.com/hazyhaar/vigil/monitor/internal/store"
)

// Re-export storage types for the public API.
type (
	Target   = store.Target
	Snapshot = store.Snapshot
	Change   = store.Change
	Segment  = diff.Segment
	Event    = pipeline.Event
	CheckJob = jobq.Job
)

// Target types.
const (
	TypeWebsite         = store.TypeWebsite
	TypeLinkedInProfile = store.TypeLinkedInProfile
	TypeLinkedInCompany = store.TypeLinkedInCompany
)

// Change statuses.
const (
	StatusPendingAnalysis = store.StatusPendingAnalysis
	StatusAnalyzed        = store.StatusAnalyzed
	StatusNotified        = store.StatusNotified
)
