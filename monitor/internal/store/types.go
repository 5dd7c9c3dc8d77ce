package store

// Target types. LinkedIn targets require an authenticated browser session;
// websites are plain HTTP.
const (
	TypeWebsite         = "website"
	TypeLinkedInProfile = "linkedin_profile"
	TypeLinkedInCompany = "linkedin_company"
)

// Change statuses. A change is born pending_analysis and only ever moves
// forward; delivery failures leave it where it is for the redrive loop.
const (
	StatusPendingAnalysis = "pending_analysis"
	StatusAnalyzed        = "analyzed"
	StatusNotified        = "notified"
)

// Target represents a URL under monitoring.
type Target struct {
	ID                string `json:"id"`
	Owner             string `json:"owner"`
	URL               string `json:"url"`
	Type              string `json:"target_type"`
	CheckFrequency    int64  `json:"check_frequency"` // ms
	Active            bool   `json:"active"`
	DeactivatedReason string `json:"deactivated_reason,omitempty"`
	LastCheckedAt     *int64 `json:"last_checked_at,omitempty"`
	NotFoundCount     int    `json:"not_found_count"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// Snapshot is an immutable versioned capture of a target's canonical content.
type Snapshot struct {
	ID               string `json:"id"`
	TargetID         string `json:"target_id"`
	Seq              int64  `json:"seq"`
	CapturedAt       int64  `json:"captured_at"`
	Title            string `json:"title,omitempty"`
	CanonicalContent string `json:"canonical_content"`
	ContentHash      string `json:"content_hash"`
}

// Change is a detected difference between snapshots seq and seq+1.
// Only Status, Summary, and NotifiedAt mutate after creation.
type Change struct {
	ID         string `json:"id"`
	TargetID   string `json:"target_id"`
	FromSeq    int64  `json:"from_seq"`
	ToSeq      int64  `json:"to_seq"`
	DetectedAt int64  `json:"detected_at"`
	DiffJSON   string `json:"diff_json"`
	Status     string `json:"status"`
	Summary    string `json:"summary,omitempty"`
	NotifiedAt *int64 `json:"notified_at,omitempty"`
}
