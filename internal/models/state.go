package models

import "time"

// Persisted state blob keys. Missing key means first run.
const (
	AlertStateKey   = "alert_state"
	ArchiveStateKey = "archive_state"
)

// StreamAlertState tracks stall detection per monitored stream. It is only
// mutated inside the locked alert-check pass.
type StreamAlertState struct {
	LastRowCount int        `json:"last_row_count"`
	LastChangeAt time.Time  `json:"last_change_at"`
	LastAlertAt  *time.Time `json:"last_alert_at,omitempty"`
	AlertActive  bool       `json:"alert_active"`

	// Only meaningful on the primary stream's state: cooldown marker for the
	// temperature threshold alert, independent from the stall cooldown.
	LastThresholdAlertAt *time.Time `json:"last_threshold_alert_at,omitempty"`
}

// AlertStateBlob is the single persisted alert-state document, keyed by
// stream name.
type AlertStateBlob map[string]*StreamAlertState

// ArchiveState makes the daily archive pass idempotent per calendar date.
type ArchiveState struct {
	LastArchiveDate string    `json:"last_archive_date"`
	LastRunAt       time.Time `json:"last_run_at"`
	ArchivedRows    int64     `json:"archived_rows"`
}
