package models

import "time"

// TrackerSnapshot is the persisted part of a model availability tracker.
// Validation flags and success history are rebuilt per session and never stored.
type TrackerSnapshot struct {
	CredentialID string         `json:"credential_id" db:"credential_id"`
	Provider     string         `json:"provider" db:"provider"`
	Blocked      []string       `json:"blocked" db:"blocked"`
	ErrorCount   map[string]int `json:"error_count" db:"error_count"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the TrackerSnapshot model
func (TrackerSnapshot) TableName() string {
	return "tracker_snapshots"
}

// IsEmpty reports whether the snapshot carries no state worth restoring
func (s *TrackerSnapshot) IsEmpty() bool {
	return s == nil || (len(s.Blocked) == 0 && len(s.ErrorCount) == 0)
}
