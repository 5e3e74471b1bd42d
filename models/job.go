package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a translation job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// NoCheckpoint is the checkpoint index of a job that has not translated any unit yet
const NoCheckpoint = -1

// TranslationJob represents a long-running subtitle translation
type TranslationJob struct {
	ID             uuid.UUID `json:"id" db:"id"`
	VideoID        string    `json:"video_id" db:"video_id"`
	SourceLanguage string    `json:"source_language" db:"source_language"`
	TargetLanguage string    `json:"target_language" db:"target_language"`
	Status         JobStatus `json:"status" db:"status"`
	Progress       int       `json:"progress" db:"progress"`
	Message        string    `json:"message" db:"message"`
	Error          *string   `json:"error,omitempty" db:"error"`
	Service        string    `json:"translation_service,omitempty" db:"translation_service"`
	MaxGap         float64   `json:"max_gap" db:"max_gap"`
	CredentialID   string    `json:"-" db:"credential_id"`

	// Source material, stored so a paused job can be resumed without the caller
	Segments []SubtitleSegment `json:"-" db:"segments"`

	// Checkpoint
	LastTranslatedGroupIndex int                  `json:"last_translated_group_index" db:"last_translated_group_index"`
	PartialSegments          []TranslationSegment `json:"partial_segments,omitempty" db:"partial_segments"`
	BlockedModels            []string             `json:"blocked_models,omitempty" db:"blocked_models"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the TranslationJob model
func (TranslationJob) TableName() string {
	return "jobs"
}

// NewTranslationJob creates a queued job for the given segments
func NewTranslationJob(videoID, source, target string, segments []SubtitleSegment) *TranslationJob {
	return &TranslationJob{
		ID:                       uuid.New(),
		VideoID:                  videoID,
		SourceLanguage:           source,
		TargetLanguage:           target,
		Status:                   JobStatusQueued,
		Message:                  "Waiting to be processed",
		Segments:                 segments,
		LastTranslatedGroupIndex: NoCheckpoint,
		CreatedAt:                time.Now(),
	}
}

// HasCheckpoint reports whether the job holds resumable partial progress
func (j *TranslationJob) HasCheckpoint() bool {
	return j.LastTranslatedGroupIndex > NoCheckpoint && len(j.PartialSegments) > 0
}

// IsResumable reports whether the job was paused and can be re-entered
func (j *TranslationJob) IsResumable() bool {
	return j.Status == JobStatusProcessing || j.Status == JobStatusQueued
}

// ClearCheckpoint resets the checkpoint fields after a full success
func (j *TranslationJob) ClearCheckpoint() {
	j.LastTranslatedGroupIndex = NoCheckpoint
	j.PartialSegments = nil
	j.BlockedModels = nil
}

// JobUpdate carries a partial mutation of a job. Nil fields are left untouched.
type JobUpdate struct {
	Status                   JobStatus
	Progress                 *int
	Message                  *string
	Error                    *string
	Service                  *string
	LastTranslatedGroupIndex *int
	PartialSegments          []TranslationSegment
	BlockedModels            []string
	ClearCheckpoint          bool
}

// Apply copies the set fields of the update onto the job
func (u JobUpdate) Apply(j *TranslationJob) {
	if u.Status != "" {
		j.Status = u.Status
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.Error != nil {
		j.Error = u.Error
	}
	if u.Service != nil {
		j.Service = *u.Service
	}
	if u.LastTranslatedGroupIndex != nil {
		j.LastTranslatedGroupIndex = *u.LastTranslatedGroupIndex
	}
	if u.PartialSegments != nil {
		j.PartialSegments = u.PartialSegments
	}
	if u.BlockedModels != nil {
		j.BlockedModels = u.BlockedModels
	}
	if u.ClearCheckpoint {
		j.ClearCheckpoint()
	}
	now := time.Now()
	j.UpdatedAt = &now
}
