package models

import (
	"time"

	"github.com/google/uuid"
)

// Translation is a completed subtitle translation for a video and language pair
type Translation struct {
	ID             uuid.UUID            `json:"id" db:"id"`
	VideoID        string               `json:"video_id" db:"video_id"`
	SourceLanguage string               `json:"source_language" db:"source_language"`
	TargetLanguage string               `json:"target_language" db:"target_language"`
	Segments       []TranslationSegment `json:"segments" db:"segments"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Translation model
func (Translation) TableName() string {
	return "translations"
}

// NewTranslation creates a new Translation instance
func NewTranslation(videoID, source, target string, segments []TranslationSegment) *Translation {
	return &Translation{
		ID:             uuid.New(),
		VideoID:        videoID,
		SourceLanguage: source,
		TargetLanguage: target,
		Segments:       segments,
		CreatedAt:      time.Now(),
	}
}
