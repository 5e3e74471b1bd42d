package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"go.uber.org/zap"
)

// TranslationRepository implements the repositories.TranslationRepository interface
type TranslationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTranslationRepository creates a new translation repository
func NewTranslationRepository(db *DB, logger *zap.Logger) repositories.TranslationRepository {
	return &TranslationRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a translation, replacing the segments of an existing one for the same pair
func (r *TranslationRepository) Upsert(ctx context.Context, t *models.Translation) error {
	segments, err := encodeJSON(t.Segments)
	if err != nil {
		return err
	}
	if segments == nil {
		segments = "[]"
	}

	query := `
		INSERT INTO translations (id, video_id, source_language, target_language, segments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (video_id, source_language, target_language)
		DO UPDATE SET segments = EXCLUDED.segments, created_at = EXCLUDED.created_at
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query,
		t.ID,
		t.VideoID,
		t.SourceLanguage,
		t.TargetLanguage,
		segments,
		t.CreatedAt,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to upsert translation: %w", err)
	}

	r.logger.Debug("translation saved",
		zap.String("video_id", t.VideoID),
		zap.String("target_language", t.TargetLanguage),
		zap.Int("segments", len(t.Segments)))
	return nil
}

// Get retrieves a translation by video and language pair
func (r *TranslationRepository) Get(ctx context.Context, videoID, sourceLanguage, targetLanguage string) (*models.Translation, error) {
	query := `
		SELECT id, video_id, source_language, target_language, segments, created_at
		FROM translations
		WHERE video_id = $1 AND source_language = $2 AND target_language = $3
	`

	executor := GetExecutor(ctx, r.db)
	t := &models.Translation{}
	var segments []byte

	err := executor.QueryRowContext(ctx, query, videoID, sourceLanguage, targetLanguage).Scan(
		&t.ID,
		&t.VideoID,
		&t.SourceLanguage,
		&t.TargetLanguage,
		&segments,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("translation %s %s->%s: %w", videoID, sourceLanguage, targetLanguage, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get translation: %w", err)
	}

	if err := decodeJSON(segments, &t.Segments); err != nil {
		return nil, err
	}
	return t, nil
}
