package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"go.uber.org/zap"
)

const jobColumns = `id, video_id, source_language, target_language, status, progress, message, error,
	translation_service, max_gap, credential_id, segments, last_translated_group_index,
	partial_segments, blocked_models, created_at, updated_at`

// JobRepository implements the repositories.JobRepository interface
type JobRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB, logger *zap.Logger) repositories.JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new job
func (r *JobRepository) Create(ctx context.Context, job *models.TranslationJob) error {
	segments, err := encodeJSON(job.Segments)
	if err != nil {
		return err
	}
	if segments == nil {
		segments = "[]"
	}
	partial, err := encodeJSON(job.PartialSegments)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		job.ID,
		job.VideoID,
		job.SourceLanguage,
		job.TargetLanguage,
		job.Status,
		job.Progress,
		job.Message,
		job.Error,
		job.Service,
		job.MaxGap,
		job.CredentialID,
		segments,
		job.LastTranslatedGroupIndex,
		partial,
		pq.Array(job.BlockedModels),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	r.logger.Debug("job created", zap.String("job_id", job.ID.String()), zap.Int("segments", len(job.Segments)))
	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	job, err := scanJob(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Update writes the mutable fields of a job
func (r *JobRepository) Update(ctx context.Context, job *models.TranslationJob) error {
	partial, err := encodeJSON(job.PartialSegments)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $2, progress = $3, message = $4, error = $5, translation_service = $6,
		    last_translated_group_index = $7, partial_segments = $8, blocked_models = $9,
		    updated_at = $10
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.Progress,
		job.Message,
		job.Error,
		job.Service,
		job.LastTranslatedGroupIndex,
		partial,
		pq.Array(job.BlockedModels),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s: %w", job.ID, repositories.ErrNotFound)
	}
	return nil
}

// ListByStatus returns jobs in a status, oldest first
func (r *JobRepository) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.TranslationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.TranslationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.TranslationJob, error) {
	job := &models.TranslationJob{}
	var segments, partial []byte
	var blocked pq.StringArray

	err := row.Scan(
		&job.ID,
		&job.VideoID,
		&job.SourceLanguage,
		&job.TargetLanguage,
		&job.Status,
		&job.Progress,
		&job.Message,
		&job.Error,
		&job.Service,
		&job.MaxGap,
		&job.CredentialID,
		&segments,
		&job.LastTranslatedGroupIndex,
		&partial,
		&blocked,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(segments, &job.Segments); err != nil {
		return nil, err
	}
	if err := decodeJSON(partial, &job.PartialSegments); err != nil {
		return nil, err
	}
	if len(blocked) > 0 {
		job.BlockedModels = []string(blocked)
	}
	return job, nil
}
