package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"go.uber.org/zap"
)

// TrackerSnapshotRepository implements the repositories.TrackerSnapshotRepository interface
type TrackerSnapshotRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTrackerSnapshotRepository creates a new tracker snapshot repository
func NewTrackerSnapshotRepository(db *DB, logger *zap.Logger) repositories.TrackerSnapshotRepository {
	return &TrackerSnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the snapshot of a credential and provider
func (r *TrackerSnapshotRepository) Get(ctx context.Context, credentialID, provider string) (*models.TrackerSnapshot, error) {
	query := `
		SELECT credential_id, provider, blocked, error_count, updated_at
		FROM tracker_snapshots
		WHERE credential_id = $1 AND provider = $2
	`

	executor := GetExecutor(ctx, r.db)
	s := &models.TrackerSnapshot{}
	var blocked pq.StringArray
	var counts []byte

	err := executor.QueryRowContext(ctx, query, credentialID, provider).Scan(
		&s.CredentialID,
		&s.Provider,
		&blocked,
		&counts,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tracker snapshot %s: %w", provider, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tracker snapshot: %w", err)
	}

	s.Blocked = []string(blocked)
	if err := decodeJSON(counts, &s.ErrorCount); err != nil {
		return nil, err
	}
	return s, nil
}

// Save inserts or replaces a snapshot
func (r *TrackerSnapshotRepository) Save(ctx context.Context, s *models.TrackerSnapshot) error {
	counts, err := encodeJSON(s.ErrorCount)
	if err != nil {
		return err
	}
	if counts == nil {
		counts = "{}"
	}
	blocked := s.Blocked
	if blocked == nil {
		blocked = []string{}
	}

	query := `
		INSERT INTO tracker_snapshots (credential_id, provider, blocked, error_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (credential_id, provider)
		DO UPDATE SET blocked = EXCLUDED.blocked, error_count = EXCLUDED.error_count, updated_at = EXCLUDED.updated_at
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, s.CredentialID, s.Provider, pq.Array(blocked), counts, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save tracker snapshot: %w", err)
	}

	r.logger.Debug("tracker snapshot saved",
		zap.String("provider", s.Provider),
		zap.Int("blocked", len(s.Blocked)))
	return nil
}
