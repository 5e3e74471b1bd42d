package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/lingotube/backend/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()
	
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// WrapDB wraps an already opened pool
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema creates the tables used by the repositories
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// Schema is the DDL applied by InitSchema
const Schema = `
	-- Translation jobs with their source segments and checkpoint
	CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		video_id VARCHAR(64) NOT NULL,
		source_language VARCHAR(16) NOT NULL,
		target_language VARCHAR(16) NOT NULL,
		status VARCHAR(20) NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		error TEXT,
		translation_service VARCHAR(50) NOT NULL DEFAULT '',
		max_gap DOUBLE PRECISION NOT NULL DEFAULT 0,
		credential_id VARCHAR(64) NOT NULL DEFAULT '',
		segments JSONB NOT NULL,
		last_translated_group_index INTEGER NOT NULL DEFAULT -1,
		partial_segments JSONB,
		blocked_models TEXT[],
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP
	);

	-- Completed translations, one per video and language pair
	CREATE TABLE IF NOT EXISTS translations (
		id UUID PRIMARY KEY,
		video_id VARCHAR(64) NOT NULL,
		source_language VARCHAR(16) NOT NULL,
		target_language VARCHAR(16) NOT NULL,
		segments JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(video_id, source_language, target_language)
	);

	-- Token usage per provider request
	CREATE TABLE IF NOT EXISTS token_usage (
		id UUID PRIMARY KEY,
		service VARCHAR(50) NOT NULL,
		model VARCHAR(100) NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		requests INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Persisted tracker state per credential and provider
	CREATE TABLE IF NOT EXISTS tracker_snapshots (
		credential_id VARCHAR(64) NOT NULL,
		provider VARCHAR(50) NOT NULL,
		blocked TEXT[] NOT NULL DEFAULT '{}',
		error_count JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (credential_id, provider)
	);

	-- Tutoring sessions and their messages
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id UUID PRIMARY KEY,
		owner VARCHAR(255) NOT NULL DEFAULT '',
		language VARCHAR(16) NOT NULL,
		native_language VARCHAR(16) NOT NULL DEFAULT '',
		proficiency VARCHAR(20) NOT NULL DEFAULT '',
		style VARCHAR(20) NOT NULL,
		service VARCHAR(50) NOT NULL,
		model VARCHAR(100) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL,
		content TEXT NOT NULL,
		feedback_type VARCHAR(20) NOT NULL DEFAULT '',
		service VARCHAR(50) NOT NULL DEFAULT '',
		model VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON jobs(video_id);
	CREATE INDEX IF NOT EXISTS idx_token_usage_created_at ON token_usage(created_at);
	CREATE INDEX IF NOT EXISTS idx_token_usage_service_model ON token_usage(service, model);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_owner ON chat_sessions(owner, created_at);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
`
