package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/lingotube/backend/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// JobRepository stores translation jobs and their checkpoints
type JobRepository interface {
	// Create inserts a new job
	Create(ctx context.Context, job *models.TranslationJob) error

	// GetByID retrieves a job, including source segments and checkpoint
	GetByID(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error)

	// Update writes status, progress, message, error and checkpoint fields
	Update(ctx context.Context, job *models.TranslationJob) error

	// ListByStatus returns jobs in the given status, oldest first
	ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.TranslationJob, error)
}

// TranslationRepository stores completed translations
type TranslationRepository interface {
	// Upsert inserts or replaces the translation for its video and language pair
	Upsert(ctx context.Context, t *models.Translation) error

	// Get retrieves the translation of a video for a language pair
	Get(ctx context.Context, videoID, sourceLanguage, targetLanguage string) (*models.Translation, error)
}

// TokenUsageRepository stores token usage records
type TokenUsageRepository interface {
	// Insert records one usage entry
	Insert(ctx context.Context, usage *models.TokenUsage) error

	// Totals aggregates usage matching the filter
	Totals(ctx context.Context, filter models.UsageFilter) (*models.UsageTotals, error)

	// TotalsByModel aggregates usage per service and model, largest first
	TotalsByModel(ctx context.Context, filter models.UsageFilter) ([]models.UsageTotals, error)
}

// TrackerSnapshotRepository stores the persisted part of availability trackers
type TrackerSnapshotRepository interface {
	// Get returns the snapshot of a credential and provider, or ErrNotFound
	Get(ctx context.Context, credentialID, provider string) (*models.TrackerSnapshot, error)

	// Save inserts or replaces a snapshot
	Save(ctx context.Context, snapshot *models.TrackerSnapshot) error
}

// ChatRepository stores tutoring sessions and their messages
type ChatRepository interface {
	// CreateSession inserts a new session
	CreateSession(ctx context.Context, session *models.ChatSession) error

	// GetSession retrieves a session of an owner, or ErrNotFound
	GetSession(ctx context.Context, id uuid.UUID, owner string) (*models.ChatSession, error)

	// ListSessions returns an owner's sessions, newest first
	ListSessions(ctx context.Context, owner string, limit int) ([]*models.ChatSession, error)

	// UpdateSession writes the model, active flag, message count and update time
	UpdateSession(ctx context.Context, session *models.ChatSession) error

	// AddMessage appends a message to its session
	AddMessage(ctx context.Context, message *models.ChatMessage) error

	// RecentMessages returns the last limit messages of a session, oldest first
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Jobs             JobRepository
	Translations     TranslationRepository
	TokenUsage       TokenUsageRepository
	TrackerSnapshots TrackerSnapshotRepository
	Chats            ChatRepository
}
