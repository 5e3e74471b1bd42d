package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"go.uber.org/zap"
)

const chatSessionColumns = `id, owner, language, native_language, proficiency, style, service, model,
	is_active, message_count, created_at, updated_at`

// ChatRepository implements the repositories.ChatRepository interface
type ChatRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB, logger *zap.Logger) repositories.ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

// CreateSession inserts a new tutoring session
func (r *ChatRepository) CreateSession(ctx context.Context, s *models.ChatSession) error {
	query := `INSERT INTO chat_sessions (` + chatSessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		s.ID,
		s.Owner,
		s.Language,
		s.NativeLanguage,
		s.Proficiency,
		s.Style,
		s.Service,
		s.Model,
		s.IsActive,
		s.MessageCount,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}

	r.logger.Debug("chat session created", zap.String("session_id", s.ID.String()))
	return nil
}

// GetSession retrieves a session that belongs to owner
func (r *ChatRepository) GetSession(ctx context.Context, id uuid.UUID, owner string) (*models.ChatSession, error) {
	query := `SELECT ` + chatSessionColumns + ` FROM chat_sessions WHERE id = $1 AND owner = $2`

	executor := GetExecutor(ctx, r.db)
	s, err := scanChatSession(executor.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat session %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return s, nil
}

// ListSessions returns an owner's sessions, newest first
func (r *ChatRepository) ListSessions(ctx context.Context, owner string, limit int) ([]*models.ChatSession, error) {
	query := `SELECT ` + chatSessionColumns + ` FROM chat_sessions WHERE owner = $1 ORDER BY created_at DESC LIMIT $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		s, err := scanChatSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession writes the mutable fields of a session
func (r *ChatRepository) UpdateSession(ctx context.Context, s *models.ChatSession) error {
	query := `
		UPDATE chat_sessions
		SET service = $2, model = $3, is_active = $4, message_count = $5, updated_at = $6
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, s.ID, s.Service, s.Model, s.IsActive, s.MessageCount, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update chat session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chat session %s: %w", s.ID, repositories.ErrNotFound)
	}
	return nil
}

// AddMessage appends a message to its session
func (r *ChatRepository) AddMessage(ctx context.Context, m *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, session_id, role, content, feedback_type, service, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		m.ID,
		m.SessionID,
		m.Role,
		m.Content,
		m.FeedbackType,
		m.Service,
		m.Model,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add chat message: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a session, oldest first
func (r *ChatRepository) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, feedback_type, service, model, created_at
		FROM (
			SELECT id, session_id, role, content, feedback_type, service, model, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.FeedbackType, &m.Service, &m.Model, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}
	return messages, nil
}

func scanChatSession(row rowScanner) (*models.ChatSession, error) {
	s := &models.ChatSession{}
	err := row.Scan(
		&s.ID,
		&s.Owner,
		&s.Language,
		&s.NativeLanguage,
		&s.Proficiency,
		&s.Style,
		&s.Service,
		&s.Model,
		&s.IsActive,
		&s.MessageCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
