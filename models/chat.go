package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatStyle selects how the tutor behaves in a session
type ChatStyle string

const (
	ChatStyleConversation ChatStyle = "conversation"
	ChatStyleWriting      ChatStyle = "writing"
)

// Chat message roles
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatSession is a persisted tutoring conversation. Owner is the token subject
// of whoever created it, empty when the API runs without authentication.
type ChatSession struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Owner          string     `json:"-" db:"owner"`
	Language       string     `json:"language" db:"language"`
	NativeLanguage string     `json:"native_language" db:"native_language"`
	Proficiency    string     `json:"proficiency" db:"proficiency"`
	Style          ChatStyle  `json:"mode" db:"style"`
	Service        string     `json:"model_service" db:"service"`
	Model          string     `json:"model_name,omitempty" db:"model"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	MessageCount   int        `json:"message_count" db:"message_count"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the ChatSession model
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// NewChatSession creates an active session with no messages
func NewChatSession(owner, language string, style ChatStyle) *ChatSession {
	if style == "" {
		style = ChatStyleConversation
	}
	return &ChatSession{
		ID:        uuid.New(),
		Owner:     owner,
		Language:  language,
		Style:     style,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

// Touch sets UpdatedAt to now
func (s *ChatSession) Touch() {
	now := time.Now()
	s.UpdatedAt = &now
}

// ChatMessage is one turn of a tutoring conversation
type ChatMessage struct {
	ID           uuid.UUID `json:"id" db:"id"`
	SessionID    uuid.UUID `json:"session_id" db:"session_id"`
	Role         string    `json:"role" db:"role"`
	Content      string    `json:"content" db:"content"`
	FeedbackType string    `json:"feedback_type,omitempty" db:"feedback_type"`
	Service      string    `json:"service,omitempty" db:"service"`
	Model        string    `json:"model,omitempty" db:"model"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ChatMessage model
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// NewChatMessage creates a message of a session
func NewChatMessage(sessionID uuid.UUID, role, content string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// ChatTranscript is a session with its messages, oldest first
type ChatTranscript struct {
	*ChatSession
	Messages []ChatMessage `json:"messages"`
}
