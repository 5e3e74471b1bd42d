// Package tutor answers learner chat messages as a language teacher.
package tutor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/routing"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/services/translation"
)

// MaxHistory is how many earlier turns are sent with each message
const MaxHistory = 10

// Feedback types detected in tutor replies
const (
	FeedbackCorrection    = "correction"
	FeedbackExplanation   = "explanation"
	FeedbackEncouragement = "encouragement"
)

var feedbackKeywords = []struct {
	kind     string
	keywords []string
}{
	{FeedbackCorrection, []string{"correct", "correction", "mistake", "should be", "correto", "correção", "erro", "deveria ser"}},
	{FeedbackExplanation, []string{"because", "explanation", "the reason", "explicação", "porque", "razão", "motivo"}},
	{FeedbackEncouragement, []string{"well done", "great job", "excellent", "parabéns", "bom trabalho", "excelente", "ótimo"}},
}

// Sessions resolves the routing session of a credential set
type Sessions interface {
	Get(ctx context.Context, overrides session.Credentials) (*session.Session, error)
}

// ReplyRequest is one learner turn. The caller keeps the conversation history.
type ReplyRequest struct {
	Language         string              `json:"language" validate:"required,lang"`
	NativeLanguage   string              `json:"native_language" validate:"omitempty,lang"`
	Proficiency      string              `json:"proficiency" validate:"omitempty,oneof=beginner intermediate advanced"`
	Style            string              `json:"style" validate:"omitempty,oneof=conversation writing"`
	History          []providers.Message `json:"history" validate:"omitempty,max=200,dive"`
	Message          string              `json:"message" validate:"required,max=4000"`
	PreferredService string              `json:"preferred_service,omitempty" validate:"omitempty,provider"`
	APIKeys          map[string]string   `json:"api_keys,omitempty"`
}

// Reply is the tutor's answer
type Reply struct {
	Content      string `json:"content"`
	FeedbackType string `json:"feedback_type,omitempty"`
	Model        string `json:"model_used"`
	Service      string `json:"service_used"`
}

// Service routes tutor conversations in conversation mode. Reply is stateless;
// the chat session methods persist conversations through chats.
type Service struct {
	sessions Sessions
	chats    repositories.ChatRepository
	txMgr    repositories.TransactionManager
	logger   *zap.Logger
}

// NewService creates a tutor service
func NewService(sessions Sessions, chats repositories.ChatRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{sessions: sessions, chats: chats, txMgr: txMgr, logger: logger}
}

// Reply answers the learner's message
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, services.ErrEmptyPrompt
	}

	sess, err := s.sessions.Get(ctx, req.APIKeys)
	if err != nil {
		return nil, err
	}

	history := req.History
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	gen, err := sess.Router.Generate(ctx, &routing.Request{
		Mode:              routing.ModeConversation,
		PreferredProvider: req.PreferredService,
		System:            SystemPrompt(req),
		History:           history,
		Prompt:            req.Message,
		MaxTokens:         1000,
		Temperature:       0.7,
	})
	if err != nil {
		return nil, services.WrapProvider("tutor reply failed", err)
	}

	s.logger.Debug("tutor replied",
		zap.String("provider", gen.Provider),
		zap.String("model", gen.Model),
		zap.Int("history", len(history)))

	return &Reply{
		Content:      strings.TrimSpace(gen.Text),
		FeedbackType: DetectFeedback(gen.Text),
		Model:        gen.Model,
		Service:      gen.Provider,
	}, nil
}

// SystemPrompt describes the teacher persona for the learner's languages and level
func SystemPrompt(req ReplyRequest) string {
	learning := translation.LanguageName(req.Language)
	native := "Portuguese"
	if req.NativeLanguage != "" {
		native = translation.LanguageName(req.NativeLanguage)
	}
	level := req.Proficiency
	if level == "" {
		level = "beginner"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an experienced and patient %s teacher. Your student's level is %s and their native language is %s.\n\n", learning, level, native)

	if req.Style == "writing" {
		sb.WriteString("MODE: WRITING\n")
		sb.WriteString("- Review the student's writing\n")
		sb.WriteString("- Correct grammar mistakes clearly and explain the corrections when needed\n")
		sb.WriteString("- Suggest more suitable vocabulary\n")
		fmt.Fprintf(&sb, "- Use %s for explanations when necessary\n", native)
		sb.WriteString("- Be encouraging and positive\n")
		return sb.String()
	}

	sb.WriteString("MODE: CONVERSATION\n")
	fmt.Fprintf(&sb, "- Talk naturally in %s\n", learning)
	fmt.Fprintf(&sb, "- Match the vocabulary to the %s level\n", level)
	sb.WriteString("- Ask interesting questions to keep the conversation going\n")
	sb.WriteString("- Correct mistakes subtly and naturally\n")
	fmt.Fprintf(&sb, "- Use %s only when an explanation needs it\n", native)
	return sb.String()
}

// DetectFeedback classifies a reply as a correction, explanation or encouragement
func DetectFeedback(reply string) string {
	lower := strings.ToLower(reply)
	for _, fk := range feedbackKeywords {
		for _, k := range fk.keywords {
			if strings.Contains(lower, k) {
				return fk.kind
			}
		}
	}
	return ""
}
