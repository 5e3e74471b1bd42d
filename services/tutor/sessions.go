package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/routing"
	"github.com/upb/lingotube/backend/services/session"
)

// ListLimit caps how many chat sessions are listed
const ListLimit = 50

// CreateSessionRequest opens a persisted chat session
type CreateSessionRequest struct {
	Language         string            `json:"language" validate:"required,lang"`
	NativeLanguage   string            `json:"native_language" validate:"omitempty,lang"`
	Proficiency      string            `json:"proficiency" validate:"omitempty,oneof=beginner intermediate advanced"`
	Style            string            `json:"mode" validate:"omitempty,oneof=conversation writing"`
	PreferredService string            `json:"preferred_service,omitempty" validate:"omitempty,provider"`
	PreferredModel   string            `json:"preferred_model,omitempty" validate:"omitempty,max=200"`
	APIKeys          map[string]string `json:"api_keys,omitempty"`
}

// SendMessageRequest is one learner turn in a persisted session
type SendMessageRequest struct {
	Content string            `json:"content" validate:"required,max=4000"`
	APIKeys map[string]string `json:"api_keys,omitempty"`
}

// ChangeModelRequest moves a session to another service and model
type ChangeModelRequest struct {
	Service string            `json:"model_service" validate:"required,provider"`
	Model   string            `json:"model_name" validate:"required,max=200"`
	APIKeys map[string]string `json:"api_keys,omitempty"`
}

// CreateSession opens a chat session owned by owner. Without a preferred
// service the first provider of the conversation route is used.
func (s *Service) CreateSession(ctx context.Context, owner string, req CreateSessionRequest) (*models.ChatSession, error) {
	sess, err := s.sessions.Get(ctx, req.APIKeys)
	if err != nil {
		return nil, err
	}

	service := req.PreferredService
	model := ""
	if service != "" {
		if err := checkService(sess, service); err != nil {
			return nil, err
		}
		if req.PreferredModel != "" {
			if err := checkModel(sess, service, req.PreferredModel); err != nil {
				return nil, err
			}
			model = req.PreferredModel
		}
	} else {
		route := sess.Router.Route(routing.ModeConversation, "")
		if len(route) == 0 {
			return nil, services.ErrNoProviders
		}
		service = route[0]
	}

	chat := models.NewChatSession(owner, req.Language, models.ChatStyle(req.Style))
	chat.NativeLanguage = req.NativeLanguage
	chat.Proficiency = req.Proficiency
	chat.Service = service
	chat.Model = model

	if err := s.chats.CreateSession(ctx, chat); err != nil {
		return nil, services.WrapInternal("failed to create chat session", err)
	}

	s.logger.Info("chat session created",
		zap.String("chat_id", chat.ID.String()),
		zap.String("service", service),
		zap.String("style", string(chat.Style)))
	return chat, nil
}

// ListSessions returns the owner's sessions, newest first
func (s *Service) ListSessions(ctx context.Context, owner string) ([]*models.ChatSession, error) {
	list, err := s.chats.ListSessions(ctx, owner, ListLimit)
	if err != nil {
		return nil, services.WrapInternal("failed to list chat sessions", err)
	}
	if list == nil {
		list = []*models.ChatSession{}
	}
	return list, nil
}

// GetSession returns a session with its most recent messages
func (s *Service) GetSession(ctx context.Context, owner string, id uuid.UUID) (*models.ChatTranscript, error) {
	chat, err := s.loadSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.RecentMessages(ctx, id, ListLimit)
	if err != nil {
		return nil, services.WrapInternal("failed to load chat messages", err)
	}
	return &models.ChatTranscript{ChatSession: chat, Messages: messages}, nil
}

// SendMessage answers a learner turn with the session's service and model.
// Both turns are stored only when the tutor answered.
func (s *Service) SendMessage(ctx context.Context, owner string, id uuid.UUID, req SendMessageRequest) (*models.ChatMessage, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, services.ErrEmptyPrompt
	}

	chat, err := s.loadSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !chat.IsActive {
		return nil, services.ErrChatClosed
	}

	recent, err := s.chats.RecentMessages(ctx, id, MaxHistory)
	if err != nil {
		return nil, services.WrapInternal("failed to load chat messages", err)
	}
	history := make([]providers.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, providers.Message{Role: m.Role, Content: m.Content})
	}

	sess, err := s.sessions.Get(ctx, req.APIKeys)
	if err != nil {
		return nil, err
	}

	gen, err := sess.Router.Generate(ctx, &routing.Request{
		Mode:              routing.ModeConversation,
		PreferredProvider: chat.Service,
		Model:             chat.Model,
		System: SystemPrompt(ReplyRequest{
			Language:       chat.Language,
			NativeLanguage: chat.NativeLanguage,
			Proficiency:    chat.Proficiency,
			Style:          string(chat.Style),
		}),
		History:     history,
		Prompt:      content,
		MaxTokens:   1000,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, services.WrapProvider("tutor reply failed", err)
	}

	user := models.NewChatMessage(id, models.ChatRoleUser, content)
	reply := models.NewChatMessage(id, models.ChatRoleAssistant, strings.TrimSpace(gen.Text))
	reply.FeedbackType = DetectFeedback(gen.Text)
	reply.Service = gen.Provider
	reply.Model = gen.Model

	err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		if err := s.chats.AddMessage(ctx, user); err != nil {
			return err
		}
		if err := s.chats.AddMessage(ctx, reply); err != nil {
			return err
		}
		chat.MessageCount += 2
		chat.Touch()
		return s.chats.UpdateSession(ctx, chat)
	})
	if err != nil {
		return nil, services.WrapInternal("failed to store chat messages", err)
	}

	s.logger.Debug("chat message answered",
		zap.String("chat_id", id.String()),
		zap.String("provider", gen.Provider),
		zap.String("model", gen.Model),
		zap.Int("history", len(history)))
	return reply, nil
}

// CloseSession marks a session inactive. Closing a closed session is a no-op.
func (s *Service) CloseSession(ctx context.Context, owner string, id uuid.UUID) error {
	chat, err := s.loadSession(ctx, owner, id)
	if err != nil {
		return err
	}
	if !chat.IsActive {
		return nil
	}

	chat.IsActive = false
	chat.Touch()
	if err := s.chats.UpdateSession(ctx, chat); err != nil {
		return services.WrapInternal("failed to close chat session", err)
	}
	s.logger.Info("chat session closed", zap.String("chat_id", id.String()))
	return nil
}

// ChangeModel moves an active session to another service and model
func (s *Service) ChangeModel(ctx context.Context, owner string, id uuid.UUID, req ChangeModelRequest) (*models.ChatSession, error) {
	chat, err := s.loadSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !chat.IsActive {
		return nil, services.ErrChatClosed
	}

	sess, err := s.sessions.Get(ctx, req.APIKeys)
	if err != nil {
		return nil, err
	}
	if err := checkService(sess, req.Service); err != nil {
		return nil, err
	}
	if err := checkModel(sess, req.Service, req.Model); err != nil {
		return nil, err
	}

	chat.Service = req.Service
	chat.Model = req.Model
	chat.Touch()
	if err := s.chats.UpdateSession(ctx, chat); err != nil {
		return nil, services.WrapInternal("failed to update chat session", err)
	}

	s.logger.Info("chat model changed",
		zap.String("chat_id", id.String()),
		zap.String("service", req.Service),
		zap.String("model", req.Model))
	return chat, nil
}

func (s *Service) loadSession(ctx context.Context, owner string, id uuid.UUID) (*models.ChatSession, error) {
	chat, err := s.chats.GetSession(ctx, id, owner)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrChatSessionNotFound
		}
		return nil, services.WrapInternal("failed to get chat session", err)
	}
	return chat, nil
}

func checkService(sess *session.Session, service string) error {
	if !sess.Registry.Available()[service] {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("service %s is not available", service), nil)
	}
	return nil
}

// checkModel only knows the catalog of the tracked provider; other
// providers accept any model name and fail at generation time.
func checkModel(sess *session.Session, service, model string) error {
	if _, tracked := sess.Router.Caller(service); !tracked {
		return nil
	}
	if !sess.Tracker.Catalog().Contains(model) || sess.Tracker.IsBlocked(model) {
		return services.ErrModelBlocked
	}
	return nil
}
