package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/middleware"
	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services/tutor"
	"github.com/upb/lingotube/backend/utils"
)

// TutorService defines the tutor chat operations used by the API
type TutorService interface {
	Reply(ctx context.Context, req tutor.ReplyRequest) (*tutor.Reply, error)
	CreateSession(ctx context.Context, owner string, req tutor.CreateSessionRequest) (*models.ChatSession, error)
	ListSessions(ctx context.Context, owner string) ([]*models.ChatSession, error)
	GetSession(ctx context.Context, owner string, id uuid.UUID) (*models.ChatTranscript, error)
	SendMessage(ctx context.Context, owner string, id uuid.UUID, req tutor.SendMessageRequest) (*models.ChatMessage, error)
	CloseSession(ctx context.Context, owner string, id uuid.UUID) error
	ChangeModel(ctx context.Context, owner string, id uuid.UUID, req tutor.ChangeModelRequest) (*models.ChatSession, error)
}

// ChatHandler handles tutor chat HTTP requests
type ChatHandler struct {
	service TutorService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service TutorService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req tutor.ReplyRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}
	req.APIKeys = providerKeys(r, req.APIKeys)

	reply, err := h.service.Reply(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, reply)
}

// HandleCreateSession handles POST /api/v1/chat/sessions
func (h *ChatHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req tutor.CreateSessionRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}
	req.APIKeys = providerKeys(r, req.APIKeys)

	chat, err := h.service.CreateSession(r.Context(), chatOwner(r), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, chat)
}

// HandleListSessions handles GET /api/v1/chat/sessions
func (h *ChatHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSessions(r.Context(), chatOwner(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleGetSession handles GET /api/v1/chat/sessions/{id}
func (h *ChatHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	transcript, err := h.service.GetSession(r.Context(), chatOwner(r), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, transcript)
}

// HandleSendMessage handles POST /api/v1/chat/sessions/{id}/messages
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req tutor.SendMessageRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}
	req.APIKeys = providerKeys(r, req.APIKeys)

	msg, err := h.service.SendMessage(r.Context(), chatOwner(r), id, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, msg)
}

// HandleCloseSession handles DELETE /api/v1/chat/sessions/{id}
func (h *ChatHandler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.CloseSession(r.Context(), chatOwner(r), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{
		Data:    map[string]string{"id": id.String()},
		Message: "Chat session closed",
	})
}

// HandleChangeModel handles PATCH /api/v1/chat/sessions/{id}/model
func (h *ChatHandler) HandleChangeModel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req tutor.ChangeModelRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}
	req.APIKeys = providerKeys(r, req.APIKeys)

	chat, err := h.service.ChangeModel(r.Context(), chatOwner(r), id, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, chat)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return uuid.Nil, false
	}
	return id, true
}

// chatOwner is the token subject, or empty when authentication is disabled
func chatOwner(r *http.Request) string {
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
