package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/middleware"
	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/tutor"
)

// MockTutorService is a mock implementation of TutorService
type MockTutorService struct {
	mock.Mock
}

func (m *MockTutorService) Reply(ctx context.Context, req tutor.ReplyRequest) (*tutor.Reply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tutor.Reply), args.Error(1)
}

func (m *MockTutorService) CreateSession(ctx context.Context, owner string, req tutor.CreateSessionRequest) (*models.ChatSession, error) {
	args := m.Called(ctx, owner, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockTutorService) ListSessions(ctx context.Context, owner string) ([]*models.ChatSession, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ChatSession), args.Error(1)
}

func (m *MockTutorService) GetSession(ctx context.Context, owner string, id uuid.UUID) (*models.ChatTranscript, error) {
	args := m.Called(ctx, owner, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatTranscript), args.Error(1)
}

func (m *MockTutorService) SendMessage(ctx context.Context, owner string, id uuid.UUID, req tutor.SendMessageRequest) (*models.ChatMessage, error) {
	args := m.Called(ctx, owner, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockTutorService) CloseSession(ctx context.Context, owner string, id uuid.UUID) error {
	args := m.Called(ctx, owner, id)
	return args.Error(0)
}

func (m *MockTutorService) ChangeModel(ctx context.Context, owner string, id uuid.UUID, req tutor.ChangeModelRequest) (*models.ChatSession, error) {
	args := m.Called(ctx, owner, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func TestChatHandler_HandleChat(t *testing.T) {
	logger := zap.NewNop()

	t.Run("reply", func(t *testing.T) {
		svc := new(MockTutorService)
		svc.On("Reply", mock.Anything, mock.MatchedBy(func(req tutor.ReplyRequest) bool {
			return req.Language == "pt" && len(req.History) == 1 && req.APIKeys["gemini"] == "hdr"
		})).Return(&tutor.Reply{Content: "Muito bem!", FeedbackType: "praise", Model: "gemini-1.5-flash", Service: "gemini"}, nil)

		body := `{"language":"pt","native_language":"en","proficiency":"beginner",
			"history":[{"role":"assistant","content":"Olá!"}],"message":"Eu estou bem"}`
		req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
		req.Header.Set(ProviderKeysHeader, "gemini=hdr")
		w := httptest.NewRecorder()
		NewChatHandler(svc, logger).HandleChat(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"feedback_type":"praise"`)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"language":"pt"}`},
		{"missing language", `{"message":"oi"}`},
		{"bad history role", `{"language":"pt","message":"oi","history":[{"role":"narrator","content":"x"}]}`},
		{"bad proficiency", `{"language":"pt","message":"oi","proficiency":"native"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTutorService)
			w := httptest.NewRecorder()
			NewChatHandler(svc, logger).HandleChat(w, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything)
		})
	}

	t.Run("provider failure", func(t *testing.T) {
		svc := new(MockTutorService)
		svc.On("Reply", mock.Anything, mock.Anything).
			Return(nil, services.WrapExternal("tutor reply failed", errors.New("503 from openrouter")))

		w := httptest.NewRecorder()
		NewChatHandler(svc, logger).HandleChat(w, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"language":"pt","message":"oi"}`)))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func chatRouter(h *ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/chat/sessions", h.HandleCreateSession)
	r.Get("/chat/sessions", h.HandleListSessions)
	r.Get("/chat/sessions/{id}", h.HandleGetSession)
	r.Post("/chat/sessions/{id}/messages", h.HandleSendMessage)
	r.Delete("/chat/sessions/{id}", h.HandleCloseSession)
	r.Patch("/chat/sessions/{id}/model", h.HandleChangeModel)
	return r
}

func withSubject(req *http.Request, subject string) *http.Request {
	claims := &middleware.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func TestChatHandler_Sessions(t *testing.T) {
	logger := zap.NewNop()
	id := uuid.New()

	t.Run("create uses token subject", func(t *testing.T) {
		svc := new(MockTutorService)
		chat := models.NewChatSession("user-7", "fr", models.ChatStyleWriting)
		chat.Service = "groq"
		svc.On("CreateSession", mock.Anything, "user-7", mock.MatchedBy(func(req tutor.CreateSessionRequest) bool {
			return req.Language == "fr" && req.Style == "writing" && req.APIKeys["groq"] == "hdr"
		})).Return(chat, nil)

		req := httptest.NewRequest(http.MethodPost, "/chat/sessions", bytes.NewBufferString(`{"language":"fr","mode":"writing"}`))
		req.Header.Set(ProviderKeysHeader, "groq=hdr")
		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, withSubject(req, "user-7"))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"model_service":"groq"`)
		assert.NotContains(t, w.Body.String(), "user-7")
		svc.AssertExpectations(t)
	})

	t.Run("create rejects unknown style", func(t *testing.T) {
		svc := new(MockTutorService)
		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w,
			httptest.NewRequest(http.MethodPost, "/chat/sessions", bytes.NewBufferString(`{"language":"fr","mode":"debate"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("list without auth uses empty owner", func(t *testing.T) {
		svc := new(MockTutorService)
		svc.On("ListSessions", mock.Anything, "").Return([]*models.ChatSession{}, nil)

		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/sessions", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("get not found", func(t *testing.T) {
		svc := new(MockTutorService)
		svc.On("GetSession", mock.Anything, "user-7", id).Return(nil, services.ErrChatSessionNotFound)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/chat/sessions/"+id.String(), nil)
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, withSubject(req, "user-7"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		svc := new(MockTutorService)
		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/sessions/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("send message", func(t *testing.T) {
		svc := new(MockTutorService)
		reply := models.NewChatMessage(id, models.ChatRoleAssistant, "Très bien !")
		reply.Service, reply.Model = "groq", "llama-3.1-8b-instant"
		svc.On("SendMessage", mock.Anything, "user-7", id, mock.MatchedBy(func(req tutor.SendMessageRequest) bool {
			return req.Content == "Je suis content"
		})).Return(reply, nil)

		req := httptest.NewRequest(http.MethodPost, "/chat/sessions/"+id.String()+"/messages", bytes.NewBufferString(`{"content":"Je suis content"}`))
		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, withSubject(req, "user-7"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"role":"assistant"`)
		svc.AssertExpectations(t)
	})

	t.Run("send to closed session", func(t *testing.T) {
		svc := new(MockTutorService)
		svc.On("SendMessage", mock.Anything, "", id, mock.Anything).Return(nil, services.ErrChatClosed)

		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w,
			httptest.NewRequest(http.MethodPost, "/chat/sessions/"+id.String()+"/messages", bytes.NewBufferString(`{"content":"hi"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("close", func(t *testing.T) {
		svc := new(MockTutorService)
		svc.On("CloseSession", mock.Anything, "", id).Return(nil)

		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/chat/sessions/"+id.String(), nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Chat session closed")
		svc.AssertExpectations(t)
	})

	t.Run("change model", func(t *testing.T) {
		svc := new(MockTutorService)
		chat := models.NewChatSession("", "en", "")
		chat.Service, chat.Model = "gemini", "gemini-2.5-flash"
		svc.On("ChangeModel", mock.Anything, "", id, mock.MatchedBy(func(req tutor.ChangeModelRequest) bool {
			return req.Service == "gemini" && req.Model == "gemini-2.5-flash"
		})).Return(chat, nil)

		req := httptest.NewRequest(http.MethodPatch, "/chat/sessions/"+id.String()+"/model",
			bytes.NewBufferString(`{"model_service":"gemini","model_name":"gemini-2.5-flash"}`))
		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"model_name":"gemini-2.5-flash"`)
		svc.AssertExpectations(t)
	})

	t.Run("change model needs both fields", func(t *testing.T) {
		svc := new(MockTutorService)
		w := httptest.NewRecorder()
		chatRouter(NewChatHandler(svc, logger)).ServeHTTP(w,
			httptest.NewRequest(http.MethodPatch, "/chat/sessions/"+id.String()+"/model", bytes.NewBufferString(`{"model_service":"gemini"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "ChangeModel", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
