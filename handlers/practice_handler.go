package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services/practice"
	"github.com/upb/lingotube/backend/utils"
)

// PracticeService defines the practice operations used by the API
type PracticeService interface {
	GeneratePhrase(ctx context.Context, req practice.PhraseRequest) (*practice.Phrase, error)
}

// CheckRequest compares a learner's answer with the expected translation
type CheckRequest struct {
	Answer  string `json:"answer" validate:"required,max=4000"`
	Correct string `json:"correct" validate:"required,max=4000"`
}

// CheckResult reports whether an answer was accepted
type CheckResult struct {
	Correct bool `json:"correct"`
}

// PracticeHandler handles practice HTTP requests
type PracticeHandler struct {
	service PracticeService
	logger  *zap.Logger
}

// NewPracticeHandler creates a new PracticeHandler
func NewPracticeHandler(service PracticeService, logger *zap.Logger) *PracticeHandler {
	return &PracticeHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGeneratePhrase handles POST /api/v1/practice/phrase
func (h *PracticeHandler) HandleGeneratePhrase(w http.ResponseWriter, r *http.Request) {
	var req practice.PhraseRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}
	req.APIKeys = providerKeys(r, req.APIKeys)

	phrase, err := h.service.GeneratePhrase(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, phrase)
}

// HandleCheckAnswer handles POST /api/v1/practice/check
func (h *PracticeHandler) HandleCheckAnswer(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}
	_ = utils.WriteOK(w, CheckResult{Correct: practice.CheckAnswer(req.Answer, req.Correct)})
}
