package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/utils"
)

// ProviderKeysHeader carries per-request provider keys as "name=key" pairs
// separated by commas, for requests without a body.
const ProviderKeysHeader = "X-Provider-Keys"

// ModelService defines the model availability operations used by the API
type ModelService interface {
	Models(ctx context.Context, overrides session.Credentials) (*session.ModelReport, error)
	ValidateModels(ctx context.Context, overrides session.Credentials) (*session.ValidationReport, error)
	UnblockModel(ctx context.Context, overrides session.Credentials, model string) error
	CheckKeys(ctx context.Context, overrides session.Credentials) ([]session.KeyStatus, error)
}

// KeysRequest is the body of model maintenance requests
type KeysRequest struct {
	APIKeys map[string]string `json:"api_keys,omitempty"`
}

// ModelHandler handles model availability HTTP requests
type ModelHandler struct {
	service ModelService
	logger  *zap.Logger
}

// NewModelHandler creates a new ModelHandler
func NewModelHandler(service ModelService, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/models
func (h *ModelHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Models(r.Context(), providerKeys(r, nil))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, report)
}

// HandleValidate handles POST /api/v1/models/validate
func (h *ModelHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	body, ok := h.keysBody(w, r)
	if !ok {
		return
	}

	report, err := h.service.ValidateModels(r.Context(), providerKeys(r, body.APIKeys))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, report)
}

// HandleUnblock handles POST /api/v1/models/{model}/unblock
func (h *ModelHandler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	body, ok := h.keysBody(w, r)
	if !ok {
		return
	}

	model := chi.URLParam(r, "model")
	if err := h.service.UnblockModel(r.Context(), providerKeys(r, body.APIKeys), model); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("model unblocked", zap.String("model", model))
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{
		Data:    map[string]string{"model": model},
		Message: "Model unblocked",
	})
}

// HandleCheckKeys handles POST /api/v1/keys/check
func (h *ModelHandler) HandleCheckKeys(w http.ResponseWriter, r *http.Request) {
	body, ok := h.keysBody(w, r)
	if !ok {
		return
	}

	statuses, err := h.service.CheckKeys(r.Context(), providerKeys(r, body.APIKeys))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, statuses)
}

func (h *ModelHandler) keysBody(w http.ResponseWriter, r *http.Request) (KeysRequest, bool) {
	var body KeysRequest
	if r.ContentLength == 0 {
		return body, true
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return body, false
	}
	return body, true
}

// providerKeys merges header keys with body keys; body keys win
func providerKeys(r *http.Request, body map[string]string) session.Credentials {
	keys := session.Credentials{}
	for _, pair := range strings.Split(r.Header.Get(ProviderKeysHeader), ",") {
		name, key, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && name != "" && key != "" {
			keys[strings.ToLower(name)] = key
		}
	}
	for name, key := range body {
		keys[name] = key
	}
	return keys
}
