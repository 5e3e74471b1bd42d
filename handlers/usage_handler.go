package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services/usage"
	"github.com/upb/lingotube/backend/utils"
)

// UsageService defines the token usage queries used by the API
type UsageService interface {
	Stats(ctx context.Context, service, model string, days int) (*usage.Stats, error)
	ByModel(ctx context.Context, service string, days int) ([]usage.ModelStats, error)
	ByService(ctx context.Context, days int) ([]usage.ServiceStats, error)
}

// UsageHandler handles token usage HTTP requests
type UsageHandler struct {
	service UsageService
	logger  *zap.Logger
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(service UsageService, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		service: service,
		logger:  logger,
	}
}

// HandleStats handles GET /api/v1/usage?service=&model=&days=
func (h *UsageHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	stats, err := h.service.Stats(r.Context(), q.Get("service"), q.Get("model"), days)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stats)
}

// HandleByModel handles GET /api/v1/usage/models?service=&days=
func (h *UsageHandler) HandleByModel(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	stats, err := h.service.ByModel(r.Context(), r.URL.Query().Get("service"), days)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stats)
}

// HandleByService handles GET /api/v1/usage/services?days=
func (h *UsageHandler) HandleByService(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	stats, err := h.service.ByService(r.Context(), days)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stats)
}

// parseDays reads ?days; zero lets the recorder apply its default window
func parseDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > usage.MaxDays {
		_ = utils.WriteBadRequest(w, "days must be between 1 and "+strconv.Itoa(usage.MaxDays), nil)
		return 0, false
	}
	return days, true
}
