package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services/jobs"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/utils"
)

const (
	defaultJobListLimit = 50
	maxJobListLimit     = 200
)

// JobService defines the translation job operations used by the API
type JobService interface {
	Create(ctx context.Context, req jobs.CreateRequest) (*models.TranslationJob, error)
	Get(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error)
	List(ctx context.Context, status models.JobStatus, limit int) ([]*models.TranslationJob, error)
	Resume(ctx context.Context, id uuid.UUID, overrides session.Credentials) (*models.TranslationJob, error)
	Translation(ctx context.Context, videoID, source, target string) (*models.Translation, error)
}

// ResumeRequest optionally carries fresh provider keys for a paused job
type ResumeRequest struct {
	APIKeys map[string]string `json:"api_keys,omitempty"`
}

// JobHandler handles translation job HTTP requests
type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /api/v1/jobs
func (h *JobHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req jobs.CreateRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	req.APIKeys = providerKeys(r, req.APIKeys)

	job, err := h.service.Create(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("translation job accepted",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("job_id", job.ID.String()))
	_ = utils.WriteAccepted(w, job, "Translation started")
}

// HandleGet handles GET /api/v1/jobs/{id}
func (h *JobHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, job)
}

// HandleList handles GET /api/v1/jobs?status=processing&limit=50
func (h *JobHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := models.JobStatus(q.Get("status"))
	if status == "" {
		status = models.JobStatusProcessing
	}
	switch status {
	case models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusError:
	default:
		_ = utils.WriteBadRequest(w, "status must be one of: queued processing completed error", nil)
		return
	}

	limit := defaultJobListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxJobListLimit)
	}

	list, err := h.service.List(r.Context(), status, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleResume handles POST /api/v1/jobs/{id}/resume
func (h *JobHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var req ResumeRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
	}

	job, err := h.service.Resume(r.Context(), id, providerKeys(r, req.APIKeys))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("translation job resumed",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("job_id", job.ID.String()),
		zap.Int("checkpoint", job.LastTranslatedGroupIndex))
	_ = utils.WriteAccepted(w, job, "Translation resumed")
}

// HandleGetTranslation handles GET /api/v1/translations/{videoID}?source=en&target=pt
func (h *JobHandler) HandleGetTranslation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, target := q.Get("source"), q.Get("target")
	if !utils.ValidLanguage(source) || source == "auto" || !utils.ValidLanguage(target) || target == "auto" {
		_ = utils.WriteBadRequest(w, "source and target must be language codes", nil)
		return
	}

	t, err := h.service.Translation(r.Context(), chi.URLParam(r, "videoID"), source, target)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, t)
}
