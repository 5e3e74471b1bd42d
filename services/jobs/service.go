// Package jobs runs subtitle translation jobs in the background and keeps
// their persisted state, including resumable checkpoints, up to date.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/services/translation"
)

// Progress reported before the first unit is translated
const startProgress = 50

// Sessions resolves the routing session of a credential set
type Sessions interface {
	Get(ctx context.Context, overrides session.Credentials) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
}

// CreateRequest starts a translation job
type CreateRequest struct {
	VideoID        string                   `json:"video_id" validate:"required,max=64"`
	SourceLanguage string                   `json:"source_language" validate:"omitempty,lang"`
	TargetLanguage string                   `json:"target_language" validate:"required,lang"`
	Segments       []models.SubtitleSegment `json:"segments" validate:"required,min=1,dive"`
	MaxGap         *float64                 `json:"max_gap,omitempty" validate:"omitempty,gte=0"`
	Service        string                   `json:"translation_service,omitempty" validate:"omitempty,provider"`
	APIKeys        map[string]string        `json:"api_keys,omitempty"`
}

// Service manages translation jobs
type Service struct {
	jobs          repositories.JobRepository
	translations  repositories.TranslationRepository
	txMgr         repositories.TransactionManager
	sessions      Sessions
	runner        *Runner
	defaultMaxGap float64
	logger        *zap.Logger
}

// NewService creates a job service
func NewService(
	jobs repositories.JobRepository,
	translations repositories.TranslationRepository,
	txMgr repositories.TransactionManager,
	sessions Sessions,
	runner *Runner,
	defaultMaxGap float64,
	logger *zap.Logger,
) *Service {
	return &Service{
		jobs:          jobs,
		translations:  translations,
		txMgr:         txMgr,
		sessions:      sessions,
		runner:        runner,
		defaultMaxGap: defaultMaxGap,
		logger:        logger,
	}
}

// Create stores a queued job and starts it in the background
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.TranslationJob, error) {
	if len(req.Segments) == 0 {
		return nil, services.ErrNoSegments
	}

	sess, err := s.sessions.Get(ctx, req.APIKeys)
	if err != nil {
		return nil, err
	}

	source := translation.ResolveSourceLanguage(req.SourceLanguage, req.Segments)
	job := models.NewTranslationJob(req.VideoID, source, req.TargetLanguage, req.Segments)
	job.Service = req.Service
	job.MaxGap = s.defaultMaxGap
	if req.MaxGap != nil {
		job.MaxGap = *req.MaxGap
	}
	job.CredentialID = sess.ID

	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error("failed to create job", zap.String("video_id", req.VideoID), zap.Error(err))
		return nil, services.NewDomainError(services.ErrorTypeInternal, "failed to create job", err)
	}

	s.logger.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("video_id", job.VideoID),
		zap.String("source", source),
		zap.String("target", job.TargetLanguage),
		zap.Int("segments", len(job.Segments)))

	s.start(job, sess)
	return job, nil
}

// Get returns a job by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrJobNotFound
		}
		return nil, services.NewDomainError(services.ErrorTypeInternal, "failed to load job", err)
	}
	return job, nil
}

// List returns jobs in a status, oldest first
func (s *Service) List(ctx context.Context, status models.JobStatus, limit int) ([]*models.TranslationJob, error) {
	jobs, err := s.jobs.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeInternal, "failed to list jobs", err)
	}
	return jobs, nil
}

// Translation returns the stored translation of a video for a language pair
func (s *Service) Translation(ctx context.Context, videoID, source, target string) (*models.Translation, error) {
	t, err := s.translations.Get(ctx, videoID, source, target)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTranslationNotFound
		}
		return nil, services.WrapInternal("failed to load translation", err)
	}
	return t, nil
}

// Resume restarts a paused job from its checkpoint. overrides may carry fresh
// provider keys; the job continues with whatever session they resolve to.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, overrides session.Credentials) (*models.TranslationJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.IsResumable() {
		return nil, services.NewDomainError(services.ErrorTypeConflict,
			fmt.Sprintf("job is %s and cannot be resumed", job.Status), services.ErrJobNotResumable)
	}
	if s.runner.IsRunning(id) {
		return nil, services.ErrJobRunning
	}

	sess, err := s.sessions.Get(ctx, overrides)
	if err != nil {
		return nil, err
	}
	job.CredentialID = sess.ID

	msg := "Resuming translation..."
	if err := s.update(ctx, job, models.JobUpdate{Message: &msg}); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeInternal, "failed to update job", err)
	}

	s.logger.Info("job resumed",
		zap.String("job_id", job.ID.String()),
		zap.Int("from_group", job.LastTranslatedGroupIndex+1),
		zap.Int("blocked_models", len(job.BlockedModels)))

	s.start(job, sess)
	return job, nil
}

// start hands a copy of the job to the runner, so the caller's value is never mutated concurrently
func (s *Service) start(job *models.TranslationJob, sess *session.Session) {
	running := *job
	if !s.runner.Submit(job.ID, func(ctx context.Context) { s.process(ctx, &running, sess) }) {
		s.logger.Warn("job already running", zap.String("job_id", job.ID.String()))
	}
}

// process runs the driver for a job and records the outcome
func (s *Service) process(ctx context.Context, job *models.TranslationJob, sess *session.Session) {
	logger := s.logger.With(zap.String("job_id", job.ID.String()))
	defer func() {
		if err := s.sessions.Save(ctx, sess); err != nil {
			logger.Warn("failed to save tracker snapshot", zap.Error(err))
		}
	}()

	if len(job.BlockedModels) > 0 {
		sess.Tracker.LoadBlocked(job.BlockedModels)
	}

	progress := startProgress
	msg := "Translating subtitles..."
	if err := s.update(ctx, job, models.JobUpdate{Status: models.JobStatusProcessing, Progress: &progress, Message: &msg}); err != nil {
		logger.Error("failed to mark job processing", zap.Error(err))
		return
	}

	opts := translation.Options{
		TargetLanguage: job.TargetLanguage,
		SourceLanguage: job.SourceLanguage,
		MaxGap:         job.MaxGap,
		OnProgress: func(progress int, message string) {
			if err := s.update(ctx, job, models.JobUpdate{Progress: &progress, Message: &message}); err != nil {
				logger.Warn("failed to report progress", zap.Error(err))
			}
		},
		OnCheckpoint: func(ctx context.Context, cp translation.Checkpoint) error {
			blocked := cp.BlockedModels
			if blocked == nil {
				blocked = []string{}
			}
			return s.update(ctx, job, models.JobUpdate{
				LastTranslatedGroupIndex: &cp.GroupIndex,
				PartialSegments:          cp.Segments,
				BlockedModels:            blocked,
			})
		},
	}
	if job.HasCheckpoint() {
		opts.StartFromIndex = job.LastTranslatedGroupIndex + 1
		opts.ExistingTranslations = job.PartialSegments
	}

	driver := translation.NewDriver(sess.Translator(job.Service), sess.BlockedModels, logger)
	segments, err := driver.Translate(ctx, job.Segments, opts)

	switch {
	case err == nil:
		if err := s.complete(ctx, job, segments); err != nil {
			logger.Error("failed to save translation", zap.Error(err))
			s.fail(ctx, job, fmt.Errorf("save translation: %w", err))
			return
		}
		logger.Info("job completed", zap.Int("segments", len(segments)))

	case providers.IsQuota(err):
		msg := fmt.Sprintf("Paused: %v. Progress was saved and can be resumed.", err)
		if err := s.update(ctx, job, models.JobUpdate{Message: &msg}); err != nil {
			logger.Error("failed to record pause", zap.Error(err))
		}
		logger.Warn("job paused", zap.Int("last_group", job.LastTranslatedGroupIndex), zap.Error(err))

	default:
		logger.Error("job failed", zap.String("kind", string(providers.KindOf(err))), zap.Error(err))
		s.fail(ctx, job, err)
	}
}

// complete stores the translation and clears the checkpoint in one transaction
func (s *Service) complete(ctx context.Context, job *models.TranslationJob, segments []models.TranslationSegment) error {
	return services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		t := models.NewTranslation(job.VideoID, job.SourceLanguage, job.TargetLanguage, segments)
		if err := s.translations.Upsert(ctx, t); err != nil {
			return err
		}

		progress := 100
		msg := "Translation completed"
		return s.update(ctx, job, models.JobUpdate{
			Status:          models.JobStatusCompleted,
			Progress:        &progress,
			Message:         &msg,
			ClearCheckpoint: true,
		})
	})
}

func (s *Service) fail(ctx context.Context, job *models.TranslationJob, cause error) {
	errText := cause.Error()
	msg := "Translation failed: " + errText
	if err := s.update(ctx, job, models.JobUpdate{Status: models.JobStatusError, Message: &msg, Error: &errText}); err != nil {
		s.logger.Error("failed to record job error", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func (s *Service) update(ctx context.Context, job *models.TranslationJob, upd models.JobUpdate) error {
	upd.Apply(job)
	return s.jobs.Update(ctx, job)
}
