package jobs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/providers/providertest"
	"github.com/upb/lingotube/backend/services/session"
)

// memJobs is an in-memory JobRepository
type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.TranslationJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]models.TranslationJob)}
}

func (r *memJobs) Create(ctx context.Context, job *models.TranslationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobs) GetByID(ctx context.Context, id uuid.UUID) (*models.TranslationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, repositories.ErrNotFound)
	}
	return &job, nil
}

func (r *memJobs) Update(ctx context.Context, job *models.TranslationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobs) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.TranslationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TranslationJob
	for _, j := range r.jobs {
		if j.Status == status {
			j := j
			out = append(out, &j)
		}
	}
	return out, nil
}

func (r *memJobs) get(id uuid.UUID) models.TranslationJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

type MockTranslationRepository struct {
	mock.Mock
}

func (m *MockTranslationRepository) Upsert(ctx context.Context, t *models.Translation) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTranslationRepository) Get(ctx context.Context, videoID, src, tgt string) (*models.Translation, error) {
	args := m.Called(ctx, videoID, src, tgt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Translation), args.Error(1)
}

type fakeTx struct{ ctx context.Context }

func (t *fakeTx) Commit() error            { return nil }
func (t *fakeTx) Rollback() error          { return nil }
func (t *fakeTx) Context() context.Context { return t.ctx }

type fakeTxManager struct {
	mu     sync.Mutex
	begins int
}

func (m *fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.mu.Lock()
	m.begins++
	m.mu.Unlock()
	return &fakeTx{ctx: ctx}, nil
}

func (m *fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	return fn(ctx, tx)
}

var segPattern = regexp.MustCompile(`seg\d\.`)

// translateHandler answers "T-segN." for the segment named in the prompt.
// Prompts listed in quota fail with a quota error.
func translateHandler(quota ...string) providertest.Handler {
	return func(req *providers.GenerateRequest) (*providers.Generation, error) {
		seg := segPattern.FindString(req.Prompt)
		for _, q := range quota {
			if seg == q {
				return nil, providers.NewProviderError("gemini", req.Model, providers.KindQuota, "429 RESOURCE_EXHAUSTED", 429, nil)
			}
		}
		if seg == "" {
			return &providers.Generation{Text: "ok", Model: req.Model}, nil
		}
		return &providers.Generation{Text: "T-" + seg, Model: req.Model}, nil
	}
}

type fixture struct {
	service      *Service
	jobs         *memJobs
	translations *MockTranslationRepository
	txMgr        *fakeTxManager
	sessions     *session.Manager
	runner       *Runner
	client       *providertest.Client
}

func newFixture(t *testing.T, handler providertest.Handler) *fixture {
	t.Helper()

	client := providertest.New(providers.Gemini, handler)
	opts := session.DefaultOptions()
	opts.Spacing = 0
	opts.GeminiModels = []string{"gemini-a", "gemini-b"}

	sessions := session.NewManager(session.Credentials{"gemini": "g-1"}, opts, nil, nil, zap.NewNop()).
		WithRegistryFunc(func(keys session.Credentials, opts session.Options) (*providers.Registry, error) {
			r := providers.NewRegistry()
			return r, r.RegisterProvider(client)
		})

	f := &fixture{
		jobs:         newMemJobs(),
		translations: new(MockTranslationRepository),
		txMgr:        &fakeTxManager{},
		sessions:     sessions,
		runner:       NewRunner(2, zap.NewNop()),
		client:       client,
	}
	f.service = NewService(f.jobs, f.translations, f.txMgr, sessions, f.runner, 0, zap.NewNop())
	return f
}

func fiveSegments() []models.SubtitleSegment {
	segs := make([]models.SubtitleSegment, 5)
	for i := range segs {
		segs[i] = models.SubtitleSegment{Start: float64(i * 3), Duration: 2, Text: fmt.Sprintf("seg%d.", i)}
	}
	return segs
}

func createRequest() CreateRequest {
	return CreateRequest{
		VideoID:        "abc123",
		SourceLanguage: "en",
		TargetLanguage: "pt",
		Segments:       fiveSegments(),
	}
}

func TestService_CreateCompletes(t *testing.T) {
	f := newFixture(t, translateHandler())
	var saved *models.Translation
	f.translations.On("Upsert", mock.Anything, mock.AnythingOfType("*models.Translation")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Translation) }).
		Return(nil).Once()

	job, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.CredentialID)

	f.runner.Wait()

	final := f.jobs.get(job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, models.NoCheckpoint, final.LastTranslatedGroupIndex)
	assert.Empty(t, final.PartialSegments)
	assert.Nil(t, final.Error)

	require.NotNil(t, saved)
	require.Len(t, saved.Segments, 5)
	for i, seg := range saved.Segments {
		assert.Equal(t, fmt.Sprintf("T-seg%d.", i), seg.Translated)
		assert.Equal(t, float64(i*3), seg.Start)
	}
	assert.Equal(t, 1, f.txMgr.begins)
	f.translations.AssertExpectations(t)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t, translateHandler())

	_, err := f.service.Create(context.Background(), CreateRequest{VideoID: "v", TargetLanguage: "pt"})
	assert.ErrorIs(t, err, services.ErrNoSegments)
}

func TestService_PausesOnQuotaAndResumes(t *testing.T) {
	f := newFixture(t, translateHandler("seg2."))
	f.translations.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	job, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)
	f.runner.Wait()

	paused := f.jobs.get(job.ID)
	assert.Equal(t, models.JobStatusProcessing, paused.Status)
	assert.Contains(t, paused.Message, "Paused:")
	assert.Contains(t, paused.Message, "Progress was saved and can be resumed.")
	assert.Equal(t, 1, paused.LastTranslatedGroupIndex)
	assert.Len(t, paused.PartialSegments, 2)
	assert.ElementsMatch(t, []string{"gemini-a", "gemini-b"}, paused.BlockedModels)
	assert.Nil(t, paused.Error)
	f.translations.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)

	// The quota window passes: the models come back and the job continues.
	sess, err := f.sessions.Get(context.Background(), nil)
	require.NoError(t, err)
	f.client.SetHandler(translateHandler())
	f.jobs.mu.Lock()
	stored := f.jobs.jobs[job.ID]
	stored.BlockedModels = []string{"gemini-a"}
	f.jobs.jobs[job.ID] = stored
	f.jobs.mu.Unlock()
	sess.Tracker.Unblock("gemini-a")
	sess.Tracker.Unblock("gemini-b")

	before := len(f.client.Calls())
	_, err = f.service.Resume(context.Background(), job.ID, nil)
	require.NoError(t, err)
	f.runner.Wait()

	done := f.jobs.get(job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Contains(t, sess.BlockedModels(), "gemini-a", "checkpointed blocks are restored before resuming")

	for _, call := range f.client.Calls()[before:] {
		seg := segPattern.FindString(call.Prompt)
		assert.NotContains(t, []string{"seg0.", "seg1."}, seg, "finished groups must not be translated again")
	}
}

func TestService_NonQuotaErrorFailsJob(t *testing.T) {
	f := newFixture(t, func(req *providers.GenerateRequest) (*providers.Generation, error) {
		if segPattern.MatchString(req.Prompt) {
			return nil, providers.NewProviderError("gemini", req.Model, providers.KindAuth, "API key not valid", 400, nil)
		}
		return &providers.Generation{Text: "ok"}, nil
	})

	job, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)
	f.runner.Wait()

	failed := f.jobs.get(job.ID)
	assert.Equal(t, models.JobStatusError, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "API key not valid")
	assert.Contains(t, failed.Message, "Translation failed")
}

func TestService_SaveFailureMarksError(t *testing.T) {
	f := newFixture(t, translateHandler())
	f.translations.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("unique violation"))

	job, err := f.service.Create(context.Background(), createRequest())
	require.NoError(t, err)
	f.runner.Wait()

	failed := f.jobs.get(job.ID)
	assert.Equal(t, models.JobStatusError, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "unique violation")
}

func TestService_Resume(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t, translateHandler())
		_, err := f.service.Resume(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, services.ErrJobNotFound)
	})

	for _, status := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusError} {
		t.Run(string(status)+" is a conflict", func(t *testing.T) {
			f := newFixture(t, translateHandler())
			job := models.NewTranslationJob("v", "en", "pt", fiveSegments())
			job.Status = status
			require.NoError(t, f.jobs.Create(ctx, job))

			_, err := f.service.Resume(ctx, job.ID, nil)
			assert.True(t, services.IsConflictError(err))
		})
	}

	t.Run("running job is a conflict", func(t *testing.T) {
		f := newFixture(t, translateHandler())
		job := models.NewTranslationJob("v", "en", "pt", fiveSegments())
		require.NoError(t, f.jobs.Create(ctx, job))

		release := make(chan struct{})
		require.True(t, f.runner.Submit(job.ID, func(ctx context.Context) { <-release }))

		_, err := f.service.Resume(ctx, job.ID, nil)
		assert.ErrorIs(t, err, services.ErrJobRunning)

		close(release)
		f.runner.Wait()
	})
}

func TestService_GetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, translateHandler())

	job := models.NewTranslationJob("v", "en", "pt", fiveSegments())
	job.Status = models.JobStatusProcessing
	require.NoError(t, f.jobs.Create(ctx, job))

	got, err := f.service.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	listed, err := f.service.List(ctx, models.JobStatusProcessing, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestService_Translation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, translateHandler())

	stored := &models.Translation{VideoID: "v", SourceLanguage: "en", TargetLanguage: "pt"}
	f.translations.On("Get", mock.Anything, "v", "en", "pt").Return(stored, nil)
	f.translations.On("Get", mock.Anything, "missing", "en", "pt").Return(nil, repositories.ErrNotFound)
	f.translations.On("Get", mock.Anything, "broken", "en", "pt").Return(nil, errors.New("connection reset"))

	got, err := f.service.Translation(ctx, "v", "en", "pt")
	require.NoError(t, err)
	assert.Same(t, stored, got)

	_, err = f.service.Translation(ctx, "missing", "en", "pt")
	assert.ErrorIs(t, err, services.ErrTranslationNotFound)

	_, err = f.service.Translation(ctx, "broken", "en", "pt")
	assert.True(t, services.IsInternalError(err))
}

func TestRunner(t *testing.T) {
	r := NewRunner(1, zap.NewNop())
	id := uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, r.Submit(id, func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	assert.True(t, r.IsRunning(id))
	assert.False(t, r.Submit(id, func(ctx context.Context) {}), "duplicate submission is refused")

	second := uuid.New()
	ran := make(chan struct{})
	require.True(t, r.Submit(second, func(ctx context.Context) { close(ran) }))

	select {
	case <-ran:
		t.Fatal("second job must wait for the only slot")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	r.Wait()
	<-ran
	assert.False(t, r.IsRunning(id))
	assert.False(t, r.IsRunning(second))
}

func TestRunner_ShutdownCancelsJobs(t *testing.T) {
	r := NewRunner(1, zap.NewNop())
	require.True(t, r.Submit(uuid.New(), func(ctx context.Context) { <-ctx.Done() }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Shutdown(ctx))
}

func TestRunner_RecoversPanics(t *testing.T) {
	r := NewRunner(1, zap.NewNop())
	id := uuid.New()
	require.True(t, r.Submit(id, func(ctx context.Context) { panic("boom") }))
	r.Wait()
	assert.False(t, r.IsRunning(id))
}
