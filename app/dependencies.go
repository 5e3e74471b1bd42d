package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/config"
	"github.com/upb/lingotube/backend/handlers"
	"github.com/upb/lingotube/backend/middleware"
	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/repositories/postgres"
	"github.com/upb/lingotube/backend/services/jobs"
	"github.com/upb/lingotube/backend/services/practice"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/services/tutor"
	"github.com/upb/lingotube/backend/services/usage"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Jobs             repositories.JobRepository
	Translations     repositories.TranslationRepository
	TokenUsage       repositories.TokenUsageRepository
	TrackerSnapshots repositories.TrackerSnapshotRepository
	Chats            repositories.ChatRepository
	TxManager        repositories.TransactionManager

	// Services
	Usage           *usage.Recorder
	Sessions        *session.Manager
	Runner          *jobs.Runner
	JobService      *jobs.Service
	PracticeService *practice.Service
	TutorService    *tutor.Service

	// HTTP
	AuthMiddleware  *middleware.AuthMiddleware
	HealthHandler   *handlers.HealthHandler
	JobHandler      *handlers.JobHandler
	ModelHandler    *handlers.ModelHandler
	PracticeHandler *handlers.PracticeHandler
	ChatHandler     *handlers.ChatHandler
	UsageHandler    *handlers.UsageHandler

	scheduler *Scheduler
}

// NewDependencies opens the database and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires everything over an existing repository factory
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := factory.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initAuth(cfg)
	deps.initHandlers()

	scheduler, err := NewScheduler(deps.Sessions, cfg.Routing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	deps.scheduler = scheduler

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.ConfiguredProviders()))
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Jobs = repos.Jobs
	d.Translations = repos.Translations
	d.TokenUsage = repos.TokenUsage
	d.TrackerSnapshots = repos.TrackerSnapshots
	d.Chats = repos.Chats
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	catalog, err := config.LoadCatalog(cfg.Routing.CatalogFile)
	if err != nil {
		return err
	}

	d.Usage = usage.NewRecorder(d.TokenUsage, d.Logger.Named("usage"))
	d.Sessions = session.NewManager(
		defaultCredentials(cfg.Providers),
		session.OptionsFromConfig(cfg, catalog),
		d.TrackerSnapshots,
		d.Usage,
		d.Logger.Named("session"),
	)
	d.Runner = jobs.NewRunner(cfg.Jobs.MaxConcurrent, d.Logger.Named("runner"))
	d.JobService = jobs.NewService(d.Jobs, d.Translations, d.TxManager, d.Sessions, d.Runner, cfg.Jobs.DefaultMaxGap, d.Logger.Named("jobs"))
	d.PracticeService = practice.NewService(d.Sessions, d.Translations, d.Logger.Named("practice"))
	d.TutorService = tutor.NewService(d.Sessions, d.Chats, d.TxManager, d.Logger.Named("tutor"))

	if !cfg.Providers.HasAny() {
		d.Logger.Warn("no provider API keys configured, requests must supply api_keys")
	}
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.Auth.Enabled() {
		d.Logger.Warn("JWT_SECRET not set, API authentication disabled")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return
	}
	validator := middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("API authentication enabled", zap.String("issuer", cfg.Auth.JWTIssuer))
}

func (d *Dependencies) initHandlers() {
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.ConfiguredProviders(), d.Logger)
	d.JobHandler = handlers.NewJobHandler(d.JobService, d.Logger)
	d.ModelHandler = handlers.NewModelHandler(d.Sessions, d.Logger)
	d.PracticeHandler = handlers.NewPracticeHandler(d.PracticeService, d.Logger)
	d.ChatHandler = handlers.NewChatHandler(d.TutorService, d.Logger)
	d.UsageHandler = handlers.NewUsageHandler(d.Usage, d.Logger)
}

// ConfiguredProviders lists the providers with a server default key, in priority order
func (d *Dependencies) ConfiguredProviders() []string {
	creds := d.Config.Providers.Credentials()
	var out []string
	for _, name := range providers.Names {
		if creds[name].APIKey != "" {
			out = append(out, name)
		}
	}
	return out
}

func defaultCredentials(cfg config.ProvidersConfig) session.Credentials {
	keys := session.Credentials{}
	for name, cred := range cfg.Credentials() {
		if cred.APIKey != "" {
			keys[name] = cred.APIKey
		}
	}
	return keys
}

// Start begins scheduled maintenance
func (d *Dependencies) Start() {
	if d.scheduler != nil {
		d.scheduler.Start()
	}
}

// Close gracefully shuts down all dependencies. Running jobs are cancelled
// and keep their last checkpoint, so they can be resumed after a restart.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.scheduler != nil {
		d.scheduler.Stop(ctx)
	}

	if d.Runner != nil {
		if err := d.Runner.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop jobs: %w", err))
		}
	}

	if d.Sessions != nil {
		if err := d.Sessions.SaveAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to save tracker snapshots: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
