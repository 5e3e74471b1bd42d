// Package session owns the per-credential routing state: provider clients,
// the gemini availability tracker, pacing and the model list cache.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/lingotube/backend/config"
	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/availability"
	"github.com/upb/lingotube/backend/services/generation"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/providers/gemini"
	"github.com/upb/lingotube/backend/services/providers/openai"
	"github.com/upb/lingotube/backend/services/routing"
	"github.com/upb/lingotube/backend/services/translation"
)

// Credentials maps provider names to API keys
type Credentials map[string]string

// Merge returns a copy of c with every non-empty key of overrides applied
func (c Credentials) Merge(overrides Credentials) Credentials {
	out := make(Credentials, len(c)+len(overrides))
	for name, key := range c {
		if key != "" {
			out[name] = key
		}
	}
	for name, key := range overrides {
		key = strings.TrimSpace(key)
		if key != "" {
			out[strings.ToLower(name)] = key
		}
	}
	return out
}

// Empty reports whether no provider has a key
func (c Credentials) Empty() bool {
	for _, key := range c {
		if key != "" {
			return false
		}
	}
	return true
}

// Fingerprint identifies the credential set without exposing the keys
func (c Credentials) Fingerprint() string {
	entries := make([]string, 0, len(c))
	for name, key := range c {
		if key == "" {
			continue
		}
		entries = append(entries, name+"="+key)
	}
	sort.Strings(entries)

	sum := sha256.Sum256([]byte(strings.Join(entries, "\n")))
	return hex.EncodeToString(sum[:])
}

// Options configures every session a manager builds
type Options struct {
	GeminiModels []string
	Policy       availability.Policy
	Caller       generation.Config
	Routing      routing.RoutingConfig
	Priority     map[routing.Mode][]string
	Ranked       routing.RankedModels
	CacheTTL     time.Duration
	Spacing      time.Duration
	Timeout      time.Duration
	BaseURLs     map[string]string
	// IdleTTL is how long an unused session is kept. Zero keeps sessions forever.
	IdleTTL time.Duration
}

// DefaultOptions returns the built-in catalogs and timings
func DefaultOptions() Options {
	return Options{
		GeminiModels: availability.DefaultGeminiModels,
		Policy:       availability.DefaultPolicy(),
		Caller:       generation.DefaultConfig(),
		Routing:      routing.DefaultRoutingConfig(),
		Priority:     routing.DefaultProviderPriority(),
		Ranked:       routing.DefaultRankedModels(),
		CacheTTL:     routing.DefaultModelCacheTTL,
		Spacing:      time.Second,
		Timeout:      30 * time.Second,
		BaseURLs:     map[string]string{},
		IdleTTL:      2 * time.Hour,
	}
}

// OptionsFromConfig applies configuration and catalog overrides to the defaults
func OptionsFromConfig(cfg *config.Config, catalog *config.ModelCatalog) Options {
	opts := DefaultOptions()

	opts.Policy.TreatUnknownAsAvailable = cfg.Routing.TreatUnknownAvailable
	opts.Policy.RevalidateAfter = cfg.Routing.RevalidateAfter
	opts.Caller.MaxAttempts = cfg.Routing.MaxRetries
	opts.Caller.RequestTimeout = cfg.Providers.RequestTimeout
	opts.Caller.RevalidateAfter = cfg.Routing.RevalidateAfter
	opts.Routing.RequestTimeout = cfg.Providers.RequestTimeout
	opts.CacheTTL = cfg.Routing.ModelCacheTTL
	opts.Spacing = cfg.Providers.MinRequestSpacing
	opts.Timeout = cfg.Providers.RequestTimeout
	opts.IdleTTL = cfg.Routing.SessionIdleTTL

	for name, cred := range cfg.Providers.Credentials() {
		if cred.BaseURL != "" {
			opts.BaseURLs[name] = cred.BaseURL
		}
	}

	if catalog == nil {
		return opts
	}
	if len(catalog.Gemini) > 0 {
		opts.GeminiModels = catalog.Gemini
	}
	for mode, order := range catalog.Priority {
		opts.Priority[routing.Mode(mode)] = order
	}
	for provider, modes := range catalog.Ranked {
		if opts.Ranked[provider] == nil {
			opts.Ranked[provider] = make(map[routing.Mode][]string)
		}
		for mode, ranked := range modes {
			opts.Ranked[provider][routing.Mode(mode)] = ranked
		}
	}
	return opts
}

// RegistryFunc builds the provider clients of one credential set
type RegistryFunc func(keys Credentials, opts Options) (*providers.Registry, error)

// BuildRegistry creates the gemini REST client and the OpenAI-compatible clients
func BuildRegistry(keys Credentials, opts Options) (*providers.Registry, error) {
	configs := make(map[string]providers.ProviderConfig, len(keys))
	for name, key := range keys {
		configs[name] = providers.ProviderConfig{
			APIKey:  key,
			BaseURL: opts.BaseURLs[name],
			Timeout: opts.Timeout,
		}
	}

	return providers.NewRegistryBuilder().
		WithProviderBuilder(providers.Gemini, gemini.Build).
		WithProviderBuilder(providers.OpenRouter, openai.Builder(providers.OpenRouter)).
		WithProviderBuilder(providers.Groq, openai.Builder(providers.Groq)).
		WithProviderBuilder(providers.Together, openai.Builder(providers.Together)).
		Build(configs)
}

// Session is the routing state of one credential set
type Session struct {
	ID       string
	Registry *providers.Registry
	Tracker  *availability.Tracker
	Selector *routing.Selector
	Router   *routing.RoutingService

	lastUsed atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Gemini returns the tracked caller of the primary provider, if it has a key
func (s *Session) Gemini() (*generation.Caller, bool) {
	return s.Router.Caller(providers.Gemini)
}

// BlockedModels returns the models currently blocked in the gemini tracker
func (s *Session) BlockedModels() []string {
	return s.Tracker.BlockedModels()
}

// Translator returns a subtitle translator routed through practice mode
func (s *Session) Translator(preferred string) *translation.ProviderTranslator {
	return translation.NewProviderTranslator(routing.ModeGenerator{
		Service:   s.Router,
		Mode:      routing.ModePractice,
		Preferred: preferred,
	})
}

// Snapshot returns the persisted part of the gemini tracker
func (s *Session) Snapshot() *models.TrackerSnapshot {
	snap := s.Tracker.Snapshot()
	snap.CredentialID = s.ID
	snap.Provider = providers.Gemini
	return snap
}

// Manager caches one session per credential fingerprint
type Manager struct {
	defaults  Credentials
	opts      Options
	snapshots repositories.TrackerSnapshotRepository
	usage     generation.UsageRecorder
	build     RegistryFunc
	logger    *zap.Logger
	now       func() time.Time

	creating singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. snapshots and usage may be nil.
func NewManager(defaults Credentials, opts Options, snapshots repositories.TrackerSnapshotRepository, usage generation.UsageRecorder, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		defaults:  defaults,
		opts:      opts,
		snapshots: snapshots,
		usage:     usage,
		build:     BuildRegistry,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// WithRegistryFunc replaces how provider clients are built
func (m *Manager) WithRegistryFunc(fn RegistryFunc) *Manager {
	m.build = fn
	return m
}

// Get returns the session of the server default keys merged with overrides,
// creating it and restoring its tracker snapshot on first use.
func (m *Manager) Get(ctx context.Context, overrides Credentials) (*Session, error) {
	keys := m.defaults.Merge(overrides)
	if keys.Empty() {
		return nil, services.ErrNoProviders
	}
	id := keys.Fingerprint()

	if s, ok := m.lookup(id); ok {
		return s, nil
	}

	// Concurrent first requests for one key set share a single build and
	// snapshot read; other key sets are not held up by it.
	v, err, _ := m.creating.Do(id, func() (interface{}, error) {
		if s, ok := m.lookup(id); ok {
			return s, nil
		}

		s, err := m.newSession(id, keys)
		if err != nil {
			return nil, err
		}
		m.restore(context.WithoutCancel(ctx), s)
		s.touch(m.now())

		m.mu.Lock()
		m.sessions[id] = s
		m.mu.Unlock()

		m.logger.Info("session created",
			zap.String("session", shortID(id)),
			zap.Strings("providers", s.Registry.ListProviders()))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// EvictIdle saves and drops sessions unused for longer than the idle TTL and
// returns how many were dropped. Work already holding a session keeps it.
func (m *Manager) EvictIdle(ctx context.Context) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		if err := m.Save(ctx, s); err != nil {
			m.logger.Warn("failed to save evicted session", zap.String("session", shortID(s.ID)), zap.Error(err))
		}
		m.logger.Info("idle session evicted", zap.String("session", shortID(s.ID)))
	}
	return len(idle)
}

func (m *Manager) newSession(id string, keys Credentials) (*Session, error) {
	registry, err := m.build(keys, m.opts)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid provider credentials", err)
	}

	logger := m.logger.With(zap.String("session", shortID(id)))
	tracker := availability.NewTracker(availability.NewCatalog(m.opts.GeminiModels...), m.opts.Policy, logger)
	pacer := generation.NewPacer(m.opts.Spacing)
	selector := routing.NewSelector(m.opts.Priority, m.opts.Ranked, routing.NewModelCache(0, m.opts.CacheTTL), logger)

	callers := make(map[string]*generation.Caller)
	if client, err := registry.GetProvider(providers.Gemini); err == nil {
		callers[providers.Gemini] = generation.NewCaller(client, tracker, pacer, m.usage, m.opts.Caller, logger)
	}

	return &Session{
		ID:       id,
		Registry: registry,
		Tracker:  tracker,
		Selector: selector,
		Router:   routing.NewRoutingService(m.opts.Routing, registry, selector, callers, pacer, m.usage, logger),
	}, nil
}

func (m *Manager) restore(ctx context.Context, s *Session) {
	if m.snapshots == nil {
		return
	}
	snap, err := m.snapshots.Get(ctx, s.ID, providers.Gemini)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			m.logger.Warn("failed to load tracker snapshot", zap.String("session", shortID(s.ID)), zap.Error(err))
		}
		return
	}
	s.Tracker.Restore(snap)
}

// Save persists the tracker snapshot of a session
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if m.snapshots == nil {
		return nil
	}
	return m.snapshots.Save(ctx, s.Snapshot())
}

// SaveAll persists every session's tracker snapshot
func (m *Manager) SaveAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.Sessions() {
		if err := m.Save(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sessions returns the live sessions ordered by ID
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CleanupCaches drops expired model lists from every session and returns how many were removed
func (m *Manager) CleanupCaches() int {
	removed := 0
	for _, s := range m.Sessions() {
		removed += s.Selector.Cache().CleanupExpired()
	}
	return removed
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
