package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/availability"
	"github.com/upb/lingotube/backend/services/routing"
)

// ModelReport is the model availability of one session
type ModelReport struct {
	Providers      []string                  `json:"providers"`
	Tracked        []availability.ModelState `json:"tracked_models"`
	Blocked        []string                  `json:"blocked_models"`
	LastValidation *time.Time                `json:"last_validation,omitempty"`
	Untracked      []routing.ProviderModels  `json:"provider_models"`
	Routing        routing.Stats             `json:"routing"`
}

// ValidationReport is the result of probing the primary provider's catalog
type ValidationReport struct {
	Results   map[string]bool `json:"results"`
	Available []string        `json:"available_models"`
	Blocked   []string        `json:"blocked_models"`
}

// Report describes the session's tracked and untracked models
func (s *Session) Report(ctx context.Context) *ModelReport {
	r := &ModelReport{
		Providers: s.Router.ListAvailableProviders(),
		Tracked:   s.Tracker.States(),
		Blocked:   s.Tracker.BlockedModels(),
		Untracked: s.Router.ListProviderModels(ctx),
		Routing:   s.Router.GetStats(),
	}
	if last := s.Tracker.LastValidation(); !last.IsZero() {
		r.LastValidation = &last
	}
	return r
}

// Models reports the model availability of the session for a credential set
func (m *Manager) Models(ctx context.Context, overrides Credentials) (*ModelReport, error) {
	s, err := m.Get(ctx, overrides)
	if err != nil {
		return nil, err
	}
	return s.Report(ctx), nil
}

// ValidateModels probes every catalog model of the primary provider and
// persists the resulting tracker state.
func (m *Manager) ValidateModels(ctx context.Context, overrides Credentials) (*ValidationReport, error) {
	s, err := m.Get(ctx, overrides)
	if err != nil {
		return nil, err
	}
	caller, ok := s.Gemini()
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "model validation needs a gemini API key", nil)
	}

	results := caller.Validate(ctx)
	if err := m.Save(ctx, s); err != nil {
		m.logger.Warn("failed to save tracker snapshot", zap.String("session", shortID(s.ID)), zap.Error(err))
	}

	return &ValidationReport{
		Results:   results,
		Available: s.Tracker.GetValidatedModels(),
		Blocked:   s.Tracker.BlockedModels(),
	}, nil
}

// UnblockModel clears a quota block so the model is tried again
func (m *Manager) UnblockModel(ctx context.Context, overrides Credentials, model string) error {
	s, err := m.Get(ctx, overrides)
	if err != nil {
		return err
	}
	if !s.Tracker.Catalog().Contains(model) && !s.Tracker.IsBlocked(model) {
		return services.ErrModelNotFound
	}

	s.Tracker.Unblock(model)
	return m.Save(ctx, s)
}
