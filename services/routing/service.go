// Package routing decides which provider and model serve a text-generation
// request and falls back across providers on failure.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services/generation"
	"github.com/upb/lingotube/backend/services/providers"
)

var (
	// ErrNoProviderAvailable is returned when no provider holds usable credentials
	ErrNoProviderAvailable = errors.New("no provider available")
)

// RoutingConfig holds configuration for the routing service
type RoutingConfig struct {
	// RequestTimeout bounds each provider call
	RequestTimeout time.Duration

	// EnableFallback tries the next provider when one fails
	EnableFallback bool

	// EnableLatencyTracking tracks latency across providers
	EnableLatencyTracking bool
}

// DefaultRoutingConfig returns a sensible default configuration
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		RequestTimeout:        30 * time.Second,
		EnableFallback:        true,
		EnableLatencyTracking: true,
	}
}

// Request is a provider-independent generation request
type Request struct {
	Mode              Mode
	PreferredProvider string
	// Model is used when the preferred provider serves the request
	Model             string
	Prompt            string
	System            string
	History           []providers.Message
	MaxTokens         int
	Temperature       float64
}

// Attempt records one provider tried for a request
type Attempt struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// FallbackError is returned when every provider in the route failed
type FallbackError struct {
	Attempts []Attempt
	Last     error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("all %d providers failed, last: %v", len(e.Attempts), e.Last)
}

func (e *FallbackError) Unwrap() error {
	return e.Last
}

// ErrorKind is quota only when every provider failed on quota. Otherwise it is
// the kind of the first attempt that failed for another reason, so a bad
// credential is never mistaken for a pause.
func (e *FallbackError) ErrorKind() providers.ErrorKind {
	if len(e.Attempts) == 0 {
		return providers.KindOf(e.Last)
	}
	for _, a := range e.Attempts {
		if a.Kind != string(providers.KindQuota) {
			return providers.ErrorKind(a.Kind)
		}
	}
	return providers.KindQuota
}

// RoutingService handles request routing to appropriate providers
type RoutingService struct {
	config   RoutingConfig
	registry *providers.Registry
	selector *Selector
	callers  map[string]*generation.Caller
	pacer    *generation.Pacer
	usage    generation.UsageRecorder
	logger   *zap.Logger

	mu             sync.Mutex
	latencyTracker map[string]time.Duration
	requestCounter map[string]int
}

// NewRoutingService creates a new routing service. Providers that have a
// caller are served through it, so their models follow the availability tracker.
func NewRoutingService(config RoutingConfig, registry *providers.Registry, selector *Selector, callers map[string]*generation.Caller, pacer *generation.Pacer, usage generation.UsageRecorder, logger *zap.Logger) *RoutingService {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if callers == nil {
		callers = make(map[string]*generation.Caller)
	}
	return &RoutingService{
		config:         config,
		registry:       registry,
		selector:       selector,
		callers:        callers,
		pacer:          pacer,
		usage:          usage,
		logger:         logger,
		latencyTracker: make(map[string]time.Duration),
		requestCounter: make(map[string]int),
	}
}

// Route returns the provider order for a request
func (s *RoutingService) Route(mode Mode, preferred string) []string {
	return s.selector.Select(mode, preferred, s.registry.Available())
}

// Generate serves the request with the first provider that succeeds
func (s *RoutingService) Generate(ctx context.Context, req *Request) (*providers.Generation, error) {
	order := s.Route(req.Mode, req.PreferredProvider)
	if len(order) == 0 {
		return nil, ErrNoProviderAvailable
	}

	var attempts []Attempt
	var lastErr error

	for _, name := range order {
		gen, model, err := s.generateWith(ctx, name, req)
		if err == nil {
			s.track(name, gen.Latency)
			return gen, nil
		}

		lastErr = err
		attempts = append(attempts, Attempt{
			Provider: name,
			Model:    model,
			Kind:     string(providers.KindOf(err)),
			Error:    err.Error(),
		})
		s.logger.Warn("provider failed",
			zap.String("provider", name),
			zap.String("model", model),
			zap.String("kind", string(providers.KindOf(err))),
			zap.Error(err),
		)

		if ctx.Err() != nil || !s.config.EnableFallback {
			break
		}
	}

	return nil, &FallbackError{Attempts: attempts, Last: lastErr}
}

func (s *RoutingService) generateWith(ctx context.Context, name string, req *Request) (*providers.Generation, string, error) {
	base := providers.GenerateRequest{
		Prompt:      req.Prompt,
		System:      req.System,
		History:     req.History,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if name == req.PreferredProvider {
		base.Model = req.Model
	}

	if caller, ok := s.callers[name]; ok {
		gen, err := caller.Generate(ctx, base)
		if err != nil {
			return nil, "", err
		}
		return gen, gen.Model, nil
	}

	client, err := s.registry.GetProvider(name)
	if err != nil {
		return nil, "", err
	}

	model := base.Model
	if model == "" {
		model = s.selector.ModelFor(ctx, client, req.Mode)
	}
	base.Model = model

	if err := s.pacer.Wait(ctx, name); err != nil {
		return nil, model, providers.NewProviderError(name, model, providers.KindTransport, "request pacing interrupted", 0, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	gen, err := client.Generate(callCtx, &base)
	if err != nil {
		return nil, model, providers.ClassifyTransport(name, model, err)
	}
	if gen.Latency == 0 {
		gen.Latency = time.Since(start)
	}
	gen.Text = generation.StripQuotes(gen.Text)

	if s.usage != nil && gen.Usage.HasTokens() {
		var total *int
		if gen.Usage.TotalTokens > 0 {
			t := gen.Usage.TotalTokens
			total = &t
		}
		s.usage.Record(context.WithoutCancel(ctx), name, gen.Model, gen.Usage.InputTokens, gen.Usage.OutputTokens, total, 1)
	}
	return gen, model, nil
}

func (s *RoutingService) track(provider string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestCounter[provider]++
	if s.config.EnableLatencyTracking {
		s.latencyTracker[provider] = latency
	}
}

// Stats summarizes routing activity
type Stats struct {
	RequestCounts map[string]int           `json:"request_counts"`
	Latencies     map[string]time.Duration `json:"latencies,omitempty"`
	ModelCache    CacheStats               `json:"model_cache"`
}

// GetStats returns routing statistics
func (s *RoutingService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.requestCounter))
	for k, v := range s.requestCounter {
		counts[k] = v
	}
	stats := Stats{RequestCounts: counts, ModelCache: s.selector.Cache().Stats()}
	if s.config.EnableLatencyTracking {
		stats.Latencies = make(map[string]time.Duration, len(s.latencyTracker))
		for k, v := range s.latencyTracker {
			stats.Latencies[k] = v
		}
	}
	return stats
}

// ResetStats resets all tracking statistics
func (s *RoutingService) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latencyTracker = make(map[string]time.Duration)
	s.requestCounter = make(map[string]int)
}

// ListAvailableProviders returns all providers with usable credentials, sorted
func (s *RoutingService) ListAvailableProviders() []string {
	var out []string
	available := s.registry.Available()
	for _, name := range s.registry.ListProviders() {
		if available[name] {
			out = append(out, name)
		}
	}
	return out
}

// ProviderModels lists, for one untracked provider, its cached models and the
// model each mode would use
type ProviderModels struct {
	Provider   string          `json:"provider"`
	Available  []string        `json:"available"`
	Selected   map[Mode]string `json:"selected"`
	FetchError string          `json:"fetch_error,omitempty"`
}

// ListProviderModels reports the model choice of every untracked provider
func (s *RoutingService) ListProviderModels(ctx context.Context) []ProviderModels {
	var out []ProviderModels
	for _, name := range s.ListAvailableProviders() {
		if _, tracked := s.callers[name]; tracked {
			continue
		}
		client, err := s.registry.GetProvider(name)
		if err != nil {
			continue
		}

		pm := ProviderModels{Provider: name, Selected: make(map[Mode]string)}
		models, err := s.selector.AvailableModels(ctx, client)
		if err != nil {
			pm.FetchError = err.Error()
		}
		pm.Available = models
		for _, mode := range []Mode{ModePractice, ModeConversation} {
			pm.Selected[mode] = ChooseModel(s.selector.Ranked(name, mode), models)
		}
		out = append(out, pm)
	}
	return out
}

// Caller returns the tracked caller of a provider, if any
func (s *RoutingService) Caller(name string) (*generation.Caller, bool) {
	c, ok := s.callers[name]
	return c, ok
}

// ModeGenerator serves single generation requests through the routing
// service in a fixed mode and with an optional preferred provider.
type ModeGenerator struct {
	Service   *RoutingService
	Mode      Mode
	Preferred string
}

// Generate routes one request; the request's Model is ignored
func (g ModeGenerator) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.Generation, error) {
	return g.Service.Generate(ctx, &Request{
		Mode:              g.Mode,
		PreferredProvider: g.Preferred,
		Prompt:            req.Prompt,
		System:            req.System,
		History:           req.History,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
	})
}
