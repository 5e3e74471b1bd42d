// Package generation runs single text-generation units against a provider whose
// models are tracked for availability.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services/availability"
	"github.com/upb/lingotube/backend/services/providers"
)

// UsageRecorder persists token counts. Implementations must not fail the caller.
type UsageRecorder interface {
	Record(ctx context.Context, service, model string, inputTokens, outputTokens int, totalTokens *int, requests int)
}

// QuotaExhaustedError means every candidate model of a provider is out of quota
type QuotaExhaustedError struct {
	Provider  string
	Tried     []string
	Blocked   []string
	Validated []string
	Cause     error
}

func (e *QuotaExhaustedError) Error() string {
	msg := fmt.Sprintf("all %s models unavailable (tried: %s; blocked: %s; validated: %s)",
		e.Provider, joinOrNone(e.Tried), joinOrNone(e.Blocked), joinOrNone(e.Validated))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *QuotaExhaustedError) Unwrap() error {
	return e.Cause
}

// ErrorKind classifies the error as quota for providers.KindOf
func (e *QuotaExhaustedError) ErrorKind() providers.ErrorKind {
	return providers.KindQuota
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}

// Config tunes a Caller
type Config struct {
	MaxAttempts     int
	RequestTimeout  time.Duration
	RevalidateAfter time.Duration
	ProbePrompt     string
}

// DefaultConfig returns the standard retry settings
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		RequestTimeout:  30 * time.Second,
		RevalidateAfter: 60 * time.Minute,
		ProbePrompt:     "Translate: test",
	}
}

// Caller generates text with one provider, choosing models through a tracker
type Caller struct {
	client  providers.Client
	tracker *availability.Tracker
	pacer   *Pacer
	usage   UsageRecorder
	logger  *zap.Logger
	config  Config
}

// NewCaller creates a caller. pacer and usage may be nil.
func NewCaller(client providers.Client, tracker *availability.Tracker, pacer *Pacer, usage UsageRecorder, config Config, logger *zap.Logger) *Caller {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.RevalidateAfter <= 0 {
		config.RevalidateAfter = defaults.RevalidateAfter
	}
	if config.ProbePrompt == "" {
		config.ProbePrompt = defaults.ProbePrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		client:  client,
		tracker: tracker,
		pacer:   pacer,
		usage:   usage,
		logger:  logger.With(zap.String("provider", client.Name())),
		config:  config,
	}
}

// Provider returns the provider name
func (c *Caller) Provider() string {
	return c.client.Name()
}

// Tracker returns the tracker the caller routes with
func (c *Caller) Tracker() *availability.Tracker {
	return c.tracker
}

// Generate runs one unit. Not-found, empty and quota errors move on to the next
// model; quota also blocks the model. Any other error is returned at once. When no
// model is left the error is a *QuotaExhaustedError. A req.Model that is in the
// catalog and not blocked is tried first.
func (c *Caller) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.Generation, error) {
	var tried []string
	var lastErr error
	preferred := req.Model

	for attempt := 0; ; attempt++ {
		if attempt >= c.config.MaxAttempts && !(providers.IsQuota(lastErr) && c.hasUntried(tried)) {
			break
		}

		if c.tracker.ShouldRevalidate(c.config.RevalidateAfter) {
			c.logger.Info("revalidating models")
			c.Validate(ctx)
		}

		model, ok := c.nextModel(tried, preferred)
		if !ok {
			return nil, c.exhausted(tried, lastErr)
		}
		tried = append(tried, model)

		req.Model = model
		gen, err := c.call(ctx, &req)
		if err == nil {
			c.tracker.RecordSuccess(model)
			c.recordUsage(ctx, model, gen.Usage)
			gen.Text = StripQuotes(gen.Text)
			return gen, nil
		}
		lastErr = err

		switch providers.KindOf(err) {
		case providers.KindNotFound:
			c.tracker.RecordError(model, providers.KindNotFound)
			c.logger.Warn("model not found, trying next", zap.String("model", model), zap.Error(err))
			continue
		case providers.KindEmpty:
			c.tracker.RecordError(model, providers.KindEmpty)
			c.logger.Warn("model returned no text, trying next", zap.String("model", model), zap.Error(err))
			continue
		case providers.KindQuota:
			c.tracker.RecordError(model, providers.KindQuota)
			c.tracker.MarkValidated(model, false)
			c.logger.Warn("model out of quota, trying next", zap.String("model", model), zap.Error(err))
			if attempt >= c.config.MaxAttempts-1 && !c.hasUntried(tried) {
				return nil, c.exhausted(tried, err)
			}
			continue
		default:
			c.tracker.RecordError(model, providers.KindOther)
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s: no model succeeded after %d attempts (blocked: %s): %w",
		c.client.Name(), len(tried), joinOrNone(c.tracker.BlockedModels()), lastErr)
}

// Validate probes every catalog model through the pacer
func (c *Caller) Validate(ctx context.Context) map[string]bool {
	return c.tracker.Validate(ctx, c.probe)
}

func (c *Caller) probe(ctx context.Context, model string) error {
	_, err := c.call(ctx, &providers.GenerateRequest{Model: model, Prompt: c.config.ProbePrompt, MaxTokens: 16})
	return err
}

func (c *Caller) call(ctx context.Context, req *providers.GenerateRequest) (*providers.Generation, error) {
	if err := c.pacer.Wait(ctx, c.client.Name()); err != nil {
		return nil, pacingError(c.client.Name(), req.Model, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	gen, err := c.client.Generate(callCtx, req)
	if err != nil {
		return nil, providers.ClassifyTransport(c.client.Name(), req.Model, err)
	}
	return gen, nil
}

// pacingError classifies a failed pacer wait as transport. rate.Limiter
// reports a too-near deadline with a plain error, not context.DeadlineExceeded.
func pacingError(provider, model string, err error) error {
	return providers.NewProviderError(provider, model, providers.KindTransport, "request pacing interrupted", 0, err)
}

// nextModel prefers validated models, then any model the tracker has not blocked
func (c *Caller) nextModel(tried []string, preferred string) (string, bool) {
	skip := make(map[string]bool, len(tried))
	for _, m := range tried {
		skip[m] = true
	}
	if preferred != "" && !skip[preferred] && c.tracker.Catalog().Contains(preferred) && !c.tracker.IsBlocked(preferred) {
		return preferred, true
	}
	for _, m := range c.tracker.GetValidatedModels() {
		if !skip[m] {
			return m, true
		}
	}
	return c.tracker.GetNextModel(tried...)
}

func (c *Caller) hasUntried(tried []string) bool {
	skip := make(map[string]bool, len(tried))
	for _, m := range tried {
		skip[m] = true
	}
	for _, m := range c.tracker.GetValidatedModels() {
		if !skip[m] {
			return true
		}
	}
	return false
}

func (c *Caller) exhausted(tried []string, cause error) error {
	err := &QuotaExhaustedError{
		Provider:  c.client.Name(),
		Tried:     tried,
		Blocked:   c.tracker.BlockedModels(),
		Validated: c.tracker.GetValidatedModels(),
		Cause:     cause,
	}
	c.logger.Warn("provider exhausted", zap.Strings("tried", tried), zap.Strings("blocked", err.Blocked))
	return err
}

func (c *Caller) recordUsage(ctx context.Context, model string, usage providers.Usage) {
	if c.usage == nil || !usage.HasTokens() {
		return
	}
	var total *int
	if usage.TotalTokens > 0 {
		t := usage.TotalTokens
		total = &t
	}
	c.usage.Record(context.WithoutCancel(ctx), c.client.Name(), model, usage.InputTokens, usage.OutputTokens, total, 1)
}

// StripQuotes removes one pair of wrapping double quotes and then one pair of single quotes
func StripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		s = s[1 : len(s)-1]
	}
	return s
}
