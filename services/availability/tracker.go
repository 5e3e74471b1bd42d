// Package availability tracks which models of a provider are currently safe to call.
//
// A Tracker belongs to one credential session. Blocking is driven only by quota
// signals seen during real use; validation probes are advisory and never block.
package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services/providers"
)

// Outcome is the result of probing one model during validation
type Outcome string

const (
	// ValidationAvailable means the probe succeeded
	ValidationAvailable Outcome = "available"
	// ValidationInvalid means the probe failed for a non-quota reason
	ValidationInvalid Outcome = "invalid"
	// ValidationInconclusive means the probe hit a quota signal, which may be a
	// transient tier restriction rather than exhaustion
	ValidationInconclusive Outcome = "inconclusive"
)

// Prober issues one minimal test call against a model identifier
type Prober func(ctx context.Context, model string) error

// Policy holds the tunable behavior of a tracker
type Policy struct {
	// TreatUnknownAsAvailable keeps never-validated models in GetValidatedModels
	TreatUnknownAsAvailable bool

	// RevalidateAfter is the default max age used by ShouldRevalidate
	RevalidateAfter time.Duration

	// UsageWindow bounds the success history kept per model
	UsageWindow time.Duration
}

// DefaultPolicy returns the optimistic policy
func DefaultPolicy() Policy {
	return Policy{
		TreatUnknownAsAvailable: true,
		RevalidateAfter:         60 * time.Minute,
		UsageWindow:             time.Hour,
	}
}

// ModelState is a read-only view of one model
type ModelState struct {
	Model       string     `json:"model"`
	Validated   *bool      `json:"validated"`
	Blocked     bool       `json:"blocked"`
	ErrorCount  int        `json:"error_count"`
	RecentUses  int        `json:"recent_uses"`
	LastOutcome Outcome    `json:"last_outcome,omitempty"`
	Categories  []Category `json:"categories"`
}

// Tracker is the availability state machine of one provider within a session
type Tracker struct {
	mu      sync.Mutex
	catalog *Catalog
	policy  Policy
	logger  *zap.Logger
	now     func() time.Time

	blocked        map[string]bool
	errorCount     map[string]int
	validated      map[string]bool
	outcomes       map[string]Outcome
	successes      map[string][]time.Time
	lastValidation time.Time
}

// NewTracker creates a tracker over the given catalog
func NewTracker(catalog *Catalog, policy Policy, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.RevalidateAfter <= 0 {
		policy.RevalidateAfter = 60 * time.Minute
	}
	if policy.UsageWindow <= 0 {
		policy.UsageWindow = time.Hour
	}
	return &Tracker{
		catalog:    catalog,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
		blocked:    make(map[string]bool),
		errorCount: make(map[string]int),
		validated:  make(map[string]bool),
		outcomes:   make(map[string]Outcome),
		successes:  make(map[string][]time.Time),
	}
}

// Catalog returns the tracker's catalog
func (t *Tracker) Catalog() *Catalog {
	return t.catalog
}

// GetValidatedModels returns catalog models that are not blocked and not known
// to be invalid, in priority order.
func (t *Tracker) GetValidatedModels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, m := range t.catalog.models {
		if t.blocked[m] {
			continue
		}
		ok, known := t.validated[m]
		if known && !ok {
			continue
		}
		if !known && !t.policy.TreatUnknownAsAvailable {
			continue
		}
		out = append(out, m)
	}
	return out
}

// GetNextModel returns the first catalog model outside exclude and the blocked set.
// It reports false when every model is exhausted.
func (t *Tracker) GetNextModel(exclude ...string) (string, bool) {
	skip := make(map[string]bool, len(exclude))
	for _, m := range exclude {
		skip[m] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.catalog.models {
		if !skip[m] && !t.blocked[m] {
			return m, true
		}
	}
	return "", false
}

// Block marks a model unusable until Unblock. Each call counts as an error.
func (t *Tracker) Block(model, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.block(model, reason)
}

func (t *Tracker) block(model, reason string) {
	t.errorCount[model]++
	if t.blocked[model] {
		return
	}
	t.blocked[model] = true
	t.logger.Warn("model blocked",
		zap.String("model", model),
		zap.String("reason", reason),
		zap.Int("error_count", t.errorCount[model]),
	)
}

// Unblock lifts a block. It is a no-op for models that are not blocked.
func (t *Tracker) Unblock(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unblock(model)
}

func (t *Tracker) unblock(model string) {
	if !t.blocked[model] {
		return
	}
	delete(t.blocked, model)
	t.logger.Info("model unblocked", zap.String("model", model))
}

// IsBlocked reports whether the model is blocked
func (t *Tracker) IsBlocked(model string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked[model]
}

// BlockedModels returns the blocked set, sorted
func (t *Tracker) BlockedModels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockedList()
}

func (t *Tracker) blockedList() []string {
	out := make([]string, 0, len(t.blocked))
	for m := range t.blocked {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// RecordSuccess appends a use and prunes history older than the usage window
func (t *Tracker) RecordSuccess(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.successes[model] = append(t.successes[model], now)
	t.prune(model, now)
}

func (t *Tracker) prune(model string, now time.Time) {
	cutoff := now.Add(-t.policy.UsageWindow)
	history := t.successes[model]
	i := 0
	for i < len(history) && !history[i].After(cutoff) {
		i++
	}
	if i == len(history) {
		delete(t.successes, model)
		return
	}
	t.successes[model] = history[i:]
}

// RecentUses returns how many successes fall inside the usage window
func (t *Tracker) RecentUses(model string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(model, t.now())
	return len(t.successes[model])
}

// RecordError counts a failure. A quota failure also blocks the model.
func (t *Tracker) RecordError(model string, kind providers.ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errorCount[model]++
	if kind == providers.KindQuota {
		t.block(model, string(kind))
	}
}

// ErrorCount returns the number of errors recorded for a model
func (t *Tracker) ErrorCount(model string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorCount[model]
}

// MarkValidated records the validation flag from outside a probe run
func (t *Tracker) MarkValidated(model string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.validated[model] = ok
}

// Validate probes every catalog model, trying the bare identifier and then the
// models/ prefixed form. It never blocks a model: a quota signal is inconclusive
// and lifts any existing block. It never returns an error.
func (t *Tracker) Validate(ctx context.Context, probe Prober) map[string]bool {
	results := make(map[string]bool, t.catalog.Len())

	for _, model := range t.catalog.Models() {
		outcome, err := probeModel(ctx, probe, model)

		t.mu.Lock()
		t.outcomes[model] = outcome
		switch outcome {
		case ValidationAvailable:
			t.validated[model] = true
			t.unblock(model)
			results[model] = true
		case ValidationInconclusive:
			t.unblock(model)
			results[model] = false
			t.logger.Info("validation inconclusive, model left usable",
				zap.String("model", model), zap.Error(err))
		default:
			t.validated[model] = false
			t.errorCount[model]++
			results[model] = false
			t.logger.Debug("model failed validation",
				zap.String("model", model),
				zap.String("kind", string(providers.KindOf(err))),
				zap.Error(err))
		}
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.lastValidation = t.now()
	t.mu.Unlock()

	available := 0
	for _, ok := range results {
		if ok {
			available++
		}
	}
	t.logger.Info("model validation finished",
		zap.Int("available", available),
		zap.Int("total", len(results)))

	return results
}

func probeModel(ctx context.Context, probe Prober, model string) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = ValidationInvalid
			err = providers.NewProviderError("", model, providers.KindOther, "probe panicked", 0, nil)
		}
	}()

	for _, variant := range []string{model, "models/" + model} {
		err = probe(ctx, variant)
		if err == nil {
			return ValidationAvailable, nil
		}
		if !providers.IsNotFound(err) {
			break
		}
	}

	if providers.IsQuota(err) {
		return ValidationInconclusive, err
	}
	return ValidationInvalid, err
}

// ShouldRevalidate reports whether no validation ran within maxAge.
// A zero maxAge uses the policy default.
func (t *Tracker) ShouldRevalidate(maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = t.policy.RevalidateAfter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastValidation.IsZero() {
		return true
	}
	return t.now().Sub(t.lastValidation) > maxAge
}

// LastValidation returns when Validate last finished
func (t *Tracker) LastValidation() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastValidation
}

// States returns a view of every catalog model plus any blocked model outside it
func (t *Tracker) States() []ModelState {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := t.catalog.Models()
	for _, m := range t.blockedList() {
		if !t.catalog.Contains(m) {
			names = append(names, m)
		}
	}

	now := t.now()
	states := make([]ModelState, 0, len(names))
	for _, m := range names {
		t.prune(m, now)
		st := ModelState{
			Model:       m,
			Blocked:     t.blocked[m],
			ErrorCount:  t.errorCount[m],
			RecentUses:  len(t.successes[m]),
			LastOutcome: t.outcomes[m],
			Categories:  Categorize(m),
		}
		if ok, known := t.validated[m]; known {
			v := ok
			st.Validated = &v
		}
		states = append(states, st)
	}
	return states
}

// Snapshot returns the state that survives restarts
func (t *Tracker) Snapshot() *models.TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int, len(t.errorCount))
	for m, n := range t.errorCount {
		counts[m] = n
	}
	return &models.TrackerSnapshot{
		Blocked:    t.blockedList(),
		ErrorCount: counts,
		UpdatedAt:  t.now(),
	}
}

// Restore merges a persisted snapshot into the tracker. Error counts never decrease.
func (t *Tracker) Restore(snapshot *models.TrackerSnapshot) {
	if snapshot.IsEmpty() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range snapshot.Blocked {
		t.blocked[m] = true
	}
	for m, n := range snapshot.ErrorCount {
		if n > t.errorCount[m] {
			t.errorCount[m] = n
		}
	}
}

// LoadBlocked marks models blocked without counting an error. Used when resuming a job.
func (t *Tracker) LoadBlocked(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range names {
		t.blocked[m] = true
	}
}
