// Package usage records provider token consumption and reports it with cost estimates.
package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
)

const (
	// DefaultDays is the reporting window when none is given
	DefaultDays = 30
	// MaxDays caps the reporting window
	MaxDays = 365
)

// Stats is the aggregate usage over a window
type Stats struct {
	models.UsageTotals
	Days int `json:"days"`
}

// ModelStats is the usage of one service and model with its estimated cost
type ModelStats struct {
	models.UsageTotals
	EstimatedCost       float64 `json:"estimated_cost_usd"`
	DailyQuota          int     `json:"daily_quota,omitempty"`
	PercentOfDailyQuota float64 `json:"percent_of_daily_quota,omitempty"`
}

// ServiceStats groups model usage under one service
type ServiceStats struct {
	models.UsageTotals
	EstimatedCost float64      `json:"estimated_cost_usd"`
	Models        []ModelStats `json:"models"`
}

// Recorder persists and aggregates token usage
type Recorder struct {
	repo   repositories.TokenUsageRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder over a usage repository
func NewRecorder(repo repositories.TokenUsageRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

// Record stores one usage entry. Failures are logged and never returned,
// so a storage problem cannot interrupt a translation.
func (r *Recorder) Record(ctx context.Context, service, model string, inputTokens, outputTokens int, totalTokens *int, requests int) {
	u := models.NewTokenUsage(service, model, inputTokens, outputTokens, totalTokens, requests)
	if err := r.repo.Insert(ctx, u); err != nil {
		r.logger.Error("failed to record token usage",
			zap.String("service", service),
			zap.String("model", model),
			zap.Int("total_tokens", u.TotalTokens),
			zap.Error(err))
		return
	}
	r.logger.Debug("token usage recorded",
		zap.String("service", service),
		zap.String("model", model),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens))
}

// Stats aggregates usage for an optional service and model over the last days
func (r *Recorder) Stats(ctx context.Context, service, model string, days int) (*Stats, error) {
	days = clampDays(days)
	totals, err := r.repo.Totals(ctx, models.UsageFilter{
		Service: service,
		Model:   model,
		Since:   r.since(days),
	})
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	return &Stats{UsageTotals: *totals, Days: days}, nil
}

// ByModel aggregates usage per model, adding cost and free-tier quota figures
func (r *Recorder) ByModel(ctx context.Context, service string, days int) ([]ModelStats, error) {
	days = clampDays(days)
	rows, err := r.repo.TotalsByModel(ctx, models.UsageFilter{Service: service, Since: r.since(days)})
	if err != nil {
		return nil, fmt.Errorf("usage by model: %w", err)
	}

	out := make([]ModelStats, len(rows))
	for i, row := range rows {
		out[i] = ModelStats{
			UsageTotals:   row,
			EstimatedCost: models.EstimateCost(row.Model, row.InputTokens, row.OutputTokens),
			DailyQuota:    models.FreeTierQuota(row.Model),
		}
		// quota percentage is against a single day's allowance
		if days == 1 {
			out[i].PercentOfDailyQuota = models.QuotaPercent(row.Model, row.TotalTokens)
		}
	}
	return out, nil
}

// ByService groups ByModel results per service, sorted by service name
func (r *Recorder) ByService(ctx context.Context, days int) ([]ServiceStats, error) {
	perModel, err := r.ByModel(ctx, "", days)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*ServiceStats)
	for _, m := range perModel {
		s, ok := index[m.Service]
		if !ok {
			s = &ServiceStats{UsageTotals: models.UsageTotals{Service: m.Service}}
			index[m.Service] = s
		}
		s.InputTokens += m.InputTokens
		s.OutputTokens += m.OutputTokens
		s.TotalTokens += m.TotalTokens
		s.Requests += m.Requests
		s.EstimatedCost += m.EstimatedCost
		s.Models = append(s.Models, m)
	}

	out := make([]ServiceStats, 0, len(index))
	for _, s := range index {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func (r *Recorder) since(days int) time.Time {
	return r.now().AddDate(0, 0, -days)
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	return min(days, MaxDays)
}
