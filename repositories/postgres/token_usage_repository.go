package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"go.uber.org/zap"
)

// TokenUsageRepository implements the repositories.TokenUsageRepository interface
type TokenUsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTokenUsageRepository creates a new token usage repository
func NewTokenUsageRepository(db *DB, logger *zap.Logger) repositories.TokenUsageRepository {
	return &TokenUsageRepository{
		db:     db,
		logger: logger,
	}
}

// Insert records one usage entry
func (r *TokenUsageRepository) Insert(ctx context.Context, usage *models.TokenUsage) error {
	query := `
		INSERT INTO token_usage (id, service, model, input_tokens, output_tokens, total_tokens, requests, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		usage.ID,
		usage.Service,
		usage.Model,
		usage.InputTokens,
		usage.OutputTokens,
		usage.TotalTokens,
		usage.Requests,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token usage: %w", err)
	}
	return nil
}

// Totals aggregates usage matching the filter
func (r *TokenUsageRepository) Totals(ctx context.Context, filter models.UsageFilter) (*models.UsageTotals, error) {
	where, args := usageWhere(filter)
	query := `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(total_tokens), 0), COALESCE(SUM(requests), 0)
		FROM token_usage` + where

	executor := GetExecutor(ctx, r.db)
	totals := &models.UsageTotals{Service: filter.Service, Model: filter.Model}
	if err := executor.QueryRowContext(ctx, query, args...).Scan(
		&totals.InputTokens,
		&totals.OutputTokens,
		&totals.TotalTokens,
		&totals.Requests,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate token usage: %w", err)
	}
	return totals, nil
}

// TotalsByModel aggregates usage per service and model
func (r *TokenUsageRepository) TotalsByModel(ctx context.Context, filter models.UsageFilter) ([]models.UsageTotals, error) {
	where, args := usageWhere(filter)
	query := `
		SELECT service, model, SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(requests)
		FROM token_usage` + where + `
		GROUP BY service, model
		ORDER BY SUM(total_tokens) DESC`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate token usage by model: %w", err)
	}
	defer rows.Close()

	var out []models.UsageTotals
	for rows.Next() {
		var t models.UsageTotals
		if err := rows.Scan(&t.Service, &t.Model, &t.InputTokens, &t.OutputTokens, &t.TotalTokens, &t.Requests); err != nil {
			return nil, fmt.Errorf("failed to scan token usage: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token usage: %w", err)
	}
	return out, nil
}

// usageWhere builds the WHERE clause for a filter, numbering placeholders in order
func usageWhere(filter models.UsageFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Service != "" {
		add("service = $%d", filter.Service)
	}
	if filter.Model != "" {
		add("model = $%d", filter.Model)
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
