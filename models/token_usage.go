package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenUsage records the tokens consumed by one or more provider requests
type TokenUsage struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Service      string    `json:"service" db:"service"`
	Model        string    `json:"model" db:"model"`
	InputTokens  int       `json:"input_tokens" db:"input_tokens"`
	OutputTokens int       `json:"output_tokens" db:"output_tokens"`
	TotalTokens  int       `json:"total_tokens" db:"total_tokens"`
	Requests     int       `json:"requests" db:"requests"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the TokenUsage model
func (TokenUsage) TableName() string {
	return "token_usage"
}

// NewTokenUsage creates a usage record. A nil total is computed as input + output.
func NewTokenUsage(service, model string, input, output int, total *int, requests int) *TokenUsage {
	t := input + output
	if total != nil {
		t = *total
	}
	if requests <= 0 {
		requests = 1
	}
	return &TokenUsage{
		ID:           uuid.New(),
		Service:      service,
		Model:        model,
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  t,
		Requests:     requests,
		CreatedAt:    time.Now(),
	}
}

// UsageTotals aggregates token usage over a time window
type UsageTotals struct {
	Service      string `json:"service,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	Requests     int64  `json:"requests"`
}

// UsageFilter narrows usage aggregation queries
type UsageFilter struct {
	Service string
	Model   string
	Since   time.Time
}
