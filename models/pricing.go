package models

import "strings"

// ModelPrice is the per-token price of a model in USD
type ModelPrice struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

const perMillion = 1.0 / 1_000_000

// freeTierQuotas holds daily token limits for free-tier accounts
var freeTierQuotas = map[string]int{
	"gemini-1.5-flash":              1_000_000,
	"gemini-1.5-pro":                500_000,
	"gemini-2.0-flash":              1_000_000,
	"gemini-2.5-flash":              1_000_000,
	"gemini-2.5-pro":                500_000,
	"llama-3.1-8b-instant":          30_000,
	"llama-3.1-70b-versatile":       30_000,
	"mixtral-8x7b-32768":            30_000,
	"meta-llama/Llama-3-8b-chat-hf": 180_000,
	"openai/gpt-3.5-turbo":          50_000,
}

var modelPricing = map[string]ModelPrice{
	"gemini-1.5-flash":               {Input: 0.075 * perMillion, Output: 0.30 * perMillion},
	"gemini-1.5-pro":                 {Input: 0.50 * perMillion, Output: 1.50 * perMillion},
	"gemini-2.0-flash":               {Input: 0.075 * perMillion, Output: 0.30 * perMillion},
	"gemini-2.5-flash":               {Input: 0.075 * perMillion, Output: 0.30 * perMillion},
	"gemini-2.5-pro":                 {Input: 0.50 * perMillion, Output: 1.50 * perMillion},
	"llama-3.1-8b-instant":           {Input: 0.20 * perMillion, Output: 0.20 * perMillion},
	"llama-3.1-70b-versatile":        {Input: 0.59 * perMillion, Output: 0.79 * perMillion},
	"llama-3.3-70b-versatile":        {Input: 0.59 * perMillion, Output: 0.79 * perMillion},
	"mixtral-8x7b-32768":             {Input: 0.24 * perMillion, Output: 0.24 * perMillion},
	"meta-llama/Llama-3-8b-chat-hf":  {Input: 0.20 * perMillion, Output: 0.20 * perMillion},
	"meta-llama/Llama-3-70b-chat-hf": {Input: 0.90 * perMillion, Output: 0.90 * perMillion},
	"openai/gpt-3.5-turbo":           {Input: 0.50 * perMillion, Output: 1.50 * perMillion},
	"openai/gpt-4":                   {Input: 30.0 * perMillion, Output: 60.0 * perMillion},
	"anthropic/claude-3-haiku":       {Input: 0.25 * perMillion, Output: 1.25 * perMillion},
}

// normalizeModelName strips the "models/" prefix some providers report
func normalizeModelName(model string) string {
	return strings.TrimPrefix(model, "models/")
}

// FreeTierQuota returns the daily free-tier token limit of a model, or 0 when unknown
func FreeTierQuota(model string) int {
	return freeTierQuotas[normalizeModelName(model)]
}

// PriceFor returns the price of a model and whether it is known
func PriceFor(model string) (ModelPrice, bool) {
	p, ok := modelPricing[normalizeModelName(model)]
	return p, ok
}

// EstimateCost returns the USD cost of the given token counts for a model
func EstimateCost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := PriceFor(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)*p.Input + float64(outputTokens)*p.Output
}

// QuotaPercent returns how much of the daily free-tier quota the given total represents
func QuotaPercent(model string, totalTokens int64) float64 {
	q := FreeTierQuota(model)
	if q == 0 {
		return 0
	}
	return float64(totalTokens) / float64(q) * 100
}
