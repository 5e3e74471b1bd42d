package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider names
const (
	Gemini     = "gemini"
	OpenRouter = "openrouter"
	Groq       = "groq"
	Together   = "together"
)

// Names lists every supported provider
var Names = []string{Gemini, OpenRouter, Groq, Together}

// Known reports whether name is a supported provider
func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Client represents one text-generation provider reached with a single credential
type Client interface {
	// Name returns the provider name (e.g., "gemini", "groq")
	Name() string

	// Generate sends a prompt and returns the normalized result
	Generate(ctx context.Context, req *GenerateRequest) (*Generation, error)

	// ListModels fetches the model identifiers the credential can use
	ListModels(ctx context.Context) ([]string, error)

	// IsAvailable reports whether the client holds a usable credential
	IsAvailable() bool
}

// GenerateRequest represents a single text-generation call
type GenerateRequest struct {
	// Model identifier within the provider's namespace
	Model string `json:"model"`

	// Prompt is the user turn
	Prompt string `json:"prompt"`

	// System is an optional instruction sent before the conversation
	System string `json:"system,omitempty"`

	// History holds earlier conversation turns, oldest first
	History []Message `json:"history,omitempty"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role" validate:"required,oneof=system user assistant"`

	// Content is the message text
	Content string `json:"content" validate:"max=8000"`
}

// Usage represents token usage statistics
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// HasTokens reports whether the provider reported any token counts
func (u Usage) HasTokens() bool {
	return u.InputTokens > 0 || u.OutputTokens > 0 || u.TotalTokens > 0
}

// Generation is the provider-independent result of a Generate call
type Generation struct {
	Text     string        `json:"text"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Usage    Usage         `json:"usage"`
	Latency  time.Duration `json:"latency"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for each request
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// ErrorKind classifies a provider failure for routing decisions
type ErrorKind string

const (
	// KindAuth is an invalid or unauthorized credential
	KindAuth ErrorKind = "auth"
	// KindQuota is a rate-limit or quota exhaustion signal
	KindQuota ErrorKind = "quota"
	// KindNotFound is a model identifier the provider does not recognize
	KindNotFound ErrorKind = "not_found"
	// KindEmpty is an answer without usable text, such as a blocked prompt
	KindEmpty ErrorKind = "empty"
	// KindTransport is a network failure or timeout
	KindTransport ErrorKind = "transport"
	// KindOther is any other provider failure
	KindOther ErrorKind = "other"
)

// ProviderError represents a classified error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Model the call was addressed to
	Model string

	// Kind is the classification used by the routing core
	Kind ErrorKind

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// RetryAfter is the provider's suggested wait, when it sent one
	RetryAfter time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	prefix := e.Provider
	if e.Model != "" {
		prefix = fmt.Sprintf("%s/%s", e.Provider, e.Model)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", prefix, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ErrorKind returns the classification, so KindOf can see it through wrappers
func (e *ProviderError) ErrorKind() ErrorKind {
	return e.Kind
}

// NewProviderError creates a new provider error
func NewProviderError(provider, model string, kind ErrorKind, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// KindOf returns the classification of an error, looking for any error in the
// chain with an ErrorKind method. Unclassified errors are KindOther, except
// context deadlines which are transport.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var classified interface{ ErrorKind() ErrorKind }
	if errors.As(err, &classified) {
		return classified.ErrorKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindOther
}

// IsQuota checks if an error is a quota or rate-limit error
func IsQuota(err error) bool {
	return KindOf(err) == KindQuota
}

// IsNotFound checks if an error is an unknown-model error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsAuth checks if an error is a credential error
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}
