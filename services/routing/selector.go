package routing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/lingotube/backend/services/providers"
)

// Mode is the request context used to rank providers and models
type Mode string

const (
	// ModePractice favors quality-oriented providers
	ModePractice Mode = "practice"
	// ModeConversation favors low-latency providers
	ModeConversation Mode = "conversation"
)

// ParseMode accepts practice, conversation and the legacy alias writing.
// An empty string is practice.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "practice", "writing":
		return ModePractice, nil
	case "conversation", "chat":
		return ModeConversation, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// DefaultProviderPriority returns the static provider order per mode
func DefaultProviderPriority() map[Mode][]string {
	return map[Mode][]string{
		ModePractice:     {providers.Gemini, providers.OpenRouter, providers.Together, providers.Groq},
		ModeConversation: {providers.Groq, providers.Together, providers.Gemini, providers.OpenRouter},
	}
}

// RankedModels holds the static model preference of each provider per mode
type RankedModels map[string]map[Mode][]string

// DefaultRankedModels returns the built-in model rankings of the OpenAI-compatible providers
func DefaultRankedModels() RankedModels {
	return RankedModels{
		providers.OpenRouter: {
			ModePractice: {
				"openai/gpt-4",
				"openai/gpt-3.5-turbo",
				"anthropic/claude-3-haiku",
				"google/gemini-pro",
				"meta-llama/llama-3-8b-instruct",
			},
			ModeConversation: {
				"openai/gpt-3.5-turbo",
				"anthropic/claude-3-haiku",
				"openai/gpt-4",
				"google/gemini-pro",
				"meta-llama/llama-3-8b-instruct",
			},
		},
		providers.Groq: {
			ModePractice: {
				"llama-3.3-70b-versatile",
				"mixtral-8x7b-32768",
				"llama-3.1-70b-versatile",
				"llama-3.1-8b-instant",
			},
			ModeConversation: {
				"llama-3.1-8b-instant",
				"llama-3.1-70b-versatile",
				"llama-3.3-70b-versatile",
				"mixtral-8x7b-32768",
			},
		},
		providers.Together: {
			ModePractice: {
				"meta-llama/Llama-3-70b-chat-hf",
				"meta-llama/Llama-3-8b-chat-hf",
				"mistralai/Mixtral-8x7B-Instruct-v0.1",
			},
			ModeConversation: {
				"meta-llama/Llama-3-8b-chat-hf",
				"meta-llama/Llama-3-70b-chat-hf",
				"mistralai/Mixtral-8x7B-Instruct-v0.1",
			},
		},
	}
}

// Selector orders providers for a request and picks models for the
// providers that are not tracked by an availability tracker.
type Selector struct {
	priority map[Mode][]string
	ranked   RankedModels
	cache    *ModelCache
	fetches  singleflight.Group
	logger   *zap.Logger
}

// NewSelector creates a selector. Nil maps fall back to the built-in tables.
func NewSelector(priority map[Mode][]string, ranked RankedModels, cache *ModelCache, logger *zap.Logger) *Selector {
	if priority == nil {
		priority = DefaultProviderPriority()
	}
	if ranked == nil {
		ranked = DefaultRankedModels()
	}
	if cache == nil {
		cache = NewModelCache(0, DefaultModelCacheTTL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		priority: priority,
		ranked:   ranked,
		cache:    cache,
		logger:   logger,
	}
}

// Cache returns the model list cache
func (s *Selector) Cache() *ModelCache {
	return s.cache
}

// Select orders the available providers for mode. A configured preferred
// provider goes first; providers without credentials are left out.
func (s *Selector) Select(mode Mode, preferred string, available map[string]bool) []string {
	var order []string
	seen := make(map[string]bool)

	if preferred != "" && available[preferred] {
		order = append(order, preferred)
		seen[preferred] = true
	}
	for _, name := range s.priority[mode] {
		if !seen[name] && available[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	return order
}

// Ranked returns the static ranking of a provider's models for mode
func (s *Selector) Ranked(provider string, mode Mode) []string {
	return s.ranked[provider][mode]
}

// ChooseModel picks a model from the ranking given the models known to be
// available. With no known models the top ranked entry is returned.
func ChooseModel(ranked, available []string) string {
	if len(available) > 0 {
		known := make(map[string]bool, len(available))
		for _, m := range available {
			known[m] = true
		}
		for _, m := range ranked {
			if known[m] {
				return m
			}
		}
		return available[0]
	}
	if len(ranked) > 0 {
		return ranked[0]
	}
	return ""
}

// ModelFor chooses the model to send to client for mode, fetching the
// provider's model list when the cache holds none.
func (s *Selector) ModelFor(ctx context.Context, client providers.Client, mode Mode) string {
	available, err := s.AvailableModels(ctx, client)
	if err != nil {
		s.logger.Warn("model list unavailable, using ranked default",
			zap.String("provider", client.Name()), zap.Error(err))
	}
	return ChooseModel(s.Ranked(client.Name(), mode), available)
}

// AvailableModels returns the cached model list of a provider, fetching it once
// when missing. Concurrent callers share a single fetch.
func (s *Selector) AvailableModels(ctx context.Context, client providers.Client) ([]string, error) {
	name := client.Name()
	if models := s.cache.Get(name); models != nil {
		return models, nil
	}

	v, err, _ := s.fetches.Do(name, func() (interface{}, error) {
		models, err := client.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(name, models)
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
