package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/upb/lingotube/backend/services/providers"
)

// Default endpoints of the OpenAI-compatible providers
var defaultBaseURLs = map[string]string{
	providers.OpenRouter: "https://openrouter.ai/api/v1",
	providers.Groq:       "https://api.groq.com/openai/v1",
	providers.Together:   "https://api.together.xyz/v1",
}

// Adapter implements providers.Client for any OpenAI-compatible chat completions API
type Adapter struct {
	name   string
	config providers.ProviderConfig
	client *goopenai.Client
}

// NewAdapter creates an adapter for the named provider
func NewAdapter(name string, config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURLs[name]
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if name == providers.OpenRouter {
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		if _, ok := config.Headers["HTTP-Referer"]; !ok {
			config.Headers["HTTP-Referer"] = "https://lingotube.app"
		}
		if _, ok := config.Headers["X-Title"]; !ok {
			config.Headers["X-Title"] = "LingoTube"
		}
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout:   config.Timeout,
		Transport: &headerTransport{headers: config.Headers, base: http.DefaultTransport},
	}

	return &Adapter{
		name:   name,
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
	}
}

// Builder returns a providers.ProviderBuilder for the named provider
func Builder(name string) providers.ProviderBuilder {
	return func(config providers.ProviderConfig) (providers.Client, error) {
		if config.APIKey == "" {
			return nil, fmt.Errorf("%s: api key is required", name)
		}
		return NewAdapter(name, config), nil
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// IsAvailable reports whether a key is configured
func (a *Adapter) IsAvailable() bool {
	return a.config.APIKey != ""
}

// Generate performs a chat completion request
func (a *Adapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.Generation, error) {
	startTime := time.Now()

	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req))
	if err != nil {
		return nil, a.classify(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.name, req.Model, providers.KindEmpty, "response has no choices", 0, nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, providers.NewProviderError(a.name, req.Model, providers.KindEmpty, "empty response", 0, nil)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	return &providers.Generation{
		Text:     text,
		Model:    model,
		Provider: a.name,
		Usage: providers.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
	}, nil
}

// ListModels returns the model identifiers exposed by the provider
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	list, err := a.client.ListModels(ctx)
	if err != nil {
		return nil, a.classify("", err)
	}
	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

// buildRequest converts the unified request to the chat completions format
func (a *Adapter) buildRequest(req *providers.GenerateRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.History {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == "assistant" || msg.Role == "model" {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})

	out := goopenai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = float32(req.Temperature)
	}
	return out
}

// classify converts go-openai errors into provider errors
func (a *Adapter) classify(model string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code != "" {
			msg = code + ": " + msg
		}
		kind := providers.ClassifyStatus(apiErr.HTTPStatusCode, msg)
		pe := providers.NewProviderError(a.name, model, kind, apiErr.Message, apiErr.HTTPStatusCode, err)
		if kind == providers.KindQuota {
			pe.RetryAfter = providers.RetryDelay(msg)
		}
		return pe
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		msg := err.Error()
		kind := providers.ClassifyStatus(reqErr.HTTPStatusCode, msg)
		pe := providers.NewProviderError(a.name, model, kind, "request failed", reqErr.HTTPStatusCode, err)
		if kind == providers.KindQuota {
			pe.RetryAfter = providers.RetryDelay(msg)
		}
		return pe
	}

	return providers.ClassifyTransport(a.name, model, err)
}

// headerTransport adds provider-specific headers to every request
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
