package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upb/lingotube/backend/services/providers"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		wantURL string
	}{
		{providers.OpenRouter, "https://openrouter.ai/api/v1"},
		{providers.Groq, "https://api.groq.com/openai/v1"},
		{providers.Together, "https://api.together.xyz/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewAdapter(tt.name, providers.ProviderConfig{APIKey: "test-key"})
			if adapter.Name() != tt.name {
				t.Errorf("Name() = %s, want %s", adapter.Name(), tt.name)
			}
			if adapter.config.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, tt.wantURL)
			}
			if adapter.config.Timeout != 30*time.Second {
				t.Errorf("Timeout = %s, want 30s", adapter.config.Timeout)
			}
		})
	}

	if NewAdapter(providers.Groq, providers.ProviderConfig{}).IsAvailable() {
		t.Error("adapter without key should not be available")
	}
}

func TestBuilder(t *testing.T) {
	build := Builder(providers.Groq)
	if _, err := build(providers.ProviderConfig{}); err == nil {
		t.Error("expected error without api key")
	}
	client, err := build(providers.ProviderConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Name() != providers.Groq {
		t.Errorf("Name() = %s", client.Name())
	}
}

func TestAdapter_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Path = %s, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Title") != "LingoTube" {
			t.Errorf("expected openrouter X-Title header, got %q", r.Header.Get("X-Title"))
		}

		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if req.Model != "openai/gpt-3.5-turbo" || req.MaxTokens != 200 {
			t.Errorf("unexpected model/max_tokens %s/%d", req.Model, req.MaxTokens)
		}
		if len(req.Messages) != 3 || req.Messages[0].Role != "system" || req.Messages[1].Role != "assistant" || req.Messages[2].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "openai/gpt-3.5-turbo",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Bom dia  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
		}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.OpenRouter, providers.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	gen, err := adapter.Generate(context.Background(), &providers.GenerateRequest{
		Model:     "openai/gpt-3.5-turbo",
		Prompt:    "Good morning",
		System:    "You are a tutor",
		History:   []providers.Message{{Role: "assistant", Content: "Hi"}},
		MaxTokens: 200,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gen.Text != "Bom dia" {
		t.Errorf("Text = %q", gen.Text)
	}
	if gen.Provider != providers.OpenRouter {
		t.Errorf("Provider = %s", gen.Provider)
	}
	if gen.Usage.InputTokens != 9 || gen.Usage.OutputTokens != 3 || gen.Usage.TotalTokens != 12 {
		t.Errorf("unexpected usage %+v", gen.Usage)
	}
}

func TestAdapter_Generate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind providers.ErrorKind
	}{
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error": {"message": "Rate limit reached for model", "type": "tokens", "code": "rate_limit_exceeded"}}`,
			wantKind: providers.KindQuota,
		},
		{
			name:     "credits exhausted",
			status:   http.StatusPaymentRequired,
			body:     `{"error": {"message": "Insufficient credits", "code": 402}}`,
			wantKind: providers.KindQuota,
		},
		{
			name:     "model missing",
			status:   http.StatusNotFound,
			body:     `{"error": {"message": "The model does not exist", "type": "invalid_request_error", "code": "model_not_found"}}`,
			wantKind: providers.KindNotFound,
		},
		{
			name:     "invalid key",
			status:   http.StatusUnauthorized,
			body:     `{"error": {"message": "Invalid API Key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			wantKind: providers.KindAuth,
		},
		{
			name:     "plain text rate limit",
			status:   http.StatusTooManyRequests,
			body:     `slow down`,
			wantKind: providers.KindQuota,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error": {"message": "internal failure", "type": "server_error"}}`,
			wantKind: providers.KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			adapter := NewAdapter(providers.Groq, providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
			_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "llama-3.1-8b-instant", Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := providers.KindOf(err); got != tt.wantKind {
				t.Errorf("Kind = %s, want %s (err: %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestAdapter_Generate_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "x", "choices": []}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Together, providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "m", Prompt: "hi"})
	if providers.KindOf(err) != providers.KindEmpty {
		t.Errorf("expected empty error, got %v", err)
	}
}

func TestAdapter_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Path = %s, want /models", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object": "list", "data": [{"id": "llama-3.1-8b-instant"}, {"id": "mixtral-8x7b-32768"}]}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Groq, providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0] != "llama-3.1-8b-instant" {
		t.Errorf("unexpected models %v", models)
	}
}

func TestBuildRequest(t *testing.T) {
	adapter := NewAdapter(providers.Groq, providers.ProviderConfig{APIKey: "k"})
	req := adapter.buildRequest(&providers.GenerateRequest{
		Model:       "m",
		Prompt:      "p",
		Temperature: 0.5,
	})

	if len(req.Messages) != 1 || req.Messages[0].Content != "p" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}
	if req.Temperature != 0.5 {
		t.Errorf("Temperature = %v", req.Temperature)
	}
	if req.MaxTokens != 0 {
		t.Errorf("MaxTokens = %d, want 0", req.MaxTokens)
	}
}
