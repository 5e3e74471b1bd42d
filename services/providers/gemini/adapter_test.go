package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/upb/lingotube/backend/services/providers"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter.Name() != providers.Gemini {
		t.Errorf("Name() = %s, want gemini", adapter.Name())
	}
	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}
	if adapter.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", adapter.config.Timeout)
	}
	if !adapter.IsAvailable() {
		t.Error("adapter with key should be available")
	}
	if NewAdapter(providers.ProviderConfig{}).IsAvailable() {
		t.Error("adapter without key should not be available")
	}
}

func TestBuild_RequiresKey(t *testing.T) {
	if _, err := Build(providers.ProviderConfig{}); err == nil {
		t.Error("expected error without api key")
	}
	client, err := Build(providers.ProviderConfig{APIKey: "k"})
	if err != nil || client == nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Errorf("Path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("x-goog-api-key = %s", r.Header.Get("x-goog-api-key"))
		}
		if r.URL.RawQuery != "" {
			t.Errorf("query should be empty, got %s", r.URL.RawQuery)
		}

		body, _ := io.ReadAll(r.Body)
		var req generateContentRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if len(req.Contents) != 2 {
			t.Fatalf("expected history plus prompt, got %d contents", len(req.Contents))
		}
		if req.Contents[0].Role != "model" {
			t.Errorf("assistant history should map to model role, got %s", req.Contents[0].Role)
		}
		if req.Contents[1].Parts[0].Text != "Translate: hello" {
			t.Errorf("unexpected prompt %q", req.Contents[1].Parts[0].Text)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be brief" {
			t.Error("expected system instruction")
		}
		if req.GenerationConfig == nil || req.GenerationConfig.MaxOutputTokens != 256 {
			t.Error("expected maxOutputTokens 256")
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "olá "}, {"text": "mundo"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
		}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "test-key", BaseURL: server.URL + "/"})
	gen, err := adapter.Generate(context.Background(), &providers.GenerateRequest{
		Model:     "gemini-1.5-flash",
		Prompt:    "Translate: hello",
		System:    "be brief",
		History:   []providers.Message{{Role: "assistant", Content: "hi"}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gen.Text != "olá mundo" {
		t.Errorf("Text = %q", gen.Text)
	}
	if gen.Provider != providers.Gemini || gen.Model != "gemini-1.5-flash" {
		t.Errorf("unexpected provider/model %s/%s", gen.Provider, gen.Model)
	}
	if gen.Usage.InputTokens != 12 || gen.Usage.OutputTokens != 4 || gen.Usage.TotalTokens != 16 {
		t.Errorf("unexpected usage %+v", gen.Usage)
	}
}

func TestAdapter_Generate_PrefixedModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("Path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	if _, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "models/gemini-2.0-flash", Prompt: "hi"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestAdapter_Generate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  providers.ErrorKind
		wantRetry time.Duration
	}{
		{
			name:      "quota",
			status:    http.StatusTooManyRequests,
			body:      `{"error": {"code": 429, "message": "You exceeded your current quota. Please retry in 21s.", "status": "RESOURCE_EXHAUSTED"}}`,
			wantKind:  providers.KindQuota,
			wantRetry: 21 * time.Second,
		},
		{
			name:     "unknown model",
			status:   http.StatusNotFound,
			body:     `{"error": {"code": 404, "message": "models/gemini-x is not found", "status": "NOT_FOUND"}}`,
			wantKind: providers.KindNotFound,
		},
		{
			name:     "bad key",
			status:   http.StatusBadRequest,
			body:     `{"error": {"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"}}`,
			wantKind: providers.KindAuth,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `upstream exploded`,
			wantKind: providers.KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
			_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "gemini-x", Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}

			provErr, ok := err.(*providers.ProviderError)
			if !ok {
				t.Fatalf("expected *ProviderError, got %T", err)
			}
			if provErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", provErr.Kind, tt.wantKind)
			}
			if provErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.status)
			}
			if tt.wantRetry > 0 && provErr.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %s, want %s", provErr.RetryAfter, tt.wantRetry)
			}
		})
	}
}

func TestAdapter_Generate_BlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "m", Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "SAFETY") {
		t.Fatalf("expected blocked prompt error, got %v", err)
	}
	if providers.KindOf(err) != providers.KindEmpty {
		t.Errorf("Kind = %s, want empty", providers.KindOf(err))
	}
}

func TestAdapter_Generate_EmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"text": "  "}]}, "finishReason": "SAFETY"}]}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "m", Prompt: "hi"})
	if providers.KindOf(err) != providers.KindEmpty {
		t.Errorf("Kind = %s, want empty (err: %v)", providers.KindOf(err), err)
	}
}

func TestAdapter_TransportErrorsHideKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "SECRET-KEY-123", BaseURL: baseURL})

	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "gemini-1.5-flash", Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if providers.KindOf(err) != providers.KindTransport {
		t.Errorf("Kind = %s, want transport", providers.KindOf(err))
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Errorf("Generate error leaks the key: %v", err)
	}

	_, err = adapter.ListModels(context.Background())
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Errorf("ListModels error leaks the key: %v", err)
	}
}

func TestAdapter_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "m", Prompt: "hi"})
	if providers.KindOf(err) != providers.KindTransport {
		t.Errorf("Kind = %s, want transport (err: %v)", providers.KindOf(err), err)
	}
}

func TestAdapter_ListModels(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/v1beta/models" {
			t.Errorf("Path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" || r.URL.Query().Has("key") {
			t.Error("key must travel in the x-goog-api-key header only")
		}
		if r.URL.Query().Get("pageToken") == "" {
			io.WriteString(w, `{
				"models": [
					{"name": "models/gemini-1.5-flash", "supportedGenerationMethods": ["generateContent", "countTokens"]},
					{"name": "models/embedding-001", "supportedGenerationMethods": ["embedContent"]}
				],
				"nextPageToken": "p2"
			}`)
			return
		}
		io.WriteString(w, `{"models": [{"name": "models/gemini-2.5-pro", "supportedGenerationMethods": ["generateContent"]}]}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}

	if calls != 2 {
		t.Errorf("expected 2 page requests, got %d", calls)
	}
	if len(models) != 2 || models[0] != "gemini-1.5-flash" || models[1] != "gemini-2.5-pro" {
		t.Errorf("unexpected models %v", models)
	}
}

func TestAdapter_ListModels_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error": {"code": 403, "message": "permission denied", "status": "PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	_, err := adapter.ListModels(context.Background())
	if !providers.IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}
