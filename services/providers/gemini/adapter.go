package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/upb/lingotube/backend/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
	modelPrefix    = "models/"
	apiKeyHeader   = "x-goog-api-key"
)

// Adapter implements providers.Client for the Gemini REST API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Gemini adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Build satisfies providers.ProviderBuilder
func Build(config providers.ProviderConfig) (providers.Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	return NewAdapter(config), nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providers.Gemini
}

// IsAvailable reports whether a key is configured
func (a *Adapter) IsAvailable() bool {
	return a.config.APIKey != ""
}

// Generate performs a generateContent call
func (a *Adapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.Generation, error) {
	startTime := time.Now()

	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, providers.KindOther, "failed to marshal request", 0, err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s:generateContent", a.config.BaseURL, apiVersion, modelPath(req.Model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, providers.KindOther, "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.setHeaders(httpReq)

	respBody, status, err := a.do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransport(a.Name(), req.Model, err)
	}
	if status != http.StatusOK {
		return nil, a.handleErrorResponse(req.Model, status, respBody)
	}

	var resp generateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, providers.KindOther, "failed to unmarshal response", status, err)
	}

	text := resp.text()
	if text == "" {
		reason := "empty response"
		if resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, providers.NewProviderError(a.Name(), req.Model, providers.KindEmpty, reason, status, nil)
	}

	return &providers.Generation{
		Text:     text,
		Model:    req.Model,
		Provider: a.Name(),
		Usage: providers.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		},
		Latency: time.Since(startTime),
	}, nil
}

// ListModels returns the models that support generateContent, without the models/ prefix
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	var models []string
	pageToken := ""

	for {
		endpoint := fmt.Sprintf("%s/%s/models", a.config.BaseURL, apiVersion)
		if pageToken != "" {
			endpoint += "?" + url.Values{"pageToken": {pageToken}}.Encode()
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, providers.NewProviderError(a.Name(), "", providers.KindOther, "failed to create request", 0, err)
		}
		a.setHeaders(httpReq)

		respBody, status, err := a.do(httpReq)
		if err != nil {
			return nil, providers.ClassifyTransport(a.Name(), "", err)
		}
		if status != http.StatusOK {
			return nil, a.handleErrorResponse("", status, respBody)
		}

		var page listModelsResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, providers.NewProviderError(a.Name(), "", providers.KindOther, "failed to unmarshal models", status, err)
		}
		for _, m := range page.Models {
			if m.supports("generateContent") {
				models = append(models, strings.TrimPrefix(m.Name, modelPrefix))
			}
		}

		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

// setHeaders attaches the key as a header so it never appears in a URL,
// and therefore never in a transport error
func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set(apiKeyHeader, a.config.APIKey)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
}

func (a *Adapter) do(req *http.Request) ([]byte, int, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (a *Adapter) buildRequest(req *providers.GenerateRequest) *generateContentRequest {
	out := &generateContentRequest{}

	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, msg := range req.History {
		role := "user"
		if msg.Role == "assistant" || msg.Role == "model" {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: msg.Content}}})
	}
	out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: req.Prompt}}})

	if req.MaxTokens > 0 || req.Temperature > 0 {
		out.GenerationConfig = &generationConfig{}
		if req.MaxTokens > 0 {
			out.GenerationConfig.MaxOutputTokens = req.MaxTokens
		}
		if req.Temperature > 0 {
			t := req.Temperature
			out.GenerationConfig.Temperature = &t
		}
	}
	return out
}

// handleErrorResponse turns a non-200 answer into a classified provider error
func (a *Adapter) handleErrorResponse(model string, statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		if errResp.Error.Status != "" {
			message = errResp.Error.Status + ": " + message
		}
	}

	kind := providers.ClassifyStatus(statusCode, message)
	pe := providers.NewProviderError(a.Name(), model, kind, message, statusCode, nil)
	if kind == providers.KindQuota {
		pe.RetryAfter = providers.RetryDelay(string(body))
	}
	return pe
}

func modelPath(model string) string {
	if strings.HasPrefix(model, modelPrefix) {
		return model
	}
	return modelPrefix + model
}

// Gemini wire types

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// text concatenates the parts of the first candidate
func (r *generateContentResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

type modelInfo struct {
	Name                       string   `json:"name"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

func (m modelInfo) supports(method string) bool {
	for _, s := range m.SupportedGenerationMethods {
		if s == method {
			return true
		}
	}
	return false
}

type listModelsResponse struct {
	Models        []modelInfo `json:"models"`
	NextPageToken string      `json:"nextPageToken"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
