// Package providertest provides a scriptable providers.Client for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/upb/lingotube/backend/services/providers"
)

// Handler produces the outcome of one Generate call
type Handler func(req *providers.GenerateRequest) (*providers.Generation, error)

// Client is a scriptable providers.Client that records every request
type Client struct {
	mu        sync.Mutex
	name      string
	available bool
	models    []string
	listErr   error
	handler   Handler
	calls     []providers.GenerateRequest
}

// New creates an available client answering through handler
func New(name string, handler Handler) *Client {
	return &Client{name: name, available: true, handler: handler}
}

// Echo returns a handler that answers with the given text and fixed usage
func Echo(text string) Handler {
	return func(req *providers.GenerateRequest) (*providers.Generation, error) {
		return &providers.Generation{
			Text:  text,
			Model: req.Model,
			Usage: providers.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}
}

// Fail returns a provider error of the given kind for every call
func Fail(kind providers.ErrorKind, msg string) Handler {
	return func(req *providers.GenerateRequest) (*providers.Generation, error) {
		return nil, providers.NewProviderError("test", req.Model, kind, msg, 0, nil)
	}
}

// WithModels sets the result of ListModels
func (c *Client) WithModels(models ...string) *Client {
	c.models = models
	return c
}

// WithListError makes ListModels fail
func (c *Client) WithListError(err error) *Client {
	c.listErr = err
	return c
}

// SetAvailable toggles IsAvailable
func (c *Client) SetAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = available
}

// SetHandler replaces the handler
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.Generation, error) {
	c.mu.Lock()
	c.calls = append(c.calls, *req)
	h := c.handler
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen, err := h(req)
	if gen != nil && gen.Provider == "" {
		gen.Provider = c.name
	}
	return gen, err
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.models, nil
}

func (c *Client) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Calls returns a copy of the recorded requests
func (c *Client) Calls() []providers.GenerateRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]providers.GenerateRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// ModelsCalled returns the model of every recorded request, in order
func (c *Client) ModelsCalled() []string {
	calls := c.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.Model
	}
	return out
}
