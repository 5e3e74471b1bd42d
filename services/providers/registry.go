package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry holds the provider clients of one credential set.
// Each session builds its own registry; there is no process-wide instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Client
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Client),
	}
}

// RegisterProvider registers a provider client
func (r *Registry) RegisterProvider(client Client) error {
	if client == nil {
		return errors.New("provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = client
	return nil
}

// GetProvider retrieves a provider by name
func (r *Registry) GetProvider(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return client, nil
}

// ListProviders returns the names of all registered providers, sorted
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the set of providers that currently hold usable credentials
func (r *Registry) Available() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make(map[string]bool, len(r.providers))
	for name, client := range r.providers {
		if client.IsAvailable() {
			available[name] = true
		}
	}
	return available
}

// ProviderBuilder is a function that creates a provider client
type ProviderBuilder func(config ProviderConfig) (Client, error)

// RegistryBuilder helps build a registry with multiple providers
type RegistryBuilder struct {
	registry *Registry
	builders map[string]ProviderBuilder
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		registry: NewRegistry(),
		builders: make(map[string]ProviderBuilder),
	}
}

// WithProviderBuilder registers a provider builder
func (rb *RegistryBuilder) WithProviderBuilder(name string, builder ProviderBuilder) *RegistryBuilder {
	rb.builders[name] = builder
	return rb
}

// Build creates a client for every config that holds an API key and returns the registry.
// Providers without a key are skipped entirely.
func (rb *RegistryBuilder) Build(configs map[string]ProviderConfig) (*Registry, error) {
	for name, config := range configs {
		if config.APIKey == "" {
			continue
		}
		builder, exists := rb.builders[name]
		if !exists {
			return nil, fmt.Errorf("no builder for provider %s", name)
		}
		client, err := builder(config)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if err := rb.registry.RegisterProvider(client); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}

	return rb.registry, nil
}
