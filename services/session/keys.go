package session

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/providers"
)

// KeyStatus is the result of checking one provider credential. Error never
// carries provider output, which may echo the key.
type KeyStatus struct {
	Service   string   `json:"service"`
	Valid     bool     `json:"is_valid"`
	Available []string `json:"available_models,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// CheckKeys lists the models of every provider that has a key, the server
// defaults merged with overrides, and reports which keys work. No session is
// created or cached for the checked keys.
func (m *Manager) CheckKeys(ctx context.Context, overrides Credentials) ([]KeyStatus, error) {
	keys := m.defaults.Merge(overrides)
	if keys.Empty() {
		return nil, services.ErrNoProviders
	}

	var names []string
	for _, name := range providers.Names {
		if keys[name] != "" {
			names = append(names, name)
		}
	}

	statuses := make([]KeyStatus, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			statuses[i] = m.checkKey(ctx, name, keys[name])
			return nil
		})
	}
	_ = g.Wait()

	return statuses, nil
}

func (m *Manager) checkKey(ctx context.Context, name, key string) KeyStatus {
	status := KeyStatus{Service: name}

	registry, err := m.build(Credentials{name: key}, m.opts)
	if err != nil {
		status.Error = "provider client could not be built"
		return status
	}
	client, err := registry.GetProvider(name)
	if err != nil {
		status.Error = "provider client could not be built"
		return status
	}

	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	list, err := client.ListModels(ctx)
	if err != nil {
		kind := providers.KindOf(providers.ClassifyTransport(name, "", err))
		m.logger.Info("provider key check failed", zap.String("provider", name), zap.String("kind", string(kind)))

		switch kind {
		case providers.KindAuth:
			status.Error = "invalid API key"
		case providers.KindQuota:
			status.Valid = true
			status.Error = "key is valid but its quota or credits are exhausted"
		default:
			status.Error = "provider could not be reached"
		}
		return status
	}

	status.Valid = true
	status.Available = list
	return status
}
