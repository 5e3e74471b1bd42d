package generation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSpacing is the minimum gap between two calls to the same provider
const DefaultSpacing = time.Second

// Pacer spaces consecutive calls per provider. One pacer serves one session.
type Pacer struct {
	mu       sync.Mutex
	spacing  time.Duration
	limiters map[string]*rate.Limiter
}

// NewPacer creates a pacer. A non-positive spacing disables pacing.
func NewPacer(spacing time.Duration) *Pacer {
	return &Pacer{
		spacing:  spacing,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the provider may be called again or ctx is done
func (p *Pacer) Wait(ctx context.Context, provider string) error {
	if p == nil || p.spacing <= 0 {
		return ctx.Err()
	}
	return p.limiter(provider).Wait(ctx)
}

func (p *Pacer) limiter(provider string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.spacing), 1)
		p.limiters[provider] = l
	}
	return l
}
