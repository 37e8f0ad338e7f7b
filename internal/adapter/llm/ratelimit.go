package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
)

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)

// RateLimitedProvider throttles calls to inner with a token bucket. Parallel
// specialists share the bucket, so a burst of fan-out calls queues instead of
// tripping the upstream 429 limit.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a limiter built from cfg.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Chat waits for a token, then delegates. A context that ends while waiting
// surfaces as domain.ErrRateLimit wrapped around the context error.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider %q: %w: %w", p.inner.Name(), domain.ErrRateLimit, err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
