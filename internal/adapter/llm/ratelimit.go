package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"agentgate/internal/domain"
)

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)

// RateLimitedProvider caps the rate of outbound model calls. Guardrail,
// routing and generation calls of every invocation share one budget.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows requestsPerMinute calls with the given burst.
func NewRateLimitedProvider(inner domain.LLMProvider, requestsPerMinute, burst int) *RateLimitedProvider {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// Chat waits for a token, then delegates. Waiting respects ctx.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", domain.ErrUpstreamUnavailable, domain.ErrRateLimit, err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
