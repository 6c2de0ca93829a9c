package llm

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
)

// ResilientProvider bounds every Generate call with an overall timeout and
// retries failed attempts inside that budget.
type ResilientProvider struct {
	inner    Provider
	budget   time.Duration
	attempts int
	backoff  time.Duration
}

// NewResilientProvider wraps inner. attempts below 1 are treated as 1.
func NewResilientProvider(inner Provider, budget time.Duration, attempts int, backoff time.Duration) *ResilientProvider {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &ResilientProvider{inner: inner, budget: budget, attempts: attempts, backoff: backoff}
}

func (p *ResilientProvider) IsConfigured() bool {
	return p.inner.IsConfigured()
}

// Generate runs the wrapped provider under the retry and timeout policies.
func (p *ResilientProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	r := retry.New[string](retry.Config{
		MaxAttempts:   p.attempts,
		InitialDelay:  p.backoff,
		BackoffPolicy: retry.BackoffExponential,
	})
	t := timeout.New[string](timeout.Config{
		DefaultTimeout: p.budget,
	})

	return t.Execute(ctx, p.budget, func(ctx context.Context) (string, error) {
		return r.Do(ctx, func(ctx context.Context) (string, error) {
			return p.inner.Generate(ctx, prompt, maxTokens)
		})
	})
}
