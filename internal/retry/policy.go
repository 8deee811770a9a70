package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/vietddude/courier/internal/core/domain"
)

// PolicyConfig defines retry behavior.
type PolicyConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	RateLimitFloor    time.Duration
}

// DefaultPolicyConfig provides sensible defaults.
var DefaultPolicyConfig = PolicyConfig{
	MaxAttempts:       3,
	BaseDelay:         1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	RateLimitFloor:    60 * time.Second,
}

// MinDelay is the hard lower bound on any computed retry delay.
const MinDelay = 100 * time.Millisecond

// jitterFraction is the half-width of the uniform jitter band (±10%).
const jitterFraction = 0.1

// Policy decides whether and when a failed job should be retried.
type Policy struct {
	cfg PolicyConfig

	// jitter returns a value in [-jitterFraction, +jitterFraction];
	// swapped out in tests for determinism.
	jitter func() float64
}

// NewPolicy creates a policy; zero-valued config fields take defaults.
func NewPolicy(cfg PolicyConfig) *Policy {
	def := DefaultPolicyConfig
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.RateLimitFloor == 0 {
		cfg.RateLimitFloor = def.RateLimitFloor
	}
	return &Policy{
		cfg: cfg,
		jitter: func() float64 {
			return (rand.Float64()*2 - 1) * jitterFraction
		},
	}
}

// MaxAttempts exposes the configured attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// ShouldRetry reports whether a job with the given attempt count and failure
// category deserves another attempt.
func (p *Policy) ShouldRetry(attempts int, category domain.ErrorCategory) bool {
	if attempts >= p.cfg.MaxAttempts {
		return false
	}
	return category.Retryable()
}

// Delay computes the backoff before the next attempt. attempt is 1-based
// (the attempt that just failed).
//
// rate_limit delays are floored at RateLimitFloor and exempt from the MaxDelay
// cap; the floor is re-applied after jitter so jitter can never push a
// rate-limited retry below it.
func (p *Policy) Delay(attempt int, category domain.ErrorCategory) time.Duration {
	switch category {
	case domain.CategoryAuthentication, domain.CategoryPermanent, domain.CategoryConfiguration:
		return 0
	}

	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.BackoffMultiplier, float64(attempt-1))

	if category == domain.CategoryRateLimit {
		if floor := float64(p.cfg.RateLimitFloor); delay < floor {
			delay = floor
		}
	} else if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}

	delay *= 1 + p.jitter()

	if category == domain.CategoryRateLimit {
		if floor := float64(p.cfg.RateLimitFloor); delay < floor {
			delay = floor
		}
	}

	if delay < float64(MinDelay) {
		delay = float64(MinDelay)
	}
	return time.Duration(delay)
}
