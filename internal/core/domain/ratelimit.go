package domain

import (
	"math"
	"time"
)

// Strategy selects the admission algorithm of a rate limiter.
type Strategy string

const (
	StrategyFixedWindow   Strategy = "fixed_window"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyTokenBucket   Strategy = "token_bucket"
)

// IdentifierType tags what kind of key a limiter counts.
type IdentifierType string

const (
	IdentifierIP     IdentifierType = "ip"
	IdentifierEmail  IdentifierType = "email"
	IdentifierGlobal IdentifierType = "global"
	IdentifierUser   IdentifierType = "user"
)

// BreachLevel is advisory severity metadata; it never overrides the hard
// admit/reject decision.
type BreachLevel string

const (
	BreachNone     BreachLevel = ""
	BreachWarning  BreachLevel = "warning"
	BreachCritical BreachLevel = "critical"
	BreachBlock    BreachLevel = "block"
)

// Unlimited is the Remaining/Limit value reported for whitelisted callers.
const Unlimited = math.MaxInt64

// RateLimitResult is the outcome of a single admission check.
type RateLimitResult struct {
	Allowed     bool          `json:"allowed"`
	Whitelisted bool          `json:"whitelisted,omitempty"`
	Limit       int64         `json:"limit"`
	Remaining   int64         `json:"remaining"`
	ResetTime   time.Time     `json:"reset_time"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
	BreachLevel BreachLevel   `json:"breach_level,omitempty"`
}

// WhitelistEntry exempts an identifier from rate limiting while valid.
type WhitelistEntry struct {
	Identifier string         `json:"identifier"`
	Type       IdentifierType `json:"type"`
	Reason     string         `json:"reason"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at,omitempty"` // zero = never
}

// Expired reports whether the entry is past its expiry at the given time.
func (w WhitelistEntry) Expired(now time.Time) bool {
	return !w.ExpiresAt.IsZero() && !now.Before(w.ExpiresAt)
}

// BreachNotification records one over-threshold request.
type BreachNotification struct {
	Identifier string         `json:"identifier"`
	Type       IdentifierType `json:"type"`
	Level      BreachLevel    `json:"level"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
