package retry

import (
	"strings"

	"github.com/vietddude/courier/internal/core/domain"
)

// ClassifierConfig carries the configurable phrase lists consulted after the
// built-in signal checks. Matching is case-insensitive substring matching.
type ClassifierConfig struct {
	NonRetryablePhrases []string
	RateLimitPhrases    []string
	RetryablePhrases    []string
}

// DefaultClassifierConfig mirrors the phrase lists shipped with the service.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		NonRetryablePhrases: []string{
			"authentication failed",
			"auth failure",
			"invalid credentials",
			"535",
			"530",
		},
		RateLimitPhrases: []string{
			"rate limit",
			"too many requests",
			"quota exceeded",
		},
		RetryablePhrases: []string{
			"timeout",
			"timed out",
			"connection",
			"network",
			"temporarily",
			"try again",
		},
	}
}

// Classifier maps raw delivery failures to error categories.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given phrase lists; empty
// lists fall back to the defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if len(cfg.NonRetryablePhrases) == 0 {
		cfg.NonRetryablePhrases = def.NonRetryablePhrases
	}
	if len(cfg.RateLimitPhrases) == 0 {
		cfg.RateLimitPhrases = def.RateLimitPhrases
	}
	if len(cfg.RetryablePhrases) == 0 {
		cfg.RetryablePhrases = def.RetryablePhrases
	}
	return &Classifier{cfg: cfg}
}

// Categorize determines the error category for a delivery failure.
//
// The rules are evaluated in a fixed precedence order; later rules are
// deliberately narrower fallbacks for earlier ones, so the order must not
// be rearranged.
func (c *Classifier) Categorize(err error) domain.ErrorCategory {
	if err == nil {
		return domain.CategoryTransient
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// 1. Explicit rate-limit signals
	if strings.Contains(s, "429") ||
		strings.Contains(sLower, "too many connections") ||
		strings.Contains(sLower, "connection limit") {
		return domain.CategoryRateLimit
	}

	// 2. SMTP permanent-failure codes
	if strings.Contains(s, "550") || strings.Contains(s, "551") || strings.Contains(s, "552") ||
		strings.Contains(sLower, "permanent failure") ||
		strings.Contains(sLower, "mailbox unavailable") {
		return domain.CategoryPermanent
	}

	// 3. Timeout signals
	if strings.Contains(s, "ETIMEDOUT") || strings.Contains(sLower, "timeout") {
		return domain.CategoryTimeout
	}

	// 4. Network signals
	if strings.Contains(s, "ECONNREFUSED") || strings.Contains(s, "ECONNRESET") ||
		strings.Contains(s, "ENOTFOUND") ||
		strings.Contains(sLower, "network unreachable") {
		return domain.CategoryNetwork
	}

	// 5. Configured non-retryable phrases
	if containsAny(sLower, c.cfg.NonRetryablePhrases) {
		return domain.CategoryAuthentication
	}

	// 6. Configured rate-limit phrases
	if containsAny(sLower, c.cfg.RateLimitPhrases) {
		return domain.CategoryRateLimit
	}

	// 7. Configured retryable phrases, refined by sub-match
	if containsAny(sLower, c.cfg.RetryablePhrases) {
		switch {
		case strings.Contains(sLower, "timeout") || strings.Contains(sLower, "timed out"):
			return domain.CategoryTimeout
		case strings.Contains(sLower, "network") || strings.Contains(sLower, "connection"):
			return domain.CategoryNetwork
		default:
			return domain.CategoryTransient
		}
	}

	// 8. Permanent literal
	if strings.Contains(sLower, "permanent") {
		return domain.CategoryPermanent
	}

	// 9. Configuration problems
	if strings.Contains(sLower, "config") || strings.Contains(sLower, "setup") ||
		strings.Contains(sLower, "invalid") {
		return domain.CategoryConfiguration
	}

	// 10. Default
	return domain.CategoryTransient
}

// Code extracts the first standalone three-digit status code embedded in the
// error message, if any. Used to enrich job error history.
func Code(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	for i := 0; i+3 <= len(s); i++ {
		if isDigit(s[i]) && isDigit(s[i+1]) && isDigit(s[i+2]) &&
			(i == 0 || !isDigit(s[i-1])) &&
			(i+3 == len(s) || !isDigit(s[i+3])) {
			return s[i : i+3]
		}
	}
	return ""
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
