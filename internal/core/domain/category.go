package domain

// ErrorCategory classifies a delivery failure for retry policy decisions.
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "transient"
	CategoryNetwork        ErrorCategory = "network"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryPermanent      ErrorCategory = "permanent"

	// CategoryCancelled marks a job abandoned because its backoff wait was
	// cancelled, not because the send failed.
	CategoryCancelled ErrorCategory = "cancelled"
)

// Retryable reports whether the category allows further attempts at all.
// Attempt budgets are enforced separately by the retry policy.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryAuthentication, CategoryConfiguration, CategoryPermanent, CategoryCancelled:
		return false
	default:
		return true
	}
}
