package delivery

import "github.com/vietddude/courier/internal/core/domain"

// Translation is the message pair produced for a delivery failure category.
// NeedsAttention flags categories that indicate a deployment or credentials
// problem rather than a transient condition; callers should alert on it.
type Translation struct {
	UserMessage     string `json:"user_message"`
	OperatorMessage string `json:"operator_message"`
	NeedsAttention  bool   `json:"needs_attention"`
}

var translations = map[domain.ErrorCategory]Translation{
	domain.CategoryTransient: {
		UserMessage:     "We couldn't send your message right now. Please try again in a few minutes.",
		OperatorMessage: "Transient delivery failure; the job will be retried automatically.",
	},
	domain.CategoryNetwork: {
		UserMessage:     "We couldn't reach the mail service. Please try again shortly.",
		OperatorMessage: "Network error talking to the mail provider; check connectivity if it persists.",
	},
	domain.CategoryTimeout: {
		UserMessage:     "Sending took too long and was interrupted. Please try again shortly.",
		OperatorMessage: "Delivery attempt timed out; provider may be slow or unreachable.",
	},
	domain.CategoryRateLimit: {
		UserMessage:     "Too many messages were sent recently. Please wait a minute before trying again.",
		OperatorMessage: "Provider rate limit hit; backoff floor of 60s applies before the next attempt.",
	},
	domain.CategoryAuthentication: {
		UserMessage:     "We couldn't send your message due to a problem on our side. Our team has been notified.",
		OperatorMessage: "SMTP authentication failed; verify credentials in the deployment configuration.",
		NeedsAttention:  true,
	},
	domain.CategoryConfiguration: {
		UserMessage:     "We couldn't send your message due to a problem on our side. Our team has been notified.",
		OperatorMessage: "Mail configuration is invalid; review the sender settings before retrying.",
		NeedsAttention:  true,
	},
	domain.CategoryPermanent: {
		UserMessage:     "This message can't be delivered to the recipient address.",
		OperatorMessage: "Permanent rejection from the provider; the recipient address is likely invalid.",
	},
	domain.CategoryCancelled: {
		UserMessage:     "Sending was cancelled before it could complete.",
		OperatorMessage: "Job abandoned during backoff because processing was cancelled.",
	},
}

// Translate maps a failure category to its user-facing and operator messages.
// Unknown categories fall back to the transient wording.
func Translate(category domain.ErrorCategory) Translation {
	if t, ok := translations[category]; ok {
		return t
	}
	return translations[domain.CategoryTransient]
}
