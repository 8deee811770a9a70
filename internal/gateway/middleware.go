package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/metrics"
	"github.com/vietddude/courier/internal/ratelimit"
)

// KeyFunc derives the rate-limit identifier from a request.
type KeyFunc func(r *http.Request) string

// MiddlewareOptions configures one admission middleware layer.
type MiddlewareOptions struct {
	Limiter *ratelimit.Limiter
	Name    string // metrics label
	KeyFn   KeyFunc
}

// ClientIPKeyFunc extracts the caller IP, preferring the first
// X-Forwarded-For hop when trusted.
func ClientIPKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// GlobalKeyFunc counts every request against one shared key.
func GlobalKeyFunc() KeyFunc {
	return func(*http.Request) string { return "global" }
}

// rateLimitBody is the JSON payload attached to limited responses.
type rateLimitBody struct {
	Limit      int64 `json:"limit"`
	Remaining  int64 `json:"remaining"`
	ResetTime  int64 `json:"resetTime"` // unix milliseconds
	RetryAfter int64 `json:"retryAfter,omitempty"`
}

// Middleware gates a handler behind a limiter. Rejected requests receive 429
// with the rate-limit envelope; requests carrying only a warning-level breach
// pass through untouched.
func Middleware(opts MiddlewareOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			res := opts.Limiter.Check(key)
			recordDecision(opts.Name, res)
			setRateLimitHeaders(w, res)

			if !res.Allowed {
				writeRateLimited(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func recordDecision(name string, res domain.RateLimitResult) {
	metrics.RateLimitDecisions.WithLabelValues(name, strconv.FormatBool(res.Allowed)).Inc()
	if res.BreachLevel != domain.BreachNone {
		metrics.RateLimitBreaches.WithLabelValues(name, string(res.BreachLevel)).Inc()
	}
}

func setRateLimitHeaders(w http.ResponseWriter, res domain.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.UnixMilli(), 10))
	if !res.Allowed {
		secs := int64(res.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}

func writeRateLimited(w http.ResponseWriter, res domain.RateLimitResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "rate limit exceeded",
		"rateLimit": rateLimitBody{
			Limit:      res.Limit,
			Remaining:  res.Remaining,
			ResetTime:  res.ResetTime.UnixMilli(),
			RetryAfter: int64(res.RetryAfter.Seconds()),
		},
	})
}
