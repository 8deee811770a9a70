package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vietddude/courier/internal/core/domain"
)

// breachHistoryLimit caps the in-memory breach notification log.
const breachHistoryLimit = 1000

// Config defines one limiter. Immutable after construction.
type Config struct {
	Window      time.Duration
	MaxRequests int
	Strategy    domain.Strategy
	Type        domain.IdentifierType

	// KeyFunc derives the counting key from the raw identifier.
	// Nil means the identifier is used as-is.
	KeyFunc func(identifier string) string

	// OnBreach is invoked for rejected requests carrying a breach level.
	OnBreach func(domain.BreachNotification)
}

// entry holds per-key bookkeeping. Which fields are live depends on the
// limiter strategy.
type entry struct {
	count       int
	windowStart time.Time
	lastReset   time.Time

	tokens     float64
	lastRefill time.Time

	requests []time.Time

	lastSeen time.Time
}

// Limiter applies one admission strategy across identifier keys.
//
// checkLimit's read-then-write sequence is a single critical section per key,
// so all state is guarded by one mutex.
type Limiter struct {
	cfg Config

	mu        sync.Mutex
	entries   map[string]*entry
	whitelist map[string]domain.WhitelistEntry
	breaches  []domain.BreachNotification

	now func() time.Time
}

// New constructs a limiter. An unknown strategy or nonpositive window/limit
// is a configuration error and fails construction.
func New(cfg Config) (*Limiter, error) {
	switch cfg.Strategy {
	case domain.StrategyFixedWindow, domain.StrategySlidingWindow, domain.StrategyTokenBucket:
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
	switch cfg.Type {
	case domain.IdentifierIP, domain.IdentifierEmail, domain.IdentifierGlobal, domain.IdentifierUser:
	default:
		return nil, fmt.Errorf("unknown identifier type %q", cfg.Type)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %v", cfg.Window)
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("rate limit max requests must be positive, got %d", cfg.MaxRequests)
	}
	return &Limiter{
		cfg:       cfg,
		entries:   make(map[string]*entry),
		whitelist: make(map[string]domain.WhitelistEntry),
		now:       time.Now,
	}, nil
}

// CheckOption modifies a single admission check.
type CheckOption func(*checkOpts)

type checkOpts struct {
	weight int
}

// WithWeight counts the request as weight units against the limit.
func WithWeight(weight int) CheckOption {
	return func(o *checkOpts) {
		o.weight = weight
	}
}

// Check decides whether the identifier may proceed right now.
func (l *Limiter) Check(identifier string, opts ...CheckOption) domain.RateLimitResult {
	o := checkOpts{weight: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.weight < 1 {
		o.weight = 1
	}

	key := identifier
	if l.cfg.KeyFunc != nil {
		key = l.cfg.KeyFunc(identifier)
	}

	l.mu.Lock()
	now := l.now()

	// Whitelist overrides the strategy and leaves counters untouched.
	if wl, ok := l.whitelist[key]; ok {
		if wl.Expired(now) {
			delete(l.whitelist, key)
		} else {
			l.mu.Unlock()
			return domain.RateLimitResult{
				Allowed:     true,
				Whitelisted: true,
				Limit:       domain.Unlimited,
				Remaining:   domain.Unlimited,
				ResetTime:   now,
			}
		}
	}

	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			tokens:     float64(l.cfg.MaxRequests),
			lastRefill: now,
		}
		l.entries[key] = e
	}
	e.lastSeen = now

	var res domain.RateLimitResult
	var attempted int
	switch l.cfg.Strategy {
	case domain.StrategyFixedWindow:
		res, attempted = l.checkFixed(e, now, o.weight)
	case domain.StrategySlidingWindow:
		res, attempted = l.checkSliding(e, now, o.weight)
	case domain.StrategyTokenBucket:
		res, attempted = l.checkBucket(e, now, o.weight)
	}

	level := breachLevel(attempted, l.cfg.MaxRequests)
	var notif domain.BreachNotification
	if level != domain.BreachNone {
		res.BreachLevel = level
		notif = domain.BreachNotification{
			Identifier: key,
			Type:       l.cfg.Type,
			Level:      level,
			Timestamp:  now,
			Metadata: map[string]any{
				"attempted": attempted,
				"limit":     l.cfg.MaxRequests,
				"allowed":   res.Allowed,
			},
		}
		l.breaches = append(l.breaches, notif)
		if len(l.breaches) > breachHistoryLimit {
			l.breaches = l.breaches[len(l.breaches)-breachHistoryLimit:]
		}
	}
	callback := l.cfg.OnBreach
	l.mu.Unlock()

	// Callback runs outside the lock; only rejected breaches notify.
	if level != domain.BreachNone && !res.Allowed && callback != nil {
		callback(notif)
	}
	return res
}

func (l *Limiter) checkFixed(e *entry, now time.Time, weight int) (domain.RateLimitResult, int) {
	// Window boundaries are floored against the Unix epoch, not Go's
	// zero time; the two grids diverge for windows that are not a whole
	// number of seconds.
	windowMs := l.cfg.Window.Milliseconds()
	boundary := time.UnixMilli(now.UnixMilli() / windowMs * windowMs)
	if !e.windowStart.Equal(boundary) {
		e.windowStart = boundary
		e.count = 0
		e.lastReset = now
	}

	attempted := e.count + weight
	allowed := attempted <= l.cfg.MaxRequests
	if allowed {
		e.count = attempted
	}

	reset := boundary.Add(l.cfg.Window)
	res := domain.RateLimitResult{
		Allowed:   allowed,
		Limit:     int64(l.cfg.MaxRequests),
		Remaining: int64(l.cfg.MaxRequests - e.count),
		ResetTime: reset,
	}
	if !allowed {
		res.RetryAfter = reset.Sub(now)
	}
	return res, attempted
}

func (l *Limiter) checkSliding(e *entry, now time.Time, weight int) (domain.RateLimitResult, int) {
	cutoff := now.Add(-l.cfg.Window)
	kept := e.requests[:0]
	for _, ts := range e.requests {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.requests = kept

	attempted := len(e.requests) + weight
	allowed := attempted <= l.cfg.MaxRequests
	if allowed {
		for i := 0; i < weight; i++ {
			e.requests = append(e.requests, now)
		}
	}

	res := domain.RateLimitResult{
		Allowed:   allowed,
		Limit:     int64(l.cfg.MaxRequests),
		Remaining: int64(l.cfg.MaxRequests - len(e.requests)),
		ResetTime: now.Add(l.cfg.Window),
	}
	if !allowed {
		// A slot frees when the oldest counted request ages out.
		if len(e.requests) > 0 {
			res.RetryAfter = e.requests[0].Add(l.cfg.Window).Sub(now)
		} else {
			res.RetryAfter = l.cfg.Window
		}
	}
	return res, attempted
}

func (l *Limiter) checkBucket(e *entry, now time.Time, weight int) (domain.RateLimitResult, int) {
	capacity := float64(l.cfg.MaxRequests)
	ratePerSec := capacity / l.cfg.Window.Seconds()

	elapsed := now.Sub(e.lastRefill).Seconds()
	if elapsed > 0 {
		e.tokens = math.Min(capacity, e.tokens+elapsed*ratePerSec)
		e.lastRefill = now
	}

	attempted := int(math.Ceil(capacity-e.tokens)) + weight
	allowed := e.tokens >= float64(weight)
	if allowed {
		e.tokens -= float64(weight)
	}

	res := domain.RateLimitResult{
		Allowed:   allowed,
		Limit:     int64(l.cfg.MaxRequests),
		Remaining: int64(math.Floor(e.tokens)),
		ResetTime: now.Add(l.cfg.Window),
	}
	if !allowed {
		deficit := float64(weight) - e.tokens
		res.RetryAfter = time.Duration(deficit / ratePerSec * float64(time.Second))
	}
	return res, attempted
}

// breachLevel grades how far over the limit an attempted request landed.
func breachLevel(attempted, limit int) domain.BreachLevel {
	ratio := float64(attempted) / float64(limit)
	switch {
	case ratio >= 2.0:
		return domain.BreachBlock
	case ratio >= 1.5:
		return domain.BreachCritical
	case ratio >= 1.0:
		return domain.BreachWarning
	default:
		return domain.BreachNone
	}
}

// AddToWhitelist exempts an identifier from this limiter. ttl <= 0 means the
// entry never expires.
func (l *Limiter) AddToWhitelist(identifier, reason string, ttl time.Duration) {
	key := identifier
	if l.cfg.KeyFunc != nil {
		key = l.cfg.KeyFunc(identifier)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	wl := domain.WhitelistEntry{
		Identifier: key,
		Type:       l.cfg.Type,
		Reason:     reason,
		CreatedAt:  now,
	}
	if ttl > 0 {
		wl.ExpiresAt = now.Add(ttl)
	}
	l.whitelist[key] = wl
}

// RemoveFromWhitelist drops a whitelist entry; returns whether it existed.
func (l *Limiter) RemoveFromWhitelist(identifier string) bool {
	key := identifier
	if l.cfg.KeyFunc != nil {
		key = l.cfg.KeyFunc(identifier)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.whitelist[key]; !ok {
		return false
	}
	delete(l.whitelist, key)
	return true
}

// Breaches returns a snapshot of the breach notification log.
func (l *Limiter) Breaches() []domain.BreachNotification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.BreachNotification, len(l.breaches))
	copy(out, l.breaches)
	return out
}

// Sweep drops entries untouched for more than twice the window, expired
// whitelist entries, and excess breach history. It is the only mutation path
// not driven by a Check call.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stale := now.Add(-2 * l.cfg.Window)
	for key, e := range l.entries {
		if e.lastSeen.Before(stale) {
			delete(l.entries, key)
		}
	}
	for key, wl := range l.whitelist {
		if wl.Expired(now) {
			delete(l.whitelist, key)
		}
	}
	if len(l.breaches) > breachHistoryLimit {
		l.breaches = l.breaches[len(l.breaches)-breachHistoryLimit:]
	}
}

// Type returns the identifier type the limiter counts.
func (l *Limiter) Type() domain.IdentifierType {
	return l.cfg.Type
}

// Limit returns the configured request budget per window.
func (l *Limiter) Limit() int {
	return l.cfg.MaxRequests
}

// Window returns the configured window.
func (l *Limiter) Window() time.Duration {
	return l.cfg.Window
}
