package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/courier/internal/core/domain"
)

// Preset limiter names used system-wide.
const (
	LimiterIP     = "ip"
	LimiterEmail  = "email"
	LimiterGlobal = "global"
)

// Factory is a name→limiter registry. Repeated lookups by name return the
// same instance so all callers observe the same accumulated state.
type Factory struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewFactory creates an empty registry.
func NewFactory() *Factory {
	return &Factory{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter registered under name, constructing it from cfg on
// first use. The config of an existing limiter is never replaced.
func (f *Factory) Get(name string, cfg Config) (*Limiter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[name]; ok {
		return l, nil
	}
	l, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("limiter %q: %w", name, err)
	}
	f.limiters[name] = l
	return l, nil
}

// Lookup returns a registered limiter without constructing one.
func (f *Factory) Lookup(name string) (*Limiter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[name]
	return l, ok
}

// All returns a snapshot of the registered limiters.
func (f *Factory) All() map[string]*Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]*Limiter, len(f.limiters))
	for name, l := range f.limiters {
		out[name] = l
	}
	return out
}

// IP returns the per-IP preset: sliding window, 5 requests / 60s.
func (f *Factory) IP() *Limiter {
	l, err := f.Get(LimiterIP, Config{
		Window:      60 * time.Second,
		MaxRequests: 5,
		Strategy:    domain.StrategySlidingWindow,
		Type:        domain.IdentifierIP,
	})
	if err != nil {
		panic(err) // preset configs are known valid
	}
	return l
}

// Email returns the per-address preset: fixed window, 50 requests / 24h.
func (f *Factory) Email() *Limiter {
	l, err := f.Get(LimiterEmail, Config{
		Window:      24 * time.Hour,
		MaxRequests: 50,
		Strategy:    domain.StrategyFixedWindow,
		Type:        domain.IdentifierEmail,
	})
	if err != nil {
		panic(err)
	}
	return l
}

// Global returns the service-wide preset: sliding window, 100 requests / 60s.
func (f *Factory) Global() *Limiter {
	l, err := f.Get(LimiterGlobal, Config{
		Window:      60 * time.Second,
		MaxRequests: 100,
		Strategy:    domain.StrategySlidingWindow,
		Type:        domain.IdentifierGlobal,
	})
	if err != nil {
		panic(err)
	}
	return l
}
