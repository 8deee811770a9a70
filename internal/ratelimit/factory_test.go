package ratelimit

import (
	"testing"
	"time"

	"github.com/vietddude/courier/internal/core/domain"
)

func TestFactoryPresets(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		name     string
		limiter  *Limiter
		strategy domain.Strategy
		idType   domain.IdentifierType
		limit    int
		window   time.Duration
	}{
		{"ip", f.IP(), domain.StrategySlidingWindow, domain.IdentifierIP, 5, 60 * time.Second},
		{"email", f.Email(), domain.StrategyFixedWindow, domain.IdentifierEmail, 50, 24 * time.Hour},
		{"global", f.Global(), domain.StrategySlidingWindow, domain.IdentifierGlobal, 100, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.limiter.cfg.Strategy != tt.strategy {
				t.Errorf("strategy = %v, want %v", tt.limiter.cfg.Strategy, tt.strategy)
			}
			if tt.limiter.Type() != tt.idType {
				t.Errorf("type = %v, want %v", tt.limiter.Type(), tt.idType)
			}
			if tt.limiter.Limit() != tt.limit {
				t.Errorf("limit = %d, want %d", tt.limiter.Limit(), tt.limit)
			}
			if tt.limiter.Window() != tt.window {
				t.Errorf("window = %v, want %v", tt.limiter.Window(), tt.window)
			}
		})
	}
}

func TestFactoryReusesInstances(t *testing.T) {
	f := NewFactory()

	// State accumulated through one handle is visible through the other.
	first := f.IP()
	for i := 0; i < 5; i++ {
		first.Check("10.0.0.9")
	}

	second := f.IP()
	if first != second {
		t.Fatal("repeated lookup returned a different instance")
	}
	if res := second.Check("10.0.0.9"); res.Allowed {
		t.Error("accumulated state lost: Allowed = true, want false")
	}
}

func TestFactoryGetValidatesConfig(t *testing.T) {
	f := NewFactory()
	_, err := f.Get("broken", Config{
		Window:      time.Second,
		MaxRequests: 5,
		Strategy:    domain.Strategy("bogus"),
		Type:        domain.IdentifierUser,
	})
	if err == nil {
		t.Fatal("Get() with unknown strategy returned nil error")
	}
	if _, ok := f.Lookup("broken"); ok {
		t.Error("failed construction was registered")
	}
}
