package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reclaims stale limiter state across a factory's
// registered limiters.
type Sweeper struct {
	factory  *Factory
	interval time.Duration
}

// NewSweeper creates a sweeper; interval <= 0 takes the 5 minute default.
func NewSweeper(factory *Factory, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{factory: factory, interval: interval}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := 0
			for _, l := range s.factory.All() {
				l.Sweep()
				n++
			}
			slog.Debug("Rate limiter sweep completed", "limiters", n)
		}
	}
}
