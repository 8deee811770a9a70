package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/courier/internal/core/config"
	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/delivery"
	"github.com/vietddude/courier/internal/gateway"
	"github.com/vietddude/courier/internal/queue"
	"github.com/vietddude/courier/internal/ratelimit"
	"github.com/vietddude/courier/internal/retry"
)

// Courier is the main application struct wiring admission control, the
// delivery queue, and the HTTP surface.
type Courier struct {
	cfg     *config.AppConfig
	factory *ratelimit.Factory
	queue   *queue.Queue
	manager *queue.Manager
	sweeper *ratelimit.Sweeper
	server  *gateway.Server
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Courier with all dependencies initialized. Limiter
// misconfiguration fails construction rather than degrading at runtime.
func New(cfg *config.AppConfig, sender delivery.Sender) (*Courier, error) {
	factory := ratelimit.NewFactory()

	// Construct the presets up front so the sweeper covers them from the
	// start and bad preset state surfaces immediately.
	factory.IP()
	factory.Email()
	factory.Global()

	for _, lc := range cfg.RateLimit.Limiters {
		_, err := factory.Get(lc.Name, ratelimit.Config{
			Window:      time.Duration(lc.WindowMs) * time.Millisecond,
			MaxRequests: lc.MaxRequests,
			Strategy:    domain.Strategy(lc.Strategy),
			Type:        domain.IdentifierType(lc.Type),
		})
		if err != nil {
			return nil, fmt.Errorf("invalid limiter config: %w", err)
		}
	}

	q := queue.NewQueue()
	classifier := retry.NewClassifier(retry.ClassifierConfig{
		NonRetryablePhrases: cfg.Classifier.NonRetryable,
		RateLimitPhrases:    cfg.Classifier.RateLimit,
		RetryablePhrases:    cfg.Classifier.Retryable,
	})
	policy := retry.NewPolicy(retry.PolicyConfig{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		RateLimitFloor:    time.Duration(cfg.Retry.RateLimitFloorMs) * time.Millisecond,
	})

	manager := queue.NewManager(q, classifier, policy, sender.Send, queue.ManagerConfig{
		Workers:      cfg.Queue.Workers,
		PollInterval: time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
	})

	return &Courier{
		cfg:     cfg,
		factory: factory,
		queue:   q,
		manager: manager,
		sweeper: ratelimit.NewSweeper(factory, time.Duration(cfg.RateLimit.SweepIntervalMs)*time.Millisecond),
		server: gateway.NewServer(q, factory, gateway.ServerOptions{
			Port:              cfg.Server.Port,
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		}),
		log: slog.Default().With("component", "courier"),
	}, nil
}

// Start launches the workers, the limiter sweeper, and the HTTP server.
func (c *Courier) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.manager.Run(runCtx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sweeper.Start(runCtx)
	}()

	go func() {
		if err := c.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("HTTP server failed", "error", err)
		}
	}()

	c.log.Info("Courier started",
		"port", c.cfg.Server.Port, "workers", c.cfg.Queue.Workers)
	return nil
}

// Stop shuts down gracefully: workers drain their current attempt, in-flight
// jobs return to pending, and the HTTP server closes within ctx's deadline.
func (c *Courier) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warn("Workers did not drain before deadline")
	}

	if err := c.server.Stop(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	c.log.Info("Courier stopped", "stats", c.queue.Stats())
	return nil
}

// Queue exposes the job queue for embedding applications.
func (c *Courier) Queue() *queue.Queue {
	return c.queue
}

// Manager exposes the retry manager for embedding applications.
func (c *Courier) Manager() *queue.Manager {
	return c.manager
}

// Limiters exposes the limiter registry.
func (c *Courier) Limiters() *ratelimit.Factory {
	return c.factory
}
