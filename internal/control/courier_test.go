package control

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/courier/internal/core/config"
	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/delivery"
)

func TestNewRejectsBadLimiterConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Limiters = []config.LimiterConfig{
		{Name: "api", Strategy: "leaky_bucket", Type: "ip", WindowMs: 1000, MaxRequests: 10},
	}

	if _, err := New(cfg, delivery.NewDryRunSender()); err == nil {
		t.Fatal("New() with unknown strategy returned nil error")
	}
}

func TestCourierProcessesEnqueuedJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0 // no listener needed for this test
	cfg.Queue.PollIntervalMs = 5

	delivered := make(chan string, 1)
	sender := delivery.SenderFunc(func(ctx context.Context, job *domain.EmailJob) error {
		delivered <- job.Recipient
		return nil
	})

	c, err := New(cfg, sender)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Queue().Add(domain.JobSpec{Recipient: "a@example.com", Priority: domain.PriorityHigh})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case got := <-delivered:
		if got != "a@example.com" {
			t.Errorf("delivered recipient = %q, want a@example.com", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := c.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
