package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/metrics"
	"github.com/vietddude/courier/internal/retry"
)

// SendFunc is the injected delivery transport.
type SendFunc func(ctx context.Context, job *domain.EmailJob) error

// ManagerConfig holds retry manager settings.
type ManagerConfig struct {
	Workers      int
	PollInterval time.Duration
}

// Manager drives jobs through delivery attempts using the retry policy.
//
// The worker scheduler never blocks on backoff: a retryable failure stamps
// NextRetry and returns the job to pending, freeing the worker for other
// jobs. ProcessJobWithRetry is the synchronous alternative for callers that
// want a final result for a single job.
type Manager struct {
	queue      *Queue
	classifier *retry.Classifier
	policy     *retry.Policy
	send       SendFunc
	cfg        ManagerConfig
	log        *slog.Logger

	now func() time.Time
}

// NewManager wires a manager; zero config fields take defaults.
func NewManager(q *Queue, c *retry.Classifier, p *retry.Policy, send SendFunc, cfg ManagerConfig) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Manager{
		queue:      q,
		classifier: c,
		policy:     p,
		send:       send,
		cfg:        cfg,
		log:        slog.Default().With("component", "retry_manager"),
		now:        time.Now,
	}
}

// Run processes ready jobs with a pool of workers until the context is
// cancelled, then returns in-flight jobs to pending.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx)
		}()
	}
	wg.Wait()

	if n := m.queue.RequeueProcessing(); n > 0 {
		m.log.Info("Returned in-flight jobs to pending", "count", n)
	}
}

func (m *Manager) worker(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job := m.queue.Next()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		m.Step(ctx, job)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Step makes a single delivery attempt for a job already in processing and
// settles it: completed, requeued with a NextRetry, or dead-lettered.
func (m *Manager) Step(ctx context.Context, job *domain.EmailJob) {
	err := m.attempt(ctx, job)
	if err == nil {
		m.queue.Complete(job)
		m.log.Debug("Job delivered", "job", job.ID, "attempts", job.Attempts)
		return
	}

	category := m.recordFailure(job, err)
	if !m.policy.ShouldRetry(job.Attempts, category) {
		m.queue.DeadLetter(job)
		m.log.Warn("Job dead-lettered",
			"job", job.ID, "attempts", job.Attempts, "category", category, "error", err)
		return
	}

	delay := m.policy.Delay(job.Attempts, category)
	job.NextRetry = m.now().Add(delay)
	m.queue.Requeue(job)
	m.log.Debug("Job scheduled for retry",
		"job", job.ID, "attempts", job.Attempts, "category", category, "delay", delay)
}

// ProcessJobWithRetry drives one job through the full retry cycle, blocking
// across backoff waits. Cancellation during a wait dead-letters the job with
// a cancelled marker instead of retrying.
func (m *Manager) ProcessJobWithRetry(ctx context.Context, job *domain.EmailJob, send SendFunc) domain.RetryResult {
	if send == nil {
		send = m.send
	}
	m.queue.Adopt(job)

	start := m.now()
	var lastErr error

	for job.Attempts < m.policy.MaxAttempts() {
		err := m.attemptWith(ctx, job, send)
		if err == nil {
			m.queue.Complete(job)
			return domain.RetryResult{
				Success:     true,
				Attempts:    job.Attempts,
				TotalTime:   m.now().Sub(start),
				DeliveredAt: m.now(),
			}
		}

		lastErr = err
		category := m.recordFailure(job, err)
		if !m.policy.ShouldRetry(job.Attempts, category) {
			break
		}

		delay := m.policy.Delay(job.Attempts, category)
		job.NextRetry = m.now().Add(delay)

		select {
		case <-ctx.Done():
			job.ErrorHistory = append(job.ErrorHistory, domain.ErrorRecord{
				Timestamp: m.now(),
				Error:     ctx.Err().Error(),
				Category:  domain.CategoryCancelled,
			})
			m.queue.DeadLetter(job)
			return domain.RetryResult{
				Attempts:   job.Attempts,
				TotalTime:  m.now().Sub(start),
				FinalError: ctx.Err().Error(),
			}
		case <-time.After(delay):
		}
	}

	// Attempts exhausted or a non-retryable category broke the loop.
	m.queue.DeadLetter(job)
	res := domain.RetryResult{
		Attempts:  job.Attempts,
		TotalTime: m.now().Sub(start),
	}
	if lastErr != nil {
		res.FinalError = lastErr.Error()
	}
	return res
}

func (m *Manager) attempt(ctx context.Context, job *domain.EmailJob) error {
	return m.attemptWith(ctx, job, m.send)
}

// attemptWith makes one send attempt, coercing panics in the transport to
// errors so the termination invariant holds.
func (m *Manager) attemptWith(ctx context.Context, job *domain.EmailJob, send SendFunc) (err error) {
	job.Attempts++
	job.LastAttempt = m.now()

	start := time.Now()
	defer func() {
		metrics.SendDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
		if err != nil {
			metrics.SendAttempts.WithLabelValues("error").Inc()
		} else {
			metrics.SendAttempts.WithLabelValues("ok").Inc()
		}
	}()

	return send(ctx, job)
}

func (m *Manager) recordFailure(job *domain.EmailJob, err error) domain.ErrorCategory {
	category := m.classifier.Categorize(err)
	job.ErrorHistory = append(job.ErrorHistory, domain.ErrorRecord{
		Timestamp: m.now(),
		Error:     err.Error(),
		Code:      retry.Code(err),
		Category:  category,
	})
	return category
}
