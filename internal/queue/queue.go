package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/metrics"
)

// Queue owns the three job stores. A job is a member of exactly one store at
// any moment; every move is a single critical section.
type Queue struct {
	mu         sync.Mutex
	pending    []*domain.EmailJob // insertion order preserved for FIFO ties
	processing map[string]*domain.EmailJob
	dead       []*domain.EmailJob

	completed int64
	failed    int64

	now func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		processing: make(map[string]*domain.EmailJob),
		now:        time.Now,
	}
}

// Add enqueues a new job and returns its ID. An unset priority defaults to
// medium.
func (q *Queue) Add(spec domain.JobSpec) string {
	if spec.Priority == "" {
		spec.Priority = domain.PriorityMedium
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job := &domain.EmailJob{
		ID:          uuid.NewString(),
		Recipient:   spec.Recipient,
		Subject:     spec.Subject,
		Content:     spec.Content,
		Attachments: spec.Attachments,
		Priority:    spec.Priority,
		CreatedAt:   q.now(),
	}
	q.pending = append(q.pending, job)
	q.updateGauges()
	return job.ID
}

// Next selects the ready job with the highest priority, FIFO among equals,
// and moves it pending→processing. Returns nil when nothing is ready.
func (q *Queue) Next() *domain.EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	best := -1
	for i, job := range q.pending {
		if !job.NextRetry.IsZero() && job.NextRetry.After(now) {
			continue
		}
		if best == -1 || job.Priority.Rank() < q.pending[best].Priority.Rank() {
			best = i
		}
	}
	if best == -1 {
		return nil
	}

	job := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	q.processing[job.ID] = job
	q.updateGauges()
	return job
}

// Adopt registers an externally held job as processing, so reentry
// prevention and store accounting hold for jobs that bypassed Next.
func (q *Queue) Adopt(job *domain.EmailJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.pending {
		if p.ID == job.ID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.processing[job.ID] = job
	q.updateGauges()
}

// Complete removes a delivered job from processing.
func (q *Queue) Complete(job *domain.EmailJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, job.ID)
	q.completed++
	q.updateGauges()
	metrics.JobsTotal.WithLabelValues("completed").Inc()
}

// Requeue returns a job from processing to pending to wait for its NextRetry.
func (q *Queue) Requeue(job *domain.EmailJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, job.ID)
	q.pending = append(q.pending, job)
	q.updateGauges()
}

// DeadLetter moves a job from processing to the dead-letter store.
func (q *Queue) DeadLetter(job *domain.EmailJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, job.ID)
	q.dead = append(q.dead, job)
	q.updateGauges()
	metrics.JobsTotal.WithLabelValues("dead_letter").Inc()
}

// Abandon drops a job from processing without dead-lettering it. The job
// still terminates in exactly one counter: failed.
func (q *Queue) Abandon(job *domain.EmailJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, job.ID)
	q.failed++
	q.updateGauges()
	metrics.JobsTotal.WithLabelValues("failed").Inc()
}

// RequeueProcessing returns every in-flight job to pending; used on
// shutdown so no job is lost.
func (q *Queue) RequeueProcessing() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id, job := range q.processing {
		delete(q.processing, id)
		q.pending = append(q.pending, job)
		n++
	}
	q.updateGauges()
	return n
}

// Stats returns a snapshot of queue accounting.
func (q *Queue) Stats() domain.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return domain.QueueStats{
		Pending:    len(q.pending),
		Processing: len(q.processing),
		Completed:  q.completed,
		Failed:     q.failed,
		DeadLetter: len(q.dead),
	}
}

// DeadLetterJobs returns a snapshot of the dead-letter store.
func (q *Queue) DeadLetterJobs() []*domain.EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*domain.EmailJob, len(q.dead))
	copy(out, q.dead)
	return out
}

// RetryJob revives a dead-lettered job: attempts reset, error history
// cleared, immediately ready in pending. Returns false for unknown IDs.
func (q *Queue) RetryJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.dead {
		if job.ID != id {
			continue
		}
		q.dead = append(q.dead[:i], q.dead[i+1:]...)
		job.Attempts = 0
		job.ErrorHistory = nil
		job.NextRetry = q.now()
		q.pending = append(q.pending, job)
		q.updateGauges()
		return true
	}
	return false
}

// ClearDeadLetter empties the dead-letter store and returns how many jobs
// were dropped.
func (q *Queue) ClearDeadLetter() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.dead)
	q.dead = nil
	q.updateGauges()
	return n
}

// updateGauges must be called with the lock held.
func (q *Queue) updateGauges() {
	metrics.QueueDepth.WithLabelValues("pending").Set(float64(len(q.pending)))
	metrics.QueueDepth.WithLabelValues("processing").Set(float64(len(q.processing)))
	metrics.QueueDepth.WithLabelValues("dead_letter").Set(float64(len(q.dead)))
}
