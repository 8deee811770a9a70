package domain

import "time"

// Priority orders jobs in the queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its dequeue order (lower dequeues first).
// Unknown values rank below low so a malformed job never starves real work.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Attachment is an opaque payload carried with an email job.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data,omitempty"`
}

// ErrorRecord captures one failed delivery attempt.
type ErrorRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error"`
	Code      string        `json:"code,omitempty"`
	Category  ErrorCategory `json:"category"`
}

// EmailJob is a unit of outbound delivery work. A job lives in exactly one of
// the pending, processing, or dead-letter stores at any moment.
type EmailJob struct {
	ID           string        `json:"id"`
	Recipient    string        `json:"recipient"`
	Subject      string        `json:"subject"`
	Content      string        `json:"content"`
	Attachments  []Attachment  `json:"attachments,omitempty"`
	Priority     Priority      `json:"priority"`
	CreatedAt    time.Time     `json:"created_at"`
	Attempts     int           `json:"attempts"`
	LastAttempt  time.Time     `json:"last_attempt,omitempty"`
	NextRetry    time.Time     `json:"next_retry,omitempty"`
	ErrorHistory []ErrorRecord `json:"error_history,omitempty"`
}

// JobSpec is the caller-supplied part of a job; the queue assigns identity
// and bookkeeping fields on enqueue.
type JobSpec struct {
	Recipient   string       `json:"recipient"`
	Subject     string       `json:"subject"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Priority    Priority     `json:"priority"`
}

// RetryResult is the terminal outcome of driving one job through the retry
// cycle.
type RetryResult struct {
	Success     bool          `json:"success"`
	Attempts    int           `json:"attempts"`
	TotalTime   time.Duration `json:"total_time"`
	FinalError  string        `json:"final_error,omitempty"`
	DeliveredAt time.Time     `json:"delivered_at,omitempty"`
}
