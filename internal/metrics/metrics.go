package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateLimitDecisions tracks admission decisions per limiter
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_ratelimit_decisions_total",
			Help: "Total number of rate limit admission decisions",
		},
		[]string{"limiter", "allowed"},
	)

	// RateLimitBreaches tracks breach notifications per limiter and level
	RateLimitBreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_ratelimit_breaches_total",
			Help: "Total number of rate limit breaches",
		},
		[]string{"limiter", "level"},
	)

	// JobsTotal tracks terminal job outcomes
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_jobs_total",
			Help: "Total number of jobs by terminal outcome",
		},
		[]string{"outcome"},
	)

	// SendAttempts tracks individual delivery attempts
	SendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_send_attempts_total",
			Help: "Total number of delivery attempts",
		},
		[]string{"result"},
	)

	// QueueDepth tracks the live size of each job store
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courier_queue_depth",
			Help: "Current number of jobs per queue state",
		},
		[]string{"state"},
	)

	// SendDuration tracks delivery attempt latency
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courier_send_duration_seconds",
			Help:    "Delivery attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
