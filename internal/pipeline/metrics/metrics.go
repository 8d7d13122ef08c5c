package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsIngested tracks normalized rejection records per payer
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_records_ingested_total",
			Help: "Total number of rejection records normalized",
		},
		[]string{"payer"},
	)

	// RowsRejected tracks malformed import rows skipped by the normalizer
	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_rows_rejected_total",
			Help: "Total number of malformed import rows skipped",
		},
		[]string{"field"},
	)

	// Corrections tracks correction engine routing decisions
	Corrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_corrections_total",
			Help: "Total number of correction decisions",
		},
		[]string{"route"}, // auto, manual_review
	)

	// Submissions tracks resubmission attempts by outcome
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_submissions_total",
			Help: "Total number of resubmission attempts",
		},
		[]string{"outcome"},
	)

	// SubmissionLatency tracks external submission call latency
	SubmissionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reclaim_submission_latency_seconds",
			Help:    "External submission call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// DeadLetters tracks claims routed to the dead-letter path
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_dead_letters_total",
			Help: "Total number of dead-lettered claims",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks current queued records per queue class
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reclaim_queue_depth",
			Help: "Current number of queued records per queue class",
		},
		[]string{"class"},
	)

	// BackpressureActive is 1 while a queue class exceeds its threshold
	BackpressureActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reclaim_backpressure_active",
			Help: "Whether backpressure is signaled for a queue class (0/1)",
		},
		[]string{"class"},
	)

	// Escalations tracks edge-triggered SLA escalation events
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_sla_escalations_total",
			Help: "Total number of SLA escalation events raised",
		},
		[]string{"band"},
	)

	// DBConnectionPoolUsage tracks database connection pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reclaim_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
