package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_jobs_processed_total",
		Help: "Notification jobs handled by the consumer, by job type and result",
	}, []string{"type", "result"})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_job_processing_duration_seconds",
		Help:    "Time taken to process one notification job, throttle excluded",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
	jobsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_jobs_published_total",
		Help: "Notification jobs enqueued by the change publisher",
	}, []string{"type"})
	changesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_changes_skipped_total",
		Help: "Shipment changes that did not produce a job, by reason",
	}, []string{"reason"})
	duplicateDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_duplicate_deliveries_total",
		Help: "Queue messages skipped because the inbox already recorded them",
	})
)
