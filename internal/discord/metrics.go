package discord

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_requests_total",
		Help: "Discord API requests by method and classified outcome",
	}, []string{"method", "outcome"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discord_request_duration_seconds",
		Help:    "Latency of single Discord API requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method"})
	retryWaitSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_retry_wait_seconds_total",
		Help: "Time spent waiting before retries, by reason",
	}, []string{"reason"})
)
