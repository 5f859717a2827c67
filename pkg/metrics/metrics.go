package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	JobsInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_in_queue",
			Help: "Current number of jobs waiting in the work queue.",
		},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total number of fetch attempts by outcome.",
		},
		[]string{"outcome"}, // ok, timeout, transient, fatal, canceled
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Total number of finished jobs.",
		},
		[]string{"status", "error_kind"}, // status: ok, ng
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Duration of a job including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
		},
	)

	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	StoreFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_flushes_total",
			Help: "Total number of batch upserts by status.",
		},
		[]string{"status"}, // ok, retry, failed
	)

	StoreFlushedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_flushed_records_total",
			Help: "Total number of records written to the store.",
		},
	)
)
