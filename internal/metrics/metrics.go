// Package metrics defines the Prometheus metrics exported by the fetcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks API requests per operation and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"operation", "status"},
	)

	// RequestLatency tracks API request latency, retries included
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetcher_request_latency_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RetriesTotal tracks retry decisions per operation
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_retries_total",
			Help: "Total number of classified request failures",
		},
		[]string{"operation", "action"},
	)

	// PagesTotal tracks pages yielded per query flow
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_pages_total",
			Help: "Total number of result pages fetched",
		},
		[]string{"flow"},
	)

	// ItemsTotal tracks items yielded per query flow
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_items_total",
			Help: "Total number of result items fetched",
		},
		[]string{"flow"},
	)

	// CacheLookups tracks page cache lookups by result (hit, miss, error)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_cache_lookups_total",
			Help: "Total number of page cache lookups",
		},
		[]string{"result"},
	)

	// RateLimitWait tracks time spent waiting for the client rate limiter
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetcher_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the request rate limiter",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SkippedValues tracks attribute values dropped during decoding
	SkippedValues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_skipped_values_total",
			Help: "Total number of attribute values skipped during decoding",
		},
		[]string{"reason"},
	)

	// DBConnectionPoolUsage tracks the table sink connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_db_connection_pool_usage_percent",
			Help: "Table sink connection pool usage percentage",
		},
	)
)
