package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests tracks upstream API calls per action.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerscan_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"action"},
	)

	// UpstreamRetries tracks transient upstream failures that were retried.
	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerscan_upstream_retries_total",
			Help: "Total number of retried upstream requests",
		},
		[]string{"reason"},
	)

	// UpstreamLatency tracks upstream request latency per action.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerscan_upstream_latency_seconds",
			Help:    "Upstream request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// PagesFetched tracks result pages drained per record kind.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerscan_pages_fetched_total",
			Help: "Total number of result pages fetched",
		},
		[]string{"kind"},
	)

	// SegmentsCompleted tracks fully drained block windows.
	SegmentsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerscan_segments_completed_total",
			Help: "Total number of completed crawl segments",
		},
	)

	// CapHits tracks query-cap detections that forced a window shrink.
	CapHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerscan_query_cap_hits_total",
			Help: "Total number of query cap hits",
		},
	)

	// JobsCreated tracks crawl jobs created since start.
	JobsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerscan_jobs_created_total",
			Help: "Total number of crawl jobs created",
		},
	)

	// JobsActive tracks crawl jobs with a live worker.
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerscan_jobs_active",
			Help: "Number of currently running crawl jobs",
		},
	)
)
