// Package metrics exposes the pipeline's operational counters both as JSON
// (§6 GET /metrics) and as Prometheus exposition format (§6 GET
// /metrics/prometheus), grounded on
// catchup-feed-backend/internal/observability/metrics/registry.go's
// promauto CounterVec/HistogramVec/Gauge construction style, replacing
// raito's hand-rolled internal/metrics/metrics.go (which has no
// Prometheus-exposition capability at all).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobsEnqueuedTotal counts jobs enqueued, by queue and job type.
var JobsEnqueuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eventcrawl_jobs_enqueued_total",
		Help: "Total number of jobs enqueued, by queue and job type.",
	},
	[]string{"queue", "type"},
)

// JobsCompletedTotal counts jobs reaching a terminal status.
var JobsCompletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eventcrawl_jobs_completed_total",
		Help: "Total number of jobs reaching a terminal status, by queue and status.",
	},
	[]string{"queue", "status"},
)

// JobDuration measures job processing latency in seconds, by queue.
var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "eventcrawl_job_duration_seconds",
		Help:    "Job processing duration in seconds, by queue.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"queue"},
)

// EventsIngestedTotal counts events POSTed to the backend ingest endpoint,
// by the backend's reported action.
var EventsIngestedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eventcrawl_events_ingested_total",
		Help: "Total number of events posted to the ingest endpoint, by outcome.",
	},
	[]string{"action"},
)

// DeepFetchesTotal counts deep-fetch attempts, by outcome.
var DeepFetchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eventcrawl_deep_fetches_total",
		Help: "Total number of deep-fetch attempts, by outcome (success, failed, skipped).",
	},
	[]string{"outcome"},
)

// HTTPRequestsTotal counts inbound HTTP requests, by method/path/status.
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eventcrawl_http_requests_total",
		Help: "Total number of inbound HTTP requests.",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration measures inbound request latency in seconds.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "eventcrawl_http_request_duration_seconds",
		Help:    "Inbound HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// AICostUSD is the gauge for the current UTC day's estimated AI spend.
var AICostUSD = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "eventcrawl_ai_cost_usd_daily",
		Help: "Estimated AI extraction spend for the current UTC day, in USD.",
	},
)

// RecordRequest records one completed inbound HTTP request.
func RecordRequest(method, path string, status int, latency time.Duration) {
	statusStr := statusClass(status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(latency.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// QueueDepths is the JSON /metrics endpoint's queues.depths shape.
type QueueDepths struct {
	Crawl    int64 `json:"crawl"`
	Classify int64 `json:"classify"`
	Score    int64 `json:"score"`
	Geocode  int64 `json:"geocode"`
}

// Snapshot is the full JSON body served at GET /metrics, matching §6's
// `{queues.depths, queues.total_pending, dlq.count, budget.{status,daily,monthly}, usage_7d}`
// shape.
type Snapshot struct {
	Queues struct {
		Depths        QueueDepths `json:"depths"`
		TotalPending  int64       `json:"total_pending"`
	} `json:"queues"`
	DLQ struct {
		Count int64 `json:"count"`
	} `json:"dlq"`
	Budget struct {
		Status  string  `json:"status"`
		Daily   float64 `json:"daily"`
		Monthly float64 `json:"monthly"`
	} `json:"budget"`
	Usage7d map[string]int64 `json:"usage_7d"`
}
