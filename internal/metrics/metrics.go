// Package metrics provides Prometheus metrics for the viewer core
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the viewer core
type Metrics struct {
	// Engine call metrics
	EngineCallsTotal   *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec
	OpensInFlight      prometheus.Gauge

	// Tree navigation metrics
	PageFetchesTotal    prometheus.Counter
	FetchGuardHitsTotal prometheus.Counter
	FetchFailuresTotal  prometheus.Counter
	SubtreeExpandsTotal prometheus.Counter

	// Search metrics
	SearchQueriesTotal prometheus.Counter
	SearchResultsTotal prometheus.Counter
	StreamBatchesTotal prometheus.Counter
	StaleDropsTotal    prometheus.Counter

	// Document session metrics
	DocumentOpensTotal  *prometheus.CounterVec
	ProgressEventsTotal prometheus.Counter

	// Process metrics
	UptimeSeconds prometheus.Gauge
	StartTime     time.Time
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	m := &Metrics{
		StartTime: time.Now(),
	}

	m.EngineCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snappy_engine_calls_total",
			Help: "Total number of engine calls",
		},
		[]string{"call", "status"},
	)

	m.EngineCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snappy_engine_call_duration_seconds",
			Help:    "Duration of engine calls in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"call"},
	)

	m.OpensInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snappy_opens_in_flight",
			Help: "Number of document opens currently in progress",
		},
	)

	m.PageFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_page_fetches_total",
			Help: "Total number of child page fetches issued",
		},
	)

	m.FetchGuardHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_fetch_guard_hits_total",
			Help: "Fetches skipped because the pointer already had one in flight",
		},
	)

	m.FetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_fetch_failures_total",
			Help: "Total number of failed child page fetches",
		},
	)

	m.SubtreeExpandsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_subtree_expands_total",
			Help: "Total number of recursive subtree expansions",
		},
	)

	m.SearchQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_search_queries_total",
			Help: "Total number of search requests issued",
		},
	)

	m.SearchResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_search_results_total",
			Help: "Total number of search results received",
		},
	)

	m.StreamBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_stream_batches_total",
			Help: "Total number of streaming search batches applied",
		},
	)

	m.StaleDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_stale_drops_total",
			Help: "Responses and events dropped because their token was superseded",
		},
	)

	m.DocumentOpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snappy_document_opens_total",
			Help: "Total number of document opens",
		},
		[]string{"status"},
	)

	m.ProgressEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snappy_progress_events_total",
			Help: "Total number of progress events emitted",
		},
	)

	m.UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snappy_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.UptimeSeconds.Set(time.Since(m.StartTime).Seconds())
	}
}

// RecordEngineCall records an engine call with its status
func (m *Metrics) RecordEngineCall(call string, status string, duration time.Duration) {
	m.EngineCallsTotal.WithLabelValues(call, status).Inc()
	m.EngineCallDuration.WithLabelValues(call).Observe(duration.Seconds())
}
