package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline outcome metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_pipeline_events_total",
			Help: "Total number of events by pipeline outcome",
		},
		[]string{"outcome"},
	)

	PersistRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_pipeline_persist_retries_total",
			Help: "Total number of storage write retries",
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_pipeline_publish_failures_total",
			Help: "Total number of best-effort publish failures",
		},
	)

	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "killfeed_enrich_duration_seconds",
			Help:    "Duration of killmail enrichment in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "killfeed_storage_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Valuation metrics
	PriceLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_price_lookups_total",
			Help: "Total number of price resolutions by winning source",
		},
		[]string{"source"},
	)

	// Matching and alerting metrics
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_matches_total",
			Help: "Total number of watch-criteria matches",
		},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_alerts_total",
			Help: "Total number of alerts by type",
		},
		[]string{"type"},
	)

	// Task supervision metrics
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "killfeed_tasks_running",
			Help: "Number of currently supervised tasks",
		},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killfeed_tasks_total",
			Help: "Total number of supervised tasks by outcome",
		},
		[]string{"outcome"},
	)

	TaskRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "killfeed_task_rejections_total",
			Help: "Total number of tasks rejected at capacity",
		},
	)
)
