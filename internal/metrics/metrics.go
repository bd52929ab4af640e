// Package metrics exposes prometheus collectors for queue depth, pipeline
// throughput, and stage latency. The orchestrator updates these directly;
// nothing here scrapes queue state on its own timer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// Collectors bundles every metric the orchestrator reports against. It is
// constructed once and handed to the orchestrator by reference, the same
// dependency-injection shape every other collaborator uses.
type Collectors struct {
	QueueDepth       *prometheus.GaugeVec
	ActiveSearches   prometheus.Gauge
	ActiveDownloads  prometheus.Gauge
	Transitions      *prometheus.CounterVec
	RetriesExhausted *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
}

// New registers and returns the orchestrator's metric set against the
// default prometheus registry.
func New() *Collectors {
	return &Collectors{
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_queue_depth",
			Help: "Number of queue items currently in each status.",
		}, []string{"status"}),

		ActiveSearches: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_active_searches",
			Help: "Number of searches currently in flight.",
		}),

		ActiveDownloads: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_active_downloads",
			Help: "Number of downloads currently in flight, torrent and catalog combined.",
		}),

		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_transitions_total",
			Help: "Count of status transitions, labeled by source and destination status.",
		}, []string{"from", "to"}),

		RetriesExhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_retries_exhausted_total",
			Help: "Count of items that hit their retry budget and became permanently failed.",
		}, []string{"failure_kind"}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_stage_duration_seconds",
			Help:    "Wall-clock duration of a pipeline stage's processing pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// SetQueueDepth reports the current count for every known status in one
// call, zeroing any status not present in counts so a status that just
// emptied out doesn't linger at its last nonzero value.
func (c *Collectors) SetQueueDepth(counts map[statemachine.Status]int) {
	for _, s := range allStatuses {
		c.QueueDepth.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// RecordTransition increments the transition counter for a from→to pair.
func (c *Collectors) RecordTransition(from, to statemachine.Status) {
	c.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordRetryExhausted increments the permanent-failure counter for kind.
func (c *Collectors) RecordRetryExhausted(kind statemachine.FailureKind) {
	c.RetriesExhausted.WithLabelValues(string(kind)).Inc()
}

var allStatuses = []statemachine.Status{
	statemachine.Queued,
	statemachine.Searching,
	statemachine.Found,
	statemachine.Downloading,
	statemachine.AudibleDownloading,
	statemachine.Paused,
	statemachine.Complete,
	statemachine.Converting,
	statemachine.Converted,
	statemachine.Importing,
	statemachine.Imported,
	statemachine.Seeding,
	statemachine.SeedingComplete,
	statemachine.SearchFailed,
	statemachine.DownloadFailed,
	statemachine.AudibleDownloadFailed,
	statemachine.ConversionFailed,
	statemachine.ImportFailed,
	statemachine.Cancelled,
}

// Handler returns the HTTP handler serving the registered collectors in
// the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
