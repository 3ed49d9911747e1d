// Package metrics defines the Prometheus instruments for ingestion
// and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for
// the ingestion pipeline.
type Metrics struct {
	IngestRuns      *prometheus.CounterVec // labels: trigger={scheduled,manual}, outcome={completed,busy}
	ConnectorEvents *prometheus.CounterVec // labels: connector
	ConnectorErrors *prometheus.CounterVec // labels: connector
	AlertsFired     prometheus.Counter
	IngestRunning   prometheus.Gauge

	IngestDuration    prometheus.Histogram
	ConnectorDuration *prometheus.HistogramVec // labels: connector
}

func build() *Metrics {
	return &Metrics{
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldmonitor",
			Name:      "ingest_runs_total",
			Help:      "Ingestion passes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		ConnectorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldmonitor",
			Name:      "connector_events_total",
			Help:      "Normalized events produced per connector.",
		}, []string{"connector"}),
		ConnectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldmonitor",
			Name:      "connector_errors_total",
			Help:      "Failed connector runs per connector.",
		}, []string{"connector"}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldmonitor",
			Name:      "alerts_fired_total",
			Help:      "Alert events written to the inbox.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldmonitor",
			Name:      "ingest_running",
			Help:      "1 while an ingestion pass is in flight.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worldmonitor",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete ingestion pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ConnectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "worldmonitor",
			Name:      "connector_duration_seconds",
			Help:      "Duration of a single connector fetch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"connector"}),
	}
}

// New creates and registers all pipeline metrics with the default
// Prometheus registry.
func New() *Metrics {
	m := build()
	prometheus.MustRegister(
		m.IngestRuns,
		m.ConnectorEvents,
		m.ConnectorErrors,
		m.AlertsFired,
		m.IngestRunning,
		m.IngestDuration,
		m.ConnectorDuration,
	)
	return m
}

// NewForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewForTesting() *Metrics {
	return build()
}
