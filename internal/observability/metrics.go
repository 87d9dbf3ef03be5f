package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "powell_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the collectors.
type Metrics struct {
	SourceRequests  *prometheus.CounterVec // labels: source, outcome={success,empty,error}
	RecordsWritten  *prometheus.CounterVec // labels: kind={water,weather,snowpack,snotel,snotel_site,capacity,analysis,ramp}
	RecordsRejected *prometheus.CounterVec // labels: metric
	GapDays         *prometheus.CounterVec // labels: kind={water,weather}

	CollectorRunning prometheus.Gauge
	LastSuccess      prometheus.Gauge
	RunDuration      prometheus.Histogram
}

// NewMetrics creates and registers all collector metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SourceRequests,
		m.RecordsWritten,
		m.RecordsRejected,
		m.GapDays,
		m.CollectorRunning,
		m.LastSuccess,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Upstream fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Rows written to the store by record kind.",
		}, []string{"kind"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Candidate readings rejected by range validation.",
		}, []string{"metric"}),
		GapDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gap_days_detected_total",
			Help:      "Missing days detected between the store and today.",
		}, []string{"kind"}),
		CollectorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collector_running",
			Help:      "1 while the daily collector loop is active, 0 when shut down.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed daily run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete daily collection run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
	}
}
