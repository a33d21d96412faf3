package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wxstats"

// Metrics holds the Prometheus collectors for the ingestion and aggregation
// runs and the query server.
type Metrics struct {
	// Ingestion metrics.
	FilesProcessed  *prometheus.CounterVec // labels: outcome={ingested,duplicate,empty}
	RecordsInserted prometheus.Counter
	ParseFailures   *prometheus.CounterVec // labels: action={aborted,skipped}

	// Aggregation metrics.
	StatsWritten *prometheus.CounterVec // labels: result={inserted,updated}

	RunDuration *prometheus.HistogramVec // labels: run={ingest,aggregate}

	// Query server metrics.
	HTTPRequests        *prometheus.CounterVec   // labels: method, status
	HTTPRequestDuration *prometheus.HistogramVec // labels: method
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Input files handled by ingestion runs, by outcome.",
		}, []string{"outcome"}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Raw weather records written to the store.",
		}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Malformed input lines, by whether they aborted the run or were skipped.",
		}, []string{"action"}),
		StatsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_written_total",
			Help:      "Yearly station stats written by aggregation runs.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"run"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Query API requests by method and status code.",
		}, []string{"method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Query API request latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesProcessed,
		m.RecordsInserted,
		m.ParseFailures,
		m.StatsWritten,
		m.RunDuration,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	}
}

// NewMetrics creates all metrics and registers them with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewUnregisteredMetrics creates Metrics that no registry exports. It is the
// default of components built without explicit metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewBatchMetrics creates Metrics registered with a registry of their own,
// for one-shot runs that push their results instead of being scraped.
func NewBatchMetrics() (*Metrics, *prometheus.Registry) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	return m, reg
}

// NewMetricsForTesting creates Metrics backed by a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
