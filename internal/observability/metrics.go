package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sales_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,partial,failed}
	RunDuration     prometheus.Histogram
	PipelineRunning prometheus.Gauge

	// Sales source metrics.
	SalesRowsRead     prometheus.Counter
	SalesRowsRejected prometheus.Counter

	// Enrichment metrics.
	LookupRequests *prometheus.CounterVec   // labels: source={customer,customer_bulk,weather}, outcome={success,not_found,error}
	LookupDuration *prometheus.HistogramVec // labels: source
	WeatherCache   *prometheus.CounterVec   // labels: result={hit,miss,expired}
	WeatherEnabled prometheus.Gauge

	// Load metrics.
	RowsLoaded *prometheus.CounterVec // labels: table, result={inserted,skipped}
	Issues     *prometheus.CounterVec // labels: kind

	MessagesProduced prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.SalesRowsRead,
		m.SalesRowsRejected,
		m.LookupRequests,
		m.LookupDuration,
		m.WeatherCache,
		m.WeatherEnabled,
		m.RowsLoaded,
		m.Issues,
		m.MessagesProduced,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      help("Pipeline runs by outcome."),
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete enrich-project-load run."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a run is in progress, 0 otherwise."),
		}),
		SalesRowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_rows_read_total",
			Help:      help("Total sales rows accepted from the sales source."),
		}),
		SalesRowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_rows_rejected_total",
			Help:      help("Total sales rows rejected by validation."),
		}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      help("Enrichment API requests by source and outcome."),
		}, []string{"source", "outcome"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      help("Enrichment API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      help("Weather cache lookups by result."),
		}, []string{"result"}),
		WeatherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weather_enabled",
			Help:      help("1 when weather enrichment is enabled, 0 otherwise."),
		}),
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      help("Rows written to the store by table and result."),
		}, []string{"table", "result"}),
		Issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      help("Warnings and errors reported by runs, by kind."),
		}, []string{"kind"}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      help("Total messages written to Kafka."),
		}),
	}
}
