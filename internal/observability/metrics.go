package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reconciler"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// reconciliation pipeline.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Reconciliation outcome metrics.
	Comparisons      *prometheus.CounterVec // labels: classification
	AbsentSamples    prometheus.Counter
	UnresolvedLabels prometheus.Counter
	ReportsStored    *prometheus.CounterVec // labels: outcome={success,error}

	// Remote field source metrics.
	FieldLookups       *prometheus.CounterVec   // labels: kind={lattice,value}, outcome={success,error,absent}
	FieldCache         *prometheus.CounterVec   // labels: kind={lattice,value}, result={hit,miss}
	FieldAPIDuration   *prometheus.HistogramVec // labels: kind={lattice,value}
	FieldSourceEnabled prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
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
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      help("Total reconciliation units read from the source topic."),
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      help("Total reports written to the sink topic."),
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      help("Total units that could not be reconciled."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of units per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch extract-reconcile-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      help("Comparison results by agreement classification."),
		}, []string{"classification"}),
		AbsentSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absent_samples_total",
			Help:      help("Samples skipped because no value was available."),
		}),
		UnresolvedLabels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_labels_total",
			Help:      help("Distinct time labels per source that mapped to no canonical period."),
		}),
		ReportsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_stored_total",
			Help:      help("Report persistence attempts by outcome."),
		}, []string{"outcome"}),
		FieldLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_lookups_total",
			Help:      help("Remote field service requests by kind and outcome."),
		}, []string{"kind", "outcome"}),
		FieldCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_cache_total",
			Help:      help("Field cache lookups by kind and result."),
		}, []string{"kind", "result"}),
		FieldAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "field_api_duration_seconds",
			Help:      help("Remote field service request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),
		FieldSourceEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_source_enabled",
			Help:      help("1 when a remote field source is configured, 0 otherwise."),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Comparisons,
		m.AbsentSamples,
		m.UnresolvedLabels,
		m.ReportsStored,
		m.FieldLookups,
		m.FieldCache,
		m.FieldAPIDuration,
		m.FieldSourceEnabled,
	}
}
