package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the evaluator. A nil Metrics
// is valid and records nothing, so callers never need to guard.
type Metrics struct {
	config MetricsConfig

	// Bridge metrics
	bridgeBuildDuration  prometheus.Histogram
	kconfigParseDuration prometheus.Histogram
	symbolsLoaded        prometheus.Gauge

	// Assignment metrics
	assignmentsTotal *prometheus.CounterVec
	assignmentErrors *prometheus.CounterVec

	// Satisfier metrics
	satisfierRuns     *prometheus.CounterVec
	satisfierDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given
// configuration. With Enabled false a no-op instance is returned.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		bridgeBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_build_duration_seconds",
			Help:      "Duration of bridge shared library builds in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		kconfigParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kconfig_parse_duration_seconds",
			Help:      "Duration of Kconfig parsing in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		symbolsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols_loaded",
			Help:      "Number of named symbols loaded from Kconfig",
		}),
		assignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Total number of mediated symbol assignments",
		}, []string{"result"}),
		assignmentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_errors_total",
			Help:      "Assignment failures by error kind",
		}, []string{"kind"}),
		satisfierRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "satisfier_runs_total",
			Help:      "Satisfier invocations by result",
		}, []string{"result"}),
		satisfierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "satisfier_duration_seconds",
			Help:      "Duration of satisfier runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.bridgeBuildDuration, m.kconfigParseDuration, m.symbolsLoaded,
		m.assignmentsTotal, m.assignmentErrors,
		m.satisfierRuns, m.satisfierDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry exposes the underlying registry for scraping or dumping.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBridgeBuild records the duration of one bridge build.
func (m *Metrics) ObserveBridgeBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.bridgeBuildDuration.Observe(d.Seconds())
}

// ObserveParse records the duration of one Kconfig parse and the
// resulting symbol count.
func (m *Metrics) ObserveParse(d time.Duration, symbols int) {
	if m == nil {
		return
	}
	m.kconfigParseDuration.Observe(d.Seconds())
	m.symbolsLoaded.Set(float64(symbols))
}

// ObserveAssignment records one mediated assignment outcome.
func (m *Metrics) ObserveAssignment(errKind string) {
	if m == nil {
		return
	}
	if errKind == "" {
		m.assignmentsTotal.WithLabelValues("ok").Inc()
		return
	}
	m.assignmentsTotal.WithLabelValues("error").Inc()
	m.assignmentErrors.WithLabelValues(errKind).Inc()
}

// ObserveSatisfierRun records one satisfier invocation.
func (m *Metrics) ObserveSatisfierRun(d time.Duration, errKind string) {
	if m == nil {
		return
	}
	result := "ok"
	if errKind != "" {
		result = errKind
	}
	m.satisfierRuns.WithLabelValues(result).Inc()
	m.satisfierDuration.Observe(d.Seconds())
}
