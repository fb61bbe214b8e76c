// Package metrics exposes Prometheus collectors for the sequencer engine.
// It is an optional observability sink (gated by reporting.pulse): the
// engine core never imports this package directly, it only depends on
// the eventbus.Observer interface that this package's Sink implements.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the Prometheus collectors for operation
// lifecycle events.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	operationsTotal  *prometheus.CounterVec
	attemptsTotal    *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	rollbacksTotal   *prometheus.CounterVec
	guardDeniedTotal *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
	waveSize          *prometheus.HistogramVec

	inFlight  prometheus.Gauge
	uptime    prometheus.GaugeFunc
	startedAt time.Time
}

// Default histogram buckets for operation duration, in milliseconds.
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem. Safe to
// call once at process startup; subsequent calls replace the previous
// global instance (mirrors the package's prior single-registry idiom).
func InitPrometheus(namespace string, buckets []float64) *PrometheusMetrics {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry:  registry,
		startedAt: time.Now(),

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of operations reaching a terminal state",
			},
			[]string{"name", "type", "state"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_attempts_total",
				Help:      "Total number of handle invocations, including retries",
			},
			[]string{"name", "type"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_retries_total",
				Help:      "Total number of retry attempts scheduled",
			},
			[]string{"name"},
		),
		rollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_rollbacks_total",
				Help:      "Total number of rollback invocations",
			},
			[]string{"name", "outcome"},
		),
		guardDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_guard_denied_total",
				Help:      "Total number of operations denied by a guard",
			},
			[]string{"name", "guard"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_milliseconds",
				Help:      "Duration of a single handle invocation",
				Buckets:   buckets,
			},
			[]string{"name", "type"},
		),
		waveSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dependency_wave_size",
				Help:      "Number of operations in each dependency-resolved wave",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
			[]string{"plan"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "operations_in_flight",
				Help:      "Number of operations currently running",
			},
		),
	}
	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the metrics subsystem started",
		},
		func() float64 { return time.Since(pm.startedAt).Seconds() },
	)

	registry.MustRegister(
		pm.operationsTotal,
		pm.attemptsTotal,
		pm.retriesTotal,
		pm.rollbacksTotal,
		pm.guardDeniedTotal,
		pm.operationDuration,
		pm.waveSize,
		pm.inFlight,
		pm.uptime,
	)

	promMetrics = pm
	return pm
}

// PrometheusHandler returns an http.Handler serving the metrics registry.
// Returns nil if InitPrometheus has not been called.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return nil
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

func RecordOperation(name, opType, state string) {
	if promMetrics == nil {
		return
	}
	promMetrics.operationsTotal.WithLabelValues(name, opType, state).Inc()
}

func RecordAttempt(name, opType string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.attemptsTotal.WithLabelValues(name, opType).Inc()
	promMetrics.operationDuration.WithLabelValues(name, opType).Observe(float64(durationMs))
}

func RecordRetry(name string) {
	if promMetrics == nil {
		return
	}
	promMetrics.retriesTotal.WithLabelValues(name).Inc()
}

func RecordRollback(name, outcome string) {
	if promMetrics == nil {
		return
	}
	promMetrics.rollbacksTotal.WithLabelValues(name, outcome).Inc()
}

func RecordGuardDenied(name, guard string) {
	if promMetrics == nil {
		return
	}
	promMetrics.guardDeniedTotal.WithLabelValues(name, guard).Inc()
}

func RecordWaveSize(plan string, size int) {
	if promMetrics == nil {
		return
	}
	promMetrics.waveSize.WithLabelValues(plan).Observe(float64(size))
}

func SetInFlight(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.inFlight.Set(float64(n))
}
