// Package metrics provides Prometheus metrics for the proximity engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric exposed by the engine.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Ingestion
	sightingsReceived prometheus.Counter
	sightingsRejected *prometheus.CounterVec
	decisionOutcomes  *prometheus.CounterVec
	alertsEmitted     prometheus.Counter
	pipelineLatency   prometheus.Histogram

	// Estimation
	estimatorFallbacks prometheus.Counter

	// Calibration cache
	calibrationPairs  prometheus.Gauge
	calibrationPoints prometheus.Gauge
	cacheReloads      prometheus.Counter

	// Command dispatch
	commandsByResult *prometheus.CounterVec

	// Durable store
	persistenceErrors *prometheus.CounterVec

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueueErrs prometheus.Counter
	workerCount      prometheus.Gauge

	// Retention sweeps
	sweepRuns     prometheus.Counter
	sweepDeleted  *prometheus.CounterVec
	sweepDuration prometheus.Histogram

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithRegistry registers metrics on a custom registry.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

var (
	globalManager  *Manager                   //nolint:gochecknoglobals // singleton metrics manager
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // dedicated registry without default collectors
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// GetRegistry exposes the registry for the /healthz handler.
func GetRegistry() *prometheus.Registry { return customRegistry }

// NewManager creates a Manager and registers all metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "proximity",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.sightingsReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "pipeline",
		Name: "sightings_received_total",
		Help: "Total inbound sighting/report messages accepted for processing",
	})
	m.sightingsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "pipeline",
		Name: "sightings_rejected_total",
		Help: "Total inbound messages rejected at the boundary, by reason",
	}, []string{"reason"})
	m.decisionOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "pipeline",
		Name: "decisions_total",
		Help: "Pipeline decisions by outcome (alerted, too_far, vibration_off)",
	}, []string{"outcome"})
	m.alertsEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "pipeline",
		Name: "alerts_emitted_total",
		Help: "Total proximity alerts recorded",
	})
	m.pipelineLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "pipeline",
		Name:    "decision_latency_milliseconds",
		Help:    "Histogram of end-to-end decision latency per sighting",
		Buckets: prometheus.DefBuckets,
	})

	m.estimatorFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "estimator",
		Name: "path_loss_fallbacks_total",
		Help: "Estimates served by the path-loss model due to insufficient calibration",
	})

	m.calibrationPairs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "calibration",
		Name: "pairs",
		Help: "Beacon-gateway pairs currently held in the calibration cache",
	})
	m.calibrationPoints = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "calibration",
		Name: "points",
		Help: "Calibration points currently held in the calibration cache",
	})
	m.cacheReloads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "calibration",
		Name: "reloads_total",
		Help: "Completed cache reloads from the durable store",
	})

	m.commandsByResult = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "dispatch",
		Name: "commands_total",
		Help: "Device commands by publish result (delivered, not_connected, timed_out)",
	}, []string{"result"})

	m.persistenceErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "store",
		Name: "persistence_errors_total",
		Help: "Durable store failures by operation",
	}, []string{"operation"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "size",
		Help: "Sightings currently queued for processing",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "capacity",
		Help: "Configured queue capacity",
	})
	m.queueEnqueueErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "enqueue_errors_total",
		Help: "Enqueue attempts rejected by backpressure or shutdown",
	})
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "worker",
		Name: "count",
		Help: "Running ingestion workers",
	})

	m.sweepRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "retention",
		Name: "sweep_runs_total",
		Help: "Completed retention sweep runs",
	})
	m.sweepDeleted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "retention",
		Name: "deleted_total",
		Help: "Records deleted by retention sweeps, by log type and severity",
	}, []string{"log_type", "severity"})
	m.sweepDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "retention",
		Name:    "sweep_duration_milliseconds",
		Help:    "Histogram of retention sweep run duration",
		Buckets: prometheus.DefBuckets,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "http",
		Name: "requests_total",
		Help: "HTTP requests by endpoint, method, and status",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "http",
		Name:    "request_duration_milliseconds",
		Help:    "Histogram of HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})

	return m
}

// Package-level helpers against the global manager.

func RecordSightingReceived() { globalManager.sightingsReceived.Inc() }

func RecordSightingRejected(reason string) {
	globalManager.sightingsRejected.WithLabelValues(reason).Inc()
}

func RecordDecision(outcome string) { globalManager.decisionOutcomes.WithLabelValues(outcome).Inc() }

func RecordAlertEmitted() { globalManager.alertsEmitted.Inc() }

func RecordPipelineLatency(ms float64) { globalManager.pipelineLatency.Observe(ms) }

func RecordEstimatorFallback() { globalManager.estimatorFallbacks.Inc() }

func UpdateCalibrationPairs(n int) { globalManager.calibrationPairs.Set(float64(n)) }

func UpdateCalibrationPoints(n int) { globalManager.calibrationPoints.Set(float64(n)) }

func RecordCacheReload() { globalManager.cacheReloads.Inc() }

func RecordCommandResult(result string) {
	globalManager.commandsByResult.WithLabelValues(result).Inc()
}

func RecordPersistenceError(operation string) {
	globalManager.persistenceErrors.WithLabelValues(operation).Inc()
}

func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

func RecordQueueEnqueueError() { globalManager.queueEnqueueErrs.Inc() }

func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

func RecordSweepRun() { globalManager.sweepRuns.Inc() }

func RecordSweepDuration(ms float64) { globalManager.sweepDuration.Observe(ms) }

func RecordSweepDeleted(logType, severity string, n int64) {
	globalManager.sweepDeleted.WithLabelValues(logType, severity).Add(float64(n))
}

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}
