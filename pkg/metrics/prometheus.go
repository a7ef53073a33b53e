// Package metrics provides Prometheus metrics for the panelscore service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Recompute jobs
	jobsEnqueued  *prometheus.CounterVec
	jobsCoalesced *prometheus.CounterVec
	jobsProcessed *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobLatency    *prometheus.HistogramVec

	// Scorer
	scorerLatency  prometheus.Histogram
	scorerFailures *prometheus.CounterVec

	// Persistence
	subjectWrites       prometheus.Counter
	aggregateWrites     *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	versionConflicts    prometheus.Counter

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

var runtimeOnce sync.Once //nolint:gochecknoglobals // guards RegisterRuntimeCollectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "panelscore",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.jobsEnqueued = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "jobs_enqueued_total",
		Help: "Recompute jobs accepted by the queue, by kind",
	}, []string{"kind"})

	m.jobsCoalesced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "jobs_coalesced_total",
		Help: "Recompute jobs dropped because an identical job was already pending",
	}, []string{"kind"})

	m.jobsProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "jobs_processed_total",
		Help: "Recompute jobs completed, by kind",
	}, []string{"kind"})

	m.jobsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "jobs_failed_total",
		Help: "Recompute jobs that finished with at least one persistence failure",
	}, []string{"kind"})

	m.jobLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "job_latency_milliseconds",
		Help:    "Wall time of a recompute job in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"kind"})

	m.scorerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "scorer_latency_milliseconds",
		Help:    "Latency of external scorer calls in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.scorerFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "scorer_failures_total",
		Help: "Scorer calls that ended in ScoreUnavailable, by association side",
	}, []string{"side"})

	m.subjectWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "subject_writes_total",
		Help: "Subject documents persisted with updated embedded scores",
	})

	m.aggregateWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "aggregate_writes_total",
		Help: "Average score fields persisted, by entity",
	}, []string{"entity"})

	m.persistenceFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "persistence_failures_total",
		Help: "Failed store writes, by entity",
	}, []string{"entity"})

	m.versionConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "version_conflicts_total",
		Help: "Subject writes rejected because the stored version moved",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "queue_size",
		Help: "Current number of pending recompute jobs",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "queue_capacity",
		Help: "Maximum number of pending recompute jobs",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "queue_utilization_ratio",
		Help: "Pending jobs divided by capacity",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "queue_rejected_total",
		Help: "Jobs refused by the queue, by reason",
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "worker_count",
		Help: "Number of recompute workers",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordJobEnqueued counts a job accepted by the queue.
func RecordJobEnqueued(kind string) {
	globalManager.jobsEnqueued.WithLabelValues(kind).Inc()
}

// RecordJobCoalesced counts a job dropped as a duplicate of a pending one.
func RecordJobCoalesced(kind string) {
	globalManager.jobsCoalesced.WithLabelValues(kind).Inc()
}

// RecordJobProcessed counts a finished job and its wall time.
func RecordJobProcessed(kind string, latencyMs float64) {
	globalManager.jobsProcessed.WithLabelValues(kind).Inc()
	globalManager.jobLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordJobFailed counts a job that finished with errors.
func RecordJobFailed(kind string) {
	globalManager.jobsFailed.WithLabelValues(kind).Inc()
}

// RecordScorerLatency records one scorer call.
func RecordScorerLatency(latencyMs float64) {
	globalManager.scorerLatency.Observe(latencyMs)
}

// RecordScorerFailure counts a ScoreUnavailable outcome. side is "expert" or "candidate".
func RecordScorerFailure(side string) {
	globalManager.scorerFailures.WithLabelValues(side).Inc()
}

// RecordSubjectWrite counts a persisted subject document.
func RecordSubjectWrite() {
	globalManager.subjectWrites.Inc()
}

// RecordAggregateWrite counts persisted average fields for entity.
func RecordAggregateWrite(entity string) {
	globalManager.aggregateWrites.WithLabelValues(entity).Inc()
}

// RecordPersistenceFailure counts a failed write for entity.
func RecordPersistenceFailure(entity string) {
	globalManager.persistenceFailures.WithLabelValues(entity).Inc()
}

// RecordVersionConflict counts a rejected conditional subject write.
func RecordVersionConflict() {
	globalManager.versionConflicts.Inc()
}

// UpdateQueueSize sets the pending job gauge and the derived utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a job refused by the queue.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest counts one HTTP request and observes its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors to the
// service registry. Safe to call more than once.
func RegisterRuntimeCollectors() {
	runtimeOnce.Do(func() {
		customRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
