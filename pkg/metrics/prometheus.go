// Package metrics provides Prometheus metrics for the lineup queue service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Claim outcomes used as label values.
const (
	ClaimClaimed     = "claimed"
	ClaimLineEmpty   = "line_empty"
	ClaimCounterBusy = "counter_busy"
	ClaimError       = "error"
)

// Manager manages all Prometheus metrics for the lineup service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Core queue metrics
	joins          *prometheus.CounterVec
	claims         *prometheus.CounterVec
	claimConflicts prometheus.Counter
	claimAttempts  prometheus.Histogram
	transitions    *prometheus.CounterVec
	waitingEntries *prometheus.GaugeVec
	etaMinutes     prometheus.Histogram
	serviceMinutes *prometheus.GaugeVec

	// Notification metrics
	notificationsPublished *prometheus.CounterVec
	notificationsFailed    *prometheus.CounterVec
	streamSubscribers      prometheus.Gauge

	// Autopilot metrics
	autopilotTicks   *prometheus.CounterVec
	autopilotWorkers prometheus.Gauge

	// Store metrics
	storeOpLatency *prometheus.HistogramVec
	storeEntries   prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lineup",
		subsystem:        "queue",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.joins = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("joins_total"),
			Help:        "Total number of accepted joins by service class",
			ConstLabels: m.customLabels,
		},
		[]string{"service_class"},
	)

	m.claims = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("claims_total"),
			Help:        "Total number of claim-next calls by outcome",
			ConstLabels: m.customLabels,
		},
		[]string{"outcome"},
	)

	m.claimConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("claim_conflicts_total"),
		Help:        "Total number of claims lost to a concurrent caller",
		ConstLabels: m.customLabels,
	})

	m.claimAttempts = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("claim_attempts"),
		Help:        "Attempts used by a single claim-next call",
		Buckets:     []float64{1, 2, 3, 4, 5, 8, 13},
		ConstLabels: m.customLabels,
	})

	m.transitions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("transitions_total"),
			Help:        "Total number of entry status transitions by target status",
			ConstLabels: m.customLabels,
		},
		[]string{"status"},
	)

	m.waitingEntries = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("waiting_entries"),
			Help:        "Waiting entries per line at the last metrics read",
			ConstLabels: m.customLabels,
		},
		[]string{"line_id"},
	)

	m.etaMinutes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("eta_minutes"),
		Help:        "Estimated wait returned to participants in minutes",
		Buckets:     []float64{0, 1, 3, 5, 10, 15, 30, 60, 120, 240},
		ConstLabels: m.customLabels,
	})

	m.serviceMinutes = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("average_service_minutes"),
			Help:        "Estimated average service time per line in minutes",
			ConstLabels: m.customLabels,
		},
		[]string{"line_id"},
	)

	m.notificationsPublished = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("notifications_published_total"),
			Help:        "Total number of notifications published by kind",
			ConstLabels: m.customLabels,
		},
		[]string{"kind"},
	)

	m.notificationsFailed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("notifications_failed_total"),
			Help:        "Total number of notifications that could not be delivered by kind",
			ConstLabels: m.customLabels,
		},
		[]string{"kind"},
	)

	m.streamSubscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("stream_subscribers"),
		Help:        "Current number of notification stream subscribers",
		ConstLabels: m.customLabels,
	})

	m.autopilotTicks = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("autopilot_ticks_total"),
			Help:        "Total number of autopilot ticks by outcome",
			ConstLabels: m.customLabels,
		},
		[]string{"outcome"},
	)

	m.autopilotWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("autopilot_workers"),
		Help:        "Current number of running autopilot workers",
		ConstLabels: m.customLabels,
	})

	m.storeOpLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("store_operation_latency_milliseconds"),
			Help:        "Store operation latency in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"store", "operation"},
	)

	m.storeEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_entries"),
		Help:        "Entries held by the in-memory store",
		ConstLabels: m.customLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Total number of errors by component",
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "Total number of errors by endpoint",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: m.customLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) name(base string) string {
	if m.metricPrefix == "" {
		return base
	}
	return m.metricPrefix + "_" + base
}

// RecordJoin increments the joins counter for a service class.
func RecordJoin(serviceClass string) {
	globalManager.joins.WithLabelValues(serviceClass).Inc()
}

// RecordClaim increments the claims counter for an outcome.
func RecordClaim(outcome string) {
	globalManager.claims.WithLabelValues(outcome).Inc()
}

// RecordClaimConflict increments the lost-race counter.
func RecordClaimConflict() {
	globalManager.claimConflicts.Inc()
}

// RecordClaimAttempts records how many attempts a claim needed.
func RecordClaimAttempts(n int) {
	globalManager.claimAttempts.Observe(float64(n))
}

// RecordTransition increments the transitions counter for a target status.
func RecordTransition(status string) {
	globalManager.transitions.WithLabelValues(status).Inc()
}

// UpdateWaitingEntries sets the waiting gauge of a line.
func UpdateWaitingEntries(lineID string, count int) {
	globalManager.waitingEntries.WithLabelValues(lineID).Set(float64(count))
}

// RecordETA records an estimated wait handed to a participant.
func RecordETA(minutes int) {
	globalManager.etaMinutes.Observe(float64(minutes))
}

// UpdateAverageServiceMinutes sets the service time estimate of a line.
func UpdateAverageServiceMinutes(lineID string, minutes int) {
	globalManager.serviceMinutes.WithLabelValues(lineID).Set(float64(minutes))
}

// RecordNotificationPublished increments the published counter for a kind.
func RecordNotificationPublished(kind string) {
	globalManager.notificationsPublished.WithLabelValues(kind).Inc()
}

// RecordNotificationFailed increments the failed counter for a kind.
func RecordNotificationFailed(kind string) {
	globalManager.notificationsFailed.WithLabelValues(kind).Inc()
}

// UpdateStreamSubscribers sets the number of live stream subscribers.
func UpdateStreamSubscribers(count int) {
	globalManager.streamSubscribers.Set(float64(count))
}

// RecordAutopilotTick increments the autopilot tick counter for an outcome.
func RecordAutopilotTick(outcome string) {
	globalManager.autopilotTicks.WithLabelValues(outcome).Inc()
}

// UpdateAutopilotWorkers sets the number of running autopilot workers.
func UpdateAutopilotWorkers(count int) {
	globalManager.autopilotWorkers.Set(float64(count))
}

// RecordStoreOperation records the latency of a store call started at start.
func RecordStoreOperation(store, operation string, start time.Time) {
	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	globalManager.storeOpLatency.WithLabelValues(store, operation).Observe(ms)
}

// UpdateStoreEntries sets the number of entries held in memory.
func UpdateStoreEntries(count int) {
	globalManager.storeEntries.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
