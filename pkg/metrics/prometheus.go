// Package metrics provides Prometheus metrics for the fishy service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Label values shared by callers.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
	DecisionError   = "error"
)

// Manager manages all Prometheus metrics for the fishy service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Draws
	draws       *prometheus.CounterVec
	drawLatency prometheus.Histogram

	// Cooldowns
	cooldownDecisions *prometheus.CounterVec

	// Trades
	trades             *prometheus.CounterVec
	tradeCommitLatency prometheus.Histogram
	pendingTrades      prometheus.Gauge

	// Ingestion
	ingestionRuns       *prometheus.CounterVec
	listRefreshDuration *prometheus.HistogramVec
	listItems           *prometheus.GaugeVec
	listRefreshFailures *prometheus.CounterVec
	listLastRefreshUnix *prometheus.GaugeVec

	// Notification queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerActiveCount  prometheus.Gauge
	deliveryLatency    *prometheus.HistogramVec
	deliveryErrors     *prometheus.CounterVec

	// Storage
	storageErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsClients           prometheus.Gauge

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before anything records or scrapes.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	customRegistry = registry
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fishy",
		subsystem:        "game",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		refreshInterval:  defaultRefreshInterval,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.draws = auto.NewCounterVec(m.counter("draws_total", "Draw attempts by list and outcome"), []string{"list_id", "outcome"})
	m.drawLatency = auto.NewHistogram(m.histogram("draw_latency_milliseconds", "End to end draw latency in milliseconds"))

	m.cooldownDecisions = auto.NewCounterVec(
		m.counter("cooldown_decisions_total", "Rate limiter decisions by action kind"),
		[]string{"kind", "decision"},
	)

	m.trades = auto.NewCounterVec(m.counter("trades_total", "Trade sessions by outcome"), []string{"outcome"})
	m.tradeCommitLatency = auto.NewHistogram(m.histogram("trade_commit_latency_milliseconds", "Atomic swap transaction latency in milliseconds"))
	m.pendingTrades = auto.NewGauge(m.gauge("trades_pending", "Trade sessions currently awaiting a response"))

	m.ingestionRuns = auto.NewCounterVec(m.counter("ingestion_runs_total", "Ingestion runs by trigger and result"), []string{"trigger", "result"})
	m.listRefreshDuration = auto.NewHistogramVec(
		m.histogram("list_refresh_duration_milliseconds", "Per list refresh duration in milliseconds"),
		[]string{"list_id"},
	)
	m.listItems = auto.NewGaugeVec(m.gauge("list_items", "Cached items per list"), []string{"list_id"})
	m.listRefreshFailures = auto.NewCounterVec(
		m.counter("list_refresh_failures_total", "Refreshes that kept the previous cache"),
		[]string{"list_id", "reason"},
	)
	m.listLastRefreshUnix = auto.NewGaugeVec(
		m.gauge("list_last_refresh_unix", "Unix timestamp of the last successful cache replace"),
		[]string{"list_id"},
	)

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Current size of the notification queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Maximum notification queue capacity"))
	m.queueEnqueue = auto.NewCounter(m.counter("queue_enqueue_total", "Total notifications enqueued"))
	m.queueDequeue = auto.NewCounter(m.counter("queue_dequeue_total", "Total notifications dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Notifications dropped because the queue was full or closed"))
	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Notification workers currently running"))
	m.deliveryLatency = auto.NewHistogramVec(
		m.histogram("notify_delivery_latency_milliseconds", "Notification delivery latency per sink"),
		[]string{"sink"},
	)
	m.deliveryErrors = auto.NewCounterVec(m.counter("notify_errors_total", "Notification delivery failures per sink"), []string{"sink"})

	m.storageErrors = auto.NewCounterVec(m.counter("storage_errors_total", "Storage failures by operation"), []string{"op"})

	m.httpRequests = auto.NewCounterVec(
		m.counter("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.wsClients = auto.NewGauge(m.gauge("ws_clients", "Connected trade event stream clients"))

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_bytes", "Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutines", "Number of goroutines"))
}

// RecordDraw counts a draw attempt.
func RecordDraw(listID, outcome string) {
	globalManager.draws.WithLabelValues(listID, outcome).Inc()
}

// RecordDrawLatency records end to end draw latency.
func RecordDrawLatency(latencyMs float64) {
	globalManager.drawLatency.Observe(latencyMs)
}

// RecordCooldownDecision counts a limiter decision. kind is the action without the list suffix.
func RecordCooldownDecision(kind, decision string) {
	globalManager.cooldownDecisions.WithLabelValues(kind, decision).Inc()
}

// RecordTrade counts a trade session reaching outcome.
func RecordTrade(outcome string) {
	globalManager.trades.WithLabelValues(outcome).Inc()
}

// RecordTradeCommitLatency records the swap transaction latency.
func RecordTradeCommitLatency(latencyMs float64) {
	globalManager.tradeCommitLatency.Observe(latencyMs)
}

// AddPendingTrades adjusts the pending trade gauge.
func AddPendingTrades(delta int) {
	globalManager.pendingTrades.Add(float64(delta))
}

// RecordIngestionRun counts a scheduled or triggered ingestion run.
func RecordIngestionRun(trigger, result string) {
	globalManager.ingestionRuns.WithLabelValues(trigger, result).Inc()
}

// RecordListRefresh records a successful list refresh.
func RecordListRefresh(listID string, items int, duration time.Duration) {
	globalManager.listRefreshDuration.WithLabelValues(listID).Observe(float64(duration.Milliseconds()))
	globalManager.listItems.WithLabelValues(listID).Set(float64(items))
	globalManager.listLastRefreshUnix.WithLabelValues(listID).Set(float64(time.Now().Unix()))
}

// RecordListRefreshFailure counts a refresh that kept the previous cache.
func RecordListRefreshFailure(listID, reason string) {
	globalManager.listRefreshFailures.WithLabelValues(listID, reason).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordDelivery records a notification delivery on sink.
func RecordDelivery(sink string, latency time.Duration, err error) {
	globalManager.deliveryLatency.WithLabelValues(sink).Observe(float64(latency.Milliseconds()))
	if err != nil {
		globalManager.deliveryErrors.WithLabelValues(sink).Inc()
	}
}

// RecordStorageError counts a storage failure.
func RecordStorageError(op string) {
	globalManager.storageErrors.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records an HTTP request with endpoint, method, and status code.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// AddWSClients adjusts the connected stream client gauge.
func AddWSClients(delta int) {
	globalManager.wsClients.Add(float64(delta))
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// StartSystemCollector samples runtime gauges until ctx is done.
func StartSystemCollector(ctx context.Context) {
	ticker := time.NewTicker(globalManager.refreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			collectSystem()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func collectSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.HeapInuse)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
