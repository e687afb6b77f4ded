package monitor

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"media-dispatcher/pkg/models"
)

// Metrics represents all the application metrics
type Metrics struct {
	// Request metrics
	QuotaDecisions   *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ArtifactSize     *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	DeliveryCleanups *prometheus.CounterVec

	// System metrics
	Goroutines  prometheus.Gauge
	MemoryUsage prometheus.Gauge

	// Storage metrics
	StorageOperations *prometheus.CounterVec
	StorageDuration   *prometheus.HistogramVec

	// HTTP transport
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QuotaDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_dispatcher_quota_decisions_total",
				Help: "Quota admission decisions",
			},
			[]string{"result"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_dispatcher_requests_total",
				Help: "Requests by terminal state",
			},
			[]string{"platform", "state"},
		),

		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_dispatcher_failures_total",
				Help: "Failed requests by failure kind",
			},
			[]string{"platform", "kind"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "media_dispatcher_request_duration_seconds",
				Help:    "Time from admission to terminal state",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"platform", "state"},
		),

		ArtifactSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "media_dispatcher_artifact_size_bytes",
				Help:    "Size of delivered artifacts",
				Buckets: []float64{1e5, 1e6, 5e6, 1e7, 2.5e7, 5e7, 1e8},
			},
			[]string{"media_kind"},
		),

		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "media_dispatcher_active_requests",
			Help: "Requests currently being dispatched",
		}),

		DeliveryCleanups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_dispatcher_delivery_cleanups_total",
				Help: "Artifact removals after delivery",
			},
			[]string{"status"},
		),

		Goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "media_dispatcher_goroutines",
			Help: "Number of goroutines",
		}),

		MemoryUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "media_dispatcher_memory_usage_bytes",
			Help: "Memory usage in bytes",
		}),

		StorageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_dispatcher_storage_operations_total",
				Help: "Total storage operations",
			},
			[]string{"operation", "status"},
		),

		StorageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "media_dispatcher_storage_duration_seconds",
				Help:    "Time spent on storage operations",
				Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
			},
			[]string{"operation"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_dispatcher_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),

		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "media_dispatcher_http_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Monitor represents the monitoring system
type Monitor struct {
	metrics  *Metrics
	logger   zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor whose metrics are registered with reg
func NewMonitor(reg prometheus.Registerer) *Monitor {
	return &Monitor{
		metrics:  NewMetrics(reg),
		logger:   zerolog.New(os.Stdout).With().Timestamp().Str("component", "monitor").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the monitoring system
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.collectSystemMetrics()

	m.logger.Info().Msg("Monitoring system started")
}

// Stop stops the monitoring system
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()

	m.logger.Info().Msg("Monitoring system stopped")
}

// collectSystemMetrics collects system metrics periodically
func (m *Monitor) collectSystemMetrics() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.metrics.MemoryUsage.Set(float64(memStats.Alloc))

		case <-m.stopChan:
			return
		}
	}
}

// RecordAdmission records a quota decision
func (m *Monitor) RecordAdmission(admitted bool) {
	result := "admitted"
	if !admitted {
		result = "rejected"
	}
	m.metrics.QuotaDecisions.WithLabelValues(result).Inc()
}

// RecordDispatchStart marks a request as in flight
func (m *Monitor) RecordDispatchStart() {
	m.metrics.ActiveRequests.Inc()
}

// RecordDispatchEnd marks a request as finished
func (m *Monitor) RecordDispatchEnd() {
	m.metrics.ActiveRequests.Dec()
}

// RecordOutcome records the terminal state of a request
func (m *Monitor) RecordOutcome(outcome models.Outcome, duration time.Duration) {
	platform := string(outcome.Platform)
	if platform == "" {
		platform = "none"
	}

	m.metrics.RequestsTotal.WithLabelValues(platform, string(outcome.State)).Inc()
	m.metrics.RequestDuration.WithLabelValues(platform, string(outcome.State)).Observe(duration.Seconds())

	if outcome.Failure != nil {
		m.metrics.FailuresTotal.WithLabelValues(platform, string(outcome.Failure.Kind)).Inc()
	}
	if outcome.Succeeded() {
		m.metrics.ArtifactSize.WithLabelValues(string(outcome.MediaKind)).Observe(float64(outcome.Size))
	}
}

// RecordCleanup records an artifact removal after delivery
func (m *Monitor) RecordCleanup(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.DeliveryCleanups.WithLabelValues(status).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Monitor) RecordStorageOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.StorageOperations.WithLabelValues(operation, status).Inc()
	m.metrics.StorageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Monitor) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.metrics.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// GetMetrics returns all metrics
func (m *Monitor) GetMetrics() *Metrics {
	return m.metrics
}

// HealthCheck reports runtime figures
func (m *Monitor) HealthCheck() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"goroutines":   runtime.NumGoroutine(),
		"memory_usage": memStats.Alloc,
		"memory_sys":   memStats.Sys,
		"gc_cycles":    memStats.NumGC,
	}
}
