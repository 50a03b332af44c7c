package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Confix resolution runs.
type Metrics struct {
	config MetricsConfig

	// Session metrics
	sessionsStarted *prometheus.CounterVec
	activeSessions  prometheus.Gauge

	// Augment metrics
	augmentsResolved *prometheus.CounterVec

	// Search metrics
	probeRetries      prometheus.Counter
	environmentResets prometheus.Counter

	// Provider metrics
	providerApplications *prometheus.CounterVec
	providerDetections   *prometheus.CounterVec

	// Check metrics
	checksExecuted *prometheus.CounterVec

	// Finalize metrics
	finalizeDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of resolution sessions started",
			},
			[]string{"mode"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of active resolution sessions",
			},
		),

		augmentsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "augments_resolved_total",
				Help:      "Total number of augment requests by outcome",
			},
			[]string{"status"},
		),

		probeRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_retries_total",
				Help:      "Total number of backtracking reconfiguration steps",
			},
		),
		environmentResets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "environment_resets_total",
				Help:      "Total number of full environment rebuilds",
			},
		),

		providerApplications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_applications_total",
				Help:      "Total number of provider applications to the working environment",
			},
			[]string{"provider"},
		),
		providerDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_detections_total",
				Help:      "Total number of provider component discoveries",
			},
			[]string{"provider"},
		),

		checksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_executed_total",
				Help:      "Total number of validation checks executed by outcome",
			},
			[]string{"check", "status"},
		),

		finalizeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "finalize_duration_seconds",
				Help:      "Duration of environment finalization in seconds",
				Buckets:   buckets,
			},
		),
	}

	registry.MustRegister(
		m.sessionsStarted,
		m.activeSessions,
		m.augmentsResolved,
		m.probeRetries,
		m.environmentResets,
		m.providerApplications,
		m.providerDetections,
		m.checksExecuted,
		m.finalizeDuration,
	)

	return m, nil
}

// Session Metrics

// RecordSessionStarted increments the session counters. Mode is "resolve" or
// "listing".
func (m *Metrics) RecordSessionStarted(mode string) {
	if m.sessionsStarted == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(mode).Inc()
	m.activeSessions.Inc()
}

// RecordSessionEnded decrements the active session gauge.
func (m *Metrics) RecordSessionEnded() {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Dec()
}

// Augment Metrics

// RecordAugment records the outcome of one augment request.
func (m *Metrics) RecordAugment(added bool) {
	if m.augmentsResolved == nil {
		return
	}
	status := "accepted"
	if !added {
		status = "rejected"
	}
	m.augmentsResolved.WithLabelValues(status).Inc()
}

// Search Metrics

// RecordProbeRetry records one backtracking reconfiguration step.
func (m *Metrics) RecordProbeRetry() {
	if m.probeRetries == nil {
		return
	}
	m.probeRetries.Inc()
}

// RecordEnvironmentReset records a full environment rebuild.
func (m *Metrics) RecordEnvironmentReset() {
	if m.environmentResets == nil {
		return
	}
	m.environmentResets.Inc()
}

// Provider Metrics

// RecordProviderApplied records one provider application.
func (m *Metrics) RecordProviderApplied(provider string) {
	if m.providerApplications == nil {
		return
	}
	m.providerApplications.WithLabelValues(provider).Inc()
}

// RecordProviderDetection records a component discovery pass for a provider.
func (m *Metrics) RecordProviderDetection(provider string) {
	if m.providerDetections == nil {
		return
	}
	m.providerDetections.WithLabelValues(provider).Inc()
}

// Check Metrics

// RecordCheck records one check execution with its outcome.
func (m *Metrics) RecordCheck(check string, failed bool) {
	if m.checksExecuted == nil {
		return
	}
	status := "passed"
	if failed {
		status = "failed"
	}
	m.checksExecuted.WithLabelValues(check, status).Inc()
}

// Finalize Metrics

// RecordFinalize records the duration of a finalization in seconds.
func (m *Metrics) RecordFinalize(seconds float64) {
	if m.finalizeDuration == nil {
		return
	}
	m.finalizeDuration.Observe(seconds)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
