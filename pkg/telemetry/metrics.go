package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for resources and their providers.
// A Metrics created with metrics disabled is a no-op.
type Metrics struct {
	config MetricsConfig

	// Provider call metrics, labelled by resource and operation
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	// Resource metrics
	dirtyNotifications  *prometheus.CounterVec
	registeredResources prometheus.Gauge

	// Errors raised by the core, by code
	errorsByCode *prometheus.CounterVec

	// Authorization decisions
	authzDecisions *prometheus.CounterVec

	// Definition reloads
	configReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
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

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of data provider calls",
			},
			[]string{"resource", "operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of data provider calls in seconds",
				Buckets:   buckets,
			},
			[]string{"resource", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of failed data provider calls",
			},
			[]string{"resource", "operation"},
		),
		dirtyNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resource_dirty_total",
				Help:      "Total number of times a resource was marked dirty",
			},
			[]string{"resource"},
		),
		registeredResources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_registered",
				Help:      "Current number of resources registered in the manager",
			},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of core errors by code",
			},
			[]string{"code"},
		),
		authzDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_decisions_total",
				Help:      "Total number of capability checks by action and outcome",
			},
			[]string{"action", "allowed"},
		),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of resource definition reloads",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
		m.dirtyNotifications,
		m.registeredResources,
		m.errorsByCode,
		m.authzDecisions,
		m.configReloads,
	)

	return m, nil
}

// RecordProviderCall records a completed provider call.
func (m *Metrics) RecordProviderCall(resource, operation string, duration time.Duration) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(resource, operation).Inc()
	m.providerDuration.WithLabelValues(resource, operation).Observe(duration.Seconds())
}

// RecordProviderError records a failed provider call.
func (m *Metrics) RecordProviderError(resource, operation string) {
	if m == nil || m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(resource, operation).Inc()
}

// RecordDirty records a dirty notification for resource.
func (m *Metrics) RecordDirty(resource string) {
	if m == nil || m.dirtyNotifications == nil {
		return
	}
	m.dirtyNotifications.WithLabelValues(resource).Inc()
}

// SetRegisteredResources sets the number of registered resources.
func (m *Metrics) SetRegisteredResources(count int) {
	if m == nil || m.registeredResources == nil {
		return
	}
	m.registeredResources.Set(float64(count))
}

// RecordError records an error by its code.
func (m *Metrics) RecordError(code string) {
	if m == nil || m.errorsByCode == nil || code == "" {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// RecordAuthzDecision records the outcome of a capability check.
func (m *Metrics) RecordAuthzDecision(action string, allowed bool) {
	if m == nil || m.authzDecisions == nil {
		return
	}
	label := "false"
	if allowed {
		label = "true"
	}
	m.authzDecisions.WithLabelValues(action, label).Inc()
}

// RecordConfigReload records a reload of resource definitions.
func (m *Metrics) RecordConfigReload(err error) {
	if m == nil || m.configReloads == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// Registry returns the registry backing these metrics, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
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

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics in the background and returns the server
// so the caller can shut it down. It returns nil when metrics are disabled.
func (m *Metrics) StartMetricsServer(logger *Logger) *http.Server {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return server
}
