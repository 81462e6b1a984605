package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for wash cycles and device calls.
// With metrics disabled every recorder is a no-op.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	cyclesStarted   *prometheus.CounterVec // program
	cyclesCompleted *prometheus.CounterVec // program, status
	programMinutes  *prometheus.CounterVec // program
	activeCycles    prometheus.Gauge

	deviceCalls    *prometheus.CounterVec   // device, operation
	deviceErrors   *prometheus.CounterVec   // device, operation
	deviceDuration *prometheus.HistogramVec // device, operation
}

var deviceLabels = []string{"device", "operation"}

// NewMetrics registers the collectors on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	m := &Metrics{config: cfg}
	if !cfg.Enabled {
		return m, nil
	}

	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: cfg.Namespace, Name: name, Help: help}, labels)
	}

	m.cyclesStarted = counter("cycles_started_total", "Wash cycles started.", "program")
	m.cyclesCompleted = counter("cycles_completed_total", "Wash cycles finished, by terminal status.", "program", "status")
	m.programMinutes = counter("program_minutes_total", "Declared program minutes of successful cycles.", "program")
	m.activeCycles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "active_cycles",
		Help:      "Wash cycles currently running.",
	})
	m.deviceCalls = counter("device_calls_total", "Device calls issued.", deviceLabels...)
	m.deviceErrors = counter("device_errors_total", "Device calls that reported a fault.", deviceLabels...)
	m.deviceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "device_call_duration_seconds",
		Help:      "Device call latency.",
		Buckets:   buckets,
	}, deviceLabels)

	m.registry = prometheus.NewRegistry()
	if err := registerAll(m.registry,
		m.cyclesStarted, m.cyclesCompleted, m.programMinutes, m.activeCycles,
		m.deviceCalls, m.deviceErrors, m.deviceDuration,
	); err != nil {
		return nil, err
	}
	return m, nil
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCycleStarted counts a new cycle as started and active.
func (m *Metrics) RecordCycleStarted(program string) {
	if m.cyclesStarted == nil {
		return
	}
	m.cyclesStarted.WithLabelValues(program).Inc()
	m.activeCycles.Inc()
}

// RecordCycleCompleted counts a finished cycle. Only successes add program minutes.
func (m *Metrics) RecordCycleCompleted(program, status string, runMinutes int) {
	if m.cyclesCompleted == nil {
		return
	}
	m.cyclesCompleted.WithLabelValues(program, status).Inc()
	if runMinutes > 0 {
		m.programMinutes.WithLabelValues(program).Add(float64(runMinutes))
	}
	m.activeCycles.Dec()
}

// RecordDeviceCall counts one device call and observes its latency.
func (m *Metrics) RecordDeviceCall(device, operation string, duration time.Duration) {
	if m.deviceCalls == nil {
		return
	}
	m.deviceCalls.WithLabelValues(device, operation).Inc()
	m.deviceDuration.WithLabelValues(device, operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordDeviceError(device, operation string) {
	if m.deviceErrors == nil {
		return
	}
	m.deviceErrors.WithLabelValues(device, operation).Inc()
}

// Timer measures one device call.
type Timer struct{ start time.Time }

func NewTimer() *Timer { return &Timer{start: time.Now()} }
func (t *Timer) Duration() time.Duration { return time.Since(t.start) }

// Handler serves the registry in OpenMetrics format, or 404 when disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Router serves metrics at path and a liveness probe at /healthz.
func (m *Metrics) Router(path string) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, path, m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// StartMetricsServer serves Router in the background. It returns nil, nil
// when metrics are disabled.
func (m *Metrics) StartMetricsServer(logger *Logger) (*http.Server, error) {
	if !m.config.Enabled {
		return nil, nil
	}
	if m.config.ListenAddress == "" {
		return nil, fmt.Errorf("metrics listen address is required")
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           m.Router(path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()

	return server, nil
}
