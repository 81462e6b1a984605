package telemetry

import (
	"fmt"
	"slices"
	"time"
)

var (
	logLevels     = []string{"trace", "debug", "info", "warn", "error", "fatal"}
	logFormats    = []string{"console", "json"}
	traceExporter = []string{"otlp", "stdout", "none"}
)

// Config describes how a controller process is observed.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Environment is reported as deployment.environment on every span.
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string // trace, debug, info, warn, error or fatal
	Format string // console or json

	// Output is stdout, stderr or a file path opened for append.
	Output string

	EnableCaller bool

	// TimeFormat picks the console timestamp layout: rfc3339, unix or kitchen.
	TimeFormat string
}

// TracingConfig configures cycle and step spans.
type TracingConfig struct {
	Enabled  bool
	Exporter string // otlp, stdout or none

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string

	// SamplingRate is the ratio of cycles traced, 0 to 1.
	SamplingRate float64

	MaxExportBatchSize int
	ExportTimeout      time.Duration
	Headers            map[string]string
	Insecure           bool
}

// MetricsConfig configures the Prometheus collectors and their endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are the device call latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures cycle event delivery.
type EventsConfig struct {
	Enabled bool

	// EnableAsync delivers events from a background goroutine. BufferSize
	// bounds the queue and MaxBatchSize the events handled per wake-up.
	EnableAsync  bool
	BufferSize   int
	MaxBatchSize int
}

// DefaultConfig returns the configuration used when nothing is specified:
// console logs on stderr, tracing off, metrics on :9090, synchronous events.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "dishwasher",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "dishwasher",
			// Simulated devices answer in microseconds, real ones in seconds.
			DefaultHistogramBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		Events: EventsConfig{
			Enabled:      true,
			BufferSize:   256,
			MaxBatchSize: 32,
		},
	}
}

// DevelopmentConfig is DefaultConfig with debug logs and spans on stdout.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate reports the first setting that cannot be honoured.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("service name is required")
	case c.ServiceVersion == "":
		return fmt.Errorf("service version is required")
	case !slices.Contains(logLevels, c.Logging.Level):
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	case !slices.Contains(logFormats, c.Logging.Format):
		return fmt.Errorf("invalid log format: %q (want console or json)", c.Logging.Format)
	case c.Tracing.Enabled && !slices.Contains(traceExporter, c.Tracing.Exporter):
		return fmt.Errorf("invalid trace exporter: %q", c.Tracing.Exporter)
	case c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1:
		return fmt.Errorf("trace sampling rate %g outside [0, 1]", c.Tracing.SamplingRate)
	case c.Metrics.Enabled && c.Metrics.ListenAddress == "":
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	case c.Events.Enabled && c.Events.EnableAsync && c.Events.BufferSize <= 0:
		return fmt.Errorf("async events need a positive buffer size, got %d", c.Events.BufferSize)
	}
	return nil
}
