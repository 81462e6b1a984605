package config

import (
	"fmt"
	"strings"

	"github.com/openfroyo/dishwasher/pkg/telemetry"
	"github.com/openfroyo/dishwasher/pkg/washer"
)

// File is an appliance file: how the controller is observed, where history
// is kept, how the simulated devices behave, and optionally one wash request.
type File struct {
	// Telemetry configures logging, tracing and metrics.
	Telemetry TelemetrySettings `json:"telemetry" yaml:"telemetry"`

	// Store configures cycle history persistence.
	Store StoreSettings `json:"store" yaml:"store"`

	// Devices configures the simulated collaborators.
	Devices DeviceSettings `json:"devices" yaml:"devices"`

	// Broadcast configures live event broadcasting.
	Broadcast BroadcastSettings `json:"broadcast" yaml:"broadcast"`

	// Request is the wash request to run, if any.
	Request *WashRequest `json:"request,omitempty" yaml:"request,omitempty" validate:"omitempty"`
}

// TelemetrySettings is the file form of telemetry.Config.
type TelemetrySettings struct {
	// ServiceName identifies the controller in traces and logs.
	ServiceName string `json:"service_name" yaml:"service_name" validate:"required"`

	// Environment specifies the deployment environment (dev, staging, prod).
	Environment string `json:"environment" yaml:"environment"`

	Logging LoggingSettings `json:"logging" yaml:"logging"`
	Tracing TracingSettings `json:"tracing" yaml:"tracing"`
	Metrics MetricsSettings `json:"metrics" yaml:"metrics"`
}

// LoggingSettings configures structured logging.
type LoggingSettings struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `json:"format" yaml:"format" validate:"oneof=console json"`
	Output string `json:"output" yaml:"output" validate:"required"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	// Exporter is none, stdout or otlp. Tracing is off with none.
	Exporter string `json:"exporter" yaml:"exporter" validate:"oneof=none stdout otlp"`

	// Endpoint is the OTLP collector address.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp"`

	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `json:"insecure" yaml:"insecure"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Address   string `json:"address,omitempty" yaml:"address,omitempty" validate:"required_if=Enabled true"`
	Namespace string `json:"namespace" yaml:"namespace" validate:"required"`
}

// StoreSettings configures the SQLite cycle history.
type StoreSettings struct {
	// Path is the database file. Empty disables history.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// BroadcastSettings configures where cycle events are pushed.
type BroadcastSettings struct {
	Redis RedisSettings `json:"redis" yaml:"redis"`
}

// RedisSettings configures the Redis event broadcaster. Empty Address disables it.
type RedisSettings struct {
	Address  string `json:"address,omitempty" yaml:"address,omitempty" validate:"omitempty,hostname_port"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db" validate:"gte=0"`
	Channel  string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// DeviceSettings configures the simulated collaborators.
type DeviceSettings struct {
	Door   DoorSettings   `json:"door" yaml:"door"`
	Filter FilterSettings `json:"filter" yaml:"filter"`
	Pump   PumpSettings   `json:"pump" yaml:"pump"`
	Engine EngineSettings `json:"engine" yaml:"engine"`
}

// DoorSettings configures the simulated door.
type DoorSettings struct {
	// Open leaves the door open so every cycle reports door_open.
	Open bool `json:"open" yaml:"open"`
}

// FilterSettings configures the simulated dirt filter.
type FilterSettings struct {
	// Capacity is the fill percentage the filter reports.
	Capacity float64 `json:"capacity" yaml:"capacity" validate:"gte=0,lte=100"`
}

// PumpSettings configures the simulated water pump.
type PumpSettings struct {
	// Fault makes every pour fail with this message.
	Fault string `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// EngineSettings configures the simulated engine.
type EngineSettings struct {
	// Fault makes every program run fail with this message.
	Fault string `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// WashRequest is the file form of a program configuration.
type WashRequest struct {
	FillLevel   string `json:"fill_level" yaml:"fill_level" validate:"required,oneof=half full"`
	Program     string `json:"program" yaml:"program" validate:"required,oneof=intensive eco rinse night"`
	TabletsUsed bool   `json:"tablets_used" yaml:"tablets_used"`
}

// ProgramConfiguration converts the request into an orchestrator configuration.
func (r WashRequest) ProgramConfiguration() (washer.ProgramConfiguration, error) {
	fill, err := washer.ParseFillLevel(r.FillLevel)
	if err != nil {
		return washer.ProgramConfiguration{}, fmt.Errorf("request: %w", err)
	}
	program, err := washer.ParseWashingProgram(r.Program)
	if err != nil {
		return washer.ProgramConfiguration{}, fmt.Errorf("request: %w", err)
	}

	return washer.NewConfigurationBuilder().
		WithFillLevel(fill).
		WithProgram(program).
		WithTabletsUsed(r.TabletsUsed).
		Build()
}

// DefaultFile returns a file with every default applied.
func DefaultFile() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

// applyDefaults fills unset fields and normalizes enum casing.
func (f *File) applyDefaults() {
	defaults := telemetry.DefaultConfig()

	t := &f.Telemetry
	if t.ServiceName == "" {
		t.ServiceName = defaults.ServiceName
	}
	if t.Environment == "" {
		t.Environment = defaults.Environment
	}
	if t.Logging.Level == "" {
		t.Logging.Level = defaults.Logging.Level
	}
	if t.Logging.Format == "" {
		t.Logging.Format = defaults.Logging.Format
	}
	if t.Logging.Output == "" {
		t.Logging.Output = defaults.Logging.Output
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if t.Tracing.SamplingRate == 0 {
		t.Tracing.SamplingRate = defaults.Tracing.SamplingRate
	}
	if t.Metrics.Enabled && t.Metrics.Address == "" {
		t.Metrics.Address = defaults.Metrics.ListenAddress
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = defaults.Metrics.Namespace
	}

	t.Logging.Level = strings.ToLower(t.Logging.Level)
	t.Logging.Format = strings.ToLower(t.Logging.Format)
	t.Tracing.Exporter = strings.ToLower(t.Tracing.Exporter)

	if f.Request != nil {
		f.Request.FillLevel = strings.ToLower(strings.TrimSpace(f.Request.FillLevel))
		f.Request.Program = strings.ToLower(strings.TrimSpace(f.Request.Program))
	}
}

// TelemetryConfig maps the file settings onto a telemetry configuration.
func (f *File) TelemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	s := f.Telemetry

	cfg.ServiceName = s.ServiceName
	cfg.Environment = s.Environment

	cfg.Logging.Level = s.Logging.Level
	cfg.Logging.Format = s.Logging.Format
	cfg.Logging.Output = s.Logging.Output

	cfg.Tracing.Enabled = s.Tracing.Exporter != "" && s.Tracing.Exporter != "none"
	cfg.Tracing.Exporter = s.Tracing.Exporter
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	cfg.Tracing.SamplingRate = s.Tracing.SamplingRate
	cfg.Tracing.Insecure = s.Tracing.Insecure

	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.ListenAddress = s.Metrics.Address
	cfg.Metrics.Namespace = s.Metrics.Namespace

	return cfg
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "telemetry.logging.level").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// String formats the error as file:line:col: path: message, omitting empty parts.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned by the loader when a file is malformed or invalid.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, e.String())
	}
	return fmt.Sprintf("%d validation error(s): %s", len(ve), strings.Join(msgs, "; "))
}
