package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/dishwasher/pkg/washer"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml":     FormatYAML,
		"a.YML":      FormatYAML,
		"dir/a.json": FormatJSON,
		"a.cue":      FormatCUE,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("a.toml")
	assert.Error(t, err)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "appliance.yaml", `
telemetry:
  logging:
    level: DEBUG
    format: json
  metrics:
    enabled: true
store:
  path: /var/lib/washer/history.db
broadcast:
  redis:
    address: localhost:6379
    channel: kitchen
devices:
  filter:
    capacity: 12.5
  pump:
    fault: valve stuck
request:
  fill_level: Half
  program: ECO
  tablets_used: true
`)

	file, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "dishwasher", file.Telemetry.ServiceName)
	assert.Equal(t, "debug", file.Telemetry.Logging.Level)
	assert.Equal(t, "json", file.Telemetry.Logging.Format)
	assert.Equal(t, "stderr", file.Telemetry.Logging.Output)
	assert.Equal(t, "none", file.Telemetry.Tracing.Exporter)
	assert.Equal(t, ":9090", file.Telemetry.Metrics.Address)
	assert.Equal(t, "/var/lib/washer/history.db", file.Store.Path)
	assert.Equal(t, "localhost:6379", file.Broadcast.Redis.Address)
	assert.Equal(t, "kitchen", file.Broadcast.Redis.Channel)
	assert.InDelta(t, 12.5, file.Devices.Filter.Capacity, 1e-9)
	assert.Equal(t, "valve stuck", file.Devices.Pump.Fault)
	assert.False(t, file.Devices.Door.Open)

	require.NotNil(t, file.Request)
	cfg, err := file.Request.ProgramConfiguration()
	require.NoError(t, err)
	assert.Equal(t, washer.ProgramConfiguration{
		FillLevel:   washer.FillHalf,
		Program:     washer.ProgramEco,
		TabletsUsed: true,
	}, cfg)
}

func TestLoadFileCUE(t *testing.T) {
	path := writeFile(t, "appliance.cue", `
telemetry: tracing: {
	exporter:      "stdout"
	sampling_rate: 0.25
}
devices: {
	door: open: true
	filter: capacity: 60
}
request: {
	fill_level: "full"
	program:    "night"
}
`)

	file, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "stdout", file.Telemetry.Tracing.Exporter)
	assert.InDelta(t, 0.25, file.Telemetry.Tracing.SamplingRate, 1e-9)
	assert.True(t, file.Devices.Door.Open)
	assert.InDelta(t, 60.0, file.Devices.Filter.Capacity, 1e-9)
	require.NotNil(t, file.Request)
	assert.Equal(t, "night", file.Request.Program)
	assert.False(t, file.Request.TabletsUsed)
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "appliance.json", `{
  "telemetry": {"service_name": "kitchen-washer", "environment": "prod"},
  "devices": {"engine": {"fault": "overheated"}},
  "request": {"fill_level": "half", "program": "rinse", "tablets_used": false}
}`)

	file, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "kitchen-washer", file.Telemetry.ServiceName)
	assert.Equal(t, "prod", file.Telemetry.Environment)
	assert.Equal(t, "overheated", file.Devices.Engine.Fault)
	require.NotNil(t, file.Request)

	cfg, err := file.Request.ProgramConfiguration()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Program.Minutes())
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "yaml unknown field",
			file:    "a.yaml",
			content: "oven:\n  temperature: 200\n",
		},
		{
			name:    "yaml unknown program",
			file:    "a.yaml",
			content: "request:\n  fill_level: half\n  program: turbo\n",
		},
		{
			name:    "yaml missing fill level",
			file:    "a.yaml",
			content: "request:\n  program: eco\n",
		},
		{
			name:    "yaml capacity out of range",
			file:    "a.yaml",
			content: "devices:\n  filter:\n    capacity: 150\n",
		},
		{
			name:    "yaml otlp without endpoint",
			file:    "a.yaml",
			content: "telemetry:\n  tracing:\n    exporter: otlp\n",
		},
		{
			name:    "yaml bad log format",
			file:    "a.yaml",
			content: "telemetry:\n  logging:\n    format: xml\n",
		},
		{
			name:    "yaml bad redis address",
			file:    "a.yaml",
			content: "broadcast:\n  redis:\n    address: not-an-address\n",
		},
		{
			name:    "cue unknown field",
			file:    "a.cue",
			content: "oven: true\n",
		},
		{
			name:    "cue wrong type",
			file:    "a.cue",
			content: "devices: door: open: \"yes\"\n",
		},
		{
			name:    "cue syntax",
			file:    "a.cue",
			content: "request: {\n",
		},
		{
			name:    "json sampling out of range",
			file:    "a.json",
			content: `{"telemetry": {"tracing": {"exporter": "stdout", "sampling_rate": 2}}}`,
		},
		{
			name:    "json malformed",
			file:    "a.json",
			content: `{"request": `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(writeFile(t, tt.file, tt.content))
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %T: %v", err, err)
			assert.NotEmpty(t, verrs)
		})
	}
}

func TestLoadValidatorErrorPath(t *testing.T) {
	_, err := NewLoader().Load([]byte("request:\n  fill_level: quarter\n  program: eco\n"), FormatYAML)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "File.Request.FillLevel", verrs[0].Path)
	assert.Contains(t, verrs[0].Message, "oneof")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyYAML(t *testing.T) {
	file, err := NewLoader().Load([]byte("\n"), FormatYAML)
	require.NoError(t, err)
	assert.Nil(t, file.Request)
	assert.Equal(t, DefaultFile(), file)
}

func TestTelemetryConfig(t *testing.T) {
	file := DefaultFile()
	file.Telemetry.Tracing.Exporter = "otlp"
	file.Telemetry.Tracing.Endpoint = "collector:4317"
	file.Telemetry.Metrics.Enabled = true
	file.Telemetry.Metrics.Address = "127.0.0.1:9100"

	cfg := file.TelemetryConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dishwasher", cfg.ServiceName)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.ListenAddress)

	cfg = DefaultFile().TelemetryConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Tracing.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestWashRequestProgramConfiguration(t *testing.T) {
	_, err := WashRequest{FillLevel: "half", Program: "turbo"}.ProgramConfiguration()
	assert.Error(t, err)

	_, err = WashRequest{FillLevel: "", Program: "eco"}.ProgramConfiguration()
	assert.Error(t, err)

	cfg, err := WashRequest{FillLevel: "FULL", Program: "intensive", TabletsUsed: true}.ProgramConfiguration()
	require.NoError(t, err)
	assert.Equal(t, washer.FillFull, cfg.FillLevel)
	assert.Equal(t, 120, cfg.Program.Minutes())
}

func TestValidationErrorString(t *testing.T) {
	assert.Equal(t, "a.cue:3:5: request.program: bad",
		ValidationError{File: "a.cue", Line: 3, Column: 5, Path: "request.program", Message: "bad"}.String())
	assert.Equal(t, "bad", ValidationError{Message: "bad"}.String())
	assert.Contains(t, ValidationErrors{{Message: "x"}, {Message: "y"}}.Error(), "2 validation error(s)")
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()
	assert.Equal(t, []string{"devices", "file", "request"}, sr.ListSchemas())

	require.NoError(t, sr.ValidateAgainstSchema("request", WashRequest{FillLevel: "half", Program: "eco"}))
	assert.Error(t, sr.ValidateAgainstSchema("devices", DeviceSettings{Filter: FilterSettings{Capacity: -1}}))
	assert.Error(t, sr.ValidateAgainstSchema("missing", nil))

	require.NoError(t, sr.RegisterSchema("custom", "#Custom: {field: int}"))
	_, ok := sr.GetSchema("custom")
	assert.True(t, ok)
	assert.Error(t, sr.RegisterSchema("broken", "#Broken: {"))
}
