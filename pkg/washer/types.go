package washer

import (
	"errors"
	"fmt"
	"time"
)

// ProgramConfiguration describes one wash request.
type ProgramConfiguration struct {
	// FillLevel is how much water the pump pours.
	FillLevel FillLevel `json:"fill_level"`

	// Program is the washing program the engine runs.
	Program WashingProgram `json:"program"`

	// TabletsUsed gates the dirt filter check.
	TabletsUsed bool `json:"tablets_used"`
}

// Validate checks that the fill level and program are known values.
func (c ProgramConfiguration) Validate() error {
	return errors.Join(c.FillLevel.Validate(), c.Program.Validate())
}

// ConfigurationBuilder assembles a ProgramConfiguration.
type ConfigurationBuilder struct {
	fillLevel   FillLevel
	program     WashingProgram
	tabletsUsed bool
}

// NewConfigurationBuilder creates an empty builder.
// Fill level and program must be set before Build.
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{}
}

// WithFillLevel sets the fill level.
func (b *ConfigurationBuilder) WithFillLevel(level FillLevel) *ConfigurationBuilder {
	b.fillLevel = level
	return b
}

// WithProgram sets the washing program.
func (b *ConfigurationBuilder) WithProgram(program WashingProgram) *ConfigurationBuilder {
	b.program = program
	return b
}

// WithTabletsUsed sets whether detergent tablets are loaded.
func (b *ConfigurationBuilder) WithTabletsUsed(used bool) *ConfigurationBuilder {
	b.tabletsUsed = used
	return b
}

// Build returns the configuration, or an error if a required field is missing or invalid.
func (b *ConfigurationBuilder) Build() (ProgramConfiguration, error) {
	if b.fillLevel == "" {
		return ProgramConfiguration{}, fmt.Errorf("fill level is required")
	}
	if b.program == "" {
		return ProgramConfiguration{}, fmt.Errorf("washing program is required")
	}

	cfg := ProgramConfiguration{
		FillLevel:   b.fillLevel,
		Program:     b.program,
		TabletsUsed: b.tabletsUsed,
	}
	if err := cfg.Validate(); err != nil {
		return ProgramConfiguration{}, err
	}
	return cfg, nil
}

// RunResult is the outcome of a cycle.
// RunMinutes is only non-zero on success.
type RunResult struct {
	Status     Status `json:"status"`
	RunMinutes int    `json:"run_minutes"`
}

// Succeeded reports whether the cycle completed.
func (r RunResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

func successResult(program WashingProgram) RunResult {
	return RunResult{Status: StatusSuccess, RunMinutes: program.Minutes()}
}

func failureResult(status Status) RunResult {
	return RunResult{Status: status}
}

// Cycle is the full record of one Start invocation.
type Cycle struct {
	// ID uniquely identifies the cycle.
	ID string `json:"id"`

	// Config is the requested configuration.
	Config ProgramConfiguration `json:"config"`

	// Result is what Start returned.
	Result RunResult `json:"result"`

	// Steps lists the collaborator calls issued, in order.
	Steps []Step `json:"steps"`

	// FilterCapacity is the filter reading, nil when the filter was not consulted.
	FilterCapacity *float64 `json:"filter_capacity,omitempty"`

	// Err is the device error message for pump or engine failures.
	Err string `json:"error,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns the wall-clock time spent orchestrating the cycle.
// It is unrelated to RunMinutes, which is the declared program duration.
func (c Cycle) Duration() time.Duration {
	return c.CompletedAt.Sub(c.StartedAt)
}
