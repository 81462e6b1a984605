package washer

import (
	"fmt"
	"strings"
)

// Status is the terminal outcome of a single wash cycle.
type Status string

const (
	// StatusSuccess indicates the cycle ran through drain.
	StatusSuccess Status = "success"

	// StatusDoorOpen indicates the door was not closed when the cycle was requested.
	StatusDoorOpen Status = "door_open"

	// StatusErrorFilter indicates the dirt filter reported a capacity above the threshold.
	StatusErrorFilter Status = "error_filter"

	// StatusErrorProgram indicates the engine failed to run the program.
	StatusErrorProgram Status = "error_program"

	// StatusErrorPump indicates the water pump failed to pour.
	StatusErrorPump Status = "error_pump"
)

// IsFailure returns true for every status other than success.
func (s Status) IsFailure() bool {
	return s != StatusSuccess
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusDoorOpen, StatusErrorFilter,
		StatusErrorProgram, StatusErrorPump:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// Statuses returns all statuses in declaration order.
func Statuses() []Status {
	return []Status{
		StatusSuccess,
		StatusDoorOpen,
		StatusErrorFilter,
		StatusErrorProgram,
		StatusErrorPump,
	}
}

// FillLevel is the amount of water the pump pours before the program runs.
type FillLevel string

const (
	// FillHalf pours half of the tub.
	FillHalf FillLevel = "half"

	// FillFull pours the full tub.
	FillFull FillLevel = "full"
)

// Validate checks if the fill level is valid.
func (f FillLevel) Validate() error {
	switch f {
	case FillHalf, FillFull:
		return nil
	default:
		return fmt.Errorf("invalid fill level: %q", string(f))
	}
}

// ParseFillLevel parses a case-insensitive fill level name.
func ParseFillLevel(s string) (FillLevel, error) {
	f := FillLevel(strings.ToLower(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

// WashingProgram identifies a wash profile with a fixed duration.
type WashingProgram string

const (
	// ProgramIntensive is the heavy-soil program.
	ProgramIntensive WashingProgram = "intensive"

	// ProgramEco is the standard energy-saving program.
	ProgramEco WashingProgram = "eco"

	// ProgramRinse is a short rinse without a full wash.
	ProgramRinse WashingProgram = "rinse"

	// ProgramNight is the long, quiet program.
	ProgramNight WashingProgram = "night"
)

// Minutes returns the declared duration of the program.
// Unknown programs report zero.
func (p WashingProgram) Minutes() int {
	switch p {
	case ProgramIntensive:
		return 120
	case ProgramEco:
		return 90
	case ProgramRinse:
		return 20
	case ProgramNight:
		return 180
	default:
		return 0
	}
}

// Validate checks if the program is valid.
func (p WashingProgram) Validate() error {
	switch p {
	case ProgramIntensive, ProgramEco, ProgramRinse, ProgramNight:
		return nil
	default:
		return fmt.Errorf("invalid washing program: %q", string(p))
	}
}

// ParseWashingProgram parses a case-insensitive program name.
func ParseWashingProgram(s string) (WashingProgram, error) {
	p := WashingProgram(strings.ToLower(strings.TrimSpace(s)))
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Programs returns all washing programs in declaration order.
func Programs() []WashingProgram {
	return []WashingProgram{
		ProgramIntensive,
		ProgramEco,
		ProgramRinse,
		ProgramNight,
	}
}

// Step names one collaborator call issued during a cycle.
type Step string

const (
	StepDoorClosed     Step = "door.closed"
	StepFilterCapacity Step = "filter.capacity"
	StepDoorLock       Step = "door.lock"
	StepPumpPour       Step = "pump.pour"
	StepEngineRun      Step = "engine.run"
	StepPumpDrain      Step = "pump.drain"
)

// Device returns the collaborator the step addresses.
func (s Step) Device() string {
	device, _, _ := strings.Cut(string(s), ".")
	return device
}

// Operation returns the operation part of the step.
func (s Step) Operation() string {
	_, op, _ := strings.Cut(string(s), ".")
	return op
}
