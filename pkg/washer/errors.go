package washer

import (
	"errors"
	"fmt"
)

var (
	// ErrPumpFault is matched by every pump DeviceError.
	ErrPumpFault = errors.New("water pump fault")

	// ErrEngineFault is matched by every engine DeviceError.
	ErrEngineFault = errors.New("engine fault")
)

// Device names used in errors, metrics and traces.
const (
	DeviceDoor   = "door"
	DeviceFilter = "filter"
	DevicePump   = "pump"
	DeviceEngine = "engine"
)

// DeviceError is a fault raised by a collaborator during a commanded action.
type DeviceError struct {
	// Device is the collaborator that failed (pump, engine).
	Device string `json:"device"`

	// Operation is the command being executed when the fault occurred.
	Operation string `json:"operation"`

	// Message is the human-readable fault description.
	Message string `json:"message"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Device, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Device, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the device sentinels and other DeviceErrors on the same device and operation.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrPumpFault:
		return e.Device == DevicePump
	case ErrEngineFault:
		return e.Device == DeviceEngine
	}
	t, ok := target.(*DeviceError)
	if !ok {
		return false
	}
	return e.Device == t.Device && e.Operation == t.Operation
}

// NewPumpError creates a pump fault for the pour operation.
func NewPumpError(message string, err error) *DeviceError {
	return &DeviceError{
		Device:    DevicePump,
		Operation: StepPumpPour.Operation(),
		Message:   message,
		Err:       err,
	}
}

// NewEngineError creates an engine fault for the run operation.
func NewEngineError(message string, err error) *DeviceError {
	return &DeviceError{
		Device:    DeviceEngine,
		Operation: StepEngineRun.Operation(),
		Message:   message,
		Err:       err,
	}
}

// IsPumpFault returns true if err is a pump fault.
func IsPumpFault(err error) bool {
	return errors.Is(err, ErrPumpFault)
}

// IsEngineFault returns true if err is an engine fault.
func IsEngineFault(err error) bool {
	return errors.Is(err, ErrEngineFault)
}
