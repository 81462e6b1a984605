package washer

import "context"

// Door senses and locks the appliance door.
type Door interface {
	// Closed reports whether the door is shut.
	Closed(ctx context.Context) bool

	// Lock locks the door for the duration of the cycle.
	Lock(ctx context.Context)
}

// DirtFilter reports how fouled the filter is.
type DirtFilter interface {
	// Capacity returns the filter fouling as a percentage.
	Capacity(ctx context.Context) float64
}

// WaterPump fills and empties the tub.
type WaterPump interface {
	// Pour fills the tub to the given level. Faults are returned as errors.
	Pour(ctx context.Context, level FillLevel) error

	// Drain empties the tub.
	Drain(ctx context.Context)
}

// Engine drives the wash motor.
type Engine interface {
	// RunProgram runs the program to completion. Faults are returned as errors.
	RunProgram(ctx context.Context, program WashingProgram) error
}

// CycleRecorder persists finished cycles.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, cycle Cycle) error
}
