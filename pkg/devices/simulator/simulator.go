// Package simulator provides in-memory dishwasher devices for the CLI and tests.
//
// Every device is safe for concurrent use and logs through the logger carried
// in the call context (see telemetry.FromContext).
package simulator

import (
	"context"
	"errors"
	"sync"

	"github.com/openfroyo/dishwasher/pkg/config"
	"github.com/openfroyo/dishwasher/pkg/telemetry"
	"github.com/openfroyo/dishwasher/pkg/washer"
)

// Door is a simulated door sensor and lock.
type Door struct {
	mu     sync.Mutex
	open   bool
	locked bool
}

// NewDoor creates a door in the given position.
func NewDoor(open bool) *Door {
	return &Door{open: open}
}

// Closed reports whether the door is shut.
func (d *Door) Closed(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	telemetry.FromContext(ctx).WithDevice(washer.DeviceDoor).
		WithField("open", d.open).Debug("Door sensor read")
	return !d.open
}

// Lock engages the door lock.
func (d *Door) Lock(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.locked = true
	telemetry.FromContext(ctx).WithDevice(washer.DeviceDoor).Debug("Door locked")
}

// SetOpen moves the door. Opening it releases the lock.
func (d *Door) SetOpen(open bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.open = open
	if open {
		d.locked = false
	}
}

// Locked reports whether the lock is engaged.
func (d *Door) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// DirtFilter is a simulated filter that reports a fixed capacity.
type DirtFilter struct {
	mu       sync.Mutex
	capacity float64
	reads    int
}

// NewDirtFilter creates a filter reporting capacity percent.
func NewDirtFilter(capacity float64) *DirtFilter {
	return &DirtFilter{capacity: capacity}
}

// Capacity returns the current fill percentage.
func (f *DirtFilter) Capacity(ctx context.Context) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	telemetry.FromContext(ctx).WithDevice(washer.DeviceFilter).
		WithField("capacity", f.capacity).Debug("Filter capacity read")
	return f.capacity
}

// SetCapacity changes the reported capacity.
func (f *DirtFilter) SetCapacity(capacity float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capacity = capacity
}

// Reads returns how many times the capacity was queried.
func (f *DirtFilter) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// WaterPump is a simulated pump with an injectable pour fault.
type WaterPump struct {
	mu        sync.Mutex
	fault     error
	lastLevel washer.FillLevel
	filled    bool
}

// NewWaterPump creates a pump that always succeeds.
func NewWaterPump() *WaterPump {
	return &WaterPump{}
}

// Pour fills the tub, or fails with the injected fault.
func (p *WaterPump) Pour(ctx context.Context, level washer.FillLevel) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := telemetry.FromContext(ctx).WithDevice(washer.DevicePump).WithField("fill_level", level)
	if p.fault != nil {
		logger.WithError(p.fault).Warn("Pour failed")
		return washer.NewPumpError("pour failed", p.fault)
	}

	p.lastLevel = level
	p.filled = true
	logger.Debug("Water poured")
	return nil
}

// Drain empties the tub.
func (p *WaterPump) Drain(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filled = false
	telemetry.FromContext(ctx).WithDevice(washer.DevicePump).Debug("Water drained")
}

// InjectFault makes every following pour fail with err. A nil err clears it.
func (p *WaterPump) InjectFault(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fault = err
}

// LastFillLevel returns the level of the last successful pour.
func (p *WaterPump) LastFillLevel() washer.FillLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLevel
}

// Filled reports whether water is in the tub.
func (p *WaterPump) Filled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled
}

// Engine is a simulated motor with an injectable run fault.
type Engine struct {
	mu          sync.Mutex
	fault       error
	lastProgram washer.WashingProgram
	runs        int
}

// NewEngine creates an engine that always succeeds.
func NewEngine() *Engine {
	return &Engine{}
}

// RunProgram runs the program, or fails with the injected fault.
func (e *Engine) RunProgram(ctx context.Context, program washer.WashingProgram) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := telemetry.FromContext(ctx).WithDevice(washer.DeviceEngine).WithField("program", program)
	if e.fault != nil {
		logger.WithError(e.fault).Warn("Program run failed")
		return washer.NewEngineError("program run failed", e.fault)
	}

	e.lastProgram = program
	e.runs++
	logger.Debugf("Program ran for %d minutes", program.Minutes())
	return nil
}

// InjectFault makes every following run fail with err. A nil err clears it.
func (e *Engine) InjectFault(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fault = err
}

// LastProgram returns the last program that ran successfully.
func (e *Engine) LastProgram() washer.WashingProgram {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastProgram
}

// Runs returns how many programs ran successfully.
func (e *Engine) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// Devices is a full simulated collaborator set.
type Devices struct {
	Door   *Door
	Filter *DirtFilter
	Pump   *WaterPump
	Engine *Engine
}

// New returns closed, clean, fault-free devices.
func New() *Devices {
	return &Devices{
		Door:   NewDoor(false),
		Filter: NewDirtFilter(0),
		Pump:   NewWaterPump(),
		Engine: NewEngine(),
	}
}

// FromSettings builds devices from appliance file settings.
func FromSettings(s config.DeviceSettings) *Devices {
	d := &Devices{
		Door:   NewDoor(s.Door.Open),
		Filter: NewDirtFilter(s.Filter.Capacity),
		Pump:   NewWaterPump(),
		Engine: NewEngine(),
	}
	if s.Pump.Fault != "" {
		d.Pump.InjectFault(errors.New(s.Pump.Fault))
	}
	if s.Engine.Fault != "" {
		d.Engine.InjectFault(errors.New(s.Engine.Fault))
	}
	return d
}

// DishWasher wires the devices into an orchestrator.
func (d *Devices) DishWasher(opts ...washer.Option) *washer.DishWasher {
	return washer.New(d.Pump, d.Engine, d.Filter, d.Door, opts...)
}
