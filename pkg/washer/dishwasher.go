package washer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/dishwasher/pkg/telemetry"
)

// FilterCapacityThreshold is the highest filter capacity that still allows a
// cycle with tablets to run.
const FilterCapacityThreshold = 50.0

// DishWasher orchestrates one wash cycle per Start call over its four devices.
// Cycles on the same instance are serialized.
type DishWasher struct {
	pump   WaterPump
	engine Engine
	filter DirtFilter
	door   Door

	tel      *telemetry.Telemetry
	recorder CycleRecorder
	now      func() time.Time

	// mu serializes cycles; the devices are one physical appliance.
	mu sync.Mutex
}

// Option configures a DishWasher.
type Option func(*DishWasher)

// WithTelemetry sets the logger, tracer, metrics and event publisher used for cycles.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *DishWasher) {
		if tel != nil {
			d.tel = tel
		}
	}
}

// WithRecorder persists every finished cycle.
func WithRecorder(recorder CycleRecorder) Option {
	return func(d *DishWasher) {
		d.recorder = recorder
	}
}

// WithClock overrides the time source used for cycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *DishWasher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a DishWasher over the given devices.
func New(pump WaterPump, engine Engine, filter DirtFilter, door Door, opts ...Option) *DishWasher {
	d := &DishWasher{
		pump:   pump,
		engine: engine,
		filter: filter,
		door:   door,
		tel:    telemetry.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs one wash cycle and returns its result.
// It never returns an error: every failure is encoded in the result status.
func (d *DishWasher) Start(ctx context.Context, cfg ProgramConfiguration) RunResult {
	return d.StartCycle(ctx, cfg).Result
}

// StartCycle runs one wash cycle and returns the full cycle record.
func (d *DishWasher) StartCycle(ctx context.Context, cfg ProgramConfiguration) Cycle {
	d.mu.Lock()
	defer d.mu.Unlock()

	cycle := Cycle{
		ID:        uuid.New().String(),
		Config:    cfg,
		Steps:     make([]Step, 0, 6),
		StartedAt: d.now(),
	}
	program := string(cfg.Program)

	ctx, span := d.tel.Tracer.StartCycleSpan(ctx, cycle.ID, program)
	defer span.End()

	logger := d.tel.Logger.NewComponentLogger("dishwasher").
		WithCycleID(cycle.ID).
		WithFields(map[string]interface{}{
			"program":      program,
			"fill_level":   string(cfg.FillLevel),
			"tablets_used": cfg.TabletsUsed,
		})
	ctx = logger.WithContext(ctx)

	d.tel.Metrics.RecordCycleStarted(program)
	_ = d.tel.Events.PublishCycleStarted(cycle.ID, program)
	logger.Debug("Wash cycle started")

	run := &cycleRun{d: d, cycle: &cycle, logger: logger}
	cycle.Result = run.execute(ctx)
	cycle.CompletedAt = d.now()

	status := string(cycle.Result.Status)
	d.tel.Metrics.RecordCycleCompleted(program, status, cycle.Result.RunMinutes)
	span.SetAttributes(
		telemetry.AttrCycleStatus.String(status),
		telemetry.AttrRunMinutes.Int(cycle.Result.RunMinutes),
	)

	if cycle.Result.Succeeded() {
		telemetry.RecordSuccess(span)
		_ = d.tel.Events.PublishCycleCompleted(cycle.ID, status, cycle.Result.RunMinutes)
		logger.Infof("Wash cycle completed, program ran for %d minutes", cycle.Result.RunMinutes)
	} else {
		telemetry.RecordStatus(span, status, cycle.Err)
		_ = d.tel.Events.PublishCycleFailed(cycle.ID, status, cycle.Err)
		logger.WithField("status", status).Warn("Wash cycle failed")
	}

	if d.recorder != nil {
		if err := d.recorder.RecordCycle(ctx, cycle); err != nil {
			logger.WithError(err).Error("Failed to record wash cycle")
		}
	}

	return cycle
}

// cycleRun carries the per-call state of one cycle.
type cycleRun struct {
	d      *DishWasher
	cycle  *Cycle
	logger *telemetry.Logger
}

// execute walks the cycle steps in order and stops at the first failure.
func (r *cycleRun) execute(ctx context.Context) RunResult {
	cfg := r.cycle.Config
	d := r.d

	if err := cfg.Validate(); err != nil {
		r.logger.WithError(err).Warn("Rejected invalid program configuration")
		r.cycle.Err = err.Error()
		return failureResult(StatusErrorProgram)
	}

	var closed bool
	_ = r.step(ctx, StepDoorClosed, func(ctx context.Context) error {
		closed = d.door.Closed(ctx)
		return nil
	})
	if !closed {
		return failureResult(StatusDoorOpen)
	}

	if cfg.TabletsUsed {
		var capacity float64
		_ = r.step(ctx, StepFilterCapacity, func(ctx context.Context) error {
			capacity = d.filter.Capacity(ctx)
			return nil
		})
		r.cycle.FilterCapacity = &capacity
		if capacity > FilterCapacityThreshold {
			r.logger.Warnf("Dirt filter capacity %.1f exceeds %.1f", capacity, FilterCapacityThreshold)
			return failureResult(StatusErrorFilter)
		}
	}

	_ = r.step(ctx, StepDoorLock, func(ctx context.Context) error {
		d.door.Lock(ctx)
		return nil
	})

	if err := r.step(ctx, StepPumpPour, func(ctx context.Context) error {
		return d.pump.Pour(ctx, cfg.FillLevel)
	}); err != nil {
		r.cycle.Err = err.Error()
		return failureResult(StatusErrorPump)
	}

	if err := r.step(ctx, StepEngineRun, func(ctx context.Context) error {
		return d.engine.RunProgram(ctx, cfg.Program)
	}); err != nil {
		r.cycle.Err = err.Error()
		return failureResult(StatusErrorProgram)
	}

	_ = r.step(ctx, StepPumpDrain, func(ctx context.Context) error {
		d.pump.Drain(ctx)
		return nil
	})

	return successResult(cfg.Program)
}

// step issues one collaborator call with tracing, metrics and events around it.
func (r *cycleRun) step(ctx context.Context, step Step, fn func(ctx context.Context) error) error {
	tel := r.d.tel
	device, operation := step.Device(), step.Operation()

	ctx, span := tel.Tracer.StartStepSpan(ctx, device, operation)
	defer span.End()

	r.cycle.Steps = append(r.cycle.Steps, step)
	timer := telemetry.NewTimer()
	err := fn(ctx)
	duration := timer.Duration()

	tel.Metrics.RecordDeviceCall(device, operation, duration)
	if err != nil {
		tel.Metrics.RecordDeviceError(device, operation)
		telemetry.RecordError(span, err)
		_ = tel.Events.PublishStepFailed(r.cycle.ID, string(step), err.Error())
		r.logger.WithError(err).WithField("step", string(step)).Error("Device command failed")
		return err
	}

	telemetry.RecordSuccess(span)
	_ = tel.Events.PublishStepCompleted(r.cycle.ID, string(step), duration)
	r.logger.WithField("step", string(step)).Debug("Device step completed")
	return nil
}
