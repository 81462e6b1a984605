package washer

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// callLog records device calls across all mocks so tests can assert order.
type callLog struct {
	mu    sync.Mutex
	calls []Step
}

func (l *callLog) add(step Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, step)
}

func (l *callLog) steps() []Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Step(nil), l.calls...)
}

type mockDoor struct {
	mock.Mock
	log *callLog
}

func (m *mockDoor) Closed(ctx context.Context) bool {
	m.log.add(StepDoorClosed)
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *mockDoor) Lock(ctx context.Context) {
	m.log.add(StepDoorLock)
	m.Called(ctx)
}

type mockDirtFilter struct {
	mock.Mock
	log *callLog
}

func (m *mockDirtFilter) Capacity(ctx context.Context) float64 {
	m.log.add(StepFilterCapacity)
	args := m.Called(ctx)
	return args.Get(0).(float64)
}

type mockWaterPump struct {
	mock.Mock
	log *callLog
}

func (m *mockWaterPump) Pour(ctx context.Context, level FillLevel) error {
	m.log.add(StepPumpPour)
	args := m.Called(ctx, level)
	return args.Error(0)
}

func (m *mockWaterPump) Drain(ctx context.Context) {
	m.log.add(StepPumpDrain)
	m.Called(ctx)
}

type mockEngine struct {
	mock.Mock
	log *callLog
}

func (m *mockEngine) RunProgram(ctx context.Context, program WashingProgram) error {
	m.log.add(StepEngineRun)
	args := m.Called(ctx, program)
	return args.Error(0)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) RecordCycle(ctx context.Context, cycle Cycle) error {
	args := m.Called(ctx, cycle)
	return args.Error(0)
}

// devices is the full mocked collaborator set for one test.
type devices struct {
	log    *callLog
	door   *mockDoor
	filter *mockDirtFilter
	pump   *mockWaterPump
	engine *mockEngine
}

func newDevices() *devices {
	log := &callLog{}
	return &devices{
		log:    log,
		door:   &mockDoor{log: log},
		filter: &mockDirtFilter{log: log},
		pump:   &mockWaterPump{log: log},
		engine: &mockEngine{log: log},
	}
}

func (d *devices) dishWasher(opts ...Option) *DishWasher {
	return New(d.pump, d.engine, d.filter, d.door, opts...)
}

// happyPath programs every device to succeed with the given filter reading.
func (d *devices) happyPath(capacity float64) {
	d.door.On("Closed", mock.Anything).Return(true)
	d.door.On("Lock", mock.Anything).Return()
	d.filter.On("Capacity", mock.Anything).Return(capacity)
	d.pump.On("Pour", mock.Anything, mock.Anything).Return(nil)
	d.pump.On("Drain", mock.Anything).Return()
	d.engine.On("RunProgram", mock.Anything, mock.Anything).Return(nil)
}

func standardConfiguration(tabletsUsed bool) ProgramConfiguration {
	return ProgramConfiguration{
		FillLevel:   FillHalf,
		Program:     ProgramEco,
		TabletsUsed: tabletsUsed,
	}
}
