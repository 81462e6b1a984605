package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/dishwasher/pkg/washer"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testCycle(id string, status washer.Status, program washer.WashingProgram, startOffset time.Duration) washer.Cycle {
	c := washer.Cycle{
		ID: id,
		Config: washer.ProgramConfiguration{
			FillLevel: washer.FillHalf,
			Program:   program,
		},
		Result:      washer.RunResult{Status: status},
		Steps:       []washer.Step{washer.StepDoorClosed},
		StartedAt:   baseTime.Add(startOffset),
		CompletedAt: baseTime.Add(startOffset + time.Second),
	}
	if status == washer.StatusSuccess {
		c.Result.RunMinutes = program.Minutes()
		c.Steps = []washer.Step{
			washer.StepDoorClosed, washer.StepDoorLock, washer.StepPumpPour,
			washer.StepEngineRun, washer.StepPumpDrain,
		}
	}
	return c
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	assert.Error(t, err)
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "washer.db"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, store.HealthCheck(ctx))
	assert.Error(t, store.Migrate(ctx))

	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.HealthCheck(ctx))
	require.NoError(t, store.Migrate(ctx))

	// Running migrations twice is a no-op.
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Close())
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "washer.db")
	ctx := context.Background()

	open := func() *SQLiteStore {
		store, err := NewSQLiteStore(Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, store.Init(ctx))
		require.NoError(t, store.Migrate(ctx))
		return store
	}

	store := open()
	require.NoError(t, store.RecordCycle(ctx, testCycle("c-1", washer.StatusSuccess, washer.ProgramNight, 0)))
	require.NoError(t, store.Close())

	store = open()
	defer store.Close()
	rec, err := store.GetCycle(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 180, rec.RunMinutes)
}

func TestRecordAndGetCycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	capacity := 51.0
	cycle := washer.Cycle{
		ID: "c-filter",
		Config: washer.ProgramConfiguration{
			FillLevel:   washer.FillFull,
			Program:     washer.ProgramIntensive,
			TabletsUsed: true,
		},
		Result:         washer.RunResult{Status: washer.StatusErrorFilter},
		Steps:          []washer.Step{washer.StepDoorClosed, washer.StepFilterCapacity},
		FilterCapacity: &capacity,
		StartedAt:      baseTime,
		CompletedAt:    baseTime.Add(250 * time.Millisecond),
	}
	require.NoError(t, store.RecordCycle(ctx, cycle))

	rec, err := store.GetCycle(ctx, "c-filter")
	require.NoError(t, err)
	assert.Equal(t, washer.FillFull, rec.FillLevel)
	assert.Equal(t, washer.ProgramIntensive, rec.Program)
	assert.True(t, rec.TabletsUsed)
	assert.Equal(t, washer.StatusErrorFilter, rec.Status)
	assert.Zero(t, rec.RunMinutes)
	assert.Equal(t, cycle.Steps, rec.Steps)
	require.NotNil(t, rec.FilterCapacity)
	assert.InDelta(t, 51.0, *rec.FilterCapacity, 1e-9)
	assert.Nil(t, rec.Error)
	assert.True(t, rec.StartedAt.Equal(cycle.StartedAt))
	assert.True(t, rec.CompletedAt.Equal(cycle.CompletedAt))
	assert.False(t, rec.CreatedAt.IsZero())

	back := rec.Cycle()
	assert.Equal(t, cycle.Config, back.Config)
	assert.Equal(t, cycle.Result, back.Result)
	assert.Empty(t, back.Err)
}

func TestRecordCycleKeepsDeviceError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cycle := testCycle("c-pump", washer.StatusErrorPump, washer.ProgramEco, 0)
	cycle.Err = "pump pour: valve stuck"
	require.NoError(t, store.RecordCycle(ctx, cycle))

	rec, err := store.GetCycle(ctx, "c-pump")
	require.NoError(t, err)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "pump pour: valve stuck", *rec.Error)
	assert.Nil(t, rec.FilterCapacity)
	assert.Equal(t, "pump pour: valve stuck", rec.Cycle().Err)
}

func TestRecordCycleDuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cycle := testCycle("dup", washer.StatusDoorOpen, washer.ProgramEco, 0)
	require.NoError(t, store.RecordCycle(ctx, cycle))
	assert.Error(t, store.RecordCycle(ctx, cycle))
}

func TestGetCycleNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetCycle(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestListCycles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cycles := []washer.Cycle{
		testCycle("c-1", washer.StatusSuccess, washer.ProgramEco, 0),
		testCycle("c-2", washer.StatusDoorOpen, washer.ProgramEco, time.Minute),
		testCycle("c-3", washer.StatusSuccess, washer.ProgramRinse, 2*time.Minute),
		testCycle("c-4", washer.StatusErrorPump, washer.ProgramNight, 3*time.Minute),
	}
	for _, c := range cycles {
		require.NoError(t, store.RecordCycle(ctx, c))
	}

	ids := func(recs []*CycleRecord) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter CycleFilter
		want   []string
	}{
		{name: "all newest first", filter: CycleFilter{}, want: []string{"c-4", "c-3", "c-2", "c-1"}},
		{name: "by status", filter: CycleFilter{Status: washer.StatusSuccess}, want: []string{"c-3", "c-1"}},
		{name: "by program", filter: CycleFilter{Program: washer.ProgramEco}, want: []string{"c-2", "c-1"}},
		{
			name:   "status and program",
			filter: CycleFilter{Status: washer.StatusSuccess, Program: washer.ProgramRinse},
			want:   []string{"c-3"},
		},
		{name: "limit", filter: CycleFilter{Limit: 2}, want: []string{"c-4", "c-3"}},
		{name: "limit and offset", filter: CycleFilter{Limit: 2, Offset: 2}, want: []string{"c-2", "c-1"}},
		{name: "no match", filter: CycleFilter{Status: washer.StatusErrorFilter}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := store.ListCycles(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}
}

func TestStatusCounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	counts, err := store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	for i, status := range []washer.Status{
		washer.StatusSuccess, washer.StatusSuccess, washer.StatusDoorOpen, washer.StatusErrorProgram,
	} {
		c := testCycle(string(rune('a'+i)), status, washer.ProgramEco, time.Duration(i)*time.Minute)
		require.NoError(t, store.RecordCycle(ctx, c))
	}

	counts, err = store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[washer.Status]int{
		washer.StatusSuccess:      2,
		washer.StatusDoorOpen:     1,
		washer.StatusErrorProgram: 1,
	}, counts)
}

func TestDeleteCyclesBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordCycle(ctx, testCycle("old", washer.StatusSuccess, washer.ProgramEco, -48*time.Hour)))
	require.NoError(t, store.RecordCycle(ctx, testCycle("new", washer.StatusSuccess, washer.ProgramEco, 0)))

	n, err := store.DeleteCyclesBefore(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetCycle(ctx, "old")
	assert.ErrorIs(t, err, ErrCycleNotFound)
	_, err = store.GetCycle(ctx, "new")
	assert.NoError(t, err)
}

func TestStoreRecordsOrchestratedCycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	dw := washer.New(okPump{}, okEngine{}, fixedFilter(10), door(true), washer.WithRecorder(store))
	cycle := dw.StartCycle(ctx, washer.ProgramConfiguration{
		FillLevel:   washer.FillHalf,
		Program:     washer.ProgramEco,
		TabletsUsed: true,
	})
	require.Equal(t, washer.StatusSuccess, cycle.Result.Status)

	rec, err := store.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, rec.RunMinutes)
	assert.Equal(t, cycle.Steps, rec.Steps)
	require.NotNil(t, rec.FilterCapacity)
	assert.InDelta(t, 10.0, *rec.FilterCapacity, 1e-9)
}

type door bool

func (d door) Closed(context.Context) bool { return bool(d) }
func (door) Lock(context.Context)          {}

type fixedFilter float64

func (f fixedFilter) Capacity(context.Context) float64 { return float64(f) }

type okPump struct{}

func (okPump) Pour(context.Context, washer.FillLevel) error { return nil }
func (okPump) Drain(context.Context)                        {}

type okEngine struct{}

func (okEngine) RunProgram(context.Context, washer.WashingProgram) error { return nil }
