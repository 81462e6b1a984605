package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/dishwasher/pkg/washer"
)

// ErrCycleNotFound is returned when a cycle ID has no stored record.
var ErrCycleNotFound = errors.New("cycle not found")

// CycleRecord represents one persisted wash cycle
type CycleRecord struct {
	ID             string                `json:"id"`
	FillLevel      washer.FillLevel      `json:"fill_level"`
	Program        washer.WashingProgram `json:"program"`
	TabletsUsed    bool                  `json:"tablets_used"`
	Status         washer.Status         `json:"status"`
	RunMinutes     int                   `json:"run_minutes"`
	Steps          []washer.Step         `json:"steps"`                     // stored as a JSON array
	FilterCapacity *float64              `json:"filter_capacity,omitempty"` // nil when the filter was not read
	Error          *string               `json:"error,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    time.Time             `json:"completed_at"`
	CreatedAt      time.Time             `json:"created_at"`
}

// NewCycleRecord flattens a cycle into its stored form.
func NewCycleRecord(c washer.Cycle) *CycleRecord {
	rec := &CycleRecord{
		ID:             c.ID,
		FillLevel:      c.Config.FillLevel,
		Program:        c.Config.Program,
		TabletsUsed:    c.Config.TabletsUsed,
		Status:         c.Result.Status,
		RunMinutes:     c.Result.RunMinutes,
		Steps:          c.Steps,
		FilterCapacity: c.FilterCapacity,
		StartedAt:      c.StartedAt.UTC(),
		CompletedAt:    c.CompletedAt.UTC(),
	}
	if rec.Steps == nil {
		rec.Steps = []washer.Step{}
	}
	if c.Err != "" {
		msg := c.Err
		rec.Error = &msg
	}
	return rec
}

// Cycle rebuilds the orchestrator view of the record.
func (r *CycleRecord) Cycle() washer.Cycle {
	c := washer.Cycle{
		ID: r.ID,
		Config: washer.ProgramConfiguration{
			FillLevel:   r.FillLevel,
			Program:     r.Program,
			TabletsUsed: r.TabletsUsed,
		},
		Result: washer.RunResult{
			Status:     r.Status,
			RunMinutes: r.RunMinutes,
		},
		Steps:          r.Steps,
		FilterCapacity: r.FilterCapacity,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
	if r.Error != nil {
		c.Err = *r.Error
	}
	return c
}

// CycleFilter narrows ListCycles. Zero values match everything.
type CycleFilter struct {
	Status  washer.Status
	Program washer.WashingProgram
	Limit   int
	Offset  int
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Cycle operations
	RecordCycle(ctx context.Context, cycle washer.Cycle) error
	GetCycle(ctx context.Context, id string) (*CycleRecord, error)
	ListCycles(ctx context.Context, filter CycleFilter) ([]*CycleRecord, error)
	StatusCounts(ctx context.Context) (map[washer.Status]int, error)
	DeleteCyclesBefore(ctx context.Context, before time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ washer.CycleRecorder = (Store)(nil)
