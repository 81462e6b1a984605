package stores

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/dishwasher/pkg/washer"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ Store = (*SQLiteStore)(nil)

	errNotInitialized = errors.New("stores: database not initialized")
)

// SQLiteStore keeps cycle history in a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config describes the database file and its connection pool. Zero pool
// values fall back to 25 open, 5 idle and a 5 minute lifetime.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.Path == ":memory:" {
		// each connection to :memory: sees its own database
		return Config{Path: c.Path, MaxOpenConns: 1, MaxIdleConns: 1}
	}
	c.MaxOpenConns = cmp.Or(c.MaxOpenConns, 25)
	c.MaxIdleConns = cmp.Or(c.MaxIdleConns, 5)
	c.ConnMaxLifetime = cmp.Or(c.ConnMaxLifetime, 5*time.Minute)
	return c
}

func (c Config) dsn() string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
		"_time_format=sqlite",
		"_txlock=immediate",
	}
	return c.Path + "?" + strings.Join(pragmas, "&")
}

// NewSQLiteStore returns an unopened store; call Init and then Migrate.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("stores: empty database path")
	}
	return &SQLiteStore{cfg: cfg.withDefaults()}, nil
}

// Init opens the database and checks it answers.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.cfg.dsn())
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Path, err)
	}
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %s: %w", s.cfg.Path, err)
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies the embedded schema migrations. It is a no-op on an
// up-to-date database.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return errNotInitialized
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	target, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration target: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// RecordCycle persists a finished cycle. It satisfies washer.CycleRecorder.
func (s *SQLiteStore) RecordCycle(ctx context.Context, cycle washer.Cycle) error {
	rec := NewCycleRecord(cycle)

	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	query := `
		INSERT INTO cycles (
			id, fill_level, program, tablets_used, status, run_minutes,
			steps, filter_capacity, error, started_at, completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.FillLevel,
		rec.Program,
		rec.TabletsUsed,
		rec.Status,
		rec.RunMinutes,
		string(steps),
		rec.FilterCapacity,
		rec.Error,
		rec.StartedAt,
		rec.CompletedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}

	return nil
}

const cycleColumns = `id, fill_level, program, tablets_used, status, run_minutes,
		steps, filter_capacity, error, started_at, completed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*CycleRecord, error) {
	rec := &CycleRecord{}
	var steps string
	err := row.Scan(
		&rec.ID,
		&rec.FillLevel,
		&rec.Program,
		&rec.TabletsUsed,
		&rec.Status,
		&rec.RunMinutes,
		&steps,
		&rec.FilterCapacity,
		&rec.Error,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &rec.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps for cycle %s: %w", rec.ID, err)
	}

	return rec, nil
}

// GetCycle retrieves a cycle by ID
func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*CycleRecord, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = ?`

	rec, err := scanCycle(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCycleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}

	return rec, nil
}

// ListCycles lists cycles newest first, optionally filtered by status and program
func (s *SQLiteStore) ListCycles(ctx context.Context, filter CycleFilter) ([]*CycleRecord, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Program != "" {
		query += " AND program = ?"
		args = append(args, filter.Program)
	}

	query += " ORDER BY started_at DESC, rowid DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	cycles := []*CycleRecord{}
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}

	return cycles, nil
}

// StatusCounts returns how many recorded cycles ended in each status
func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[washer.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM cycles GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count cycles: %w", err)
	}
	defer rows.Close()

	counts := make(map[washer.Status]int)
	for rows.Next() {
		var status washer.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// DeleteCyclesBefore removes cycles that started before the given time
func (s *SQLiteStore) DeleteCyclesBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM cycles WHERE started_at < ?`

	result, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete cycles: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck pings the open database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return errNotInitialized
	}

	return s.db.PingContext(ctx)
}
