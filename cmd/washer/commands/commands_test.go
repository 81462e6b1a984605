package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/dishwasher/pkg/stores"
	"github.com/openfroyo/dishwasher/pkg/transports/redis"
	"github.com/openfroyo/dishwasher/pkg/washer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand("1.2.3", "abc123", "2026-01-01")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "history.db")
}

func requireStatus(t *testing.T, err error, want washer.Status) {
	t.Helper()
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr), "want StatusError, got %v", err)
	assert.Equal(t, want, statusErr.Status)
}

func TestRunSuccess(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "run", "--db", db, "--program", "eco", "--fill", "full", "--tablets")
	require.NoError(t, err)
	assert.Contains(t, out, "status:      success")
	assert.Contains(t, out, "run minutes: 90")
	assert.Contains(t, out, "door.closed -> filter.capacity -> door.lock -> pump.pour -> engine.run -> pump.drain")

	out, err = execute(t, "history", "--db", db, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "eco")
	assert.Contains(t, out, "success")
}

func TestRunFailureStatuses(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want washer.Status
	}{
		{"door open", []string{"--door-open"}, washer.StatusDoorOpen},
		{"filter loaded", []string{"--tablets", "--filter-capacity", "50.5"}, washer.StatusErrorFilter},
		{"pump fault", []string{"--pump-fault", "valve stuck"}, washer.StatusErrorPump},
		{"engine fault", []string{"--engine-fault", "overheated"}, washer.StatusErrorProgram},
		{"unknown program", []string{"--program", "turbo"}, washer.StatusErrorProgram},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--no-history"}, tt.args...)
			out, err := execute(t, args...)
			requireStatus(t, err, tt.want)
			assert.Contains(t, out, "status:      "+string(tt.want))
			assert.Contains(t, out, "run minutes: 0")
		})
	}
}

func TestRunJSON(t *testing.T) {
	out, err := execute(t, "run", "--no-history", "--json", "--program", "RINSE")
	require.NoError(t, err)

	var cycle washer.Cycle
	require.NoError(t, json.Unmarshal([]byte(out), &cycle))
	assert.NotEmpty(t, cycle.ID)
	assert.Equal(t, washer.ProgramRinse, cycle.Config.Program)
	assert.Equal(t, washer.StatusSuccess, cycle.Result.Status)
	assert.Equal(t, 20, cycle.Result.RunMinutes)
	assert.Nil(t, cycle.FilterCapacity)
}

func TestRunUsesApplianceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appliance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  path: `+tempDB(t)+`
devices:
  filter:
    capacity: 80
request:
  fill_level: full
  program: intensive
  tablets_used: true
`), 0o644))

	out, err := execute(t, "run", "--config", path)
	requireStatus(t, err, washer.StatusErrorFilter)
	assert.Contains(t, out, "filter:      80.0%")

	out, err = execute(t, "run", "--config", path, "--filter-capacity", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "run minutes: 120")

	out, err = execute(t, "history", "--config", path, "--plain", "--status", "error_filter")
	require.NoError(t, err)
	assert.Contains(t, out, "error_filter")
	assert.Contains(t, out, "intensive")
}

func TestRunRejectsInvalidApplianceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appliance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  filter:\n    capacity: 400\n"), 0o644))

	_, err := execute(t, "run", "--config", path, "--no-history")
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestRunBroadcastsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	_, err := execute(t, "run", "--no-history", "--redis", mr.Addr(), "--pump-fault", "no water")
	requireStatus(t, err, washer.StatusErrorPump)

	b := redis.New(mr.Addr(), "", 0)
	defer b.Close()

	last, err := b.LastCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "error_pump", last.Data["status"])

	counts, err := b.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"error_pump": 1}, counts)
}

func TestRunUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := execute(t, "run", "--no-history", "--redis", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach redis")
}

func TestHistoryShowAndPrune(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "run", "--db", db, "--json", "--program", "night")
	require.NoError(t, err)
	var cycle washer.Cycle
	require.NoError(t, json.Unmarshal([]byte(out), &cycle))

	out, err = execute(t, "history", "show", cycle.ID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, cycle.ID)
	assert.Contains(t, out, "run minutes: 180")

	_, err = execute(t, "history", "show", "missing", "--db", db)
	assert.ErrorIs(t, err, stores.ErrCycleNotFound)

	out, err = execute(t, "history", "prune", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 cycle(s)")

	_, err = execute(t, "history", "prune", "--db", db, "--older-than", "0s")
	assert.Error(t, err)
}

func TestHistoryJSON(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "run", "--db", db)
	require.NoError(t, err)
	_, err = execute(t, "run", "--db", db, "--door-open")
	require.Error(t, err)

	out, err := execute(t, "history", "--db", db, "--json")
	require.NoError(t, err)

	var got struct {
		Cycles []stores.CycleRecord  `json:"cycles"`
		Counts map[washer.Status]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Cycles, 2)
	assert.Equal(t, map[washer.Status]int{washer.StatusSuccess: 1, washer.StatusDoorOpen: 1}, got.Counts)

	_, err = execute(t, "history", "--db", db, "--status", "bogus")
	assert.Error(t, err)
	_, err = execute(t, "history", "--db", db, "--program", "turbo")
	assert.Error(t, err)
}

func TestPrograms(t *testing.T) {
	out, err := execute(t, "programs", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "PROGRAM")
	assert.Contains(t, out, "intensive")
	assert.Contains(t, out, "180")

	out, err = execute(t, "programs", "--json")
	require.NoError(t, err)
	var infos []programInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 4)
	assert.Equal(t, programInfo{Name: washer.ProgramIntensive, Minutes: 120}, infos[0])
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.cue")
	require.NoError(t, os.WriteFile(good, []byte(`request: {fill_level: "half", program: "eco", tablets_used: true}`), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("request:\n  fill_level: quarter\n  program: eco\n"), 0o644))

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "good.cue: ok")
	assert.Contains(t, out, "request: eco, half, tablets: true")

	out, err = execute(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "File.Request.FillLevel")

	out, err = execute(t, "validate", "--json", bad)
	require.Error(t, err)
	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)

	_, err = execute(t, "validate", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "washer 1.2.3 (commit: abc123, built: 2026-01-01)\n", out)
}
