package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/engine"
	"github.com/talgya/heatsim/internal/service"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "heatsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestModel(t *testing.T, steps int) *engine.Model {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Run.Houseowners = 30
	cfg.Run.Plumbers = 2
	cfg.Run.Advisors = 1
	cfg.Run.Seed = 5
	cfg.Run.Steps = steps
	cfg.Run.ReportEvery = 2
	require.NoError(t, cfg.Validate())
	m, err := engine.NewModel(cfg, nil)
	require.NoError(t, err)
	return m
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetMeta("missing")
	assert.Error(t, err)

	require.NoError(t, db.SaveMeta("last_run", "a"))
	require.NoError(t, db.SaveMeta("last_run", "b"))
	v, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestRecorderStoresRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := newTestModel(t, 5)

	rec, err := NewRecorder(ctx, db, m)
	require.NoError(t, err)
	m.Collector = rec

	var jobs []service.Completion
	for !m.Done() {
		require.NoError(t, m.Step(ctx))
		jobs = append(jobs, m.Snapshot().Jobs...)
	}
	m.EmitEvent(engine.Event{Tick: m.Env.Tick, Description: "test event", Category: "scenario"})
	require.NoError(t, rec.Finish(ctx, m))

	run, err := db.GetRun(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, "baseline", run.Scenario)
	assert.Equal(t, int64(5), run.Seed)
	assert.Equal(t, 30, run.Houseowners)
	assert.Equal(t, 5, run.LastTick)
	require.NotNil(t, run.FinishedAt)

	last, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, rec.RunID, last)

	series, err := db.StageSeries(ctx, rec.RunID)
	require.NoError(t, err)
	require.Len(t, series, 5)
	assert.Equal(t, m.Snapshot().Stages, series[5])

	stored, err := db.CompletedJobs(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(jobs, stored, cmpopts.EquateEmpty()))

	counters, err := db.Counters(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(m.Snapshot().Counters.FlowTotals(), counters["flows"], cmpopts.EquateEmpty()))

	events, err := db.RecentEvents(ctx, rec.RunID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "test event", events[0].Description)
}

func TestAgentRowsEveryReport(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := newTestModel(t, 3)

	rec, err := NewRecorder(ctx, db, m)
	require.NoError(t, err)
	m.Collector = rec
	for !m.Done() {
		require.NoError(t, m.Step(ctx))
	}
	require.NoError(t, rec.Finish(ctx, m))

	var ticks []int
	require.NoError(t, db.conn.Select(&ticks,
		"SELECT DISTINCT tick FROM agent_states WHERE run_id = ? ORDER BY tick", rec.RunID))
	assert.Equal(t, []int{2, 3}, ticks, "report ticks plus the final tick")

	var rows int
	require.NoError(t, db.conn.Get(&rows,
		"SELECT COUNT(*) FROM agent_states WHERE run_id = ? AND tick = 3", rec.RunID))
	assert.Equal(t, 30, rows)
}

func TestRunsAreSeparated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a, err := db.StartRun(ctx, newTestModel(t, 1))
	require.NoError(t, err)
	b, err := db.StartRun(ctx, newTestModel(t, 1))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, db.SaveEvents(ctx, a, []engine.Event{{Tick: 1, Description: "only a", Category: "market"}}))
	events, err := db.RecentEvents(ctx, b, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
