// Package persistence stores run results in SQLite.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/engine"
	"github.com/talgya/heatsim/internal/service"
)

// DB wraps a SQLite connection for run results.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		houseowners INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		last_tick INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tick_stats (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		year INTEGER NOT NULL,
		triggers INTEGER NOT NULL,
		replacements INTEGER NOT NULL,
		changes INTEGER NOT NULL,
		spending REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS stage_distribution (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		stage TEXT NOT NULL,
		count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS heating_distribution (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS completed_jobs (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		job TEXT NOT NULL,
		desk TEXT NOT NULL,
		customer INTEGER NOT NULL,
		service TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queue_lengths (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		desk TEXT NOT NULL,
		service TEXT NOT NULL,
		length INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_states (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		milieu TEXT NOT NULL,
		stage TEXT NOT NULL,
		breakpoint TEXT NOT NULL,
		trigger TEXT NOT NULL,
		satisfaction TEXT NOT NULL,
		heating TEXT NOT NULL,
		age INTEGER NOT NULL,
		budget REAL NOT NULL,
		suboptimality REAL,
		ratings_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counters (
		run_id TEXT NOT NULL,
		category TEXT NOT NULL,
		key TEXT NOT NULL,
		value INTEGER NOT NULL,
		PRIMARY KEY (run_id, category, key)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stage_run_tick ON stage_distribution(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_jobs_run ON completed_jobs(run_id, step);
	CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one row of the runs table.
type Run struct {
	ID          string  `db:"id" json:"id"`
	Scenario    string  `db:"scenario" json:"scenario"`
	Seed        int64   `db:"seed" json:"seed"`
	Houseowners int     `db:"houseowners" json:"houseowners"`
	Steps       int     `db:"steps" json:"steps"`
	StartedAt   string  `db:"started_at" json:"started_at"`
	FinishedAt  *string `db:"finished_at" json:"finished_at,omitempty"`
	LastTick    int     `db:"last_tick" json:"last_tick"`
}

// StartRun registers a new run of m and returns its ID.
func (db *DB) StartRun(ctx context.Context, m *engine.Model) (string, error) {
	cfg := m.Env.Cfg
	id := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, seed, houseowners, steps, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, m.Scenario.Name, m.Env.Streams().Root, len(m.Env.OwnerOrder), cfg.Run.Steps,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the end of a run.
func (db *DB) FinishRun(ctx context.Context, runID string, lastTick int) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, last_tick = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), lastTick, runID,
	)
	return err
}

// GetRun loads one run.
func (db *DB) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	err := db.conn.GetContext(ctx, &r, "SELECT * FROM runs WHERE id = ?", runID)
	return r, err
}

// SaveTick writes the per-tick rows of s in one transaction.
func (db *DB) SaveTick(ctx context.Context, runID string, s *engine.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	replacements, changes := 0, 0
	for _, n := range s.Counters.Replacements {
		replacements += n
	}
	for _, n := range s.Counters.Changes {
		changes += n
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tick_stats (run_id, tick, year, triggers, replacements, changes, spending)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Tick, s.Year, s.Triggers, replacements, changes, s.Counters.Spending,
	); err != nil {
		return fmt.Errorf("insert tick stats: %w", err)
	}

	for stage, n := range s.Stages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO stage_distribution (run_id, tick, stage, count) VALUES (?, ?, ?, ?)",
			runID, s.Tick, stage, n,
		); err != nil {
			return fmt.Errorf("insert stage distribution: %w", err)
		}
	}
	for kind, n := range s.Distribution {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO heating_distribution (run_id, tick, kind, count) VALUES (?, ?, ?, ?)",
			runID, s.Tick, kind, n,
		); err != nil {
			return fmt.Errorf("insert heating distribution: %w", err)
		}
	}
	for _, j := range s.Jobs {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO completed_jobs (run_id, step, job, desk, customer, service)
			 VALUES (:run_id, :step, :job, :desk, :customer, :service)`,
			jobRow{RunID: runID, Completion: j},
		); err != nil {
			return fmt.Errorf("insert job %s: %w", j.Job, err)
		}
	}
	for _, q := range s.Queues {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO queue_lengths (run_id, step, desk, service, length)
			 VALUES (:run_id, :step, :desk, :service, :length)`,
			queueRow{RunID: runID, QueueLength: q},
		); err != nil {
			return fmt.Errorf("insert queue length: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE runs SET last_tick = ? WHERE id = ?", s.Tick, runID); err != nil {
		return err
	}

	return tx.Commit()
}

type jobRow struct {
	RunID string `db:"run_id"`
	service.Completion
}

type queueRow struct {
	RunID string `db:"run_id"`
	service.QueueLength
}

type agentStateRow struct {
	RunID string `db:"run_id"`
	Tick  int    `db:"tick"`
	engine.AgentRow
	RatingsJSON string `db:"ratings_json"`
}

// SaveAgents writes the per-houseowner rows of s.
func (db *DB) SaveAgents(ctx context.Context, runID string, s *engine.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range s.Agents {
		ratings, err := json.Marshal(a.Ratings)
		if err != nil {
			return fmt.Errorf("marshal ratings of %d: %w", a.ID, err)
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO agent_states
			 (run_id, tick, agent_id, milieu, stage, breakpoint, trigger, satisfaction, heating, age, budget, suboptimality, ratings_json)
			 VALUES (:run_id, :tick, :agent_id, :milieu, :stage, :breakpoint, :trigger, :satisfaction, :heating, :age, :budget, :suboptimality, :ratings_json)`,
			agentStateRow{RunID: runID, Tick: s.Tick, AgentRow: a, RatingsJSON: string(ratings)},
		); err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// SaveCounters writes the run totals, replacing earlier totals of runID.
func (db *DB) SaveCounters(ctx context.Context, runID string, c *agents.Counters) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM counters WHERE run_id = ?", runID); err != nil {
		return err
	}
	for category, values := range c.Flat() {
		for key, n := range values {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO counters (run_id, category, key, value) VALUES (?, ?, ?, ?)",
				runID, category, key, n,
			); err != nil {
				return fmt.Errorf("insert counter %s/%s: %w", category, key, err)
			}
		}
	}

	return tx.Commit()
}

// Counters reads back the totals of runID.
func (db *DB) Counters(ctx context.Context, runID string) (map[string]map[string]int, error) {
	var rows []struct {
		Category string `db:"category"`
		Key      string `db:"key"`
		Value    int    `db:"value"`
	}
	if err := db.conn.SelectContext(ctx, &rows,
		"SELECT category, key, value FROM counters WHERE run_id = ?", runID); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int)
	for _, r := range rows {
		if out[r.Category] == nil {
			out[r.Category] = make(map[string]int)
		}
		out[r.Category][r.Key] = r.Value
	}
	return out, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(ctx context.Context, runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO events (run_id, tick, description, category) VALUES (?, ?, ?, ?)",
			runID, e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of runID.
func (db *DB) RecentEvents(ctx context.Context, runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.SelectContext(ctx, &events,
		"SELECT tick, description, category FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

// StageSeries returns the stage counts of runID by tick.
func (db *DB) StageSeries(ctx context.Context, runID string) (map[int]map[string]int, error) {
	var rows []struct {
		Tick  int    `db:"tick"`
		Stage string `db:"stage"`
		Count int    `db:"count"`
	}
	if err := db.conn.SelectContext(ctx, &rows,
		"SELECT tick, stage, count FROM stage_distribution WHERE run_id = ? ORDER BY tick", runID); err != nil {
		return nil, err
	}
	out := make(map[int]map[string]int)
	for _, r := range rows {
		if out[r.Tick] == nil {
			out[r.Tick] = make(map[string]int)
		}
		out[r.Tick][r.Stage] = r.Count
	}
	return out, nil
}

// CompletedJobs returns the job log of runID in completion order.
func (db *DB) CompletedJobs(ctx context.Context, runID string) ([]service.Completion, error) {
	var jobs []service.Completion
	err := db.conn.SelectContext(ctx, &jobs,
		"SELECT step, job, desk, customer, service FROM completed_jobs WHERE run_id = ? ORDER BY rowid",
		runID,
	)
	return jobs, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// Recorder stores every snapshot of one run. It implements engine.Collector.
type Recorder struct {
	DB    *DB
	RunID string

	// AgentsEvery stores per-agent rows every n ticks, 0 disables them.
	AgentsEvery int
}

// NewRecorder starts a run for m.
func NewRecorder(ctx context.Context, db *DB, m *engine.Model) (*Recorder, error) {
	id, err := db.StartRun(ctx, m)
	if err != nil {
		return nil, err
	}
	if err := db.SaveMeta("last_run", id); err != nil {
		return nil, fmt.Errorf("save meta: %w", err)
	}
	slog.Info("recording run", "run", id, "scenario", m.Scenario.Name)
	return &Recorder{DB: db, RunID: id, AgentsEvery: m.Env.Cfg.Run.ReportEvery}, nil
}

// Collect implements engine.Collector.
func (r *Recorder) Collect(ctx context.Context, s *engine.Snapshot) error {
	if err := r.DB.SaveTick(ctx, r.RunID, s); err != nil {
		return fmt.Errorf("save tick %d: %w", s.Tick, err)
	}
	if r.AgentsEvery > 0 && s.Tick%r.AgentsEvery == 0 {
		if err := r.DB.SaveAgents(ctx, r.RunID, s); err != nil {
			return fmt.Errorf("save agents: %w", err)
		}
	}
	return nil
}

// Finish stores the run totals, the final agent rows and the retained
// events of m.
func (r *Recorder) Finish(ctx context.Context, m *engine.Model) error {
	s := m.Snapshot()
	slog.Info("saving run results", "run", r.RunID, "tick", s.Tick)

	if err := r.DB.SaveCounters(ctx, r.RunID, s.Counters); err != nil {
		return fmt.Errorf("save counters: %w", err)
	}
	if r.AgentsEvery <= 0 || s.Tick%r.AgentsEvery != 0 {
		if err := r.DB.SaveAgents(ctx, r.RunID, s); err != nil {
			return fmt.Errorf("save agents: %w", err)
		}
	}
	if err := r.DB.SaveEvents(ctx, r.RunID, m.Events()); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := r.DB.FinishRun(ctx, r.RunID, s.Tick); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	slog.Info("run results saved", "run", r.RunID)
	return nil
}
