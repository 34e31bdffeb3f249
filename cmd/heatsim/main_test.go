package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/persistence"
)

const smallConfig = `
[run]
houseowners = 20
plumbers = 2
advisors = 1
report_every = 2
seed = 3
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok")
	assert.Contains(t, out, "houseowners:  200")
	assert.Contains(t, out, "scenario:     baseline")

	out, err = execute(t, "validate", "--config", writeFile(t, "small.toml", smallConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "houseowners:  20")
}

func TestValidateRejectsBadInput(t *testing.T) {
	_, err := execute(t, "validate", "--config", writeFile(t, "bad.toml", "[run]\nhouseowners = 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.houseowners")

	_, err = execute(t, "validate", "--scenario", writeFile(t, "bad.yaml", "targets: [gas]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestRunRecordsResults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out", "heatsim.db")
	out, err := execute(t, "run",
		"--config", writeFile(t, "small.toml", smallConfig),
		"--steps", "3",
		"--db", dbPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation finished at Week 4, 2024: 3 of 3 ticks.")
	assert.Contains(t, out, "yearly report")

	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	id, err := db.GetMeta("last_run")
	require.NoError(t, err)
	run, err := db.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, run.LastTick)
	assert.Equal(t, int64(3), run.Seed)
	assert.NotNil(t, run.FinishedAt)
}

func TestRunWithScenario(t *testing.T) {
	scenario := writeFile(t, "campaign.yaml", `
name: campaign
targets: [heat_pump]
interventions:
  - kind: campaign
    mode: direct
    reach: 5
    systems: [heat_pump]
    steps: [1]
`)
	out, err := execute(t, "run", "--config", writeFile(t, "small.toml", smallConfig),
		"--steps", "2", "--scenario", scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "scenario=campaign")
}

func TestRunRejectsMissingScenario(t *testing.T) {
	_, err := execute(t, "run", "--steps", "1", "--scenario", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
