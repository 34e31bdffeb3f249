package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/heating"
)

const mixScenario = `
name: mix_pellet_heat_pump
targets: [heat_pump, pellet]
blocked: [network_district, network_local]
head_start: [heat_pump, pellet]
interventions:
  - kind: campaign
    mode: energy_advisor
    reach: 10
    steps: [5, 6]
  - kind: enforcement
    systems: [heat_pump, pellet]
  - kind: mandate
    emissions: 0.25
    systems: [oil]
  - kind: training
    systems: [heat_pump_brine]
  - kind: price_shock
    systems: [gas]
    factor: 1.4
    steps: [100]
  - kind: open_house
    systems: [heat_pump]
    milieus: [leading]
    every: 26
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(mixScenario))
	require.NoError(t, err)

	assert.Equal(t, "mix_pellet_heat_pump", sc.Name)
	assert.Equal(t, []heating.Kind{heating.HeatPump, heating.Pellet}, sc.Targets)
	assert.Equal(t, []heating.Kind{heating.District, heating.LocalNetwork}, sc.Blocked)
	require.Len(t, sc.Interventions, 6)

	campaign := sc.Interventions[0]
	assert.Equal(t, InterventionCampaign, campaign.Kind)
	assert.Equal(t, CampaignEnergyAdvisor, campaign.Mode)
	assert.Equal(t, 0.1, campaign.RiskStep)

	assert.Equal(t, []int{0}, sc.Interventions[1].Steps, "enforcement defaults to the first tick")

	mandate := sc.Interventions[2]
	assert.Equal(t, 52, mandate.Every)
	assert.Equal(t, 0.1, mandate.Share)
	assert.Equal(t, []heating.Kind{heating.Oil}, mandate.Systems)

	assert.Equal(t, 1.4, sc.Interventions[4].Factor)
	assert.Equal(t, []agents.MilieuKind{agents.Leading}, sc.Interventions[5].Milieus)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no name", "targets: [gas]", "name is required"},
		{"unknown kind", "name: x\ntargets: [steam_engine]", "targets"},
		{"unknown intervention", "name: x\ninterventions:\n  - kind: lottery", "unknown intervention"},
		{"unknown mode", "name: x\ninterventions:\n  - kind: campaign\n    mode: billboard\n    reach: 1\n    steps: [1]", "campaign mode"},
		{"campaign without reach", "name: x\ninterventions:\n  - kind: campaign\n    mode: direct\n    steps: [1]", "reach"},
		{"price shock without factor", "name: x\ninterventions:\n  - kind: price_shock\n    steps: [1]", "factor"},
		{"open house without period", "name: x\ninterventions:\n  - kind: open_house", "period"},
		{"training without systems", "name: x\ninterventions:\n  - kind: training", "needs systems"},
		{"unknown milieu", "name: x\ninterventions:\n  - kind: open_house\n    every: 4\n    milieus: [punks]", "milieus"},
		{"bad yaml", "name: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("")
	require.NoError(t, err)
	assert.Equal(t, Baseline(), sc)

	path := filepath.Join(t.TempDir(), "mix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mixScenario), 0o644))
	sc, err = LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "mix_pellet_heat_pump", sc.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseInterventionKind(t *testing.T) {
	for i, name := range interventionNames {
		k, err := ParseInterventionKind(" " + name + " ")
		require.NoError(t, err)
		assert.Equal(t, InterventionKind(i), k)
		assert.Equal(t, name, k.String())
	}
	_, err := ParseInterventionKind("bailout")
	assert.Error(t, err)
}

func TestInterventionDue(t *testing.T) {
	tests := []struct {
		name string
		iv   Intervention
		tick int
		want bool
	}{
		{"listed step", Intervention{Steps: []int{3, 5}}, 5, true},
		{"unlisted step", Intervention{Steps: []int{3, 5}}, 4, false},
		{"period hit", Intervention{Every: 26}, 52, true},
		{"period miss", Intervention{Every: 26}, 27, false},
		{"steps win over period", Intervention{Steps: []int{1}, Every: 1}, 2, false},
		{"always", Intervention{}, 17, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.iv.due(tt.tick))
		})
	}
}
