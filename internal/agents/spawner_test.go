package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
)

func TestPopulate(t *testing.T) {
	e := newTestEnv(t, nil)

	require.Len(t, e.OwnerOrder, 40)
	assert.Len(t, e.Owners, 40)
	assert.Len(t, e.Graph.Nodes(), 40)

	total := 0
	for _, n := range e.Distribution {
		total += n
	}
	assert.Equal(t, 40, total)

	for i, h := range e.OwnerOrder {
		assert.Equal(t, AgentID(i), h.ID)
		assert.Same(t, e.Map.Houses[i], h.House)
		assert.Equal(t, Idle, h.Stage)
		assert.NotNil(t, h.known(h.House.Heating.Kind), "owner %d knows its own system", h.ID)
		assert.Positive(t, h.Income)
		assert.InDelta(t, h.Income*e.Cfg.Houseowner.BudgetLimit, h.Budget, 1e-9)
		assert.GreaterOrEqual(t, h.RiskTolerance, 0.0)
		assert.LessOrEqual(t, h.RiskTolerance, 1.0)
		assert.Equal(t, e.Cfg.Houseowner.Aspiration, h.Aspiration)
		assert.LessOrEqual(t, h.House.Heating.Age, h.House.Heating.Lifetime)
		assert.Equal(t, h.Milieu.Config.CognitiveResource, h.InitialEffort)
		if h.House.Heating.Kind == heating.HeatPump {
			assert.Contains(t, []MilieuKind{Leading, Mainstream}, h.Milieu.Kind)
		}
	}

	assert.Equal(t, AgentID(1000), e.Advisors[0].ID)
	assert.Equal(t, AgentID(2000), e.Plumbers[0].ID)
	assert.Equal(t, AgentID(2002), e.Plumbers[2].ID)
}

func TestPopulateIsDeterministic(t *testing.T) {
	a := newTestEnv(t, nil)
	b := newTestEnv(t, nil)
	for i := range a.OwnerOrder {
		ha, hb := a.OwnerOrder[i], b.OwnerOrder[i]
		assert.Equal(t, ha.House.Heating.Kind, hb.House.Heating.Kind)
		assert.Equal(t, ha.Milieu.Kind, hb.Milieu.Kind)
		assert.Equal(t, ha.Income, hb.Income)
		assert.Equal(t, ha.Prefs, hb.Prefs)
	}
	assert.Equal(t, a.Graph.EdgeCount(), b.Graph.EdgeCount())
}

func TestInitialMeetingsShareSystems(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, h := range e.OwnerOrder {
		for _, id := range e.Graph.Predecessors(uint64(h.ID)) {
			p := e.Owners[AgentID(id)]
			assert.Equal(t, p.House.Heating.Kind, h.NeighbourSystems[p.ID])
			assert.Contains(t, h.NeighbourSatisfaction, p.ID)
		}
	}
}

func TestIntermediaryStart(t *testing.T) {
	tests := []struct {
		owners int
		want   uint64
	}{
		{0, 10},
		{1, 10},
		{5, 100},
		{40, 1000},
		{200, 1000},
		{400, 10000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, intermediaryStart(tt.owners), "owners=%d", tt.owners)
	}
}

func TestDistributionMustSumToOne(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Run.Houseowners = 10
	gas := cfg.Distribution["gas"]
	gas.Share = 0.5
	cfg.Distribution["gas"] = gas

	e, err := NewEnv(cfg, rng.New(3), nil)
	require.NoError(t, err)
	err = NewSpawner(e).Populate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestFixedRiskTolerance(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Houseowner.RandomRiskTolerance = false })
	for _, h := range e.OwnerOrder {
		assert.Equal(t, h.Milieu.Config.RiskTolerance, h.RiskTolerance)
	}
}

func TestSuccessorTakesOverHouse(t *testing.T) {
	e := newTestEnv(t, nil)
	s := NewSpawner(e)
	old := e.OwnerOrder[7]

	h, err := s.Successor(old)
	require.NoError(t, err)

	assert.NotSame(t, old, h)
	assert.Equal(t, old.ID, h.ID)
	assert.Same(t, old.House, h.House)
	assert.Same(t, h, e.OwnerOrder[7])
	assert.Same(t, h, e.Owners[h.ID])
	assert.Len(t, e.OwnerOrder, 40)
	assert.Equal(t, TriggerOwnerChange, h.ActiveTrigger.Kind)
	assert.NotNil(t, h.known(h.House.Heating.Kind))

	NewTrigger(TriggerOwnerChange).Impact(h)
	assert.Equal(t, Stage1, h.Stage)
}

func TestSuccessorRefusesPendingOrder(t *testing.T) {
	e := newTestEnv(t, nil)
	old := e.OwnerOrder[0]
	old.ConsultationOrdered = true

	_, err := NewSpawner(e).Successor(old)
	assert.Error(t, err)
	assert.Same(t, old, e.OwnerOrder[0])
}
