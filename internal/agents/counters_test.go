package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/heatsim/internal/heating"
)

func TestCountersFlat(t *testing.T) {
	c := NewCounters([]heating.Kind{heating.HeatPump})
	c.flow(Stage1, FlowSatisfied)
	c.flow(Stage1, FlowSatisfied)
	c.dropout(heating.Gas, DropSubsidised)
	c.obstacle(heating.HeatPump, ObstacleKnowledge, 1)
	c.obstacle(heating.HeatPump, ObstacleKnowledge, 1)
	c.obstacle(heating.Gas, ObstacleKnowledge, 2)
	c.sourceCall(heating.SourceInternet, Leading)
	c.TriggerTypes[TriggerNone]++
	c.Replacements[Mainstream] = 3
	c.optimality(1)
	c.optimality(0.5)

	flat := c.Flat()
	assert.Equal(t, 2, flat["flows"]["Stage_1/"+FlowSatisfied])
	assert.Equal(t, 1, flat["dropouts"]["gas/Drop_Subsidised"])
	assert.Equal(t, 1, flat["obstacles"]["heat_pump/Knowledge"], "agents are counted once")
	assert.NotContains(t, flat["obstacles"], "gas/Knowledge", "only targets are tracked")
	assert.Equal(t, 1, flat["sources"]["internet"])
	assert.Equal(t, 1, flat["sources"][Leading.String()+"/internet"])
	assert.Equal(t, 1, flat["triggers"][TriggerNone.String()])
	assert.Equal(t, 3, flat["replacements"][Mainstream.String()])
	assert.Empty(t, flat["changes"])
	assert.Equal(t, map[string]int{"decisions": 2, "optimal": 1}, flat["optimality"])
	assert.Equal(t, 0.75, c.Optimality.Mean())
	assert.Zero(t, Optimality{}.Mean())
}
