package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/heating"
)

func countTriggers(m *Model, k agents.TriggerKind) int {
	n := 0
	for _, h := range m.Env.OwnerOrder {
		if h.ActiveTrigger.Kind == k {
			n++
		}
	}
	return n
}

func TestDirectCampaignReachesNewOwners(t *testing.T) {
	m := newTestModel(t, nil, nil)
	iv := Intervention{Kind: InterventionCampaign, Mode: CampaignDirect, Reach: 5, Steps: []int{0},
		Systems: []heating.Kind{heating.HeatPump}}

	m.apply(iv)
	assert.Len(t, m.visited, 5)
	assert.Equal(t, 5, countTriggers(m, agents.TriggerInformationCampaign))

	m.campaign(iv)
	assert.Len(t, m.visited, 10, "owners are reached only once")

	iv.Steps = []int{9}
	m.apply(iv)
	assert.Len(t, m.visited, 10, "not due")
}

func TestAdvisorCampaignBooksConsultations(t *testing.T) {
	m := newTestModel(t, nil, nil)
	m.campaign(Intervention{Kind: InterventionCampaign, Mode: CampaignEnergyAdvisor, Reach: 3})

	a := m.Env.Advisors[0]
	booked := 0
	for _, h := range m.Env.OwnerOrder {
		if !m.visited[h.ID] {
			continue
		}
		booked++
		assert.True(t, h.ConsultationOrdered)
		assert.True(t, h.ConsultedByAdvisor)
		assert.Same(t, a, h.Advisor)
		assert.True(t, a.Consultation.Has(h))
	}
	assert.Equal(t, 3, booked)
}

func TestRiskCampaignRaisesTolerance(t *testing.T) {
	m := newTestModel(t, nil, nil)
	before := make(map[agents.AgentID]float64)
	for _, h := range m.Env.OwnerOrder {
		before[h.ID] = h.RiskTolerance
	}

	m.campaign(Intervention{Kind: InterventionCampaign, Mode: CampaignRiskTargeting, Reach: 40, RiskStep: 0.1})

	for _, h := range m.Env.OwnerOrder {
		assert.InDelta(t, min(1, before[h.ID]+0.1), h.RiskTolerance, 1e-9)
		assert.Equal(t, agents.TriggerRiskTargeting, h.ActiveTrigger.Kind)
	}
}

func TestEnforcementAllowsOnlyListedKinds(t *testing.T) {
	m := newTestModel(t, nil, nil)
	stuck := m.Env.OwnerOrder[0]
	stuck.Infeasible[heating.HeatPump] = true

	m.enforce([]heating.Kind{heating.HeatPump})

	assert.False(t, stuck.Infeasible[heating.Gas], "owners who cannot install any allowed kind are exempt")
	for _, h := range m.Env.OwnerOrder[1:] {
		assert.True(t, h.Infeasible[heating.Gas])
		assert.True(t, h.Infeasible[heating.Oil])
		assert.False(t, h.Infeasible[heating.HeatPump])
	}
}

func TestPerformanceMandateBreaksWorstEmitters(t *testing.T) {
	m := newTestModel(t, nil, nil)
	eligible := 0
	for _, h := range m.Env.OwnerOrder {
		h.House.Heating.Breakdown = false
		if h.House.Heating.Params[heating.Emissions].Value > 1e-9 {
			eligible++
		}
	}
	require.Positive(t, eligible)

	m.mandate(Intervention{Kind: InterventionMandate, Emissions: 1e-9, Every: 52, Share: 0.1})

	broken := 0
	for _, h := range m.Env.OwnerOrder {
		if h.House.Heating.Breakdown {
			broken++
			assert.True(t, h.Infeasible[h.House.Heating.Kind])
		}
	}
	assert.Equal(t, max(1, eligible/10), broken)
}

func TestSystemMandateLeavesInstalledSystemsRunning(t *testing.T) {
	m := newTestModel(t, nil, nil)
	owner := m.Env.OwnerOrder[0]
	owner.House.Heating.Kind = heating.Oil
	owner.House.Heating.Breakdown = false

	m.mandate(Intervention{Kind: InterventionMandate, Every: 52, Systems: []heating.Kind{heating.Oil}})

	assert.False(t, owner.House.Heating.Breakdown)
	for _, h := range m.Env.OwnerOrder {
		assert.True(t, h.Infeasible[heating.Oil])
	}
}

func TestTrainingTeachesPlumbers(t *testing.T) {
	m := newTestModel(t, nil, nil)
	for _, p := range m.Env.Plumbers {
		require.False(t, p.Knows(heating.HeatPumpBrine))
	}

	m.train([]heating.Kind{heating.HeatPumpBrine})
	m.train([]heating.Kind{heating.HeatPumpBrine})

	for _, p := range m.Env.Plumbers {
		assert.True(t, p.Knows(heating.HeatPumpBrine))
		assert.Equal(t, 1, heatingCount(p.Known, heating.HeatPumpBrine))
	}
}

func heatingCount(systems []heating.System, k heating.Kind) int {
	n := 0
	for _, s := range systems {
		if s.Kind == k {
			n++
		}
	}
	return n
}

func TestPriceShockSparesContracts(t *testing.T) {
	m := newTestModel(t, nil, nil)
	e := m.Env
	before := e.Table.Spec(heating.Gas).FuelCost
	var protected, exposed *agents.Houseowner
	for _, h := range e.OwnerOrder {
		h.ActiveTrigger = agents.NewTrigger(agents.TriggerNone)
		if h.House.Heating.Kind != heating.Gas {
			continue
		}
		if protected == nil {
			protected = h
			h.House.Heating.ContractTerm = 10
		} else if exposed == nil {
			exposed = h
			h.House.Heating.ContractTerm = 0
		}
	}
	require.NotNil(t, exposed, "default distribution has plenty of gas")

	m.priceShock(Intervention{Kind: InterventionPriceShock, Factor: 1.5, Systems: []heating.Kind{heating.Gas}})

	assert.InDelta(t, before*1.5, e.Table.Spec(heating.Gas).FuelCost, 1e-9)
	assert.Equal(t, agents.TriggerPriceShock, exposed.ActiveTrigger.Kind)
	assert.Equal(t, 1.5, exposed.ActiveTrigger.Factor)
	assert.Equal(t, agents.TriggerNone, protected.ActiveTrigger.Kind)
}

func TestOpenHouseAdvertisesSystem(t *testing.T) {
	m := newTestModel(t, nil, nil)
	e := m.Env
	var host *agents.Houseowner
	for _, h := range e.OwnerOrder {
		h.ActiveTrigger = agents.NewTrigger(agents.TriggerNone)
		if h.House.Heating.Kind == heating.HeatPump {
			h.House.Heating.Kind = heating.Gas
		}
		if host == nil && len(e.Graph.Successors(uint64(h.ID))) > 0 {
			host = h
		}
	}
	require.NotNil(t, host)
	host.House.Heating.Kind = heating.HeatPump
	host.Satisfaction = agents.Satisfied

	m.openHouse(Intervention{Kind: InterventionOpenHouse, Systems: []heating.Kind{heating.HeatPump},
		Milieus: []agents.MilieuKind{host.Milieu.Kind}, Every: 26})

	assert.Positive(t, countTriggers(m, agents.TriggerAdoptiveComparison))
	for _, id := range e.Graph.Successors(uint64(host.ID)) {
		nb := e.Owner(agents.AgentID(id))
		if nb.ActiveTrigger.Kind == agents.TriggerAdoptiveComparison {
			assert.GreaterOrEqual(t, heating.Index(nb.Known, heating.HeatPump), 0)
		}
	}
}
