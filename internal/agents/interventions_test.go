package agents

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/heating"
)

func TestForceOutOnlyIdleOwners(t *testing.T) {
	e := newTestEnv(t, nil)
	idle, busy := e.OwnerOrder[0], e.OwnerOrder[1]
	idle.setStage(Idle)
	idle.ActiveTrigger = NewTrigger(TriggerNone)
	busy.setStage(Stage2)

	assert.True(t, idle.ForceOut())
	assert.Equal(t, TriggerForcedAvailability, idle.ActiveTrigger.Kind)
	assert.False(t, idle.ForceOut(), "trigger already pending")
	assert.False(t, busy.ForceOut())
}

// pricedOwner returns an idle owner whose installed system burns fuel, with
// that system as its only known one.
func pricedOwner(t *testing.T, e *Env) *Houseowner {
	t.Helper()
	for _, h := range e.OwnerOrder {
		if h.House.Heating.Params[heating.FuelCost].Value > 0 {
			h.setStage(Idle)
			h.ActiveTrigger = NewTrigger(TriggerNone)
			h.House.Heating.ContractTerm = 0
			h.Known = []heating.System{h.House.Heating.Clone()}
			h.Prefs[heating.FuelCost] = 0.9
			return h
		}
	}
	t.Fatal("no owner pays for fuel")
	return nil
}

func doubleFuelCost(e *Env, k heating.Kind) {
	e.Table = e.Table.With(k, func(s *heating.Spec) { s.FuelCost *= 2 })
}

func TestRefreshFuelCostNudgesOnSteepRise(t *testing.T) {
	e := newTestEnv(t, nil)
	h := pricedOwner(t, e)
	before := h.House.Heating.Params[heating.FuelCost].Value
	doubleFuelCost(e, h.House.Heating.Kind)

	require.True(t, h.RefreshFuelCost())

	now := h.House.Heating.Params[heating.FuelCost].Value
	assert.InDelta(t, 2*before, now, 2)
	assert.Equal(t, now, h.Known[0].Params[heating.FuelCost].Value)
	assert.Equal(t, TriggerFuelPrice, h.ActiveTrigger.Kind)
}

func TestRefreshFuelCostRespectsContract(t *testing.T) {
	e := newTestEnv(t, nil)
	h := pricedOwner(t, e)
	h.House.Heating.ContractTerm = 5
	before := h.House.Heating.Params[heating.FuelCost].Value
	doubleFuelCost(e, h.House.Heating.Kind)

	assert.False(t, h.RefreshFuelCost())
	assert.Equal(t, before, h.House.Heating.Params[heating.FuelCost].Value)
	assert.Equal(t, before, h.Known[0].Params[heating.FuelCost].Value)
	assert.Equal(t, TriggerNone, h.ActiveTrigger.Kind)
}

func TestRefreshFuelCostKeepsPendingTrigger(t *testing.T) {
	e := newTestEnv(t, nil)
	h := pricedOwner(t, e)
	h.ActiveTrigger = NewTrigger(TriggerConsulted)
	before := h.House.Heating.Params[heating.FuelCost].Value
	doubleFuelCost(e, h.House.Heating.Kind)

	assert.False(t, h.RefreshFuelCost())
	assert.Greater(t, h.House.Heating.Params[heating.FuelCost].Value, before, "price still moves")
	assert.Equal(t, TriggerConsulted, h.ActiveTrigger.Kind)
}

func TestRefreshFuelCostIndifferentOwner(t *testing.T) {
	e := newTestEnv(t, nil)
	h := pricedOwner(t, e)
	h.Prefs[heating.FuelCost] = 0
	e.Table = e.Table.With(h.House.Heating.Kind, func(s *heating.Spec) { s.FuelCost *= 1.5 })

	assert.False(t, h.RefreshFuelCost(), "rise stays below the owner's tolerance")
	assert.Equal(t, TriggerNone, h.ActiveTrigger.Kind)
}

func TestRefreshEmissionsUpdatesKnownCopy(t *testing.T) {
	e := newTestEnv(t, nil)
	h := pricedOwner(t, e)
	k := h.House.Heating.Kind
	e.Table = e.Table.With(k, func(s *heating.Spec) { s.Emissions = 1 })

	h.RefreshEmissions()

	want := math.Floor(h.House.Heating.TotalEnergyDemand)
	assert.Equal(t, want, h.House.Heating.Params[heating.Emissions].Value)
	assert.Equal(t, want, h.Known[0].Params[heating.Emissions].Value)
}

func TestOptimality(t *testing.T) {
	e := newTestEnv(t, nil)
	h := e.OwnerOrder[0]
	own := h.House.Heating.Kind
	other := heating.HeatPump
	if own == other {
		other = heating.Gas
	}
	cur := h.House.Heating.Clone()
	alt := cur.Clone()
	alt.Kind = other

	for _, tc := range []struct {
		name    string
		known   func() []heating.System
		want    float64
		defined bool
	}{
		{"own system rated below best", func() []heating.System {
			cur.Rating, alt.Rating = 0.4, 0.8
			return []heating.System{cur.Clone(), alt.Clone()}
		}, 0.5, true},
		{"own system is best", func() []heating.System {
			cur.Rating, alt.Rating = 0.8, 0.4
			return []heating.System{cur.Clone(), alt.Clone()}
		}, 1, true},
		{"own system unknown", func() []heating.System {
			alt.Rating = 0.8
			return []heating.System{alt.Clone()}
		}, 0, false},
		{"nothing rated", func() []heating.System {
			cur.Rating, alt.Rating = 0, 0
			return []heating.System{cur.Clone(), alt.Clone()}
		}, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h.Known = tc.known()
			got, ok := h.optimality()
			assert.Equal(t, tc.defined, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
