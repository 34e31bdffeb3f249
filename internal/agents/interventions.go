package agents

import (
	"math"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
)

// The methods in this file are the hooks scheduled interventions use to
// reach into an agent. They never run during an agent's own step.

// Pending reports whether h waits for an intermediary.
func (h *Houseowner) Pending() bool {
	return h.ConsultationOrdered || h.InstallationOrdered
}

// organizeSubsidies teaches h every programme currently on offer.
func (h *Houseowner) organizeSubsidies() {
	for k, rules := range h.env.Subsidies {
		h.Subsidies[k] = slices.Clone(rules)
	}
}

// HeadStart gives an early adopter imperfect knowledge of kinds, quoted by
// the internet for its own house, plus every subsidy on offer.
func (h *Houseowner) HeadStart(kinds []heating.Kind) {
	e := h.env
	for _, k := range kinds {
		if h.known(k) != nil {
			continue
		}
		s := e.Internet.perceiveKind(h, k)
		s.Source = heating.SourceOwn
		h.Known = append(h.Known, s)
	}
	h.organizeSubsidies()
	cur := &h.House.Heating
	if _, ok := h.Subsidies[cur.Kind]; ok {
		h.applySubsidies(cur)
	}
	for i := range h.Known {
		if h.Known[i].Kind == cur.Kind {
			continue
		}
		h.applySubsidies(&h.Known[i])
	}
	h.rateAll()
	if i := heating.Index(h.Known, cur.Kind); i >= 0 {
		h.Known[i] = cur.Clone()
	}
}

// LearnEverything gives h exact knowledge of every kind in play, calculated
// for its house, and removes its wish to keep searching.
func (h *Houseowner) LearnEverything() {
	e := h.env
	site := h.House.Site()
	e.Table.Calculate(&h.House.Heating, site)
	h.Known = h.Known[:0]
	for _, k := range e.Kinds {
		if k == h.House.Heating.Kind {
			h.Known = append(h.Known, h.House.Heating.Clone())
			continue
		}
		h.Known = append(h.Known, e.generateFor(k, site, e.ScenarioRand))
	}
	h.InitialAspiration = 0
	h.Aspiration = 0
	h.rateAll()
}

// InformDirectly is a campaign letter: h learns every subsidy on offer and
// is nudged to look at systems.
func (h *Houseowner) InformDirectly(systems []heating.Kind) {
	h.organizeSubsidies()
	h.ActiveTrigger = Trigger{Kind: TriggerInformationCampaign, Systems: slices.Clone(systems)}
}

// ReferTo books h a consultation with a.
func (h *Houseowner) ReferTo(a *EnergyAdvisor) {
	h.Advisor = a
	h.orderAdvisor()
}

// TargetRisk raises h's risk tolerance by step, capped at 1, and nudges it.
func (h *Houseowner) TargetRisk(step float64) {
	h.RiskTolerance = math.Min(1, h.RiskTolerance+step)
	h.ActiveTrigger = NewTrigger(TriggerRiskTargeting)
}

// ForceOut nudges an idle owner whose installed kind was withdrawn from the
// market straight into the search. It reports whether h was nudged.
func (h *Houseowner) ForceOut() bool {
	if h.Stage != Idle || h.ActiveTrigger.Kind != TriggerNone {
		return false
	}
	h.ActiveTrigger = NewTrigger(TriggerForcedAvailability)
	return true
}

// RefreshEmissions recomputes the installed system's emissions from the
// current table and copies the value into the matching known snapshot.
func (h *Houseowner) RefreshEmissions() {
	cur := &h.House.Heating
	h.env.Table.RefreshEmissions(cur)
	if s := h.known(cur.Kind); s != nil {
		s.Params[heating.Emissions].Value = cur.Params[heating.Emissions].Value
	}
}

// RefreshFuelCost does the same for the fuel cost unless a price contract
// still protects h. An idle owner is nudged when the relative rise exceeds
// its indifference to fuel cost. It reports whether h was nudged.
func (h *Houseowner) RefreshFuelCost() bool {
	cur := &h.House.Heating
	if cur.ContractTerm > 0 {
		return false
	}
	old := cur.Params[heating.FuelCost].Value
	h.env.Table.RefreshFuelCost(cur)
	now := cur.Params[heating.FuelCost].Value
	if s := h.known(cur.Kind); s != nil {
		s.Params[heating.FuelCost].Value = now
	}
	if old <= 0 || h.Stage != Idle || h.ActiveTrigger.Kind != TriggerNone {
		return false
	}
	if now/old-1 <= 1-h.Prefs[heating.FuelCost] {
		return false
	}
	h.ActiveTrigger = NewTrigger(TriggerFuelPrice)
	return true
}

// Mandate forces the installed system out: it breaks down and its kind can
// no longer be installed by h.
func (h *Houseowner) Mandate() {
	h.House.Heating.Breakdown = true
	h.Infeasible[h.House.Heating.Kind] = true
}

// OpenHouse lets a satisfied owner advertise its system to as many
// successors as its cognitive resource allows.
func (h *Houseowner) OpenHouse() {
	h.shareDecision(h.Milieu.Config.CognitiveResource)
}

// Withdraw removes the named subsidy programme from every agent, source
// and the global catalogue.
func (e *Env) Withdraw(programme string) {
	e.Subsidies = e.Subsidies.Without(programme)
	e.Internet.Subsidies = e.Internet.Subsidies.Without(programme)
	e.Magazine.Subsidies = e.Magazine.Subsidies.Without(programme)
	for _, h := range e.OwnerOrder {
		h.Subsidies = h.Subsidies.Without(programme)
	}
	for _, p := range e.Plumbers {
		p.Subsidies = p.Subsidies.Without(programme)
	}
	for _, a := range e.Advisors {
		a.Subsidies = a.Subsidies.Without(programme)
	}
}
