package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
)

// apply runs one scheduled measure if it is due this tick.
func (m *Model) apply(iv Intervention) {
	tick := m.Env.Tick
	switch iv.Kind {
	case InterventionCampaign:
		if iv.due(tick) {
			m.campaign(iv)
		}
	case InterventionEnforcement:
		if iv.due(tick) {
			m.enforce(iv.Systems)
		}
	case InterventionMandate:
		m.mandate(iv)
	case InterventionTraining:
		if iv.due(tick) {
			m.train(iv.Systems)
		}
	case InterventionPriceShock:
		if iv.due(tick) {
			m.priceShock(iv)
		}
	case InterventionOpenHouse:
		if iv.due(tick) {
			m.openHouse(iv)
		}
	}
}

// draw picks up to n distinct owners from pool without replacement.
func (m *Model) draw(pool []*agents.Houseowner, n int) []*agents.Houseowner {
	r := m.Env.ScenarioRand
	pool = slices.Clone(pool)
	var out []*agents.Houseowner
	for n > 0 && len(pool) > 0 {
		i := r.Intn(len(pool))
		out = append(out, pool[i])
		pool = slices.Delete(pool, i, i+1)
		n--
	}
	return out
}

// campaign reaches owners not reached before, in one of three ways.
func (m *Model) campaign(iv Intervention) {
	e := m.Env
	var pool []*agents.Houseowner
	for _, h := range e.OwnerOrder {
		if m.visited[h.ID] {
			continue
		}
		if iv.Mode == CampaignEnergyAdvisor && (h.Stage == agents.Stage3 || h.Stage == agents.Stage4) {
			continue
		}
		pool = append(pool, h)
	}
	if len(pool) == 0 {
		return
	}
	if iv.Mode == CampaignEnergyAdvisor && len(e.Advisors) == 0 {
		slog.Warn("energy advisor campaign without advisors", "tick", e.Tick)
		return
	}

	reached := m.draw(pool, iv.Reach)
	for _, h := range reached {
		m.visited[h.ID] = true
		switch iv.Mode {
		case CampaignDirect:
			h.InformDirectly(iv.Systems)
		case CampaignEnergyAdvisor:
			h.ReferTo(rng.Choice(e.ScenarioRand, e.Advisors))
		case CampaignRiskTargeting:
			h.TargetRisk(iv.RiskStep)
		}
	}
	m.EmitEvent(Event{
		Tick:        e.Tick,
		Description: fmt.Sprintf("information campaign reaches %d houseowners", len(reached)),
		Category:    "scenario",
		Meta:        map[string]any{"mode": iv.Mode.String(), "reached": len(reached)},
	})
	slog.Info("information campaign", "tick", e.Tick, "reached", len(reached))
}

// enforce makes every kind outside allowed infeasible, except for owners
// who could not install any allowed kind anyway.
func (m *Model) enforce(allowed []heating.Kind) {
	e := m.Env
	var banned []heating.Kind
	for _, k := range heating.AllKinds() {
		if !slices.Contains(allowed, k) {
			banned = append(banned, k)
		}
	}
	for _, h := range e.OwnerOrder {
		if allInfeasible(h, allowed) {
			continue
		}
		for _, k := range banned {
			h.Infeasible[k] = true
		}
	}
	slog.Info("heating systems enforced", "allowed", allowed)
}

func allInfeasible(h *agents.Houseowner, ks []heating.Kind) bool {
	for _, k := range ks {
		if !h.Infeasible[k] {
			return false
		}
	}
	return true
}

// mandate forces replacements. Every period the worst share of emitters
// above the threshold break down. Mandated kinds are blocked for everyone,
// but their installed systems are left running.
func (m *Model) mandate(iv Intervention) {
	e := m.Env
	if iv.Emissions > 0 && e.Tick%iv.Every == 0 {
		type candidate struct {
			h     *agents.Houseowner
			score float64
		}
		var eligible []candidate
		for _, h := range e.OwnerOrder {
			cur := h.House.Heating
			if v := cur.Params[heating.Emissions].Value; v > iv.Emissions && !cur.Breakdown {
				eligible = append(eligible, candidate{h, v - iv.Emissions})
			}
		}
		if len(eligible) > 0 {
			slices.SortStableFunc(eligible, func(a, b candidate) int { return cmp.Compare(b.score, a.score) })
			n := max(1, int(float64(len(eligible))*iv.Share))
			for _, c := range eligible[:n] {
				c.h.Mandate()
			}
			m.EmitEvent(Event{
				Tick:        e.Tick,
				Description: fmt.Sprintf("replacement mandate issued to %d houseowners", n),
				Category:    "scenario",
			})
		}
	}

	// The mandated systems become infeasible, but the breakdown flag of
	// installed ones is never set.
	if len(iv.Systems) > 0 {
		for _, h := range e.OwnerOrder {
			for _, k := range iv.Systems {
				h.Infeasible[k] = true
			}
		}
	}
}

// train teaches every plumber the listed kinds.
func (m *Model) train(kinds []heating.Kind) {
	for _, p := range m.Env.Plumbers {
		for _, k := range kinds {
			p.Teach(k)
		}
	}
}

// priceShock raises fuel costs of the listed kinds (all kinds when none are
// listed) for new quotes, and shocks owners of those kinds who are not
// protected by a price contract.
func (m *Model) priceShock(iv Intervention) {
	e := m.Env
	kinds := iv.Systems
	if len(kinds) == 0 {
		kinds = e.Kinds
	}
	for _, k := range kinds {
		e.Table = e.Table.WithFuelCost(k, iv.Factor)
	}
	shocked := 0
	for _, h := range e.OwnerOrder {
		cur := h.House.Heating
		if !slices.Contains(kinds, cur.Kind) || cur.ContractTerm > 0 {
			continue
		}
		h.ActiveTrigger = agents.Trigger{Kind: agents.TriggerPriceShock, Factor: iv.Factor}
		shocked++
	}
	m.EmitEvent(Event{
		Tick:        e.Tick,
		Description: fmt.Sprintf("fuel prices rise by factor %.2f", iv.Factor),
		Category:    "market",
		Meta:        map[string]any{"systems": kinds, "owners": shocked},
	})
}

// openHouse lets satisfied owners of the showcased kinds from the listed
// milieus advertise their systems.
func (m *Model) openHouse(iv Intervention) {
	for _, h := range m.Env.OwnerOrder {
		if h.Satisfaction != agents.Satisfied {
			continue
		}
		if len(iv.Systems) > 0 && !slices.Contains(iv.Systems, h.House.Heating.Kind) {
			continue
		}
		if len(iv.Milieus) > 0 && !slices.Contains(iv.Milieus, h.Milieu.Kind) {
			continue
		}
		h.OpenHouse()
	}
}
