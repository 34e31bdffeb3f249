package agents

import (
	"math/rand"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/service"
	"github.com/talgya/heatsim/internal/subsidy"
)

// expert is the knowledge an intermediary brings to its customers: quotes
// for the reference house, fixed attribute preferences and the subsidy
// programmes it can apply.
type expert struct {
	ID        AgentID
	Known     []heating.System
	Prefs     [heating.NumParams]float64
	Subsidies subsidy.Catalogue

	env *Env
}

func newExpert(id AgentID, kinds []heating.Kind, prefs [heating.NumParams]float64, e *Env, r *rand.Rand) expert {
	x := expert{ID: id, Prefs: prefs, env: e}
	for _, k := range kinds {
		x.learn(k, r)
	}
	x.Subsidies = make(subsidy.Catalogue)
	for _, k := range kinds {
		x.adoptSubsidies(k)
	}
	x.evaluateAll()
	return x
}

// adoptSubsidies copies the programmes currently on offer for k.
func (x *expert) adoptSubsidies(k heating.Kind) {
	if rules, ok := x.env.Subsidies[k]; ok {
		x.Subsidies[k] = slices.Clone(rules)
	}
}

// Knows reports whether k is in the intermediary's repertoire.
func (x *expert) Knows(k heating.Kind) bool {
	return heating.Index(x.Known, k) >= 0
}

// learn adds a reference-house quote for k with drawn uncertainty.
func (x *expert) learn(k heating.Kind, r *rand.Rand) {
	src := x.env.Cfg.Sources
	s := x.env.generateFor(k, x.env.DefaultSite(), r)
	for i := range s.Params {
		s.Params[i].Uncertainty = s.Params[i].Value * rng.Uniform(r, src.UncertaintyLower, src.UncertaintyUpper)
	}
	x.Known = append(x.Known, s)
}

// duplicateKind returns a kind listed twice in Known, if any.
func (x *expert) duplicateKind() (heating.Kind, bool) {
	seen := make(map[heating.Kind]bool, len(x.Known))
	for _, s := range x.Known {
		if seen[s.Kind] {
			return s.Kind, true
		}
		seen[s.Kind] = true
	}
	return 0, false
}

func (x *expert) evaluateAll() {
	evaluate(x.Known, x.Prefs)
}

// quotes returns the known systems recalculated for h's house.
func (x *expert) quotes(h *Houseowner) []heating.System {
	out := heating.CloneAll(x.Known)
	site := h.House.Site()
	for i := range out {
		x.env.Table.Calculate(&out[i], site)
	}
	return out
}

// evaluate rates every system against the column maxima of the group. All
// attributes are costs, so lower values rate higher.
func evaluate(systems []heating.System, prefs [heating.NumParams]float64) {
	var top [heating.NumParams]float64
	for _, s := range systems {
		for i, p := range s.Params {
			top[i] = max(top[i], p.Value)
		}
	}
	for j := range systems {
		rating := 0.0
		for i, p := range systems[j].Params {
			if top[i] == 0 {
				continue
			}
			rating += (1 - p.Value/top[i]) * prefs[i]
		}
		systems[j].Rating = rating / float64(heating.NumParams)
	}
}

// meanPreferences are the expected attribute weights of milieu m.
func meanPreferences(m *Milieu) [heating.NumParams]float64 {
	p := m.Config.Preferences
	mean := func(a, b float64) float64 {
		if a+b == 0 {
			return 0.5
		}
		return a / (a + b)
	}
	var out [heating.NumParams]float64
	out[heating.OperationEffort] = mean(p.EffortA, p.EffortB)
	out[heating.InstallationEffort] = out[heating.OperationEffort]
	out[heating.FuelCost] = mean(p.FuelCostA, p.FuelCostB)
	out[heating.Emissions] = mean(p.EmissionsA, p.EmissionsB)
	out[heating.Price] = mean(p.PriceA, p.PriceB)
	out[heating.Opex] = out[heating.Price]
	return out
}

// shareRating records the intermediary's ratings as opinions on h's
// matching systems.
func (x *expert) shareRating(h *Houseowner, rated []heating.System) {
	for _, s := range rated {
		if t := h.known(s.Kind); t != nil {
			t.SetOpinion(uint64(x.ID), s.Rating)
		}
	}
}

// needsInsulation reports whether k cannot be installed in h's house
// without insulating it first.
func needsInsulation(h *Houseowner, k heating.Kind) bool {
	p := h.env.Cfg.Plumber
	if h.House.EnergyDemand < p.InsulationThreshold {
		return false
	}
	return slices.Contains(h.env.InsulationList, k)
}

// withoutInsulationNeeds drops the kinds h's house is not ready for.
func withoutInsulationNeeds(h *Houseowner, systems []heating.System) []heating.System {
	return slices.DeleteFunc(systems, func(s heating.System) bool { return needsInsulation(h, s.Kind) })
}

// intermediaryDesk builds the desk both intermediary kinds work through.
func intermediaryDesk(name string, maxJobs, lead int) *service.Desk[*Houseowner] {
	return service.NewDesk[*Houseowner](name, maxJobs, lead)
}
