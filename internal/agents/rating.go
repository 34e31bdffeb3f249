package agents

import (
	"slices"

	"github.com/talgya/heatsim/internal/economy"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/social"
	"github.com/talgya/heatsim/internal/subsidy"
)

// Social norm S-curve: a transition width of 0.3 around a 25% tipping
// point.
const (
	normSteepness = 6 / 0.3
	normMidpoint  = 0.25
)

// calculateAttitude rates s against the feasible known systems. Every
// attribute is a cost, so the rating rewards values far below the group
// maximum, weighted by the owner's normalised preferences.
func (h *Houseowner) calculateAttitude(s *heating.System) {
	var top [heating.NumParams]float64
	include := func(v heating.Params) {
		for i := range v {
			top[i] = max(top[i], v[i].Value)
		}
	}
	include(s.Params)
	for i := range h.Known {
		k := &h.Known[i]
		if k != s && !h.Infeasible[k.Kind] {
			include(k.Params)
		}
	}

	prefs := slices.Clone(h.Prefs[:])
	normalise(prefs)

	rating := 0.0
	for i := range top {
		m := top[i]
		if m == 0 {
			m = 1
		}
		r := (1 - s.Params[i].Value/m) * prefs[i]
		s.AttributeRatings[i] = r
		rating += r
	}
	s.Rating = rating
}

// calculateSocialNorm combines how many influencing neighbours own s with
// what they think of it. Neighbours without an opinion count as neutral.
func (h *Houseowner) calculateSocialNorm(s *heating.System) error {
	neutral := 1 - h.UncertaintyFactor
	preds := h.env.Graph.Predecessors(uint64(h.ID))
	if len(preds) == 0 {
		s.SocialNorm = neutral
		return nil
	}

	owners, same := 0, 0
	opinions, sum := 0, 0.0
	for _, p := range preds {
		if k, ok := h.NeighbourSystems[AgentID(p)]; ok {
			owners++
			if k == s.Kind {
				same++
			}
		}
		if v, ok := s.Opinions[p]; ok {
			opinions++
			sum += v
		}
	}
	share := 0.0
	if owners > 0 {
		share = float64(same) / float64(owners)
	}
	mean := neutral
	if opinions > 0 {
		mean = sum / float64(opinions)
	}

	s.SocialNorm = (social.Logistic(share, normSteepness, normMidpoint) + mean) / 2
	if s.SocialNorm < 0 || s.SocialNorm > 1.000001 {
		return invariantf("social norm %.6f of %s for houseowner %d (%d neighbours, %d opinions)",
			s.SocialNorm, s.Kind, h.ID, len(preds), opinions)
	}
	return nil
}

// calculatePBC sets the perceived behavioural control for s.
func (h *Houseowner) calculatePBC(s *heating.System) {
	delta := economy.RunningDelta(h.House.Heating.Running(), s.Running())
	s.PBC = economy.PerceivedControl(h.Budget, s.Price(), h.Income, delta)
}

// calculateRisk combines loan exposure with what the owner's successors
// report about s.
func (h *Houseowner) calculateRisk(s *heating.System) float64 {
	succ := h.env.Graph.Successors(uint64(h.ID))
	peers := economy.PeerExposure{Successors: len(succ)}
	for _, id := range succ {
		o, ok := h.NeighbourSatisfaction[AgentID(id)]
		if !ok || o.Kind != s.Kind {
			continue
		}
		peers.Known++
		if o.Satisfaction == Dissatisfied {
			peers.Dissatisfied++
		}
	}
	return economy.Riskiness(s.Price(), s.Loan, peers, h.UncertaintyFactor)
}

func (h *Houseowner) applicant() subsidy.Applicant {
	return subsidy.Applicant{CurrentKind: h.House.Heating.Kind, WeeklyIncome: h.Income}
}

// applySubsidies deducts every subsidy the owner knows for s. Prices found
// on the internet are taken as already net of subsidies.
func (h *Houseowner) applySubsidies(s *heating.System) {
	if s.Source == heating.SourceInternet {
		return
	}
	rules, ok := h.Subsidies[s.Kind]
	if !ok {
		return
	}
	total := subsidy.Total(s.Price(), rules, h.applicant(), h.env.Cfg.Subsidies)
	if total > 0 {
		s.Subsidised = true
	}
	s.Params[heating.Price].Value -= total
}

// findLoan attaches the best loan the owner can service for s, or clears
// it. bypass ignores an owner's reluctance to borrow.
func (h *Houseowner) findLoan(s *heating.System, bypass bool) error {
	loan, err := economy.FindLoan(h.env.Cfg.Loans, economy.LoanRequest{
		Price:         s.Price(),
		Funds:         h.Budget,
		WeeklyIncome:  h.Income,
		RunningDelta:  economy.RunningDelta(h.House.Heating.Running(), s.Running()),
		LifetimeWeeks: s.Lifetime,
		WillingToLend: h.WillTakeLoans,
		Bypass:        bypass,
	})
	if err != nil {
		return invariantf("loan for %s of houseowner %d: %v", s.Kind, h.ID, err)
	}
	s.Loan = loan
	return nil
}

// relativeAgreement merges s into the owner's knowledge of the same kind.
func (h *Houseowner) relativeAgreement(s heating.System) {
	if k := h.known(s.Kind); k != nil {
		social.RelativeAgreement(s.Params, &k.Params, 1)
	}
}

// learnFromCampaign adds the advertised systems, quoted for the reference
// house, to the owner's knowledge.
func (h *Houseowner) learnFromCampaign(kinds []heating.Kind) {
	e := h.env
	upper := e.Cfg.Sources.UncertaintyUpper
	for _, k := range kinds {
		s := e.generateFor(k, e.DefaultSite(), e.ScenarioRand)
		s.Source = heating.SourceCampaign
		if rules, ok := e.Internet.Subsidies[k]; ok {
			h.Subsidies[k] = slices.Clone(rules)
			h.applySubsidies(&s)
		}
		for i := range s.Params {
			s.Params[i].Uncertainty = s.Params[i].Value * upper
		}
		if h.known(k) == nil {
			h.Known = append(h.Known, s.Clone())
		} else {
			h.relativeAgreement(s)
		}
		h.rateAll()
	}
}
