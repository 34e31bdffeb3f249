package agents

import (
	"slices"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/social"
)

// owners resolves graph IDs to houseowners, skipping IDs without one.
func (e *Env) owners(ids []uint64) []*Houseowner {
	out := make([]*Houseowner, 0, len(ids))
	for _, id := range ids {
		if h := e.Owners[AgentID(id)]; h != nil {
			out = append(out, h)
		}
	}
	return out
}

// InitialMeetings lets every owner hear what its predecessors heat with.
func (e *Env) InitialMeetings() {
	for _, h := range e.OwnerOrder {
		for _, p := range e.owners(e.Graph.Predecessors(uint64(h.ID))) {
			p.shareSystem(h)
			p.shareSatisfaction(h)
		}
	}
}

// meetNeighbour is an idle owner's chat with one random network contact.
// Information flows along the edge direction. A freshly installed system
// of a satisfied owner can make the other side jealous.
func (h *Houseowner) meetNeighbour() {
	g := h.env.Graph
	id := uint64(h.ID)
	pred := g.Predecessors(id)
	succ := g.Successors(id)
	contacts := g.Neighbours(id)
	if len(contacts) == 0 {
		return
	}
	pid := rng.Choice(h.rand(), contacts)
	p := h.env.Owners[AgentID(pid)]
	if p == nil {
		return
	}
	if slices.Contains(succ, pid) {
		h.shareSystem(p)
		h.shareSatisfaction(p)
		if h.envies(p) {
			p.ActiveTrigger = NewTrigger(TriggerNeighbourJealousy)
		}
	}
	if slices.Contains(pred, pid) {
		p.shareSystem(h)
		p.shareSatisfaction(h)
		if p.envies(h) {
			h.ActiveTrigger = NewTrigger(TriggerNeighbourJealousy)
		}
	}
}

// envies reports whether other would be jealous of h's new system.
func (h *Houseowner) envies(other *Houseowner) bool {
	return h.Satisfaction == Satisfied &&
		h.House.Heating.Kind != other.House.Heating.Kind &&
		h.House.Heating.Age <= 4 &&
		other.Stage == Idle
}

// askNeighbours visits up to coverage predecessors not yet asked in this
// decision. Without anyone left to ask the owner stops searching.
func (h *Houseowner) askNeighbours(coverage int) {
	preds := h.env.owners(h.env.Graph.Predecessors(uint64(h.ID)))
	rng.Shuffle(h.rand(), preds)
	preds = slices.DeleteFunc(preds, func(p *Houseowner) bool { return h.Visited[p.ID] })
	if len(preds) == 0 {
		h.Aspiration = 0
		return
	}
	prob := h.env.Cfg.Triggers.AskedByNeighbourProb
	for _, p := range preds[:min(coverage, len(preds))] {
		p.shareKnowledge(h)
		p.shareRating(h)
		p.shareSystem(h)
		p.shareSatisfaction(h)
		h.Visited[p.ID] = true
		if prob > 0 && p.Stage == Idle && p.ActiveTrigger.Kind == TriggerNone && rng.Chance(h.rand(), prob) {
			p.ActiveTrigger = NewTrigger(TriggerAskedByNeighbour)
		}
	}
}

// shareDecision advertises the freshly installed system to random
// successors, who then compare it with their own.
func (h *Houseowner) shareDecision(iterations int) {
	succ := h.env.owners(h.env.Graph.Successors(uint64(h.ID)))
	if len(succ) == 0 {
		return
	}
	r := h.rand()
	rng.Shuffle(r, succ)

	src := h.env.Cfg.Sources
	proposed := h.House.Heating.Clone()
	proposed.Opinions = nil
	proposed.Loan = nil
	proposed.Subsidised = false
	proposed.Source = heating.SourceNeighbour
	proposed.Params.ScaleUncertainty(func(heating.Param) float64 {
		return rng.Uniform(r, src.UncertaintyLower, src.UncertaintyUpper)
	})

	for range iterations {
		s := rng.Choice(r, succ)
		if s.House.Heating.Kind == proposed.Kind {
			continue
		}
		if s.known(proposed.Kind) != nil {
			s.relativeAgreement(proposed)
		} else {
			s.Known = append(s.Known, proposed.Clone())
		}
		s.rateAll()
		h.shareSystem(s)
		h.shareSatisfaction(s)
		h.shareRating(s)
		s.ActiveTrigger = NewTrigger(TriggerAdoptiveComparison)
	}
}

// shareSatisfaction tells nb how h likes its system and refreshes nb's
// satisfied ratio for that kind.
func (h *Houseowner) shareSatisfaction(nb *Houseowner) {
	kind := h.House.Heating.Kind
	nb.NeighbourSatisfaction[h.ID] = Opinion{Kind: kind, Satisfaction: h.Satisfaction}
	total, satisfied := 0, 0
	for _, o := range nb.NeighbourSatisfaction {
		if o.Kind != kind {
			continue
		}
		total++
		if o.Satisfaction == Satisfied {
			satisfied++
		}
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(satisfied) / float64(total)
	}
	if s := nb.known(kind); s != nil {
		s.SatisfiedRatio = ratio
	}
}

// shareKnowledge pulls nb's estimates towards h's and teaches nb the
// kinds it does not know yet, together with h's subsidy knowledge.
func (h *Houseowner) shareKnowledge(nb *Houseowner) {
	exposure := nb.Milieu.RAExposure[h.Milieu.Kind]
	for i := range h.Known {
		if s := nb.known(h.Known[i].Kind); s != nil {
			social.RelativeAgreement(h.Known[i].Params, &s.Params, exposure)
		}
	}

	src := h.env.Cfg.Sources
	r := h.rand()
	for _, s := range h.Known {
		if nb.known(s.Kind) != nil {
			continue
		}
		cp := s.Clone()
		for i := range cp.Params {
			if cp.Params[i].Uncertainty == 0 {
				cp.Params[i].Uncertainty = cp.Params[i].Value * rng.Uniform(r, src.UncertaintyLower, src.UncertaintyUpper)
			}
		}
		cp.Opinions = nil
		cp.Loan = nil
		cp.Subsidised = false
		cp.Source = heating.SourceNeighbour
		nb.Known = append(nb.Known, cp)
	}

	for k, rules := range h.Subsidies {
		nb.Subsidies[k] = slices.Clone(rules)
	}
}

// shareSystem tells nb which kind h has installed.
func (h *Houseowner) shareSystem(nb *Houseowner) {
	nb.NeighbourSystems[h.ID] = h.House.Heating.Kind
}

// shareRating records h's ratings as opinions on nb's matching systems.
func (h *Houseowner) shareRating(nb *Houseowner) {
	for _, s := range h.Known {
		if t := nb.known(s.Kind); t != nil {
			t.SetOpinion(uint64(h.ID), s.Rating)
		}
	}
}
