package agents

import (
	"math"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/subsidy"
)

// MediaSource is an impersonal information channel such as the internet
// or a trade magazine. It quotes distorted prices for the asking owner's
// house and occasionally reveals the subsidies it knows about.
type MediaSource struct {
	Kind      heating.Source
	Content   []heating.Kind
	Subsidies subsidy.Catalogue

	env *Env
}

// NewMediaSource creates a source covering content, with the subsidy
// programmes that apply to those kinds.
func NewMediaSource(kind heating.Source, content []heating.Kind, e *Env) *MediaSource {
	return &MediaSource{
		Kind:      kind,
		Content:   slices.Clone(content),
		Subsidies: subsidy.Organize(subsidy.Programmes(e.Cfg.Subsidies), content),
		env:       e,
	}
}

// distortion is the upper bound of the perception noise for k. Rare kinds
// are misjudged more than common ones.
func (m *MediaSource) distortion(k heating.Kind) float64 {
	src := m.env.Cfg.Sources
	total := 0
	for _, n := range m.env.Distribution {
		total += n
	}
	share := 0.0
	if total > 0 {
		share = float64(m.env.Distribution[k]) / float64(total)
	}
	return src.MinDistortion + (1-share)*(src.Distortion-src.MinDistortion)
}

// perceive quotes a random content kind for h's house.
func (m *MediaSource) perceive(h *Houseowner) heating.System {
	s := m.perceiveKind(h, rng.Choice(m.env.SourceRand, m.Content))
	s.Source = m.Kind
	return s
}

// perceiveKind quotes k for h's house with pessimistic noise on every
// parameter and a fresh uncertainty band.
func (m *MediaSource) perceiveKind(h *Houseowner, k heating.Kind) heating.System {
	e := m.env
	r := e.SourceRand
	src := e.Cfg.Sources

	top := m.distortion(k)
	s := e.generateFor(k, h.House.Site(), r)
	for i := range s.Params {
		s.Params[i].Value *= math.Max(0.5, 1+rng.Uniform(r, -top, top))
	}
	for i := range s.Params {
		s.Params[i].Uncertainty = s.Params[i].Value * rng.Uniform(r, src.UncertaintyLower, src.UncertaintyUpper)
	}
	return s
}

// search spends h's effort on repeated lookups. It stops when the owner
// runs out of effort, knows the whole content, reaches its aspiration or
// is overloaded, or when the quoted kind is infeasible for its house.
func (m *MediaSource) search(h *Houseowner, cost int) {
	e := m.env
	for h.Effort >= cost {
		if len(h.Known) == len(m.Content) || (len(h.Known) > 1 && h.Aspiration == 0) {
			break
		}
		found := m.perceive(h)
		if h.Infeasible[found.Kind] {
			break
		}
		h.Effort -= cost

		if h.known(found.Kind) == nil {
			h.Known = append(h.Known, found)
			h.rateAll()
			if h.known(found.Kind).Rating > h.House.Heating.Rating {
				h.Aspiration--
			} else {
				h.Overload--
			}
		} else {
			h.relativeAgreement(found)
			h.rateAll()
		}

		if rng.Chance(e.SourceRand, e.Cfg.Sources.SubsidyFindingProb) {
			if rules, ok := m.Subsidies[found.Kind]; ok {
				h.Subsidies[found.Kind] = slices.Clone(rules)
			}
		}
		if h.Aspiration == 0 || h.Overload == 0 {
			break
		}
	}
	if h.Overload == 0 && h.Stage != Idle {
		h.setStage(Idle)
		e.Counters.flow(Stage2, FlowOverloaded)
	}
}
