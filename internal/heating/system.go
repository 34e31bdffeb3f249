package heating

import (
	"maps"

	"github.com/talgya/heatsim/internal/economy"
)

// System is one agent's knowledge of, or ownership of, a heating system.
// It is a value: assigning it copies the parameters, and Clone additionally
// detaches the opinion map and loan so that no two agents share state.
type System struct {
	Kind             Kind    `json:"kind"`
	Params           Params  `json:"params"`
	Age              int     `json:"age"` // ticks since installation
	Breakdown        bool    `json:"breakdown"`
	Lifetime         int     `json:"lifetime"`
	Availability     int     `json:"availability"` // tick after which the kind can no longer be installed
	InstallationTime int     `json:"installation_time"`
	Power            float64 `json:"power"`
	ContractTerm     int     `json:"contract_term"` // remaining fuel-price contract ticks, 0 for none
	HeatDelivery     bool    `json:"heat_delivery"`

	TotalEnergyDemand float64       `json:"total_energy_demand"`
	Investment        float64       `json:"investment"`
	Payback           float64       `json:"payback"`
	Subsidised        bool          `json:"subsidised"`
	Loan              *economy.Loan `json:"loan,omitempty"`

	Rating           float64            `json:"rating"`
	AttributeRatings [NumParams]float64 `json:"attribute_ratings"`
	Opinions         map[uint64]float64 `json:"-"` // neighbour ID → rating
	SocialNorm       float64            `json:"social_norm"`
	PBC              float64            `json:"pbc"`
	SatisfiedRatio   float64            `json:"satisfied_ratio"`
	Riskiness        float64            `json:"riskiness"`
	Source           Source             `json:"source"`
}

// Clone returns a deep copy of s.
func (s System) Clone() System {
	if s.Opinions != nil {
		s.Opinions = maps.Clone(s.Opinions)
	}
	if s.Loan != nil {
		l := *s.Loan
		s.Loan = &l
	}
	return s
}

// SetOpinion records a neighbour's rating of this kind.
func (s *System) SetOpinion(from uint64, rating float64) {
	if s.Opinions == nil {
		s.Opinions = make(map[uint64]float64)
	}
	s.Opinions[from] = rating
}

// Remaining is the number of ticks until the system reaches its lifetime.
func (s *System) Remaining() int {
	return s.Lifetime - s.Age
}

// CheckPayback amortises the remaining investment by one tick.
func (s *System) CheckPayback() {
	if s.Investment != 0 {
		s.Investment = max(0, s.Investment-s.Payback)
	}
}

// CheckBreakdown marks the system broken once its lifetime is exhausted.
func (s *System) CheckBreakdown() {
	if s.Age >= s.Lifetime {
		s.Breakdown = true
		s.Investment = 0
	}
}

// Running returns the yearly running cost of s.
func (s *System) Running() economy.Running {
	return economy.Running{Fuel: s.Params[FuelCost].Value, Opex: s.Params[Opex].Value}
}

// Price is a shorthand for the price estimate's value.
func (s *System) Price() float64 {
	return s.Params[Price].Value
}

// Index returns the position of kind k in systems, or -1.
func Index(systems []System, k Kind) int {
	for i := range systems {
		if systems[i].Kind == k {
			return i
		}
	}
	return -1
}

// CloneAll deep-copies a slice of systems.
func CloneAll(systems []System) []System {
	out := make([]System, len(systems))
	for i := range systems {
		out[i] = systems[i].Clone()
	}
	return out
}
