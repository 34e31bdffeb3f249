// Package subsidy defines the public funding programmes for heating-system
// replacement and how their rates combine into a capped price reduction.
package subsidy

import (
	"math"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
)

// Condition restricts a rule to some applicants.
type Condition uint8

const (
	Always Condition = iota
	// FossilOwner applies when the applicant currently heats with oil or gas.
	FossilOwner
	// LowIncome applies when the applicant's annual income is at most the threshold.
	LowIncome
)

// Programme is a subsidy offered for one or more system kinds.
type Programme struct {
	Name      string
	Abbr      string
	Rate      float64 // share of the price
	Kinds     []heating.Kind
	Condition Condition
}

// Rule is a programme resolved for a single system kind.
type Rule struct {
	Name      string
	Abbr      string
	Rate      float64
	Kind      heating.Kind
	Condition Condition
}

// Rates are the configured programme rates.
type Rates struct {
	District           float64 `mapstructure:"district"`
	HeatPump           float64 `mapstructure:"heat_pump"`
	HeatPumpBrine      float64 `mapstructure:"heat_pump_brine"`
	Pellet             float64 `mapstructure:"pellet"`
	LocalNetwork       float64 `mapstructure:"network_local"`
	GPJoule            float64 `mapstructure:"gp_joule"`
	ClimateSpeed       float64 `mapstructure:"climate_speed"`
	Income             float64 `mapstructure:"income"`
	Efficiency         float64 `mapstructure:"efficiency"`
	LowIncomeThreshold float64 `mapstructure:"low_income_threshold"` // annual
	CapShare           float64 `mapstructure:"cap_share"`            // share of price
	CapAbsolute        float64 `mapstructure:"cap_absolute"`
	AdvisorBonus       float64 `mapstructure:"advisor_bonus"` // share of price on top
	ClimateSpeedEnd    int     `mapstructure:"climate_speed_end_step"`
}

// ClimateSpeedName identifies the programme withdrawn mid-run.
const ClimateSpeedName = "Climate_speed"

// Programmes returns every programme with the configured rates.
func Programmes(r Rates) []Programme {
	hpLike := []heating.Kind{heating.HeatPump, heating.HeatPumpBrine, heating.Pellet}
	return []Programme{
		{Name: "District", Abbr: "DSTR", Rate: r.District, Kinds: []heating.Kind{heating.District}},
		{Name: "Heat_pump", Abbr: "HTPMP", Rate: r.HeatPump, Kinds: []heating.Kind{heating.HeatPump}},
		{Name: "Heat_pump_brine", Abbr: "HTPMPBR", Rate: r.HeatPumpBrine, Kinds: []heating.Kind{heating.HeatPumpBrine}},
		{Name: "Pellet", Abbr: "PLLT", Rate: r.Pellet, Kinds: []heating.Kind{heating.Pellet}},
		{Name: "Hot_network", Abbr: "HTNTWRK", Rate: r.LocalNetwork, Kinds: []heating.Kind{heating.LocalNetwork}},
		{Name: "GP_Joule", Abbr: "GPJL", Rate: r.GPJoule, Kinds: []heating.Kind{heating.GPJoule}},
		{Name: ClimateSpeedName, Abbr: "CLMSPD", Rate: r.ClimateSpeed, Kinds: hpLike, Condition: FossilOwner},
		{Name: "Income", Abbr: "INC", Rate: r.Income, Kinds: hpLike, Condition: LowIncome},
		{Name: "Efficiency", Abbr: "EFF", Rate: r.Efficiency, Kinds: []heating.Kind{heating.HeatPump, heating.HeatPumpBrine}},
	}
}

// Catalogue maps each system kind to the rules that apply to it.
type Catalogue map[heating.Kind][]Rule

// Organize expands programmes into per-kind rules restricted to kinds.
func Organize(programmes []Programme, kinds []heating.Kind) Catalogue {
	c := make(Catalogue)
	for _, p := range programmes {
		for _, k := range p.Kinds {
			if !slices.Contains(kinds, k) {
				continue
			}
			c[k] = append(c[k], Rule{Name: p.Name, Abbr: p.Abbr, Rate: p.Rate, Kind: k, Condition: p.Condition})
		}
	}
	return c
}

// Clone returns an independent copy.
func (c Catalogue) Clone() Catalogue {
	out := make(Catalogue, len(c))
	for k, rules := range c {
		out[k] = slices.Clone(rules)
	}
	return out
}

// Without returns a copy with the named programme removed everywhere.
func (c Catalogue) Without(name string) Catalogue {
	out := make(Catalogue, len(c))
	for k, rules := range c {
		kept := make([]Rule, 0, len(rules))
		for _, r := range rules {
			if r.Name != name {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			out[k] = kept
		}
	}
	return out
}

// Applicant carries the facts rule conditions look at.
type Applicant struct {
	CurrentKind  heating.Kind
	WeeklyIncome float64
}

// Applies reports whether r is granted to a.
func (r Rule) Applies(a Applicant, rates Rates) bool {
	switch r.Condition {
	case FossilOwner:
		return a.CurrentKind.Fossil()
	case LowIncome:
		return 52*a.WeeklyIncome <= rates.LowIncomeThreshold
	default:
		return true
	}
}

// Total sums the applicable rule amounts for price, stopping at the cap of
// min(CapShare × price, CapAbsolute).
func Total(price float64, rules []Rule, a Applicant, rates Rates) float64 {
	limit := math.Min(price*rates.CapShare, rates.CapAbsolute)
	total := 0.0
	for _, r := range rules {
		if r.Applies(a, rates) {
			total += price * r.Rate
		}
		if total >= limit {
			return limit
		}
	}
	return total
}
