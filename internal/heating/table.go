package heating

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pelletier/go-toml/v2"

	"github.com/talgya/heatsim/internal/rng"
)

// Spec is one row of the heating parameter table. Lifetimes, availability
// and installation time are in ticks (weeks).
type Spec struct {
	Price              float64    `toml:"price"`
	FactorArea         float64    `toml:"factor_area"`
	FactorOppendorf    float64    `toml:"factor_oppendorf"`
	PriceIndex         float64    `toml:"price_index"`
	SidecostsIndex     float64    `toml:"sidecosts_index"`
	HeatLoadPrice      float64    `toml:"heat_load_price"`
	HeatLoadFactor     float64    `toml:"heat_load_factor"`
	HeatLoadCorrection float64    `toml:"heat_load_correction"`
	FactorOpex         float64    `toml:"factor_opex"`
	FuelCost           float64    `toml:"fuel_cost"` // per kWh
	Emissions          float64    `toml:"emissions"` // kg CO2 per kWh
	FactorEnergy       [5]float64 `toml:"factor_energy"`
	OperationEffort    float64    `toml:"operation_effort"`
	InstallationEffort float64    `toml:"installation_effort"`
	LifetimeLower      int        `toml:"lifetime_lower"`
	LifetimeUpper      int        `toml:"lifetime_upper"`
	WeibullShape       float64    `toml:"weibull_shape"`
	WeibullScale       float64    `toml:"weibull_scale"`
	Availability       int        `toml:"availability"`
	InstallationTime   int        `toml:"installation_time"`
	Power              float64    `toml:"power"`
	Contract           int        `toml:"contract"`
	HeatDelivery       bool       `toml:"heat_delivery"`
}

// Table holds a Spec for every kind plus the lifetime generation mode.
type Table struct {
	Specs   map[Kind]Spec
	Weibull bool
}

type tableFile struct {
	Systems map[string]Spec `toml:"systems"`
}

// DecodeTable parses a TOML parameter table of the form
//
//	[systems.gas]
//	heat_load_price = 900
//
// Every kind must be present and every key must be a known kind.
func DecodeTable(data []byte) (*Table, error) {
	var f tableFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode heating table: %w", err)
	}
	t := &Table{Specs: make(map[Kind]Spec, len(f.Systems))}
	for name, spec := range f.Systems {
		k, err := ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("heating table: %w", err)
		}
		t.Specs[k] = spec
	}
	for _, k := range AllKinds() {
		if _, ok := t.Specs[k]; !ok {
			return nil, fmt.Errorf("heating table: missing system %q", k)
		}
	}
	return t, nil
}

// Spec returns the row for k.
func (t *Table) Spec(k Kind) Spec {
	return t.Specs[k]
}

// Generate creates a fresh, uncalculated system of kind k with a drawn
// lifetime. Call Calculate before reading cost parameters.
func (t *Table) Generate(k Kind, r *rand.Rand) System {
	spec := t.Specs[k]
	s := System{
		Kind:             k,
		Lifetime:         t.lifetime(spec, r),
		Availability:     spec.Availability,
		InstallationTime: spec.InstallationTime,
		Power:            spec.Power,
		ContractTerm:     spec.Contract,
		HeatDelivery:     spec.HeatDelivery,
	}
	s.Params[OperationEffort].Value = spec.OperationEffort
	s.Params[InstallationEffort].Value = spec.InstallationEffort
	return s
}

func (t *Table) lifetime(spec Spec, r *rand.Rand) int {
	if t.Weibull && spec.WeibullShape > 0 {
		v := math.Max(float64(spec.LifetimeLower), spec.WeibullScale*rng.Weibull(r, spec.WeibullShape))
		return int(math.Round(v))
	}
	return rng.IntBetween(r, spec.LifetimeLower, spec.LifetimeUpper)
}

// With returns a copy of the table where edit has changed kind k's row.
// The receiver is left untouched.
func (t *Table) With(k Kind, edit func(*Spec)) *Table {
	out := &Table{Specs: make(map[Kind]Spec, len(t.Specs)), Weibull: t.Weibull}
	for kind, spec := range t.Specs {
		if kind == k {
			edit(&spec)
		}
		out.Specs[kind] = spec
	}
	return out
}

// WithFuelCost returns a copy of the table where kind k's fuel cost is
// multiplied by factor.
func (t *Table) WithFuelCost(k Kind, factor float64) *Table {
	return t.With(k, func(s *Spec) { s.FuelCost *= factor })
}
