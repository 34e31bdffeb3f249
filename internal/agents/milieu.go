package agents

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"

	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
)

// MilieuKind is a socio-behavioural segment of houseowners.
type MilieuKind uint8

const (
	Leading MilieuKind = iota
	Mainstream
	Traditionals
	Hedonists
	numMilieus
)

var milieuNames = [numMilieus]string{"leading", "mainstream", "traditionals", "hedonists"}

func (m MilieuKind) String() string {
	if m < numMilieus {
		return milieuNames[m]
	}
	return fmt.Sprintf("milieu(%d)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m MilieuKind) MarshalText() ([]byte, error) {
	if m >= numMilieus {
		return nil, fmt.Errorf("unknown milieu %d", uint8(m))
	}
	return []byte(milieuNames[m]), nil
}

// ParseMilieuKind resolves a configuration tag. Unknown tags are an error.
func ParseMilieuKind(s string) (MilieuKind, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for i, n := range milieuNames {
		if n == tag {
			return MilieuKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown milieu %q", s)
}

// AllMilieus lists the milieus in declaration order.
func AllMilieus() []MilieuKind {
	return []MilieuKind{Leading, Mainstream, Traditionals, Hedonists}
}

// Milieu is the shared, read-only description of one segment.
type Milieu struct {
	Kind       MilieuKind
	Share      float64
	Config     config.MilieuConfig
	RAExposure map[MilieuKind]float64
}

// Standard is the milieu's personal standard for an installed system.
func (m *Milieu) Standard() config.StandardConfig {
	return m.Config.Standard
}

// LoadMilieus resolves the configured milieus. Every key must be a known
// milieu and so must every exposure key.
func LoadMilieus(cfg map[string]config.MilieuConfig) (map[MilieuKind]*Milieu, error) {
	out := make(map[MilieuKind]*Milieu, len(cfg))
	for name, mc := range cfg {
		kind, err := ParseMilieuKind(name)
		if err != nil {
			return nil, err
		}
		m := &Milieu{Kind: kind, Share: mc.Share, Config: mc, RAExposure: make(map[MilieuKind]float64)}
		for peer, v := range mc.RAExposure {
			pk, err := ParseMilieuKind(peer)
			if err != nil {
				return nil, fmt.Errorf("milieus.%s.ra_exposure: %w", name, err)
			}
			m.RAExposure[pk] = v
		}
		out[kind] = m
	}
	return out, nil
}

// sortedMilieus returns the loaded milieus in declaration order.
func sortedMilieus(ms map[MilieuKind]*Milieu) []*Milieu {
	out := make([]*Milieu, 0, len(ms))
	for _, k := range AllMilieus() {
		if m, ok := ms[k]; ok {
			out = append(out, m)
		}
	}
	return out
}

// TPBWeights weigh attitude, social norm and perceived behavioural control
// in the integral rating. They sum to one.
type TPBWeights struct {
	Attitude   float64 `json:"attitude"`
	SocialNorm float64 `json:"social_norm"`
	Control    float64 `json:"control"`
}

// drawTPBWeights perturbs the milieu means uniformly within ±std and
// renormalises.
func drawTPBWeights(r *rand.Rand, m *Milieu, hc config.HouseownerConfig) TPBWeights {
	means := []float64{
		m.Config.TPB.Attitude * hc.AttitudeMultiplier,
		m.Config.TPB.SocialNorm * hc.SocialNormMultiplier,
		m.Config.TPB.Control * hc.PBCMultiplier,
	}
	normalise(means)
	drawn := make([]float64, 3)
	for i, mean := range means {
		std := hc.TPBWeightsStd[i]
		drawn[i] = rng.Uniform(r, math.Max(mean-std, 0), math.Min(mean+std, 1))
	}
	normalise(drawn)
	return TPBWeights{Attitude: drawn[0], SocialNorm: drawn[1], Control: 1 - drawn[0] - drawn[1]}
}

// drawHeatingPreferences samples how much each attribute matters to one
// houseowner. Both effort parameters share one draw, as do price and opex.
func drawHeatingPreferences(r *rand.Rand, m *Milieu) [heating.NumParams]float64 {
	p := m.Config.Preferences
	effort := rng.Beta(r, p.EffortA, p.EffortB)
	fuel := rng.Beta(r, p.FuelCostA, p.FuelCostB)
	emissions := rng.Beta(r, p.EmissionsA, p.EmissionsB)
	price := rng.Beta(r, p.PriceA, p.PriceB)

	var out [heating.NumParams]float64
	out[heating.OperationEffort] = effort
	out[heating.InstallationEffort] = effort
	out[heating.FuelCost] = fuel
	out[heating.Emissions] = emissions
	out[heating.Price] = price
	out[heating.Opex] = price
	return out
}

// consultSources are the information sources in preference-vector order.
var consultSources = []heating.Source{
	heating.SourceInternet,
	heating.SourceMagazine,
	heating.SourcePlumber,
	heating.SourceNeighbour,
	heating.SourceEnergyAdvisor,
}

func drawSourcePreferences(r *rand.Rand, m *Milieu) []float64 {
	s := m.Config.Sources
	return rng.Dirichlet(r, []float64{s.Internet, s.Magazine, s.Plumber, s.Neighbour, s.EnergyAdvisor})
}

// normalise scales v to sum to one; an all-zero vector becomes uniform.
func normalise(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total == 0 {
		for i := range v {
			v[i] = 1 / float64(len(v))
		}
		return
	}
	for i := range v {
		v[i] /= total
	}
}

func sourceIndex(s heating.Source) int {
	return slices.Index(consultSources, s)
}
