// House generation using layered simplex noise.
// Construction year and floor area vary smoothly across the grid so that
// neighbours tend to live in similar buildings.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/heatsim/internal/heating"
)

// House is one building with its thermal characteristics.
type House struct {
	ID           uint64   `json:"id"`
	Coord        HexCoord `json:"coord"`
	Year         int      `json:"year"`
	Area         float64  `json:"area"`          // m²
	EnergyDemand float64  `json:"energy_demand"` // kWh per m² and year
	HeatLoad     float64  `json:"heat_load"`     // kW

	Heating heating.System `json:"heating"` // installed system
}

// Site returns the cost-relevant part of the house.
func (h *House) Site() heating.Site {
	return heating.Site{Area: h.Area, EnergyDemand: h.EnergyDemand, HeatLoad: h.HeatLoad}
}

// GenConfig holds house generation parameters.
type GenConfig struct {
	Count          int
	AreaMin        float64
	AreaMax        float64
	YearMin        int
	YearMax        int
	NoiseScale     float64 // sampling frequency; larger values give smaller quarters
	HeatLoadFactor float64
}

// SmallTestConfig returns a tiny neighbourhood for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Count:          19,
		AreaMin:        80,
		AreaMax:        250,
		YearMin:        1950,
		YearMax:        2020,
		NoiseScale:     0.15,
		HeatLoadFactor: 0.85,
	}
}

// demandClasses maps construction periods to specific heat demand.
var demandClasses = []struct {
	start, end int
	demand     float64
}{
	{1860, 1918, 181},
	{1919, 1948, 164},
	{1949, 1957, 182},
	{1958, 1968, 180},
	{1969, 1978, 153},
	{1979, 1983, 120},
	{1984, 1994, 132},
	{1995, 2001, 122},
	{2002, 2009, 87},
	{2010, 2050, 50},
}

// DemandForYear returns the specific heat demand of a building constructed
// in year. Years outside the table take the nearest class.
func DemandForYear(year int) float64 {
	for _, c := range demandClasses {
		if c.start <= year && year <= c.end {
			return c.demand
		}
	}
	if year < demandClasses[0].start {
		return demandClasses[0].demand
	}
	return demandClasses[len(demandClasses)-1].demand
}

// Generate places cfg.Count houses on a spiral around the origin. IDs
// start at firstID and increase in placement order.
func Generate(cfg GenConfig, r *rand.Rand, firstID uint64) *Map {
	seed := r.Int63()

	// Independent layers for building age and size.
	yearNoise := opensimplex.NewNormalized(seed)
	areaNoise := opensimplex.NewNormalized(seed + 1)

	m := NewMap()
	for i, coord := range Spiral(HexCoord{}, cfg.Count) {
		x, y := coord.Cartesian()

		ny := octaveNoise(yearNoise, x, y, 3, cfg.NoiseScale, 0.5)
		na := octaveNoise(areaNoise, x, y, 2, cfg.NoiseScale, 0.5)

		// Blend in some per-house jitter so no two plots are identical.
		ny = clamp01(0.8*ny + 0.2*r.Float64())
		na = clamp01(0.8*na + 0.2*r.Float64())

		year := cfg.YearMin + int(math.Round(ny*float64(cfg.YearMax-cfg.YearMin)))
		area := math.Round(cfg.AreaMin + na*(cfg.AreaMax-cfg.AreaMin))
		demand := DemandForYear(year)

		m.Set(&House{
			ID:           firstID + uint64(i),
			Coord:        coord,
			Year:         year,
			Area:         area,
			EnergyDemand: demand,
			HeatLoad:     math.Round(area*demand*cfg.HeatLoadFactor/100) / 10,
		})
	}
	return m
}

// octaveNoise samples layered noise normalised back into [0, 1].
func octaveNoise(n opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amplitude, maxAmp := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += n.Eval2(x*frequency, y*frequency) * amplitude
		maxAmp += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxAmp
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
