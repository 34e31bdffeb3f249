package heating

import "math"

// Site is the part of a house that cost formulas depend on.
type Site struct {
	Area         float64 // m²
	EnergyDemand float64 // kWh per m² and year
	HeatLoad     float64 // kW
}

var demandClasses = [5]float64{50, 100, 150, 200, 250}

// Calculate fills the site-dependent parameters (price, fuel cost, opex,
// emissions) of s from its table row. Uncertainties are left untouched.
func (t *Table) Calculate(s *System, site Site) {
	spec := t.Specs[s.Kind]
	s.TotalEnergyDemand = EnergyDemand(spec, site)
	price := InstallationCost(s.Kind, spec, site)
	s.Params[Price].Value = price
	s.Params[Opex].Value = operatingCost(spec, price, s.Lifetime)
	t.RefreshFuelCost(s)
	t.RefreshEmissions(s)
}

// RefreshFuelCost recomputes the yearly fuel cost of an already calculated
// system from the current table row.
func (t *Table) RefreshFuelCost(s *System) {
	s.Params[FuelCost].Value = math.Floor(t.Specs[s.Kind].FuelCost * s.TotalEnergyDemand)
}

// RefreshEmissions recomputes the yearly emissions the same way.
func (t *Table) RefreshEmissions(s *System) {
	s.Params[Emissions].Value = math.Floor(t.Specs[s.Kind].Emissions * s.TotalEnergyDemand)
}

// EnergyDemand is the yearly heat demand of the site in kWh.
func EnergyDemand(spec Spec, site Site) float64 {
	nearest := 0
	for i, c := range demandClasses {
		if math.Abs(c-site.EnergyDemand) < math.Abs(demandClasses[nearest]-site.EnergyDemand) {
			nearest = i
		}
	}
	factor := spec.FactorEnergy[nearest]
	processedArea := site.Area * (2.3*1.5 + 0.75) * 0.32
	return math.Floor(processedArea * site.EnergyDemand * factor)
}

// InstallationCost is the unsubsidised price of installing kind k at site.
// Systems supplied under a heat-delivery contract cost nothing up front.
func InstallationCost(k Kind, spec Spec, site Site) float64 {
	switch {
	case spec.HeatDelivery:
		return 0
	case k == Electricity:
		cost := spec.Price * math.Pow(site.Area, spec.FactorArea) * site.Area *
			spec.FactorOppendorf * spec.PriceIndex * spec.SidecostsIndex
		return math.Floor(cost)
	case k.AreaBased():
		cost := spec.Price * math.Pow(site.Area, spec.FactorArea) * site.Area *
			spec.FactorOppendorf * spec.PriceIndex * spec.SidecostsIndex * spec.HeatLoadCorrection
		return math.Floor(cost)
	default:
		cost := spec.HeatLoadPrice * math.Pow(site.HeatLoad, spec.HeatLoadFactor) * site.HeatLoad
		return math.Floor(cost * spec.HeatLoadCorrection)
	}
}

func operatingCost(spec Spec, price float64, lifetime int) float64 {
	opex := price * spec.FactorOpex
	if spec.HeatDelivery && lifetime > 0 {
		opex += 52 * (price / float64(lifetime))
	}
	return math.Floor(opex)
}
