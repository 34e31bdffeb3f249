package heating

// Param indexes one evaluated attribute of a heating system.
type Param uint8

const (
	OperationEffort Param = iota
	FuelCost
	Emissions
	Price
	InstallationEffort
	Opex
	NumParams
)

var paramNames = [NumParams]string{"operation_effort", "fuel_cost", "emissions", "price", "installation_effort", "opex"}

func (p Param) String() string {
	if p < NumParams {
		return paramNames[p]
	}
	return "unknown"
}

// Estimate is a point value with the holder's uncertainty about it.
type Estimate struct {
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty"`
}

// Params holds one estimate per attribute. It is an array so that copying a
// System copies its parameters.
type Params [NumParams]Estimate

// Values returns the point estimates only.
func (p Params) Values() [NumParams]float64 {
	var out [NumParams]float64
	for i, e := range p {
		out[i] = e.Value
	}
	return out
}

// ScaleUncertainty sets every uncertainty to value × factor(i).
func (p *Params) ScaleUncertainty(factor func(Param) float64) {
	for i := range p {
		p[i].Uncertainty = p[i].Value * factor(Param(i))
	}
}
