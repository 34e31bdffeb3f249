package social

import (
	"math"

	"github.com/talgya/heatsim/internal/heating"
)

// minEstimate keeps values and uncertainties strictly positive.
const minEstimate = 1e-6

// RelativeAgreement moves every estimate of target towards source in
// proportion to how much their uncertainty intervals overlap. exposure
// scales the pull; 0 leaves target unchanged. Only target is modified.
func RelativeAgreement(source heating.Params, target *heating.Params, exposure float64) {
	for i := range target {
		t, s := target[i], source[i]
		if s.Uncertainty <= 0 {
			continue
		}
		overlap := min(t.Value+t.Uncertainty, s.Value+s.Uncertainty) -
			max(t.Value-t.Uncertainty, s.Value-s.Uncertainty)
		if overlap <= 0 {
			continue
		}
		kernel := overlap / (2 * s.Uncertainty)
		target[i].Value = max(t.Value+exposure*kernel*(s.Value-t.Value), minEstimate)
		target[i].Uncertainty = max(t.Uncertainty+exposure*kernel*(s.Uncertainty-t.Uncertainty), minEstimate)
	}
}

// Logistic is the S-curve used to turn an adoption share into a norm.
func Logistic(x, steepness, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(x-midpoint)))
}
