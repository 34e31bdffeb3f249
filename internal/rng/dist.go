package rng

import (
	"math"
	"math/rand"
)

// Uniform returns a float in [lo, hi).
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// IntBetween returns an integer in [lo, hi] inclusive.
func IntBetween(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}

// Chance reports true with probability p.
func Chance(r *rand.Rand, p float64) bool {
	return r.Float64() < p
}

// Choice picks a uniformly random element. It panics on an empty slice.
func Choice[T any](r *rand.Rand, items []T) T {
	return items[r.Intn(len(items))]
}

// Shuffle permutes items in place.
func Shuffle[T any](r *rand.Rand, items []T) {
	r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

// WeightedIndex picks an index with probability proportional to its weight.
// Non-positive weights are never chosen; -1 means all weights were zero.
func WeightedIndex(r *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	x := r.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if x < w {
			return i
		}
		x -= w
	}
	return last
}

// TruncNormal draws from a normal distribution clipped to [lo, hi] by
// rejection, falling back to clamping after a bounded number of attempts.
func TruncNormal(r *rand.Rand, mean, std, lo, hi float64) float64 {
	if std <= 0 {
		return math.Max(lo, math.Min(hi, mean))
	}
	for i := 0; i < 64; i++ {
		v := mean + std*r.NormFloat64()
		if v >= lo && v <= hi {
			return v
		}
	}
	return math.Max(lo, math.Min(hi, mean))
}

// Gamma draws from Gamma(shape, 1) with the Marsaglia–Tsang method.
func Gamma(r *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := r.Float64()
		return Gamma(r, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := r.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := r.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// Beta draws from Beta(a, b).
func Beta(r *rand.Rand, a, b float64) float64 {
	x := Gamma(r, a)
	y := Gamma(r, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// BetaFromMoments draws from the Beta distribution with the given mean and
// standard deviation. Infeasible moments degrade to the mean.
func BetaFromMoments(r *rand.Rand, mean, std float64) float64 {
	variance := std * std
	if mean <= 0 || mean >= 1 || variance <= 0 || variance >= mean*(1-mean) {
		return mean
	}
	common := mean*(1-mean)/variance - 1
	return Beta(r, mean*common, (1-mean)*common)
}

// Dirichlet draws a probability vector with the given concentration.
func Dirichlet(r *rand.Rand, alpha []float64) []float64 {
	out := make([]float64, len(alpha))
	total := 0.0
	for i, a := range alpha {
		out[i] = Gamma(r, a)
		total += out[i]
	}
	if total == 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Weibull draws from a Weibull distribution with scale 1.
func Weibull(r *rand.Rand, shape float64) float64 {
	u := r.Float64()
	return math.Pow(-math.Log(1-u), 1/shape)
}
