// Package world lays out the neighbourhood: houses on a hex grid with
// spatially correlated building stock.
// Uses axial coordinates (q, r) for the hex grid.
package world

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = h.Add(dir)
	}
	return result
}

// Add returns h shifted by d.
func (h HexCoord) Add(d HexCoord) HexCoord {
	return HexCoord{Q: h.Q + d.Q, R: h.R + d.R}
}

// Scale multiplies both axial components by k.
func (h HexCoord) Scale(k int) HexCoord {
	return HexCoord{Q: h.Q * k, R: h.R * k}
}

// Cartesian converts to continuous space for noise sampling.
func (h HexCoord) Cartesian() (x, y float64) {
	x = float64(h.Q) + float64(h.R)*0.5
	y = float64(h.R) * sqrt3 / 2
	return x, y
}

const sqrt3 = 1.7320508075688772

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	// Max of the three absolute differences in cube coordinates.
	return max(abs(a.Q-b.Q), abs(a.R-b.R), abs(a.S()-b.S()))
}

// Ring returns the hexes at exactly distance k from center, walking the
// ring in a fixed order. Ring 0 is the center itself.
func Ring(center HexCoord, k int) []HexCoord {
	if k == 0 {
		return []HexCoord{center}
	}
	out := make([]HexCoord, 0, 6*k)
	h := center.Add(HexNeighborDirections[4].Scale(k))
	for side := 0; side < 6; side++ {
		for step := 0; step < k; step++ {
			out = append(out, h)
			h = h.Add(HexNeighborDirections[side])
		}
	}
	return out
}

// Spiral returns the first n hexes of an outward spiral around center.
func Spiral(center HexCoord, n int) []HexCoord {
	out := make([]HexCoord, 0, n)
	for k := 0; len(out) < n; k++ {
		for _, h := range Ring(center, k) {
			if len(out) == n {
				break
			}
			out = append(out, h)
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
