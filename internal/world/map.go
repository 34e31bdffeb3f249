package world

import "fmt"

// Map holds the placed houses keyed by coordinate.
type Map struct {
	Plots  map[HexCoord]*House `json:"-"`
	Houses []*House            `json:"-"` // in placement order
	Radius int                 `json:"radius"`
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{Plots: make(map[HexCoord]*House)}
}

// Get returns the house at the given coordinate, or nil.
func (m *Map) Get(coord HexCoord) *House {
	return m.Plots[coord]
}

// Set places a house on its coordinate.
func (m *Map) Set(h *House) {
	if _, taken := m.Plots[h.Coord]; !taken {
		m.Houses = append(m.Houses, h)
	}
	m.Plots[h.Coord] = h
	m.Radius = max(m.Radius, Distance(HexCoord{}, h.Coord))
}

// Within returns the houses at distance 1..radius from coord, nearest
// ring first.
func (m *Map) Within(coord HexCoord, radius int) []*House {
	var out []*House
	for k := 1; k <= radius; k++ {
		for _, c := range Ring(coord, k) {
			if h := m.Plots[c]; h != nil {
				out = append(out, h)
			}
		}
	}
	return out
}

// HouseCount returns the number of houses on the map.
func (m *Map) HouseCount() int {
	return len(m.Houses)
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, houses=%d)", m.Radius, m.HouseCount())
}
