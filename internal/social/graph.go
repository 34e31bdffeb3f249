// Package social provides the directed influence network between
// houseowners and the relative-agreement rule they use to merge opinions.
package social

import (
	"math/rand"
	"slices"

	"github.com/talgya/heatsim/internal/world"
)

// Graph is a directed graph over agent IDs. An edge u→v means u informs v:
// u is a predecessor of v and v a successor of u.
type Graph struct {
	nodes []uint64
	succ  map[uint64][]uint64
	pred  map[uint64][]uint64
	edges int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{succ: make(map[uint64][]uint64), pred: make(map[uint64][]uint64)}
}

// AddNode registers id. Adding a node twice is a no-op.
func (g *Graph) AddNode(id uint64) {
	if _, ok := g.succ[id]; ok {
		return
	}
	g.nodes = append(g.nodes, id)
	g.succ[id] = nil
	g.pred[id] = nil
}

// AddEdge adds from→to. Self loops and duplicate edges are ignored.
func (g *Graph) AddEdge(from, to uint64) bool {
	if from == to || slices.Contains(g.succ[from], to) {
		return false
	}
	g.AddNode(from)
	g.AddNode(to)
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
	g.edges++
	return true
}

// HasEdge reports whether from→to exists.
func (g *Graph) HasEdge(from, to uint64) bool {
	return slices.Contains(g.succ[from], to)
}

// Predecessors returns a copy of the IDs with an edge into id.
func (g *Graph) Predecessors(id uint64) []uint64 {
	return slices.Clone(g.pred[id])
}

// Successors returns a copy of the IDs id has an edge to.
func (g *Graph) Successors(id uint64) []uint64 {
	return slices.Clone(g.succ[id])
}

// Neighbours returns predecessors followed by successors that are not
// also predecessors.
func (g *Graph) Neighbours(id uint64) []uint64 {
	out := g.Predecessors(id)
	for _, s := range g.succ[id] {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []uint64 {
	return slices.Clone(g.nodes)
}

// EdgeCount is the number of directed edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// NetworkConfig drives Build.
type NetworkConfig struct {
	Radius     int     // hex distance within which neighbours may link
	EdgeProb   float64 // probability of each directed local edge
	RewireProb float64 // probability a local edge is redirected to a random house
}

// Build links the houses of m. For each ordered pair within Radius an
// edge is drawn with EdgeProb; each drawn edge is redirected to a random
// house with RewireProb, which gives the network a few long-range ties.
func Build(m *world.Map, cfg NetworkConfig, r *rand.Rand) *Graph {
	g := NewGraph()
	for _, h := range m.Houses {
		g.AddNode(h.ID)
	}
	if len(m.Houses) < 2 {
		return g
	}
	for _, h := range m.Houses {
		for _, o := range m.Within(h.Coord, cfg.Radius) {
			if r.Float64() >= cfg.EdgeProb {
				continue
			}
			target := o.ID
			if r.Float64() < cfg.RewireProb {
				target = m.Houses[r.Intn(len(m.Houses))].ID
			}
			g.AddEdge(h.ID, target)
		}
	}
	return g
}
