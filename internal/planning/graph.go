// Package planning holds the milestone dependency and scheduling engine.
// Every function here is a pure computation over a caller-supplied snapshot.
package planning

import (
	"slices"

	"github.com/hylla/waypoint/internal/domain"
)

// Graph is a read-only adjacency view of one tenant's dependency edges.
// An edge from -> to means from depends on to.
type Graph struct {
	out   map[string]map[string]struct{}
	edges int
}

// NewGraph builds a graph from an edge snapshot. Duplicate edges collapse to one.
func NewGraph(edges []domain.DependencyEdge) *Graph {
	g := &Graph{out: make(map[string]map[string]struct{}, len(edges)*2)}
	for _, e := range edges {
		g.add(e.MilestoneID, e.DependsOnMilestoneID)
	}
	return g
}

// WithNodes returns a copy of g that also contains the given isolated nodes.
func (g *Graph) WithNodes(ids ...string) *Graph {
	next := g.clone()
	for _, id := range ids {
		next.node(id)
	}
	return next
}

// WithProposedEdge returns a copy of g plus from -> to. The receiver is not mutated.
func (g *Graph) WithProposedEdge(from, to string) *Graph {
	next := g.clone()
	next.add(from, to)
	return next
}

// Neighbors returns the ids that id directly depends on, sorted.
func (g *Graph) Neighbors(id string) []string {
	targets := g.out[id]
	out := make([]string, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Nodes returns every node id, sorted.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.out))
	for id := range g.out {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// HasNode reports whether id appears in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.out[id]
	return ok
}

// HasEdge reports whether from -> to is present.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.out[from][to]
	return ok
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

func (g *Graph) node(id string) {
	if _, ok := g.out[id]; !ok {
		g.out[id] = map[string]struct{}{}
	}
}

func (g *Graph) add(from, to string) {
	g.node(from)
	g.node(to)
	if _, ok := g.out[from][to]; ok {
		return
	}
	g.out[from][to] = struct{}{}
	g.edges++
}

func (g *Graph) clone() *Graph {
	next := &Graph{out: make(map[string]map[string]struct{}, len(g.out)+2), edges: g.edges}
	for id, targets := range g.out {
		copied := make(map[string]struct{}, len(targets)+1)
		for t := range targets {
			copied[t] = struct{}{}
		}
		next.out[id] = copied
	}
	return next
}
