package planning

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/hylla/waypoint/internal/domain"
)

func edge(from, to string) domain.DependencyEdge {
	return domain.DependencyEdge{
		ID:                   from + "->" + to,
		TenantID:             "org1",
		MilestoneID:          from,
		DependsOnMilestoneID: to,
		Type:                 domain.FinishToStart,
	}
}

func TestGraphNeighborsAndNodes(t *testing.T) {
	g := NewGraph([]domain.DependencyEdge{edge("c", "a"), edge("c", "b"), edge("b", "a"), edge("c", "a")})
	if got := g.Neighbors("c"); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("unexpected neighbors %v", got)
	}
	if got := g.Neighbors("a"); len(got) != 0 {
		t.Fatalf("expected no neighbors for a, got %v", got)
	}
	if got := g.Nodes(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected nodes %v", got)
	}
	if g.EdgeCount() != 3 {
		t.Fatalf("expected duplicate edge to collapse, got %d edges", g.EdgeCount())
	}
	if !g.WithNodes("z").HasNode("z") || g.HasNode("z") {
		t.Fatal("expected WithNodes to add to a copy only")
	}
}

func TestWithProposedEdgeDoesNotMutate(t *testing.T) {
	g := NewGraph([]domain.DependencyEdge{edge("b", "a")})
	next := g.WithProposedEdge("c", "b")
	if g.HasEdge("c", "b") || g.HasNode("c") {
		t.Fatal("expected original graph to be unchanged")
	}
	if !next.HasEdge("c", "b") || !next.HasEdge("b", "a") {
		t.Fatal("expected proposed graph to contain old and new edges")
	}
	if next.EdgeCount() != 2 || g.EdgeCount() != 1 {
		t.Fatalf("unexpected edge counts %d %d", g.EdgeCount(), next.EdgeCount())
	}
}

func TestHasCycleIfAddedSelfLoop(t *testing.T) {
	for _, g := range []*Graph{NewGraph(nil), NewGraph([]domain.DependencyEdge{edge("b", "a")})} {
		if !HasCycleIfAdded(g, "a", "a") {
			t.Fatal("expected self-loop to be a cycle")
		}
		if !HasCycleIfAdded(g, "unknown", "unknown") {
			t.Fatal("expected self-loop on unknown node to be a cycle")
		}
	}
}

func TestHasCycleIfAddedTwoCycle(t *testing.T) {
	g := NewGraph([]domain.DependencyEdge{edge("a", "b")})
	if !HasCycleIfAdded(g, "b", "a") {
		t.Fatal("expected reverse edge to close a cycle")
	}
	if HasCycleIfAdded(g, "a", "b") {
		t.Fatal("expected duplicate edge not to be reported as a cycle")
	}
}

func TestHasCycleIfAddedChain(t *testing.T) {
	g := NewGraph([]domain.DependencyEdge{edge("a", "b"), edge("b", "c")})
	if !HasCycleIfAdded(g, "c", "a") {
		t.Fatal("expected c -> a to close a cycle")
	}
	if HasCycleIfAdded(g, "c", "d") {
		t.Fatal("expected c -> d to be safe")
	}
	if HasCycleIfAdded(g, "a", "c") {
		t.Fatal("expected shortcut a -> c to be safe")
	}
}

func TestHasCycleIfAddedDisconnectedAndMultiPath(t *testing.T) {
	g := NewGraph([]domain.DependencyEdge{
		edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d"),
		edge("x", "y"),
	})
	if !HasCycleIfAdded(g, "d", "a") {
		t.Fatal("expected d -> a to close a cycle through either path")
	}
	if HasCycleIfAdded(g, "y", "a") {
		t.Fatal("expected edge across components to be safe")
	}
	if !HasCycleIfAdded(g.WithProposedEdge("y", "a"), "d", "x") {
		t.Fatal("expected cycle through joined components")
	}
}

func TestFindCyclePath(t *testing.T) {
	g := NewGraph([]domain.DependencyEdge{edge("a", "b"), edge("b", "c")})
	got := FindCyclePath(g, "c", "a")
	if !slices.Equal(got, []string{"c", "a", "b", "c"}) {
		t.Fatalf("unexpected cycle path %v", got)
	}
	if got := FindCyclePath(g, "c", "d"); got != nil {
		t.Fatalf("expected nil path, got %v", got)
	}
	if got := FindCyclePath(g, "a", "a"); !slices.Equal(got, []string{"a", "a"}) {
		t.Fatalf("unexpected self-loop path %v", got)
	}
}

func TestHasCycle(t *testing.T) {
	if HasCycle(NewGraph(nil)) {
		t.Fatal("expected empty graph to be acyclic")
	}
	acyclic := NewGraph([]domain.DependencyEdge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")})
	if HasCycle(acyclic) {
		t.Fatal("expected diamond to be acyclic")
	}
	if !HasCycle(acyclic.WithProposedEdge("d", "a")) {
		t.Fatal("expected closing edge to produce a cycle")
	}
}

func TestSingleSourceAgreesWithFullScan(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 200; round++ {
		n := 2 + r.IntN(10)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("m%02d", i)
		}
		// Edges only point from higher to lower index, so the base graph is acyclic.
		var edges []domain.DependencyEdge
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if r.IntN(4) == 0 {
					edges = append(edges, edge(ids[i], ids[j]))
				}
			}
		}
		g := NewGraph(edges).WithNodes(ids...)
		if HasCycle(g) {
			t.Fatalf("round %d: generated graph is cyclic", round)
		}
		for _, from := range ids {
			for _, to := range ids {
				single := HasCycleIfAdded(g, from, to)
				full := from == to || HasCycle(g.WithProposedEdge(from, to))
				if single != full {
					t.Fatalf("round %d: %s -> %s single=%v full=%v", round, from, to, single, full)
				}
				if path := FindCyclePath(g, from, to); (path != nil) != single {
					t.Fatalf("round %d: %s -> %s path=%v cycle=%v", round, from, to, path, single)
				}
			}
		}
	}
}
