package planning

import (
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/hylla/waypoint/internal/domain"
)

func jan(d int) time.Time {
	return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC)
}

func randomItems(r *rand.Rand, n int) []LayoutItem {
	items := make([]LayoutItem, n)
	for i := range items {
		start := jan(1).AddDate(0, 0, r.IntN(60))
		items[i] = LayoutItem{
			ID:    fmt.Sprintf("m%03d", i),
			Start: start,
			Due:   start.AddDate(0, 0, r.IntN(20)),
		}
	}
	return items
}

func TestLayoutEmpty(t *testing.T) {
	roadmap := Layout(nil, LayoutOptions{})
	if roadmap.RowCount != 0 || len(roadmap.Placements) != 0 {
		t.Fatalf("unexpected roadmap %#v", roadmap)
	}
	if roadmap.WindowEnd.Sub(roadmap.WindowStart) != DefaultMinWindow {
		t.Fatalf("expected minimum window, got %s", roadmap.WindowEnd.Sub(roadmap.WindowStart))
	}
}

func TestLayoutSingleInstant(t *testing.T) {
	roadmap := Layout([]LayoutItem{{ID: "a", Start: jan(5), Due: jan(5)}}, LayoutOptions{})
	p, ok := roadmap.Placement("a")
	if !ok {
		t.Fatal("expected placement for a")
	}
	if p.Row != 0 || p.StartFraction != 0.5 || p.EndFraction != 0.5 {
		t.Fatalf("unexpected placement %#v", p)
	}
	if roadmap.WindowEnd.Sub(roadmap.WindowStart) != DefaultMinWindow {
		t.Fatalf("expected minimum window, got %s", roadmap.WindowEnd.Sub(roadmap.WindowStart))
	}
}

func TestLayoutPaddedWindow(t *testing.T) {
	roadmap := Layout([]LayoutItem{{ID: "a", Start: jan(1), Due: jan(11)}}, LayoutOptions{})
	if !roadmap.WindowStart.Equal(jan(1).Add(-24*time.Hour)) || !roadmap.WindowEnd.Equal(jan(12)) {
		t.Fatalf("unexpected window %s..%s", roadmap.WindowStart, roadmap.WindowEnd)
	}
	p, _ := roadmap.Placement("a")
	if math.Abs(p.StartFraction-1.0/12) > 1e-9 || math.Abs(p.EndFraction-11.0/12) > 1e-9 {
		t.Fatalf("unexpected fractions %#v", p)
	}
}

func TestLayoutSequentialItemsShareRow(t *testing.T) {
	roadmap := Layout([]LayoutItem{
		{ID: "a", Start: jan(1), Due: jan(5)},
		{ID: "b", Start: jan(10), Due: jan(15)},
		{ID: "c", Start: jan(20), Due: jan(30)},
	}, LayoutOptions{})
	if roadmap.RowCount != 1 {
		t.Fatalf("expected one row, got %d", roadmap.RowCount)
	}
}

func TestLayoutGapForcesNewRow(t *testing.T) {
	// Over a window of about 100 days, b starts one day after a ends, which is inside the 2% gap.
	roadmap := Layout([]LayoutItem{
		{ID: "a", Start: jan(1), Due: jan(10)},
		{ID: "b", Start: jan(11), Due: jan(1).AddDate(0, 0, 83)},
	}, LayoutOptions{PaddingRatio: 0.1})
	if roadmap.RowCount != 2 {
		t.Fatalf("expected gap to force a second row, got %d", roadmap.RowCount)
	}
}

func TestLayoutNonOverlapProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 8))
	for round := 0; round < 200; round++ {
		roadmap := Layout(randomItems(r, 1+r.IntN(25)), LayoutOptions{})
		for i, a := range roadmap.Placements {
			if a.StartFraction < 0 || a.EndFraction > 1 || a.StartFraction > a.EndFraction {
				t.Fatalf("round %d: placement out of range %#v", round, a)
			}
			for _, b := range roadmap.Placements[i+1:] {
				if a.Row != b.Row {
					continue
				}
				first, second := a, b
				if second.StartFraction < first.StartFraction {
					first, second = second, first
				}
				if first.EndFraction > second.StartFraction-roadmap.GapRatio {
					t.Fatalf("round %d: %s and %s overlap on row %d", round, first.MilestoneID, second.MilestoneID, a.Row)
				}
			}
		}
	}
}

func TestLayoutRowCountIsMinimal(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	for round := 0; round < 200; round++ {
		roadmap := Layout(randomItems(r, 1+r.IntN(25)), LayoutOptions{})
		// The largest set of items that pairwise conflict bounds the row count from below.
		depth := 0
		for _, a := range roadmap.Placements {
			d := 0
			for _, b := range roadmap.Placements {
				if b.StartFraction <= a.StartFraction && !(b.EndFraction <= a.StartFraction-roadmap.GapRatio) {
					d++
				}
			}
			depth = max(depth, d)
		}
		if roadmap.RowCount != depth {
			t.Fatalf("round %d: expected %d rows, got %d", round, depth, roadmap.RowCount)
		}
	}
}

func TestLayoutDeterministicUnderShuffle(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	for round := 0; round < 50; round++ {
		items := randomItems(r, 2+r.IntN(20))
		want := Layout(items, LayoutOptions{})
		shuffled := append([]LayoutItem(nil), items...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := Layout(shuffled, LayoutOptions{}); !reflect.DeepEqual(got, want) {
			t.Fatalf("round %d: layout changed under shuffle\nwant %#v\ngot  %#v", round, want, got)
		}
	}
}

func TestLayoutTieBreaksByID(t *testing.T) {
	roadmap := Layout([]LayoutItem{
		{ID: "b", Start: jan(1), Due: jan(3)},
		{ID: "a", Start: jan(1), Due: jan(3)},
	}, LayoutOptions{})
	if roadmap.Placements[0].MilestoneID != "a" || roadmap.Placements[0].Row != 0 || roadmap.Placements[1].Row != 1 {
		t.Fatalf("unexpected tie-break %#v", roadmap.Placements)
	}
}

func TestResolveArrows(t *testing.T) {
	roadmap := Layout([]LayoutItem{
		{ID: "a", Start: jan(1), Due: jan(10)},
		{ID: "b", Start: jan(12), Due: jan(20)},
	}, LayoutOptions{})
	edges := []domain.DependencyEdge{
		{ID: "e1", MilestoneID: "b", DependsOnMilestoneID: "a", Type: domain.FinishToStart},
		{ID: "e2", MilestoneID: "b", DependsOnMilestoneID: "missing"},
		{ID: "e3", MilestoneID: "b", DependsOnMilestoneID: "a", Type: domain.StartToStart},
	}
	arrows := ResolveArrows(roadmap, edges)
	if len(arrows) != 2 {
		t.Fatalf("expected 2 arrows, got %#v", arrows)
	}
	a, _ := roadmap.Placement("a")
	b, _ := roadmap.Placement("b")
	if arrows[0].EdgeID != "e1" || arrows[0].FromFraction != a.EndFraction || arrows[0].ToFraction != b.StartFraction {
		t.Fatalf("unexpected finish_to_start arrow %#v", arrows[0])
	}
	if arrows[1].EdgeID != "e3" || arrows[1].FromFraction != a.StartFraction || arrows[1].ToFraction != b.StartFraction {
		t.Fatalf("unexpected start_to_start arrow %#v", arrows[1])
	}
}

func TestEndToEndScenario(t *testing.T) {
	items := []LayoutItem{
		{ID: "A", Start: jan(1), Due: jan(10)},
		{ID: "B", Start: jan(5), Due: jan(20)},
		{ID: "C", Start: jan(8), Due: jan(15)},
	}
	roadmap := Layout(items, LayoutOptions{})
	a, _ := roadmap.Placement("A")
	b, _ := roadmap.Placement("B")
	c, _ := roadmap.Placement("C")
	if a.Row == b.Row || a.Row == c.Row || b.Row == c.Row {
		t.Fatalf("expected overlapping milestones on distinct rows, got A=%d B=%d C=%d", a.Row, b.Row, c.Row)
	}
	if roadmap.RowCount != 3 {
		t.Fatalf("expected 3 rows, got %d", roadmap.RowCount)
	}

	var edges []domain.DependencyEdge
	for _, id := range []string{"B", "C"} {
		d := Validate(edges, Candidate{Milestone: ref(id), DependsOn: ref("A")})
		if !d.Accepted {
			t.Fatalf("expected %s depends on A to be accepted, got %q", id, d.Reason)
		}
		d.Edge.ID = id + "-A"
		edges = append(edges, d.Edge)
	}

	// Validation is structural: on its own, A depending on B is fine.
	if d := Validate(nil, Candidate{Milestone: ref("A"), DependsOn: ref("B")}); !d.Accepted {
		t.Fatalf("expected A depends on B to be accepted on an empty graph, got %q", d.Reason)
	}
	// Once B depends on A, the reverse closes a cycle.
	if d := Validate(edges, Candidate{Milestone: ref("A"), DependsOn: ref("B")}); d.Reason != ReasonCircular {
		t.Fatalf("expected A depends on B to be circular after B depends on A, got %q", d.Reason)
	}

	arrows := ResolveArrows(roadmap, edges)
	if len(arrows) != 2 || arrows[0].FromID != "A" || arrows[1].FromID != "A" {
		t.Fatalf("expected both arrows to start at A, got %#v", arrows)
	}
}
