package planning

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/hylla/waypoint/internal/domain"
)

// Layout defaults.
const (
	DefaultPaddingRatio = 0.10
	DefaultGapRatio     = 0.02
	DefaultMinWindow    = 24 * time.Hour
)

// LayoutItem is one dated milestone to place on the timeline.
type LayoutItem struct {
	ID    string
	Start time.Time
	Due   time.Time
}

// LayoutItemsFromMilestones converts milestones into layout input.
func LayoutItemsFromMilestones(ms []domain.Milestone) []LayoutItem {
	out := make([]LayoutItem, 0, len(ms))
	for _, m := range ms {
		out = append(out, LayoutItem{ID: m.ID, Start: m.StartDate, Due: m.DueDate})
	}
	return out
}

// LayoutOptions tunes the timeline window. Zero values select the defaults.
type LayoutOptions struct {
	PaddingRatio float64
	GapRatio     float64
	MinWindow    time.Duration
}

func (o LayoutOptions) normalized() LayoutOptions {
	if o.PaddingRatio <= 0 {
		o.PaddingRatio = DefaultPaddingRatio
	}
	if o.GapRatio <= 0 {
		o.GapRatio = DefaultGapRatio
	}
	if o.MinWindow <= 0 {
		o.MinWindow = DefaultMinWindow
	}
	return o
}

// Placement is the computed row and horizontal span of one milestone.
type Placement struct {
	MilestoneID   string
	Row           int
	StartFraction float64
	EndFraction   float64
}

// Roadmap is the result of a layout pass.
type Roadmap struct {
	WindowStart time.Time
	WindowEnd   time.Time
	RowCount    int
	GapRatio    float64
	Placements  []Placement
}

// Placement looks up the placement of one milestone.
func (r Roadmap) Placement(id string) (Placement, bool) {
	for _, p := range r.Placements {
		if p.MilestoneID == id {
			return p, true
		}
	}
	return Placement{}, false
}

// Layout places items on rows so that no two items sharing a row overlap.
//
// The window spans the earliest start to the latest due date, padded on both sides by
// PaddingRatio of its length and widened to MinWindow around its midpoint when shorter.
// Items are visited by start then id and each goes to the lowest row whose last item
// ends at or before its start minus the gap; otherwise a new row opens. The output does
// not depend on input order.
func Layout(items []LayoutItem, opts LayoutOptions) Roadmap {
	opts = opts.normalized()
	if len(items) == 0 {
		start := time.Unix(0, 0).UTC()
		return Roadmap{WindowStart: start, WindowEnd: start.Add(opts.MinWindow), GapRatio: opts.GapRatio, Placements: []Placement{}}
	}

	sorted := make([]LayoutItem, len(items))
	copy(sorted, items)
	for i := range sorted {
		if sorted[i].Due.Before(sorted[i].Start) {
			sorted[i].Start, sorted[i].Due = sorted[i].Due, sorted[i].Start
		}
	}
	slices.SortFunc(sorted, func(a, b LayoutItem) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := strings.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return a.Due.Compare(b.Due)
	})

	minStart, maxDue := sorted[0].Start, sorted[0].Due
	for _, it := range sorted[1:] {
		if it.Due.After(maxDue) {
			maxDue = it.Due
		}
	}
	ws, we := window(minStart, maxDue, opts)
	span := float64(we.Sub(ws))
	fraction := func(t time.Time) float64 {
		return float64(t.Sub(ws)) / span
	}

	roadmap := Roadmap{WindowStart: ws, WindowEnd: we, GapRatio: opts.GapRatio, Placements: make([]Placement, 0, len(sorted))}
	var rowEnds []float64
	for _, it := range sorted {
		p := Placement{
			MilestoneID:   it.ID,
			StartFraction: fraction(it.Start),
			EndFraction:   fraction(it.Due),
		}
		p.Row = -1
		for row, end := range rowEnds {
			if end <= p.StartFraction-opts.GapRatio {
				p.Row = row
				break
			}
		}
		if p.Row < 0 {
			p.Row = len(rowEnds)
			rowEnds = append(rowEnds, 0)
		}
		rowEnds[p.Row] = p.EndFraction
		roadmap.Placements = append(roadmap.Placements, p)
	}
	roadmap.RowCount = len(rowEnds)
	return roadmap
}

func window(minStart, maxDue time.Time, opts LayoutOptions) (time.Time, time.Time) {
	length := maxDue.Sub(minStart)
	pad := time.Duration(float64(length) * opts.PaddingRatio)
	ws, we := minStart.Add(-pad), maxDue.Add(pad)
	if we.Sub(ws) < opts.MinWindow {
		mid := minStart.Add(length / 2)
		ws = mid.Add(-opts.MinWindow / 2)
		we = ws.Add(opts.MinWindow)
	}
	return ws, we
}

// Arrow joins the placements of the two ends of a dependency edge.
// From is the prerequisite and To the dependent milestone.
type Arrow struct {
	EdgeID       string
	Type         domain.DependencyType
	FromID       string
	ToID         string
	FromRow      int
	ToRow        int
	FromFraction float64
	ToFraction   float64
}

// ResolveArrows anchors each edge on the layout. The dependency type picks the anchor on
// each end, for example finish_to_start runs from the prerequisite's end to the dependent's
// start. Edges whose endpoints are not laid out are skipped.
func ResolveArrows(r Roadmap, edges []domain.DependencyEdge) []Arrow {
	out := make([]Arrow, 0, len(edges))
	for _, e := range edges {
		from, ok := r.Placement(e.DependsOnMilestoneID)
		if !ok {
			continue
		}
		to, ok := r.Placement(e.MilestoneID)
		if !ok {
			continue
		}
		typ := domain.NormalizeDependencyType(e.Type)
		fromAnchor, toAnchor := anchors(typ)
		out = append(out, Arrow{
			EdgeID:       e.ID,
			Type:         typ,
			FromID:       from.MilestoneID,
			ToID:         to.MilestoneID,
			FromRow:      from.Row,
			ToRow:        to.Row,
			FromFraction: fromAnchor(from),
			ToFraction:   toAnchor(to),
		})
	}
	slices.SortFunc(out, func(a, b Arrow) int {
		return cmp.Or(
			strings.Compare(a.FromID, b.FromID),
			strings.Compare(a.ToID, b.ToID),
			strings.Compare(a.EdgeID, b.EdgeID),
		)
	})
	return out
}

func anchors(t domain.DependencyType) (func(Placement) float64, func(Placement) float64) {
	start := func(p Placement) float64 { return p.StartFraction }
	end := func(p Placement) float64 { return p.EndFraction }
	switch t {
	case domain.StartToStart:
		return start, start
	case domain.FinishToFinish:
		return end, end
	case domain.StartToFinish:
		return start, end
	default:
		return end, start
	}
}
