package planning

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/hylla/waypoint/internal/domain"
)

// ScheduleWarning reports an edge whose dates contradict its type and lag.
// Warnings are advisory; no dates are moved.
type ScheduleWarning struct {
	EdgeID               string
	MilestoneID          string
	DependsOnMilestoneID string
	Type                 domain.DependencyType
	LagDays              int
	Required             time.Time
	Actual               time.Time
	SlipDays             int
}

// ScheduleWarnings checks every edge whose endpoints are both present in milestones.
//
//	finish_to_start:  dependent start >= prerequisite due + lag
//	start_to_start:   dependent start >= prerequisite start + lag
//	finish_to_finish: dependent due >= prerequisite due + lag
//	start_to_finish:  dependent due >= prerequisite start + lag
func ScheduleWarnings(milestones []domain.Milestone, edges []domain.DependencyEdge) []ScheduleWarning {
	byID := make(map[string]domain.Milestone, len(milestones))
	for _, m := range milestones {
		byID[m.ID] = m
	}
	var out []ScheduleWarning
	for _, e := range edges {
		dep, ok := byID[e.MilestoneID]
		if !ok {
			continue
		}
		pre, ok := byID[e.DependsOnMilestoneID]
		if !ok {
			continue
		}
		typ := domain.NormalizeDependencyType(e.Type)
		var base, actual time.Time
		switch typ {
		case domain.StartToStart:
			base, actual = pre.StartDate, dep.StartDate
		case domain.FinishToFinish:
			base, actual = pre.DueDate, dep.DueDate
		case domain.StartToFinish:
			base, actual = pre.StartDate, dep.DueDate
		default:
			base, actual = pre.DueDate, dep.StartDate
		}
		required := domain.NormalizeDate(base).AddDate(0, 0, e.LagDays)
		actual = domain.NormalizeDate(actual)
		if !actual.Before(required) {
			continue
		}
		out = append(out, ScheduleWarning{
			EdgeID:               e.ID,
			MilestoneID:          e.MilestoneID,
			DependsOnMilestoneID: e.DependsOnMilestoneID,
			Type:                 typ,
			LagDays:              e.LagDays,
			Required:             required,
			Actual:               actual,
			SlipDays:             int(required.Sub(actual).Hours() / 24),
		})
	}
	slices.SortFunc(out, func(a, b ScheduleWarning) int {
		return cmp.Or(
			strings.Compare(a.MilestoneID, b.MilestoneID),
			strings.Compare(a.DependsOnMilestoneID, b.DependsOnMilestoneID),
			strings.Compare(a.EdgeID, b.EdgeID),
		)
	})
	return out
}
