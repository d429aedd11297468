package app

import (
	"context"
	"strings"
	"time"

	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// RoadmapView is a laid-out timeline for one tenant.
type RoadmapView struct {
	TenantID   string
	Layout     planning.Roadmap
	Arrows     []planning.Arrow
	Milestones []MilestoneView
	Warnings   []planning.ScheduleWarning
}

// Roadmap lays out every milestone of a tenant and resolves its dependency arrows.
// Milestones are returned in placement order.
func (s *Service) Roadmap(ctx context.Context, tenantID string) (RoadmapView, error) {
	tenantID = strings.TrimSpace(tenantID)
	views, err := s.ListMilestoneViews(ctx, tenantID)
	if err != nil {
		return RoadmapView{}, err
	}
	edges, err := s.repo.ListDependencies(ctx, tenantID)
	if err != nil {
		return RoadmapView{}, err
	}
	ms := make([]domain.Milestone, 0, len(views))
	byID := make(map[string]MilestoneView, len(views))
	for _, v := range views {
		ms = append(ms, v.Milestone)
		byID[v.Milestone.ID] = v
	}

	layout := planning.Layout(planning.LayoutItemsFromMilestones(ms), s.layout)
	s.observer.LayoutComputed(len(ms), layout.RowCount)

	ordered := make([]MilestoneView, 0, len(layout.Placements))
	for _, p := range layout.Placements {
		ordered = append(ordered, byID[p.MilestoneID])
	}
	return RoadmapView{
		TenantID:   tenantID,
		Layout:     layout,
		Arrows:     planning.ResolveArrows(layout, edges),
		Milestones: ordered,
		Warnings:   planning.ScheduleWarnings(ms, edges),
	}, nil
}

// DependencyRollup summarizes milestone and dependency state for a tenant.
type DependencyRollup struct {
	TenantID                   string
	Milestones                 int
	CompletedMilestones        int
	OverdueMilestones          int
	MilestonesWithDependencies int
	DependencyEdges            int
	BlockedMilestones          int
	UnresolvedDependencyEdges  int
	ScheduleWarnings           int
}

// DependencyRollup summarizes dependency and blocked-state counts.
func (s *Service) DependencyRollup(ctx context.Context, tenantID string) (DependencyRollup, error) {
	ms, err := s.ListMilestones(ctx, tenantID)
	if err != nil {
		return DependencyRollup{}, err
	}
	edges, err := s.repo.ListDependencies(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return DependencyRollup{}, err
	}
	return buildDependencyRollup(strings.TrimSpace(tenantID), ms, edges, s.clock()), nil
}

func buildDependencyRollup(tenantID string, ms []domain.Milestone, edges []domain.DependencyEdge, now time.Time) DependencyRollup {
	rollup := DependencyRollup{
		TenantID:         tenantID,
		Milestones:       len(ms),
		DependencyEdges:  len(edges),
		ScheduleWarnings: len(planning.ScheduleWarnings(ms, edges)),
	}
	statusByID := make(map[string]domain.MilestoneStatus, len(ms))
	for _, m := range ms {
		statusByID[m.ID] = m.Status
		if m.Status == domain.StatusCompleted {
			rollup.CompletedMilestones++
		}
		if m.IsOverdue(now) {
			rollup.OverdueMilestones++
		}
	}
	withDeps := map[string]struct{}{}
	blocked := map[string]struct{}{}
	for _, e := range edges {
		withDeps[e.MilestoneID] = struct{}{}
		// Edges are unresolved when the prerequisite is missing or not completed.
		if status, ok := statusByID[e.DependsOnMilestoneID]; !ok || status != domain.StatusCompleted {
			rollup.UnresolvedDependencyEdges++
			blocked[e.MilestoneID] = struct{}{}
		}
	}
	rollup.MilestonesWithDependencies = len(withDeps)
	rollup.BlockedMilestones = len(blocked)
	return rollup
}
