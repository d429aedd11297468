package app

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// DependencyInput holds input values for dependency operations.
// MilestoneID depends on DependsOnMilestoneID.
type DependencyInput struct {
	TenantID             string
	MilestoneID          string
	DependsOnMilestoneID string
	Type                 domain.DependencyType
	LagDays              int
}

// CheckDependency validates a proposed edge against the tenant's current edges
// without writing anything.
func (s *Service) CheckDependency(ctx context.Context, in DependencyInput) (planning.Decision, error) {
	decision, _, err := s.checkDependency(ctx, in)
	return decision, err
}

func (s *Service) checkDependency(ctx context.Context, in DependencyInput) (planning.Decision, []domain.DependencyEdge, error) {
	dependent, err := s.GetMilestone(ctx, in.TenantID, in.MilestoneID)
	if err != nil {
		return planning.Decision{}, nil, err
	}
	prerequisiteID := strings.TrimSpace(in.DependsOnMilestoneID)
	if prerequisiteID == "" {
		return planning.Decision{}, nil, domain.ErrInvalidID
	}
	// The prerequisite is resolved without tenant scoping so the validator can
	// report a cross-tenant edge instead of a missing milestone.
	prerequisite := dependent
	if prerequisiteID != dependent.ID {
		prerequisite, err = s.repo.GetMilestone(ctx, prerequisiteID)
		if err != nil {
			return planning.Decision{}, nil, err
		}
	}
	edges, err := s.repo.ListDependencies(ctx, dependent.TenantID)
	if err != nil {
		return planning.Decision{}, nil, err
	}
	decision := planning.Validate(edges, planning.Candidate{
		Milestone: planning.MilestoneRef{ID: dependent.ID, TenantID: dependent.TenantID},
		DependsOn: planning.MilestoneRef{ID: prerequisite.ID, TenantID: prerequisite.TenantID},
		Type:      in.Type,
		LagDays:   in.LagDays,
	})
	s.observer.DependencyDecision(decision.Reason)
	return decision, edges, nil
}

// AddDependency validates and stores one edge. Rejections return a
// *DependencyRejectedError that unwraps to the domain sentinel.
func (s *Service) AddDependency(ctx context.Context, in DependencyInput) (domain.DependencyEdge, error) {
	decision, edges, err := s.checkDependency(ctx, in)
	if err != nil {
		return domain.DependencyEdge{}, err
	}
	if !decision.Accepted {
		return domain.DependencyEdge{}, &DependencyRejectedError{Decision: decision}
	}
	if slices.ContainsFunc(edges, func(e domain.DependencyEdge) bool {
		return e.MilestoneID == decision.Edge.MilestoneID && e.DependsOnMilestoneID == decision.Edge.DependsOnMilestoneID
	}) {
		return domain.DependencyEdge{}, domain.ErrDuplicateDependency
	}
	edge, err := domain.NewDependencyEdge(domain.DependencyInput{
		ID:                   s.idGen(),
		TenantID:             decision.Edge.TenantID,
		MilestoneID:          decision.Edge.MilestoneID,
		DependsOnMilestoneID: decision.Edge.DependsOnMilestoneID,
		Type:                 decision.Edge.Type,
		LagDays:              decision.Edge.LagDays,
	}, s.clock())
	if err != nil {
		return domain.DependencyEdge{}, err
	}
	// Storage repeats the cycle check inside its write transaction; a concurrent
	// writer may have committed a closing edge after the snapshot above was read.
	if err := s.repo.CreateDependency(ctx, edge); err != nil {
		if errors.Is(err, domain.ErrCircularDependency) {
			s.observer.DependencyDecision(planning.ReasonCircular)
		}
		return domain.DependencyEdge{}, err
	}
	return edge, nil
}

// RemoveDependency deletes one edge owned by tenantID.
func (s *Service) RemoveDependency(ctx context.Context, tenantID, dependencyID string) error {
	tenantID = strings.TrimSpace(tenantID)
	dependencyID = strings.TrimSpace(dependencyID)
	if tenantID == "" {
		return domain.ErrInvalidTenantID
	}
	if dependencyID == "" {
		return domain.ErrInvalidID
	}
	edge, err := s.repo.GetDependency(ctx, dependencyID)
	if err != nil {
		return err
	}
	if edge.TenantID != tenantID {
		return ErrNotFound
	}
	return s.repo.DeleteDependency(ctx, edge.ID)
}

// ListDependencies lists a tenant's edges. A non-empty milestoneID keeps only edges
// touching that milestone on either end.
func (s *Service) ListDependencies(ctx context.Context, tenantID, milestoneID string) ([]domain.DependencyEdge, error) {
	tenantID = strings.TrimSpace(tenantID)
	milestoneID = strings.TrimSpace(milestoneID)
	if tenantID == "" {
		return nil, domain.ErrInvalidTenantID
	}
	edges, err := s.repo.ListDependencies(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if milestoneID != "" {
		edges = slices.DeleteFunc(edges, func(e domain.DependencyEdge) bool {
			return e.MilestoneID != milestoneID && e.DependsOnMilestoneID != milestoneID
		})
	}
	slices.SortFunc(edges, func(a, b domain.DependencyEdge) int {
		if c := strings.Compare(a.MilestoneID, b.MilestoneID); c != 0 {
			return c
		}
		if c := strings.Compare(a.DependsOnMilestoneID, b.DependsOnMilestoneID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return edges, nil
}
