package app

import (
	"context"

	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// Repository is the storage collaborator the service reads snapshots from and commits to.
type Repository interface {
	CreateMilestone(context.Context, domain.Milestone) error
	UpdateMilestone(context.Context, domain.Milestone) error
	GetMilestone(context.Context, string) (domain.Milestone, error)
	ListMilestones(context.Context, string) ([]domain.Milestone, error)
	DeleteMilestone(context.Context, string) error

	// CreateDependency must fail with domain.ErrDuplicateDependency when the pair exists
	// and with domain.ErrCircularDependency when the committed graph would become cyclic.
	CreateDependency(context.Context, domain.DependencyEdge) error
	GetDependency(context.Context, string) (domain.DependencyEdge, error)
	ListDependencies(context.Context, string) ([]domain.DependencyEdge, error)
	DeleteDependency(context.Context, string) error

	UpsertTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	ListTasks(context.Context, string) ([]domain.Task, error)
	CreateTaskLink(context.Context, domain.TaskLink) error
	DeleteTaskLink(context.Context, string, string) error
	ListLinkedTasks(context.Context, string) ([]domain.LinkedTaskStatus, error)
	ListTenantTaskLinks(context.Context, string) ([]domain.TaskLink, error)

	CreateAssignment(context.Context, domain.MilestoneAssignment) error
	DeleteAssignment(context.Context, string, string) error
	ListAssignments(context.Context, string) ([]domain.MilestoneAssignment, error)
	ListTenantAssignments(context.Context, string) ([]domain.MilestoneAssignment, error)
}

// Observer receives engine outcomes for metrics.
type Observer interface {
	DependencyDecision(reason planning.RejectReason)
	LayoutComputed(milestones, rows int)
	DegenerateTasks(milestoneID string, count int)
}

type noopObserver struct{}

func (noopObserver) DependencyDecision(planning.RejectReason) {}
func (noopObserver) LayoutComputed(int, int)                  {}
func (noopObserver) DegenerateTasks(string, int)              {}
