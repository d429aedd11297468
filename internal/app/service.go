package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Layout   planning.LayoutOptions
	Observer Observer
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates storage with the planning engine.
type Service struct {
	repo     Repository
	idGen    IDGenerator
	clock    Clock
	layout   planning.LayoutOptions
	observer Observer
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &Service{
		repo:     repo,
		idGen:    idGen,
		clock:    clock,
		layout:   cfg.Layout,
		observer: cfg.Observer,
	}
}

// CreateMilestoneInput holds input values for create milestone operations.
type CreateMilestoneInput struct {
	TenantID           string
	Name               string
	Description        string
	StartDate          time.Time
	DueDate            time.Time
	Status             domain.MilestoneStatus
	Priority           domain.Priority
	Color              string
	ProgressMode       domain.ProgressMode
	ProgressPercentage int
}

// CreateMilestone creates milestone.
func (s *Service) CreateMilestone(ctx context.Context, in CreateMilestoneInput) (domain.Milestone, error) {
	m, err := domain.NewMilestone(domain.MilestoneInput{
		ID:                 s.idGen(),
		TenantID:           in.TenantID,
		Name:               in.Name,
		Description:        in.Description,
		StartDate:          in.StartDate,
		DueDate:            in.DueDate,
		Status:             in.Status,
		Priority:           in.Priority,
		Color:              in.Color,
		ProgressMode:       in.ProgressMode,
		ProgressPercentage: in.ProgressPercentage,
	}, s.clock())
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := s.repo.CreateMilestone(ctx, m); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// UpdateMilestoneInput holds a partial milestone update. Nil fields are left unchanged.
type UpdateMilestoneInput struct {
	TenantID           string
	MilestoneID        string
	Name               *string
	Description        *string
	StartDate          *time.Time
	DueDate            *time.Time
	Status             *domain.MilestoneStatus
	Priority           *domain.Priority
	Color              *string
	ProgressMode       *domain.ProgressMode
	ProgressPercentage *int
}

// UpdateMilestone updates state for the requested operation.
func (s *Service) UpdateMilestone(ctx context.Context, in UpdateMilestoneInput) (domain.Milestone, error) {
	m, err := s.GetMilestone(ctx, in.TenantID, in.MilestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	d := m.Details()
	if in.Name != nil {
		d.Name = *in.Name
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.StartDate != nil {
		d.StartDate = *in.StartDate
	}
	if in.DueDate != nil {
		d.DueDate = *in.DueDate
	}
	if in.Status != nil {
		d.Status = *in.Status
	}
	if in.Priority != nil {
		d.Priority = *in.Priority
	}
	if in.Color != nil {
		d.Color = *in.Color
	}
	if in.ProgressMode != nil {
		d.ProgressMode = *in.ProgressMode
	}
	if in.ProgressPercentage != nil {
		d.ProgressPercentage = *in.ProgressPercentage
	}
	if err := m.UpdateDetails(d, s.clock()); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.repo.UpdateMilestone(ctx, m); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// SetMilestoneStatus changes only the status of one milestone.
func (s *Service) SetMilestoneStatus(ctx context.Context, tenantID, milestoneID string, status domain.MilestoneStatus) (domain.Milestone, error) {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := m.SetStatus(status, s.clock()); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.repo.UpdateMilestone(ctx, m); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// GetMilestone returns one milestone owned by tenantID.
func (s *Service) GetMilestone(ctx context.Context, tenantID, milestoneID string) (domain.Milestone, error) {
	tenantID = strings.TrimSpace(tenantID)
	milestoneID = strings.TrimSpace(milestoneID)
	if tenantID == "" {
		return domain.Milestone{}, domain.ErrInvalidTenantID
	}
	if milestoneID == "" {
		return domain.Milestone{}, domain.ErrInvalidID
	}
	m, err := s.repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if m.TenantID != tenantID {
		return domain.Milestone{}, ErrNotFound
	}
	return m, nil
}

// ListMilestones lists a tenant's milestones ordered by start date, then name.
func (s *Service) ListMilestones(ctx context.Context, tenantID string) ([]domain.Milestone, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, domain.ErrInvalidTenantID
	}
	ms, err := s.repo.ListMilestones(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ms, func(a, b domain.Milestone) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return ms, nil
}

// DeleteMilestone deletes a milestone. Storage cascades its edges, links and assignments.
func (s *Service) DeleteMilestone(ctx context.Context, tenantID, milestoneID string) error {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return err
	}
	return s.repo.DeleteMilestone(ctx, m.ID)
}

// MilestoneView is a milestone with its derived display state.
type MilestoneView struct {
	Milestone         domain.Milestone
	Progress          int
	Overdue           bool
	DependsOn         []string
	Dependents        []string
	DegenerateTaskIDs []string
}

// GetMilestoneView returns one milestone with progress, overdue state and neighbors.
func (s *Service) GetMilestoneView(ctx context.Context, tenantID, milestoneID string) (MilestoneView, error) {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return MilestoneView{}, err
	}
	edges, err := s.repo.ListDependencies(ctx, m.TenantID)
	if err != nil {
		return MilestoneView{}, err
	}
	return s.milestoneView(ctx, m, edges)
}

// ListMilestoneViews returns views for every milestone of a tenant.
func (s *Service) ListMilestoneViews(ctx context.Context, tenantID string) ([]MilestoneView, error) {
	ms, err := s.ListMilestones(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	edges, err := s.repo.ListDependencies(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return nil, err
	}
	out := make([]MilestoneView, 0, len(ms))
	for _, m := range ms {
		view, err := s.milestoneView(ctx, m, edges)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) milestoneView(ctx context.Context, m domain.Milestone, edges []domain.DependencyEdge) (MilestoneView, error) {
	linked, err := s.repo.ListLinkedTasks(ctx, m.ID)
	if err != nil {
		return MilestoneView{}, err
	}
	res := s.progress(m, linked)
	g := planning.NewGraph(edges)
	view := MilestoneView{
		Milestone:         m,
		Progress:          res.Value,
		Overdue:           planning.IsOverdue(m, s.clock()),
		DependsOn:         g.Neighbors(m.ID),
		Dependents:        []string{},
		DegenerateTaskIDs: res.DegenerateTaskIDs,
	}
	for _, e := range edges {
		if e.DependsOnMilestoneID == m.ID && !slices.Contains(view.Dependents, e.MilestoneID) {
			view.Dependents = append(view.Dependents, e.MilestoneID)
		}
	}
	slices.Sort(view.Dependents)
	return view, nil
}

func (s *Service) progress(m domain.Milestone, linked []domain.LinkedTaskStatus) planning.ProgressResult {
	res := planning.ComputeProgress(m, planning.LinkedTasksFromStatuses(linked))
	if len(res.DegenerateTaskIDs) > 0 {
		s.observer.DegenerateTasks(m.ID, len(res.DegenerateTaskIDs))
	}
	return res
}

// UpsertTaskInput holds the external task snapshot to store.
type UpsertTaskInput struct {
	TenantID string
	TaskID   string
	Title    string
	Status   domain.TaskStatus
}

// UpsertTask stores or refreshes an external task snapshot.
func (s *Service) UpsertTask(ctx context.Context, in UpsertTaskInput) (domain.Task, error) {
	task, err := domain.NewTask(in.TaskID, in.TenantID, in.Title, in.Status, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	existing, err := s.repo.GetTask(ctx, task.ID)
	switch {
	case err == nil && existing.TenantID != task.TenantID:
		return domain.Task{}, ErrNotFound
	case err != nil && !errors.Is(err, ErrNotFound):
		return domain.Task{}, err
	}
	if err := s.repo.UpsertTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// LinkTaskInput holds input values for link task operations.
type LinkTaskInput struct {
	TenantID    string
	MilestoneID string
	TaskID      string
	Weight      int
}

// LinkTask links a task of the same tenant to a milestone.
func (s *Service) LinkTask(ctx context.Context, in LinkTaskInput) (domain.TaskLink, error) {
	m, err := s.GetMilestone(ctx, in.TenantID, in.MilestoneID)
	if err != nil {
		return domain.TaskLink{}, err
	}
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(in.TaskID))
	if err != nil {
		return domain.TaskLink{}, err
	}
	if task.TenantID != m.TenantID {
		return domain.TaskLink{}, ErrNotFound
	}
	link, err := domain.NewTaskLink(m.ID, task.ID, in.Weight, s.clock())
	if err != nil {
		return domain.TaskLink{}, err
	}
	if err := s.repo.CreateTaskLink(ctx, link); err != nil {
		return domain.TaskLink{}, err
	}
	return link, nil
}

// UnlinkTask removes one task link.
func (s *Service) UnlinkTask(ctx context.Context, tenantID, milestoneID, taskID string) error {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return err
	}
	return s.repo.DeleteTaskLink(ctx, m.ID, strings.TrimSpace(taskID))
}

// ListTaskLinks lists a milestone's linked tasks with their current status.
func (s *Service) ListTaskLinks(ctx context.Context, tenantID, milestoneID string) ([]domain.LinkedTaskStatus, error) {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLinkedTasks(ctx, m.ID)
}

// ProgressReport explains how a milestone's progress was derived.
type ProgressReport struct {
	MilestoneID       string
	Mode              domain.ProgressMode
	Progress          int
	Overdue           bool
	Tasks             []domain.LinkedTaskStatus
	CompletedWeight   int
	TotalWeight       int
	DegenerateTaskIDs []string
}

// MilestoneProgress computes the effective progress of one milestone.
func (s *Service) MilestoneProgress(ctx context.Context, tenantID, milestoneID string) (ProgressReport, error) {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return ProgressReport{}, err
	}
	linked, err := s.repo.ListLinkedTasks(ctx, m.ID)
	if err != nil {
		return ProgressReport{}, err
	}
	res := s.progress(m, linked)
	report := ProgressReport{
		MilestoneID:       m.ID,
		Mode:              m.ProgressMode,
		Progress:          res.Value,
		Overdue:           planning.IsOverdue(m, s.clock()),
		Tasks:             linked,
		DegenerateTaskIDs: res.DegenerateTaskIDs,
	}
	for _, t := range linked {
		w := max(t.Weight, 1)
		report.TotalWeight += w
		if t.Status.IsCompleted() {
			report.CompletedWeight += w
		}
	}
	return report, nil
}

// AssignUser assigns a user to a milestone with a role label.
func (s *Service) AssignUser(ctx context.Context, tenantID, milestoneID, userID, role string) (domain.MilestoneAssignment, error) {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return domain.MilestoneAssignment{}, err
	}
	a, err := domain.NewMilestoneAssignment(m.ID, userID, role, s.clock())
	if err != nil {
		return domain.MilestoneAssignment{}, err
	}
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return domain.MilestoneAssignment{}, err
	}
	return a, nil
}

// UnassignUser removes a user from a milestone.
func (s *Service) UnassignUser(ctx context.Context, tenantID, milestoneID, userID string) error {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return err
	}
	return s.repo.DeleteAssignment(ctx, m.ID, strings.TrimSpace(userID))
}

// ListAssignments lists a milestone's assignments.
func (s *Service) ListAssignments(ctx context.Context, tenantID, milestoneID string) ([]domain.MilestoneAssignment, error) {
	m, err := s.GetMilestone(ctx, tenantID, milestoneID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, m.ID)
}
