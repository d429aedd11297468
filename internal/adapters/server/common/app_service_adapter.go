package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/waypoint/internal/app"
	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

var _ PlanningService = (*AppServiceAdapter)(nil)

// ListMilestones lists a tenant's milestones with derived progress.
func (a *AppServiceAdapter) ListMilestones(ctx context.Context, tenantID string) ([]MilestoneView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	views, err := a.service.ListMilestoneViews(ctx, tenantID)
	if err != nil {
		return nil, mapAppError("list milestones", err)
	}
	out := make([]MilestoneView, 0, len(views))
	for _, v := range views {
		out = append(out, toMilestoneView(v))
	}
	return out, nil
}

// GetMilestone returns one milestone view.
func (a *AppServiceAdapter) GetMilestone(ctx context.Context, tenantID, milestoneID string) (MilestoneView, error) {
	if err := a.ready(); err != nil {
		return MilestoneView{}, err
	}
	v, err := a.service.GetMilestoneView(ctx, tenantID, milestoneID)
	if err != nil {
		return MilestoneView{}, mapAppError("get milestone", err)
	}
	return toMilestoneView(v), nil
}

// CreateMilestone validates and creates one milestone.
func (a *AppServiceAdapter) CreateMilestone(ctx context.Context, req CreateMilestoneRequest) (Milestone, error) {
	if err := a.ready(); err != nil {
		return Milestone{}, err
	}
	if err := validateRequest(req); err != nil {
		return Milestone{}, err
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return Milestone{}, err
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return Milestone{}, err
	}
	m, err := a.service.CreateMilestone(ctx, app.CreateMilestoneInput{
		TenantID:           req.TenantID,
		Name:               req.Name,
		Description:        req.Description,
		StartDate:          start,
		DueDate:            due,
		Status:             domain.MilestoneStatus(req.Status),
		Priority:           domain.Priority(req.Priority),
		Color:              req.Color,
		ProgressMode:       domain.ProgressMode(req.ProgressMode),
		ProgressPercentage: req.ProgressPercentage,
	})
	if err != nil {
		return Milestone{}, mapAppError("create milestone", err)
	}
	return toMilestone(m), nil
}

// UpdateMilestone applies a partial update.
func (a *AppServiceAdapter) UpdateMilestone(ctx context.Context, req UpdateMilestoneRequest) (Milestone, error) {
	if err := a.ready(); err != nil {
		return Milestone{}, err
	}
	if err := validateRequest(req); err != nil {
		return Milestone{}, err
	}
	in := app.UpdateMilestoneInput{
		TenantID:           req.TenantID,
		MilestoneID:        req.MilestoneID,
		Name:               req.Name,
		Description:        req.Description,
		Color:              req.Color,
		ProgressPercentage: req.ProgressPercentage,
	}
	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return Milestone{}, err
		}
		in.StartDate = &start
	}
	if req.DueDate != nil {
		due, err := parseDate("due_date", *req.DueDate)
		if err != nil {
			return Milestone{}, err
		}
		in.DueDate = &due
	}
	if req.Status != nil {
		status := domain.MilestoneStatus(*req.Status)
		in.Status = &status
	}
	if req.Priority != nil {
		priority := domain.Priority(*req.Priority)
		in.Priority = &priority
	}
	if req.ProgressMode != nil {
		mode := domain.ProgressMode(*req.ProgressMode)
		in.ProgressMode = &mode
	}
	m, err := a.service.UpdateMilestone(ctx, in)
	if err != nil {
		return Milestone{}, mapAppError("update milestone", err)
	}
	return toMilestone(m), nil
}

// DeleteMilestone deletes one milestone.
func (a *AppServiceAdapter) DeleteMilestone(ctx context.Context, tenantID, milestoneID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("delete milestone", a.service.DeleteMilestone(ctx, tenantID, milestoneID))
}

// MilestoneProgress reports how one milestone's progress was derived.
func (a *AppServiceAdapter) MilestoneProgress(ctx context.Context, tenantID, milestoneID string) (ProgressReport, error) {
	if err := a.ready(); err != nil {
		return ProgressReport{}, err
	}
	report, err := a.service.MilestoneProgress(ctx, tenantID, milestoneID)
	if err != nil {
		return ProgressReport{}, mapAppError("milestone progress", err)
	}
	out := ProgressReport{
		MilestoneID:       report.MilestoneID,
		Mode:              string(report.Mode),
		Progress:          report.Progress,
		Overdue:           report.Overdue,
		CompletedWeight:   report.CompletedWeight,
		TotalWeight:       report.TotalWeight,
		Tasks:             make([]LinkedTask, 0, len(report.Tasks)),
		DegenerateTaskIDs: report.DegenerateTaskIDs,
	}
	for _, t := range report.Tasks {
		out.Tasks = append(out.Tasks, LinkedTask{TaskID: t.TaskID, Title: t.Title, Weight: t.Weight, Status: string(t.Status)})
	}
	return out, nil
}

// LinkTask links one task to a milestone.
func (a *AppServiceAdapter) LinkTask(ctx context.Context, req LinkTaskRequest) (TaskLink, error) {
	if err := a.ready(); err != nil {
		return TaskLink{}, err
	}
	if err := validateRequest(req); err != nil {
		return TaskLink{}, err
	}
	link, err := a.service.LinkTask(ctx, app.LinkTaskInput{
		TenantID:    req.TenantID,
		MilestoneID: req.MilestoneID,
		TaskID:      req.TaskID,
		Weight:      req.Weight,
	})
	if err != nil {
		return TaskLink{}, mapAppError("link task", err)
	}
	return TaskLink{MilestoneID: link.MilestoneID, TaskID: link.TaskID, Weight: link.Weight}, nil
}

// UnlinkTask removes one task link.
func (a *AppServiceAdapter) UnlinkTask(ctx context.Context, tenantID, milestoneID, taskID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("unlink task", a.service.UnlinkTask(ctx, tenantID, milestoneID, taskID))
}

// UpsertTask stores one external task snapshot.
func (a *AppServiceAdapter) UpsertTask(ctx context.Context, req UpsertTaskRequest) (Task, error) {
	if err := a.ready(); err != nil {
		return Task{}, err
	}
	if err := validateRequest(req); err != nil {
		return Task{}, err
	}
	task, err := a.service.UpsertTask(ctx, app.UpsertTaskInput{
		TenantID: req.TenantID,
		TaskID:   req.TaskID,
		Title:    req.Title,
		Status:   domain.TaskStatus(req.Status),
	})
	if err != nil {
		return Task{}, mapAppError("upsert task", err)
	}
	return Task{ID: task.ID, Title: task.Title, Status: string(task.Status)}, nil
}

// AssignUser assigns one user to a milestone.
func (a *AppServiceAdapter) AssignUser(ctx context.Context, req AssignUserRequest) (Assignment, error) {
	if err := a.ready(); err != nil {
		return Assignment{}, err
	}
	if err := validateRequest(req); err != nil {
		return Assignment{}, err
	}
	assignment, err := a.service.AssignUser(ctx, req.TenantID, req.MilestoneID, req.UserID, req.Role)
	if err != nil {
		return Assignment{}, mapAppError("assign user", err)
	}
	return Assignment{MilestoneID: assignment.MilestoneID, UserID: assignment.UserID, Role: assignment.Role}, nil
}

// ListDependencies lists a tenant's edges, optionally filtered to one milestone.
func (a *AppServiceAdapter) ListDependencies(ctx context.Context, tenantID, milestoneID string) ([]Dependency, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	edges, err := a.service.ListDependencies(ctx, tenantID, milestoneID)
	if err != nil {
		return nil, mapAppError("list dependencies", err)
	}
	out := make([]Dependency, 0, len(edges))
	for _, e := range edges {
		out = append(out, toDependency(e))
	}
	return out, nil
}

// CheckDependency validates a proposed edge without storing it.
func (a *AppServiceAdapter) CheckDependency(ctx context.Context, req DependencyRequest) (DependencyDecision, error) {
	if err := a.ready(); err != nil {
		return DependencyDecision{}, err
	}
	if err := validateRequest(req); err != nil {
		return DependencyDecision{}, err
	}
	decision, err := a.service.CheckDependency(ctx, toDependencyInput(req))
	if err != nil {
		return DependencyDecision{}, mapAppError("check dependency", err)
	}
	return DependencyDecision{
		Accepted:  decision.Accepted,
		Reason:    string(decision.Reason),
		Message:   decision.Message,
		CyclePath: decision.CyclePath,
	}, nil
}

// AddDependency validates and stores one edge.
func (a *AppServiceAdapter) AddDependency(ctx context.Context, req DependencyRequest) (Dependency, error) {
	if err := a.ready(); err != nil {
		return Dependency{}, err
	}
	if err := validateRequest(req); err != nil {
		return Dependency{}, err
	}
	edge, err := a.service.AddDependency(ctx, toDependencyInput(req))
	if err != nil {
		return Dependency{}, mapAppError("add dependency", err)
	}
	return toDependency(edge), nil
}

// RemoveDependency deletes one edge.
func (a *AppServiceAdapter) RemoveDependency(ctx context.Context, tenantID, dependencyID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return mapAppError("remove dependency", a.service.RemoveDependency(ctx, tenantID, dependencyID))
}

// Roadmap computes the tenant's timeline layout.
func (a *AppServiceAdapter) Roadmap(ctx context.Context, tenantID string) (Roadmap, error) {
	if err := a.ready(); err != nil {
		return Roadmap{}, err
	}
	view, err := a.service.Roadmap(ctx, tenantID)
	if err != nil {
		return Roadmap{}, mapAppError("roadmap", err)
	}
	return toRoadmap(view), nil
}

// Rollup summarizes a tenant's dependency health.
func (a *AppServiceAdapter) Rollup(ctx context.Context, tenantID string) (Rollup, error) {
	if err := a.ready(); err != nil {
		return Rollup{}, err
	}
	r, err := a.service.DependencyRollup(ctx, tenantID)
	if err != nil {
		return Rollup{}, mapAppError("rollup", err)
	}
	return Rollup(r), nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	return nil
}

// mapAppError folds app and domain errors into transport sentinels.
func mapAppError(op string, err error) error {
	if err == nil {
		return nil
	}
	var rejected *app.DependencyRejectedError
	switch {
	case errors.As(err, &rejected):
		return &RejectionError{
			Reason:    string(rejected.Decision.Reason),
			Message:   rejected.Decision.Message,
			CyclePath: rejected.Decision.CyclePath,
		}
	case errors.Is(err, domain.ErrCircularDependency):
		// Storage caught a cycle committed concurrently after the service snapshot.
		return &RejectionError{Reason: string(planning.ReasonCircular), Message: capitalize(err.Error())}
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrDuplicateDependency),
		errors.Is(err, domain.ErrDuplicateTaskLink),
		errors.Is(err, domain.ErrDuplicateAssignment):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err))
	case isDomainValidationErr(err):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isDomainValidationErr(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidID,
		domain.ErrInvalidTenantID,
		domain.ErrInvalidName,
		domain.ErrInvalidTitle,
		domain.ErrInvalidDateRange,
		domain.ErrInvalidStatus,
		domain.ErrInvalidPriority,
		domain.ErrInvalidColor,
		domain.ErrInvalidProgressMode,
		domain.ErrInvalidProgress,
		domain.ErrInvalidWeight,
		domain.ErrInvalidRole,
		domain.ErrInvalidTaskStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a YYYY-MM-DD date", ErrInvalidRequest, field)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

func toDependencyInput(req DependencyRequest) app.DependencyInput {
	return app.DependencyInput{
		TenantID:             req.TenantID,
		MilestoneID:          req.MilestoneID,
		DependsOnMilestoneID: req.DependsOnMilestoneID,
		Type:                 domain.DependencyType(req.Type),
		LagDays:              req.LagDays,
	}
}

func toMilestone(m domain.Milestone) Milestone {
	return Milestone{
		ID:                 m.ID,
		TenantID:           m.TenantID,
		Name:               m.Name,
		Description:        m.Description,
		StartDate:          formatDate(m.StartDate),
		DueDate:            formatDate(m.DueDate),
		Status:             string(m.Status),
		Priority:           string(m.Priority),
		Color:              m.Color,
		ProgressMode:       string(m.ProgressMode),
		ProgressPercentage: m.ProgressPercentage,
	}
}

func toMilestoneView(v app.MilestoneView) MilestoneView {
	return MilestoneView{
		Milestone:         toMilestone(v.Milestone),
		Progress:          v.Progress,
		Overdue:           v.Overdue,
		DependsOn:         nonNil(v.DependsOn),
		Dependents:        nonNil(v.Dependents),
		DegenerateTaskIDs: v.DegenerateTaskIDs,
	}
}

func toDependency(e domain.DependencyEdge) Dependency {
	return Dependency{
		ID:                   e.ID,
		MilestoneID:          e.MilestoneID,
		DependsOnMilestoneID: e.DependsOnMilestoneID,
		Type:                 string(e.Type),
		LagDays:              e.LagDays,
	}
}

func toRoadmap(view app.RoadmapView) Roadmap {
	out := Roadmap{
		TenantID:    view.TenantID,
		WindowStart: view.Layout.WindowStart.UTC().Format(time.RFC3339),
		WindowEnd:   view.Layout.WindowEnd.UTC().Format(time.RFC3339),
		RowCount:    view.Layout.RowCount,
		Placements:  make([]Placement, 0, len(view.Layout.Placements)),
		Arrows:      make([]Arrow, 0, len(view.Arrows)),
		Milestones:  make([]MilestoneView, 0, len(view.Milestones)),
		Warnings:    make([]ScheduleWarning, 0, len(view.Warnings)),
	}
	for _, p := range view.Layout.Placements {
		out.Placements = append(out.Placements, Placement(p))
	}
	for _, arrow := range view.Arrows {
		out.Arrows = append(out.Arrows, Arrow{
			DependencyID: arrow.EdgeID,
			Type:         string(arrow.Type),
			FromID:       arrow.FromID,
			ToID:         arrow.ToID,
			FromRow:      arrow.FromRow,
			ToRow:        arrow.ToRow,
			FromFraction: arrow.FromFraction,
			ToFraction:   arrow.ToFraction,
		})
	}
	for _, v := range view.Milestones {
		out.Milestones = append(out.Milestones, toMilestoneView(v))
	}
	for _, w := range view.Warnings {
		out.Warnings = append(out.Warnings, toScheduleWarning(w))
	}
	return out
}

func toScheduleWarning(w planning.ScheduleWarning) ScheduleWarning {
	return ScheduleWarning{
		DependencyID:         w.EdgeID,
		MilestoneID:          w.MilestoneID,
		DependsOnMilestoneID: w.DependsOnMilestoneID,
		Type:                 string(w.Type),
		LagDays:              w.LagDays,
		Required:             formatDate(w.Required),
		Actual:               formatDate(w.Actual),
		SlipDays:             w.SlipDays,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
