// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"strings"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports writes that collide with existing rows.
var ErrConflict = errors.New("conflict")

// RejectionError carries a dependency rejection to the transports.
type RejectionError struct {
	Reason    string
	Message   string
	CyclePath []string
}

// Error implements error.
func (e *RejectionError) Error() string {
	if len(e.CyclePath) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(e.CyclePath, " -> ") + ")"
}

// PlanningService is the surface the HTTP and MCP adapters call into.
type PlanningService interface {
	ListMilestones(context.Context, string) ([]MilestoneView, error)
	GetMilestone(context.Context, string, string) (MilestoneView, error)
	CreateMilestone(context.Context, CreateMilestoneRequest) (Milestone, error)
	UpdateMilestone(context.Context, UpdateMilestoneRequest) (Milestone, error)
	DeleteMilestone(context.Context, string, string) error
	MilestoneProgress(context.Context, string, string) (ProgressReport, error)

	LinkTask(context.Context, LinkTaskRequest) (TaskLink, error)
	UnlinkTask(context.Context, string, string, string) error
	UpsertTask(context.Context, UpsertTaskRequest) (Task, error)
	AssignUser(context.Context, AssignUserRequest) (Assignment, error)

	ListDependencies(context.Context, string, string) ([]Dependency, error)
	CheckDependency(context.Context, DependencyRequest) (DependencyDecision, error)
	AddDependency(context.Context, DependencyRequest) (Dependency, error)
	RemoveDependency(context.Context, string, string) error

	Roadmap(context.Context, string) (Roadmap, error)
	Rollup(context.Context, string) (Rollup, error)
}

// CreateMilestoneRequest stores transport input for milestone creation.
type CreateMilestoneRequest struct {
	TenantID           string `json:"-" validate:"required,max=128"`
	Name               string `json:"name" validate:"required,max=255"`
	Description        string `json:"description,omitempty" validate:"max=4000"`
	StartDate          string `json:"start_date" validate:"required,datetime=2006-01-02"`
	DueDate            string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Status             string `json:"status,omitempty" validate:"omitempty,milestone_status"`
	Priority           string `json:"priority,omitempty" validate:"omitempty,milestone_priority"`
	Color              string `json:"color,omitempty" validate:"omitempty,milestone_color"`
	ProgressMode       string `json:"progress_mode,omitempty" validate:"omitempty,progress_mode"`
	ProgressPercentage int    `json:"progress_percentage,omitempty" validate:"gte=0,lte=100"`
}

// UpdateMilestoneRequest stores a partial milestone update; nil fields are left unchanged.
type UpdateMilestoneRequest struct {
	TenantID           string  `json:"-" validate:"required,max=128"`
	MilestoneID        string  `json:"-" validate:"required"`
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description        *string `json:"description,omitempty" validate:"omitempty,max=4000"`
	StartDate          *string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate            *string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status             *string `json:"status,omitempty" validate:"omitempty,milestone_status"`
	Priority           *string `json:"priority,omitempty" validate:"omitempty,milestone_priority"`
	Color              *string `json:"color,omitempty" validate:"omitempty,milestone_color"`
	ProgressMode       *string `json:"progress_mode,omitempty" validate:"omitempty,progress_mode"`
	ProgressPercentage *int    `json:"progress_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// DependencyRequest stores transport input for dependency checks and additions.
// Type is left to the planning validator so an unknown type surfaces as a rejection.
type DependencyRequest struct {
	TenantID             string `json:"-" validate:"required,max=128"`
	MilestoneID          string `json:"milestone_id" validate:"required"`
	DependsOnMilestoneID string `json:"depends_on_milestone_id" validate:"required"`
	Type                 string `json:"type,omitempty"`
	LagDays              int    `json:"lag_days,omitempty" validate:"gte=-3650,lte=3650"`
}

// UpsertTaskRequest stores one external task snapshot.
type UpsertTaskRequest struct {
	TenantID string `json:"-" validate:"required,max=128"`
	TaskID   string `json:"-" validate:"required"`
	Title    string `json:"title" validate:"required,max=255"`
	Status   string `json:"status,omitempty" validate:"omitempty,task_status"`
}

// LinkTaskRequest links one task to a milestone.
type LinkTaskRequest struct {
	TenantID    string `json:"-" validate:"required,max=128"`
	MilestoneID string `json:"-" validate:"required"`
	TaskID      string `json:"task_id" validate:"required"`
	Weight      int    `json:"weight,omitempty" validate:"gte=0,lte=1000000"`
}

// AssignUserRequest assigns one user to a milestone.
type AssignUserRequest struct {
	TenantID    string `json:"-" validate:"required,max=128"`
	MilestoneID string `json:"-" validate:"required"`
	UserID      string `json:"user_id" validate:"required,max=128"`
	Role        string `json:"role,omitempty" validate:"max=64"`
}

// Milestone is the wire form of one milestone.
type Milestone struct {
	ID                 string `json:"id"`
	TenantID           string `json:"tenant_id"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	StartDate          string `json:"start_date"`
	DueDate            string `json:"due_date"`
	Status             string `json:"status"`
	Priority           string `json:"priority"`
	Color              string `json:"color"`
	ProgressMode       string `json:"progress_mode"`
	ProgressPercentage int    `json:"progress_percentage"`
}

// MilestoneView adds derived progress and dependency ids to a milestone.
type MilestoneView struct {
	Milestone
	Progress          int      `json:"progress"`
	Overdue           bool     `json:"overdue"`
	DependsOn         []string `json:"depends_on"`
	Dependents        []string `json:"dependents"`
	DegenerateTaskIDs []string `json:"degenerate_task_ids,omitempty"`
}

// Dependency is the wire form of one dependency edge.
type Dependency struct {
	ID                   string `json:"id"`
	MilestoneID          string `json:"milestone_id"`
	DependsOnMilestoneID string `json:"depends_on_milestone_id"`
	Type                 string `json:"type"`
	LagDays              int    `json:"lag_days"`
}

// DependencyDecision reports a dry-run validation result.
type DependencyDecision struct {
	Accepted  bool     `json:"accepted"`
	Reason    string   `json:"reason,omitempty"`
	Message   string   `json:"message,omitempty"`
	CyclePath []string `json:"cycle_path,omitempty"`
}

// Task is the wire form of one external task snapshot.
type Task struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// TaskLink is the wire form of one milestone task link.
type TaskLink struct {
	MilestoneID string `json:"milestone_id"`
	TaskID      string `json:"task_id"`
	Weight      int    `json:"weight"`
}

// LinkedTask reports one linked task with its current status.
type LinkedTask struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Weight int    `json:"weight"`
	Status string `json:"status"`
}

// Assignment is the wire form of one milestone assignment.
type Assignment struct {
	MilestoneID string `json:"milestone_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
}

// ProgressReport explains how a milestone's progress was derived.
type ProgressReport struct {
	MilestoneID       string       `json:"milestone_id"`
	Mode              string       `json:"mode"`
	Progress          int          `json:"progress"`
	Overdue           bool         `json:"overdue"`
	CompletedWeight   int          `json:"completed_weight"`
	TotalWeight       int          `json:"total_weight"`
	Tasks             []LinkedTask `json:"tasks"`
	DegenerateTaskIDs []string     `json:"degenerate_task_ids,omitempty"`
}

// Placement positions one milestone on the roadmap.
type Placement struct {
	MilestoneID   string  `json:"milestone_id"`
	Row           int     `json:"row"`
	StartFraction float64 `json:"start_fraction"`
	EndFraction   float64 `json:"end_fraction"`
}

// Arrow connects two placements for one dependency edge.
type Arrow struct {
	DependencyID string  `json:"dependency_id"`
	Type         string  `json:"type"`
	FromID       string  `json:"from_id"`
	ToID         string  `json:"to_id"`
	FromRow      int     `json:"from_row"`
	ToRow        int     `json:"to_row"`
	FromFraction float64 `json:"from_fraction"`
	ToFraction   float64 `json:"to_fraction"`
}

// ScheduleWarning flags an edge whose dates contradict its type and lag.
type ScheduleWarning struct {
	DependencyID         string `json:"dependency_id"`
	MilestoneID          string `json:"milestone_id"`
	DependsOnMilestoneID string `json:"depends_on_milestone_id"`
	Type                 string `json:"type"`
	LagDays              int    `json:"lag_days"`
	Required             string `json:"required"`
	Actual               string `json:"actual"`
	SlipDays             int    `json:"slip_days"`
}

// Roadmap is the wire form of a computed timeline layout.
type Roadmap struct {
	TenantID    string            `json:"tenant_id"`
	WindowStart string            `json:"window_start"`
	WindowEnd   string            `json:"window_end"`
	RowCount    int               `json:"row_count"`
	Placements  []Placement       `json:"placements"`
	Arrows      []Arrow           `json:"arrows"`
	Milestones  []MilestoneView   `json:"milestones"`
	Warnings    []ScheduleWarning `json:"warnings"`
}

// Rollup summarizes a tenant's dependency health.
type Rollup struct {
	TenantID                   string `json:"tenant_id"`
	Milestones                 int    `json:"milestones"`
	CompletedMilestones        int    `json:"completed_milestones"`
	OverdueMilestones          int    `json:"overdue_milestones"`
	MilestonesWithDependencies int    `json:"milestones_with_dependencies"`
	DependencyEdges            int    `json:"dependency_edges"`
	BlockedMilestones          int    `json:"blocked_milestones"`
	UnresolvedDependencyEdges  int    `json:"unresolved_dependency_edges"`
	ScheduleWarnings           int    `json:"schedule_warnings"`
}
