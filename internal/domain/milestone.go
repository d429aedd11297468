package domain

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// MilestoneStatus is the lifecycle status of a milestone.
type MilestoneStatus string

// MilestoneStatus values.
const (
	StatusNotStarted MilestoneStatus = "not_started"
	StatusInProgress MilestoneStatus = "in_progress"
	StatusCompleted  MilestoneStatus = "completed"
	StatusBlocked    MilestoneStatus = "blocked"
	StatusAtRisk     MilestoneStatus = "at_risk"
)

var validStatuses = []MilestoneStatus{StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked, StatusAtRisk}

// Priority ranks milestones for display.
type Priority string

// Priority values.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ProgressMode selects how completion is derived.
type ProgressMode string

// ProgressMode values.
const (
	ProgressModeAuto   ProgressMode = "auto"
	ProgressModeManual ProgressMode = "manual"
)

// DefaultColor is used when a milestone is created without a color.
const DefaultColor = "#3B82F6"

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Milestone represents one dated planning unit owned by a tenant.
type Milestone struct {
	ID                 string
	TenantID           string
	Name               string
	Description        string
	StartDate          time.Time
	DueDate            time.Time
	Status             MilestoneStatus
	Priority           Priority
	Color              string
	ProgressMode       ProgressMode
	ProgressPercentage int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MilestoneInput holds write-time values for milestone creation.
type MilestoneInput struct {
	ID                 string
	TenantID           string
	Name               string
	Description        string
	StartDate          time.Time
	DueDate            time.Time
	Status             MilestoneStatus
	Priority           Priority
	Color              string
	ProgressMode       ProgressMode
	ProgressPercentage int
}

// NewMilestone validates and normalizes one milestone.
func NewMilestone(in MilestoneInput, now time.Time) (Milestone, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.ID == "" {
		return Milestone{}, ErrInvalidID
	}
	if in.TenantID == "" {
		return Milestone{}, ErrInvalidTenantID
	}

	m := Milestone{
		ID:        in.ID,
		TenantID:  in.TenantID,
		CreatedAt: now.UTC(),
	}
	if err := m.UpdateDetails(MilestoneDetails{
		Name:               in.Name,
		Description:        in.Description,
		StartDate:          in.StartDate,
		DueDate:            in.DueDate,
		Status:             in.Status,
		Priority:           in.Priority,
		Color:              in.Color,
		ProgressMode:       in.ProgressMode,
		ProgressPercentage: in.ProgressPercentage,
	}, now); err != nil {
		return Milestone{}, err
	}
	return m, nil
}

// MilestoneDetails holds the mutable milestone fields.
type MilestoneDetails struct {
	Name               string
	Description        string
	StartDate          time.Time
	DueDate            time.Time
	Status             MilestoneStatus
	Priority           Priority
	Color              string
	ProgressMode       ProgressMode
	ProgressPercentage int
}

// Details returns the mutable fields of m.
func (m Milestone) Details() MilestoneDetails {
	return MilestoneDetails{
		Name:               m.Name,
		Description:        m.Description,
		StartDate:          m.StartDate,
		DueDate:            m.DueDate,
		Status:             m.Status,
		Priority:           m.Priority,
		Color:              m.Color,
		ProgressMode:       m.ProgressMode,
		ProgressPercentage: m.ProgressPercentage,
	}
}

// UpdateDetails validates and applies mutable fields. Empty enum values fall back to defaults.
func (m *Milestone) UpdateDetails(d MilestoneDetails, now time.Time) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return ErrInvalidName
	}
	if d.StartDate.IsZero() || d.DueDate.IsZero() {
		return ErrInvalidDateRange
	}
	start := NormalizeDate(d.StartDate)
	due := NormalizeDate(d.DueDate)
	if start.After(due) {
		return ErrInvalidDateRange
	}

	status := MilestoneStatus(normalizeEnum(string(d.Status)))
	if status == "" {
		status = StatusNotStarted
	}
	if !slices.Contains(validStatuses, status) {
		return ErrInvalidStatus
	}
	priority := Priority(normalizeEnum(string(d.Priority)))
	if priority == "" {
		priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, priority) {
		return ErrInvalidPriority
	}
	color := strings.TrimSpace(d.Color)
	if color == "" {
		color = DefaultColor
	}
	if !IsValidColor(color) {
		return ErrInvalidColor
	}
	mode := ProgressMode(normalizeEnum(string(d.ProgressMode)))
	if mode == "" {
		mode = ProgressModeAuto
	}
	if mode != ProgressModeAuto && mode != ProgressModeManual {
		return ErrInvalidProgressMode
	}
	if d.ProgressPercentage < 0 || d.ProgressPercentage > 100 {
		return ErrInvalidProgress
	}

	m.Name = d.Name
	m.Description = strings.TrimSpace(d.Description)
	m.StartDate = start
	m.DueDate = due
	m.Status = status
	m.Priority = priority
	m.Color = color
	m.ProgressMode = mode
	m.ProgressPercentage = d.ProgressPercentage
	m.UpdatedAt = now.UTC()
	return nil
}

// SetStatus changes the milestone status.
func (m *Milestone) SetStatus(status MilestoneStatus, now time.Time) error {
	status = MilestoneStatus(normalizeEnum(string(status)))
	if !slices.Contains(validStatuses, status) {
		return ErrInvalidStatus
	}
	m.Status = status
	m.UpdatedAt = now.UTC()
	return nil
}

// IsOverdue reports whether the due date has passed without completion.
func (m Milestone) IsOverdue(now time.Time) bool {
	return m.Status != StatusCompleted && m.DueDate.Before(NormalizeDate(now))
}

// IsValidStatus reports whether status is one of the five milestone statuses.
func IsValidStatus(status MilestoneStatus) bool {
	return slices.Contains(validStatuses, status)
}

// IsValidPriority reports whether priority is one of the four priority levels.
func IsValidPriority(priority Priority) bool {
	return slices.Contains(validPriorities, priority)
}

// IsValidColor reports whether color is a six digit hex color.
func IsValidColor(color string) bool {
	return colorPattern.MatchString(color)
}

// NormalizeDate truncates t to its UTC calendar date.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// normalizeEnum lowercases and trims enum input, accepting dashes for underscores.
func normalizeEnum(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.ReplaceAll(v, "-", "_")
}
