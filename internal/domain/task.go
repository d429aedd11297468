package domain

import (
	"slices"
	"strings"
	"time"
)

// TaskStatus mirrors the status of a task owned by the task tracker.
type TaskStatus string

// TaskStatus values.
const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

var validTaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone}

// IsCompleted reports whether the status counts toward milestone progress.
// Only done counts.
func (s TaskStatus) IsCompleted() bool {
	return s == TaskStatusDone
}

// NormalizeTaskStatus canonicalizes common aliases.
func NormalizeTaskStatus(s TaskStatus) TaskStatus {
	switch normalizeEnum(string(s)) {
	case "", "todo", "to_do":
		return TaskStatusTodo
	case "in_progress", "progress", "doing":
		return TaskStatusInProgress
	case "review", "in_review":
		return TaskStatusReview
	case "done", "complete", "completed":
		return TaskStatusDone
	default:
		return TaskStatus(normalizeEnum(string(s)))
	}
}

// IsValidTaskStatus reports whether s is one of the four canonical task statuses.
func IsValidTaskStatus(s TaskStatus) bool {
	return slices.Contains(validTaskStatuses, s)
}

// Task is the snapshot of an external task that milestones link to.
type Task struct {
	ID        string
	TenantID  string
	Title     string
	Status    TaskStatus
	UpdatedAt time.Time
}

// NewTask validates one task snapshot.
func NewTask(id, tenantID, title string, status TaskStatus, now time.Time) (Task, error) {
	id = strings.TrimSpace(id)
	tenantID = strings.TrimSpace(tenantID)
	title = strings.TrimSpace(title)
	if id == "" {
		return Task{}, ErrInvalidID
	}
	if tenantID == "" {
		return Task{}, ErrInvalidTenantID
	}
	if title == "" {
		return Task{}, ErrInvalidTitle
	}
	status = NormalizeTaskStatus(status)
	if !slices.Contains(validTaskStatuses, status) {
		return Task{}, ErrInvalidTaskStatus
	}
	return Task{
		ID:        id,
		TenantID:  tenantID,
		Title:     title,
		Status:    status,
		UpdatedAt: now.UTC(),
	}, nil
}

// TaskLink associates a task with a milestone using a progress weight.
type TaskLink struct {
	MilestoneID string
	TaskID      string
	Weight      int
	CreatedAt   time.Time
}

// MaxTaskWeight bounds the weight of one task link.
const MaxTaskWeight = 1_000_000

// NewTaskLink validates one link. A zero weight defaults to 1.
func NewTaskLink(milestoneID, taskID string, weight int, now time.Time) (TaskLink, error) {
	milestoneID = strings.TrimSpace(milestoneID)
	taskID = strings.TrimSpace(taskID)
	if milestoneID == "" || taskID == "" {
		return TaskLink{}, ErrInvalidID
	}
	if weight == 0 {
		weight = 1
	}
	if weight < 0 || weight > MaxTaskWeight {
		return TaskLink{}, ErrInvalidWeight
	}
	return TaskLink{
		MilestoneID: milestoneID,
		TaskID:      taskID,
		Weight:      weight,
		CreatedAt:   now.UTC(),
	}, nil
}

// LinkedTaskStatus joins a task link with the linked task's status.
type LinkedTaskStatus struct {
	TaskID string
	Title  string
	Weight int
	Status TaskStatus
}
