package domain

import (
	"strings"
	"time"
)

// DefaultAssignmentRole is used when no role label is given.
const DefaultAssignmentRole = "contributor"

// MilestoneAssignment links a user to a milestone with a role label.
type MilestoneAssignment struct {
	MilestoneID string
	UserID      string
	Role        string
	CreatedAt   time.Time
}

// NewMilestoneAssignment validates one assignment.
func NewMilestoneAssignment(milestoneID, userID, role string, now time.Time) (MilestoneAssignment, error) {
	milestoneID = strings.TrimSpace(milestoneID)
	userID = strings.TrimSpace(userID)
	role = strings.ToLower(strings.TrimSpace(role))
	if milestoneID == "" || userID == "" {
		return MilestoneAssignment{}, ErrInvalidID
	}
	if role == "" {
		role = DefaultAssignmentRole
	}
	if len(role) > 64 {
		return MilestoneAssignment{}, ErrInvalidRole
	}
	return MilestoneAssignment{
		MilestoneID: milestoneID,
		UserID:      userID,
		Role:        role,
		CreatedAt:   now.UTC(),
	}, nil
}
