package domain

import (
	"slices"
	"strings"
	"time"
)

// DependencyType describes how a dependent milestone relates to its prerequisite.
// The type is descriptive; it never shifts dates.
type DependencyType string

// DependencyType values.
const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

var validDependencyTypes = []DependencyType{FinishToStart, StartToStart, FinishToFinish, StartToFinish}

// DependencyTypes returns the supported dependency types in canonical order.
func DependencyTypes() []DependencyType {
	return slices.Clone(validDependencyTypes)
}

// NormalizeDependencyType canonicalizes user input. Empty input maps to FinishToStart.
func NormalizeDependencyType(t DependencyType) DependencyType {
	v := DependencyType(normalizeEnum(string(t)))
	if v == "" {
		return FinishToStart
	}
	return v
}

// IsValidDependencyType reports whether t is one of the four dependency types.
func IsValidDependencyType(t DependencyType) bool {
	return slices.Contains(validDependencyTypes, t)
}

// DependencyEdge records that MilestoneID depends on DependsOnMilestoneID.
type DependencyEdge struct {
	ID                   string
	TenantID             string
	MilestoneID          string
	DependsOnMilestoneID string
	Type                 DependencyType
	LagDays              int
	CreatedAt            time.Time
}

// DependencyInput holds write-time values for one edge.
type DependencyInput struct {
	ID                   string
	TenantID             string
	MilestoneID          string
	DependsOnMilestoneID string
	Type                 DependencyType
	LagDays              int
}

// NewDependencyEdge normalizes one edge. Graph-level rules are enforced by the planning validator.
func NewDependencyEdge(in DependencyInput, now time.Time) (DependencyEdge, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.MilestoneID = strings.TrimSpace(in.MilestoneID)
	in.DependsOnMilestoneID = strings.TrimSpace(in.DependsOnMilestoneID)
	if in.ID == "" || in.MilestoneID == "" || in.DependsOnMilestoneID == "" {
		return DependencyEdge{}, ErrInvalidID
	}
	if in.TenantID == "" {
		return DependencyEdge{}, ErrInvalidTenantID
	}
	if in.MilestoneID == in.DependsOnMilestoneID {
		return DependencyEdge{}, ErrSelfDependency
	}
	in.Type = NormalizeDependencyType(in.Type)
	if !IsValidDependencyType(in.Type) {
		return DependencyEdge{}, ErrInvalidDependencyType
	}
	return DependencyEdge{
		ID:                   in.ID,
		TenantID:             in.TenantID,
		MilestoneID:          in.MilestoneID,
		DependsOnMilestoneID: in.DependsOnMilestoneID,
		Type:                 in.Type,
		LagDays:              in.LagDays,
		CreatedAt:            now.UTC(),
	}, nil
}
