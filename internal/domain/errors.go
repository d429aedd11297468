package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidTenantID     = errors.New("invalid tenant id")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidTitle        = errors.New("invalid title")
	ErrInvalidDateRange    = errors.New("start date must not be after due date")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidPriority     = errors.New("invalid priority")
	ErrInvalidColor        = errors.New("invalid color")
	ErrInvalidProgressMode = errors.New("invalid progress mode")
	ErrInvalidProgress     = errors.New("progress percentage must be between 0 and 100")
	ErrInvalidWeight       = errors.New("task weight must be between 1 and 1000000")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidTaskStatus   = errors.New("invalid task status")

	ErrSelfDependency        = errors.New("a milestone cannot depend on itself")
	ErrCrossTenantDependency = errors.New("milestones belong to different organizations")
	ErrInvalidDependencyType = errors.New("invalid dependency type")
	ErrCircularDependency    = errors.New("this dependency would create a circular reference")
	ErrDuplicateDependency   = errors.New("dependency already exists")
	ErrDuplicateTaskLink     = errors.New("task is already linked to this milestone")
	ErrDuplicateAssignment   = errors.New("user is already assigned to this milestone")
)
