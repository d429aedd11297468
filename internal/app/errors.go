package app

import (
	"errors"
	"strings"

	"github.com/hylla/waypoint/internal/planning"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
)

// DependencyRejectedError reports a dependency the validator refused.
// It unwraps to the matching domain sentinel.
type DependencyRejectedError struct {
	Decision planning.Decision
}

// Error returns the user-facing rejection message.
func (e *DependencyRejectedError) Error() string {
	if len(e.Decision.CyclePath) > 0 {
		return e.Decision.Message + " (" + strings.Join(e.Decision.CyclePath, " -> ") + ")"
	}
	return e.Decision.Message
}

// Unwrap returns the domain sentinel for the rejection reason.
func (e *DependencyRejectedError) Unwrap() error {
	return e.Decision.Err()
}
