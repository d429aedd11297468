package planning

import (
	"strings"

	"github.com/hylla/waypoint/internal/domain"
)

// RejectReason names why a proposed dependency was refused.
type RejectReason string

// RejectReason values.
const (
	ReasonNone           RejectReason = ""
	ReasonSelfDependency RejectReason = "self_dependency"
	ReasonCrossTenant    RejectReason = "cross_tenant_dependency"
	ReasonInvalidType    RejectReason = "invalid_dependency_type"
	ReasonCircular       RejectReason = "circular_dependency"
)

// MilestoneRef identifies a milestone together with its owning tenant.
type MilestoneRef struct {
	ID       string
	TenantID string
}

// Candidate is a proposed edge: Milestone depends on DependsOn.
type Candidate struct {
	Milestone MilestoneRef
	DependsOn MilestoneRef
	Type      domain.DependencyType
	LagDays   int
}

// Decision is the outcome of validating one candidate.
type Decision struct {
	Accepted  bool
	Reason    RejectReason
	Message   string
	Edge      domain.DependencyEdge
	CyclePath []string
}

// Err maps a rejection to its domain sentinel, or nil when accepted.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonSelfDependency:
		return domain.ErrSelfDependency
	case ReasonCrossTenant:
		return domain.ErrCrossTenantDependency
	case ReasonInvalidType:
		return domain.ErrInvalidDependencyType
	case ReasonCircular:
		return domain.ErrCircularDependency
	default:
		return nil
	}
}

// Validate decides whether c may be added to a tenant whose current edges are existing.
// Checks run cheapest first and stop at the first failure: self-dependency, tenant
// mismatch, dependency type, then the cycle scan. Edges in existing that belong to
// another tenant are ignored. The accepted edge has no ID or timestamp yet.
func Validate(existing []domain.DependencyEdge, c Candidate) Decision {
	from := strings.TrimSpace(c.Milestone.ID)
	to := strings.TrimSpace(c.DependsOn.ID)
	if from == to {
		return reject(ReasonSelfDependency, domain.ErrSelfDependency)
	}
	tenant := strings.TrimSpace(c.Milestone.TenantID)
	if tenant != strings.TrimSpace(c.DependsOn.TenantID) {
		return reject(ReasonCrossTenant, domain.ErrCrossTenantDependency)
	}
	typ := domain.NormalizeDependencyType(c.Type)
	if !domain.IsValidDependencyType(typ) {
		return reject(ReasonInvalidType, domain.ErrInvalidDependencyType)
	}

	scoped := make([]domain.DependencyEdge, 0, len(existing))
	for _, e := range existing {
		if e.TenantID == "" || e.TenantID == tenant {
			scoped = append(scoped, e)
		}
	}
	g := NewGraph(scoped)
	if HasCycleIfAdded(g, from, to) {
		d := reject(ReasonCircular, domain.ErrCircularDependency)
		d.CyclePath = FindCyclePath(g, from, to)
		return d
	}
	return Decision{
		Accepted: true,
		Edge: domain.DependencyEdge{
			TenantID:             tenant,
			MilestoneID:          from,
			DependsOnMilestoneID: to,
			Type:                 typ,
			LagDays:              c.LagDays,
		},
	}
}

func reject(reason RejectReason, err error) Decision {
	return Decision{Reason: reason, Message: userMessage(err)}
}

// userMessage capitalizes a sentinel message for display.
func userMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
