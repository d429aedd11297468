package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "waypoint.snapshot.v1"

// SnapshotFormat selects the snapshot encoding.
type SnapshotFormat string

// SnapshotFormat values.
const (
	SnapshotJSON SnapshotFormat = "json"
	SnapshotYAML SnapshotFormat = "yaml"
)

// ParseSnapshotFormat maps a format name or file extension to a format.
func ParseSnapshotFormat(raw string) (SnapshotFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "", "json":
		return SnapshotJSON, nil
	case "yaml", "yml":
		return SnapshotYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Snapshot is a portable copy of one tenant's planning data.
type Snapshot struct {
	Version      string               `json:"version" yaml:"version"`
	TenantID     string               `json:"tenant_id" yaml:"tenant_id"`
	ExportedAt   time.Time            `json:"exported_at" yaml:"exported_at"`
	Milestones   []SnapshotMilestone  `json:"milestones" yaml:"milestones"`
	Dependencies []SnapshotDependency `json:"dependencies" yaml:"dependencies"`
	Tasks        []SnapshotTask       `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	TaskLinks    []SnapshotTaskLink   `json:"task_links,omitempty" yaml:"task_links,omitempty"`
	Assignments  []SnapshotAssignment `json:"assignments,omitempty" yaml:"assignments,omitempty"`
}

// SnapshotMilestone represents snapshot milestone data used by this package.
type SnapshotMilestone struct {
	ID                 string                 `json:"id" yaml:"id"`
	Name               string                 `json:"name" yaml:"name"`
	Description        string                 `json:"description,omitempty" yaml:"description,omitempty"`
	StartDate          string                 `json:"start_date" yaml:"start_date"`
	DueDate            string                 `json:"due_date" yaml:"due_date"`
	Status             domain.MilestoneStatus `json:"status" yaml:"status"`
	Priority           domain.Priority        `json:"priority" yaml:"priority"`
	Color              string                 `json:"color" yaml:"color"`
	ProgressMode       domain.ProgressMode    `json:"progress_mode" yaml:"progress_mode"`
	ProgressPercentage int                    `json:"progress_percentage" yaml:"progress_percentage"`
	CreatedAt          time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at" yaml:"updated_at"`
}

// SnapshotDependency represents snapshot dependency data used by this package.
type SnapshotDependency struct {
	ID                   string                `json:"id" yaml:"id"`
	MilestoneID          string                `json:"milestone_id" yaml:"milestone_id"`
	DependsOnMilestoneID string                `json:"depends_on_milestone_id" yaml:"depends_on_milestone_id"`
	Type                 domain.DependencyType `json:"type" yaml:"type"`
	LagDays              int                   `json:"lag_days" yaml:"lag_days"`
	CreatedAt            time.Time             `json:"created_at" yaml:"created_at"`
}

// SnapshotTask represents snapshot task data used by this package.
type SnapshotTask struct {
	ID        string            `json:"id" yaml:"id"`
	Title     string            `json:"title" yaml:"title"`
	Status    domain.TaskStatus `json:"status" yaml:"status"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"updated_at"`
}

// SnapshotTaskLink represents snapshot task link data used by this package.
type SnapshotTaskLink struct {
	MilestoneID string    `json:"milestone_id" yaml:"milestone_id"`
	TaskID      string    `json:"task_id" yaml:"task_id"`
	Weight      int       `json:"weight" yaml:"weight"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// SnapshotAssignment represents snapshot assignment data used by this package.
type SnapshotAssignment struct {
	MilestoneID string    `json:"milestone_id" yaml:"milestone_id"`
	UserID      string    `json:"user_id" yaml:"user_id"`
	Role        string    `json:"role" yaml:"role"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

const snapshotDateLayout = "2006-01-02"

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	tenantID = strings.TrimSpace(tenantID)
	ms, err := s.ListMilestones(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	edges, err := s.repo.ListDependencies(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	links, err := s.repo.ListTenantTaskLinks(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	assignments, err := s.repo.ListTenantAssignments(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:      SnapshotVersion,
		TenantID:     tenantID,
		ExportedAt:   s.clock().UTC(),
		Milestones:   make([]SnapshotMilestone, 0, len(ms)),
		Dependencies: make([]SnapshotDependency, 0, len(edges)),
	}
	for _, m := range ms {
		snap.Milestones = append(snap.Milestones, snapshotMilestoneFromDomain(m))
	}
	for _, e := range edges {
		snap.Dependencies = append(snap.Dependencies, SnapshotDependency{
			ID:                   e.ID,
			MilestoneID:          e.MilestoneID,
			DependsOnMilestoneID: e.DependsOnMilestoneID,
			Type:                 e.Type,
			LagDays:              e.LagDays,
			CreatedAt:            e.CreatedAt.UTC(),
		})
	}
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, SnapshotTask{ID: t.ID, Title: t.Title, Status: t.Status, UpdatedAt: t.UpdatedAt.UTC()})
	}
	for _, l := range links {
		snap.TaskLinks = append(snap.TaskLinks, SnapshotTaskLink{MilestoneID: l.MilestoneID, TaskID: l.TaskID, Weight: l.Weight, CreatedAt: l.CreatedAt.UTC()})
	}
	for _, a := range assignments {
		snap.Assignments = append(snap.Assignments, SnapshotAssignment{MilestoneID: a.MilestoneID, UserID: a.UserID, Role: a.Role, CreatedAt: a.CreatedAt.UTC()})
	}
	snap.sort()
	return snap, nil
}

// ImportResult counts what an import wrote and skipped.
type ImportResult struct {
	Milestones   int
	Dependencies int
	Tasks        int
	TaskLinks    int
	Assignments  int
	Skipped      int
}

// ImportSnapshot writes a snapshot into its tenant. Milestones and tasks are upserted;
// every dependency goes through the validator against the tenant's edges plus the edges
// imported so far. Existing edges, links and assignments are skipped.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (ImportResult, error) {
	if err := snap.Validate(); err != nil {
		return ImportResult{}, err
	}
	tenantID := strings.TrimSpace(snap.TenantID)
	if err := s.checkSnapshotOwnership(ctx, tenantID, snap); err != nil {
		return ImportResult{}, err
	}
	var res ImportResult

	for _, sm := range snap.Milestones {
		m, err := sm.toDomain(tenantID)
		if err != nil {
			return res, err
		}
		existing, err := s.repo.GetMilestone(ctx, m.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			err = s.repo.CreateMilestone(ctx, m)
		case err != nil:
		case existing.TenantID != tenantID:
			err = fmt.Errorf("%w: milestone %q belongs to another tenant", ErrInvalidSnapshot, m.ID)
		default:
			err = s.repo.UpdateMilestone(ctx, m)
		}
		if err != nil {
			return res, err
		}
		res.Milestones++
	}

	for _, st := range snap.Tasks {
		task, err := domain.NewTask(st.ID, tenantID, st.Title, st.Status, st.UpdatedAt)
		if err != nil {
			return res, fmt.Errorf("%w: task %q: %w", ErrInvalidSnapshot, st.ID, err)
		}
		existing, err := s.repo.GetTask(ctx, task.ID)
		switch {
		case err == nil && existing.TenantID != tenantID:
			return res, fmt.Errorf("%w: task %q belongs to another tenant", ErrInvalidSnapshot, task.ID)
		case err != nil && !errors.Is(err, ErrNotFound):
			return res, err
		}
		if err := s.repo.UpsertTask(ctx, task); err != nil {
			return res, err
		}
		res.Tasks++
	}

	edges, err := s.repo.ListDependencies(ctx, tenantID)
	if err != nil {
		return res, err
	}
	for _, sd := range snap.Dependencies {
		if slices.ContainsFunc(edges, func(e domain.DependencyEdge) bool {
			return e.ID == sd.ID || (e.MilestoneID == sd.MilestoneID && e.DependsOnMilestoneID == sd.DependsOnMilestoneID)
		}) {
			res.Skipped++
			continue
		}
		decision := planning.Validate(edges, planning.Candidate{
			Milestone: planning.MilestoneRef{ID: sd.MilestoneID, TenantID: tenantID},
			DependsOn: planning.MilestoneRef{ID: sd.DependsOnMilestoneID, TenantID: tenantID},
			Type:      sd.Type,
			LagDays:   sd.LagDays,
		})
		s.observer.DependencyDecision(decision.Reason)
		if !decision.Accepted {
			return res, fmt.Errorf("import dependency %q: %w", sd.ID, &DependencyRejectedError{Decision: decision})
		}
		edge, err := domain.NewDependencyEdge(domain.DependencyInput{
			ID:                   sd.ID,
			TenantID:             tenantID,
			MilestoneID:          decision.Edge.MilestoneID,
			DependsOnMilestoneID: decision.Edge.DependsOnMilestoneID,
			Type:                 decision.Edge.Type,
			LagDays:              decision.Edge.LagDays,
		}, sd.CreatedAt)
		if err != nil {
			return res, err
		}
		if err := s.repo.CreateDependency(ctx, edge); err != nil {
			return res, err
		}
		edges = append(edges, edge)
		res.Dependencies++
	}

	for _, sl := range snap.TaskLinks {
		link, err := domain.NewTaskLink(sl.MilestoneID, sl.TaskID, sl.Weight, sl.CreatedAt)
		if err != nil {
			return res, fmt.Errorf("%w: task link %q/%q: %w", ErrInvalidSnapshot, sl.MilestoneID, sl.TaskID, err)
		}
		switch err := s.repo.CreateTaskLink(ctx, link); {
		case errors.Is(err, domain.ErrDuplicateTaskLink):
			res.Skipped++
		case err != nil:
			return res, err
		default:
			res.TaskLinks++
		}
	}

	for _, sa := range snap.Assignments {
		a, err := domain.NewMilestoneAssignment(sa.MilestoneID, sa.UserID, sa.Role, sa.CreatedAt)
		if err != nil {
			return res, fmt.Errorf("%w: assignment %q/%q: %w", ErrInvalidSnapshot, sa.MilestoneID, sa.UserID, err)
		}
		switch err := s.repo.CreateAssignment(ctx, a); {
		case errors.Is(err, domain.ErrDuplicateAssignment):
			res.Skipped++
		case err != nil:
			return res, err
		default:
			res.Assignments++
		}
	}
	return res, nil
}

// checkSnapshotOwnership rejects a snapshot whose milestones or tasks already exist under
// another tenant, before anything is written.
func (s *Service) checkSnapshotOwnership(ctx context.Context, tenantID string, snap Snapshot) error {
	for _, sm := range snap.Milestones {
		id := strings.TrimSpace(sm.ID)
		existing, err := s.repo.GetMilestone(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case existing.TenantID != tenantID:
			return fmt.Errorf("%w: milestone %q belongs to another tenant", ErrInvalidSnapshot, id)
		}
	}
	for _, st := range snap.Tasks {
		id := strings.TrimSpace(st.ID)
		existing, err := s.repo.GetTask(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case existing.TenantID != tenantID:
			return fmt.Errorf("%w: task %q belongs to another tenant", ErrInvalidSnapshot, id)
		}
	}
	return nil
}

// Validate checks the snapshot version and its internal references.
func (s *Snapshot) Validate() error {
	if strings.TrimSpace(s.Version) != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}
	if strings.TrimSpace(s.TenantID) == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidSnapshot)
	}
	milestones := make(map[string]struct{}, len(s.Milestones))
	for _, m := range s.Milestones {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("%w: milestone id is required", ErrInvalidSnapshot)
		}
		if _, dup := milestones[id]; dup {
			return fmt.Errorf("%w: duplicate milestone %q", ErrInvalidSnapshot, id)
		}
		milestones[id] = struct{}{}
	}
	tasks := make(map[string]struct{}, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks[strings.TrimSpace(t.ID)] = struct{}{}
	}
	for _, d := range s.Dependencies {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("%w: dependency id is required", ErrInvalidSnapshot)
		}
		if _, ok := milestones[d.MilestoneID]; !ok {
			return fmt.Errorf("%w: dependency %q references unknown milestone %q", ErrInvalidSnapshot, d.ID, d.MilestoneID)
		}
		if _, ok := milestones[d.DependsOnMilestoneID]; !ok {
			return fmt.Errorf("%w: dependency %q references unknown milestone %q", ErrInvalidSnapshot, d.ID, d.DependsOnMilestoneID)
		}
	}
	for _, l := range s.TaskLinks {
		if _, ok := milestones[l.MilestoneID]; !ok {
			return fmt.Errorf("%w: task link references unknown milestone %q", ErrInvalidSnapshot, l.MilestoneID)
		}
		if _, ok := tasks[l.TaskID]; !ok {
			return fmt.Errorf("%w: task link references unknown task %q", ErrInvalidSnapshot, l.TaskID)
		}
	}
	for _, a := range s.Assignments {
		if _, ok := milestones[a.MilestoneID]; !ok {
			return fmt.Errorf("%w: assignment references unknown milestone %q", ErrInvalidSnapshot, a.MilestoneID)
		}
	}
	return nil
}

// EncodeSnapshot writes snap in the requested format.
func EncodeSnapshot(w io.Writer, snap Snapshot, format SnapshotFormat) error {
	switch format {
	case SnapshotJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case SnapshotYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DecodeSnapshot reads a snapshot in the requested format.
func DecodeSnapshot(r io.Reader, format SnapshotFormat) (Snapshot, error) {
	var snap Snapshot
	switch format {
	case SnapshotJSON, "":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
	case SnapshotYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
	default:
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return snap, nil
}

func (s *Snapshot) sort() {
	slices.SortFunc(s.Milestones, func(a, b SnapshotMilestone) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Dependencies, func(a, b SnapshotDependency) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Tasks, func(a, b SnapshotTask) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(s.TaskLinks, func(a, b SnapshotTaskLink) int {
		if c := strings.Compare(a.MilestoneID, b.MilestoneID); c != 0 {
			return c
		}
		return strings.Compare(a.TaskID, b.TaskID)
	})
	slices.SortFunc(s.Assignments, func(a, b SnapshotAssignment) int {
		if c := strings.Compare(a.MilestoneID, b.MilestoneID); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
}

func snapshotMilestoneFromDomain(m domain.Milestone) SnapshotMilestone {
	return SnapshotMilestone{
		ID:                 m.ID,
		Name:               m.Name,
		Description:        m.Description,
		StartDate:          m.StartDate.Format(snapshotDateLayout),
		DueDate:            m.DueDate.Format(snapshotDateLayout),
		Status:             m.Status,
		Priority:           m.Priority,
		Color:              m.Color,
		ProgressMode:       m.ProgressMode,
		ProgressPercentage: m.ProgressPercentage,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

func (m SnapshotMilestone) toDomain(tenantID string) (domain.Milestone, error) {
	start, err := time.Parse(snapshotDateLayout, strings.TrimSpace(m.StartDate))
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("%w: milestone %q start_date: %w", ErrInvalidSnapshot, m.ID, err)
	}
	due, err := time.Parse(snapshotDateLayout, strings.TrimSpace(m.DueDate))
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("%w: milestone %q due_date: %w", ErrInvalidSnapshot, m.ID, err)
	}
	out, err := domain.NewMilestone(domain.MilestoneInput{
		ID:                 m.ID,
		TenantID:           tenantID,
		Name:               m.Name,
		Description:        m.Description,
		StartDate:          start,
		DueDate:            due,
		Status:             m.Status,
		Priority:           m.Priority,
		Color:              m.Color,
		ProgressMode:       m.ProgressMode,
		ProgressPercentage: m.ProgressPercentage,
	}, m.CreatedAt)
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("%w: milestone %q: %w", ErrInvalidSnapshot, m.ID, err)
	}
	if !m.UpdatedAt.IsZero() {
		out.UpdatedAt = m.UpdatedAt.UTC()
	}
	return out, nil
}
