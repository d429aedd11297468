package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

type fakeRepo struct {
	milestones  map[string]domain.Milestone
	edges       map[string]domain.DependencyEdge
	tasks       map[string]domain.Task
	links       map[string]domain.TaskLink
	assignments map[string]domain.MilestoneAssignment
	// sneakEdge is committed just before the next CreateDependency, as a concurrent writer would.
	sneakEdge *domain.DependencyEdge
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		milestones:  map[string]domain.Milestone{},
		edges:       map[string]domain.DependencyEdge{},
		tasks:       map[string]domain.Task{},
		links:       map[string]domain.TaskLink{},
		assignments: map[string]domain.MilestoneAssignment{},
	}
}

func (f *fakeRepo) CreateMilestone(_ context.Context, m domain.Milestone) error {
	f.milestones[m.ID] = m
	return nil
}

func (f *fakeRepo) UpdateMilestone(_ context.Context, m domain.Milestone) error {
	if _, ok := f.milestones[m.ID]; !ok {
		return ErrNotFound
	}
	f.milestones[m.ID] = m
	return nil
}

func (f *fakeRepo) GetMilestone(_ context.Context, id string) (domain.Milestone, error) {
	m, ok := f.milestones[id]
	if !ok {
		return domain.Milestone{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) ListMilestones(_ context.Context, tenantID string) ([]domain.Milestone, error) {
	out := make([]domain.Milestone, 0, len(f.milestones))
	for _, m := range f.milestones {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteMilestone(_ context.Context, id string) error {
	if _, ok := f.milestones[id]; !ok {
		return ErrNotFound
	}
	delete(f.milestones, id)
	for key, e := range f.edges {
		if e.MilestoneID == id || e.DependsOnMilestoneID == id {
			delete(f.edges, key)
		}
	}
	for key, l := range f.links {
		if l.MilestoneID == id {
			delete(f.links, key)
		}
	}
	for key, a := range f.assignments {
		if a.MilestoneID == id {
			delete(f.assignments, key)
		}
	}
	return nil
}

func (f *fakeRepo) CreateDependency(ctx context.Context, e domain.DependencyEdge) error {
	if f.sneakEdge != nil {
		f.edges[f.sneakEdge.ID] = *f.sneakEdge
		f.sneakEdge = nil
	}
	existing, _ := f.ListDependencies(ctx, e.TenantID)
	for _, cur := range existing {
		if cur.MilestoneID == e.MilestoneID && cur.DependsOnMilestoneID == e.DependsOnMilestoneID {
			return domain.ErrDuplicateDependency
		}
	}
	if planning.HasCycleIfAdded(planning.NewGraph(existing), e.MilestoneID, e.DependsOnMilestoneID) {
		return domain.ErrCircularDependency
	}
	f.edges[e.ID] = e
	return nil
}

func (f *fakeRepo) GetDependency(_ context.Context, id string) (domain.DependencyEdge, error) {
	e, ok := f.edges[id]
	if !ok {
		return domain.DependencyEdge{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) ListDependencies(_ context.Context, tenantID string) ([]domain.DependencyEdge, error) {
	out := make([]domain.DependencyEdge, 0, len(f.edges))
	for _, e := range f.edges {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteDependency(_ context.Context, id string) error {
	if _, ok := f.edges[id]; !ok {
		return ErrNotFound
	}
	delete(f.edges, id)
	return nil
}

func (f *fakeRepo) UpsertTask(_ context.Context, t domain.Task) error {
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeRepo) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) ListTasks(_ context.Context, tenantID string) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateTaskLink(_ context.Context, l domain.TaskLink) error {
	key := l.MilestoneID + "/" + l.TaskID
	if _, ok := f.links[key]; ok {
		return domain.ErrDuplicateTaskLink
	}
	f.links[key] = l
	return nil
}

func (f *fakeRepo) DeleteTaskLink(_ context.Context, milestoneID, taskID string) error {
	key := milestoneID + "/" + taskID
	if _, ok := f.links[key]; !ok {
		return ErrNotFound
	}
	delete(f.links, key)
	return nil
}

func (f *fakeRepo) ListLinkedTasks(_ context.Context, milestoneID string) ([]domain.LinkedTaskStatus, error) {
	out := []domain.LinkedTaskStatus{}
	for _, l := range f.links {
		if l.MilestoneID != milestoneID {
			continue
		}
		t := f.tasks[l.TaskID]
		out = append(out, domain.LinkedTaskStatus{TaskID: l.TaskID, Title: t.Title, Weight: l.Weight, Status: t.Status})
	}
	slices.SortFunc(out, func(a, b domain.LinkedTaskStatus) int {
		if a.TaskID < b.TaskID {
			return -1
		}
		if a.TaskID > b.TaskID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *fakeRepo) ListTenantTaskLinks(_ context.Context, tenantID string) ([]domain.TaskLink, error) {
	out := []domain.TaskLink{}
	for _, l := range f.links {
		if f.milestones[l.MilestoneID].TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateAssignment(_ context.Context, a domain.MilestoneAssignment) error {
	key := a.MilestoneID + "/" + a.UserID
	if _, ok := f.assignments[key]; ok {
		return domain.ErrDuplicateAssignment
	}
	f.assignments[key] = a
	return nil
}

func (f *fakeRepo) DeleteAssignment(_ context.Context, milestoneID, userID string) error {
	key := milestoneID + "/" + userID
	if _, ok := f.assignments[key]; !ok {
		return ErrNotFound
	}
	delete(f.assignments, key)
	return nil
}

func (f *fakeRepo) ListAssignments(_ context.Context, milestoneID string) ([]domain.MilestoneAssignment, error) {
	out := []domain.MilestoneAssignment{}
	for _, a := range f.assignments {
		if a.MilestoneID == milestoneID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListTenantAssignments(_ context.Context, tenantID string) ([]domain.MilestoneAssignment, error) {
	out := []domain.MilestoneAssignment{}
	for _, a := range f.assignments {
		if f.milestones[a.MilestoneID].TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingObserver struct {
	decisions  []planning.RejectReason
	layouts    [][2]int
	degenerate map[string]int
}

func (r *recordingObserver) DependencyDecision(reason planning.RejectReason) {
	r.decisions = append(r.decisions, reason)
}

func (r *recordingObserver) LayoutComputed(milestones, rows int) {
	r.layouts = append(r.layouts, [2]int{milestones, rows})
}

func (r *recordingObserver) DegenerateTasks(milestoneID string, count int) {
	if r.degenerate == nil {
		r.degenerate = map[string]int{}
	}
	r.degenerate[milestoneID] += count
}

var testNow = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeRepo, *recordingObserver) {
	t.Helper()
	repo := newFakeRepo()
	obs := &recordingObserver{}
	idCounter := 0
	svc := NewService(repo, func() string {
		idCounter++
		return fmt.Sprintf("id-%d", idCounter)
	}, func() time.Time {
		return testNow
	}, ServiceConfig{Observer: obs})
	return svc, repo, obs
}

func jan(d int) time.Time {
	return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC)
}

func mustMilestone(t *testing.T, svc *Service, tenantID, name string, start, due time.Time) domain.Milestone {
	t.Helper()
	m, err := svc.CreateMilestone(context.Background(), CreateMilestoneInput{
		TenantID:  tenantID,
		Name:      name,
		StartDate: start,
		DueDate:   due,
	})
	if err != nil {
		t.Fatalf("CreateMilestone(%q) error = %v", name, err)
	}
	return m
}

func TestCreateAndUpdateMilestone(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	m := mustMilestone(t, svc, "org1", "Launch", jan(1), jan(10))
	if m.ID != "id-1" || m.TenantID != "org1" {
		t.Fatalf("unexpected milestone %#v", m)
	}

	name := "Launch v2"
	mode := domain.ProgressModeManual
	pct := 40
	updated, err := svc.UpdateMilestone(ctx, UpdateMilestoneInput{
		TenantID:           "org1",
		MilestoneID:        m.ID,
		Name:               &name,
		ProgressMode:       &mode,
		ProgressPercentage: &pct,
	})
	if err != nil {
		t.Fatalf("UpdateMilestone() error = %v", err)
	}
	if updated.Name != name || updated.ProgressPercentage != 40 || !updated.DueDate.Equal(jan(10)) {
		t.Fatalf("unexpected update %#v", updated)
	}

	badDue := jan(1).AddDate(0, 0, -1)
	if _, err := svc.UpdateMilestone(ctx, UpdateMilestoneInput{TenantID: "org1", MilestoneID: m.ID, DueDate: &badDue}); !errors.Is(err, domain.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestSetMilestoneStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	m := mustMilestone(t, svc, "org1", "Launch", jan(1), jan(10))

	updated, err := svc.SetMilestoneStatus(ctx, "org1", m.ID, " Completed ")
	if err != nil {
		t.Fatalf("SetMilestoneStatus() error = %v", err)
	}
	if updated.Status != domain.StatusCompleted || updated.Name != "Launch" {
		t.Fatalf("unexpected milestone %#v", updated)
	}
	if stored := repo.milestones[m.ID]; stored.Status != domain.StatusCompleted {
		t.Fatalf("expected stored status completed, got %q", stored.Status)
	}
	if _, err := svc.SetMilestoneStatus(ctx, "org1", m.ID, "shipped"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.SetMilestoneStatus(ctx, "org2", m.ID, domain.StatusBlocked); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestMilestoneTenantIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	m := mustMilestone(t, svc, "org1", "Launch", jan(1), jan(10))
	if _, err := svc.GetMilestone(ctx, "org2", m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
	if err := svc.DeleteMilestone(ctx, "org2", m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting across tenants, got %v", err)
	}
	if _, err := svc.ListMilestones(ctx, " "); !errors.Is(err, domain.ErrInvalidTenantID) {
		t.Fatalf("expected ErrInvalidTenantID, got %v", err)
	}
}

func TestListMilestonesOrdered(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustMilestone(t, svc, "org1", "Later", jan(5), jan(6))
	mustMilestone(t, svc, "org1", "Beta", jan(1), jan(2))
	mustMilestone(t, svc, "org1", "Alpha", jan(1), jan(3))
	mustMilestone(t, svc, "org2", "Other", jan(1), jan(3))
	ms, err := svc.ListMilestones(context.Background(), "org1")
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	var names []string
	for _, m := range ms {
		names = append(names, m.Name)
	}
	if !slices.Equal(names, []string{"Alpha", "Beta", "Later"}) {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestAddDependencyFlow(t *testing.T) {
	svc, repo, obs := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	c := mustMilestone(t, svc, "org1", "C", jan(8), jan(15))

	edge, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID, LagDays: 2})
	if err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	if edge.Type != domain.FinishToStart || edge.LagDays != 2 || edge.TenantID != "org1" || edge.ID == "" {
		t.Fatalf("unexpected edge %#v", edge)
	}
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: c.ID, DependsOnMilestoneID: b.ID}); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}

	_, err = svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: a.ID, DependsOnMilestoneID: c.ID})
	var rejected *DependencyRejectedError
	if !errors.As(err, &rejected) || !errors.Is(err, domain.ErrCircularDependency) {
		t.Fatalf("expected circular rejection, got %v", err)
	}
	if !slices.Equal(rejected.Decision.CyclePath, []string{a.ID, c.ID, b.ID, a.ID}) {
		t.Fatalf("unexpected cycle path %v", rejected.Decision.CyclePath)
	}

	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID}); !errors.Is(err, domain.ErrDuplicateDependency) {
		t.Fatalf("expected ErrDuplicateDependency, got %v", err)
	}
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: a.ID, DependsOnMilestoneID: a.ID}); !errors.Is(err, domain.ErrSelfDependency) {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: c.ID, DependsOnMilestoneID: a.ID, Type: "after"}); !errors.Is(err, domain.ErrInvalidDependencyType) {
		t.Fatalf("expected ErrInvalidDependencyType, got %v", err)
	}
	if len(repo.edges) != 2 {
		t.Fatalf("expected 2 stored edges, got %d", len(repo.edges))
	}
	want := []planning.RejectReason{
		planning.ReasonNone, planning.ReasonNone, planning.ReasonCircular,
		planning.ReasonNone, planning.ReasonSelfDependency, planning.ReasonInvalidType,
	}
	if !slices.Equal(obs.decisions, want) {
		t.Fatalf("unexpected observed decisions %v", obs.decisions)
	}
}

func TestAddDependencyCrossTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	foreign := mustMilestone(t, svc, "org2", "F", jan(1), jan(10))
	decision, err := svc.CheckDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: a.ID, DependsOnMilestoneID: foreign.ID})
	if err != nil {
		t.Fatalf("CheckDependency() error = %v", err)
	}
	if decision.Reason != planning.ReasonCrossTenant {
		t.Fatalf("expected cross tenant rejection, got %#v", decision)
	}
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org2", MilestoneID: a.ID, DependsOnMilestoneID: foreign.ID}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected dependent outside tenant to be not found, got %v", err)
	}
}

func TestCheckDependencyDoesNotWrite(t *testing.T) {
	svc, repo, _ := newTestService(t)
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	decision, err := svc.CheckDependency(context.Background(), DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID, Type: domain.StartToStart})
	if err != nil {
		t.Fatalf("CheckDependency() error = %v", err)
	}
	if !decision.Accepted || decision.Edge.Type != domain.StartToStart {
		t.Fatalf("unexpected decision %#v", decision)
	}
	if len(repo.edges) != 0 {
		t.Fatal("expected dry run not to store an edge")
	}
}

func TestAddDependencyStorageRecheck(t *testing.T) {
	svc, repo, obs := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	repo.sneakEdge = &domain.DependencyEdge{ID: "race", TenantID: "org1", MilestoneID: a.ID, DependsOnMilestoneID: b.ID, Type: domain.FinishToStart}
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID}); !errors.Is(err, domain.ErrCircularDependency) {
		t.Fatalf("expected storage recheck to reject, got %v", err)
	}
	if got := obs.decisions[len(obs.decisions)-1]; got != planning.ReasonCircular {
		t.Fatalf("expected circular decision to be observed, got %q", got)
	}
}

func TestRemoveAndListDependencies(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	c := mustMilestone(t, svc, "org1", "C", jan(8), jan(15))
	ab, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID})
	if err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: c.ID, DependsOnMilestoneID: b.ID}); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	touchingA, err := svc.ListDependencies(ctx, "org1", a.ID)
	if err != nil {
		t.Fatalf("ListDependencies() error = %v", err)
	}
	if len(touchingA) != 1 || touchingA[0].ID != ab.ID {
		t.Fatalf("unexpected edges touching a %#v", touchingA)
	}
	if err := svc.RemoveDependency(ctx, "org2", ab.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
	if err := svc.RemoveDependency(ctx, "org1", ab.ID); err != nil {
		t.Fatalf("RemoveDependency() error = %v", err)
	}
	all, err := svc.ListDependencies(ctx, "org1", "")
	if err != nil {
		t.Fatalf("ListDependencies() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 edge after removal, got %d", len(all))
	}
	// With b -> a removed, a may now depend on c.
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: a.ID, DependsOnMilestoneID: c.ID}); err != nil {
		t.Fatalf("expected edge to be accepted after removal, got %v", err)
	}
}

func TestMilestoneProgressFromLinkedTasks(t *testing.T) {
	svc, _, obs := newTestService(t)
	ctx := context.Background()
	m := mustMilestone(t, svc, "org1", "Launch", jan(1), jan(10))
	for _, tc := range []struct {
		id     string
		status domain.TaskStatus
		weight int
	}{
		{"t1", domain.TaskStatusDone, 1},
		{"t2", domain.TaskStatusReview, 1},
		{"t3", domain.TaskStatusDone, 2},
	} {
		if _, err := svc.UpsertTask(ctx, UpsertTaskInput{TenantID: "org1", TaskID: tc.id, Title: tc.id, Status: tc.status}); err != nil {
			t.Fatalf("UpsertTask() error = %v", err)
		}
		if _, err := svc.LinkTask(ctx, LinkTaskInput{TenantID: "org1", MilestoneID: m.ID, TaskID: tc.id, Weight: tc.weight}); err != nil {
			t.Fatalf("LinkTask() error = %v", err)
		}
	}
	report, err := svc.MilestoneProgress(ctx, "org1", m.ID)
	if err != nil {
		t.Fatalf("MilestoneProgress() error = %v", err)
	}
	if report.Progress != 75 || report.CompletedWeight != 3 || report.TotalWeight != 4 {
		t.Fatalf("unexpected report %#v", report)
	}
	if !report.Overdue {
		t.Fatal("expected milestone due in January to be overdue in February")
	}
	if _, err := svc.LinkTask(ctx, LinkTaskInput{TenantID: "org1", MilestoneID: m.ID, TaskID: "t1"}); !errors.Is(err, domain.ErrDuplicateTaskLink) {
		t.Fatalf("expected ErrDuplicateTaskLink, got %v", err)
	}

	// Completing the review task moves progress to 100.
	if _, err := svc.UpsertTask(ctx, UpsertTaskInput{TenantID: "org1", TaskID: "t2", Title: "t2", Status: domain.TaskStatusDone}); err != nil {
		t.Fatalf("UpsertTask() error = %v", err)
	}
	view, err := svc.GetMilestoneView(ctx, "org1", m.ID)
	if err != nil {
		t.Fatalf("GetMilestoneView() error = %v", err)
	}
	if view.Progress != 100 {
		t.Fatalf("expected 100, got %d", view.Progress)
	}
	if len(obs.degenerate) != 0 {
		t.Fatalf("expected no degenerate tasks, got %v", obs.degenerate)
	}

	if err := svc.UnlinkTask(ctx, "org1", m.ID, "t3"); err != nil {
		t.Fatalf("UnlinkTask() error = %v", err)
	}
	links, err := svc.ListTaskLinks(ctx, "org1", m.ID)
	if err != nil {
		t.Fatalf("ListTaskLinks() error = %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
}

func TestLinkTaskRejectsForeignTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	m := mustMilestone(t, svc, "org1", "Launch", jan(1), jan(10))
	if _, err := svc.UpsertTask(ctx, UpsertTaskInput{TenantID: "org2", TaskID: "t1", Title: "x"}); err != nil {
		t.Fatalf("UpsertTask() error = %v", err)
	}
	if _, err := svc.LinkTask(ctx, LinkTaskInput{TenantID: "org1", MilestoneID: m.ID, TaskID: "t1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign task, got %v", err)
	}
	if _, err := svc.UpsertTask(ctx, UpsertTaskInput{TenantID: "org1", TaskID: "t1", Title: "steal"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when another tenant owns the task id, got %v", err)
	}
}

func TestMilestoneViewsAndDegenerateWeights(t *testing.T) {
	svc, repo, obs := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID}); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	repo.tasks["t0"] = domain.Task{ID: "t0", TenantID: "org1", Title: "legacy", Status: domain.TaskStatusDone}
	repo.links[a.ID+"/t0"] = domain.TaskLink{MilestoneID: a.ID, TaskID: "t0", Weight: 0}

	views, err := svc.ListMilestoneViews(ctx, "org1")
	if err != nil {
		t.Fatalf("ListMilestoneViews() error = %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].Progress != 100 || !slices.Equal(views[0].Dependents, []string{b.ID}) || len(views[0].DependsOn) != 0 {
		t.Fatalf("unexpected view for a %#v", views[0])
	}
	if !slices.Equal(views[1].DependsOn, []string{a.ID}) {
		t.Fatalf("unexpected view for b %#v", views[1])
	}
	if obs.degenerate[a.ID] != 1 {
		t.Fatalf("expected one degenerate task observed, got %v", obs.degenerate)
	}
}

func TestDeleteMilestoneCascades(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: b.ID, DependsOnMilestoneID: a.ID}); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	if _, err := svc.AssignUser(ctx, "org1", a.ID, "u1", "owner"); err != nil {
		t.Fatalf("AssignUser() error = %v", err)
	}
	if err := svc.DeleteMilestone(ctx, "org1", a.ID); err != nil {
		t.Fatalf("DeleteMilestone() error = %v", err)
	}
	if len(repo.edges) != 0 || len(repo.assignments) != 0 {
		t.Fatalf("expected cascade, got edges=%d assignments=%d", len(repo.edges), len(repo.assignments))
	}
}

func TestAssignments(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	m := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	if _, err := svc.AssignUser(ctx, "org1", m.ID, "u1", ""); err != nil {
		t.Fatalf("AssignUser() error = %v", err)
	}
	if _, err := svc.AssignUser(ctx, "org1", m.ID, "u1", "lead"); !errors.Is(err, domain.ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
	list, err := svc.ListAssignments(ctx, "org1", m.ID)
	if err != nil {
		t.Fatalf("ListAssignments() error = %v", err)
	}
	if len(list) != 1 || list[0].Role != domain.DefaultAssignmentRole {
		t.Fatalf("unexpected assignments %#v", list)
	}
	if err := svc.UnassignUser(ctx, "org1", m.ID, "u1"); err != nil {
		t.Fatalf("UnassignUser() error = %v", err)
	}
}

func TestRoadmapAndRollup(t *testing.T) {
	svc, _, obs := newTestService(t)
	ctx := context.Background()
	a := mustMilestone(t, svc, "org1", "A", jan(1), jan(10))
	b := mustMilestone(t, svc, "org1", "B", jan(5), jan(20))
	c := mustMilestone(t, svc, "org1", "C", jan(8), jan(15))
	for _, dep := range []domain.Milestone{b, c} {
		if _, err := svc.AddDependency(ctx, DependencyInput{TenantID: "org1", MilestoneID: dep.ID, DependsOnMilestoneID: a.ID}); err != nil {
			t.Fatalf("AddDependency() error = %v", err)
		}
	}

	roadmap, err := svc.Roadmap(ctx, "org1")
	if err != nil {
		t.Fatalf("Roadmap() error = %v", err)
	}
	if roadmap.Layout.RowCount != 3 || len(roadmap.Milestones) != 3 || len(roadmap.Arrows) != 2 {
		t.Fatalf("unexpected roadmap %#v", roadmap)
	}
	if roadmap.Milestones[0].Milestone.ID != a.ID {
		t.Fatalf("expected a first in placement order, got %s", roadmap.Milestones[0].Milestone.ID)
	}
	if len(roadmap.Warnings) != 2 {
		t.Fatalf("expected both finish_to_start edges to warn, got %#v", roadmap.Warnings)
	}
	if len(obs.layouts) != 1 || obs.layouts[0] != [2]int{3, 3} {
		t.Fatalf("unexpected observed layouts %v", obs.layouts)
	}

	rollup, err := svc.DependencyRollup(ctx, "org1")
	if err != nil {
		t.Fatalf("DependencyRollup() error = %v", err)
	}
	want := DependencyRollup{
		TenantID:                   "org1",
		Milestones:                 3,
		OverdueMilestones:          3,
		MilestonesWithDependencies: 2,
		DependencyEdges:            2,
		BlockedMilestones:          2,
		UnresolvedDependencyEdges:  2,
		ScheduleWarnings:           2,
	}
	if rollup != want {
		t.Fatalf("unexpected rollup %#v", rollup)
	}
}
