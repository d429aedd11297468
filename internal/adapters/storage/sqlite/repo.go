package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hylla/waypoint/internal/app"
	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/planning"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// dateLayout stores calendar dates without a time component.
const dateLayout = "2006-01-02"

// connPragmas apply per connection, so they ride on the DSN.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// Repository implements app.Repository on top of SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) a database file, creating its directory when needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	return openDSN("file:" + path + "?" + connPragmas)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	return openDSN("file:waypoint-" + uuid.NewString() + "?mode=memory&cache=shared&" + connPragmas)
}

func openDSN(dsn string) (*Repository, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps the in-transaction cycle check serialized.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the schema when absent.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS milestones (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL,
			due_date TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'not_started',
			priority TEXT NOT NULL DEFAULT 'medium',
			color TEXT NOT NULL DEFAULT '#3B82F6',
			progress_mode TEXT NOT NULL DEFAULT 'auto',
			progress_percentage INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			CHECK (start_date <= due_date),
			CHECK (progress_percentage BETWEEN 0 AND 100)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_milestones_tenant ON milestones(tenant_id, start_date);`,
		`CREATE TABLE IF NOT EXISTS milestone_dependencies (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			milestone_id TEXT NOT NULL,
			depends_on_milestone_id TEXT NOT NULL,
			dependency_type TEXT NOT NULL DEFAULT 'finish_to_start',
			lag_days INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(milestone_id, depends_on_milestone_id),
			CHECK (milestone_id <> depends_on_milestone_id),
			FOREIGN KEY(milestone_id) REFERENCES milestones(id) ON DELETE CASCADE,
			FOREIGN KEY(depends_on_milestone_id) REFERENCES milestones(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_milestone_dependencies_tenant ON milestone_dependencies(tenant_id);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'todo',
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS milestone_tasks (
			milestone_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			weight INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			PRIMARY KEY(milestone_id, task_id),
			FOREIGN KEY(milestone_id) REFERENCES milestones(id) ON DELETE CASCADE,
			FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS milestone_assignments (
			milestone_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'contributor',
			created_at TEXT NOT NULL,
			PRIMARY KEY(milestone_id, user_id),
			FOREIGN KEY(milestone_id) REFERENCES milestones(id) ON DELETE CASCADE
		);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

const milestoneColumns = `id, tenant_id, name, description, start_date, due_date, status, priority, color, progress_mode, progress_percentage, created_at, updated_at`

// CreateMilestone inserts a milestone row.
func (r *Repository) CreateMilestone(ctx context.Context, m domain.Milestone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO milestones(`+milestoneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.TenantID, m.Name, m.Description, date(m.StartDate), date(m.DueDate), string(m.Status), string(m.Priority), m.Color, string(m.ProgressMode), m.ProgressPercentage, ts(m.CreatedAt), ts(m.UpdatedAt))
	return err
}

// UpdateMilestone rewrites the mutable milestone columns.
func (r *Repository) UpdateMilestone(ctx context.Context, m domain.Milestone) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET name = ?, description = ?, start_date = ?, due_date = ?, status = ?, priority = ?, color = ?, progress_mode = ?, progress_percentage = ?, updated_at = ?
		WHERE id = ?
	`, m.Name, m.Description, date(m.StartDate), date(m.DueDate), string(m.Status), string(m.Priority), m.Color, string(m.ProgressMode), m.ProgressPercentage, ts(m.UpdatedAt), m.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetMilestone returns one milestone regardless of tenant.
func (r *Repository) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id)
	return scanMilestone(row)
}

// ListMilestones lists a tenant's milestones by start date.
func (r *Repository) ListMilestones(ctx context.Context, tenantID string) ([]domain.Milestone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE tenant_id = ?
		ORDER BY start_date ASC, name ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMilestone removes a milestone; edges, links and assignments cascade.
func (r *Repository) DeleteMilestone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateDependency re-validates the pair and the tenant graph inside one transaction
// before inserting, so two racing writers cannot jointly commit a cycle.
func (r *Repository) CreateDependency(ctx context.Context, e domain.DependencyEdge) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := listDependencies(ctx, tx, e.TenantID)
	if err != nil {
		return err
	}
	for _, cur := range existing {
		if cur.MilestoneID == e.MilestoneID && cur.DependsOnMilestoneID == e.DependsOnMilestoneID {
			return domain.ErrDuplicateDependency
		}
	}
	if planning.HasCycleIfAdded(planning.NewGraph(existing), e.MilestoneID, e.DependsOnMilestoneID) {
		return domain.ErrCircularDependency
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO milestone_dependencies(id, tenant_id, milestone_id, depends_on_milestone_id, dependency_type, lag_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.MilestoneID, e.DependsOnMilestoneID, string(e.Type), e.LagDays, ts(e.CreatedAt))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return domain.ErrDuplicateDependency
		}
		return err
	}
	err = tx.Commit()
	return err
}

// GetDependency returns one edge.
func (r *Repository) GetDependency(ctx context.Context, id string) (domain.DependencyEdge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, milestone_id, depends_on_milestone_id, dependency_type, lag_days, created_at
		FROM milestone_dependencies
		WHERE id = ?
	`, id)
	return scanDependency(row)
}

// ListDependencies lists a tenant's committed edges.
func (r *Repository) ListDependencies(ctx context.Context, tenantID string) ([]domain.DependencyEdge, error) {
	return listDependencies(ctx, r.db, tenantID)
}

// DeleteDependency removes one edge.
func (r *Repository) DeleteDependency(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM milestone_dependencies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// UpsertTask inserts a task or refreshes its title and status.
func (r *Repository) UpsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks(id, tenant_id, title, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, t.ID, t.TenantID, t.Title, string(t.Status), ts(t.UpdatedAt))
	return err
}

// GetTask returns one task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, tenant_id, title, status, updated_at FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks lists a tenant's tasks by id.
func (r *Repository) ListTasks(ctx context.Context, tenantID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, status, updated_at
		FROM tasks
		WHERE tenant_id = ?
		ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTaskLink links a task to a milestone.
func (r *Repository) CreateTaskLink(ctx context.Context, l domain.TaskLink) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO milestone_tasks(milestone_id, task_id, weight, created_at)
		VALUES (?, ?, ?, ?)
	`, l.MilestoneID, l.TaskID, l.Weight, ts(l.CreatedAt))
	if isUniqueConstraintErr(err) {
		return domain.ErrDuplicateTaskLink
	}
	return err
}

// DeleteTaskLink unlinks a task from a milestone.
func (r *Repository) DeleteTaskLink(ctx context.Context, milestoneID, taskID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM milestone_tasks WHERE milestone_id = ? AND task_id = ?`, milestoneID, taskID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListLinkedTasks joins a milestone's links with the current task status.
func (r *Repository) ListLinkedTasks(ctx context.Context, milestoneID string) ([]domain.LinkedTaskStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.title, mt.weight, t.status
		FROM milestone_tasks mt
		JOIN tasks t ON t.id = mt.task_id
		WHERE mt.milestone_id = ?
		ORDER BY t.id ASC
	`, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LinkedTaskStatus{}
	for rows.Next() {
		var (
			item   domain.LinkedTaskStatus
			status string
		)
		if err := rows.Scan(&item.TaskID, &item.Title, &item.Weight, &status); err != nil {
			return nil, err
		}
		item.Status = domain.TaskStatus(status)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListTenantTaskLinks lists every link on the tenant's milestones.
func (r *Repository) ListTenantTaskLinks(ctx context.Context, tenantID string) ([]domain.TaskLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mt.milestone_id, mt.task_id, mt.weight, mt.created_at
		FROM milestone_tasks mt
		JOIN milestones m ON m.id = mt.milestone_id
		WHERE m.tenant_id = ?
		ORDER BY mt.milestone_id ASC, mt.task_id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TaskLink{}
	for rows.Next() {
		var (
			l          domain.TaskLink
			createdRaw string
		)
		if err := rows.Scan(&l.MilestoneID, &l.TaskID, &l.Weight, &createdRaw); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTS(createdRaw)
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateAssignment assigns a user to a milestone.
func (r *Repository) CreateAssignment(ctx context.Context, a domain.MilestoneAssignment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO milestone_assignments(milestone_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
	`, a.MilestoneID, a.UserID, a.Role, ts(a.CreatedAt))
	if isUniqueConstraintErr(err) {
		return domain.ErrDuplicateAssignment
	}
	return err
}

// DeleteAssignment removes one assignment.
func (r *Repository) DeleteAssignment(ctx context.Context, milestoneID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM milestone_assignments WHERE milestone_id = ? AND user_id = ?`, milestoneID, userID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListAssignments lists a milestone's assignments.
func (r *Repository) ListAssignments(ctx context.Context, milestoneID string) ([]domain.MilestoneAssignment, error) {
	return r.queryAssignments(ctx, `
		SELECT milestone_id, user_id, role, created_at
		FROM milestone_assignments
		WHERE milestone_id = ?
		ORDER BY user_id ASC
	`, milestoneID)
}

// ListTenantAssignments lists assignments on every milestone of a tenant.
func (r *Repository) ListTenantAssignments(ctx context.Context, tenantID string) ([]domain.MilestoneAssignment, error) {
	return r.queryAssignments(ctx, `
		SELECT a.milestone_id, a.user_id, a.role, a.created_at
		FROM milestone_assignments a
		JOIN milestones m ON m.id = a.milestone_id
		WHERE m.tenant_id = ?
		ORDER BY a.milestone_id ASC, a.user_id ASC
	`, tenantID)
}

func (r *Repository) queryAssignments(ctx context.Context, query string, arg string) ([]domain.MilestoneAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MilestoneAssignment{}
	for rows.Next() {
		var (
			a          domain.MilestoneAssignment
			createdRaw string
		)
		if err := rows.Scan(&a.MilestoneID, &a.UserID, &a.Role, &createdRaw); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTS(createdRaw)
		out = append(out, a)
	}
	return out, rows.Err()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listDependencies(ctx context.Context, q queryer, tenantID string) ([]domain.DependencyEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, milestone_id, depends_on_milestone_id, dependency_type, lag_days, created_at
		FROM milestone_dependencies
		WHERE tenant_id = ?
		ORDER BY milestone_id ASC, depends_on_milestone_id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DependencyEdge{}
	for rows.Next() {
		e, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanMilestone(s scanner) (domain.Milestone, error) {
	var (
		m          domain.Milestone
		startRaw   string
		dueRaw     string
		status     string
		priority   string
		mode       string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &startRaw, &dueRaw, &status, &priority, &m.Color, &mode, &m.ProgressPercentage, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Milestone{}, app.ErrNotFound
		}
		return domain.Milestone{}, err
	}
	var err error
	if m.StartDate, err = parseDate(startRaw); err != nil {
		return domain.Milestone{}, fmt.Errorf("decode milestone start_date: %w", err)
	}
	if m.DueDate, err = parseDate(dueRaw); err != nil {
		return domain.Milestone{}, fmt.Errorf("decode milestone due_date: %w", err)
	}
	m.Status = domain.MilestoneStatus(status)
	m.Priority = domain.Priority(priority)
	m.ProgressMode = domain.ProgressMode(mode)
	m.CreatedAt = parseTS(createdRaw)
	m.UpdatedAt = parseTS(updatedRaw)
	return m, nil
}

func scanDependency(s scanner) (domain.DependencyEdge, error) {
	var (
		e          domain.DependencyEdge
		depType    string
		createdRaw string
	)
	if err := s.Scan(&e.ID, &e.TenantID, &e.MilestoneID, &e.DependsOnMilestoneID, &depType, &e.LagDays, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DependencyEdge{}, app.ErrNotFound
		}
		return domain.DependencyEdge{}, err
	}
	e.Type = domain.DependencyType(depType)
	e.CreatedAt = parseTS(createdRaw)
	return e, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t          domain.Task
		status     string
		updatedRaw string
	)
	if err := s.Scan(&t.ID, &t.TenantID, &t.Title, &status, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.Status = domain.TaskStatus(status)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

// translateNoRows maps a zero-row write to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func date(t time.Time) string {
	return domain.NormalizeDate(t).Format(dateLayout)
}

func parseDate(v string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, v, time.UTC)
}

// isUniqueConstraintErr reports whether err is a UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
