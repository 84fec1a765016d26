package scoped

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/policy"
)

// TaskStore provides site-scoped database operations for tasks. Tasks are
// the one scoped resource with an organization-wide variant: a null site id.
type TaskStore struct {
	pool      *pgxpool.Pool
	decisions DecisionRecorder
	now       func() time.Time
}

// NewTaskStore creates a task store backed by the given connection pool.
func NewTaskStore(pool *pgxpool.Pool, decisions DecisionRecorder) *TaskStore {
	return &TaskStore{pool: pool, decisions: decisions, now: time.Now}
}

const taskColumns = `id, organization_id, site_id, title, status, due_date, created_at`

func scanTask(scan func(dest ...any) error) (*Task, error) {
	t := &Task{}
	err := scan(&t.ID, &t.OrganizationID, &t.SiteID, &t.Title, &t.Status, &t.DueDate, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func taskRef(orgID string, siteID *string) policy.RecordRef {
	if siteID == nil {
		return policy.OrgWideRef(orgID)
	}
	return policy.SiteRef(orgID, *siteID)
}

// List returns the tasks for one site. An empty site id fails closed.
func (s *TaskStore) List(ctx context.Context, siteID string) ([]*Task, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if siteID == "" {
		return []*Task{}, nil
	}
	ref, err := resolveSiteRef(ctx, s.pool, p, siteID)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.Tasks, policy.ActionRead, p, ref, s.now(), s.decisions); err != nil {
		return nil, err
	}
	return s.list(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE organization_id = $1 AND site_id = $2
		 ORDER BY due_date NULLS LAST, created_at`,
		p.OrganizationID, siteID)
}

// ListOrgWide returns tasks with no site: the explicit opt-in for records
// visible to all organization members.
func (s *TaskStore) ListOrgWide(ctx context.Context) ([]*Task, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.Tasks, policy.ActionRead, p, policy.OrgWideRef(p.OrganizationID), s.now(), s.decisions); err != nil {
		return nil, err
	}
	return s.list(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE organization_id = $1 AND site_id IS NULL
		 ORDER BY due_date NULLS LAST, created_at`,
		p.OrganizationID)
}

func (s *TaskStore) list(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get retrieves one task, re-checking read access against the record's own
// tenancy columns.
func (s *TaskStore) Get(ctx context.Context, id string) (*Task, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.Tasks, policy.ActionRead, p, taskRef(t.OrganizationID, t.SiteID), s.now(), s.decisions); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskStore) get(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// Create inserts a task at the given site; a nil siteID creates an
// organization-wide task. Tenancy columns are stamped from the principal.
func (s *TaskStore) Create(ctx context.Context, siteID *string, in CreateTaskInput) (*Task, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ref := policy.OrgWideRef(p.OrganizationID)
	if siteID != nil {
		var err error
		ref, err = resolveSiteRef(ctx, s.pool, p, *siteID)
		if err != nil {
			return nil, err
		}
	}
	if err := guard(policy.Tasks, policy.ActionCreate, p, ref, s.now(), s.decisions); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = TaskStatusPlanned
	}
	t, err := scanTask(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO tasks (id, organization_id, site_id, title, status, due_date)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+taskColumns,
			uuid.NewString(), p.OrganizationID, siteID, in.Title, status, in.DueDate,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// Update applies a partial update after the modify predicate passes.
func (s *TaskStore) Update(ctx context.Context, id string, in UpdateTaskInput) (*Task, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.Tasks, policy.ActionModify, p, taskRef(existing.OrganizationID, existing.SiteID), s.now(), s.decisions); err != nil {
		return nil, err
	}

	t, err := scanTask(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE tasks SET
			   title = COALESCE($2, title),
			   status = COALESCE($3, status),
			   due_date = COALESCE($4, due_date)
			 WHERE id = $1
			 RETURNING `+taskColumns,
			id, in.Title, in.Status, in.DueDate,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return t, nil
}

// Delete removes a task. Admin-only per the delete predicate.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	existing, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := guard(policy.Tasks, policy.ActionDelete, p, taskRef(existing.OrganizationID, existing.SiteID), s.now(), s.decisions); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return nil
}
