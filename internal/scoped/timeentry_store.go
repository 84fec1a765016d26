package scoped

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/policy"
)

// TimeEntryStore provides site-scoped database operations for time entries.
type TimeEntryStore struct {
	pool      *pgxpool.Pool
	decisions DecisionRecorder
	now       func() time.Time
}

// NewTimeEntryStore creates a time entry store backed by the given pool.
func NewTimeEntryStore(pool *pgxpool.Pool, decisions DecisionRecorder) *TimeEntryStore {
	return &TimeEntryStore{pool: pool, decisions: decisions, now: time.Now}
}

const timeEntryColumns = `id, organization_id, site_id, user_id, day, hours, notes, created_at`

func scanTimeEntry(scan func(dest ...any) error) (*TimeEntry, error) {
	e := &TimeEntry{}
	err := scan(&e.ID, &e.OrganizationID, &e.SiteID, &e.UserID, &e.Day, &e.Hours, &e.Notes, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func timeEntryRef(e *TimeEntry) policy.RecordRef {
	ref := policy.SiteRef(e.OrganizationID, e.SiteID)
	ref.OwnerUserID = e.UserID
	return ref
}

// List returns the time entries for one site. An empty site id fails closed.
func (s *TimeEntryStore) List(ctx context.Context, siteID string) ([]*TimeEntry, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if siteID == "" {
		return []*TimeEntry{}, nil
	}
	ref, err := resolveSiteRef(ctx, s.pool, p, siteID)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.TimeEntries, policy.ActionRead, p, ref, s.now(), s.decisions); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries
		 WHERE organization_id = $1 AND site_id = $2
		 ORDER BY day DESC, created_at DESC`,
		p.OrganizationID, siteID)
	if err != nil {
		return nil, fmt.Errorf("listing time entries: %w", err)
	}
	defer rows.Close()

	var out []*TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning time entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts a time entry for the principal at the given site. The
// organization, site, and user columns are all stamped server-side.
func (s *TimeEntryStore) Create(ctx context.Context, siteID string, in CreateTimeEntryInput) (*TimeEntry, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := resolveSiteRef(ctx, s.pool, p, siteID)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.TimeEntries, policy.ActionCreate, p, ref, s.now(), s.decisions); err != nil {
		return nil, err
	}

	e, err := scanTimeEntry(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO time_entries (id, organization_id, site_id, user_id, day, hours, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+timeEntryColumns,
			uuid.NewString(), p.OrganizationID, siteID, p.ID, in.Day, in.Hours, in.Notes,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating time entry: %w", err)
	}
	return e, nil
}

// Update applies a partial update. Owners may correct their own entries;
// otherwise the manager-at-site rule applies.
func (s *TimeEntryStore) Update(ctx context.Context, id string, in UpdateTimeEntryInput) (*TimeEntry, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.TimeEntries, policy.ActionModify, p, timeEntryRef(existing), s.now(), s.decisions); err != nil {
		return nil, err
	}

	e, err := scanTimeEntry(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE time_entries SET
			   hours = COALESCE($2, hours),
			   notes = COALESCE($3, notes)
			 WHERE id = $1
			 RETURNING `+timeEntryColumns,
			id, in.Hours, in.Notes,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating time entry: %w", err)
	}
	return e, nil
}

// Delete removes a time entry. Admin-only per the delete predicate.
func (s *TimeEntryStore) Delete(ctx context.Context, id string) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	existing, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := guard(policy.TimeEntries, policy.ActionDelete, p, timeEntryRef(existing), s.now(), s.decisions); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting time entry: %w", err)
	}
	return nil
}

func (s *TimeEntryStore) get(ctx context.Context, id string) (*TimeEntry, error) {
	e, err := scanTimeEntry(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting time entry: %w", err)
	}
	return e, nil
}
