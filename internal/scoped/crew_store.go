package scoped

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/policy"
)

// CrewStore provides site-scoped database operations for crew members.
type CrewStore struct {
	pool      *pgxpool.Pool
	decisions DecisionRecorder
	now       func() time.Time // injectable clock for testing
}

// NewCrewStore creates a crew store backed by the given connection pool.
func NewCrewStore(pool *pgxpool.Pool, decisions DecisionRecorder) *CrewStore {
	return &CrewStore{pool: pool, decisions: decisions, now: time.Now}
}

const crewColumns = `id, organization_id, site_id, name, trade, phone, created_at`

func scanCrewMember(scan func(dest ...any) error) (*CrewMember, error) {
	c := &CrewMember{}
	err := scan(&c.ID, &c.OrganizationID, &c.SiteID, &c.Name, &c.Trade, &c.Phone, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the crew roster for one site. An empty site id fails closed
// with an empty result rather than falling through to an unscoped query.
func (s *CrewStore) List(ctx context.Context, siteID string) ([]*CrewMember, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if siteID == "" {
		return []*CrewMember{}, nil
	}
	ref, err := resolveSiteRef(ctx, s.pool, p, siteID)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.CrewMembers, policy.ActionRead, p, ref, s.now(), s.decisions); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+crewColumns+` FROM crew_members
		 WHERE organization_id = $1 AND site_id = $2
		 ORDER BY name`,
		p.OrganizationID, siteID)
	if err != nil {
		return nil, fmt.Errorf("listing crew members: %w", err)
	}
	defer rows.Close()

	var out []*CrewMember
	for rows.Next() {
		c, err := scanCrewMember(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning crew member: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get retrieves one crew member, re-checking read access against the
// record's own tenancy columns.
func (s *CrewStore) Get(ctx context.Context, id string) (*CrewMember, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanCrewMember(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+crewColumns+` FROM crew_members WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting crew member: %w", err)
	}
	if err := guard(policy.CrewMembers, policy.ActionRead, p, policy.SiteRef(c.OrganizationID, c.SiteID), s.now(), s.decisions); err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a crew member at the given site. Organization and site ids
// are stamped from the principal and the validated site argument.
func (s *CrewStore) Create(ctx context.Context, siteID string, in CreateCrewMemberInput) (*CrewMember, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := resolveSiteRef(ctx, s.pool, p, siteID)
	if err != nil {
		return nil, err
	}
	if err := guard(policy.CrewMembers, policy.ActionCreate, p, ref, s.now(), s.decisions); err != nil {
		return nil, err
	}

	c, err := scanCrewMember(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO crew_members (id, organization_id, site_id, name, trade, phone)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+crewColumns,
			uuid.NewString(), p.OrganizationID, siteID, in.Name, in.Trade, in.Phone,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating crew member: %w", err)
	}
	return c, nil
}

// Update applies a partial update after the modify predicate passes against
// the existing record.
func (s *CrewStore) Update(ctx context.Context, id string, in UpdateCrewMemberInput) (*CrewMember, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := scanCrewMember(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+crewColumns+` FROM crew_members WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting crew member: %w", err)
	}
	if err := guard(policy.CrewMembers, policy.ActionModify, p, policy.SiteRef(existing.OrganizationID, existing.SiteID), s.now(), s.decisions); err != nil {
		return nil, err
	}

	c, err := scanCrewMember(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE crew_members SET
			   name = COALESCE($2, name),
			   trade = COALESCE($3, trade),
			   phone = COALESCE($4, phone)
			 WHERE id = $1
			 RETURNING `+crewColumns,
			id, in.Name, in.Trade, in.Phone,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating crew member: %w", err)
	}
	return c, nil
}

// Delete removes a crew member. Admin-only per the delete predicate.
func (s *CrewStore) Delete(ctx context.Context, id string) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	existing, err := scanCrewMember(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+crewColumns+` FROM crew_members WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return fmt.Errorf("getting crew member: %w", err)
	}
	if err := guard(policy.CrewMembers, policy.ActionDelete, p, policy.SiteRef(existing.OrganizationID, existing.SiteID), s.now(), s.decisions); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM crew_members WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting crew member: %w", err)
	}
	return nil
}
