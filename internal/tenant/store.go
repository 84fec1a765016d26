package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const pgErrUniqueViolation = "23505"

// ErrDuplicateAssignment is returned when a second active assignment is
// created for the same (user, site) pair.
var ErrDuplicateAssignment = errors.New("active assignment already exists for this user and site")

// Store provides database operations for organizations, sites, users, and
// site assignments. It is the authorization store: the scope resolver and the
// policy predicates both derive their answers from its rows.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time // injectable clock for testing
}

// NewStore creates a new tenant store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// --- Organizations ---

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	o := &Organization{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (id, name)
		 VALUES ($1, $2)
		 RETURNING id, name, created_at`,
		uuid.NewString(), name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return o, nil
}

// GetOrganization retrieves an organization by primary key.
func (s *Store) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	o := &Organization{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	return o, nil
}

// --- Sites ---

func scanSite(scan func(dest ...any) error) (*Site, error) {
	st := &Site{}
	err := scan(&st.ID, &st.OrganizationID, &st.Name, &st.Status,
		&st.StartDate, &st.EndDate, &st.IsSystem, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	return st, nil
}

const siteColumns = `id, organization_id, name, status, start_date, end_date, is_system, created_at`

// CreateSite inserts a new site in the given organization.
func (s *Store) CreateSite(ctx context.Context, in CreateSiteInput) (*Site, error) {
	status := in.Status
	if status == "" {
		status = SiteStatusActive
	}
	st, err := scanSite(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO sites (id, organization_id, name, status, start_date, end_date, is_system)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+siteColumns,
			uuid.NewString(), in.OrganizationID, in.Name, status, in.StartDate, in.EndDate, in.IsSystem,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating site: %w", err)
	}
	return st, nil
}

// GetSite retrieves a site by primary key.
func (s *Store) GetSite(ctx context.Context, id string) (*Site, error) {
	st, err := scanSite(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+siteColumns+` FROM sites WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting site: %w", err)
	}
	return st, nil
}

// ListSitesByOrganization returns all sites in an organization ordered by name.
func (s *Store) ListSitesByOrganization(ctx context.Context, orgID string) ([]*Site, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		st, err := scanSite(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		sites = append(sites, st)
	}
	return sites, rows.Err()
}

// UpdateSite applies a partial update and returns the updated site.
func (s *Store) UpdateSite(ctx context.Context, id string, in UpdateSiteInput) (*Site, error) {
	st, err := scanSite(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE sites SET
			   name = COALESCE($2, name),
			   status = COALESCE($3, status),
			   start_date = COALESCE($4, start_date),
			   end_date = COALESCE($5, end_date)
			 WHERE id = $1
			 RETURNING `+siteColumns,
			id, in.Name, in.Status, in.StartDate, in.EndDate,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating site: %w", err)
	}
	return st, nil
}

// DeleteSite removes a site. Assignments referencing it are removed by
// cascade; scoped records fall back through session reconciliation.
func (s *Store) DeleteSite(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting site: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("deleting site: %w", pgx.ErrNoRows)
	}
	return nil
}

// --- Users ---

const userColumns = `id, organization_id, email, password_hash, name, admin, created_at`

func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	err := scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Name, &u.Admin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new user with a bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (id, organization_id, email, password_hash, name, admin)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+userColumns,
			uuid.NewString(), in.OrganizationID, in.Email, string(hash), in.Name, in.Admin,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by primary key.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsersByOrganization returns all users in an organization.
func (s *Store) ListUsersByOrganization(ctx context.Context, orgID string) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE organization_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Site assignments ---

const assignmentColumns = `id, user_id, site_id, role, start_date, end_date, is_active, created_at`

func scanAssignment(scan func(dest ...any) error) (*SiteAssignment, error) {
	a := &SiteAssignment{}
	err := scan(&a.ID, &a.UserID, &a.SiteID, &a.Role, &a.StartDate, &a.EndDate, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAssignment inserts a new active assignment. The partial unique index
// on (user_id, site_id) WHERE is_active rejects a second active row.
func (s *Store) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (*SiteAssignment, error) {
	a, err := scanAssignment(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO site_assignments (id, user_id, site_id, role, start_date, end_date, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			 RETURNING `+assignmentColumns,
			uuid.NewString(), in.UserID, in.SiteID, in.Role, in.StartDate, in.EndDate,
		).Scan(dest...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return nil, ErrDuplicateAssignment
		}
		return nil, fmt.Errorf("creating assignment: %w", err)
	}
	return a, nil
}

// GetAssignment retrieves an assignment by primary key.
func (s *Store) GetAssignment(ctx context.Context, id string) (*SiteAssignment, error) {
	a, err := scanAssignment(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+assignmentColumns+` FROM site_assignments WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return a, nil
}

// ListAssignmentsBySite returns all assignment rows for a site.
func (s *Store) ListAssignmentsBySite(ctx context.Context, siteID string) ([]*SiteAssignment, error) {
	return s.listAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM site_assignments WHERE site_id = $1 ORDER BY created_at`, siteID)
}

// ListAssignmentsByUser returns all assignment rows for a user, including
// inactive and expired ones. Callers filter with InEffect where it matters.
func (s *Store) ListAssignmentsByUser(ctx context.Context, userID string) ([]*SiteAssignment, error) {
	return s.listAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM site_assignments WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *Store) listAssignments(ctx context.Context, query string, args ...any) ([]*SiteAssignment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var out []*SiteAssignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAssignment applies a partial update and returns the updated row.
func (s *Store) UpdateAssignment(ctx context.Context, id string, in UpdateAssignmentInput) (*SiteAssignment, error) {
	a, err := scanAssignment(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`UPDATE site_assignments SET
			   role = COALESCE($2, role),
			   end_date = COALESCE($3, end_date),
			   is_active = COALESCE($4, is_active)
			 WHERE id = $1
			 RETURNING `+assignmentColumns,
			id, in.Role, in.EndDate, in.IsActive,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("updating assignment: %w", err)
	}
	return a, nil
}

// DeleteAssignment removes an assignment row.
func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM site_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("deleting assignment: %w", pgx.ErrNoRows)
	}
	return nil
}

// --- Resolver queries ---

// InEffectAssignments returns the user's assignments that currently grant
// access: active rows whose end date is unset or not yet past.
func (s *Store) InEffectAssignments(ctx context.Context, userID string) ([]*SiteAssignment, error) {
	today := startOfDay(s.now())
	return s.listAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM site_assignments
		 WHERE user_id = $1 AND is_active AND (end_date IS NULL OR end_date >= $2)
		 ORDER BY created_at`, userID, today)
}

// AccessibleSites returns the full site records the user may operate on:
// every site in the organization for admins, otherwise the sites reachable
// through an in-effect assignment.
func (s *Store) AccessibleSites(ctx context.Context, userID string) ([]*Site, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Admin {
		return s.ListSitesByOrganization(ctx, u.OrganizationID)
	}

	today := startOfDay(s.now())
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.organization_id, s.name, s.status, s.start_date, s.end_date, s.is_system, s.created_at
		 FROM sites s
		 JOIN site_assignments a ON a.site_id = s.id
		 WHERE a.user_id = $1
		   AND a.is_active
		   AND (a.end_date IS NULL OR a.end_date >= $2)
		   AND s.organization_id = $3
		 ORDER BY s.name`,
		userID, today, u.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("listing accessible sites: %w", err)
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		st, err := scanSite(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		sites = append(sites, st)
	}
	return sites, rows.Err()
}
