package tenant

import "time"

// Site status values.
const (
	SiteStatusActive    = "active"
	SiteStatusOnHold    = "on-hold"
	SiteStatusCompleted = "completed"
)

// Assignment roles, ordered roughly by privilege.
const (
	RoleSiteManager    = "site-manager"
	RoleTechnicalStaff = "technical-staff"
	RoleCrewLead       = "crew-lead"
	RoleFieldWorker    = "field-worker"

	// RoleAdmin is the implicit role an organization admin holds on every
	// site in their organization. It never appears in a SiteAssignment row.
	RoleAdmin = "admin"
)

// ManagerRoles are the assignment roles allowed to modify site-scoped records.
var ManagerRoles = map[string]bool{
	RoleSiteManager: true,
	RoleCrewLead:    true,
}

// ValidRole reports whether role is one of the assignable roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSiteManager, RoleTechnicalStaff, RoleCrewLead, RoleFieldWorker:
		return true
	}
	return false
}

// Organization is the tenant boundary. Every site and every user belongs to
// exactly one organization; nothing references across it.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Site is a project or location scoped to one organization.
type Site struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	// IsSystem marks the reserved fallback site that holds unassigned
	// records. It participates in every invariant an ordinary site does.
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an authenticated actor. The organization is fixed for the user's
// lifetime; there is no mid-session organization transfer.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	Admin          bool      `json:"admin"`
	CreatedAt      time.Time `json:"created_at"`
}

// SiteAssignment binds a user to a site with a role and an activity window.
// At most one active assignment exists per (user, site) pair.
type SiteAssignment struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	SiteID    string     `json:"site_id"`
	Role      string     `json:"role"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// InEffect reports whether the assignment grants access at the given time:
// it must be active and its end date, if set, must not lie in the past.
// End dates are inclusive and compared at day granularity.
func (a SiteAssignment) InEffect(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.EndDate == nil {
		return true
	}
	today := startOfDay(now)
	return !a.EndDate.Before(today)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateSiteInput holds the fields required to create a new site.
type CreateSiteInput struct {
	OrganizationID string     `json:"-"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	IsSystem       bool       `json:"is_system"`
}

// UpdateSiteInput holds optional fields for a partial site update.
type UpdateSiteInput struct {
	Name      *string    `json:"name,omitempty"`
	Status    *string    `json:"status,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// CreateUserInput holds the fields required to create a new user.
type CreateUserInput struct {
	OrganizationID string `json:"-"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	Admin          bool   `json:"admin"`
}

// CreateAssignmentInput holds the fields required to assign a user to a site.
type CreateAssignmentInput struct {
	UserID    string     `json:"user_id"`
	SiteID    string     `json:"site_id"`
	Role      string     `json:"role"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// UpdateAssignmentInput holds optional fields for a partial assignment update.
type UpdateAssignmentInput struct {
	Role     *string    `json:"role,omitempty"`
	EndDate  *time.Time `json:"end_date,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}
