package scope

import (
	"errors"
	"time"

	"github.com/crewdeck/crewdeck/internal/tenant"
)

// ErrUnauthenticated is returned when an operation requires a principal and
// none is present.
var ErrUnauthenticated = errors.New("scope: no authenticated principal")

// Principal is the resolved view of an authenticated user: identity,
// organization membership, admin flag, and the assignment rows the resolver
// derives site access from. It is a snapshot; the middleware rebuilds it from
// the authorization store on every request.
type Principal struct {
	ID             string
	OrganizationID string
	Admin          bool
	Name           string
	Assignments    []tenant.SiteAssignment
}

// IsAdmin reports whether the principal is an organization admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Admin
}

// AccessibleSiteIDs returns the set of site ids the principal may operate on
// through in-effect assignments. Admin access is broader than any assignment
// set and is answered by HasAccess against the site's organization instead.
func (p *Principal) AccessibleSiteIDs(now time.Time) map[string]bool {
	ids := make(map[string]bool)
	if p == nil {
		return ids
	}
	for _, a := range p.Assignments {
		if a.InEffect(now) {
			ids[a.SiteID] = true
		}
	}
	return ids
}

// RoleAt returns the principal's role at the given site, or "" if none.
// Admins hold an implicit elevated role on every site in their organization
// without a SiteAssignment row.
func (p *Principal) RoleAt(siteID string, now time.Time) string {
	if p == nil {
		return ""
	}
	if p.Admin {
		return tenant.RoleAdmin
	}
	for _, a := range p.Assignments {
		if a.SiteID == siteID && a.InEffect(now) {
			return a.Role
		}
	}
	return ""
}

// HasAccess reports whether the principal may operate on the site. Admin
// status always wins over assignment-based restriction: an admin with no
// assignment rows still has full access across the organization's sites.
func (p *Principal) HasAccess(site *tenant.Site, now time.Time) bool {
	if p == nil || site == nil {
		return false
	}
	if site.OrganizationID != p.OrganizationID {
		return false
	}
	if p.Admin {
		return true
	}
	return p.AccessibleSiteIDs(now)[site.ID]
}

// CanManageAt reports whether the principal holds a manager-equivalent role
// at the site (or is an admin).
func (p *Principal) CanManageAt(siteID string, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.Admin {
		return true
	}
	return tenant.ManagerRoles[p.RoleAt(siteID, now)]
}
