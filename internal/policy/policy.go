// Package policy holds the declarative per-resource access predicates
// enforced at the data-access boundary. Predicates are pure boolean rules
// over the resolved principal and a record's own tenancy columns; the
// default is deny, and the organization-isolation clause is never optional.
package policy

import (
	"time"

	"github.com/crewdeck/crewdeck/internal/scope"
)

// Action names one of the four predicate kinds defined for every resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// RecordRef carries the tenancy columns of a candidate record: which column
// holds the organization id, which (nullable) column holds the site id, and
// for owned resources which column holds the owning user. Every resource maps
// its rows into this shape, so the predicates are written once.
type RecordRef struct {
	OrganizationID string
	SiteID         *string // nil denotes an organization-wide record
	OwnerUserID    string  // "" when the resource has no owning user
}

// SiteRef builds a RecordRef for a record scoped to a concrete site.
func SiteRef(orgID, siteID string) RecordRef {
	return RecordRef{OrganizationID: orgID, SiteID: &siteID}
}

// OrgWideRef builds a RecordRef for an organization-wide record (null site).
func OrgWideRef(orgID string) RecordRef {
	return RecordRef{OrganizationID: orgID}
}

// Clause is a single boolean rule. Clauses for the same action are combined
// with OR; the organization-isolation check is applied before any of them.
type Clause func(p *scope.Principal, rec RecordRef, now time.Time) bool

// siteVisible is the canonical read shape: admins see everything in their
// organization, org-wide records are visible to all members, and site-scoped
// records require an in-effect assignment to that site.
func siteVisible(p *scope.Principal, rec RecordRef, now time.Time) bool {
	if p.IsAdmin() || rec.SiteID == nil {
		return true
	}
	return p.AccessibleSiteIDs(now)[*rec.SiteID]
}

// managerAtSite allows admins and manager-equivalent roles at the record's
// own site. Org-wide records fall through to admin-only.
func managerAtSite(p *scope.Principal, rec RecordRef, now time.Time) bool {
	if p.IsAdmin() {
		return true
	}
	if rec.SiteID == nil {
		return false
	}
	return p.CanManageAt(*rec.SiteID, now)
}

// adminOnly allows only organization admins.
func adminOnly(p *scope.Principal, _ RecordRef, _ time.Time) bool {
	return p.IsAdmin()
}

// ownRecord allows the user a record belongs to.
func ownRecord(p *scope.Principal, rec RecordRef, _ time.Time) bool {
	return rec.OwnerUserID != "" && rec.OwnerUserID == p.ID
}

// Resource is the predicate set for one resource type.
type Resource struct {
	Name string

	read   []Clause
	create []Clause
	modify []Clause
	delete []Clause
}

// Option adds or replaces clauses on a resource.
type Option func(*Resource)

// WithReadClauses replaces the read clauses.
func WithReadClauses(clauses ...Clause) Option {
	return func(r *Resource) { r.read = clauses }
}

// WithModifyClauses replaces the modify clauses.
func WithModifyClauses(clauses ...Clause) Option {
	return func(r *Resource) { r.modify = clauses }
}

// WithExtraReadClause ORs an additional clause into the read predicate.
func WithExtraReadClause(c Clause) Option {
	return func(r *Resource) { r.read = append(r.read, c) }
}

// WithExtraModifyClause ORs an additional clause into the modify predicate.
func WithExtraModifyClause(c Clause) Option {
	return func(r *Resource) { r.modify = append(r.modify, c) }
}

// NewResource builds a resource with the canonical predicate shapes:
// read = org member AND site visible; create = same membership test against
// the stamped payload; modify = manager role at the record's site;
// delete = admin only.
func NewResource(name string, opts ...Option) *Resource {
	r := &Resource{
		Name:   name,
		read:   []Clause{siteVisible},
		create: []Clause{siteVisible},
		modify: []Clause{managerAtSite},
		delete: []Clause{adminOnly},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resource) clauses(action Action) []Clause {
	switch action {
	case ActionRead:
		return r.read
	case ActionCreate:
		return r.create
	case ActionModify:
		return r.modify
	case ActionDelete:
		return r.delete
	}
	return nil
}

// Allows evaluates the predicate for the given action. A nil principal or an
// organization mismatch is denied before any clause runs.
func (r *Resource) Allows(action Action, p *scope.Principal, rec RecordRef, now time.Time) bool {
	if p == nil {
		return false
	}
	if rec.OrganizationID == "" || rec.OrganizationID != p.OrganizationID {
		return false
	}
	for _, clause := range r.clauses(action) {
		if clause(p, rec, now) {
			return true
		}
	}
	return false
}

// CanRead reports whether the principal may read the record.
func (r *Resource) CanRead(p *scope.Principal, rec RecordRef, now time.Time) bool {
	return r.Allows(ActionRead, p, rec, now)
}

// CanCreate reports whether the principal may create a record with the given
// stamped tenancy columns.
func (r *Resource) CanCreate(p *scope.Principal, rec RecordRef, now time.Time) bool {
	return r.Allows(ActionCreate, p, rec, now)
}

// CanModify reports whether the principal may modify the record.
func (r *Resource) CanModify(p *scope.Principal, rec RecordRef, now time.Time) bool {
	return r.Allows(ActionModify, p, rec, now)
}

// CanDelete reports whether the principal may delete the record.
func (r *Resource) CanDelete(p *scope.Principal, rec RecordRef, now time.Time) bool {
	return r.Allows(ActionDelete, p, rec, now)
}
