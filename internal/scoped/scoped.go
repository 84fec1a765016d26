// Package scoped is the data-access layer feature code reads and writes
// through. Every read takes an explicit site id (or an explicit org-wide
// opt-in), writes stamp their tenancy columns from the resolved principal
// rather than the caller's payload, and the policy predicates are evaluated
// here for every operation regardless of what the client-side session
// manager believes its scope to be.
package scoped

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewdeck/crewdeck/internal/policy"
	"github.com/crewdeck/crewdeck/internal/scope"
)

// ErrForbidden is returned when a policy predicate rejects an operation.
// It is never swallowed; handlers surface it as a generic forbidden result.
var ErrForbidden = errors.New("scoped: forbidden")

// ErrSiteNotFound is returned when a site id does not resolve inside the
// principal's organization. Missing and foreign sites are indistinguishable
// to the caller.
var ErrSiteNotFound = errors.New("scoped: site not found")

// DecisionRecorder counts policy decisions. Satisfied by *metrics.Metrics;
// nil disables recording.
type DecisionRecorder interface {
	RecordAuthzDecision(resource string, action string, allowed bool)
}

// guard evaluates a predicate, records the decision, and maps denial to
// ErrForbidden.
func guard(res *policy.Resource, action policy.Action, p *scope.Principal, rec policy.RecordRef, now time.Time, dec DecisionRecorder) error {
	allowed := res.Allows(action, p, rec, now)
	if dec != nil {
		dec.RecordAuthzDecision(res.Name, string(action), allowed)
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// principal extracts the authenticated principal or fails closed.
func principal(ctx context.Context) (*scope.Principal, error) {
	p := scope.PrincipalFromContext(ctx)
	if p == nil {
		return nil, scope.ErrUnauthenticated
	}
	return p, nil
}

// resolveSiteRef looks up the tenancy of the given site so the predicates
// evaluate against the site's own organization column, not the caller's.
// A site outside the principal's organization resolves to ErrSiteNotFound,
// which also stops an admin's in-org bypass from reaching across tenants.
func resolveSiteRef(ctx context.Context, pool *pgxpool.Pool, p *scope.Principal, siteID string) (policy.RecordRef, error) {
	var orgID string
	err := pool.QueryRow(ctx,
		`SELECT organization_id FROM sites WHERE id = $1`, siteID,
	).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return policy.RecordRef{}, ErrSiteNotFound
	}
	if err != nil {
		return policy.RecordRef{}, fmt.Errorf("resolving site: %w", err)
	}
	if orgID != p.OrganizationID {
		return policy.RecordRef{}, ErrSiteNotFound
	}
	return policy.SiteRef(orgID, siteID), nil
}
