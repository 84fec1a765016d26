package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

// siteDirectory is the slice of the tenant store the me handlers read from.
// Satisfied by *tenant.Store.
type siteDirectory interface {
	AccessibleSites(ctx context.Context, userID string) ([]*tenant.Site, error)
	GetSite(ctx context.Context, id string) (*tenant.Site, error)
}

// meHandler serves the caller's own accessible-site surface. Session scope
// managers use these endpoints as their site directory.
type meHandler struct {
	store siteDirectory
	now   func() time.Time
}

func newMeHandler(store siteDirectory) *meHandler {
	return &meHandler{store: store, now: time.Now}
}

// ListSites handles GET /api/v1/me/sites — the sites the caller can access
// right now. Admins get every site in their organization; everyone else gets
// the sites behind an in-effect assignment.
func (h *meHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	sites, err := h.store.AccessibleSites(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sites")
		return
	}
	if sites == nil {
		sites = []*tenant.Site{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sites": sites})
}

// SiteRole handles GET /api/v1/me/sites/{siteID}/role — the caller's
// effective role at one site.
func (h *meHandler) SiteRole(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	siteID := chi.URLParam(r, "siteID")
	role := p.RoleAt(siteID, h.now())
	if role == "" {
		writeError(w, http.StatusNotFound, "not_found", "no in-effect assignment at this site")
		return
	}

	// An admin's implicit role exists only at sites inside their own
	// organization; the site row anchors that check. Non-admin roles come
	// from assignments, which are org-internal by construction.
	if p.Admin {
		site, err := h.store.GetSite(r.Context(), siteID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, http.StatusNotFound, "not_found", "no in-effect assignment at this site")
			} else {
				writeError(w, http.StatusInternalServerError, "internal_error", "failed to resolve role")
			}
			return
		}
		if site.OrganizationID != p.OrganizationID {
			writeError(w, http.StatusNotFound, "not_found", "no in-effect assignment at this site")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"site_id": siteID,
		"role":    role,
	})
}
