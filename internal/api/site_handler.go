package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/notify"
	"github.com/crewdeck/crewdeck/internal/policy"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

// siteHandler groups site HTTP handlers.
type siteHandler struct {
	store     *tenant.Store
	broker    *notify.Broker
	collector *activity.Collector
	now       func() time.Time
}

func newSiteHandler(store *tenant.Store, broker *notify.Broker, collector *activity.Collector) *siteHandler {
	return &siteHandler{store: store, broker: broker, collector: collector, now: time.Now}
}

// List handles GET /api/v1/sites — the caller's accessible sites. Admins see
// every site in their organization.
func (h *siteHandler) List(w http.ResponseWriter, r *http.Request) {
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

// Get handles GET /api/v1/sites/{siteID}.
func (h *siteHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	site, ok := h.loadSite(w, r)
	if !ok {
		return
	}

	if !policy.Sites.CanRead(p, policy.SiteRef(site.OrganizationID, site.ID), h.now()) {
		// Hide cross-org and unassigned sites behind a 404.
		writeError(w, http.StatusNotFound, "not_found", "site not found")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// Create handles POST /api/v1/sites. The route sits behind RequireAdmin.
func (h *siteHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req struct {
		Name      string     `json:"name"`
		Status    string     `json:"status"`
		StartDate *time.Time `json:"start_date"`
		EndDate   *time.Time `json:"end_date"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "name is required")
		return
	}
	if req.Status == "" {
		req.Status = tenant.SiteStatusActive
	}

	site, err := h.store.CreateSite(r.Context(), tenant.CreateSiteInput{
		OrganizationID: p.OrganizationID,
		Name:           req.Name,
		Status:         req.Status,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create site")
		return
	}

	h.recordChange(r, p, "site.create", site)
	writeJSON(w, http.StatusCreated, site)
}

// Update handles PATCH /api/v1/sites/{siteID}.
func (h *siteHandler) Update(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	site, ok := h.loadSite(w, r)
	if !ok {
		return
	}

	if !policy.Sites.CanModify(p, policy.SiteRef(site.OrganizationID, site.ID), h.now()) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot modify this site")
		return
	}

	var req tenant.UpdateSiteInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	updated, err := h.store.UpdateSite(r.Context(), site.ID, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update site")
		return
	}

	h.recordChange(r, p, "site.update", updated)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/sites/{siteID}.
func (h *siteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	site, ok := h.loadSite(w, r)
	if !ok {
		return
	}

	if !policy.Sites.CanDelete(p, policy.SiteRef(site.OrganizationID, site.ID), h.now()) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot delete this site")
		return
	}
	if site.IsSystem {
		writeError(w, http.StatusConflict, "constraint_error", "the organization fallback site cannot be deleted")
		return
	}

	if err := h.store.DeleteSite(r.Context(), site.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete site")
		return
	}

	h.recordChange(r, p, "site.delete", site)
	w.WriteHeader(http.StatusNoContent)
}

// loadSite fetches the site from the URL param, writing the error response
// itself when the site cannot be served.
func (h *siteHandler) loadSite(w http.ResponseWriter, r *http.Request) (*tenant.Site, bool) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return nil, false
	}

	site, err := h.store.GetSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "site not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load site")
		}
		return nil, false
	}
	// Cross-org rows do not exist as far as the caller can tell.
	if site.OrganizationID != p.OrganizationID {
		writeError(w, http.StatusNotFound, "not_found", "site not found")
		return nil, false
	}
	return site, true
}

// recordChange publishes a site-set change trigger and records an activity
// entry for the mutation.
func (h *siteHandler) recordChange(r *http.Request, p *scope.Principal, action string, site *tenant.Site) {
	auditLog(r, action, "site", site.ID, "site_name", site.Name)
	h.broker.Publish(notify.Event{
		OrganizationID: site.OrganizationID,
		Kind:           notify.KindSites,
		OccurredAt:     h.now(),
	})
	h.collector.Record(activity.Record{
		OrganizationID: site.OrganizationID,
		SiteID:         &site.ID,
		ActorUserID:    p.ID,
		Action:         action,
		ResourceType:   "site",
		ResourceID:     site.ID,
	})
}
