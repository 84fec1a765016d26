package api

import (
	"context"
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

// assignmentStore is the slice of the tenant store the assignment handlers
// read and write through. Satisfied by *tenant.Store.
type assignmentStore interface {
	GetSite(ctx context.Context, id string) (*tenant.Site, error)
	GetUser(ctx context.Context, id string) (*tenant.User, error)
	GetAssignment(ctx context.Context, id string) (*tenant.SiteAssignment, error)
	ListAssignmentsBySite(ctx context.Context, siteID string) ([]*tenant.SiteAssignment, error)
	ListAssignmentsByUser(ctx context.Context, userID string) ([]*tenant.SiteAssignment, error)
	CreateAssignment(ctx context.Context, in tenant.CreateAssignmentInput) (*tenant.SiteAssignment, error)
	UpdateAssignment(ctx context.Context, id string, in tenant.UpdateAssignmentInput) (*tenant.SiteAssignment, error)
	DeleteAssignment(ctx context.Context, id string) error
}

// assignmentHandler groups site-assignment HTTP handlers. Assignment rows are
// the one record type whose visibility follows its own site column: a user
// always sees their own rows, managers see every row at their site, and plain
// site membership is not enough.
type assignmentHandler struct {
	store     assignmentStore
	broker    *notify.Broker
	collector *activity.Collector
	now       func() time.Time
}

func newAssignmentHandler(store assignmentStore, broker *notify.Broker, collector *activity.Collector) *assignmentHandler {
	return &assignmentHandler{store: store, broker: broker, collector: collector, now: time.Now}
}

func assignmentRef(orgID string, a *tenant.SiteAssignment) policy.RecordRef {
	return policy.RecordRef{
		OrganizationID: orgID,
		SiteID:         &a.SiteID,
		OwnerUserID:    a.UserID,
	}
}

// resolveSite anchors every /sites/{siteID}/assignments operation on the
// site row itself: a missing site or one in another organization answers
// not found, so foreign site ids are never confirmed and the record refs
// below carry the site's own organization id.
func (h *assignmentHandler) resolveSite(w http.ResponseWriter, r *http.Request) (*scope.Principal, *tenant.Site, bool) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return nil, nil, false
	}

	site, err := h.store.GetSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "site not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load site")
		}
		return nil, nil, false
	}
	if site.OrganizationID != p.OrganizationID {
		writeError(w, http.StatusNotFound, "not_found", "site not found")
		return nil, nil, false
	}
	return p, site, true
}

// ListBySite handles GET /api/v1/sites/{siteID}/assignments.
func (h *assignmentHandler) ListBySite(w http.ResponseWriter, r *http.Request) {
	p, site, ok := h.resolveSite(w, r)
	if !ok {
		return
	}

	all, err := h.store.ListAssignmentsBySite(r.Context(), site.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list assignments")
		return
	}

	visible := make([]*tenant.SiteAssignment, 0, len(all))
	for _, a := range all {
		if policy.Assignments.CanRead(p, assignmentRef(site.OrganizationID, a), h.now()) {
			visible = append(visible, a)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assignments": visible})
}

// ListMine handles GET /api/v1/me/assignments — the caller's own rows,
// including ones no longer in effect.
func (h *assignmentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	rows, err := h.store.ListAssignmentsByUser(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list assignments")
		return
	}
	if rows == nil {
		rows = []*tenant.SiteAssignment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assignments": rows})
}

// Create handles POST /api/v1/sites/{siteID}/assignments.
func (h *assignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, site, ok := h.resolveSite(w, r)
	if !ok {
		return
	}

	siteID := site.ID
	if !p.CanManageAt(siteID, h.now()) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot manage assignments at this site")
		return
	}

	var req struct {
		UserID    string     `json:"user_id"`
		Role      string     `json:"role"`
		StartDate time.Time  `json:"start_date"`
		EndDate   *time.Time `json:"end_date"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "user_id is required")
		return
	}
	if !tenant.ValidRole(req.Role) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "unknown assignment role")
		return
	}

	// The assignee must belong to the caller's organization.
	target, err := h.store.GetUser(r.Context(), req.UserID)
	if err != nil || target.OrganizationID != p.OrganizationID {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}

	created, err := h.store.CreateAssignment(r.Context(), tenant.CreateAssignmentInput{
		UserID:    req.UserID,
		SiteID:    siteID,
		Role:      req.Role,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		if errors.Is(err, tenant.ErrDuplicateAssignment) {
			writeError(w, http.StatusConflict, "conflict", "user already has an active assignment at this site")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create assignment")
		return
	}

	h.recordChange(r, p, "assignment.create", created)
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PATCH /api/v1/assignments/{assignmentID}. Deactivating a row
// (is_active=false) is the normal way to pull someone off a site.
func (h *assignmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	a, ok := h.loadAssignment(w, r)
	if !ok {
		return
	}

	if !policy.Assignments.CanModify(p, assignmentRef(p.OrganizationID, a), h.now()) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot modify this assignment")
		return
	}

	var req tenant.UpdateAssignmentInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Role != nil && !tenant.ValidRole(*req.Role) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "unknown assignment role")
		return
	}

	updated, err := h.store.UpdateAssignment(r.Context(), a.ID, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update assignment")
		return
	}

	h.recordChange(r, p, "assignment.update", updated)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/assignments/{assignmentID}. Hard deletes are
// admin-only; managers deactivate instead.
func (h *assignmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	a, ok := h.loadAssignment(w, r)
	if !ok {
		return
	}

	if !policy.Assignments.CanDelete(p, assignmentRef(p.OrganizationID, a), h.now()) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot delete this assignment")
		return
	}

	if err := h.store.DeleteAssignment(r.Context(), a.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete assignment")
		return
	}

	h.recordChange(r, p, "assignment.delete", a)
	w.WriteHeader(http.StatusNoContent)
}

func (h *assignmentHandler) loadAssignment(w http.ResponseWriter, r *http.Request) (*tenant.SiteAssignment, bool) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return nil, false
	}

	a, err := h.store.GetAssignment(r.Context(), chi.URLParam(r, "assignmentID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "assignment not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load assignment")
		}
		return nil, false
	}

	// The site anchors the org check: a row pointing at another org's site
	// does not exist for this caller.
	site, err := h.store.GetSite(r.Context(), a.SiteID)
	if err != nil || site.OrganizationID != p.OrganizationID {
		writeError(w, http.StatusNotFound, "not_found", "assignment not found")
		return nil, false
	}
	return a, true
}

func (h *assignmentHandler) recordChange(r *http.Request, p *scope.Principal, action string, a *tenant.SiteAssignment) {
	auditLog(r, action, "site_assignment", a.ID, "assignee_user_id", a.UserID, "site_id", a.SiteID)
	h.broker.Publish(notify.Event{
		OrganizationID: p.OrganizationID,
		Kind:           notify.KindAssignments,
		OccurredAt:     h.now(),
	})
	h.collector.Record(activity.Record{
		OrganizationID: p.OrganizationID,
		SiteID:         &a.SiteID,
		ActorUserID:    p.ID,
		Action:         action,
		ResourceType:   "site_assignment",
		ResourceID:     a.ID,
	})
}
