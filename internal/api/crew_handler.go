package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/scoped"
)

// crewHandler groups crew-member HTTP handlers. Authorization lives in the
// store layer; the handler just shapes requests and responses.
type crewHandler struct {
	store     *scoped.CrewStore
	collector *activity.Collector
}

func newCrewHandler(store *scoped.CrewStore, collector *activity.Collector) *crewHandler {
	return &crewHandler{store: store, collector: collector}
}

// ListBySite handles GET /api/v1/sites/{siteID}/crew.
func (h *crewHandler) ListBySite(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		writeStoreError(w, err, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"crew_members": members})
}

// Get handles GET /api/v1/crew/{crewMemberID}.
func (h *crewHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, err := h.store.Get(r.Context(), chi.URLParam(r, "crewMemberID"))
	if err != nil {
		writeStoreError(w, err, "crew member not found")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// Create handles POST /api/v1/sites/{siteID}/crew.
func (h *crewHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req scoped.CreateCrewMemberInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "name is required")
		return
	}

	member, err := h.store.Create(r.Context(), chi.URLParam(r, "siteID"), req)
	if err != nil {
		writeStoreError(w, err, "site not found")
		return
	}

	h.record(r, "crew_member.create", member)
	writeJSON(w, http.StatusCreated, member)
}

// Update handles PATCH /api/v1/crew/{crewMemberID}.
func (h *crewHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req scoped.UpdateCrewMemberInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	member, err := h.store.Update(r.Context(), chi.URLParam(r, "crewMemberID"), req)
	if err != nil {
		writeStoreError(w, err, "crew member not found")
		return
	}

	h.record(r, "crew_member.update", member)
	writeJSON(w, http.StatusOK, member)
}

// Delete handles DELETE /api/v1/crew/{crewMemberID}.
func (h *crewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "crewMemberID")
	member, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "crew member not found")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "crew member not found")
		return
	}

	h.record(r, "crew_member.delete", member)
	w.WriteHeader(http.StatusNoContent)
}

func (h *crewHandler) record(r *http.Request, action string, member *scoped.CrewMember) {
	auditLog(r, action, "crew_member", member.ID)
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		return
	}
	h.collector.Record(activity.Record{
		OrganizationID: member.OrganizationID,
		SiteID:         &member.SiteID,
		ActorUserID:    p.ID,
		Action:         action,
		ResourceType:   "crew_member",
		ResourceID:     member.ID,
	})
}
