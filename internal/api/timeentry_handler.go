package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/scoped"
)

// timeEntryHandler groups time-entry HTTP handlers. Users can edit their own
// entries; managers can edit anyone's at their site.
type timeEntryHandler struct {
	store     *scoped.TimeEntryStore
	collector *activity.Collector
}

func newTimeEntryHandler(store *scoped.TimeEntryStore, collector *activity.Collector) *timeEntryHandler {
	return &timeEntryHandler{store: store, collector: collector}
}

// ListBySite handles GET /api/v1/sites/{siteID}/time-entries.
func (h *timeEntryHandler) ListBySite(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		writeStoreError(w, err, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"time_entries": entries})
}

// Create handles POST /api/v1/sites/{siteID}/time-entries. Entries are always
// recorded against the caller.
func (h *timeEntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req scoped.CreateTimeEntryInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Hours <= 0 || req.Hours > 24 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "hours must be between 0 and 24")
		return
	}
	if req.Day.IsZero() {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "day is required")
		return
	}

	entry, err := h.store.Create(r.Context(), chi.URLParam(r, "siteID"), req)
	if err != nil {
		writeStoreError(w, err, "site not found")
		return
	}

	h.record(r, "time_entry.create", entry)
	writeJSON(w, http.StatusCreated, entry)
}

// Update handles PATCH /api/v1/time-entries/{timeEntryID}.
func (h *timeEntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req scoped.UpdateTimeEntryInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Hours != nil && (*req.Hours <= 0 || *req.Hours > 24) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "hours must be between 0 and 24")
		return
	}

	entry, err := h.store.Update(r.Context(), chi.URLParam(r, "timeEntryID"), req)
	if err != nil {
		writeStoreError(w, err, "time entry not found")
		return
	}

	h.record(r, "time_entry.update", entry)
	writeJSON(w, http.StatusOK, entry)
}

// Delete handles DELETE /api/v1/time-entries/{timeEntryID}.
func (h *timeEntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "timeEntryID")); err != nil {
		writeStoreError(w, err, "time entry not found")
		return
	}
	auditLog(r, "time_entry.delete", "time_entry", chi.URLParam(r, "timeEntryID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *timeEntryHandler) record(r *http.Request, action string, entry *scoped.TimeEntry) {
	auditLog(r, action, "time_entry", entry.ID)
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		return
	}
	h.collector.Record(activity.Record{
		OrganizationID: entry.OrganizationID,
		SiteID:         &entry.SiteID,
		ActorUserID:    p.ID,
		Action:         action,
		ResourceType:   "time_entry",
		ResourceID:     entry.ID,
	})
}
