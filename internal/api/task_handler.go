package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/scoped"
)

// taskHandler groups task HTTP handlers. Tasks can be site-scoped or
// organization-wide (nil site id).
type taskHandler struct {
	store     *scoped.TaskStore
	collector *activity.Collector
}

func newTaskHandler(store *scoped.TaskStore, collector *activity.Collector) *taskHandler {
	return &taskHandler{store: store, collector: collector}
}

// ListBySite handles GET /api/v1/sites/{siteID}/tasks.
func (h *taskHandler) ListBySite(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.List(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		writeStoreError(w, err, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// ListOrgWide handles GET /api/v1/tasks/org-wide.
func (h *taskHandler) ListOrgWide(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListOrgWide(r.Context())
	if err != nil {
		writeStoreError(w, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *taskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// CreateBySite handles POST /api/v1/sites/{siteID}/tasks.
func (h *taskHandler) CreateBySite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	h.create(w, r, &siteID)
}

// CreateOrgWide handles POST /api/v1/tasks/org-wide. Only managers of the
// organization fallback site and admins can write org-wide entries, which the
// store's predicate enforces.
func (h *taskHandler) CreateOrgWide(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, nil)
}

func (h *taskHandler) create(w http.ResponseWriter, r *http.Request, siteID *string) {
	var req scoped.CreateTaskInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "title is required")
		return
	}
	if req.Status == "" {
		req.Status = scoped.TaskStatusPlanned
	}
	if !validTaskStatus(req.Status) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "unknown task status")
		return
	}

	task, err := h.store.Create(r.Context(), siteID, req)
	if err != nil {
		writeStoreError(w, err, "site not found")
		return
	}

	h.record(r, "task.create", task)
	writeJSON(w, http.StatusCreated, task)
}

// Update handles PATCH /api/v1/tasks/{taskID}.
func (h *taskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req scoped.UpdateTaskInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Status != nil && !validTaskStatus(*req.Status) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "unknown task status")
		return
	}

	task, err := h.store.Update(r.Context(), chi.URLParam(r, "taskID"), req)
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}

	h.record(r, "task.update", task)
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/{taskID}.
func (h *taskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	task, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "task not found")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "task not found")
		return
	}

	h.record(r, "task.delete", task)
	w.WriteHeader(http.StatusNoContent)
}

func validTaskStatus(s string) bool {
	switch s {
	case scoped.TaskStatusPlanned, scoped.TaskStatusInProgress, scoped.TaskStatusDone:
		return true
	}
	return false
}

func (h *taskHandler) record(r *http.Request, action string, task *scoped.Task) {
	auditLog(r, action, "task", task.ID)
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		return
	}
	h.collector.Record(activity.Record{
		OrganizationID: task.OrganizationID,
		SiteID:         task.SiteID,
		ActorUserID:    p.ID,
		Action:         action,
		ResourceType:   "task",
		ResourceID:     task.ID,
	})
}
