package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/policy"
	"github.com/crewdeck/crewdeck/internal/scope"
)

const defaultActivityLimit = 50

// activityHandler serves the append-only activity feed.
type activityHandler struct {
	store *activity.Store
	now   func() time.Time
}

func newActivityHandler(store *activity.Store) *activityHandler {
	return &activityHandler{store: store, now: time.Now}
}

// ListBySite handles GET /api/v1/sites/{siteID}/activity.
func (h *activityHandler) ListBySite(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	siteID := chi.URLParam(r, "siteID")
	if !policy.Activity.CanRead(p, policy.SiteRef(p.OrganizationID, siteID), h.now()) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot view activity at this site")
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := h.store.ListBySite(r.Context(), p.OrganizationID, siteID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list activity")
		return
	}
	if records == nil {
		records = []activity.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": records})
}
