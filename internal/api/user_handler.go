package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/crewdeck/crewdeck/internal/policy"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

// userHandler groups user HTTP handlers. Profiles are admin-or-own.
type userHandler struct {
	store *tenant.Store
	now   func() time.Time
}

func newUserHandler(store *tenant.Store) *userHandler {
	return &userHandler{store: store, now: time.Now}
}

// List handles GET /api/v1/users. The route sits behind RequireAdmin.
func (h *userHandler) List(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	users, err := h.store.ListUsersByOrganization(r.Context(), p.OrganizationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}
	if users == nil {
		users = []*tenant.User{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// Create handles POST /api/v1/users. The route sits behind RequireAdmin; the
// new user always lands in the caller's organization.
func (h *userHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req tenant.CreateUserInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email, password, and name are required")
		return
	}
	req.OrganizationID = p.OrganizationID

	u, err := h.store.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	auditLog(r, "user.create", "user", u.ID, "email", u.Email)
	writeJSON(w, http.StatusCreated, u)
}

// Get handles GET /api/v1/users/{userID}.
func (h *userHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	u, err := h.store.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		}
		return
	}

	ref := policy.RecordRef{OrganizationID: u.OrganizationID, OwnerUserID: u.ID}
	if !policy.Users.CanRead(p, ref, h.now()) {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
