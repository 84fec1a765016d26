package api

import (
	"errors"
	"net/http"

	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/scope"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	svc *auth.Service
}

func newAuthHandler(svc *auth.Service) *authHandler {
	return &authHandler{svc: svc}
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	token, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	auditLog(r, "login", "user", u.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":              u.ID,
			"organization_id": u.OrganizationID,
			"email":           u.Email,
			"name":            u.Name,
			"admin":           u.Admin,
		},
	})
}

// Logout handles POST /api/v1/auth/logout. Tokens are stateless, so the
// client discards its copy; the server records the event for the audit trail.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	auditLog(r, "logout", "user", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := scope.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":              p.ID,
		"organization_id": p.OrganizationID,
		"name":            p.Name,
		"admin":           p.Admin,
		"assignments":     p.Assignments,
	})
}
