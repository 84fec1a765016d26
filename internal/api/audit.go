package api

import (
	"log/slog"
	"net/http"

	"github.com/crewdeck/crewdeck/internal/scope"
)

// auditLog emits a structured audit log entry for a mutating action.
func auditLog(r *http.Request, action string, resourceType string, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", clientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if p := scope.PrincipalFromContext(r.Context()); p != nil {
		attrs = append(attrs, "user_id", p.ID, "organization_id", p.OrganizationID, "admin", p.Admin)
	}

	attrs = append(attrs, detail...)
	slog.Info("audit", attrs...)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
