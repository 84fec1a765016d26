package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crewdeck/crewdeck/internal/scope"
)

// AuthTypeSession labels session-token authentication in metrics.
const AuthTypeSession = "session"

// Recorder counts authentication outcomes. Satisfied by *metrics.Metrics;
// nil disables recording.
type Recorder interface {
	IncAuthSuccess(authType string)
	IncAuthFailure(authType string)
}

// Middleware returns middleware that authenticates requests using a bearer
// session token. On success the resolved principal is injected into the
// request context.
func Middleware(svc *Service, rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				if rec != nil {
					rec.IncAuthFailure(AuthTypeSession)
				}
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			principal, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				if rec != nil {
					rec.IncAuthFailure(AuthTypeSession)
				}
				writeUnauthorized(w, "invalid or expired session")
				return
			}
			if rec != nil {
				rec.IncAuthSuccess(AuthTypeSession)
			}

			ctx := scope.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns middleware that rejects non-admin principals. It must
// run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := scope.PrincipalFromContext(r.Context())
		if p == nil {
			writeUnauthorized(w, "not authenticated")
			return
		}
		if !p.IsAdmin() {
			writeForbidden(w, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusForbidden, "forbidden", message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}
