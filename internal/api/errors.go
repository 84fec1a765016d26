package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/scoped"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// writeStoreError maps data-layer errors onto the envelope. Authorization
// denials surface as a generic forbidden result; missing principals as
// unauthorized; missing rows as not found.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, scope.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
	case errors.Is(err, scoped.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "operation not permitted")
	case errors.Is(err, scoped.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "not_found", "site not found")
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "not_found", notFoundMsg)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
