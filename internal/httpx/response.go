// Package httpx holds the small JSON response helpers every httpapi
// handler shares, adapted from the teacher's server response helpers.
package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ringtsdb/ringtsdb/internal/errs"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("httpx: failed to encode JSON response: %v", err)
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondErrorString writes an error response with the given status and
// message.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}

// RespondError classifies err by errs.Kind (spec.md §7) and writes the
// matching HTTP status: unrecognized errors (no *errs.Error in the chain)
// are treated as BACKEND_FATAL.
func RespondError(w http.ResponseWriter, err error) {
	status := statusForKind(err)
	RespondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: err.Error()})
}

func statusForKind(err error) int {
	kind, ok := errs.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict, errs.TypeMismatch:
		return http.StatusConflict
	case errs.LimitExceeded:
		return http.StatusRequestEntityTooLarge
	case errs.BackendTransient:
		return http.StatusServiceUnavailable
	case errs.BackendFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
