package httpx

import (
	"net/http"

	"github.com/sundayezeilo/shortly/internal/errx"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
// Backend failures of any flavour surface as 500.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Conflict:
		return http.StatusConflict
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Unauthorized:
		return http.StatusUnauthorized
	case errx.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps errx.Kind to error codes for JSON responses.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "not_found"
	case errx.Conflict:
		return "conflict"
	case errx.Invalid:
		return "invalid_input"
	case errx.Unauthorized:
		return "unauthorized"
	case errx.Forbidden:
		return "forbidden"
	case errx.Unavailable:
		return "unavailable"
	case errx.Exhausted:
		return "retry_exhausted"
	default:
		return "internal_error"
	}
}

// IsClientError reports whether kind is caused by the caller rather than
// the backend. Handlers log client errors at Warn and the rest at Error.
func IsClientError(kind errx.Kind) bool {
	return ErrorKindToStatus(kind) < http.StatusInternalServerError
}
