package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sundayezeilo/shortly/internal/errx"
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; all that is left is to log.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}

// WriteKindError writes the status and code that err's kind maps to.
// Client errors echo err's message; backend errors use the fallback so
// driver details never leak to callers.
func WriteKindError(w http.ResponseWriter, err error, fallback string) {
	kind := errx.KindOf(err)
	message := fallback
	if IsClientError(kind) {
		message = RootMessage(err)
	}
	WriteError(w, ErrorKindToStatus(kind), ErrorKindToCode(kind), message, nil)
}

// RootMessage returns the innermost message of an errx chain, without the
// op prefixes.
func RootMessage(err error) string {
	for {
		e, ok := err.(*errx.Error)
		if !ok || e.Err == nil {
			return err.Error()
		}
		err = e.Err
	}
}

// WantsJSON reports whether the client prefers a JSON body over a redirect,
// either through the Accept header or an explicit format=json query.
func WantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return AcceptsJSON(r.Header.Get("Accept"))
}

// AcceptsJSON reports whether an Accept header value lists application/json.
func AcceptsJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(mediaType), "application/json") {
			return true
		}
	}
	return false
}
