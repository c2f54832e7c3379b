package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sentrywear/sentry/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope (spec.md §7).
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	Respond(w, status, ErrorResponse{Error: err, Message: message})
}

// RespondAppErr renders err using the apperr taxonomy (spec.md §7): the
// Kind maps to an HTTP status, Message is caller-safe, and Fields (if any)
// surfaces per-field validation detail. Any error not carrying a tagged
// *apperr.Error is treated as Internal and never leaks its underlying text.
func RespondAppErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		logger.Error("unhandled error", "error", err)
		Respond(w, http.StatusInternalServerError, ErrorResponse{
			Error:   string(apperr.Internal),
			Message: "internal error",
		})
		return
	}

	if ae.Kind == apperr.Internal || ae.Kind == apperr.StorageUnavailable {
		logger.Error("request failed", "kind", ae.Kind, "error", err)
	}

	Respond(w, ae.Kind.HTTPStatus(), ErrorResponse{
		Error:   string(ae.Kind),
		Message: ae.Message,
		Fields:  ae.Fields,
	})
}
