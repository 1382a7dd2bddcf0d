package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/solvereign/solvereign/internal/apperr"
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

// ErrorEnvelope is the standard JSON error shape returned by every 4xx/5xx
// response: {error_code, message, trace_id, details?}.
type ErrorEnvelope struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	TraceID   string `json:"trace_id"`
	Details   any    `json:"details,omitempty"`
}

// RespondError writes the standard error envelope for a plain error_code/message
// pair, with no structured classification. Prefer RespondAppError for errors
// produced by a service package.
func RespondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	Respond(w, status, ErrorEnvelope{
		ErrorCode: code,
		Message:   message,
		TraceID:   RequestIDFromContext(r.Context()),
	})
}

// RespondAppError translates a classified apperr.Error into the HTTP
// response it defines: status from Kind, error_code, message, trace_id, and
// any attached details. DEPENDENCY errors never leak the wrapped cause to
// the client; it is logged instead.
func RespondAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err *apperr.Error) {
	if err.Kind == apperr.KindDependency {
		logger.Error("internal error", "error_code", err.Code, "cause", err.Unwrap(), "trace_id", RequestIDFromContext(r.Context()))
	}

	if err.Retry != nil {
		w.Header().Set("Retry-After", strconv.Itoa(*err.Retry))
	}

	Respond(w, err.Status(), ErrorEnvelope{
		ErrorCode: err.Code,
		Message:   err.Message,
		TraceID:   RequestIDFromContext(r.Context()),
		Details:   err.Details,
	})
}
