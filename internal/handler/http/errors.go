package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gamenight/scheduler/internal/service"
)

// errorBody is the wire shape of every API failure. Details carries
// structured context like mention suggestions.
type errorBody struct {
	Error struct {
		Kind    service.Kind `json:"kind"`
		Message string       `json:"message"`
		Details any          `json:"details,omitempty"`
	} `json:"error"`
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindInvalid:
		return http.StatusBadRequest
	case service.KindDenied:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var body errorBody
	if se, ok := service.AsError(err); ok {
		body.Error.Kind = se.Kind
		body.Error.Message = se.Message
		body.Error.Details = se.Details
	} else {
		body.Error.Kind = service.KindInternal
		body.Error.Message = "internal error"
	}

	if body.Error.Kind == service.KindInternal {
		// Internals are logged with the cause; the response stays opaque.
		logger.Error("REQUEST_FAILED", slog.Any("error", err))
		body.Error.Message = "internal error"
		body.Error.Details = nil
	}

	writeJSON(w, statusFor(body.Error.Kind), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
