package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/requestctx"
)

// Error is the JSON error envelope sent to the browser. Details become extra top-level fields,
// e.g. "fields" for validation failures or the re-fetched "addresses" after a failed write.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an envelope; a zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, 80),
		Message: oneLine(message, 512),
		Status:  status,
	}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// With returns a copy of e carrying one more top-level field.
func (e Error) With(key string, value any) Error {
	details := make(map[string]any, len(e.Details)+1)
	maps.Copy(details, e.Details)
	details[key] = value
	e.Details = details
	return e
}

// WriteError writes err with the request and trace ids of ctx. Envelope keys win over details.
// Upstream failures carry Retry-After since the browser is told to retry.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	payload := make(map[string]any, len(err.Details)+5)
	maps.Copy(payload, err.Details)
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if id := oneLine(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := oneLine(requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}

	w.Header().Set("Cache-Control", "no-store")
	if status == http.StatusBadGateway || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "2")
	}
	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// oneLine folds line breaks and cuts value to at most limit bytes on a rune boundary.
func oneLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value))
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
