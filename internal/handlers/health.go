package handlers

import (
	"net/http"
	"time"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
)

// HealthHandlers serves liveness probes.
type HealthHandlers struct {
	started time.Time
	now     func() time.Time
	version string
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthVersion reports version in the payload.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) { h.version = version }
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs HealthHandlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// Healthz responds with a simple status payload.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.started).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}
