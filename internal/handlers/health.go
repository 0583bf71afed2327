package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/tarodan/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes. Liveness never
// touches dependencies; readiness asks the system service to probe them.
type HealthHandlers struct {
	system  services.SystemService
	clock   func() time.Time
	started time.Time
}

// HealthOption customises the health handlers before construction.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the dependency probe used by Readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock overrides the time source, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.clock()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.started).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether dependencies are reachable. Without a system service
// it degrades to a liveness check.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readinessPayload{Status: "ok"})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readinessPayload{
			Status:  "unavailable",
			Details: []string{err.Error()},
		})
		return
	}

	payload := readinessPayload{
		Status:     "ok",
		Components: report.Components,
		CheckedAt:  formatTime(report.CheckedAt),
		Details:    []string{},
	}
	status := http.StatusOK
	if !report.Healthy {
		payload.Status = "degraded"
		status = http.StatusServiceUnavailable
		for name, state := range report.Components {
			if state != services.ComponentOK {
				payload.Details = append(payload.Details, name+": "+state)
			}
		}
		sort.Strings(payload.Details)
	}
	writeJSONResponse(w, status, payload)
}

type readinessPayload struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	CheckedAt  string            `json:"checked_at,omitempty"`
	Details    []string          `json:"details,omitempty"`
}
