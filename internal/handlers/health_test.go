package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tarodan/api/internal/services"
)

type stubSystemService struct {
	reportFn func(context.Context) (services.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return services.SystemHealthReport{}, errors.New("not implemented")
}

var _ services.SystemService = (*stubSystemService)(nil)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2025, 4, 4, 8, 0, 0, 0, time.UTC)
	now := start
	handler := NewHealthHandlers(WithHealthClock(func() time.Time { return now }))
	now = start.Add(90 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected status: %v", resp["status"])
	}
	if resp["uptime"] != "1m30s" {
		t.Fatalf("unexpected uptime: %v", resp["uptime"])
	}
}

func TestHealthHandlersReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzHealthy(t *testing.T) {
	now := time.Date(2025, 4, 4, 8, 0, 0, 0, time.UTC)
	system := &stubSystemService{
		reportFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Healthy: true,
				Components: map[string]string{
					"firestore": services.ComponentOK,
					"redis":     services.ComponentOK,
				},
				CheckedAt: now,
			}, nil
		},
	}
	handler := NewHealthHandlers(WithHealthSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp readinessPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "ok" || resp.Components["redis"] != "ok" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestHealthHandlersReadyzDegraded(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Healthy: false,
				Components: map[string]string{
					"firestore": services.ComponentOK,
					"redis":     "dial tcp: connection refused",
					"pubsub":    "context deadline exceeded",
				},
				CheckedAt: time.Date(2025, 4, 4, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	handler := NewHealthHandlers(WithHealthSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var resp readinessPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("unexpected status: %q", resp.Status)
	}
	want := []string{
		"pubsub: context deadline exceeded",
		"redis: dial tcp: connection refused",
	}
	if len(resp.Details) != len(want) {
		t.Fatalf("unexpected details: %#v", resp.Details)
	}
	for i, detail := range want {
		if resp.Details[i] != detail {
			t.Fatalf("detail %d: expected %q, got %q", i, detail, resp.Details[i])
		}
	}
}

func TestHealthHandlersReadyzProbeError(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{}, errors.New("probe timed out")
		},
	}
	handler := NewHealthHandlers(WithHealthSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var resp readinessPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "unavailable" || len(resp.Details) != 1 {
		t.Fatalf("unexpected response: %#v", resp)
	}
}
