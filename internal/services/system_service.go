package services

import (
	"context"
	"errors"
	"time"

	"github.com/tarodan/api/internal/repositories"
)

// ComponentOK is the value a healthy component reports; anything else is
// treated as the failure detail.
const ComponentOK = "ok"

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system utility service providing health reports.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	if report.CheckedAt.IsZero() {
		report.CheckedAt = s.clock()
	} else {
		report.CheckedAt = report.CheckedAt.UTC()
	}
	if report.Components == nil {
		report.Components = map[string]string{}
	}
	report.Healthy = allComponentsOK(report.Components)

	return report, nil
}

func allComponentsOK(components map[string]string) bool {
	for _, status := range components {
		if status != ComponentOK {
			return false
		}
	}
	return true
}
