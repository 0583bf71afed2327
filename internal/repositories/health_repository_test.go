package repositories

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	checks := []DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(10 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{
			Name: "storage",
			Check: func(context.Context) error {
				return nil
			},
		},
	}

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(checks,
		WithDependencyClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	ctx := context.Background()
	report, err := repo.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if !report.Healthy {
		t.Fatalf("expected healthy report, got %+v", report)
	}
	if len(report.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report.Components))
	}
	for name, detail := range report.Components {
		if detail != "ok" {
			t.Fatalf("expected component %s to be ok, got %q", name, detail)
		}
	}
	if report.CheckedAt != now {
		t.Fatalf("expected checkedAt %s, got %s", now, report.CheckedAt)
	}
}

func TestDependencyHealthRepositoryCollectFailure(t *testing.T) {
	expectedErr := errors.New("boom")
	checks := []DependencyCheck{
		{
			Name: "firestore",
			Check: func(context.Context) error {
				return expectedErr
			},
		},
		{
			Name: "pubsub",
			Check: func(context.Context) error {
				return nil
			},
		},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	ctx := context.Background()
	report, err := repo.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Healthy {
		t.Fatalf("expected unhealthy report, got %+v", report)
	}
	if report.Components["firestore"] != expectedErr.Error() {
		t.Fatalf("expected firestore detail %q, got %q", expectedErr.Error(), report.Components["firestore"])
	}
	if report.Components["pubsub"] != "ok" {
		t.Fatalf("expected pubsub ok, got %q", report.Components["pubsub"])
	}
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	checks := []DependencyCheck{
		{
			Name:    "secrets",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(20 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	ctx := context.Background()
	report, err := repo.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Healthy {
		t.Fatalf("expected unhealthy report, got %+v", report)
	}
	if !strings.Contains(report.Components["secrets"], "deadline") {
		t.Fatalf("expected deadline detail, got %q", report.Components["secrets"])
	}
}

func TestDependencyHealthRepositoryRejectsEmptyChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty check set")
	}
}
