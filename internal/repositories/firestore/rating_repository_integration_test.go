//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	pconfig "github.com/tarodan/api/internal/platform/config"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
	"github.com/tarodan/api/internal/repositories"
)

func TestRatingRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "rating-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewRatingRepository(provider)
	if err != nil {
		t.Fatalf("new rating repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	first := domain.Rating{
		ID:         "rat_0001",
		Kind:       domain.RatingKindUser,
		GiverID:    "alice",
		ReceiverID: "ben",
		OrderID:    "ord_0001",
		Score:      5,
		Comment:    "fast shipping",
		CreatedAt:  now,
	}

	if _, err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// A second rating by the same giver on the same order must conflict,
	// even under a fresh rating ID.
	duplicate := first
	duplicate.ID = "rat_0002"
	duplicate.Score = 1
	_, err = repo.Insert(ctx, duplicate)
	if err == nil {
		t.Fatal("expected conflict for duplicate rating slot")
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict repository error, got %T %v", err, err)
	}

	// The counterparty keeps an independent slot on the same order.
	counterpart := domain.Rating{
		ID:         "rat_0003",
		Kind:       domain.RatingKindUser,
		GiverID:    "ben",
		ReceiverID: "alice",
		OrderID:    "ord_0001",
		Score:      4,
		CreatedAt:  now.Add(time.Minute),
	}
	if _, err := repo.Insert(ctx, counterpart); err != nil {
		t.Fatalf("insert counterpart: %v", err)
	}

	found, err := repo.FindByGiverAndOrder(ctx, "alice", "ord_0001", domain.RatingKindUser)
	if err != nil {
		t.Fatalf("find by giver and order: %v", err)
	}
	if found.ID != "rat_0001" || found.Score != 5 {
		t.Fatalf("unexpected rating: %+v", found)
	}

	summary, err := repo.SummarizeReceiver(ctx, "ben")
	if err != nil {
		t.Fatalf("summarize receiver: %v", err)
	}
	if summary.Count != 1 || summary.Average != 5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	page, err := repo.ListByReceiver(ctx, "alice", domain.Pagination{PageSize: 10})
	if err != nil {
		t.Fatalf("list by receiver: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "rat_0003" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
