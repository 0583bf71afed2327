package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	deleted [][]string
	scans   map[string][]string
	delErr  error
	scanErr error
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.delErr != nil {
		cmd.SetErr(f.delErr)
		return cmd
	}
	f.deleted = append(f.deleted, keys)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	if f.scanErr != nil {
		cmd.SetErr(f.scanErr)
		return cmd
	}
	cmd.SetVal(f.scans[match], 0)
	return cmd
}

func TestInvalidateProductDropsDetailAndRatingKeys(t *testing.T) {
	fake := &fakeRedis{}
	invalidator := &ProductCacheInvalidator{client: fake}

	if err := invalidator.InvalidateProduct(context.Background(), "prd_0001"); err != nil {
		t.Fatalf("InvalidateProduct: %v", err)
	}

	if len(fake.deleted) != 1 {
		t.Fatalf("expected one delete batch, got %d", len(fake.deleted))
	}
	keys := fake.deleted[0]
	if len(keys) != 2 || keys[0] != "tarodan:products:detail:prd_0001" || keys[1] != "tarodan:products:ratings:prd_0001" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestInvalidateSellerDropsProfileAndListingVariants(t *testing.T) {
	fake := &fakeRedis{
		scans: map[string][]string{
			"tarodan:sellers:listings:ben:*": {
				"tarodan:sellers:listings:ben:page1",
				"tarodan:sellers:listings:ben:page2",
			},
		},
	}
	invalidator := &ProductCacheInvalidator{client: fake}

	if err := invalidator.InvalidateSeller(context.Background(), "ben"); err != nil {
		t.Fatalf("InvalidateSeller: %v", err)
	}

	if len(fake.deleted) != 2 {
		t.Fatalf("expected two delete batches, got %d", len(fake.deleted))
	}
	if fake.deleted[0][0] != "tarodan:sellers:profile:ben" {
		t.Fatalf("unexpected profile key: %v", fake.deleted[0])
	}
	if len(fake.deleted[1]) != 2 {
		t.Fatalf("expected listing variants batch, got %v", fake.deleted[1])
	}
}

func TestInvalidateReportsRedisErrors(t *testing.T) {
	boom := errors.New("connection refused")
	invalidator := &ProductCacheInvalidator{client: &fakeRedis{delErr: boom}}

	if err := invalidator.InvalidateProduct(context.Background(), "prd_0001"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped redis error, got %v", err)
	}
	if err := invalidator.InvalidateSeller(context.Background(), "ben"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped redis error, got %v", err)
	}
}

func TestInvalidateRequiresIDs(t *testing.T) {
	invalidator := &ProductCacheInvalidator{client: &fakeRedis{}}

	if err := invalidator.InvalidateProduct(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank product id")
	}
	if err := invalidator.InvalidateSeller(context.Background(), ""); err == nil {
		t.Fatal("expected error for blank seller id")
	}
}
