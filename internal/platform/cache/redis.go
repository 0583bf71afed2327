// Package cache invalidates cached product and seller pages in Redis when
// rating aggregates change. The API never reads through the cache itself;
// rendered pages are owned by the storefront and only dropped from here.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	productKeyPrefix = "tarodan:products:"
	sellerKeyPrefix  = "tarodan:sellers:"

	scanBatchSize = 200
)

// Connect initialises a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, errors.New("cache: redis address is required")
	}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("cache: parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// redisCommands is the slice of the go-redis API the invalidator needs.
type redisCommands interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// ProductCacheInvalidator drops cached product and seller pages.
type ProductCacheInvalidator struct {
	client redisCommands
}

// NewProductCacheInvalidator wraps a Redis client.
func NewProductCacheInvalidator(client *redis.Client) (*ProductCacheInvalidator, error) {
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	return &ProductCacheInvalidator{client: client}, nil
}

// InvalidateProduct removes the detail page and rating block for a listing.
func (c *ProductCacheInvalidator) InvalidateProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("cache: product id is required")
	}
	keys := []string{
		productKeyPrefix + "detail:" + productID,
		productKeyPrefix + "ratings:" + productID,
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate product %s: %w", productID, err)
	}
	return nil
}

// InvalidateSeller removes the seller profile page and every cached listing
// page variant (sort/filter permutations are stored under a key suffix).
func (c *ProductCacheInvalidator) InvalidateSeller(ctx context.Context, sellerID string) error {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return errors.New("cache: seller id is required")
	}

	if err := c.client.Del(ctx, sellerKeyPrefix+"profile:"+sellerID).Err(); err != nil {
		return fmt.Errorf("cache: invalidate seller %s: %w", sellerID, err)
	}

	pattern := sellerKeyPrefix + "listings:" + sellerID + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("cache: scan seller listings %s: %w", sellerID, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: invalidate seller listings %s: %w", sellerID, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
