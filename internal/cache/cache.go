package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
)

const productTTL = 5 * time.Minute

// ProductCache is a read-through cache for catalog lookups. A nil
// *ProductCache is valid and disables caching, so callers never branch on
// configuration.
type ProductCache struct {
	client  *redis.Client
	metrics *metrics.AppMetrics
}

// NewProductCache connects to Redis and verifies the connection.
func NewProductCache(addr, password string, m *metrics.AppMetrics) (*ProductCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &ProductCache{client: client, metrics: m}, nil
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

// GetProduct returns the cached product or nil on a miss. Cache failures are
// logged and treated as misses; the database stays the source of truth.
func (c *ProductCache) GetProduct(ctx context.Context, id int64) *models.Product {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Int64("product_id", id).Msg("product cache read failed")
		}
		c.metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(c.metrics.WithServiceName(nil)...))
		return nil
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		log.Warn().Err(err).Int64("product_id", id).Msg("product cache entry corrupt")
		c.metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(c.metrics.WithServiceName(nil)...))
		return nil
	}

	c.metrics.CacheHits.Add(ctx, 1, metric.WithAttributes(c.metrics.WithServiceName(nil)...))
	return &product
}

// SetProduct stores a product with a short TTL.
func (c *ProductCache) SetProduct(ctx context.Context, product *models.Product) {
	if c == nil {
		return
	}

	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, productKey(product.ID), data, productTTL).Err(); err != nil {
		log.Warn().Err(err).Int64("product_id", product.ID).Msg("product cache write failed")
	}
}

// Invalidate drops cached entries after any product mutation, including
// stock decrements during fulfillment.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...int64) {
	if c == nil || len(ids) == 0 {
		return
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Msg("product cache invalidation failed")
	}
}

// Close releases the Redis connection.
func (c *ProductCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
