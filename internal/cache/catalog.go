// Package cache holds the Redis read-through cache for product detail pages.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/models"
	"go.uber.org/zap"
)

// Catalog caches products by slug. A nil *Catalog is valid and always loads
// from the source.
type Catalog struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCatalog(client *redis.Client, ttl time.Duration) *Catalog {
	return &Catalog{client: client, ttl: ttl}
}

func productKey(slug string) string { return "catalog:product:" + slug }

func slugKey(productID int64) string { return "catalog:slug:" + strconv.FormatInt(productID, 10) }

// Product returns the cached product for slug, calling load and filling the
// cache on a miss. Redis failures degrade to load.
func (c *Catalog) Product(ctx context.Context, slug string, load func(context.Context) (*models.Product, error)) (*models.Product, error) {
	if c == nil {
		return load(ctx)
	}

	data, err := c.client.Get(ctx, productKey(slug)).Bytes()
	if err == nil {
		var p models.Product
		if uErr := json.Unmarshal(data, &p); uErr == nil {
			c.hits.Add(1)
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("catalog cache read failed", zap.String("slug", slug), zap.Error(err))
	}

	c.misses.Add(1)
	p, err := load(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return p, nil
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, productKey(slug), payload, c.ttl)
	pipe.Set(ctx, slugKey(p.ID), slug, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("catalog cache fill failed", zap.String("slug", slug), zap.Error(err))
	}

	return p, nil
}

// InvalidateProducts drops cached entries for the given product ids.
func (c *Catalog) InvalidateProducts(ctx context.Context, productIDs ...int64) error {
	if c == nil || len(productIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(productIDs)*2)
	for _, id := range productIDs {
		key := slugKey(id)
		keys = append(keys, key)

		slug, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup cached slug: %w", err)
		}
		keys = append(keys, productKey(slug))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate products: %w", err)
	}
	return nil
}

// InvalidateSlug drops one product entry by slug.
func (c *Catalog) InvalidateSlug(ctx context.Context, slug string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, productKey(slug)).Err(); err != nil {
		return fmt.Errorf("invalidate product: %w", err)
	}
	return nil
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func (c *Catalog) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Ping reports whether the backing Redis is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
