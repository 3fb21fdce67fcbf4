package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/dropshop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) (*Catalog, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCatalog(client, time.Minute), mr
}

func loader(calls *int, p *models.Product) func(context.Context) (*models.Product, error) {
	return func(context.Context) (*models.Product, error) {
		*calls++
		copied := *p
		return &copied, nil
	}
}

func TestProductReadThrough(t *testing.T) {
	c, mr := newTestCatalog(t)
	ctx := context.Background()

	src := &models.Product{ID: 7, Slug: "box-logo-hoodie", Name: "Box Logo Hoodie", BasePrice: decimal.RequireFromString("49.99")}
	calls := 0

	first, err := c.Product(ctx, src.Slug, loader(&calls, src))
	require.NoError(t, err)
	second, err := c.Product(ctx, src.Slug, loader(&calls, src))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, second.BasePrice.Equal(src.BasePrice))
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())

	mr.FastForward(2 * time.Minute)
	_, err = c.Product(ctx, src.Slug, loader(&calls, src))
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "expired entry must reload")
}

func TestInvalidateProducts(t *testing.T) {
	c, mr := newTestCatalog(t)
	ctx := context.Background()

	src := &models.Product{ID: 9, Slug: "cargo-pant"}
	calls := 0

	_, err := c.Product(ctx, src.Slug, loader(&calls, src))
	require.NoError(t, err)
	assert.True(t, mr.Exists(productKey(src.Slug)))

	require.NoError(t, c.InvalidateProducts(ctx, src.ID, 12345))
	assert.False(t, mr.Exists(productKey(src.Slug)))
	assert.False(t, mr.Exists(slugKey(src.ID)))

	_, err = c.Product(ctx, src.Slug, loader(&calls, src))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoadErrorIsNotCached(t *testing.T) {
	c, mr := newTestCatalog(t)
	ctx := context.Background()

	boom := errors.New("not found")
	_, err := c.Product(ctx, "missing", func(context.Context) (*models.Product, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(productKey("missing")))
}

func TestRedisDownFallsBackToLoad(t *testing.T) {
	c, mr := newTestCatalog(t)
	mr.Close()

	calls := 0
	p, err := c.Product(context.Background(), "tee", loader(&calls, &models.Product{ID: 1, Slug: "tee"}))
	require.NoError(t, err)
	assert.Equal(t, "tee", p.Slug)
	assert.Equal(t, 1, calls)
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	calls := 0

	_, err := c.Product(context.Background(), "tee", loader(&calls, &models.Product{Slug: "tee"}))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, c.InvalidateProducts(context.Background(), 1))
	assert.NoError(t, c.Ping(context.Background()))
}
