package service

import (
	"context"
	"testing"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Box Logo Tee", "box-logo-tee"},
		{"  Arch Hoodie (FW24)!! ", "arch-hoodie-fw24"},
		{"a--b__c", "a-b-c"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestSetStockChecksVersion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, variants := e.product(t, "40.00", 5, "S", "M")

	got, err := e.catalog.Get(ctx, p.Slug)
	require.NoError(t, err)
	assert.Len(t, got.Variants, 2)

	v := variants[0]
	updated, err := e.catalog.SetStock(ctx, v.ID, 20, v.Version)
	require.NoError(t, err)
	assert.Equal(t, 20, updated.StockQuantity)
	assert.Equal(t, v.Version+1, updated.Version)

	_, err = e.catalog.SetStock(ctx, v.ID, 30, v.Version)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 20, e.stock(t, v.ID))

	_, err = e.catalog.SetStock(ctx, v.ID, -1, updated.Version)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.catalog.SetStock(ctx, 987654, 1, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestWishlist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)
	p, _ := e.product(t, "25.00", 3)

	require.NoError(t, e.catalog.AddToWishlist(ctx, user.ID, p.ID))
	require.NoError(t, e.catalog.AddToWishlist(ctx, user.ID, p.ID), "adding twice is a no-op")

	items, err := e.catalog.Wishlist(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, p.ID, items[0].ID)

	err = e.catalog.AddToWishlist(ctx, user.ID, 987654)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, e.catalog.RemoveFromWishlist(ctx, user.ID, p.ID))
	err = e.catalog.RemoveFromWishlist(ctx, user.ID, p.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAddresses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	addresses := NewAddressService(e.db)
	user := e.register(t)
	other := e.register(t)

	_, err := addresses.Create(ctx, user.ID, models.Address{FullName: "Test Member", City: "Austin"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	home, err := addresses.Create(ctx, user.ID, models.Address{
		FullName: "Test Member", Line1: "1 Main St", City: "Austin",
		PostalCode: "78701", Country: "us", IsDefault: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "US", home.Country)

	work, err := addresses.Create(ctx, user.ID, models.Address{
		FullName: "Test Member", Line1: "500 Congress Ave", City: "Austin",
		PostalCode: "78701", Country: "US", IsDefault: true,
	})
	require.NoError(t, err)

	list, err := addresses.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, work.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault, "a new default replaces the old one")

	err = addresses.Delete(ctx, other.ID, home.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, addresses.Delete(ctx, user.ID, home.ID))
	list, err = addresses.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
