package service

import (
	"context"
	"testing"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerRequiresSession(t *testing.T) {
	_, err := Owner(nil, "  ")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "session required for guest checkout", apperr.Message(err))

	id := int64(7)
	owner, err := Owner(&id, "ignored")
	require.NoError(t, err)
	assert.True(t, owner.IsUser())

	owner, err = Owner(nil, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", owner.SessionID)
}

func TestCartQuantityRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := store.CartOwner{SessionID: "cart-rules"}
	_, variants := e.product(t, "12.50", 5)
	v := variants[0]

	_, err := e.carts.AddItem(ctx, owner, v.ID, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = e.carts.AddItem(ctx, owner, v.ID, 100)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	view, err := e.carts.AddItem(ctx, owner, v.ID, 3)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	// Adds are additive and bounded by stock.
	_, err = e.carts.AddItem(ctx, owner, v.ID, 3)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "only 2 more")

	view, err = e.carts.AddItem(ctx, owner, v.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.ItemCount)
	assert.Equal(t, "62.50", view.Subtotal.StringFixed(2))

	itemID := view.Items[0].ID

	_, err = e.carts.SetQuantity(ctx, owner, itemID, 6)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	view, err = e.carts.SetQuantity(ctx, owner, itemID, 1)
	require.NoError(t, err)
	assert.Equal(t, "12.50", view.Subtotal.StringFixed(2))

	view, err = e.carts.SetQuantity(ctx, owner, itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Subtotal.IsZero())

	_, err = e.carts.RemoveItem(ctx, owner, itemID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCartFollowsLivePrices(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := store.CartOwner{SessionID: "live-prices"}
	_, variants := e.product(t, "10.00", 10)

	_, err := e.carts.AddItem(ctx, owner, variants[0].ID, 2)
	require.NoError(t, err)

	_, err = e.db.ExecContext(ctx, `UPDATE products SET base_price = 12.00 WHERE id = $1`, variants[0].ProductID)
	require.NoError(t, err)

	view, err := e.carts.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "24.00", view.Subtotal.StringFixed(2))
}
