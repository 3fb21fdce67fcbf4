package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/store"
	"github.com/safar/dropshop/internal/testutil"
)

func TestCartAddAccumulates(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	_, variant := createVariant(t, db, "49.99", 10)
	owner := store.CartOwner{SessionID: "sess-accumulate"}

	cartID, err := store.GetOrCreateCart(ctx, db, owner)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}

	again, err := store.GetOrCreateCart(ctx, db, owner)
	if err != nil {
		t.Fatalf("Get cart again: %v", err)
	}
	if again != cartID {
		t.Errorf("Expected the same cart, got %d and %d", cartID, again)
	}

	for i := 0; i < 2; i++ {
		if err := store.AddCartItem(ctx, db, cartID, variant.ID, 2); err != nil {
			t.Fatalf("Add item: %v", err)
		}
	}

	items, err := store.ListCartItems(ctx, db, cartID)
	if err != nil {
		t.Fatalf("List items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 4 {
		t.Fatalf("Expected a single line of 4, got %+v", items)
	}
	if items[0].LineTotal.String() != "199.96" {
		t.Errorf("Expected line total 199.96, got %s", items[0].LineTotal)
	}

	if err := store.DeleteCartItem(ctx, db, cartID, items[0].ID); err != nil {
		t.Fatalf("Delete item: %v", err)
	}
	if err := store.DeleteCartItem(ctx, db, cartID, items[0].ID); !errors.Is(err, database.ErrCartItemNotFound) {
		t.Errorf("Expected item not found, got %v", err)
	}
}

func TestMergeGuestCart(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := createUser(t, db)
	_, shared := createVariant(t, db, "49.99", 200)
	_, guestOnly := createVariant(t, db, "30.00", 10)

	guestCart, err := store.GetOrCreateCart(ctx, db, store.CartOwner{SessionID: "sess-merge"})
	if err != nil {
		t.Fatalf("Get guest cart: %v", err)
	}
	userCart, err := store.GetOrCreateCart(ctx, db, store.CartOwner{UserID: &user.ID})
	if err != nil {
		t.Fatalf("Get user cart: %v", err)
	}

	mustAdd := func(cartID, variantID int64, qty int) {
		if err := store.AddCartItem(ctx, db, cartID, variantID, qty); err != nil {
			t.Fatalf("Add item: %v", err)
		}
	}
	mustAdd(guestCart, shared.ID, 60)
	mustAdd(guestCart, guestOnly.ID, 1)
	mustAdd(userCart, shared.ID, 50)

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		from, err := store.LockSessionCart(ctx, tx, "sess-merge")
		if err != nil {
			return err
		}
		return store.MergeCartInto(ctx, tx, from, userCart, 99)
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if _, err := store.FindCart(ctx, db, store.CartOwner{SessionID: "sess-merge"}); !errors.Is(err, database.ErrCartNotFound) {
		t.Errorf("Guest cart should be gone, got %v", err)
	}

	qty, err := store.CartQuantity(ctx, db, userCart, shared.ID)
	if err != nil {
		t.Fatalf("Cart quantity: %v", err)
	}
	if qty != 99 {
		t.Errorf("Expected merged quantity capped at 99, got %d", qty)
	}

	qty, err = store.CartQuantity(ctx, db, userCart, guestOnly.ID)
	if err != nil {
		t.Fatalf("Cart quantity: %v", err)
	}
	if qty != 1 {
		t.Errorf("Expected guest-only line carried over, got %d", qty)
	}
}
