package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"github.com/shopspring/decimal"
)

var seq atomic.Int64

func createUser(t *testing.T, db *sql.DB) *models.User {
	t.Helper()

	n := seq.Add(1)
	user, err := store.CreateUser(context.Background(), db, fmt.Sprintf("user%d@example.com", n), "hash", "Test", "User")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

func createVariant(t *testing.T, db *sql.DB, price string, stock int) (*models.Product, *models.Variant) {
	t.Helper()

	ctx := context.Background()
	n := seq.Add(1)

	product, err := store.CreateProduct(ctx, db, store.NewProduct{
		Slug:      fmt.Sprintf("hoodie-%d", n),
		Name:      fmt.Sprintf("Box Logo Hoodie %d", n),
		Category:  "hoodies",
		BasePrice: decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	variant, err := store.CreateVariant(ctx, db, store.NewVariant{
		ProductID: product.ID,
		SKU:       fmt.Sprintf("HD-%d-M", n),
		Size:      "M",
		Color:     "black",
		Stock:     stock,
	})
	if err != nil {
		t.Fatalf("Create variant: %v", err)
	}

	return product, variant
}

func createPendingOrder(t *testing.T, db *sql.DB, userID int64, variant *models.Variant, qty int) *models.Order {
	t.Helper()

	ctx := context.Background()

	cartID, err := store.GetOrCreateCart(ctx, db, store.CartOwner{UserID: &userID})
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback()

	unit := decimal.RequireFromString("49.99")
	subtotal := unit.Mul(decimal.NewFromInt(int64(qty)))
	shipping := decimal.RequireFromString("10.00")
	tax := subtotal.Mul(decimal.RequireFromString("0.08")).Round(2)

	order, err := store.CreateOrder(ctx, tx, store.NewOrder{
		OrderNumber:     store.GenerateOrderNumber(),
		UserID:          &userID,
		CartID:          cartID,
		Email:           "buyer@example.com",
		ShippingAddress: []byte(`{"line1":"1 Main St"}`),
		BillingAddress:  []byte(`{"line1":"1 Main St"}`),
		Subtotal:        subtotal,
		Discount:        decimal.Zero,
		Shipping:        shipping,
		Tax:             tax,
		Total:           subtotal.Add(shipping).Add(tax),
		Currency:        "usd",
		PaymentIntentID: fmt.Sprintf("pi_test_%d", seq.Add(1)),
	}, []store.NewOrderItem{{
		VariantID:   variant.ID,
		ProductName: "Box Logo Hoodie",
		SKU:         variant.SKU,
		Size:        variant.Size,
		Color:       variant.Color,
		UnitPrice:   unit,
		Quantity:    qty,
	}})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	return order
}
