package store_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"github.com/safar/dropshop/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestDecrementStockClampsAtZero(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	_, variant := createVariant(t, db, "49.99", 3)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := store.DecrementStockClamped(ctx, tx, variant.ID, 5)
		return err
	})
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	after, err := store.GetVariant(ctx, db, variant.ID)
	if err != nil {
		t.Fatalf("Get variant: %v", err)
	}
	if after.StockQuantity != 0 {
		t.Errorf("Expected stock 0, got %d", after.StockQuantity)
	}
}

func TestConcurrentDecrements(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	_, variant := createVariant(t, db, "49.99", 20)

	concurrency := 10
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				_, err := store.DecrementStockClamped(ctx, tx, variant.ID, 2)
				return err
			})
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	after, err := store.GetVariant(ctx, db, variant.ID)
	if err != nil {
		t.Fatalf("Get variant: %v", err)
	}
	if after.StockQuantity != 0 {
		t.Errorf("Expected final stock 0, got %d", after.StockQuantity)
	}
}

func TestUpdateStockOptimistic(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	_, variant := createVariant(t, db, "49.99", 10)

	updated, err := store.UpdateStockOptimistic(ctx, db, variant.ID, 15, variant.Version)
	if err != nil {
		t.Fatalf("Update stock: %v", err)
	}
	if updated.StockQuantity != 15 || updated.Version != variant.Version+1 {
		t.Errorf("Unexpected variant after update: stock=%d version=%d", updated.StockQuantity, updated.Version)
	}

	_, err = store.UpdateStockOptimistic(ctx, db, variant.ID, 20, variant.Version)
	if err != database.ErrOptimisticLockFailed {
		t.Errorf("Expected optimistic lock failure, got: %v", err)
	}

	_, err = store.UpdateStockOptimistic(ctx, db, 999999, 20, 1)
	if err != database.ErrVariantNotFound {
		t.Errorf("Expected variant not found, got: %v", err)
	}
}

func TestCreateVariantDuplicateSKU(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	product, variant := createVariant(t, db, "49.99", 10)

	_, err := store.CreateVariant(ctx, db, store.NewVariant{
		ProductID: product.ID,
		SKU:       variant.SKU,
		Size:      "L",
		Color:     "black",
		Stock:     1,
	})
	if !errors.Is(err, database.ErrSKUTaken) {
		t.Errorf("Expected sku taken, got %v", err)
	}
}

func TestListProductsFilters(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	user := createUser(t, db)
	cheap, _ := createVariant(t, db, "25.00", 5)
	pricey, _ := createVariant(t, db, "250.00", 0)

	if err := store.AddWishlistItem(ctx, db, user.ID, cheap.ID); err != nil {
		t.Fatalf("Add wishlist: %v", err)
	}

	maxPrice := decimal.RequireFromString("100")
	page, err := store.ListProducts(ctx, db, store.ProductFilter{MaxPrice: &maxPrice, ViewerID: &user.ID})
	if err != nil {
		t.Fatalf("List products: %v", err)
	}

	products := page.Items.([]models.Product)
	if page.Total != 1 || len(products) != 1 || products[0].ID != cheap.ID {
		t.Fatalf("Expected only the cheap product, got %+v", products)
	}
	if !products[0].InWishlist {
		t.Error("Expected cheap product to be flagged as in wishlist")
	}

	page, err = store.ListProducts(ctx, db, store.ProductFilter{Size: "M", Sort: store.SortPriceDesc})
	if err != nil {
		t.Fatalf("List by size: %v", err)
	}
	for _, p := range page.Items.([]models.Product) {
		if p.ID == pricey.ID {
			t.Error("Out-of-stock size must not match the size filter")
		}
	}
}
