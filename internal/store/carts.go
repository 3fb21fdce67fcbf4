package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
	"github.com/shopspring/decimal"
)

// CartOwner identifies a cart by exactly one of UserID or SessionID.
type CartOwner struct {
	UserID    *int64
	SessionID string
}

func (o CartOwner) IsUser() bool { return o.UserID != nil }

func (o CartOwner) String() string {
	if o.UserID != nil {
		return fmt.Sprintf("user:%d", *o.UserID)
	}
	return "session:" + o.SessionID
}

// GetOrCreateCart returns the owner's cart id, creating the cart on first use.
func GetOrCreateCart(ctx context.Context, db database.DBTX, owner CartOwner) (int64, error) {
	var (
		query string
		arg   interface{}
	)
	if owner.IsUser() {
		query = `
			INSERT INTO carts (user_id, created_at, updated_at) VALUES ($1, NOW(), NOW())
			ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
			RETURNING id`
		arg = *owner.UserID
	} else {
		query = `
			INSERT INTO carts (session_id, created_at, updated_at) VALUES ($1, NOW(), NOW())
			ON CONFLICT (session_id) DO UPDATE SET updated_at = NOW()
			RETURNING id`
		arg = owner.SessionID
	}

	var cartID int64
	if err := db.QueryRowContext(ctx, query, arg).Scan(&cartID); err != nil {
		return 0, fmt.Errorf("get or create cart: %w", err)
	}
	return cartID, nil
}

// FindCart looks up the owner's cart without creating one.
func FindCart(ctx context.Context, db database.DBTX, owner CartOwner) (int64, error) {
	var (
		cartID int64
		err    error
	)
	if owner.IsUser() {
		err = db.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1`, *owner.UserID).Scan(&cartID)
	} else {
		err = db.QueryRowContext(ctx, `SELECT id FROM carts WHERE session_id = $1`, owner.SessionID).Scan(&cartID)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, database.ErrCartNotFound
		}
		return 0, fmt.Errorf("find cart: %w", err)
	}
	return cartID, nil
}

const cartItemQuery = `
	SELECT ci.id, ci.cart_id, ci.variant_id, p.id, p.name, p.slug, v.sku, v.size, v.color,
	       COALESCE(v.price_override, p.base_price), ci.quantity, v.stock_quantity
	FROM cart_items ci
	JOIN product_variants v ON v.id = ci.variant_id
	JOIN products p ON p.id = v.product_id`

func scanCartItem(row interface{ Scan(...interface{}) error }, item *models.CartItem) error {
	err := row.Scan(
		&item.ID,
		&item.CartID,
		&item.VariantID,
		&item.ProductID,
		&item.ProductName,
		&item.ProductSlug,
		&item.SKU,
		&item.Size,
		&item.Color,
		&item.UnitPrice,
		&item.Quantity,
		&item.AvailableStock,
	)
	if err != nil {
		return err
	}
	item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	return nil
}

// ListCartItems joins each line with live catalog prices and stock.
func ListCartItems(ctx context.Context, db database.DBTX, cartID int64) ([]models.CartItem, error) {
	rows, err := db.QueryContext(ctx, cartItemQuery+` WHERE ci.cart_id = $1 ORDER BY ci.created_at, ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		if err := scanCartItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetCartItem(ctx context.Context, db database.DBTX, cartID, itemID int64) (*models.CartItem, error) {
	item := &models.CartItem{}

	err := scanCartItem(db.QueryRowContext(ctx, cartItemQuery+` WHERE ci.cart_id = $1 AND ci.id = $2`, cartID, itemID), item)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}

	return item, nil
}

// CartQuantity returns how many units of variantID the cart holds (0 if none).
func CartQuantity(ctx context.Context, db database.DBTX, cartID, variantID int64) (int, error) {
	var qty int
	err := db.QueryRowContext(ctx,
		`SELECT quantity FROM cart_items WHERE cart_id = $1 AND variant_id = $2`,
		cartID, variantID).Scan(&qty)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("get cart quantity: %w", err)
	}
	return qty, nil
}

// AddCartItem inserts a line or, when the variant is already in the cart,
// adds quantity to the existing line.
func AddCartItem(ctx context.Context, db database.DBTX, cartID, variantID int64, quantity int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, variant_id, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (cart_id, variant_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		cartID, variantID, quantity)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return touchCart(ctx, db, cartID)
}

func SetCartItemQuantity(ctx context.Context, db database.DBTX, cartID, itemID int64, quantity int) error {
	err := execOne(ctx, db, database.ErrCartItemNotFound, "set cart item quantity",
		`UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2 AND cart_id = $3`,
		quantity, itemID, cartID)
	if err != nil {
		return err
	}
	return touchCart(ctx, db, cartID)
}

func DeleteCartItem(ctx context.Context, db database.DBTX, cartID, itemID int64) error {
	err := execOne(ctx, db, database.ErrCartItemNotFound, "delete cart item",
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return err
	}
	return touchCart(ctx, db, cartID)
}

func ClearCart(ctx context.Context, db database.DBTX, cartID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return touchCart(ctx, db, cartID)
}

// LockSessionCart locks the guest cart for sessionID for the rest of tx.
func LockSessionCart(ctx context.Context, tx *sql.Tx, sessionID string) (int64, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE session_id = $1 FOR UPDATE`, sessionID).Scan(&cartID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, database.ErrCartNotFound
		}
		return 0, fmt.Errorf("lock session cart: %w", err)
	}
	return cartID, nil
}

// MergeCartInto moves every line of fromCartID into toCartID, summing
// quantities of shared variants (capped at the per-line maximum), then
// deletes the source cart.
func MergeCartInto(ctx context.Context, tx *sql.Tx, fromCartID, toCartID int64, maxQuantity int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, variant_id, quantity, created_at, updated_at)
		 SELECT $1, variant_id, LEAST(quantity, $3), NOW(), NOW()
		 FROM cart_items
		 WHERE cart_id = $2
		 ON CONFLICT (cart_id, variant_id)
		 DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $3), updated_at = NOW()`,
		toCartID, fromCartID, maxQuantity)
	if err != nil {
		return fmt.Errorf("merge cart items: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, fromCartID); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}

	return touchCart(ctx, tx, toCartID)
}

func touchCart(ctx context.Context, db database.DBTX, cartID int64) error {
	if _, err := db.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
