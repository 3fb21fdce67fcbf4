package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, session_id, cart_id, email, phone, shipping_address, billing_address,
	subtotal, discount, shipping, tax, total, currency, status, payment_status, payment_intent_id, reward_code,
	tracking_number, paid_at, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...interface{}) error }, o *models.Order) error {
	var (
		userID    sql.NullInt64
		sessionID sql.NullString
		cartID    sql.NullInt64
		intentID  sql.NullString
		reward    sql.NullString
		paidAt    sql.NullTime
		shipping  []byte
		billing   []byte
	)

	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&userID,
		&sessionID,
		&cartID,
		&o.Email,
		&o.Phone,
		&shipping,
		&billing,
		&o.Subtotal,
		&o.Discount,
		&o.Shipping,
		&o.Tax,
		&o.Total,
		&o.Currency,
		&o.Status,
		&o.PaymentStatus,
		&intentID,
		&reward,
		&o.TrackingNumber,
		&paidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return err
	}

	o.ShippingAddress = json.RawMessage(shipping)
	o.BillingAddress = json.RawMessage(billing)
	if userID.Valid {
		o.UserID = &userID.Int64
	}
	if sessionID.Valid {
		o.SessionID = &sessionID.String
	}
	if cartID.Valid {
		o.CartID = &cartID.Int64
	}
	if intentID.Valid {
		o.PaymentIntentID = &intentID.String
	}
	if reward.Valid {
		o.RewardCode = &reward.String
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	return nil
}

// GenerateOrderNumber returns a sortable, hard-to-guess order number.
func GenerateOrderNumber() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("ORD-%s-%X", time.Now().UTC().Format("20060102"), b)
}

type NewOrder struct {
	OrderNumber     string
	UserID          *int64
	SessionID       string
	CartID          int64
	Email           string
	Phone           string
	ShippingAddress json.RawMessage
	BillingAddress  json.RawMessage
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Shipping        decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
	Currency        string
	PaymentIntentID string
	RewardCode      string
}

// NewOrderItem is a cart line frozen at order time.
type NewOrderItem struct {
	VariantID   int64
	ProductName string
	SKU         string
	Size        string
	Color       string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func CreateOrder(ctx context.Context, tx *sql.Tx, no NewOrder, items []NewOrderItem) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (order_number, user_id, session_id, cart_id, email, phone, shipping_address, billing_address,
			subtotal, discount, shipping, tax, total, currency, status, payment_status, payment_intent_id, reward_code,
			created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15, $16, $17, NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	var userID sql.NullInt64
	if no.UserID != nil {
		userID = sql.NullInt64{Int64: *no.UserID, Valid: true}
	}

	err := scanOrder(tx.QueryRowContext(ctx, query,
		no.OrderNumber,
		userID,
		nullString(no.SessionID),
		no.CartID,
		no.Email,
		no.Phone,
		[]byte(no.ShippingAddress),
		[]byte(no.BillingAddress),
		no.Subtotal,
		no.Discount,
		no.Shipping,
		no.Tax,
		no.Total,
		no.Currency,
		models.OrderStatusPending,
		nullString(no.PaymentIntentID),
		nullString(no.RewardCode),
	), order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, item := range items {
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

		var created models.OrderItem
		err = tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, variant_id, product_name, sku, size, color, unit_price, quantity, subtotal, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			 RETURNING id, created_at`,
			order.ID, item.VariantID, item.ProductName, item.SKU, item.Size, item.Color, item.UnitPrice, item.Quantity, subtotal,
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}

		variantID := item.VariantID
		created.OrderID = order.ID
		created.VariantID = &variantID
		created.ProductName = item.ProductName
		created.SKU = item.SKU
		created.Size = item.Size
		created.Color = item.Color
		created.UnitPrice = item.UnitPrice
		created.Quantity = item.Quantity
		created.Subtotal = subtotal
		order.Items = append(order.Items, created)
	}

	return order, nil
}

func GetOrder(ctx context.Context, db database.DBTX, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, db, "id = $1", id)
}

func GetOrderByNumber(ctx context.Context, db database.DBTX, orderNumber string) (*models.Order, error) {
	return getOrderWhere(ctx, db, "order_number = $1", orderNumber)
}

func GetOrderByPaymentIntent(ctx context.Context, db database.DBTX, intentID string) (*models.Order, error) {
	return getOrderWhere(ctx, db, "payment_intent_id = $1", intentID)
}

func getOrderWhere(ctx context.Context, db database.DBTX, cond string, arg interface{}) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+cond, arg), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := ListOrderItems(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// LockOrderByNumber loads an order (with items) and holds its row lock.
func LockOrderByNumber(ctx context.Context, tx *sql.Tx, orderNumber string) (*models.Order, error) {
	return getOrderWhere(ctx, tx, "order_number = $1 FOR UPDATE", orderNumber)
}

func LockOrderByPaymentIntent(ctx context.Context, tx *sql.Tx, intentID string) (*models.Order, error) {
	return getOrderWhere(ctx, tx, "payment_intent_id = $1 FOR UPDATE", intentID)
}

func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, tx, "id = $1 FOR UPDATE", id)
}

func ListOrderItems(ctx context.Context, db database.DBTX, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, variant_id, product_name, sku, size, color, unit_price, quantity, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var (
			item      models.OrderItem
			variantID sql.NullInt64
		)
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&variantID,
			&item.ProductName,
			&item.SKU,
			&item.Size,
			&item.Color,
			&item.UnitPrice,
			&item.Quantity,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if variantID.Valid {
			item.VariantID = &variantID.Int64
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// MarkOrderPaid flips a pending order to paid. It reports false when the
// order's payment status was no longer pending.
func MarkOrderPaid(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_status = $2, paid_at = NOW(), updated_at = NOW(), version = version + 1
		 WHERE id = $3 AND payment_status = $4`,
		models.OrderStatusPaid, models.PaymentStatusPaid, id, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkOrderFailed moves a still-pending order to failed.
func MarkOrderFailed(ctx context.Context, db database.DBTX, id int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_status = $2, updated_at = NOW(), version = version + 1
		 WHERE id = $3 AND payment_status = $4`,
		models.OrderStatusFailed, models.PaymentStatusFailed, id, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark order failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

type StatusUpdate struct {
	From           string
	To             string
	PaymentStatus  string
	TrackingNumber string
}

// UpdateOrderStatus applies a transition only if the order is still in
// u.From, guarding against concurrent admin edits.
func UpdateOrderStatus(ctx context.Context, db database.DBTX, id int64, u StatusUpdate) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     payment_status = COALESCE(NULLIF($2, ''), payment_status),
		     tracking_number = COALESCE(NULLIF($3, ''), tracking_number),
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $4 AND status = $5`,
		u.To, u.PaymentStatus, u.TrackingNumber, id, u.From)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

func ListOrdersCursor(ctx context.Context, db database.DBTX, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrInvalidCursor, err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func ListOrders(ctx context.Context, db database.DBTX, status string, page, pageSize int) (*OffsetPage, error) {
	var q queryBuilder
	if status = strings.TrimSpace(status); status != "" {
		q.where("status = %s", status)
	}

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+q.whereClause(), q.snapshot()...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT %s OFFSET %s`,
		orderColumns, q.whereClause(), q.arg(pageSize), q.arg((page-1)*pageSize))

	rows, err := db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}
