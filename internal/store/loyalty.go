package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
)

const loyaltyAccountColumns = `id, user_id, points_balance, lifetime_points, tier, created_at, updated_at`

func scanLoyaltyAccount(row interface{ Scan(...interface{}) error }, a *models.LoyaltyAccount) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.PointsBalance,
		&a.LifetimePoints,
		&a.Tier,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}

// EnsureLoyaltyAccount creates the user's account with a zero balance if it
// does not exist yet.
func EnsureLoyaltyAccount(ctx context.Context, db database.DBTX, userID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO loyalty_accounts (user_id, points_balance, lifetime_points, tier, created_at, updated_at)
		 VALUES ($1, 0, 0, 'STARTER', NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure loyalty account: %w", err)
	}
	return nil
}

func GetLoyaltyAccount(ctx context.Context, db database.DBTX, userID int64) (*models.LoyaltyAccount, error) {
	account := &models.LoyaltyAccount{}

	err := scanLoyaltyAccount(db.QueryRowContext(ctx,
		`SELECT `+loyaltyAccountColumns+` FROM loyalty_accounts WHERE user_id = $1`, userID), account)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get loyalty account: %w", err)
	}

	return account, nil
}

// LockLoyaltyAccount serializes balance changes for one user.
func LockLoyaltyAccount(ctx context.Context, tx *sql.Tx, userID int64) (*models.LoyaltyAccount, error) {
	account := &models.LoyaltyAccount{}

	err := scanLoyaltyAccount(tx.QueryRowContext(ctx,
		`SELECT `+loyaltyAccountColumns+` FROM loyalty_accounts WHERE user_id = $1 FOR UPDATE`, userID), account)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		return nil, fmt.Errorf("lock loyalty account: %w", err)
	}

	return account, nil
}

func UpdateLoyaltyAccount(ctx context.Context, tx *sql.Tx, a *models.LoyaltyAccount) error {
	err := tx.QueryRowContext(ctx,
		`UPDATE loyalty_accounts
		 SET points_balance = $1, lifetime_points = $2, tier = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING updated_at`,
		a.PointsBalance, a.LifetimePoints, a.Tier, a.ID).Scan(&a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrAccountNotFound
		}
		return fmt.Errorf("update loyalty account: %w", err)
	}
	return nil
}

// InsertLoyaltyTransaction appends to the ledger. A second purchase award for
// the same order yields ErrAlreadyAwarded.
func InsertLoyaltyTransaction(ctx context.Context, tx *sql.Tx, t *models.LoyaltyTransaction) error {
	var orderID sql.NullInt64
	if t.OrderID != nil {
		orderID = sql.NullInt64{Int64: *t.OrderID, Valid: true}
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO loyalty_transactions (account_id, type, source, amount, balance_after, order_id, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		t.AccountID, t.Type, t.Source, t.Amount, t.BalanceAfter, orderID, t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "idx_loyalty_transactions_purchase_once") {
			return database.ErrAlreadyAwarded
		}
		return fmt.Errorf("insert loyalty transaction: %w", err)
	}
	return nil
}

func ListLoyaltyTransactions(ctx context.Context, db database.DBTX, accountID int64, limit int) ([]models.LoyaltyTransaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, account_id, type, source, amount, balance_after, order_id, description, created_at
		 FROM loyalty_transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list loyalty transactions: %w", err)
	}
	defer rows.Close()

	txs := []models.LoyaltyTransaction{}
	for rows.Next() {
		var (
			t       models.LoyaltyTransaction
			orderID sql.NullInt64
		)
		err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Source, &t.Amount, &t.BalanceAfter, &orderID, &t.Description, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan loyalty transaction: %w", err)
		}
		if orderID.Valid {
			t.OrderID = &orderID.Int64
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return txs, nil
}

func PurchaseAwarded(ctx context.Context, db database.DBTX, orderID int64) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM loyalty_transactions WHERE order_id = $1 AND type = 'earn' AND source = 'purchase')`,
		orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check purchase award: %w", err)
	}
	return exists, nil
}

const redemptionColumns = `id, account_id, reward_id, code, points_spent, order_id, used_at, created_at`

func scanRedemption(row interface{ Scan(...interface{}) error }, r *models.LoyaltyRedemption) error {
	var (
		orderID sql.NullInt64
		usedAt  sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.AccountID, &r.RewardID, &r.Code, &r.PointsSpent, &orderID, &usedAt, &r.CreatedAt); err != nil {
		return err
	}
	if orderID.Valid {
		r.OrderID = &orderID.Int64
	}
	if usedAt.Valid {
		r.UsedAt = &usedAt.Time
	}
	return nil
}

func CreateRedemption(ctx context.Context, tx *sql.Tx, accountID int64, rewardID, code string, pointsSpent int) (*models.LoyaltyRedemption, error) {
	r := &models.LoyaltyRedemption{}

	err := scanRedemption(tx.QueryRowContext(ctx,
		`INSERT INTO loyalty_redemptions (account_id, reward_id, code, points_spent, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING `+redemptionColumns,
		accountID, rewardID, code, pointsSpent), r)
	if err != nil {
		return nil, fmt.Errorf("create redemption: %w", err)
	}

	return r, nil
}

// GetRedemptionByCode returns the redemption only if it belongs to userID.
func GetRedemptionByCode(ctx context.Context, db database.DBTX, userID int64, code string) (*models.LoyaltyRedemption, error) {
	r := &models.LoyaltyRedemption{}

	err := scanRedemption(db.QueryRowContext(ctx,
		`SELECT r.id, r.account_id, r.reward_id, r.code, r.points_spent, r.order_id, r.used_at, r.created_at
		 FROM loyalty_redemptions r
		 JOIN loyalty_accounts a ON a.id = r.account_id
		 WHERE r.code = $1 AND a.user_id = $2`, code, userID), r)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("get redemption: %w", err)
	}

	return r, nil
}

func ListRedemptions(ctx context.Context, db database.DBTX, accountID int64) ([]models.LoyaltyRedemption, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+redemptionColumns+` FROM loyalty_redemptions WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	redemptions := []models.LoyaltyRedemption{}
	for rows.Next() {
		var r models.LoyaltyRedemption
		if err := scanRedemption(rows, &r); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return redemptions, nil
}

// MarkRedemptionUsed consumes a reward code for an order. Codes are single use.
func MarkRedemptionUsed(ctx context.Context, tx *sql.Tx, code string, orderID int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE loyalty_redemptions SET used_at = NOW(), order_id = $1 WHERE code = $2 AND used_at IS NULL`,
		orderID, code)
	if err != nil {
		return fmt.Errorf("mark redemption used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrRewardCodeUsed
	}

	return nil
}
