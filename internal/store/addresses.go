package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
)

const addressColumns = `id, user_id, full_name, line1, line2, city, state, postal_code, country, is_default, created_at`

func scanAddress(row interface{ Scan(...interface{}) error }, a *models.Address) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.FullName,
		&a.Line1,
		&a.Line2,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.IsDefault,
		&a.CreatedAt,
	)
}

func CreateAddress(ctx context.Context, tx *sql.Tx, a models.Address) (*models.Address, error) {
	if a.IsDefault {
		_, err := tx.ExecContext(ctx,
			`UPDATE user_addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`,
			a.UserID)
		if err != nil {
			return nil, fmt.Errorf("clear default address: %w", err)
		}
	}

	created := &models.Address{}
	query := `
		INSERT INTO user_addresses (user_id, full_name, line1, line2, city, state, postal_code, country, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING ` + addressColumns

	err := scanAddress(tx.QueryRowContext(ctx, query,
		a.UserID, a.FullName, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.IsDefault), created)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return created, nil
}

func GetAddress(ctx context.Context, db database.DBTX, userID, id int64) (*models.Address, error) {
	a := &models.Address{}

	err := scanAddress(db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM user_addresses WHERE id = $1 AND user_id = $2`,
		id, userID), a)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return a, nil
}

func ListAddresses(ctx context.Context, db database.DBTX, userID int64) ([]models.Address, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM user_addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []models.Address{}
	for rows.Next() {
		var a models.Address
		if err := scanAddress(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}

func DeleteAddress(ctx context.Context, db database.DBTX, userID, id int64) error {
	return execOne(ctx, db, database.ErrAddressNotFound, "delete address",
		`DELETE FROM user_addresses WHERE id = $1 AND user_id = $2`, id, userID)
}
