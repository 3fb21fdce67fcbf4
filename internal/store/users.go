package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at, version`

func scanUser(row interface{ Scan(...interface{}) error }, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func CreateUser(ctx context.Context, db database.DBTX, email, passwordHash, firstName, lastName string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, role, is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query,
		NormalizeEmail(email), passwordHash, firstName, lastName, models.RoleCustomer), user)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db database.DBTX, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := scanUser(db.QueryRowContext(ctx, query, id), user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func GetUserByEmail(ctx context.Context, db database.DBTX, email string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	err := scanUser(db.QueryRowContext(ctx, query, NormalizeEmail(email)), user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

func UpdateUserProfile(ctx context.Context, db database.DBTX, id int64, firstName, lastName string) (*models.User, error) {
	user := &models.User{}

	query := `
		UPDATE users
		SET first_name = $1, last_name = $2, updated_at = NOW(), version = version + 1
		WHERE id = $3
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query, firstName, lastName, id), user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user profile: %w", err)
	}

	return user, nil
}

func UpdatePassword(ctx context.Context, db database.DBTX, id int64, passwordHash string) error {
	return execOne(ctx, db, database.ErrUserNotFound, "update password",
		`UPDATE users SET password_hash = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
		passwordHash, id)
}

func SetUserRole(ctx context.Context, db database.DBTX, id int64, role models.Role) error {
	return execOne(ctx, db, database.ErrUserNotFound, "set user role",
		`UPDATE users SET role = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
		role, id)
}

func SetUserActive(ctx context.Context, db database.DBTX, id int64, active bool) error {
	return execOne(ctx, db, database.ErrUserNotFound, "set user active",
		`UPDATE users SET is_active = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
		active, id)
}

func ListUsers(ctx context.Context, db database.DBTX, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}

// execOne runs a single-row statement and returns notFound when no row matched.
func execOne(ctx context.Context, db database.DBTX, notFound error, op, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
