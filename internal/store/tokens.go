package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
)

func CreateRefreshToken(ctx context.Context, db database.DBTX, userID int64, jti, tokenHash string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, jti, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		userID, jti, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// LockRefreshToken loads a refresh token by hash and holds its row lock until
// the transaction ends, serializing concurrent rotations of the same token.
func LockRefreshToken(ctx context.Context, tx *sql.Tx, tokenHash string) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}

	query := `
		SELECT id, user_id, jti, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.JTI,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrTokenNotFound
		}
		return nil, fmt.Errorf("lock refresh token: %w", err)
	}

	return token, nil
}

func RevokeRefreshToken(ctx context.Context, db database.DBTX, id int64) error {
	return execOne(ctx, db, database.ErrTokenNotFound, "revoke refresh token",
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
}

func RevokeRefreshTokenByHash(ctx context.Context, db database.DBTX, tokenHash string) error {
	return execOne(ctx, db, database.ErrTokenNotFound, "revoke refresh token",
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
}

func RevokeAllRefreshTokens(ctx context.Context, db database.DBTX, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

func CountActiveRefreshTokens(ctx context.Context, db database.DBTX, userID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count refresh tokens: %w", err)
	}
	return n, nil
}

func CreatePasswordReset(ctx context.Context, db database.DBTX, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO password_resets (user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func LockPasswordReset(ctx context.Context, tx *sql.Tx, tokenHash string) (*models.PasswordReset, error) {
	reset := &models.PasswordReset{}

	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at
		 FROM password_resets
		 WHERE token_hash = $1
		 FOR UPDATE`,
		tokenHash).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&reset.UsedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrTokenNotFound
		}
		return nil, fmt.Errorf("lock password reset: %w", err)
	}

	return reset, nil
}

func MarkPasswordResetUsed(ctx context.Context, db database.DBTX, id int64) error {
	return execOne(ctx, db, database.ErrTokenNotFound, "mark password reset used",
		`UPDATE password_resets SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`, id)
}
