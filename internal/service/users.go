package service

import (
	"context"
	"database/sql"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"go.uber.org/zap"
)

type UserService struct {
	db *sql.DB
}

func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) List(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	page, pageSize = store.NormalizePage(page, pageSize)
	return store.ListUsers(ctx, s.db, page, pageSize)
}

func (s *UserService) SetRole(ctx context.Context, actorID, userID int64, role string) (*models.User, error) {
	parsed, err := models.ParseRole(role)
	if err != nil {
		return nil, apperr.Validation("unknown role %q", role)
	}
	if actorID == userID {
		return nil, apperr.Conflict("you cannot change your own role")
	}

	if err := store.SetUserRole(ctx, s.db, userID, parsed); err != nil {
		return nil, translate(err)
	}

	logger.Info("user role changed", zap.Int64("actor_id", actorID), zap.Int64("user_id", userID), zap.String("role", role))
	return s.get(ctx, userID)
}

// SetActive enables or disables an account. Disabling signs the user out.
func (s *UserService) SetActive(ctx context.Context, actorID, userID int64, active bool) (*models.User, error) {
	if actorID == userID && !active {
		return nil, apperr.Conflict("you cannot deactivate yourself")
	}

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.SetUserActive(ctx, tx, userID, active); err != nil {
			return err
		}
		if active {
			return nil
		}
		_, err := store.RevokeAllRefreshTokens(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	logger.Info("user activation changed", zap.Int64("actor_id", actorID), zap.Int64("user_id", userID), zap.Bool("active", active))
	return s.get(ctx, userID)
}

func (s *UserService) get(ctx context.Context, userID int64) (*models.User, error) {
	user, err := store.GetUser(ctx, s.db, userID)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}
