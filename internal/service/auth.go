package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/config"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"go.uber.org/zap"
)

const invalidCredentials = "invalid email or password"

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthResult struct {
	User   *models.User    `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

type AuthService struct {
	db       *sql.DB
	hasher   *auth.PasswordHasher
	issuer   *auth.TokenIssuer
	carts    *CartService
	mailer   Mailer
	resetTTL time.Duration
	resetURL string
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(db *sql.DB, hasher *auth.PasswordHasher, issuer *auth.TokenIssuer, carts *CartService, mailer Mailer, cfg config.AuthConfig) *AuthService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &AuthService{
		db:       db,
		hasher:   hasher,
		issuer:   issuer,
		carts:    carts,
		mailer:   mailer,
		resetTTL: cfg.PasswordResetTTL,
		resetURL: cfg.ResetURLBase,
		now:      time.Now,
	}
}

func validatePassword(password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	if len(password) > 72 {
		return apperr.Validation("password must be at most 72 bytes")
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email := store.NormalizeEmail(req.Email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	var result *AuthResult
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		user, err := store.CreateUser(ctx, tx, email, hash, strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName))
		if err != nil {
			return err
		}
		if err := store.EnsureLoyaltyAccount(ctx, tx, user.ID); err != nil {
			return err
		}

		pair, err := s.issue(ctx, tx, user)
		if err != nil {
			return err
		}

		result = &AuthResult{User: user, Tokens: pair}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	logger.Info("user registered", zap.Int64("user_id", result.User.ID))
	return result, nil
}

// Login verifies credentials and issues a token pair. A guest cart under
// sessionID is merged into the user's cart; merge failures do not fail login.
func (s *AuthService) Login(ctx context.Context, email, password, sessionID string) (*AuthResult, error) {
	user, err := store.GetUserByEmail(ctx, s.db, email)
	if errors.Is(err, database.ErrUserNotFound) {
		s.hasher.Compare(s.dummy(), password)
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("account is disabled")
	}

	pair, err := s.issue(ctx, s.db, user)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := s.carts.MergeGuestIntoUser(ctx, sessionID, user.ID); err != nil {
			logger.Warn("guest cart merge failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}

	return &AuthResult{User: user, Tokens: pair}, nil
}

// dummy returns a hash to compare against when the email is unknown, so both
// paths cost one bcrypt comparison.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func (s *AuthService) issue(ctx context.Context, db database.DBTX, user *models.User) (*auth.TokenPair, error) {
	pair, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	err = store.CreateRefreshToken(ctx, db, user.ID, pair.RefreshID, auth.HashToken(pair.RefreshToken), pair.RefreshExpiresAt)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh rotates a refresh token. Presenting an already revoked token
// revokes every outstanding token of that user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	var (
		result *AuthResult
		reused bool
	)
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, reused = nil, false

		record, err := store.LockRefreshToken(ctx, tx, auth.HashToken(refreshToken))
		if errors.Is(err, database.ErrTokenNotFound) {
			return apperr.Unauthorized("invalid refresh token")
		}
		if err != nil {
			return err
		}

		if record.RevokedAt != nil {
			revoked, err := store.RevokeAllRefreshTokens(ctx, tx, record.UserID)
			if err != nil {
				return err
			}
			reused = true
			logger.Warn("refresh token reuse detected",
				zap.Int64("user_id", record.UserID),
				zap.String("jti", claims.ID),
				zap.Int64("revoked", revoked))
			return nil
		}

		if !record.ExpiresAt.After(s.now()) || record.UserID != claims.UserID {
			return apperr.Unauthorized("invalid refresh token")
		}

		user, err := store.GetUser(ctx, tx, record.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperr.Unauthorized("account is disabled")
		}

		if err := store.RevokeRefreshToken(ctx, tx, record.ID); err != nil {
			return err
		}

		pair, err := s.issue(ctx, tx, user)
		if err != nil {
			return err
		}

		result = &AuthResult{User: user, Tokens: pair}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	if reused {
		return nil, apperr.Unauthorized("refresh token has been revoked")
	}

	return result, nil
}

// Logout revokes one refresh token. Unknown or already revoked tokens are
// ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	err := store.RevokeRefreshTokenByHash(ctx, s.db, auth.HashToken(refreshToken))
	if err != nil && !errors.Is(err, database.ErrTokenNotFound) {
		return err
	}
	return nil
}

// LogoutAll revokes every refresh token of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) error {
	_, err := store.RevokeAllRefreshTokens(ctx, s.db, userID)
	return err
}

// ForgotPassword mails a single-use reset link. It succeeds whether or not
// the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := store.GetUserByEmail(ctx, s.db, email)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}

	if err := store.CreatePasswordReset(ctx, s.db, user.ID, auth.HashToken(token), s.now().Add(s.resetTTL)); err != nil {
		return err
	}

	link := s.resetURL + "?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		logger.Error("send password reset failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// all refresh tokens of the user.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var userID int64
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		reset, err := store.LockPasswordReset(ctx, tx, auth.HashToken(token))
		if errors.Is(err, database.ErrTokenNotFound) {
			return apperr.Validation("invalid or expired reset token")
		}
		if err != nil {
			return err
		}
		if reset.UsedAt != nil {
			return apperr.Conflict("reset token already used")
		}
		if !reset.ExpiresAt.After(s.now()) {
			return apperr.Validation("invalid or expired reset token")
		}

		if err := store.UpdatePassword(ctx, tx, reset.UserID, hash); err != nil {
			return err
		}
		if err := store.MarkPasswordResetUsed(ctx, tx, reset.ID); err != nil {
			return err
		}
		if _, err := store.RevokeAllRefreshTokens(ctx, tx, reset.UserID); err != nil {
			return err
		}

		userID = reset.UserID
		return nil
	})
	if err != nil {
		return translate(err)
	}

	logger.Info("password reset", zap.Int64("user_id", userID))
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := store.GetUser(ctx, s.db, userID)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, firstName, lastName string) (*models.User, error) {
	user, err := store.UpdateUserProfile(ctx, s.db, userID, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// ChangePassword requires the current password and signs the user out
// everywhere else.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := store.GetUser(ctx, s.db, userID)
	if err != nil {
		return translate(err)
	}
	if !s.hasher.Compare(user.PasswordHash, current) {
		return apperr.Unauthorized("current password is incorrect")
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.UpdatePassword(ctx, tx, userID, hash); err != nil {
			return err
		}
		_, err := store.RevokeAllRefreshTokens(ctx, tx, userID)
		return err
	})
}

// Authenticate resolves a bearer access token to its claims.
func (s *AuthService) Authenticate(token string) (*auth.AccessClaims, error) {
	claims, err := s.issuer.ParseAccess(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	return claims, nil
}

// CurrentRole reloads the caller's role and active flag, so privileged
// routes see demotions and deactivations before the access token expires.
func (s *AuthService) CurrentRole(ctx context.Context, userID int64) (models.Role, error) {
	user, err := store.GetUser(ctx, s.db, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		return "", apperr.Unauthorized("invalid or expired token")
	}
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", apperr.Forbidden("account is disabled")
	}
	return user.Role, nil
}
