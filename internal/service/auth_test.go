package service

import (
	"context"
	"testing"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginIsGeneric(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)

	_, err := e.auth.Login(ctx, user.Email, "wrong password", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	wrongPassword := apperr.Message(err)

	_, err = e.auth.Login(ctx, "nobody@example.com", "whatever1", "")
	require.Error(t, err)
	assert.Equal(t, wrongPassword, apperr.Message(err))
	assert.Equal(t, "invalid email or password", wrongPassword)

	res, err := e.auth.Login(ctx, "  "+user.Email+" ", "correct horse", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AccessToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)

	_, err := e.auth.Register(ctx, RegisterRequest{Email: user.Email, Password: "another pass"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = e.auth.Register(ctx, RegisterRequest{Email: "short@example.com", Password: "short"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRefreshRotationAndReuse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)

	login, err := e.auth.Login(ctx, user.Email, "correct horse", "")
	require.NoError(t, err)

	rotated, err := e.auth.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, rotated.Tokens.RefreshToken)

	// Replaying the rotated-out token is treated as theft.
	_, err = e.auth.Refresh(ctx, login.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	active, err := store.CountActiveRefreshTokens(ctx, e.db, user.ID)
	require.NoError(t, err)
	assert.Zero(t, active)

	_, err = e.auth.Refresh(ctx, rotated.Tokens.RefreshToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestPasswordResetSingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)

	_, err := e.auth.Login(ctx, user.Email, "correct horse", "")
	require.NoError(t, err)

	require.NoError(t, e.auth.ForgotPassword(ctx, "unknown@example.com"))
	require.NoError(t, e.auth.ForgotPassword(ctx, user.Email))
	token := e.mailer.token(t, user.Email)

	require.NoError(t, e.auth.ResetPassword(ctx, token, "battery staple"))

	active, err := store.CountActiveRefreshTokens(ctx, e.db, user.ID)
	require.NoError(t, err)
	assert.Zero(t, active, "reset signs the user out everywhere")

	err = e.auth.ResetPassword(ctx, token, "another staple")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = e.auth.Login(ctx, user.Email, "correct horse", "")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = e.auth.Login(ctx, user.Email, "battery staple", "")
	assert.NoError(t, err)
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)
	admin := e.register(t)

	users := NewUserService(e.db)
	updated, err := users.SetActive(ctx, admin.ID, user.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = e.auth.Login(ctx, user.Email, "correct horse", "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = users.SetActive(ctx, admin.ID, admin.ID, false)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestLoginMergesGuestCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.register(t)
	_, variants := e.product(t, "15.00", 50, "S", "M")

	guest := store.CartOwner{SessionID: "guest-merge"}
	_, err := e.carts.AddItem(ctx, guest, variants[0].ID, 2)
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, guest, variants[1].ID, 1)
	require.NoError(t, err)

	_, err = e.carts.AddItem(ctx, userOwner(user.ID), variants[0].ID, 3)
	require.NoError(t, err)

	_, err = e.auth.Login(ctx, user.Email, "correct horse", "guest-merge")
	require.NoError(t, err)

	view, err := e.carts.Get(ctx, userOwner(user.ID))
	require.NoError(t, err)
	assert.Equal(t, 6, view.ItemCount)
	assert.Equal(t, "90.00", view.Subtotal.StringFixed(2))

	guestView, err := e.carts.Get(ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, guestView.Items)

	// Merging an already merged cart is a no-op.
	require.NoError(t, e.carts.MergeGuestIntoUser(ctx, "guest-merge", user.ID))
}
