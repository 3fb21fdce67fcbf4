package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/config"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/payment"
	"github.com/safar/dropshop/internal/store"
	"github.com/safar/dropshop/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testWebhookSecret = "whsec_test"

var seq atomic.Int64

// captureMailer records reset links instead of sending them.
type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[to] = link
	return nil
}

func (m *captureMailer) token(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[email]
	require.True(t, ok, "no reset mail for %s", email)
	_, token, found := strings.Cut(link, "?token=")
	require.True(t, found)
	return token
}

type env struct {
	db        *sql.DB
	processor *payment.Fake
	mailer    *captureMailer

	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
	loyalty  *LoyaltyService
	raffles  *RaffleService
	auth     *AuthService
	catalog  *CatalogService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewPostgres(t)

	authCfg := config.AuthConfig{
		AccessSecret:     "test-access",
		RefreshSecret:    "test-refresh",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		PasswordResetTTL: time.Hour,
		BcryptCost:       bcrypt.MinCost,
		ResetURLBase:     "http://shop.test/reset",
	}
	checkoutCfg := config.CheckoutConfig{
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingFee:       decimal.NewFromInt(10),
		TaxRate:               decimal.RequireFromString("0.08"),
		Currency:              "usd",
	}

	e := &env{
		db:        db,
		processor: payment.NewFake(testWebhookSecret),
		mailer:    &captureMailer{},
	}
	e.carts = NewCartService(db)
	e.checkout = NewCheckoutService(db, e.processor, nil, checkoutCfg)
	e.orders = NewOrderService(db)
	e.loyalty = NewLoyaltyService(db)
	e.raffles = NewRaffleService(db)
	e.catalog = NewCatalogService(db, nil)
	e.auth = NewAuthService(db, auth.NewPasswordHasher(authCfg.BcryptCost), auth.NewTokenIssuer(authCfg), e.carts, e.mailer, authCfg)

	return e
}

func (e *env) register(t *testing.T) *models.User {
	t.Helper()

	n := seq.Add(1)
	res, err := e.auth.Register(context.Background(), RegisterRequest{
		Email:     fmt.Sprintf("member%d@example.com", n),
		Password:  "correct horse",
		FirstName: "Test",
		LastName:  "Member",
	})
	require.NoError(t, err)
	return res.User
}

func (e *env) product(t *testing.T, price string, stock int, sizes ...string) (*models.Product, []*models.Variant) {
	t.Helper()

	ctx := context.Background()
	n := seq.Add(1)

	p, err := e.catalog.CreateProduct(ctx, CreateProductRequest{
		Name:      fmt.Sprintf("Box Logo Tee %d", n),
		Category:  "tees",
		BasePrice: decimal.RequireFromString(price),
	})
	require.NoError(t, err)

	if len(sizes) == 0 {
		sizes = []string{"M"}
	}

	variants := make([]*models.Variant, 0, len(sizes))
	for _, size := range sizes {
		v, err := e.catalog.AddVariant(ctx, p.ID, AddVariantRequest{
			SKU:   fmt.Sprintf("TEE-%d-%s", n, size),
			Size:  size,
			Color: "white",
			Stock: stock,
		})
		require.NoError(t, err)
		variants = append(variants, v)
	}

	return p, variants
}

func (e *env) stock(t *testing.T, variantID int64) int {
	t.Helper()
	v, err := store.GetVariant(context.Background(), e.db, variantID)
	require.NoError(t, err)
	return v.StockQuantity
}

func userOwner(id int64) store.CartOwner {
	return store.CartOwner{UserID: &id}
}

func testAddress() CheckoutAddress {
	return CheckoutAddress{
		FullName:   "Test Member",
		Line1:      "1 Market St",
		City:       "San Francisco",
		State:      "CA",
		PostalCode: "94105",
		Country:    "US",
	}
}
