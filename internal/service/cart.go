package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/pricing"
	"github.com/safar/dropshop/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 99
)

type CartView struct {
	ID        int64             `json:"id,omitempty"`
	Items     []models.CartItem `json:"items"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	ItemCount int               `json:"itemCount"`
}

type CartService struct {
	db *sql.DB
}

func NewCartService(db *sql.DB) *CartService {
	return &CartService{db: db}
}

// Owner resolves who a cart request acts for. Authenticated users win over
// a session id; guests must supply one.
func Owner(userID *int64, sessionID string) (store.CartOwner, error) {
	if userID != nil {
		return store.CartOwner{UserID: userID}, nil
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return store.CartOwner{}, apperr.Validation("session required for guest checkout")
	}
	if len(sessionID) > 128 {
		return store.CartOwner{}, apperr.Validation("session id too long")
	}
	return store.CartOwner{SessionID: sessionID}, nil
}

func (s *CartService) Get(ctx context.Context, owner store.CartOwner) (*CartView, error) {
	cartID, err := store.FindCart(ctx, s.db, owner)
	if errors.Is(err, database.ErrCartNotFound) {
		return &CartView{Items: []models.CartItem{}, Subtotal: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cartID)
}

func (s *CartService) view(ctx context.Context, cartID int64) (*CartView, error) {
	items, err := store.ListCartItems(ctx, s.db, cartID)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	subtotal, count := pricing.Subtotal(lines)

	return &CartView{ID: cartID, Items: items, Subtotal: subtotal, ItemCount: count}, nil
}

// AddItem adds quantity units of a variant. Repeated adds accumulate on the
// same line and the running total is bounded by available stock.
func (s *CartService) AddItem(ctx context.Context, owner store.CartOwner, variantID int64, quantity int) (*CartView, error) {
	if quantity < MinLineQuantity || quantity > MaxLineQuantity {
		return nil, apperr.Validation("quantity must be between %d and %d", MinLineQuantity, MaxLineQuantity)
	}

	variant, err := store.GetPurchasableVariant(ctx, s.db, variantID)
	if err != nil {
		return nil, translate(err)
	}

	cartID, err := store.GetOrCreateCart(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}

	existing, err := store.CartQuantity(ctx, s.db, cartID, variantID)
	if err != nil {
		return nil, err
	}

	total := existing + quantity
	if total > variant.StockQuantity {
		remaining := variant.StockQuantity - existing
		if remaining < 0 {
			remaining = 0
		}
		return nil, apperr.Conflict("only %d more of %s available (%d already in cart)", remaining, variant.SKU, existing)
	}
	if total > MaxLineQuantity {
		return nil, apperr.Validation("at most %d of one item per cart", MaxLineQuantity)
	}

	if err := store.AddCartItem(ctx, s.db, cartID, variantID, quantity); err != nil {
		return nil, err
	}

	return s.view(ctx, cartID)
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (s *CartService) SetQuantity(ctx context.Context, owner store.CartOwner, itemID int64, quantity int) (*CartView, error) {
	if quantity == 0 {
		return s.RemoveItem(ctx, owner, itemID)
	}
	if quantity < MinLineQuantity || quantity > MaxLineQuantity {
		return nil, apperr.Validation("quantity must be between 0 and %d", MaxLineQuantity)
	}

	cartID, err := store.FindCart(ctx, s.db, owner)
	if err != nil {
		return nil, translate(mapMissingCart(err))
	}

	item, err := store.GetCartItem(ctx, s.db, cartID, itemID)
	if err != nil {
		return nil, translate(err)
	}

	if quantity > item.AvailableStock {
		return nil, apperr.Conflict("only %d of %s available", item.AvailableStock, item.SKU)
	}

	if err := store.SetCartItemQuantity(ctx, s.db, cartID, itemID, quantity); err != nil {
		return nil, translate(err)
	}

	return s.view(ctx, cartID)
}

func (s *CartService) RemoveItem(ctx context.Context, owner store.CartOwner, itemID int64) (*CartView, error) {
	cartID, err := store.FindCart(ctx, s.db, owner)
	if err != nil {
		return nil, translate(mapMissingCart(err))
	}

	if err := store.DeleteCartItem(ctx, s.db, cartID, itemID); err != nil {
		return nil, translate(err)
	}

	return s.view(ctx, cartID)
}

func (s *CartService) Clear(ctx context.Context, owner store.CartOwner) (*CartView, error) {
	cartID, err := store.FindCart(ctx, s.db, owner)
	if errors.Is(err, database.ErrCartNotFound) {
		return &CartView{Items: []models.CartItem{}, Subtotal: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := store.ClearCart(ctx, s.db, cartID); err != nil {
		return nil, err
	}

	return s.view(ctx, cartID)
}

// MergeGuestIntoUser moves a guest cart into the user's cart, summing shared
// variants, and deletes the guest cart. A missing guest cart is a no-op.
func (s *CartService) MergeGuestIntoUser(ctx context.Context, sessionID string, userID int64) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}

	merged := false
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		merged = false

		guestCart, err := store.LockSessionCart(ctx, tx, sessionID)
		if errors.Is(err, database.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		userCart, err := store.GetOrCreateCart(ctx, tx, store.CartOwner{UserID: &userID})
		if err != nil {
			return err
		}

		merged = true
		return store.MergeCartInto(ctx, tx, guestCart, userCart, MaxLineQuantity)
	})
	if err != nil {
		return err
	}

	if merged {
		logger.Debug("merged guest cart", zap.String("session_id", sessionID), zap.Int64("user_id", userID))
	}
	return nil
}

func mapMissingCart(err error) error {
	if errors.Is(err, database.ErrCartNotFound) {
		return database.ErrCartItemNotFound
	}
	return err
}
