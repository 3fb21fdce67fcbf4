package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/cache"
	"github.com/safar/dropshop/internal/config"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/loyalty"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/payment"
	"github.com/safar/dropshop/internal/pricing"
	"github.com/safar/dropshop/internal/store"
	"go.uber.org/zap"
)

type CheckoutAddress struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type CheckoutRequest struct {
	ShippingAddress CheckoutAddress
	BillingAddress  *CheckoutAddress
	Email           string
	Phone           string
	RewardCode      string
}

type CheckoutSummary struct {
	Subtotal  string `json:"subtotal"`
	Shipping  string `json:"shipping"`
	Tax       string `json:"tax"`
	Total     string `json:"total"`
	Discount  string `json:"discount,omitempty"`
	ItemCount int    `json:"itemCount"`
}

type PaymentIntentResult struct {
	ClientSecret string          `json:"clientSecret"`
	OrderNumber  string          `json:"orderNumber"`
	Summary      CheckoutSummary `json:"summary"`
}

type ConfirmResult struct {
	Success     bool   `json:"success"`
	OrderNumber string `json:"orderNumber"`
	Message     string `json:"message"`
}

type CheckoutService struct {
	db        *sql.DB
	processor payment.Processor
	catalog   *cache.Catalog
	rules     pricing.Rules
	currency  string
}

func NewCheckoutService(db *sql.DB, processor payment.Processor, catalog *cache.Catalog, cfg config.CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		db:        db,
		processor: processor,
		catalog:   catalog,
		rules: pricing.Rules{
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			FlatShippingFee:       cfg.FlatShippingFee,
			TaxRate:               cfg.TaxRate,
		},
		currency: cfg.Currency,
	}
}

// CreatePaymentIntent prices the owner's live cart, opens a processor intent
// for the total and records a pending order with frozen lines. Stock is only
// checked here; it is decremented when the payment is confirmed.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, owner store.CartOwner, req CheckoutRequest) (*PaymentIntentResult, error) {
	email := store.NormalizeEmail(req.Email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}

	shipping, err := json.Marshal(req.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}
	billingAddr := req.ShippingAddress
	if req.BillingAddress != nil {
		billingAddr = *req.BillingAddress
	}
	billing, err := json.Marshal(billingAddr)
	if err != nil {
		return nil, fmt.Errorf("encode billing address: %w", err)
	}

	cartID, err := store.FindCart(ctx, s.db, owner)
	if errors.Is(err, database.ErrCartNotFound) {
		return nil, apperr.Validation("cart is empty")
	}
	if err != nil {
		return nil, err
	}

	items, err := store.ListCartItems(ctx, s.db, cartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.Validation("cart is empty")
	}

	lines := make([]pricing.Line, 0, len(items))
	orderItems := make([]store.NewOrderItem, 0, len(items))
	for _, item := range items {
		if item.Quantity > item.AvailableStock {
			return nil, apperr.Validation("insufficient stock for %s: %d requested, %d available",
				item.SKU, item.Quantity, item.AvailableStock)
		}
		lines = append(lines, pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
		orderItems = append(orderItems, store.NewOrderItem{
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Size:        item.Size,
			Color:       item.Color,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	var adj pricing.Adjustment
	rewardCode := strings.TrimSpace(req.RewardCode)
	if rewardCode != "" {
		_, reward, err := resolveReward(ctx, s.db, owner.UserID, rewardCode)
		if err != nil {
			return nil, err
		}
		switch reward.Type {
		case loyalty.RewardDiscount:
			adj.Discount = reward.Value
		case loyalty.RewardFreeShipping:
			adj.FreeShipping = true
		}
	}

	summary := s.rules.Compute(lines, adj)
	if !summary.Chargeable() {
		if rewardCode != "" {
			return nil, apperr.Validation("reward brings the total below the minimum charge")
		}
		return nil, apperr.Validation("order total is below the minimum charge")
	}
	orderNumber := store.GenerateOrderNumber()

	intent, err := s.processor.CreateIntent(ctx, pricing.MinorUnits(summary.Total), s.currency, map[string]string{
		"orderNumber": orderNumber,
		"cartId":      fmt.Sprint(cartID),
	})
	if err != nil {
		return nil, apperr.External("payment processor unavailable", err)
	}

	var order *models.Order
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err = store.CreateOrder(ctx, tx, store.NewOrder{
			OrderNumber:     orderNumber,
			UserID:          owner.UserID,
			SessionID:       owner.SessionID,
			CartID:          cartID,
			Email:           email,
			Phone:           strings.TrimSpace(req.Phone),
			ShippingAddress: shipping,
			BillingAddress:  billing,
			Subtotal:        summary.Subtotal,
			Discount:        summary.Discount,
			Shipping:        summary.Shipping,
			Tax:             summary.Tax,
			Total:           summary.Total,
			Currency:        s.currency,
			PaymentIntentID: intent.ID,
			RewardCode:      rewardCode,
		}, orderItems)
		return err
	})
	if err != nil {
		logger.Error("order insert failed after intent creation",
			zap.String("order_number", orderNumber),
			zap.String("intent_id", intent.ID),
			zap.Error(err))
		return nil, err
	}

	logger.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("owner", owner.String()),
		zap.String("total", summary.Total.StringFixed(2)))

	out := CheckoutSummary{
		Subtotal:  summary.Subtotal.StringFixed(2),
		Shipping:  summary.Shipping.StringFixed(2),
		Tax:       summary.Tax.StringFixed(2),
		Total:     summary.Total.StringFixed(2),
		ItemCount: summary.ItemCount,
	}
	if summary.Discount.IsPositive() {
		out.Discount = summary.Discount.StringFixed(2)
	}

	return &PaymentIntentResult{
		ClientSecret: intent.ClientSecret,
		OrderNumber:  order.OrderNumber,
		Summary:      out,
	}, nil
}

// Confirm re-checks the intent with the processor and, on success, applies
// the payment. Confirming a paid order again is a no-op.
func (s *CheckoutService) Confirm(ctx context.Context, userID *int64, sessionID, orderNumber, intentID string) (*ConfirmResult, error) {
	order, err := store.GetOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, translate(err)
	}
	if !ownsOrder(userID, sessionID, order) {
		return nil, apperr.NotFound("order not found")
	}
	if order.PaymentIntentID == nil || *order.PaymentIntentID != intentID {
		return nil, apperr.Validation("payment intent does not match order")
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		return &ConfirmResult{Success: true, OrderNumber: order.OrderNumber, Message: "Order already confirmed"}, nil
	}

	intent, err := s.processor.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, apperr.External("could not verify payment", err)
	}
	if intent.Status != payment.StatusSucceeded {
		return nil, apperr.Validation("payment not completed (status %s)", intent.Status)
	}

	if _, err := s.applyPayment(ctx, order.ID); err != nil {
		return nil, err
	}

	return &ConfirmResult{Success: true, OrderNumber: order.OrderNumber, Message: "Payment confirmed"}, nil
}

// HandleWebhook processes a signed processor notification. Events for
// unknown intents are acknowledged and ignored.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.processor.VerifyWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return apperr.Wrap(apperr.KindUnauthorized, "invalid webhook signature", err)
		}
		return apperr.Validation("malformed webhook payload")
	}

	log := logger.L().With(zap.String("event_id", event.ID), zap.String("event_type", event.Type), zap.String("intent_id", event.IntentID))

	switch event.Type {
	case payment.EventIntentSucceeded, payment.EventIntentFailed:
	default:
		log.Debug("ignoring webhook event")
		return nil
	}

	order, err := store.GetOrderByPaymentIntent(ctx, s.db, event.IntentID)
	if errors.Is(err, database.ErrOrderNotFound) {
		log.Warn("webhook for unknown payment intent")
		return nil
	}
	if err != nil {
		return err
	}

	if event.Type == payment.EventIntentFailed {
		failed, err := store.MarkOrderFailed(ctx, s.db, order.ID)
		if err != nil {
			return err
		}
		log.Info("payment failed", zap.String("order_number", order.OrderNumber), zap.Bool("updated", failed))
		return nil
	}

	applied, err := s.applyPayment(ctx, order.ID)
	if err != nil {
		return err
	}
	log.Info("payment succeeded", zap.String("order_number", order.OrderNumber), zap.Bool("applied", applied))
	return nil
}

// applyPayment marks the order paid, decrements stock (floor zero), clears
// the source cart, consumes the reward code if still unused and awards
// purchase points, all in one transaction gated on the pending payment
// status. It reports false when the order was already paid.
func (s *CheckoutService) applyPayment(ctx context.Context, orderID int64) (bool, error) {
	var (
		applied    bool
		productIDs []int64
		earned     *EarnResult
	)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		applied, productIDs, earned = false, nil, nil

		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch order.PaymentStatus {
		case models.PaymentStatusPaid:
			return nil
		case models.PaymentStatusPending:
		default:
			return apperr.Conflict("order %s is %s", order.OrderNumber, order.Status)
		}

		ok, err := store.MarkOrderPaid(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		for _, item := range order.Items {
			if item.VariantID == nil {
				continue
			}
			productID, err := store.DecrementStockClamped(ctx, tx, *item.VariantID, item.Quantity)
			if errors.Is(err, database.ErrVariantNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			productIDs = append(productIDs, productID)
		}

		if order.CartID != nil {
			if err := store.ClearCart(ctx, tx, *order.CartID); err != nil {
				return err
			}
		}

		if order.RewardCode != nil {
			// The payment is captured; a code spent by another order must not block it.
			err := store.MarkRedemptionUsed(ctx, tx, *order.RewardCode, order.ID)
			if errors.Is(err, database.ErrRewardCodeUsed) {
				logger.Warn("reward code already consumed by another order",
					zap.String("order_number", order.OrderNumber),
					zap.String("reward_code", *order.RewardCode))
			} else if err != nil {
				return err
			}
		}

		earned, err = awardPurchase(ctx, tx, order)
		if err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, translate(err)
	}

	if applied {
		if err := s.catalog.InvalidateProducts(ctx, productIDs...); err != nil {
			logger.Warn("catalog invalidation failed", zap.Error(err))
		}
		if earned != nil {
			logger.Info("purchase points awarded",
				zap.Int64("order_id", orderID),
				zap.Int("points", earned.PointsEarned),
				zap.Bool("tier_upgraded", earned.TierUpgraded))
		}
	}

	return applied, nil
}

// ownsOrder accepts the order's user, or for guest orders the session that
// placed it, even if that guest has since signed in.
func ownsOrder(userID *int64, sessionID string, order *models.Order) bool {
	if order.UserID != nil {
		return userID != nil && *userID == *order.UserID
	}
	return sessionID != "" && order.SessionID != nil && *order.SessionID == sessionID
}
