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
	"github.com/safar/dropshop/internal/store"
	"go.uber.org/zap"
)

// transitions lists the moves an operator may make. pending -> paid is
// reserved for payment confirmation.
var transitions = map[string]map[string]string{
	models.OrderStatusPending: {
		models.OrderStatusFailed: models.PaymentStatusFailed,
	},
	models.OrderStatusPaid: {
		models.OrderStatusShipped:           "",
		models.OrderStatusRefunded:          models.PaymentStatusRefunded,
		models.OrderStatusPartiallyRefunded: models.PaymentStatusPartiallyRefunded,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered: "",
	},
}

// CanTransition reports whether an operator may move an order from one
// status to another.
func CanTransition(from, to string) bool {
	_, ok := transitions[from][to]
	return ok
}

const maxOrdersPerPage = 50

type OrderService struct {
	db *sql.DB
}

func NewOrderService(db *sql.DB) *OrderService {
	return &OrderService{db: db}
}

func (s *OrderService) ListMine(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error) {
	if limit < 1 || limit > maxOrdersPerPage {
		limit = 10
	}
	page, err := store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCursor) {
			return nil, apperr.Validation("invalid cursor")
		}
		return nil, err
	}
	return page, nil
}

func (s *OrderService) GetMine(ctx context.Context, userID int64, orderNumber string) (*models.Order, error) {
	order, err := store.GetOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, translate(err)
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	return order, nil
}

func (s *OrderService) AdminList(ctx context.Context, status string, page, pageSize int) (*store.OffsetPage, error) {
	if status != "" {
		if _, ok := validStatuses[status]; !ok {
			return nil, apperr.Validation("unknown order status %q", status)
		}
	}
	page, pageSize = store.NormalizePage(page, pageSize)
	return store.ListOrders(ctx, s.db, status, page, pageSize)
}

func (s *OrderService) AdminGet(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := store.GetOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

var validStatuses = map[string]struct{}{
	models.OrderStatusPending:           {},
	models.OrderStatusPaid:              {},
	models.OrderStatusShipped:           {},
	models.OrderStatusDelivered:         {},
	models.OrderStatusFailed:            {},
	models.OrderStatusRefunded:          {},
	models.OrderStatusPartiallyRefunded: {},
}

// UpdateStatus moves an order along the state machine. Shipping requires a
// tracking number.
func (s *OrderService) UpdateStatus(ctx context.Context, orderNumber, to, trackingNumber string) (*models.Order, error) {
	order, err := store.GetOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return nil, translate(err)
	}

	if _, ok := validStatuses[to]; !ok {
		return nil, apperr.Validation("unknown order status %q", to)
	}
	if to == models.OrderStatusPaid {
		return nil, apperr.Validation("orders are marked paid by payment confirmation")
	}
	if !CanTransition(order.Status, to) {
		return nil, apperr.Conflict("cannot move order from %s to %s", order.Status, to)
	}

	trackingNumber = strings.TrimSpace(trackingNumber)
	if to == models.OrderStatusShipped && trackingNumber == "" {
		return nil, apperr.Validation("tracking number is required to ship")
	}

	err = store.UpdateOrderStatus(ctx, s.db, order.ID, store.StatusUpdate{
		From:           order.Status,
		To:             to,
		PaymentStatus:  transitions[order.Status][to],
		TrackingNumber: trackingNumber,
	})
	if errors.Is(err, database.ErrOptimisticLockFailed) {
		return nil, apperr.Conflict("order status changed concurrently, reload and retry")
	}
	if err != nil {
		return nil, err
	}

	logger.Info("order status updated",
		zap.String("order_number", orderNumber),
		zap.String("from", order.Status),
		zap.String("to", to))

	return store.GetOrderByNumber(ctx, s.db, orderNumber)
}
