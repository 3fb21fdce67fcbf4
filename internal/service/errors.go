// Package service implements the storefront use cases on top of the store
// package. Methods return *apperr.Error for anything a caller can act on.
package service

import (
	"errors"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/database"
)

var notFound = map[error]string{
	database.ErrUserNotFound:       "user not found",
	database.ErrProductNotFound:    "product not found",
	database.ErrVariantNotFound:    "variant not found",
	database.ErrCartNotFound:       "cart not found",
	database.ErrCartItemNotFound:   "cart item not found",
	database.ErrOrderNotFound:      "order not found",
	database.ErrAddressNotFound:    "address not found",
	database.ErrAccountNotFound:    "loyalty account not found",
	database.ErrRedemptionNotFound: "reward code not found",
	database.ErrRaffleNotFound:     "raffle not found",
	database.ErrEntryNotFound:      "raffle entry not found",
}

var conflicts = map[error]string{
	database.ErrEmailTaken:           "email already registered",
	database.ErrSKUTaken:             "sku already exists",
	database.ErrSlugTaken:            "slug already exists",
	database.ErrDuplicateEntry:       "you have already entered this raffle",
	database.ErrOptimisticLockFailed: "resource was modified concurrently, reload and retry",
	database.ErrRewardCodeUsed:       "reward code already used",
	database.ErrAlreadyAwarded:       "points already awarded for this order",
	database.ErrInsufficientStock:    "insufficient stock",
	database.ErrLockTimeout:          "resource is busy, retry shortly",
}

// translate maps storage sentinels onto the error taxonomy. Errors that are
// already classified, or unknown, pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	for sentinel, msg := range notFound {
		if errors.Is(err, sentinel) {
			return apperr.Wrap(apperr.KindNotFound, msg, err)
		}
	}
	for sentinel, msg := range conflicts {
		if errors.Is(err, sentinel) {
			return apperr.Wrap(apperr.KindConflict, msg, err)
		}
	}

	return err
}
