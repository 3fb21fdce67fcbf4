package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/loyalty"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const transactionHistoryLimit = 50

type AccountView struct {
	*models.LoyaltyAccount
	Multiplier     int          `json:"raffleMultiplier"`
	NextTier       loyalty.Tier `json:"nextTier,omitempty"`
	PointsToNext   int          `json:"pointsToNextTier"`
	ProgressToNext float64      `json:"progressToNextTier"`
}

type EarnResult struct {
	PointsEarned int          `json:"pointsEarned"`
	NewBalance   int          `json:"newBalance"`
	Tier         loyalty.Tier `json:"tier"`
	TierUpgraded bool         `json:"tierUpgraded"`
}

type RedeemResult struct {
	Redemption *models.LoyaltyRedemption `json:"redemption"`
	NewBalance int                       `json:"newBalance"`
	Tier       loyalty.Tier              `json:"tier"`
}

type LoyaltyService struct {
	db *sql.DB
}

func NewLoyaltyService(db *sql.DB) *LoyaltyService {
	return &LoyaltyService{db: db}
}

func (s *LoyaltyService) account(ctx context.Context, userID int64) (*models.LoyaltyAccount, error) {
	if err := store.EnsureLoyaltyAccount(ctx, s.db, userID); err != nil {
		return nil, err
	}
	return store.GetLoyaltyAccount(ctx, s.db, userID)
}

func (s *LoyaltyService) Account(ctx context.Context, userID int64) (*AccountView, error) {
	account, err := s.account(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	tier := loyalty.Tier(account.Tier)
	view := &AccountView{LoyaltyAccount: account, Multiplier: tier.Multiplier(), ProgressToNext: 1}

	if next, threshold, ok := tier.Next(); ok {
		view.NextTier = next
		view.PointsToNext = threshold - account.PointsBalance
		if view.PointsToNext < 0 {
			view.PointsToNext = 0
		}
		view.ProgressToNext = float64(account.PointsBalance) / float64(threshold)
		if view.ProgressToNext > 1 {
			view.ProgressToNext = 1
		}
	}

	return view, nil
}

func (s *LoyaltyService) Transactions(ctx context.Context, userID int64) ([]models.LoyaltyTransaction, error) {
	account, err := s.account(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return store.ListLoyaltyTransactions(ctx, s.db, account.ID, transactionHistoryLimit)
}

func (s *LoyaltyService) Redemptions(ctx context.Context, userID int64) ([]models.LoyaltyRedemption, error) {
	account, err := s.account(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return store.ListRedemptions(ctx, s.db, account.ID)
}

// Rewards lists the catalog as seen by userID.
func (s *LoyaltyService) Rewards(ctx context.Context, userID int64) ([]loyalty.Availability, error) {
	account, err := s.account(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return loyalty.EvaluateAll(loyalty.Tier(account.Tier), account.PointsBalance), nil
}

// EarnForOrder awards purchase points for one of the caller's paid orders.
// amount may not exceed the order total, and an order is only awarded once.
func (s *LoyaltyService) EarnForOrder(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*EarnResult, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, translate(err)
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	if order.PaymentStatus != models.PaymentStatusPaid {
		return nil, apperr.Conflict("order %s is not paid", order.OrderNumber)
	}

	if amount.IsZero() {
		amount = order.Total
	}
	if amount.IsNegative() || amount.GreaterThan(order.Total) {
		return nil, apperr.Validation("amount must be between 0 and the order total %s", order.Total.StringFixed(2))
	}

	points := loyalty.PurchasePoints(amount)
	desc := fmt.Sprintf("Purchase %s", order.OrderNumber)

	var result *EarnResult
	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		awarded, err := store.PurchaseAwarded(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if awarded {
			return database.ErrAlreadyAwarded
		}

		result, err = earnTx(ctx, tx, userID, loyalty.SourcePurchase, points, &orderID, desc)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	return result, nil
}

// Award grants non-purchase points. bonus is only read for SourceBonus.
func (s *LoyaltyService) Award(ctx context.Context, userID int64, source loyalty.Source, bonus int, description string) (*EarnResult, error) {
	if source == loyalty.SourcePurchase {
		return nil, apperr.Validation("purchase points require an order")
	}

	points, err := loyalty.PointsFor(source, decimal.Zero, bonus)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	if _, err := store.GetUser(ctx, s.db, userID); err != nil {
		return nil, translate(err)
	}

	if description = strings.TrimSpace(description); description == "" {
		description = fmt.Sprintf("%s points", source)
	}

	var result *EarnResult
	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err = earnTx(ctx, tx, userID, source, points, nil, description)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	return result, nil
}

// earnTx credits points under the account row lock. The cached tier is
// recomputed from the new balance.
func earnTx(ctx context.Context, tx *sql.Tx, userID int64, source loyalty.Source, points int, orderID *int64, description string) (*EarnResult, error) {
	if err := store.EnsureLoyaltyAccount(ctx, tx, userID); err != nil {
		return nil, err
	}

	account, err := store.LockLoyaltyAccount(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	oldTier := loyalty.Tier(account.Tier)
	account.PointsBalance += points
	account.LifetimePoints += points
	newTier := loyalty.TierFor(account.PointsBalance)
	account.Tier = newTier.String()

	if err := store.UpdateLoyaltyAccount(ctx, tx, account); err != nil {
		return nil, err
	}

	err = store.InsertLoyaltyTransaction(ctx, tx, &models.LoyaltyTransaction{
		AccountID:    account.ID,
		Type:         models.LoyaltyTxEarn,
		Source:       string(source),
		Amount:       points,
		BalanceAfter: account.PointsBalance,
		OrderID:      orderID,
		Description:  description,
	})
	if err != nil {
		return nil, err
	}

	upgraded := newTier.Rank() > oldTier.Rank()
	if upgraded {
		logger.Info("loyalty tier upgraded",
			zap.Int64("user_id", userID),
			zap.String("from", oldTier.String()),
			zap.String("to", newTier.String()))
	}

	return &EarnResult{
		PointsEarned: points,
		NewBalance:   account.PointsBalance,
		Tier:         newTier,
		TierUpgraded: upgraded,
	}, nil
}

// awardPurchase credits points for a just-paid order inside the payment
// transaction. Guest orders and orders already awarded are skipped.
func awardPurchase(ctx context.Context, tx *sql.Tx, order *models.Order) (*EarnResult, error) {
	if order.UserID == nil {
		return nil, nil
	}

	awarded, err := store.PurchaseAwarded(ctx, tx, order.ID)
	if err != nil || awarded {
		return nil, err
	}

	points := loyalty.PurchasePoints(order.Total)
	if points == 0 {
		return nil, nil
	}

	return earnTx(ctx, tx, *order.UserID, loyalty.SourcePurchase, points, &order.ID, "Purchase "+order.OrderNumber)
}

// Redeem spends points on a catalog reward and returns a single-use code.
// Spending never lowers the cached tier.
func (s *LoyaltyService) Redeem(ctx context.Context, userID int64, rewardID string) (*RedeemResult, error) {
	reward, ok := loyalty.FindReward(rewardID)
	if !ok {
		return nil, apperr.NotFound("reward not found")
	}

	var result *RedeemResult
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.EnsureLoyaltyAccount(ctx, tx, userID); err != nil {
			return err
		}

		account, err := store.LockLoyaltyAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		avail := loyalty.Evaluate(reward, loyalty.Tier(account.Tier), account.PointsBalance)
		if avail.TierLocked {
			return apperr.Conflict("%s requires %s tier", reward.Name, reward.MinTier)
		}
		if avail.Deficit > 0 {
			return apperr.Conflict("insufficient points: %d more needed", avail.Deficit)
		}

		account.PointsBalance -= reward.PointsCost
		if err := store.UpdateLoyaltyAccount(ctx, tx, account); err != nil {
			return err
		}

		err = store.InsertLoyaltyTransaction(ctx, tx, &models.LoyaltyTransaction{
			AccountID:    account.ID,
			Type:         models.LoyaltyTxRedeem,
			Source:       "reward",
			Amount:       -reward.PointsCost,
			BalanceAfter: account.PointsBalance,
			Description:  "Redeemed " + reward.Name,
		})
		if err != nil {
			return err
		}

		redemption, err := store.CreateRedemption(ctx, tx, account.ID, reward.ID, newRewardCode(), reward.PointsCost)
		if err != nil {
			return err
		}

		result = &RedeemResult{
			Redemption: redemption,
			NewBalance: account.PointsBalance,
			Tier:       loyalty.Tier(account.Tier),
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	return result, nil
}

// resolveReward loads an unused reward code owned by userID and turns it into
// a checkout adjustment.
func resolveReward(ctx context.Context, db database.DBTX, userID *int64, code string) (*models.LoyaltyRedemption, loyalty.Reward, error) {
	if userID == nil {
		return nil, loyalty.Reward{}, apperr.Unauthorized("sign in to use a reward code")
	}

	redemption, err := store.GetRedemptionByCode(ctx, db, *userID, code)
	if errors.Is(err, database.ErrRedemptionNotFound) {
		return nil, loyalty.Reward{}, apperr.Validation("invalid reward code")
	}
	if err != nil {
		return nil, loyalty.Reward{}, err
	}
	if redemption.UsedAt != nil {
		return nil, loyalty.Reward{}, apperr.Conflict("reward code already used")
	}

	reward, ok := loyalty.FindReward(redemption.RewardID)
	if !ok || (reward.Type != loyalty.RewardDiscount && reward.Type != loyalty.RewardFreeShipping) {
		return nil, loyalty.Reward{}, apperr.Validation("reward %s cannot be applied at checkout", redemption.RewardID)
	}

	return redemption, reward, nil
}

func newRewardCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RWD-" + strings.ToUpper(id[:12])
}
