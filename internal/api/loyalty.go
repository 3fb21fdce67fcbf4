package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/loyalty"
	"github.com/shopspring/decimal"
)

type redeemRequest struct {
	RewardID string `json:"rewardId" binding:"required,max=64"`
}

// earnRequest covers both purchase awards, where the caller names one of
// their own paid orders, and operator awards for the other sources, which
// name a target user.
type earnRequest struct {
	Source      string          `json:"source" binding:"omitempty,oneof=purchase review referral bonus"`
	OrderID     int64           `json:"orderId" binding:"omitempty,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	UserID      int64           `json:"userId" binding:"omitempty,gt=0"`
	Points      int             `json:"points" binding:"omitempty,gt=0"`
	Description string          `json:"description" binding:"max=255"`
}

func (h *Handler) LoyaltyAccount(c *gin.Context) {
	claims, _ := currentUser(c)
	view, err := h.svc.Loyalty.Account(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *Handler) LoyaltyTransactions(c *gin.Context) {
	claims, _ := currentUser(c)
	txs, err := h.svc.Loyalty.Transactions(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"items": txs})
}

func (h *Handler) LoyaltyRedemptions(c *gin.Context) {
	claims, _ := currentUser(c)
	items, err := h.svc.Loyalty.Redemptions(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"items": items})
}

func (h *Handler) LoyaltyRewards(c *gin.Context) {
	claims, _ := currentUser(c)
	rewards, err := h.svc.Loyalty.Rewards(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"rewards": rewards})
}

func (h *Handler) RedeemReward(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	res, err := h.svc.Loyalty.Redeem(c.Request.Context(), claims.UserID, req.RewardID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

func (h *Handler) EarnPoints(c *gin.Context) {
	var req earnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	ctx := c.Request.Context()

	source := loyalty.SourcePurchase
	if req.Source != "" {
		source = loyalty.Source(req.Source)
	}

	if source == loyalty.SourcePurchase {
		if req.OrderID == 0 {
			respondMessage(c, http.StatusBadRequest, "orderId is required")
			return
		}
		res, err := h.svc.Loyalty.EarnForOrder(ctx, claims.UserID, req.OrderID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		respondJSON(c, http.StatusOK, res)
		return
	}

	if !h.authorize(c, claims, auth.ResourceLoyalty, auth.ActionAward) {
		return
	}
	if req.UserID == 0 {
		respondMessage(c, http.StatusBadRequest, "userId is required")
		return
	}

	res, err := h.svc.Loyalty.Award(ctx, req.UserID, source, req.Points, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}
