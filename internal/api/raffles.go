package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/dropshop/internal/service"
)

type createRaffleRequest struct {
	ProductID    int64     `json:"productId" binding:"required,gt=0"`
	Name         string    `json:"name" binding:"required,max=200"`
	Description  string    `json:"description" binding:"max=5000"`
	EntryStart   time.Time `json:"entryStart" binding:"required"`
	EntryEnd     time.Time `json:"entryEnd" binding:"required,gtfield=EntryStart"`
	DrawAt       time.Time `json:"drawAt" binding:"required"`
	MaxEntries   int       `json:"maxEntries" binding:"required,min=1"`
	WinnersCount int       `json:"winnersCount" binding:"required,min=1,ltefield=MaxEntries"`
}

type enterRaffleRequest struct {
	SizePreference    string `json:"sizePreference" binding:"required,size"`
	ShippingAddressID *int64 `json:"shippingAddressId" binding:"omitempty,gt=0"`
}

func (h *Handler) ListRaffles(c *gin.Context) {
	raffles, err := h.svc.Raffles.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"items": raffles})
}

func (h *Handler) GetRaffle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	r, err := h.svc.Raffles.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, r)
}

func (h *Handler) CreateRaffle(c *gin.Context) {
	var req createRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.svc.Raffles.Create(c.Request.Context(), service.CreateRaffleRequest{
		ProductID:    req.ProductID,
		Name:         req.Name,
		Description:  req.Description,
		EntryStart:   req.EntryStart,
		EntryEnd:     req.EntryEnd,
		DrawAt:       req.DrawAt,
		MaxEntries:   req.MaxEntries,
		WinnersCount: req.WinnersCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, r)
}

func (h *Handler) EnterRaffle(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req enterRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	entry, err := h.svc.Raffles.Enter(c.Request.Context(), claims.UserID, raffleID, service.EnterRaffleRequest{
		SizePreference:    req.SizePreference,
		ShippingAddressID: req.ShippingAddressID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, gin.H{"entry": entry})
}

func (h *Handler) DrawRaffle(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.Raffles.Draw(c.Request.Context(), raffleID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

func (h *Handler) CancelRaffle(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	r, err := h.svc.Raffles.Cancel(c.Request.Context(), raffleID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, r)
}

func (h *Handler) CompleteRaffle(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	r, err := h.svc.Raffles.Complete(c.Request.Context(), raffleID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, r)
}

func (h *Handler) MyRaffleEntry(c *gin.Context) {
	raffleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	claims, _ := currentUser(c)
	entry, err := h.svc.Raffles.MyEntry(c.Request.Context(), claims.UserID, raffleID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"entry": entry})
}

func (h *Handler) MyRaffleEntries(c *gin.Context) {
	claims, _ := currentUser(c)
	entries, err := h.svc.Raffles.MyEntries(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"items": entries})
}
