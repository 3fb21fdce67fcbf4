package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/dropshop/internal/service"
	"github.com/safar/dropshop/internal/store"
)

const maxWebhookBody = 64 << 10

type addCartItemRequest struct {
	VariantID int64  `json:"variantId" binding:"required,gt=0"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=99"`
	SessionID string `json:"sessionId" binding:"max=128"`
}

type updateCartItemRequest struct {
	Quantity  *int   `json:"quantity" binding:"required,min=0,max=99"`
	SessionID string `json:"sessionId" binding:"max=128"`
}

type createPaymentIntentRequest struct {
	ShippingAddress addressRequest  `json:"shippingAddress"`
	BillingAddress  *addressRequest `json:"billingAddress"`
	Email           string          `json:"email" binding:"required,email"`
	Phone           string          `json:"phone" binding:"max=32"`
	SessionID       string          `json:"sessionId" binding:"max=128"`
	RewardCode      string          `json:"rewardCode" binding:"max=32"`
}

type confirmPaymentRequest struct {
	OrderNumber     string `json:"orderNumber" binding:"required,max=64"`
	PaymentIntentID string `json:"paymentIntentId" binding:"required,max=255"`
	SessionID       string `json:"sessionId" binding:"max=128"`
}

// cartOwner resolves the signed-in user or the guest session. It writes the
// error response itself.
func cartOwner(c *gin.Context, bodySession string) (store.CartOwner, bool) {
	owner, err := service.Owner(userID(c), sessionID(c, bodySession))
	if err != nil {
		respondError(c, err)
		return store.CartOwner{}, false
	}
	return owner, true
}

func (h *Handler) GetCart(c *gin.Context) {
	owner, ok := cartOwner(c, "")
	if !ok {
		return
	}

	view, err := h.svc.Carts.Get(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	owner, ok := cartOwner(c, req.SessionID)
	if !ok {
		return
	}

	view, err := h.svc.Carts.AddItem(c.Request.Context(), owner, req.VariantID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	owner, ok := cartOwner(c, req.SessionID)
	if !ok {
		return
	}

	view, err := h.svc.Carts.SetQuantity(c.Request.Context(), owner, itemID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	owner, ok := cartOwner(c, "")
	if !ok {
		return
	}

	view, err := h.svc.Carts.RemoveItem(c.Request.Context(), owner, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *Handler) ClearCart(c *gin.Context) {
	owner, ok := cartOwner(c, "")
	if !ok {
		return
	}

	view, err := h.svc.Carts.Clear(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	owner, ok := cartOwner(c, req.SessionID)
	if !ok {
		return
	}

	in := service.CheckoutRequest{
		ShippingAddress: service.CheckoutAddress(req.ShippingAddress),
		Email:           req.Email,
		Phone:           req.Phone,
		RewardCode:      req.RewardCode,
	}
	if req.BillingAddress != nil {
		billing := service.CheckoutAddress(*req.BillingAddress)
		in.BillingAddress = &billing
	}

	res, err := h.svc.Checkout.CreatePaymentIntent(c.Request.Context(), owner, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.svc.Checkout.Confirm(c.Request.Context(), userID(c), sessionID(c, req.SessionID), req.OrderNumber, req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

// PaymentWebhook verifies the processor signature over the raw body.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.svc.Checkout.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"received": true})
}
