package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type updateOrderStatusRequest struct {
	Status         string `json:"status" binding:"required,oneof=failed shipped delivered refunded partially_refunded"`
	TrackingNumber string `json:"trackingNumber" binding:"max=100"`
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	claims, _ := currentUser(c)
	page, err := h.svc.Orders.ListMine(c.Request.Context(), claims.UserID, c.Query("cursor"), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (h *Handler) GetMyOrder(c *gin.Context) {
	claims, _ := currentUser(c)
	order, err := h.svc.Orders.GetMine(c.Request.Context(), claims.UserID, c.Param("orderNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, order)
}

func (h *Handler) AdminListOrders(c *gin.Context) {
	page, err := h.svc.Orders.AdminList(c.Request.Context(), c.Query("status"), queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (h *Handler) AdminGetOrder(c *gin.Context) {
	order, err := h.svc.Orders.AdminGet(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, order)
}

func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.svc.Orders.UpdateStatus(c.Request.Context(), c.Param("orderNumber"), req.Status, req.TrackingNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, order)
}
