package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=customer admin super_admin"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	page, err := h.svc.Users.List(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (h *Handler) AdminSetUserRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	user, err := h.svc.Users.SetRole(c.Request.Context(), claims.UserID, id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, user)
}

func (h *Handler) AdminSetUserActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	user, err := h.svc.Users.SetActive(c.Request.Context(), claims.UserID, id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, user)
}
