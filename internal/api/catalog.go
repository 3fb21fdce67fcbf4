package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/service"
	"github.com/safar/dropshop/internal/store"
	"github.com/shopspring/decimal"
)

type productQuery struct {
	Category string `form:"category" binding:"max=50"`
	Search   string `form:"search" binding:"max=100"`
	Size     string `form:"size" binding:"omitempty,size"`
	MinPrice string `form:"minPrice" binding:"omitempty,numeric"`
	MaxPrice string `form:"maxPrice" binding:"omitempty,numeric"`
	Sort     string `form:"sort" binding:"omitempty,oneof=newest price_asc price_desc name"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

type createProductRequest struct {
	Slug        string          `json:"slug" binding:"omitempty,slug,max=120"`
	Name        string          `json:"name" binding:"required,max=200"`
	Description string          `json:"description" binding:"max=5000"`
	Category    string          `json:"category" binding:"required,max=50"`
	BasePrice   decimal.Decimal `json:"basePrice"`
}

type addVariantRequest struct {
	SKU           string           `json:"sku" binding:"required,max=64"`
	Size          string           `json:"size" binding:"required,size"`
	Color         string           `json:"color" binding:"required,max=50"`
	PriceOverride *decimal.Decimal `json:"priceOverride"`
	Stock         int              `json:"stock" binding:"min=0"`
}

type setStockRequest struct {
	Stock   *int `json:"stock" binding:"required,min=0"`
	Version int  `json:"version" binding:"required,min=1"`
}

type wishlistRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
}

func (h *Handler) ListProducts(c *gin.Context) {
	var q productQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	filter := store.ProductFilter{
		Category: q.Category,
		Search:   q.Search,
		Size:     q.Size,
		Sort:     store.ProductSort(q.Sort),
		Page:     q.Page,
		PageSize: q.PageSize,
		ViewerID: userID(c),
	}
	if q.MinPrice != "" {
		v := decimal.RequireFromString(q.MinPrice)
		filter.MinPrice = &v
	}
	if q.MaxPrice != "" {
		v := decimal.RequireFromString(q.MaxPrice)
		filter.MaxPrice = &v
	}

	page, err := h.svc.Catalog.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.svc.Catalog.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, p)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	p, err := h.svc.Catalog.CreateProduct(c.Request.Context(), service.CreateProductRequest{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		BasePrice:   req.BasePrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, p)
}

func (h *Handler) AddVariant(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req addVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	v, err := h.svc.Catalog.AddVariant(c.Request.Context(), productID, service.AddVariantRequest{
		SKU:           req.SKU,
		Size:          req.Size,
		Color:         req.Color,
		PriceOverride: req.PriceOverride,
		Stock:         req.Stock,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, v)
}

func (h *Handler) SetVariantStock(c *gin.Context) {
	variantID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req setStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	v, err := h.svc.Catalog.SetStock(c.Request.Context(), variantID, *req.Stock, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, v)
}

func (h *Handler) Wishlist(c *gin.Context) {
	claims, _ := currentUser(c)
	products, err := h.svc.Catalog.Wishlist(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"items": products})
}

func (h *Handler) AddToWishlist(c *gin.Context) {
	var req wishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	if err := h.svc.Catalog.AddToWishlist(c.Request.Context(), claims.UserID, req.ProductID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	productID, ok := paramID(c, "productId")
	if !ok {
		return
	}

	claims, _ := currentUser(c)
	if err := h.svc.Catalog.RemoveFromWishlist(c.Request.Context(), claims.UserID, productID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addressRequest struct {
	FullName   string `json:"fullName" binding:"required,max=120"`
	Line1      string `json:"line1" binding:"required,max=200"`
	Line2      string `json:"line2" binding:"max=200"`
	City       string `json:"city" binding:"required,max=100"`
	State      string `json:"state" binding:"max=100"`
	PostalCode string `json:"postalCode" binding:"required,max=20"`
	Country    string `json:"country" binding:"required,iso3166_1_alpha2"`
}

type createAddressRequest struct {
	addressRequest
	IsDefault bool `json:"isDefault"`
}

func (h *Handler) ListAddresses(c *gin.Context) {
	claims, _ := currentUser(c)
	addrs, err := h.svc.Addresses.List(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"items": addrs})
}

func (h *Handler) CreateAddress(c *gin.Context) {
	var req createAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, _ := currentUser(c)
	addr, err := h.svc.Addresses.Create(c.Request.Context(), claims.UserID, models.Address{
		FullName:   req.FullName,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, addr)
}

func (h *Handler) DeleteAddress(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	claims, _ := currentUser(c)
	if err := h.svc.Addresses.Delete(c.Request.Context(), claims.UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
