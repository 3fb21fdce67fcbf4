// Package api exposes the storefront services over JSON/HTTP with gin.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/cache"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Services struct {
	Auth      *service.AuthService
	Users     *service.UserService
	Catalog   *service.CatalogService
	Carts     *service.CartService
	Checkout  *service.CheckoutService
	Orders    *service.OrderService
	Loyalty   *service.LoyaltyService
	Raffles   *service.RaffleService
	Addresses *service.AddressService
}

type Handler struct {
	svc   Services
	authz *auth.Authorizer
	db    *sql.DB
	cache *cache.Catalog
}

func NewHandler(db *sql.DB, catalogCache *cache.Catalog, svc Services, authz *auth.Authorizer) *Handler {
	return &Handler{svc: svc, authz: authz, db: db, cache: catalogCache}
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(h *Handler, serviceName string) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(requestIDMiddleware())
	r.Use(recoveryMiddleware())
	r.Use(loggerMiddleware(logger.L()))
	if serviceName != "" {
		r.Use(otelgin.Middleware(serviceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/checkout/webhook"})))

	r.NoRoute(func(c *gin.Context) {
		respondMessage(c, http.StatusNotFound, "route not found")
	})

	r.GET("/health", h.Health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/forgot-password", h.ForgotPassword)
		authGroup.POST("/reset-password", h.ResetPassword)

		authed := authGroup.Group("", h.requireAuth())
		authed.GET("/me", h.Me)
		authed.PUT("/me", h.UpdateMe)
		authed.POST("/change-password", h.ChangePassword)
		authed.POST("/logout-all", h.LogoutAll)
	}

	r.GET("/products", h.optionalAuth(), h.ListProducts)
	r.GET("/products/:slug", h.GetProduct)

	wishlist := r.Group("/wishlist", h.requireAuth())
	{
		wishlist.GET("", h.Wishlist)
		wishlist.POST("", h.AddToWishlist)
		wishlist.DELETE("/:productId", h.RemoveFromWishlist)
	}

	addresses := r.Group("/addresses", h.requireAuth())
	{
		addresses.GET("", h.ListAddresses)
		addresses.POST("", h.CreateAddress)
		addresses.DELETE("/:id", h.DeleteAddress)
	}

	cart := r.Group("/cart", h.optionalAuth())
	{
		cart.GET("", h.GetCart)
		cart.DELETE("", h.ClearCart)
		cart.POST("/items", h.AddCartItem)
		cart.PUT("/items/:id", h.UpdateCartItem)
		cart.DELETE("/items/:id", h.RemoveCartItem)
	}

	checkout := r.Group("/checkout")
	{
		checkout.POST("/create-payment-intent", h.optionalAuth(), h.CreatePaymentIntent)
		checkout.POST("/confirm", h.optionalAuth(), h.ConfirmPayment)
		checkout.POST("/webhook", h.PaymentWebhook)
	}

	orders := r.Group("/orders", h.requireAuth())
	{
		orders.GET("", h.ListMyOrders)
		orders.GET("/:orderNumber", h.GetMyOrder)
	}

	loyaltyGroup := r.Group("/loyalty", h.requireAuth())
	{
		loyaltyGroup.GET("", h.LoyaltyAccount)
		loyaltyGroup.GET("/transactions", h.LoyaltyTransactions)
		loyaltyGroup.GET("/redemptions", h.LoyaltyRedemptions)
		loyaltyGroup.GET("/rewards", h.LoyaltyRewards)
		loyaltyGroup.POST("/redeem", h.RedeemReward)
		loyaltyGroup.POST("/earn", h.EarnPoints)
	}

	raffles := r.Group("/raffles")
	{
		raffles.GET("", h.ListRaffles)
		raffles.GET("/:id", h.GetRaffle)
		raffles.GET("/entries/me", h.requireAuth(), h.MyRaffleEntries)
		raffles.GET("/:id/entry", h.requireAuth(), h.MyRaffleEntry)
		raffles.POST("/:id/enter", h.requireAuth(), h.EnterRaffle)

		manage := raffles.Group("", h.requireAuth(), h.requirePermission(auth.ResourceRaffles, auth.ActionManage))
		manage.POST("", h.CreateRaffle)
		manage.POST("/:id/draw", h.DrawRaffle)
		manage.POST("/:id/cancel", h.CancelRaffle)
		manage.POST("/:id/complete", h.CompleteRaffle)
	}

	admin := r.Group("/admin", h.requireAuth())
	{
		catalog := admin.Group("", h.requirePermission(auth.ResourceCatalog, auth.ActionManage))
		catalog.POST("/products", h.CreateProduct)
		catalog.POST("/products/:id/variants", h.AddVariant)
		catalog.PUT("/variants/:id/stock", h.SetVariantStock)

		adminOrders := admin.Group("/orders", h.requirePermission(auth.ResourceOrders, auth.ActionManage))
		adminOrders.GET("", h.AdminListOrders)
		adminOrders.GET("/:orderNumber", h.AdminGetOrder)
		adminOrders.PATCH("/:orderNumber/status", h.AdminUpdateOrderStatus)

		users := admin.Group("/users", h.requirePermission(auth.ResourceUsers, auth.ActionManage))
		users.GET("", h.AdminListUsers)
		users.PATCH("/:id/active", h.AdminSetUserActive)
		users.PATCH("/:id/role", h.requirePermission(auth.ResourceRoles, auth.ActionManage), h.AdminSetUserRole)
	}

	return r
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "database": "up", "cache": "disabled"}

	if err := h.db.PingContext(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "down"
	}

	if h.cache != nil {
		body["cache"] = "up"
		body["cacheStats"] = h.cache.Stats()
		if err := h.cache.Ping(ctx); err != nil {
			body["cache"] = "down"
		}
	}

	respondJSON(c, status, body)
}
