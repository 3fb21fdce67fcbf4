package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/safar/dropshop/internal/api"
	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/cache"
	"github.com/safar/dropshop/internal/config"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/payment"
	"github.com/safar/dropshop/internal/service"
	"github.com/safar/dropshop/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	if _, err := logger.Init(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		logger.Fatal("init logger", zap.Error(err))
	}
	defer logger.Sync()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Env)
	if err != nil {
		logger.Fatal("init telemetry", zap.Error(err))
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	var catalogCache *cache.Catalog
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, catalog cache will retry per request", zap.Error(err))
		}
		cancel()

		catalogCache = cache.NewCatalog(client, cfg.Redis.CacheTTL)
		logger.Info("catalog cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var processor payment.Processor
	if cfg.Payment.StripeSecretKey != "" {
		processor = payment.NewStripeProcessor(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret)
	} else {
		if !cfg.IsDevelopment() {
			logger.Fatal("STRIPE_SECRET_KEY is required outside development")
		}
		logger.Warn("STRIPE_SECRET_KEY not set, using in-memory payment processor")
		processor = payment.NewFake(cfg.Payment.StripeWebhookSecret)
	}

	authz, err := auth.NewAuthorizer()
	if err != nil {
		logger.Fatal("init authorizer", zap.Error(err))
	}

	carts := service.NewCartService(db)
	services := api.Services{
		Auth: service.NewAuthService(db,
			auth.NewPasswordHasher(cfg.Auth.BcryptCost),
			auth.NewTokenIssuer(cfg.Auth),
			carts,
			service.LogMailer{},
			cfg.Auth),
		Users:     service.NewUserService(db),
		Catalog:   service.NewCatalogService(db, catalogCache),
		Carts:     carts,
		Checkout:  service.NewCheckoutService(db, processor, catalogCache, cfg.Checkout),
		Orders:    service.NewOrderService(db),
		Loyalty:   service.NewLoyaltyService(db),
		Raffles:   service.NewRaffleService(db),
		Addresses: service.NewAddressService(db),
	}

	serviceName := ""
	if cfg.Telemetry.OTLPEndpoint != "" {
		serviceName = cfg.Telemetry.ServiceName
	}
	router := api.NewRouter(api.NewHandler(db, catalogCache, services, authz), serviceName)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
