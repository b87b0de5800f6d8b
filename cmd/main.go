package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"payflow/internal/handler"
	"payflow/internal/middleware"
	"payflow/internal/permission"
	"payflow/internal/repository/gormstore"
	"payflow/internal/service"
	"payflow/pkg/config"
	"payflow/pkg/database"
	"payflow/pkg/jwtutil"
	"payflow/pkg/logger"
	"payflow/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: "payflow",
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting payment request service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Token issuer with independent access/refresh secrets
	tokens := jwtutil.NewIssuer(&jwtutil.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})

	// Wire up storage, services and handlers
	store := gormstore.NewStore(database.GetDB())
	authService := service.NewAuthService(store, tokens, log)
	paymentService := service.NewPaymentService(store, log)

	authHandler := handler.NewAuthHandler(authService, cfg.Server.Env, tokens.RefreshTTL())
	paymentHandler := handler.NewPaymentHandler(paymentService)
	roleHandler := handler.NewRoleHandler(store)

	auth := middleware.NewAuth(tokens, store, authService)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	authGroup := e.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.POST("/invite/:token", authHandler.AcceptInvite)
	authGroup.POST("/invite", authHandler.CreateInvite,
		auth.Authenticate, middleware.RequirePermissions(permission.AdminUsers))
	authGroup.GET("/me", authHandler.Me, auth.Authenticate)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(auth.Authenticate)

	api.GET("/roles", roleHandler.List, middleware.RequirePermissions(permission.AdminRoles))

	payments := api.Group("/payments")
	payments.POST("", paymentHandler.Create, middleware.RequirePermissions(permission.PaymentCreate))
	payments.GET("", paymentHandler.List)
	payments.GET("/:id", paymentHandler.Get)
	payments.PATCH("/:id", paymentHandler.Update, middleware.RequirePermissions(permission.PaymentEditOwn))
	payments.DELETE("/:id", paymentHandler.Remove, middleware.RequirePermissions(permission.PaymentEditOwn))
	payments.POST("/:id/submit", paymentHandler.Submit, middleware.RequirePermissions(permission.PaymentCreate))

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
