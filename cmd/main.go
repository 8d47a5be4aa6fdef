package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/chat"
	"github.com/kmohamed-dz/abcher/internal/handler"
	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/internal/middleware"
	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/onboarding"
	"github.com/kmohamed-dz/abcher/internal/realtime"
	"github.com/kmohamed-dz/abcher/internal/store"
	"github.com/kmohamed-dz/abcher/pkg/config"
	"github.com/kmohamed-dz/abcher/pkg/database"
	"github.com/kmohamed-dz/abcher/pkg/jwtutil"
	"github.com/kmohamed-dz/abcher/pkg/logger"
	"github.com/kmohamed-dz/abcher/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("abcher-core")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.Init(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting core service...", cfg.LogConfig()...)

	// Open the database and migrate the core tables
	db, err := database.Open(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(db, &model.Profile{}, &model.School{}, &model.Message{}); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connection established")

	// One store handle backs every domain service; nothing reaches for a
	// package-level client.
	st := store.New(db)

	// Realtime bus: Redis pub/sub when configured, in-process otherwise
	var bus realtime.Bus
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bus = realtime.NewRedisBus(client, log)
		log.Info("Realtime bus backed by Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		bus = realtime.NewMemoryBus()
		log.Info("Realtime bus running in-process")
	}

	// Domain services
	resolver := identity.NewResolver(st, log)
	onboardingSvc := onboarding.NewService(st, st, log)
	chatSvc := chat.NewService(st, bus, log)

	// Token verification for the external-auth contract
	jwt := jwtutil.New(&cfg.JWT)

	// Handlers
	onboardingHandler := handler.NewOnboardingHandler(resolver, onboardingSvc)
	chatHandler := handler.NewChatHandler(resolver, chatSvc)
	wsHandler := handler.NewWSHandler(jwt, resolver, bus)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Websocket gateway authenticates via query token
	e.GET("/ws", wsHandler.Handle)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(jwt))

	// Account bootstrap and onboarding
	api.GET("/me", onboardingHandler.Me)
	api.POST("/onboarding/role", onboardingHandler.SelectRole)
	api.POST("/schools", onboardingHandler.CreateSchool)
	api.POST("/schools/join", onboardingHandler.JoinSchool)

	// Direct messaging
	api.GET("/messages/:peer", chatHandler.Conversation)
	api.POST("/messages", chatHandler.Send)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
