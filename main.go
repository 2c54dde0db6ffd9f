package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finquest-gamification/config"
	"finquest-gamification/database"
	"finquest-gamification/handlers"
	"finquest-gamification/middleware"
	"finquest-gamification/models"
	"finquest-gamification/services"
	"finquest-gamification/utils"
	"finquest-gamification/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Production())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if _, err := database.SeedBadges(db, models.DefaultBadgeCatalog); err != nil {
		logger.Fatal("failed to seed badge catalog", zap.Error(err))
	}

	rules, err := services.NewRuleEngine()
	if err != nil {
		logger.Fatal("rule engine", zap.Error(err))
	}
	badgeService := services.NewBadgeService(db, rules)
	userService := services.NewUserService(db)

	var locker services.Locker = services.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		locker = services.NewRedisLocker(rdb, 2*cfg.EventTimeout)
	}

	progressionService := services.NewProgressionService(db, badgeService,
		services.WithLocker(locker),
		services.WithRewards(services.RewardsFromConfig(cfg.Rewards)),
		services.WithEventTimeout(cfg.EventTimeout),
	)

	var icons services.IconStore
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		icons = store
	} else {
		logger.Warn("R2 not configured, badge icon uploads disabled")
	}

	var validator middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		validator = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken)
	}

	// without a sync service, users are provisioned on their first request
	var provisioner middleware.UserProvisioner = userService
	if cfg.SyncServiceURL != "" {
		provisioner = nil
		syncWorker := workers.NewUserSyncWorker(userService, cfg.SyncServiceURL, "/api/v1/public/profiles", cfg.ServiceToken, cfg.UserSyncInterval)
		syncWorker.Start(ctx)
	}

	if err := badgeService.Refresh(ctx); err != nil {
		logger.Fatal("failed to load badge catalog", zap.Error(err))
	}
	sched, err := badgeService.StartCatalogRefresh(cfg.CatalogRefreshInterval)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	// 🔐 GLOBAL: only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-Device-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, Retry-After",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.SetupGamificationRoutes(app, progressionService, provisioner)
	handlers.SetupStreamRoutes(app, progressionService, validator, provisioner, 0)
	handlers.SetupAdminRoutes(app, badgeService, userService, icons)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("server running",
		zap.String("port", cfg.Port),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Bool("redis_lock", cfg.RedisAddr != ""),
		zap.Bool("user_sync", cfg.SyncServiceURL != ""))

	<-ctx.Done()
	logger.Info("shutting down server")

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
