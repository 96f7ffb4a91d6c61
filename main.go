package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finquest-api/config"
	"finquest-api/handlers"
	"finquest-api/middleware"
	"finquest-api/models"
	"finquest-api/services"
	"finquest-api/utils"
	"finquest-api/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func rewardRules(cfg config.RewardsConfig) services.RewardRules {
	rules := services.RewardRules{
		MilestoneLevels:    cfg.MilestoneLevels,
		PerfectScoreTotal:  cfg.PerfectScoreTotal,
		PerfectRequirement: cfg.PerfectRequirement,
		MaxCASAttempts:     cfg.MaxCASAttempts,
	}
	for _, t := range cfg.IncrementTypes {
		rules.IncrementTypes = append(rules.IncrementTypes, models.RewardType(t))
	}
	return rules
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.Database.LogLevel)),
	})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.RewardDefinition{},
		&models.UserReward{},
		&models.UserLevelProgress{},
		&models.SyncCursor{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Redis is optional: leaderboard falls back to SQL, tracker state to memory.
	var rdb *redis.Client
	var stateStore services.StateStore = services.NewMemoryStateStore()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		stateStore = services.NewRedisStateStore(rdb, "finquest:")
		log.Printf("✅ Redis connected at %s", cfg.Redis.Address)
	} else {
		log.Println("⚠️  redis.address not set, using in-memory state and SQL leaderboard")
	}

	var badges services.BadgeUploader
	if cfg.R2.Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		badges = uploader
	} else {
		log.Println("⚠️  R2 not configured, badge uploads disabled")
	}

	events := services.NewRewardEventBus(16)
	rewardService := services.NewRewardService(db, rewardRules(cfg.Rewards), events)
	leaderboardService := services.NewLeaderboardService(db, rdb)
	rewardService.Leaderboard = leaderboardService
	progressionService := services.NewProgressionService(db, rewardService)
	trackerService := services.NewTrackerService(stateStore)
	catalogService := services.NewCatalogService(db, badges)
	authClient := services.NewAuthServiceClient(cfg.Server.AuthServiceURL, cfg.Sync.ServiceToken)

	if err := leaderboardService.Prime(ctx); err != nil {
		log.Printf("⚠️  %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // badge images
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.Server.GatewayToken))

	allowedOrigins := strings.Join(cfg.Server.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// SSE stream first: it sits under /user but authenticates with query params.
	handlers.SetupRewardStreamRoute(app, events, authClient)

	// 🔐 Secured routes — require user context from Gateway
	secured := app.Group("/user", middleware.UserContextMiddleware())
	handlers.SetupRewardRoutes(secured, rewardService)
	handlers.SetupProgressionRoutes(secured, progressionService, trackerService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService)
	handlers.SetupAdminRoutes(app, catalogService)

	if cfg.Sync.ProfileServiceURL != "" {
		syncWorker := workers.NewProfileSyncWorker(db, cfg.Sync.ProfileServiceURL, cfg.Sync.ProfilesPath, cfg.Sync.ServiceToken, cfg.Sync.Interval)
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  sync.profile_service_url not set, profile sync disabled")
	}

	sched, err := rewardService.StartReconcileScheduler(cfg.Scheduler.SweepInterval, cfg.Scheduler.SweepConcurrency)
	if err != nil {
		log.Fatal("failed to start reconcile scheduler:", err)
	}

	go func() {
		if err := app.Listen(cfg.Server.Address); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on %s", cfg.Server.Address)
	log.Printf("✅ Reward sweep every %s (concurrency %d)", cfg.Scheduler.SweepInterval, cfg.Scheduler.SweepConcurrency)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
