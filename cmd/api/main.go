package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TelemetryHubAPI/internal/config"
	"TelemetryHubAPI/internal/database"
	"TelemetryHubAPI/internal/dedup"
	"TelemetryHubAPI/internal/handler"
	"TelemetryHubAPI/internal/lock"
	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/notify"
	"TelemetryHubAPI/internal/repository"
	"TelemetryHubAPI/internal/scheduler"
	"TelemetryHubAPI/internal/server"
	"TelemetryHubAPI/internal/service"
	"TelemetryHubAPI/internal/websocket"

	"github.com/go-redis/redis/v8"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger since main logger isn't ready
		panic("Failed to load configuration: " + err.Error())
	}

	// 2. Initialize Logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		LogFilePath: cfg.Logging.FilePath,
		UseColors:   cfg.Logging.UseColors,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed: %v", err)
	}

	cfg.Print()
	log.Info("Starting Telemetry Hub API Server")

	// 3. Database Connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Database connected successfully")

	ctx := context.Background()
	if err := db.Health(ctx); err != nil {
		log.Fatal("Database health check failed: %v", err)
	}

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize database schema: %v", err)
	}

	// 4. Redis Connection
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed: %v", err)
	}

	log.Info("Redis connected successfully")

	// 5. Initialize Repositories
	streamRepo := repository.NewStreamRepository(db.DB, cfg.Store.StoreID)
	stateRepo := repository.NewStateRepository(db.DB, cfg.Store.StoreID)

	// 6. Shared Infrastructure
	dedupCache := dedup.NewRedisCache(rdb, cfg.Store.StoreID)
	lockManager := lock.NewRedisManager(rdb, cfg.Store.StoreID)
	notifier := notify.NewWebhookClient(cfg.Alert.WebhookURL, cfg.Store.DashboardURL, log)

	hub := websocket.NewHub(log)
	hubCtx, hubCancel := context.WithCancel(ctx)
	defer hubCancel()
	go hub.Run(hubCtx)

	// 7. Initialize Services
	ingestService := service.NewIngestService(streamRepo, dedupCache, hub, cfg, log)
	monitorService := service.NewMonitorService(streamRepo, stateRepo, lockManager, notifier, hub, cfg.Alert, log)
	archiveService := service.NewArchiveService(streamRepo, stateRepo, lockManager, notifier, cfg, log)
	reportService := service.NewReportService(streamRepo, notifier, cfg, log)

	// 8. Start Scheduler
	sched := scheduler.New(monitorService, archiveService, reportService, cfg, log)
	sched.Start()

	// 9. Initialize Handlers
	ingestHandler := handler.NewIngestHandler(ingestService, log)
	statusHandler := handler.NewStatusHandler(ingestService, cfg, log)
	healthHandler := handler.NewHealthHandler(db, rdb, log)

	// 10. Start HTTP Server
	srv := server.New(cfg, log)
	srv.RegisterHandlers(ingestHandler, statusHandler, healthHandler, hub)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed: %v", err)
		}
	}()

	log.Info("API server ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	// 11. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}

	sched.Stop()

	log.Info("Shutdown complete")
}
