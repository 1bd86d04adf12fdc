package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonas/shelfscout/internal/api"
	"github.com/jonas/shelfscout/internal/api/middleware"
	"github.com/jonas/shelfscout/internal/config"
	"github.com/jonas/shelfscout/internal/logger"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/service"
	"github.com/jonas/shelfscout/internal/source"
	"github.com/jonas/shelfscout/internal/source/carrefour"
	"github.com/jonas/shelfscout/internal/source/youtube"
	"github.com/jonas/shelfscout/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv("shelfscout-api")
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	itemRepo := repository.NewItemRepository(db)
	eventRepo := repository.NewEventRepository(db)
	productRepo := repository.NewProductRepository(db)
	videoRepo := repository.NewVideoRepository(db)

	// Initialize snapshot storage when enabled
	var snapshots storage.SnapshotStore
	if cfg.Storage.Enabled {
		s3Store, err := storage.NewS3Store(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize snapshot storage")
		}
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure snapshot bucket")
		}
		snapshots = s3Store
	}

	// Register enabled site drivers
	registry := source.NewRegistry()
	if cfg.Sources.Carrefour.Enabled {
		registry.Register(carrefour.NewDriver(&carrefour.Config{
			BaseURL:        cfg.Sources.Carrefour.BaseURL,
			TimeoutSeconds: cfg.Sources.Carrefour.TimeoutSeconds,
		}, productRepo))
	}
	if cfg.Sources.YouTube.Enabled {
		registry.Register(youtube.NewDriver(&youtube.Config{
			APIKey:  cfg.Sources.YouTube.APIKey,
			BaseURL: cfg.Sources.YouTube.BaseURL,
		}, videoRepo))
	}

	// Initialize services
	jobService := service.NewJobService(jobRepo, itemRepo, eventRepo, appLogger)
	tickService := service.NewTickService(
		jobRepo, itemRepo, eventRepo, registry, snapshots, appLogger,
		service.TickConfig{
			ItemsPerTick: cfg.Tick.ItemsPerTick,
			ClaimTimeout: time.Duration(cfg.Tick.ClaimTimeoutMinutes) * time.Minute,
			DelayMin:     time.Duration(cfg.Tick.DelayMinMs) * time.Millisecond,
			DelayMax:     time.Duration(cfg.Tick.DelayMaxMs) * time.Millisecond,
		},
	)

	// Setup router
	router := api.SetupRouter(api.RouterDeps{
		JobService:  jobService,
		TickService: tickService,
		Products:    productRepo,
		Videos:      videoRepo,
		Registry:    registry,
		Snapshots:   snapshots,
		Logger:      appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
