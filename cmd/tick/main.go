package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	// Initialize logger first (with defaults)
	appLogger := logger.NewFromEnv("shelfscout-tick")
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	jobID := flag.String("job", "", "Job ID to advance (required)")
	workerID := flag.String("worker", "", "Worker identity; defaults to hostname-pid")
	batch := flag.Int("batch", 0, "Items per tick; 0 uses job or config default")
	discover := flag.Bool("discover", false, "Run a discovery pass before ticking")
	loop := flag.Bool("loop", false, "Keep ticking until the job reaches a terminal status")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *jobID == "" {
		appLogger.Fatal("Missing required -job flag")
	}
	if *workerID == "" {
		hostname, _ := os.Hostname()
		*workerID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:    *jobID,
		logger.FieldWorkerID: *workerID,
		"batch":              *batch,
		"discover":           *discover,
		"loop":               *loop,
	}).Info("Starting tick runner")

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		if err := s3Store.EnsureBucket(ctx); err != nil {
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

	tickService := service.NewTickService(
		jobRepo, itemRepo, eventRepo, registry, snapshots, appLogger,
		service.TickConfig{
			ItemsPerTick: cfg.Tick.ItemsPerTick,
			ClaimTimeout: time.Duration(cfg.Tick.ClaimTimeoutMinutes) * time.Minute,
			DelayMin:     time.Duration(cfg.Tick.DelayMinMs) * time.Millisecond,
			DelayMax:     time.Duration(cfg.Tick.DelayMaxMs) * time.Millisecond,
		},
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	opts := &service.TickOptions{ItemsPerTick: *batch}

	if *discover {
		outcome, err := tickService.Discover(ctx, *jobID, *workerID, opts)
		if err != nil {
			appLogger.WithError(err).Fatal("Discovery failed")
		}
		appLogger.WithFields(logger.Fields{
			"reported":   outcome.TotalReported,
			"discovered": outcome.Discovered,
			"created":    outcome.Created,
			"status":     string(outcome.Status),
		}).Info("Discovery completed")
	}

	for {
		result, err := tickService.RunTick(ctx, *jobID, *workerID, opts)
		if err != nil {
			appLogger.WithError(err).Fatal("Tick failed")
		}

		appLogger.WithFields(logger.Fields{
			"processed": result.Processed,
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
			"remaining": result.RemainingPending,
			"status":    string(result.Status),
			"no_op":     result.NoOp,
		}).Info("Tick completed")

		if !*loop || result.NoOp || result.Status.IsTerminal() {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
	}
}
