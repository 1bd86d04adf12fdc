package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jonas/shelfscout/internal/api/handler"
	"github.com/jonas/shelfscout/internal/api/middleware"
	"github.com/jonas/shelfscout/internal/logger"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/service"
	"github.com/jonas/shelfscout/internal/source"
	"github.com/jonas/shelfscout/internal/storage"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	JobService  *service.JobService
	TickService *service.TickService
	Products    *repository.ProductRepository
	Videos      *repository.VideoRepository
	Registry    *source.Registry
	Snapshots   storage.SnapshotStore
	Logger      *logger.Logger
	CORS        middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(deps.JobService, deps.TickService)
	catalogHandler := handler.NewCatalogHandler(deps.Products, deps.Videos, deps.Registry)
	snapshotHandler := handler.NewSnapshotHandler(deps.Snapshots)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.POST("/jobs", jobHandler.CreateJob)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.POST("/jobs/:id/discover", jobHandler.Discover)
		v1.POST("/jobs/:id/tick", jobHandler.Tick)
		v1.POST("/jobs/:id/retry", jobHandler.Retry)
		v1.GET("/jobs/:id/items", jobHandler.ListItems)
		v1.GET("/jobs/:id/events", jobHandler.ListEvents)

		// Catalog
		v1.GET("/products", catalogHandler.ListProducts)
		v1.GET("/products/:id", catalogHandler.GetProduct)
		v1.GET("/videos", catalogHandler.ListVideos)

		// Sources
		v1.GET("/sources", catalogHandler.ListSources)

		// Archived scrape snapshots
		v1.GET("/snapshots/:source/:key", snapshotHandler.Get)
	}

	return r
}
