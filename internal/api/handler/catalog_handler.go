package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/source"
	"gorm.io/gorm"
)

// CatalogHandler serves the aggregated product and video catalogs plus the
// registered sources.
type CatalogHandler struct {
	products *repository.ProductRepository
	videos   *repository.VideoRepository
	registry *source.Registry
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(products *repository.ProductRepository, videos *repository.VideoRepository, registry *source.Registry) *CatalogHandler {
	return &CatalogHandler{
		products: products,
		videos:   videos,
		registry: registry,
	}
}

// ListProducts handles GET /api/v1/products.
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	sourceID := c.Query("source")
	category := c.Query("category")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	products, err := h.products.List(c.Request.Context(), sourceID, category, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list products: " + err.Error(),
		})
		return
	}

	total, err := h.products.Count(c.Request.Context(), sourceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count products: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
		"total":    total,
	})
}

// GetProduct handles GET /api/v1/products/:id.
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load product: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, product)
}

// ListVideos handles GET /api/v1/videos.
func (h *CatalogHandler) ListVideos(c *gin.Context) {
	channelID := c.Query("channel")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	videos, err := h.videos.List(c.Request.Context(), channelID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list videos: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
		"count":  len(videos),
	})
}

// ListSources handles GET /api/v1/sources.
func (h *CatalogHandler) ListSources(c *gin.Context) {
	type sourceInfo struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Hostnames []string `json:"hostnames"`
	}

	drivers := h.registry.List()
	sources := make([]sourceInfo, 0, len(drivers))
	for _, d := range drivers {
		sources = append(sources, sourceInfo{
			ID:        d.ID(),
			Name:      d.DisplayName(),
			Hostnames: d.MatchHostnames(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources})
}
