package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonas/shelfscout/internal/storage"
)

// SnapshotHandler serves the raw scrape payloads the tick loop archived, so
// operators can inspect what a source returned without re-scraping it.
type SnapshotHandler struct {
	snapshots storage.SnapshotStore // nil when archiving is disabled
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(snapshots storage.SnapshotStore) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// Get handles GET /api/v1/snapshots/:source/:key
func (h *SnapshotHandler) Get(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot archive is not enabled"})
		return
	}

	key := fmt.Sprintf("%s/%s.json", c.Param("source"), c.Param("key"))

	exists, err := h.snapshots.Exists(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check snapshot: " + err.Error()})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot not found"})
		return
	}

	body, err := h.snapshots.Download(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to download snapshot: " + err.Error()})
		return
	}
	defer body.Close()

	// Direct link for clients that prefer to fetch from the bucket or CDN.
	c.Header("X-Snapshot-URL", h.snapshots.GetURL(key))
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, body)
}
