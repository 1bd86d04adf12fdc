package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonas/shelfscout/internal/service"
	"gorm.io/gorm"
)

// tickRequest is the body of POST /jobs/:id/tick and /jobs/:id/discover.
type tickRequest struct {
	WorkerID            string `json:"worker_id" binding:"required"`
	ItemsPerTick        int    `json:"items_per_tick"`
	ClaimTimeoutMinutes int    `json:"claim_timeout_minutes"`
}

// JobHandler handles job lifecycle and tick endpoints.
type JobHandler struct {
	jobService  *service.JobService
	tickService *service.TickService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobService: job lifecycle service.
//   - tickService: batch tick service.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobService *service.JobService, tickService *service.TickService) *JobHandler {
	return &JobHandler{
		jobService:  jobService,
		tickService: tickService,
	}
}

// CreateJob handles POST /api/v1/jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var input service.CreateJobInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	job, err := h.jobService.CreateJob(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to create job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.jobService.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Discover handles POST /api/v1/jobs/:id/discover.
func (h *JobHandler) Discover(c *gin.Context) {
	req, opts, ok := h.bindTick(c)
	if !ok {
		return
	}

	outcome, err := h.tickService.Discover(c.Request.Context(), c.Param("id"), req.WorkerID, opts)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		if outcome != nil {
			// The job was transitioned; the caller gets the outcome plus the
			// failure reason rather than a bare 500.
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   err.Error(),
				"outcome": outcome,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Discovery failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// Tick handles POST /api/v1/jobs/:id/tick.
func (h *JobHandler) Tick(c *gin.Context) {
	req, opts, ok := h.bindTick(c)
	if !ok {
		return
	}

	result, err := h.tickService.RunTick(c.Request.Context(), c.Param("id"), req.WorkerID, opts)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		if result != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  err.Error(),
				"result": result,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Tick failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Retry handles POST /api/v1/jobs/:id/retry.
func (h *JobHandler) Retry(c *gin.Context) {
	outcome, err := h.jobService.RetryFailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"error": "Failed to retry job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ListItems handles GET /api/v1/jobs/:id/items.
func (h *JobHandler) ListItems(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.jobService.ListItems(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list items: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// ListEvents handles GET /api/v1/jobs/:id/events. The optional after query
// parameter (RFC 3339) makes polling incremental.
func (h *JobHandler) ListEvents(c *gin.Context) {
	var after time.Time
	if raw := c.Query("after"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid after timestamp, expected RFC 3339",
			})
			return
		}
		after = parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.jobService.ListEvents(c.Request.Context(), c.Param("id"), after, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list events: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// bindTick parses the shared tick/discover request body and the
// X-Claim-Timeout-Minutes header override.
func (h *JobHandler) bindTick(c *gin.Context) (*tickRequest, *service.TickOptions, bool) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return nil, nil, false
	}

	opts := &service.TickOptions{ItemsPerTick: req.ItemsPerTick}
	minutes := req.ClaimTimeoutMinutes
	if raw := c.GetHeader("X-Claim-Timeout-Minutes"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			minutes = v
		}
	}
	if minutes > 0 {
		opts.ClaimTimeout = time.Duration(minutes) * time.Minute
	}
	return &req, opts, true
}
