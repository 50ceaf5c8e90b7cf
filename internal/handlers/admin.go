package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/scheduler"
	"rental-marketplace/internal/search"
	"rental-marketplace/internal/verification"
)

// JobRunner triggers the periodic verification jobs
type JobRunner interface {
	RunSchedule(ctx context.Context) (*verification.ScheduleResult, error)
	RunSweep(ctx context.Context) (*verification.SweepResult, error)
}

// TrustSearcher queries the trust index
type TrustSearcher interface {
	FilterSearch(params search.FilterParams) (*search.FilterResult, error)
}

// BreakerReporter exposes notification channel health
type BreakerReporter interface {
	BreakerStatus() map[string]interface{}
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	processor *verification.Processor
	jobs      JobRunner
	search    TrustSearcher
	breakers  BreakerReporter
}

// NewAdminHandler creates a new admin handler; search and breakers may be nil
func NewAdminHandler(processor *verification.Processor, jobs JobRunner, searcher TrustSearcher, breakers BreakerReporter) *AdminHandler {
	return &AdminHandler{
		processor: processor,
		jobs:      jobs,
		search:    searcher,
		breakers:  breakers,
	}
}

// GetStats returns verification statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.processor.Stats(c.Request.Context(), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"verifications": stats}
	if h.breakers != nil {
		resp["notification_channels"] = h.breakers.BreakerStatus()
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerSchedule runs the scheduler and returns its result
func (h *AdminHandler) TriggerSchedule(c *gin.Context) {
	logger.Log.WithField("admin_id", caller(c).UserID).Info("Admin: Manual schedule trigger requested")

	result, err := h.jobs.RunSchedule(c.Request.Context())
	if err != nil {
		respondJobError(c, "schedule", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TriggerSweep runs the expiration sweep and returns its result
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	logger.Log.WithField("admin_id", caller(c).UserID).Info("Admin: Manual sweep trigger requested")

	result, err := h.jobs.RunSweep(c.Request.Context())
	if err != nil {
		respondJobError(c, "sweep", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reindex rebuilds the trust index from the database
func (h *AdminHandler) Reindex(c *gin.Context) {
	result, err := h.processor.ReindexAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondJobError(c *gin.Context, job string, err error) {
	if errors.Is(err, scheduler.ErrJobRunning) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   scheduler.ErrJobRunning.Error(),
			"message": job + " job is already running",
		})
		return
	}
	respondError(c, err)
}

// SearchTrust filters properties by trust signals, e.g. stale or unreliable listings
func (h *AdminHandler) SearchTrust(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search not configured"})
		return
	}

	params := search.FilterParams{
		Query:              c.Query("q"),
		City:               c.Query("city"),
		AvailabilityStatus: c.Query("availability_status"),
		SortBy:             c.DefaultQuery("sort", "reliability_asc"),
	}
	if v := c.Query("verification_status"); v != "" {
		params.VerificationStatus = strings.Split(v, ",")
	}
	if v, err := strconv.ParseFloat(c.Query("min_reliability"), 64); err == nil {
		params.MinReliability = &v
	}
	if v, err := strconv.ParseFloat(c.Query("max_reliability"), 64); err == nil {
		params.MaxReliability = &v
	}
	if v, err := strconv.ParseInt(c.Query("verified_before"), 10, 64); err == nil {
		params.VerifiedBeforeUnix = &v
	}
	params.Limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	params.Offset, _ = strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)

	result, err := h.search.FilterSearch(params)
	if err != nil {
		logger.Log.WithError(err).Error("Search: trust search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "search_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
