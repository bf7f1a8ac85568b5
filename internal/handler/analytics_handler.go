package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arif-dev/tuition-track-api/internal/middleware"
	"github.com/arif-dev/tuition-track-api/internal/service"
	"github.com/arif-dev/tuition-track-api/pkg/export"
	"github.com/arif-dev/tuition-track-api/pkg/response"
)

// AnalyticsHandler serves dashboard analytics endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	rollups   *service.RollupService
	csv       *export.CSVExporter
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService, rollups *service.RollupService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		rollups:   rollups,
		csv:       export.NewCSVExporter(),
	}
}

// Revenue godoc
// @Summary Monthly revenue series
// @Description Month-bucketed revenue from the platform epoch to now
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/revenue [get]
func (h *AnalyticsHandler) Revenue(c *gin.Context) {
	start := time.Now()
	res, cacheHit, err := h.analytics.RevenueSeries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, res, nil, meta)
}

// Attendance godoc
// @Summary Monthly attendance series
// @Description Month-bucketed approved attendance counts with a live current month
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/attendance [get]
func (h *AnalyticsHandler) Attendance(c *gin.Context) {
	start := time.Now()
	res, cacheHit, err := h.analytics.AttendanceSeries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, res, nil, meta)
}

// RevenueCSV godoc
// @Summary Export revenue as CSV
// @Description Download the monthly revenue series as a CSV file
// @Tags Analytics
// @Produce text/csv
// @Success 200 {file} binary
// @Router /analytics/revenue/export [get]
func (h *AnalyticsHandler) RevenueCSV(c *gin.Context) {
	dataset, err := h.analytics.RevenueDataset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, err := h.csv.Render(*dataset)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("monthly-revenue-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// Backfill godoc
// @Summary Backfill rollups
// @Description Recompute revenue and attendance rollups for every observed month
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/backfill [post]
func (h *AnalyticsHandler) Backfill(c *gin.Context) {
	res, err := h.rollups.Backfill(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
