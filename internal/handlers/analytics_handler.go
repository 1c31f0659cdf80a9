package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/services"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

type AnalyticsHandler struct {
	BaseHandler
	analyticsService services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService services.AnalyticsService, logger utils.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		BaseHandler:      NewBaseHandler(logger),
		analyticsService: analyticsService,
	}
}

// GetReports returns overview, performance and subject figures for the caller
// @Router /analytics/reports [get]
func (h *AnalyticsHandler) GetReports(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	report, err := h.analyticsService.Reports(c.Request.Context(), c.DefaultQuery("range", "all"), caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetAnalytics serves the staff statistics selected by ?type=
// @Router /analytics [get]
func (h *AnalyticsHandler) GetAnalytics(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	switch c.Query("type") {
	case services.AnalyticsTypeOverview:
		overview, err := h.analyticsService.SystemOverview(c.Request.Context(), caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, overview)

	case services.AnalyticsTypeSubmissions:
		testID, ok := parseOptionalUintQuery(c, "testId")
		if !ok {
			return
		}
		stats, err := h.analyticsService.SubmissionStatistics(c.Request.Context(), testID, caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)

	default:
		h.handleServiceError(c, services.ErrUnknownAnalyticsType)
	}
}
