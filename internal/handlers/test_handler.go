package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/services"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

type TestHandler struct {
	BaseHandler
	testService   services.TestService
	exportService services.ExportService
}

func NewTestHandler(testService services.TestService, exportService services.ExportService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler:   NewBaseHandler(logger),
		testService:   testService,
		exportService: exportService,
	}
}

// CreateTest creates an unpublished test
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.CreateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.testService.Create(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Test created", "test_id", test.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Test created",
		"test":    test,
	})
}

// ListTests lists tests; students only see published ones
// @Router /tests [get]
func (h *TestHandler) ListTests(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var filters services.TestListFilters
	if !h.bindQuery(c, &filters) {
		return
	}

	tests, total, err := h.testService.List(c.Request.Context(), filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tests": tests,
		"total": total,
	})
}

// GetTest returns a test with its questions
// @Router /tests/{id} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	h.withTest(c, func(id uint, caller models.Caller) {
		test, err := h.testService.GetByID(c.Request.Context(), id, caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"test": test})
	})
}

// UpdateTest applies a partial update
// @Router /tests/{id} [put]
func (h *TestHandler) UpdateTest(c *gin.Context) {
	h.withTest(c, func(id uint, caller models.Caller) {
		var req services.UpdateTestRequest
		if !h.bindJSON(c, &req) {
			return
		}

		test, err := h.testService.Update(c.Request.Context(), id, &req, caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Test updated",
			"test":    test,
		})
	})
}

// DeleteTest removes a test and its finished attempts
// @Router /tests/{id} [delete]
func (h *TestHandler) DeleteTest(c *gin.Context) {
	h.withTest(c, func(id uint, caller models.Caller) {
		result, err := h.testService.Delete(c.Request.Context(), id, caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":            "Test deleted",
			"testId":             result.TestID,
			"submissionsDeleted": result.SubmissionsDeleted,
		})
	})
}

// @Router /tests/{id}/publish [put]
func (h *TestHandler) PublishTest(c *gin.Context) {
	h.toggle(c, "Test published", h.testService.Publish)
}

// @Router /tests/{id}/publish [delete]
func (h *TestHandler) UnpublishTest(c *gin.Context) {
	h.toggle(c, "Test unpublished", h.testService.Unpublish)
}

// @Router /tests/{id}/publish-results [patch]
func (h *TestHandler) PublishResults(c *gin.Context) {
	h.toggle(c, "Results published", h.testService.PublishResults)
}

// @Router /tests/{id}/unpublish-results [patch]
func (h *TestHandler) UnpublishResults(c *gin.Context) {
	h.toggle(c, "Results unpublished", h.testService.UnpublishResults)
}

// ExportResults streams the results spreadsheet
// @Router /tests/{id}/results/export [get]
func (h *TestHandler) ExportResults(c *gin.Context) {
	h.withTest(c, func(id uint, caller models.Caller) {
		data, err := h.exportService.ExportTestResults(c.Request.Context(), id, caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=test-%d-results.xlsx", id))
		c.Data(http.StatusOK, services.XLSXContentType, data)
	})
}

type testToggle func(ctx context.Context, id uint, caller models.Caller) (*models.Test, error)

func (h *TestHandler) toggle(c *gin.Context, message string, apply testToggle) {
	h.withTest(c, func(id uint, caller models.Caller) {
		test, err := apply(c.Request.Context(), id, caller)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		h.LogInfo(c, message, "test_id", id)
		c.JSON(http.StatusOK, gin.H{
			"message": message,
			"test":    test,
		})
	})
}

func (h *TestHandler) withTest(c *gin.Context, fn func(id uint, caller models.Caller)) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	fn(id, caller)
}
