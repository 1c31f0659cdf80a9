package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/services"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// StartAttempt opens or resumes the caller's attempt at a test
// @Router /tests/{id}/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	testID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting attempt", "test_id", testID)

	result, err := h.attemptService.Start(c.Request.Context(), testID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	message := "Attempt started"
	if result.Resumed {
		status = http.StatusOK
		message = "Attempt resumed"
	}

	c.JSON(status, gin.H{
		"message":          message,
		"submission":       result.Submission,
		"attemptNumber":    result.AttemptNumber,
		"remainingSeconds": result.RemainingSeconds,
	})
}

// SubmitAttempt closes the caller's pending attempt
// @Router /submissions [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.SubmitAttemptRequest
	if !h.bindJSON(c, &req) {
		return
	}

	submission, err := h.attemptService.Submit(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Submission received",
		"submission": submission,
	})
}

// ListSubmissions lists attempts; students only ever see their own
// @Router /submissions [get]
func (h *AttemptHandler) ListSubmissions(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var filters services.SubmissionListFilters
	if !h.bindQuery(c, &filters) {
		return
	}

	submissions, total, err := h.attemptService.List(c.Request.Context(), filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"total":       total,
	})
}

// GetSubmission returns one attempt
// @Router /submissions/{id} [get]
func (h *AttemptHandler) GetSubmission(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	submission, err := h.attemptService.GetByID(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submission": submission})
}

// GetRemainingTime reports the seconds left on a pending attempt
// @Router /submissions/{id}/remaining-time [get]
func (h *AttemptHandler) GetRemainingTime(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	remaining, err := h.attemptService.RemainingTime(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"remainingSeconds": remaining})
}

// EvaluateSubmission records marks for a submitted attempt
// @Router /submissions/{id} [put]
func (h *AttemptHandler) EvaluateSubmission(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req services.EvaluateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Evaluating submission", "submission_id", id)

	submission, err := h.attemptService.Evaluate(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Submission evaluated",
		"submission": submission,
	})
}
