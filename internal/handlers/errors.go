package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/services"
)

type errorMapping struct {
	status int
	code   string
}

var errorMappings = map[services.ErrorKind]errorMapping{
	services.KindValidation:   {http.StatusBadRequest, "VALIDATION_FAILED"},
	services.KindUnauthorized: {http.StatusUnauthorized, "UNAUTHORIZED"},
	services.KindForbidden:    {http.StatusForbidden, "FORBIDDEN"},
	services.KindNotFound:     {http.StatusNotFound, "NOT_FOUND"},
	services.KindConflict:     {http.StatusConflict, "CONFLICT"},
	services.KindDomainRule:   {http.StatusBadRequest, "BUSINESS_RULE"},
}

// handleServiceError maps service errors onto HTTP status codes
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	kind := services.Classify(err)
	mapping, ok := errorMappings[kind]
	if !ok {
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
			Code:    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(mapping.status, ErrorResponse{
		Message: errorMessage(kind, err),
		Details: errorDetails(err),
		Code:    mapping.code,
	})
}

func errorMessage(kind services.ErrorKind, err error) string {
	switch kind {
	case services.KindValidation:
		return "Validation failed"
	case services.KindUnauthorized:
		return "User not authenticated"
	case services.KindForbidden:
		return "Access denied"
	}

	var bre *services.BusinessRuleError
	if errors.As(err, &bre) {
		return bre.Message
	}
	return err.Error()
}

func errorDetails(err error) interface{} {
	var validationErrors services.ValidationErrors
	var permissionError *services.PermissionError
	var businessRuleError *services.BusinessRuleError

	switch {
	case errors.As(err, &validationErrors):
		return validationErrors
	case errors.As(err, &permissionError):
		return map[string]interface{}{
			"resource": permissionError.Resource,
			"action":   permissionError.Action,
			"reason":   permissionError.Reason,
		}
	case errors.As(err, &businessRuleError):
		return map[string]interface{}{
			"rule":    businessRuleError.Rule,
			"context": businessRuleError.Context,
		}
	}
	return nil
}
