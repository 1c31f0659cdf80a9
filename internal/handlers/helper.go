package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// parseIDParam reads a positive numeric path parameter, writing a 400 when it is not one
func parseIDParam(c *gin.Context, param string) (uint, bool) {
	idStr := strings.TrimSpace(c.Param(param))
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		details := "ID must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: details,
			Code:    codeInvalidRequest,
		})
		return 0, false
	}
	return uint(id), true
}

// parseOptionalUintQuery returns nil when the query parameter is absent
func parseOptionalUintQuery(c *gin.Context, param string) (*uint, bool) {
	valueStr := strings.TrimSpace(c.Query(param))
	if valueStr == "" {
		return nil, true
	}
	value, err := strconv.ParseUint(valueStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
			Code:    codeInvalidRequest,
		})
		return nil, false
	}
	id := uint(value)
	return &id, true
}
