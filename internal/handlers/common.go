package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/auth"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

const codeInvalidRequest = "INVALID_REQUEST"

// BaseHandler is embedded by every handler for logging and error responses
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// requestLogger prefers the request-scoped logger set by utils.ContextLogger
func (h *BaseHandler) requestLogger(c *gin.Context) utils.Logger {
	return utils.LoggerFromContext(c, h.logger).With("user_id", h.userID(c))
}

// LogRequest records that a state-changing request was accepted
func (h *BaseHandler) LogRequest(c *gin.Context, message string, fields ...interface{}) {
	h.requestLogger(c).Info(message, append([]interface{}{"remote_addr", c.ClientIP()}, fields...)...)
}

func (h *BaseHandler) LogInfo(c *gin.Context, message string, fields ...interface{}) {
	h.requestLogger(c).Info(message, fields...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, fields ...interface{}) {
	h.requestLogger(c).LogError(err, message, fields...)
}

func (h *BaseHandler) userID(c *gin.Context) interface{} {
	if userID, exists := c.Get(auth.ContextUserID); exists {
		return userID
	}
	return nil
}

// RespondWithError writes a client error and logs it at warn level
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, details interface{}) {
	h.requestLogger(c).Warn(message, "status_code", statusCode, "details", details)
	c.JSON(statusCode, ErrorResponse{
		Message: message,
		Details: details,
		Code:    codeFor(statusCode),
	})
}

func codeFor(statusCode int) string {
	if statusCode == http.StatusUnauthorized {
		return "UNAUTHORIZED"
	}
	return codeInvalidRequest
}

func (h *BaseHandler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return false
	}
	return true
}

func (h *BaseHandler) bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return false
	}
	return true
}

// caller returns the authenticated identity or writes a 401
func (h *BaseHandler) caller(c *gin.Context) (models.Caller, bool) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		h.RespondWithError(c, http.StatusUnauthorized, "User not authenticated", nil)
		return models.Caller{}, false
	}
	return caller, true
}
