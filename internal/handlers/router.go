package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/auth"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/services"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

const serviceName = "testportal-service"

type HandlerManager struct {
	attemptHandler   *AttemptHandler
	testHandler      *TestHandler
	analyticsHandler *AnalyticsHandler
	verifier         auth.TokenVerifier
}

func NewHandlerManager(
	attemptService services.AttemptService,
	testService services.TestService,
	analyticsService services.AnalyticsService,
	exportService services.ExportService,
	verifier auth.TokenVerifier,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler:   NewAttemptHandler(attemptService, logger),
		testHandler:      NewTestHandler(testService, exportService, logger),
		analyticsHandler: NewAnalyticsHandler(analyticsService, logger),
		verifier:         verifier,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	staff := auth.RequireRole(models.RoleTeacher, models.RoleAdmin)
	students := auth.RequireRole(models.RoleStudent)

	v1 := router.Group("/api/v1", auth.Middleware(hm.verifier))
	{
		// Test routes
		tests := v1.Group("/tests")
		{
			tests.POST("", staff, hm.testHandler.CreateTest)
			tests.GET("", hm.testHandler.ListTests)
			tests.GET("/:id", hm.testHandler.GetTest)
			tests.PUT("/:id", staff, hm.testHandler.UpdateTest)
			tests.DELETE("/:id", staff, hm.testHandler.DeleteTest)

			tests.PUT("/:id/publish", staff, hm.testHandler.PublishTest)
			tests.DELETE("/:id/publish", staff, hm.testHandler.UnpublishTest)
			tests.PATCH("/:id/publish-results", staff, hm.testHandler.PublishResults)
			tests.PATCH("/:id/unpublish-results", staff, hm.testHandler.UnpublishResults)
			tests.GET("/:id/results/export", staff, hm.testHandler.ExportResults)

			tests.POST("/:id/start", students, hm.attemptHandler.StartAttempt)
		}

		// Submission routes
		submissions := v1.Group("/submissions")
		{
			submissions.POST("", students, hm.attemptHandler.SubmitAttempt)
			submissions.GET("", hm.attemptHandler.ListSubmissions)
			submissions.GET("/:id", hm.attemptHandler.GetSubmission)
			submissions.GET("/:id/remaining-time", hm.attemptHandler.GetRemainingTime)
			submissions.PUT("/:id", staff, hm.attemptHandler.EvaluateSubmission)
		}

		// Analytics routes
		analytics := v1.Group("/analytics")
		{
			analytics.GET("", hm.analyticsHandler.GetAnalytics)
			analytics.GET("/reports", hm.analyticsHandler.GetReports)
		}
	}
}

// HealthCheck reports liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}
