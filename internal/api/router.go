package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/atef1995/sayarat-sub000/internal/api/handlers"
	"github.com/atef1995/sayarat-sub000/internal/api/middleware"
	"github.com/atef1995/sayarat-sub000/internal/config"
	"github.com/atef1995/sayarat-sub000/internal/journal"
	"github.com/atef1995/sayarat-sub000/internal/session"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, manager *session.Manager, attemptJournal journal.IAttemptJournal, taskClient *asynq.Client) *gin.Engine {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	submissionHandler := handlers.NewSubmissionHandler(cfg, manager, attemptJournal, taskClient)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		authRequired := v1.Group("/submission")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("", submissionHandler.CreateSession)
			authRequired.GET("/:id", submissionHandler.GetSession)
			authRequired.GET("/:id/attempts", submissionHandler.ListAttempts)
			authRequired.PUT("/:id/field", submissionHandler.UpdateField)
			authRequired.POST("/:id/submit", submissionHandler.Submit)
			authRequired.POST("/:id/retry", submissionHandler.Retry)
			authRequired.POST("/:id/cancel", submissionHandler.CancelSession)
			authRequired.POST("/:id/entitlement/resolved", submissionHandler.ResolveEntitlement)
			authRequired.POST("/:id/payment/confirm", submissionHandler.ConfirmPayment)
			authRequired.POST("/:id/payment/cancel", submissionHandler.CancelPayment)
		}
	}

	return r
}
