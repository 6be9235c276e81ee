package api

import (
	"net/http"

	authdelivery "dealflow-backend/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// OAuth connect flows. The callback is hit by the provider, so no
		// bearer token there.
		oauth := api.Group("/oauth")
		{
			oauth.GET("/:provider/connect", authdelivery.AuthMiddleware(h.authUsecase), h.oauthHandler.Connect)
			oauth.GET("/:provider/callback", h.oauthHandler.Callback)
		}

		// Public notification endpoint, guarded by a per-IP limiter.
		api.POST("/webhooks/mail", h.webhookLimiter.Middleware(), h.webhookHandler.Receive)

		// Subscription management (protected)
		subscriptions := api.Group("/webhooks/subscriptions")
		subscriptions.Use(authdelivery.AuthMiddleware(h.authUsecase))
		{
			subscriptions.POST("", h.webhookHandler.CreateSubscription)
			subscriptions.GET("", h.webhookHandler.ListSubscriptions)
			subscriptions.DELETE("/:id", h.webhookHandler.DeleteSubscription)
		}

		// Email records (protected)
		emails := api.Group("/emails")
		emails.Use(authdelivery.AuthMiddleware(h.authUsecase))
		{
			emails.GET("", h.emailHandler.List)
			emails.POST("/:id/reprocess", h.emailHandler.Reprocess)
		}

		// Activity feed (protected)
		activities := api.Group("/activities")
		activities.Use(authdelivery.AuthMiddleware(h.authUsecase))
		{
			activities.GET("", h.activityHandler.List)
		}
	}
}
