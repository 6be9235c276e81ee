package api

import (
	activitydelivery "dealflow-backend/internal/activity/delivery"
	authusecase "dealflow-backend/internal/auth/usecase"
	emaildelivery "dealflow-backend/internal/email/delivery"
	emailusecase "dealflow-backend/internal/email/usecase"
	integrationdelivery "dealflow-backend/internal/integration/delivery"
	webhookdelivery "dealflow-backend/internal/webhook/delivery"
	"dealflow-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase     *authusecase.AuthUsecase
	oauthHandler    *integrationdelivery.OAuthHandler
	webhookHandler  *webhookdelivery.WebhookHandler
	emailHandler    *emaildelivery.EmailHandler
	activityHandler *activitydelivery.ActivityHandler
	webhookLimiter  *ratelimit.Limiter
}

func NewHandler(
	authUsecase *authusecase.AuthUsecase,
	oauthHandler *integrationdelivery.OAuthHandler,
	pipeline *emailusecase.Pipeline,
	webhookHandler *webhookdelivery.WebhookHandler,
	activityHandler *activitydelivery.ActivityHandler,
) *Handler {
	return &Handler{
		authUsecase:     authUsecase,
		oauthHandler:    oauthHandler,
		webhookHandler:  webhookHandler,
		emailHandler:    emaildelivery.NewEmailHandler(pipeline),
		activityHandler: activityHandler,
		webhookLimiter:  ratelimit.NewLimiter(10, 30),
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)

	return r.Run(addr)
}
