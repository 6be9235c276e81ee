package delivery

import (
	"context"
	"net/http"

	emailusecase "dealflow-backend/internal/email/usecase"
	"dealflow-backend/internal/webhook/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	subscriptions *usecase.SubscriptionUsecase
	pipeline      *emailusecase.Pipeline
	logger        *zap.Logger
}

func NewWebhookHandler(subscriptions *usecase.SubscriptionUsecase, pipeline *emailusecase.Pipeline, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		subscriptions: subscriptions,
		pipeline:      pipeline,
		logger:        logger.Named("webhook"),
	}
}

type notificationPayload struct {
	Value []notificationItem `json:"value"`
}

type notificationItem struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
	ResourceData   struct {
		ID string `json:"id"`
	} `json:"resourceData"`
}

// Receive is the public notification endpoint. Graph's endpoint validation
// handshake sends validationToken as a query parameter and expects it echoed
// back as plain text within 10 seconds, so that path answers before anything
// else runs.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		c.String(http.StatusOK, token)
		return
	}

	var payload notificationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}

	for _, item := range payload.Value {
		userID, ok := h.subscriptions.ValidateNotification(item.ClientState)
		if !ok {
			// A bad client state is either a stale subscription or someone
			// probing the endpoint. Dropped without detail in the response.
			h.logger.Warn("notification with invalid client state dropped",
				zap.String("subscription_id", item.SubscriptionID))
			continue
		}
		if item.ResourceData.ID == "" {
			continue
		}

		go h.pipeline.ProcessNotification(context.Background(), userID, item.ResourceData.ID)
	}

	// Always 202. Graph retries non-2xx deliveries and eventually drops the
	// subscription, so processing failures never surface here.
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *WebhookHandler) CreateSubscription(c *gin.Context) {
	userID := c.GetString("userID")

	sub, err := h.subscriptions.Create(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("unable to create subscription", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to create subscription"})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *WebhookHandler) ListSubscriptions(c *gin.Context) {
	userID := c.GetString("userID")

	subs, err := h.subscriptions.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to list subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (h *WebhookHandler) DeleteSubscription(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	if err := h.subscriptions.Delete(c.Request.Context(), userID, id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
