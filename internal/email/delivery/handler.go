package delivery

import (
	"context"
	"net/http"
	"strconv"

	"dealflow-backend/internal/email/usecase"

	"github.com/gin-gonic/gin"
)

type EmailHandler struct {
	pipeline *usecase.Pipeline
}

func NewEmailHandler(pipeline *usecase.Pipeline) *EmailHandler {
	return &EmailHandler{pipeline: pipeline}
}

func (h *EmailHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.pipeline.ListEmails(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to list emails"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": records})
}

// Reprocess re-runs a completed or failed email. In-flight records are
// refused so two workers never race on the same record.
func (h *EmailHandler) Reprocess(c *gin.Context) {
	userID := c.GetString("userID")
	recordID := c.Param("id")

	accepted, err := h.pipeline.Reprocess(context.Background(), userID, recordID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to reprocess email"})
		return
	}
	if !accepted {
		c.JSON(http.StatusConflict, gin.H{"error": "email not found or not in a terminal state"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reprocessing"})
}
