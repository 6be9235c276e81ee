package delivery

import (
	"net/http"
	"strconv"

	"dealflow-backend/internal/activity/usecase"

	"github.com/gin-gonic/gin"
)

type ActivityHandler struct {
	usecase *usecase.ActivityLogger
}

func NewActivityHandler(uc *usecase.ActivityLogger) *ActivityHandler {
	return &ActivityHandler{usecase: uc}
}

// List returns the caller's activity feed, newest first. Pass correlation_id
// to fetch every entry for a single email's pipeline run.
func (h *ActivityHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	if correlationID := c.Query("correlation_id"); correlationID != "" {
		entries, err := h.usecase.ListByCorrelation(userID, correlationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to list activities"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"activities": entries})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.usecase.List(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to list activities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": entries})
}
