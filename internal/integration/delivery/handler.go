package delivery

import (
	"net/http"

	"dealflow-backend/internal/integration/usecase"

	"github.com/gin-gonic/gin"
)

type OAuthHandler struct {
	oauthUsecase *usecase.OAuthUsecase
}

func NewOAuthHandler(oauthUsecase *usecase.OAuthUsecase) *OAuthHandler {
	return &OAuthHandler{oauthUsecase: oauthUsecase}
}

// Connect returns the provider authorization URL the frontend should
// redirect the user to. The state parameter carries the user id under a
// signature checked at the callback.
func (h *OAuthHandler) Connect(c *gin.Context) {
	provider, err := usecase.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	state := h.oauthUsecase.NewState(userID)

	url, err := h.oauthUsecase.AuthorizeURL(provider, state)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authorize_url": url, "state": state})
}

// Callback handles the provider redirect with the authorization code.
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider, err := usecase.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	userID, ok := h.oauthUsecase.VerifyState(state)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	if err := h.oauthUsecase.HandleCallback(c.Request.Context(), userID, provider, code); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to complete provider connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "connected", "provider": provider})
}
