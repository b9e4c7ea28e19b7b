package delivery

import (
	"net/http"

	authdomain "touchbase-backend/internal/auth/domain"
	"touchbase-backend/internal/integration/domain"
	"touchbase-backend/internal/integration/usecase"

	"github.com/gin-gonic/gin"
)

type IntegrationHandler struct {
	oauthUsecase *usecase.OAuthUsecase
}

func NewIntegrationHandler(oauthUsecase *usecase.OAuthUsecase) *IntegrationHandler {
	return &IntegrationHandler{
		oauthUsecase: oauthUsecase,
	}
}

// Connect starts the authorization flow and returns the URL to redirect the
// user to.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	provider := domain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	authURL, err := h.oauthUsecase.Connect(user.ID, provider, c.Query("redirect_to"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

// Callback finishes the authorization flow. It is reached by provider
// redirect, so identity comes from the stored state rather than a session.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state and code are required"})
		return
	}

	result, err := h.oauthUsecase.HandleCallback(c.Request.Context(), state, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result.RedirectTo != "" {
		c.Redirect(http.StatusFound, result.RedirectTo)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":      result.Integration.Provider,
		"account_email": result.Integration.AccountEmail,
	})
}

func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	provider := domain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	if err := h.oauthUsecase.Disconnect(c.Request.Context(), user.ID, provider); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "integration disconnected"})
}

func (h *IntegrationHandler) Status(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	statuses, err := h.oauthUsecase.Status(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"integrations": statuses})
}
