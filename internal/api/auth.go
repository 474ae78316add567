package api

import (
	"net/http"

	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/jwt"
	"ad-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenIssuer signs access tokens
type TokenIssuer interface {
	GenerateToken(userID, email string) (string, error)
}

// AuthHandler exposes the caller's identity. Sign-in happens with an
// external identity provider; development builds can also mint tokens here.
type AuthHandler struct {
	issuer TokenIssuer
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(issuer TokenIssuer, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		issuer: issuer,
		logger: logger,
	}
}

type devTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email"`
}

// DevToken issues a token for any user id. Only mounted outside production.
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.NewBadRequestError(errors.CodeInvalidRequest, "user_id is required"))
		return
	}

	token, err := h.issuer.GenerateToken(req.UserID, req.Email)
	if err != nil {
		h.logger.LogError(err, "Failed to sign development token", "user_id", req.UserID)
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user_id": req.UserID})
}

// Me returns the identity carried by the caller's token
func (h *AuthHandler) Me(c *gin.Context) {
	value, ok := c.Get("claims")
	claims, _ := value.(*jwt.Claims)
	if !ok || claims == nil {
		abortWithError(c, errors.NewUnauthorizedError(errors.CodeAuthRequired, "Not authenticated"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}
