package api

import (
	"net/http"

	"ad-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// QuotaController reports the caller's send allowance
type QuotaController struct {
	chat ChatService
}

func NewQuotaController(chat ChatService) *QuotaController {
	return &QuotaController{chat: chat}
}

// RegisterRoutes registers the quota route on an authenticated group
func (c *QuotaController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/quota", c.GetQuota)
}

// GetQuota returns the plan and message count behind canSend
func (c *QuotaController) GetQuota(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.chat.Quota(ctx.Request.Context(), middleware.UserID(ctx)))
}
