package api

import (
	"context"
	"net/http"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

// ExecutionHistory lists a user's applied operations, newest first
type ExecutionHistory interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ExecutionLog, error)
}

// MentionReader returns the campaign a user referenced last
type MentionReader interface {
	Get(ctx context.Context, userID string) (string, bool)
}

// ActivityController exposes what the assistant has done for the caller
type ActivityController struct {
	history  ExecutionHistory
	mentions MentionReader
}

func NewActivityController(history ExecutionHistory, mentions MentionReader) *ActivityController {
	return &ActivityController{history: history, mentions: mentions}
}

// RegisterRoutes registers the activity routes on an authenticated group
func (c *ActivityController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/executions", c.ListExecutions)
	group.GET("/campaigns/last-mentioned", c.LastMentioned)
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ListExecutions returns the caller's execution log
func (c *ActivityController) ListExecutions(ctx *gin.Context) {
	var query historyQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		abortWithError(ctx, errors.NewBadRequestError(errors.CodeInvalidRequest, "limit must be between 1 and 200"))
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultHistoryLimit
	}

	entries, err := c.history.ListByUser(ctx.Request.Context(), middleware.UserID(ctx), query.Limit)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if entries == nil {
		entries = []models.ExecutionLog{}
	}
	ctx.JSON(http.StatusOK, gin.H{"executions": entries})
}

// LastMentioned returns the campaign the caller referenced last, so a new
// session can resume where the previous one left off
func (c *ActivityController) LastMentioned(ctx *gin.Context) {
	id, ok := c.mentions.Get(ctx.Request.Context(), middleware.UserID(ctx))
	if !ok {
		ctx.JSON(http.StatusOK, gin.H{"campaignId": nil})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"campaignId": id})
}
