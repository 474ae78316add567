package api

import (
	"context"
	"net/http"

	"ad-assistant/backend/internal/execution"
	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/quota"
	"ad-assistant/backend/internal/service"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// SessionProvider hands out the caller's live timeline
type SessionProvider interface {
	Acquire(ctx context.Context, userID string) (*timeline.Synchronizer, func(), error)
}

// ChatService is the send pipeline as seen by the API
type ChatService interface {
	SendMessage(ctx context.Context, userID string, req service.SendRequest) (*service.SendResult, error)
	Operations(ctx context.Context, userID, messageID string) (*service.OperationsProbe, error)
	Quota(ctx context.Context, userID string) quota.Status
}

// Implementer applies the operations carried by a message
type Implementer interface {
	Implement(ctx context.Context, userID, messageID string) (*execution.Result, error)
}

// MessageController handles message-related API endpoints
type MessageController struct {
	sessions SessionProvider
	chat     ChatService
	executor Implementer
}

// NewMessageController creates a new message controller
func NewMessageController(sessions SessionProvider, chat ChatService, executor Implementer) *MessageController {
	return &MessageController{
		sessions: sessions,
		chat:     chat,
		executor: executor,
	}
}

// RegisterRoutes registers the message routes on an authenticated group
func (c *MessageController) RegisterRoutes(group *gin.RouterGroup) {
	msgGroup := group.Group("/messages")
	{
		msgGroup.GET("", c.ListMessages)
		msgGroup.POST("", c.SendMessage)
		msgGroup.POST("/more", c.LoadMore)
		msgGroup.POST("/refresh", c.Refresh)
		msgGroup.DELETE("/view", c.ClearView)
		msgGroup.PUT("/:id/feedback", c.ToggleFeedback)
		msgGroup.POST("/:id/implement", c.Implement)
		msgGroup.GET("/:id/operations", c.Operations)
	}
}

// withTimeline runs fn against the caller's live timeline
func (c *MessageController) withTimeline(ctx *gin.Context, fn func(tl *timeline.Synchronizer) (any, error)) {
	tl, release, err := c.sessions.Acquire(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	defer release()

	body, err := fn(tl)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, body)
}

// ListMessages returns the current live view
func (c *MessageController) ListMessages(ctx *gin.Context) {
	c.withTimeline(ctx, func(tl *timeline.Synchronizer) (any, error) {
		return tl.Snapshot(), nil
	})
}

// LoadMore pages in the next older block of history
func (c *MessageController) LoadMore(ctx *gin.Context) {
	c.withTimeline(ctx, func(tl *timeline.Synchronizer) (any, error) {
		return tl.LoadMore(ctx.Request.Context())
	})
}

// Refresh resets paging and reloads the newest page
func (c *MessageController) Refresh(ctx *gin.Context) {
	c.withTimeline(ctx, func(tl *timeline.Synchronizer) (any, error) {
		return tl.Refresh(ctx.Request.Context())
	})
}

// ClearView empties the live view. Stored messages are untouched.
func (c *MessageController) ClearView(ctx *gin.Context) {
	c.withTimeline(ctx, func(tl *timeline.Synchronizer) (any, error) {
		return tl.Clear(), nil
	})
}

type sendResponse struct {
	*service.SendResult
	ErrorCode string `json:"errorCode,omitempty"`
}

// SendMessage runs one chat turn
func (c *MessageController) SendMessage(ctx *gin.Context) {
	var request service.SendRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		abortWithError(ctx, errors.NewBadRequestError(errors.CodeInvalidRequest, "Invalid request format"))
		return
	}

	result, err := c.chat.SendMessage(ctx.Request.Context(), middleware.UserID(ctx), request)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if result.Blocked {
		abortWithError(ctx, errors.NewPaymentRequiredError(errors.CodeQuotaExceeded, "Free plan message limit reached").
			WithDetails(gin.H{"blocked": true, "shouldShowUpgrade": result.ShouldShowUpgrade}))
		return
	}

	ctx.JSON(http.StatusOK, sendResponse{SendResult: result, ErrorCode: sendErrorCode(result.Error)})
}

type feedbackRequest struct {
	Feedback models.Feedback `json:"feedback" binding:"required"`
}

// ToggleFeedback sets or clears the caller's feedback on a message
func (c *MessageController) ToggleFeedback(ctx *gin.Context) {
	var request feedbackRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || !request.Feedback.Valid() {
		abortWithError(ctx, errors.NewBadRequestError(errors.CodeInvalidRequest, "feedback must be positive or negative"))
		return
	}

	c.withTimeline(ctx, func(tl *timeline.Synchronizer) (any, error) {
		next, err := tl.ToggleFeedback(ctx.Request.Context(), ctx.Param("id"), request.Feedback)
		if err != nil {
			return nil, err
		}
		return gin.H{"id": ctx.Param("id"), "feedback": next}, nil
	})
}

// Implement applies the operations in a message
func (c *MessageController) Implement(ctx *gin.Context) {
	result, err := c.executor.Implement(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if result.Error == execution.ErrNoOperations {
		abortWithError(ctx, errors.NewError(http.StatusUnprocessableEntity, errors.CodeNoOperations, execution.ErrNoOperations))
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// Operations reports whether a message carries executable operations
func (c *MessageController) Operations(ctx *gin.Context) {
	probe, err := c.chat.Operations(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, probe)
}
