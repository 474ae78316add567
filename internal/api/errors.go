package api

import (
	"context"
	stderrors "errors"

	"ad-assistant/backend/internal/gateway"
	"ad-assistant/backend/internal/repository"
	"ad-assistant/backend/internal/service"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// abortWithError maps domain errors onto API errors and hands them to the
// error middleware
func abortWithError(ctx *gin.Context, err error) {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
	case stderrors.Is(err, repository.ErrNotFound):
		appErr = errors.NewNotFoundError(errors.CodeMessageNotFound, "Message not found")
	case stderrors.Is(err, service.ErrEmptyMessage):
		appErr = errors.NewBadRequestError(errors.CodeInvalidRequest, "Message content is required")
	case stderrors.Is(err, timeline.ErrPending):
		appErr = errors.NewConflictError(errors.CodeConflict, "Message is still being saved")
	case stderrors.Is(err, service.ErrSessionsClosed):
		appErr = errors.NewServiceUnavailableError(errors.CodeUnavailable, "Server is shutting down")
	case stderrors.Is(err, context.DeadlineExceeded):
		appErr = errors.NewGatewayTimeoutError(errors.CodeUpstreamTimeout, gateway.MsgTimeout)
	}

	if appErr != nil {
		ctx.Error(&wrappedError{app: appErr, cause: err})
	} else {
		ctx.Error(err)
	}
	ctx.Abort()
}

// wrappedError keeps the original cause in the request log while the client
// only sees the mapped AppError
type wrappedError struct {
	app   *errors.AppError
	cause error
}

func (w *wrappedError) Error() string { return w.cause.Error() }

func (w *wrappedError) Unwrap() []error { return []error{w.app, w.cause} }

// sendErrorCode classifies a user-facing send failure
func sendErrorCode(message string) string {
	switch message {
	case "":
		return ""
	case service.MsgSaveFailed:
		return errors.CodePersistFailed
	case gateway.MsgTimeout:
		return errors.CodeGatewayTimeout
	case gateway.MsgNetwork:
		return errors.CodeGatewayUnreachable
	default:
		return errors.CodeGatewayFailed
	}
}
