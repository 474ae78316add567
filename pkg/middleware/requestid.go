package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	userIDKey    contextKey = "userID"
)

// client supplied ids are echoed into logs, so only plain tokens are kept
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestIDMiddleware assigns every request an id, reusing a well-formed
// X-Request-ID from the caller. It must run before the request logger.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validRequestID.MatchString(requestID) {
			requestID = uuid.NewString()
		}

		c.Request.Header.Set(RequestIDHeader, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Set(string(requestIDKey), requestID)

		ctx := context.WithValue(c.Request.Context(), requestIDKey, requestID)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("http.request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextUserID returns the authenticated user stored by JWTAuthMiddleware
func ContextUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
