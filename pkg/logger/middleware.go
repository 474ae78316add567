package logger

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// quietPaths are polled by orchestrators and only logged at debug level
var quietPaths = []string{"/health", "/metrics", "/api/v1/health"}

// Middleware returns a Gin middleware that stores a request-scoped logger on
// the request and logs the request once it completes. The request id is
// taken from X-Request-ID, so RequestIDMiddleware has to run first.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.WithRequestID(c.GetHeader("X-Request-ID"))
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(IntoContext(c.Request.Context(), reqLogger))

		start := time.Now()
		c.Next()

		// auth runs after this middleware, so the user is only known now
		if userID, ok := c.Get("userID"); ok {
			reqLogger = reqLogger.WithUserID(fmt.Sprintf("%v", userID))
		}

		path := c.Request.URL.Path
		reqLogger.LogRequest(RequestInfo{
			Method:   c.Request.Method,
			Route:    c.FullPath(),
			Path:     path,
			Status:   c.Writer.Status(),
			Latency:  time.Since(start),
			Bytes:    c.Writer.Size(),
			ClientIP: c.ClientIP(),
		}, isQuiet(path))

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", c.Request.Method,
				"path", path,
				"error_type", err.Type,
			)
		}
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
