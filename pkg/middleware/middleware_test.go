package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/jwt"
	"ad-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.Use(handlers...)
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+ContextUserID(c.Request.Context()))
	})
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	token, err := svc.GenerateToken("user-7", "")
	require.NoError(t, err)
	r := newEngine(JWTAuthMiddleware(svc, logger.Discard()))

	tests := []struct {
		name   string
		target string
		header string
		code   int
		body   string
	}{
		{name: "bearer header", target: "/me", header: "Bearer " + token, code: http.StatusOK, body: "user-7|user-7"},
		{name: "query token", target: "/me?token=" + token, code: http.StatusOK, body: "user-7|user-7"},
		{name: "missing", target: "/me", code: http.StatusUnauthorized},
		{name: "invalid", target: "/me", header: "Bearer nope", code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewRateLimiter(logger.Discard(), RateLimiterOptions{Limit: 1, Burst: 2, ExpiryDuration: time.Minute})
	defer limiter.Stop()
	r := newEngine(limiter.Middleware())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/me", nil))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c.Request.Context()))
	})

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "caller id kept", header: "req-123.abc", keep: true},
		{name: "missing id generated"},
		{name: "unsafe id replaced", header: "bad id\nwith newline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/id", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.Equal(t, got, w.Body.String())
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				assert.Len(t, got, 36)
			}
		})
	}
}
