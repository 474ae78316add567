package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	quota := NewPaymentRequiredError(CodeQuotaExceeded, "Free plan limit reached")
	wrapped := fmt.Errorf("send: %w", quota)

	assert.Same(t, quota, FromError(wrapped))
	assert.Equal(t, http.StatusPaymentRequired, GetStatusCode(wrapped))
	assert.True(t, Is(wrapped, quota))

	plain := FromError(fmt.Errorf("dial tcp: refused"))
	assert.Equal(t, http.StatusInternalServerError, plain.StatusCode)
	assert.Equal(t, CodeInternal, plain.Code)
	assert.NotContains(t, plain.Message, "refused")
	assert.Nil(t, FromError(nil))
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), RecoveryWithLogger())
	r.GET("/upstream", func(c *gin.Context) {
		c.Error(NewGatewayTimeoutError(CodeUpstreamTimeout, "Request timed out. Please try again."))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/upstream", http.StatusGatewayTimeout, CodeUpstreamTimeout},
		{"/panic", http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

		assert.Equal(t, tt.code, w.Code, tt.path)
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.want, body.Error.Code)
	}
}
