package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ad-assistant/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPath = "../../api/openapi.yaml"

func TestOpenAPIValidator_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator(schemaPath)
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/api/v1/messages", ok)
	r.PUT("/api/v1/messages/:id/feedback", ok)
	r.GET("/internal/debug", ok)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"valid send", http.MethodPost, "/api/v1/messages", `{"content":"hi"}`, http.StatusOK},
		{"empty content", http.MethodPost, "/api/v1/messages", `{"content":""}`, http.StatusBadRequest},
		{"missing content", http.MethodPost, "/api/v1/messages", `{"campaign":{"id":"c1"}}`, http.StatusBadRequest},
		{"valid feedback", http.MethodPut, "/api/v1/messages/abc/feedback", `{"feedback":"negative"}`, http.StatusOK},
		{"unknown feedback", http.MethodPut, "/api/v1/messages/abc/feedback", `{"feedback":"meh"}`, http.StatusBadRequest},
		{"route outside schema", http.MethodGet, "/internal/debug", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Contains(t, w.Body.String(), errors.CodeValidationFailed)
			}
		})
	}
}

func TestOpenAPIValidator_ValidateResponse(t *testing.T) {
	v, err := NewOpenAPIValidator(schemaPath)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	header := http.Header{"Content-Type": []string{"application/json"}}

	good := `{"canSend":true,"shouldShowUpgrade":false,"count":3,"limit":10,"freePlan":true}`
	assert.NoError(t, v.ValidateResponse(req, http.StatusOK, header, []byte(good)))

	bad := `{"canSend":true,"shouldShowUpgrade":false,"count":3}`
	assert.Error(t, v.ValidateResponse(req, http.StatusOK, header, []byte(bad)))

	assert.NoError(t, v.ReloadSchema())
}
