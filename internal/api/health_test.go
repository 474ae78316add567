package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ad-assistant/backend/pkg/health"
	"ad-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedConnections int

func (f fixedConnections) ActiveConnections() int { return int(f) }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dbUp := true
	checker := health.NewChecker(logger.Discard(), time.Minute)
	checker.RegisterDatabaseCheck(func(context.Context) error {
		if dbUp {
			return nil
		}
		return errors.New("no connection")
	})

	r := gin.New()
	NewHealthHandler(checker, fixedConnections(2), "test").RegisterHealthRoutes(r)

	checker.RunChecks(context.Background())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.ActiveConnections)
	assert.Equal(t, health.StatusUp, body.Components["database"].Status)

	dbUp = false
	checker.RunChecks(context.Background())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
