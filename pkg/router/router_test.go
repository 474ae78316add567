package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/config"
	"ad-assistant/backend/pkg/di"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.JWT.Secret = "router-test-secret"
	cfg.JWT.Expiry = time.Hour
	cfg.Security.RateLimit = 100
	cfg.Security.RateLimitBurst = 100
	cfg.Security.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Security.MaxBodySize = 1 << 10
	cfg.Redis.ChannelPrefix = "chat-messages"
	cfg.Chat.PageSize = 200
	cfg.Chat.FreeMessageLimit = 10
	cfg.Chat.SessionIdleTTL = time.Minute
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxSize = 100
	cfg.Observability.ServiceName = "ad-assistant-test"
	cfg.Observability.MetricsEnabled = true
	cfg.Observability.HealthInterval = time.Minute
	return cfg
}

func newTestRouter(t *testing.T, before ...func(*Router)) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mr := miniredis.RunT(t)
	rdb := redis.NewRedisClient(redis.Options{Addr: mr.Addr()})

	container, err := di.New(testConfig(), db, rdb, logger.Discard())
	require.NoError(t, err)

	r := New(container)
	for _, fn := range before {
		fn(r)
	}
	r.SetupRoutes()
	t.Cleanup(func() {
		r.Close()
		container.Close()
		rdb.Close()
		sqlDB.Close()
	})
	return r
}

func serve(r *Router, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func devToken(t *testing.T, r *Router, userID string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/dev-token", strings.NewReader(`{"user_id":"`+userID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Token
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AuthenticatedFlow(t *testing.T) {
	r := newTestRouter(t)
	row := models.Message{UserID: "u1", Role: models.RoleAI, Content: "Raise the budget by 10%"}
	require.NoError(t, r.Container.Messages.Create(context.Background(), &row))

	token := devToken(t, r, "u1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), row.ID)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	var quota map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quota))
	assert.Equal(t, true, quota["canSend"])
	assert.EqualValues(t, 10, quota["limit"])
}

func TestRouter_ActivityRoutes(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, r.Container.ExecutionLogs.Create(ctx, &models.ExecutionLog{
		UserID:            "u1",
		EntityType:        models.EntityAdSet,
		EntityName:        "Lookalike",
		OperationMethod:   "POST",
		OperationEndpoint: "/222",
		Status:            "success",
		ExecutedAt:        time.Now().UTC(),
	}))
	r.Container.Mentions.Remember("u1", "c42")
	r.Container.Mentions.Wait()

	token := devToken(t, r, "u1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Lookalike")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/last-mentioned", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"campaignId":"c42"}`, w.Body.String())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	r.Container.Health.RunChecks(context.Background())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/messages", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/messages", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_BodyLimit(t *testing.T) {
	r := newTestRouter(t)
	token := devToken(t, r, "u1")

	body := `{"content":"` + strings.Repeat("x", 2048) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_OpenAPIValidation(t *testing.T) {
	r := newTestRouter(t, func(r *Router) {
		require.NoError(t, r.AddOpenAPIValidation("../../api/openapi.yaml"))
	})
	require.NotNil(t, r.Validator)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/dev-token", strings.NewReader(`{"email":"a@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)

	token := devToken(t, r, "u1")
	assert.NotEmpty(t, token)

	w = serve(r, httptest.NewRequest(http.MethodGet, SchemaRoute, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi:")
}

func TestRouter_OpenAPIValidationMissingSchema(t *testing.T) {
	r := newTestRouter(t, func(r *Router) {
		assert.Error(t, r.AddOpenAPIValidation("does-not-exist.yaml"))
	})
	assert.Nil(t, r.Validator)
}
