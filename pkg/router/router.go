package router

import (
	"net/http"
	"slices"
	"strconv"

	"ad-assistant/backend/internal/api"
	"ad-assistant/backend/pkg/config"
	"ad-assistant/backend/pkg/di"
	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/middleware"
	"ad-assistant/backend/pkg/validator"
	"ad-assistant/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
	Validator   *validator.OpenAPIValidator
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("Invalid trusted proxies, trusting none", "error", err.Error())
		engine.SetTrustedProxies(nil)
	}

	// the request logger reads the id assigned here
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	limits := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		limits.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		limits.Burst = cfg.Security.RateLimitBurst
	}
	limiter := middleware.NewRateLimiter(container.Logger, limits)

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Config:      cfg,
		RateLimiter: limiter,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	jwtAuth := middleware.JWTAuthMiddleware(c.JWTService, r.Logger)

	healthHandler := api.NewHealthHandler(c.Health, c.Hub, r.Config.Observability.ServiceName)
	authHandler := api.NewAuthHandler(c.JWTService, r.Logger)
	messageController := api.NewMessageController(c.Sessions, c.ChatService, c.Executor)
	quotaController := api.NewQuotaController(c.ChatService)
	activityController := api.NewActivityController(c.ExecutionLogs, c.Mentions)

	healthHandler.RegisterHealthRoutes(r.Engine)
	if r.Config.Observability.MetricsEnabled {
		r.Engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	}

	v1 := r.Engine.Group("/api/v1")

	// Public routes (no auth required)
	healthHandler.RegisterHealthRoutes(v1)
	if r.Config.Server.Env != "production" {
		v1.POST("/auth/dev-token", authHandler.DevToken)
	}

	// Protected routes (require authentication)
	protected := v1.Group("")
	protected.Use(jwtAuth, r.RateLimiter.Middleware())
	{
		protected.GET("/auth/me", authHandler.Me)
		messageController.RegisterRoutes(protected)
		quotaController.RegisterRoutes(protected)
		activityController.RegisterRoutes(protected)
	}

	// Websocket clients pass the token as a query parameter
	r.Engine.GET("/ws", jwtAuth, c.Hub.Handler())
}

// Close stops background work owned by the router
func (r *Router) Close() {
	r.RateLimiter.Stop()
}

// corsMiddleware allows the configured origins and the headers websocket
// upgrades need
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll && origin == "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowAll || slices.Contains(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// bodyLimit rejects request bodies above limit bytes
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > limit {
				c.Error(errors.NewError(http.StatusRequestEntityTooLarge, errors.CodeInvalidRequest,
					"Request body exceeds "+strconv.FormatInt(limit, 10)+" bytes"))
				c.Abort()
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
