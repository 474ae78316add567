package api

import (
	"net/http"
	"time"

	"ad-assistant/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reports open websocket connections
type ConnectionCounter interface {
	ActiveConnections() int
}

// HealthHandler serves the component health report
type HealthHandler struct {
	checker     *health.Checker
	connections ConnectionCounter
	version     string
	started     time.Time
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status            string                       `json:"status"`
	Timestamp         time.Time                    `json:"timestamp"`
	Version           string                       `json:"version"`
	Uptime            string                       `json:"uptime"`
	ActiveConnections int                          `json:"active_connections"`
	Components        map[string]*health.Component `json:"components"`
}

// NewHealthHandler creates a health handler. connections may be nil.
func NewHealthHandler(checker *health.Checker, connections ConnectionCounter, version string) *HealthHandler {
	return &HealthHandler{
		checker:     checker,
		connections: connections,
		version:     version,
		started:     time.Now(),
	}
}

// Health reports 200 while every critical component is up and 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: h.checker.GetStatus(),
	}
	if h.connections != nil {
		response.ActiveConnections = h.connections.ActiveConnections()
	}

	status := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		response.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// RegisterHealthRoutes registers health check related routes
func (h *HealthHandler) RegisterHealthRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
}
