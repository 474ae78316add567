package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ad-assistant/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

// Listener is told about every completed round of checks
type Listener func(healthy bool)

type registration struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]registration
	components  map[string]*Component
	listeners   []Listener
	checkPeriod time.Duration
	timeout     time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	return &Checker{
		checks:      make(map[string]registration),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		log:         log,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// RegisterCheck registers a new health check. Critical checks that report
// down make the whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// OnChange registers a listener called after every round of checks
func (c *Checker) OnChange(l Listener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, l)
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mutex.RUnlock()

	type outcome struct {
		status Status
		desc   string
		err    error
	}
	results := make(map[string]outcome, len(checks))
	for name, reg := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, desc, err := reg.check(checkCtx)
		cancel()
		results[name] = outcome{status, desc, err}

		if err != nil {
			c.log.Error("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		}
	}

	c.mutex.Lock()
	now := time.Now()
	for name, res := range results {
		component := c.components[name]
		component.Status = res.status
		component.Description = res.desc
		component.LastChecked = now
		component.Error = ""
		if res.err != nil {
			component.Error = res.err.Error()
		}
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mutex.Unlock()

	healthy := c.IsSystemHealthy()
	for _, l := range listeners {
		l(healthy)
	}
}

// Start begins periodic health checks until Stop is called
func (c *Checker) Start() {
	go func() {
		defer close(c.done)

		c.RunChecks(context.Background())

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.RunChecks(context.Background())
			}
		}
	}()
}

// Stop ends periodic checks and waits for the loop to exit. It must only be
// called after Start.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}
	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.GetStatus()
		healthy := c.IsSystemHealthy()

		w.Header().Set("Content-Type", "application/json")
		overall := "ok"
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			overall = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		response := map[string]any{
			"status":     overall,
			"timestamp":  time.Now(),
			"components": status,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.log.Error("Failed to encode health check response", "error", err.Error())
		}
	}
}

// RegisterDatabaseCheck registers a critical database health check
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterRedisCheck registers a redis check. Without redis realtime pushes
// stop but sends still work, so a failure only degrades the system.
func (c *Checker) RegisterRedisCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("redis", false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, "Realtime channel unavailable", err
		}
		return StatusUp, "Redis is responding", nil
	})
}

// RegisterAPICheck registers a reachability check for an upstream service.
// Any HTTP answer counts as reachable.
func (c *Checker) RegisterAPICheck(name, endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	c.RegisterCheck(fmt.Sprintf("api-%s", name), false, func(ctx context.Context) (Status, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return StatusDegraded, "Invalid endpoint", err
		}
		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return StatusDegraded, "API request failed", err
		}
		resp.Body.Close()
		return StatusUp, fmt.Sprintf("API is reachable (latency: %s)", time.Since(start)), nil
	})
}
