// Package resilience guards upstream calls with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/observability"
)

// ErrCircuitOpen is returned while the breaker is short-circuiting calls
var ErrCircuitOpen = errors.New("circuit open")

// State is the current mode of a breaker
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half-open"
	StateOpen     State = "open"
)

func (s State) gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	}
	return 0
}

// Config tunes a breaker
type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// SuccessThreshold half-open successes close it again
	SuccessThreshold int
	// OpenFor is how long an open circuit rejects calls before probing
	OpenFor time.Duration
	// Trips decides whether an error counts against the upstream. Nil
	// counts every error.
	Trips func(error) bool
}

// DefaultConfig returns the settings used for the chat upstreams
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenFor:          60 * time.Second,
	}
}

// CircuitBreaker stops calling an upstream after repeated failures and
// lets a single probe through once the open period has passed.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probing   bool
	openUntil time.Time
}

// New creates a closed breaker
func New(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	cb := &CircuitBreaker{cfg: cfg, log: log, now: time.Now, state: StateClosed}
	observability.CircuitState.WithLabelValues(cfg.Name).Set(StateClosed.gauge())
	return cb
}

// Execute runs fn unless the circuit is open. A failure caused only by the
// caller's context being cancelled is not held against the upstream.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.onSuccess()
	case errors.Is(ctx.Err(), context.Canceled):
		cb.release()
	case cb.cfg.Trips != nil && !cb.cfg.Trips(err):
		cb.onSuccess()
	default:
		cb.onFailure(err)
	}
	return err
}

// State returns the breaker's current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.openUntil) {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

// release frees the half-open probe slot without recording an outcome
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	cb.failures = 0
	if cb.state != StateHalfOpen {
		return
	}
	cb.successes++
	if cb.successes >= cb.cfg.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openUntil = cb.now().Add(cb.cfg.OpenFor)
		if cb.state != StateOpen {
			cb.log.Warn("Circuit breaker opened",
				"name", cb.cfg.Name,
				"failures", cb.failures,
				"error", err.Error(),
				"retry_at", cb.openUntil.Format(time.RFC3339),
			)
		}
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	cb.successes = 0
	if to == StateClosed {
		cb.failures = 0
	}
	observability.CircuitState.WithLabelValues(cb.cfg.Name).Set(to.gauge())
	cb.log.Info("Circuit breaker state changed", "name", cb.cfg.Name, "state", string(to))
}
