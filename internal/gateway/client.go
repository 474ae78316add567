// Package gateway posts assembled context to the conversation webhook and
// normalizes whatever comes back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/resilience"
	"ad-assistant/backend/pkg/secrets"
	"ad-assistant/backend/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultMessageType = "text"

// User-facing failure messages
const (
	MsgTimeout = "Request timed out. Please try again."
	MsgNetwork = "Unable to connect to AI service. Please check your connection and try again."
	MsgGeneric = "An unexpected error occurred. Please try again."
)

// Result is the normalized outcome of one webhook round trip. A successful
// result may carry no reply at all.
type Result struct {
	Success      bool   `json:"success"`
	AIResponse   string `json:"aiResponse,omitempty"`
	MessageType  string `json:"messageType,omitempty"`
	Operations   []any  `json:"operations,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Config configures the webhook client
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client sends one payload per turn. Calls are never retried.
type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	secrets    secrets.Manager
	log        *logger.Logger
}

// NewClient creates a webhook client. secrets may be nil when the webhook is
// unauthenticated.
func NewClient(cfg Config, sm secrets.Manager, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	breakerCfg := resilience.DefaultConfig("conversation-webhook")
	// a webhook that rejects a payload is still up
	breakerCfg.Trips = func(err error) bool {
		var se *statusError
		return !errors.As(err, &se) || se.code >= 500
	}
	return &Client{
		url:        cfg.URL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		breaker:    resilience.New(breakerCfg, log),
		secrets:    sm,
		log:        log,
	}
}

// statusError is a non-2xx answer from the webhook
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Server error: %d", e.code)
}

// Send posts payload and returns the normalized reply. Transport failures
// come back as an unsuccessful Result with a user-facing message; the
// underlying cause is only logged.
func (c *Client) Send(ctx context.Context, payload any) Result {
	ctx, span := observability.Tracer().Start(ctx, "gateway.Send")
	defer span.End()
	log := logger.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.post(ctx, payload)
		return err
	})

	if err != nil {
		var se *statusError
		outcome, message := classify(ctx, err)
		if errors.As(err, &se) {
			outcome, message = "bad_status", se.Error()
			span.SetAttributes(attribute.Int("http.status_code", se.code))
		}
		observability.GatewayRequests.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.LogError(err, "Conversation webhook failed", "outcome", outcome)
		return Result{Success: false, ErrorMessage: message}
	}

	result := Normalize(body)
	outcome := "ok"
	if result.AIResponse == "" {
		outcome = "empty"
	}
	observability.GatewayRequests.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.Int("response.bytes", len(body)),
		attribute.Int("response.operations", len(result.Operations)),
	)
	log.Debug("Conversation webhook replied",
		"bytes", len(body),
		"has_reply", result.AIResponse != "",
		"operations", len(result.Operations),
	)
	return result
}

func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.secrets != nil {
		if token := c.secrets.GetSecretWithDefault(ctx, secrets.WebhookToken, ""); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// the reply was accepted even if it could not be read in full
		return nil, nil
	}
	return body, nil
}

// classify maps a transport error to a metric outcome and user-facing message
func classify(ctx context.Context, err error) (string, string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout", MsgTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", MsgTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return "unreachable", MsgNetwork
	}
	return "failed", MsgGeneric
}
