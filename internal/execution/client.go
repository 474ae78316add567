package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ad-assistant/backend/internal/operations"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/resilience"
	"ad-assistant/backend/pkg/secrets"
	"ad-assistant/backend/shared/observability"

	"go.opentelemetry.io/otel/attribute"
)

// OperationResult is the outcome of one operation in a batch
type OperationResult struct {
	Operation  operations.Operation `json:"operation"`
	Success    bool                 `json:"success"`
	Error      string               `json:"error,omitempty"`
	EntityName string               `json:"entityName,omitempty"`
}

// Response is the execution service reply. Results is nil when the service
// did not break the batch down per operation.
type Response struct {
	Results []OperationResult `json:"results"`
	Error   string            `json:"error,omitempty"`
}

// ServiceError is a non-2xx reply from the execution service. Message holds
// the service's own error text, if it sent one.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("execution service returned status %d", e.Status)
	}
	return fmt.Sprintf("execution service returned status %d: %s", e.Status, e.Message)
}

// Dispatcher sends a batch of operations for execution
type Dispatcher interface {
	Dispatch(ctx context.Context, ops []operations.Operation) (*Response, error)
}

// ServiceConfig configures the execution service client
type ServiceConfig struct {
	URL     string
	Timeout time.Duration
}

// ServiceClient dispatches batches to the execution service over HTTP
type ServiceClient struct {
	url        string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	secrets    secrets.Manager
	log        *logger.Logger
}

func NewServiceClient(cfg ServiceConfig, sm secrets.Manager, log *logger.Logger) *ServiceClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ServiceClient{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    resilience.New(resilience.DefaultConfig("execution-service"), log),
		secrets:    sm,
		log:        log,
	}
}

// Dispatch posts {"operations": ops} and decodes the reply
func (c *ServiceClient) Dispatch(ctx context.Context, ops []operations.Operation) (*Response, error) {
	ctx, span := observability.Tracer().Start(ctx, "execution.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("operations", len(ops)))

	var resp *Response
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.post(ctx, ops)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

func (c *ServiceClient) post(ctx context.Context, ops []operations.Operation) (*Response, error) {
	body, err := json.Marshal(map[string]any{"operations": ops})
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secrets != nil {
		if token := c.secrets.GetSecretWithDefault(ctx, secrets.ExecutionServiceToken, ""); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		var failure Response
		_ = json.Unmarshal(raw, &failure)
		return nil, &ServiceError{Status: httpResp.StatusCode, Message: failure.Error}
	}

	var out Response
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
