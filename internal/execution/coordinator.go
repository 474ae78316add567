// Package execution applies the operations carried by an assistant message
// and records an audit trail of what succeeded.
package execution

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/operations"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/resilience"
	"ad-assistant/backend/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ErrNoOperations   = "No executable operations found"
	ErrPartialFailure = "Some operations failed"

	ErrDispatchTimeout     = "The execution service timed out. Please try again."
	ErrDispatchUnreachable = "Unable to reach the execution service. Please try again later."
	ErrDispatchFailed      = "Failed to execute operations. Please try again."

	defaultEntityName = "Campaign"
	successLogStatus  = "success"
)

var entityIDPattern = regexp.MustCompile(`/(\d+)`)

// MessageStore is the subset of message persistence the coordinator needs
type MessageStore interface {
	GetByID(ctx context.Context, userID, id string) (*models.Message, error)
	MarkImplemented(ctx context.Context, userID, id string) error
}

// LogWriter persists execution log entries
type LogWriter interface {
	Create(ctx context.Context, entry *models.ExecutionLog) error
}

// Mirror receives the implemented flag for a user's live view
type Mirror interface {
	MarkImplemented(userID, messageID string)
}

// Result is the report returned to the caller. Results is always complete,
// even when Success is false.
type Result struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Results []OperationResult `json:"results"`
}

// Coordinator runs the implement flow for a single message
type Coordinator struct {
	messages   MessageStore
	logs       LogWriter
	dispatcher Dispatcher
	mirror     Mirror
	log        *logger.Logger

	now func() time.Time
}

// NewCoordinator creates a coordinator. mirror may be nil.
func NewCoordinator(messages MessageStore, logs LogWriter, dispatcher Dispatcher, mirror Mirror, log *logger.Logger) *Coordinator {
	return &Coordinator{
		messages:   messages,
		logs:       logs,
		dispatcher: dispatcher,
		mirror:     mirror,
		log:        log,
		now:        time.Now,
	}
}

// Implement extracts the operations in the message's content and applies
// them. The returned error is non-nil only when the message cannot be read;
// every execution outcome is reported through Result.
func (c *Coordinator) Implement(ctx context.Context, userID, messageID string) (*Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "execution.Implement")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	log := logger.FromContext(ctx).WithUserID(userID)

	msg, err := c.messages.GetByID(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	ops := operations.Extract(msg.Content)
	if len(ops) == 0 {
		log.Info("No executable operations in message", "message_id", messageID)
		return &Result{Success: false, Error: ErrNoOperations, Results: []OperationResult{}}, nil
	}

	resp, err := c.dispatcher.Dispatch(ctx, ops)
	if err != nil {
		log.LogError(err, "Execution dispatch failed", "message_id", messageID, "operations", len(ops))
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return failAll(ops, dispatchMessage(ctx, err)), nil
	}
	if resp.Error != "" && resp.Results == nil {
		log.Warn("Execution service rejected batch", "message_id", messageID, "error", resp.Error)
		return failAll(ops, resp.Error), nil
	}

	results := resp.Results
	if results == nil {
		results = make([]OperationResult, len(ops))
		for i, op := range ops {
			results[i] = OperationResult{
				Operation:  op,
				Success:    resp.Error == "",
				Error:      resp.Error,
				EntityName: fmt.Sprintf("Operation %d", i+1),
			}
		}
	}

	allSuccess, anySuccess := true, false
	for _, r := range results {
		if r.Success {
			anySuccess = true
			observability.OperationsExecuted.WithLabelValues("succeeded").Inc()
		} else {
			allSuccess = false
			observability.OperationsExecuted.WithLabelValues("failed").Inc()
		}
	}

	if anySuccess {
		c.recordSuccesses(ctx, log, userID, messageID, results)
	}

	log.Info("Implemented message operations",
		"message_id", messageID,
		"operations", len(results),
		"all_success", allSuccess,
	)

	out := &Result{Success: allSuccess, Results: results}
	if !allSuccess {
		out.Error = ErrPartialFailure
	}
	return out, nil
}

func (c *Coordinator) recordSuccesses(ctx context.Context, log *logger.Logger, userID, messageID string, results []OperationResult) {
	if err := c.messages.MarkImplemented(ctx, userID, messageID); err != nil {
		log.LogError(err, "Failed to flag message implemented", "message_id", messageID)
	}

	for _, r := range results {
		if !r.Success {
			continue
		}
		entry := logEntry(userID, r, c.now().UTC())
		if err := c.logs.Create(ctx, entry); err != nil {
			log.LogError(err, "Failed to save execution log",
				"message_id", messageID,
				"endpoint", r.Operation.Endpoint,
			)
		}
	}

	if c.mirror != nil {
		c.mirror.MarkImplemented(userID, messageID)
	}
}

func failAll(ops []operations.Operation, message string) *Result {
	results := make([]OperationResult, len(ops))
	for i, op := range ops {
		results[i] = OperationResult{Operation: op, Success: false, Error: message}
		observability.OperationsExecuted.WithLabelValues("failed").Inc()
	}
	return &Result{Success: false, Error: message, Results: results}
}

func logEntry(userID string, r OperationResult, at time.Time) *models.ExecutionLog {
	op := r.Operation
	entry := &models.ExecutionLog{
		UserID:            userID,
		EntityType:        entityType(op),
		EntityName:        r.EntityName,
		OperationMethod:   op.Method,
		OperationEndpoint: op.Endpoint,
		OperationParams:   op.Params,
		Status:            successLogStatus,
		ExecutedAt:        at,
	}
	if entry.EntityName == "" {
		entry.EntityName = defaultEntityName
	}
	if entry.OperationParams == nil {
		entry.OperationParams = map[string]any{}
	}
	if m := entityIDPattern.FindStringSubmatch(op.Endpoint); m != nil {
		id := m[1]
		entry.EntityID = &id
	}
	return entry
}

// entityType prefers the endpoint shape, then sub-unit parameter keys
func entityType(op operations.Operation) models.EntityType {
	switch {
	case strings.Contains(op.Endpoint, "adsets") || truthy(op.Params["adset_id"]):
		return models.EntityAdSet
	case strings.Contains(op.Endpoint, "ads") || truthy(op.Params["ad_id"]):
		return models.EntityAd
	default:
		return models.EntityCampaign
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}

// dispatchMessage maps a dispatch error to the text shown to the user. Only
// messages authored by the execution service pass through verbatim.
func dispatchMessage(ctx context.Context, err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrDispatchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrDispatchTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ErrDispatchUnreachable
	}
	return ErrDispatchFailed
}
