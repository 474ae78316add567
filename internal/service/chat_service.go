// Package service wires the chat pipeline together: quota, live timelines,
// context assembly, the conversation webhook and operation execution.
package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"ad-assistant/backend/internal/assembler"
	"ad-assistant/backend/internal/gateway"
	"ad-assistant/backend/internal/ids"
	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/operations"
	"ad-assistant/backend/internal/quota"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

// ErrEmptyMessage is returned when the content is blank after trimming
var ErrEmptyMessage = errors.New("message content is empty")

// User-facing send failures
const (
	MsgSaveFailed     = "Failed to save message"
	MsgSendFailed     = "Failed to send message"
	MsgNoAIResponse   = "Failed to get AI response"
	defaultReplyType  = "text"
	defaultRevealStep = 20
)

// MessageWriter persists chat messages
type MessageWriter interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, userID, id string) (*models.Message, error)
}

// ContextAssembler builds the webhook payload for one turn
type ContextAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) (*assembler.Payload, error)
}

// ConversationGateway sends a payload and returns the normalized reply
type ConversationGateway interface {
	Send(ctx context.Context, payload any) gateway.Result
}

// Publisher announces persisted messages on the realtime channel
type Publisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// ChatConfig tunes the reply reveal
type ChatConfig struct {
	RevealDuration time.Duration
	RevealSteps    int
}

// SendRequest is one user turn
type SendRequest struct {
	Content    string                 `json:"content" binding:"required"`
	Campaign   *assembler.CampaignRef `json:"campaign,omitempty"`
	DataSource string                 `json:"dataSource,omitempty" binding:"omitempty,oneof=meta shopify"`
}

// SendResult reports what happened to a send. Blocked sends and failures are
// not errors; they carry a user-facing message instead.
type SendResult struct {
	Blocked           bool            `json:"blocked"`
	ShouldShowUpgrade bool            `json:"shouldShowUpgrade"`
	Error             string          `json:"error,omitempty"`
	UserMessage       *timeline.Entry `json:"userMessage,omitempty"`
	AssistantMessage  *timeline.Entry `json:"assistantMessage,omitempty"`
}

// OperationsProbe reports the executable operations in one message
type OperationsProbe struct {
	HasExecutableOperations bool                   `json:"hasExecutableOperations"`
	Operations              []operations.Operation `json:"operations"`
}

type ChatService struct {
	sessions  *SessionManager
	gate      *quota.Gate
	messages  MessageWriter
	assembler ContextAssembler
	gateway   ConversationGateway
	publisher Publisher
	cfg       ChatConfig
	log       *logger.Logger

	now func() time.Time
}

// NewChatService creates the send pipeline. publisher may be nil.
func NewChatService(sessions *SessionManager, gate *quota.Gate, messages MessageWriter, asm ContextAssembler, gw ConversationGateway, publisher Publisher, cfg ChatConfig, log *logger.Logger) *ChatService {
	if cfg.RevealSteps <= 0 {
		cfg.RevealSteps = defaultRevealStep
	}
	return &ChatService{
		sessions:  sessions,
		gate:      gate,
		messages:  messages,
		assembler: asm,
		gateway:   gw,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// SendMessage runs one full turn: quota check, optimistic insert, persist,
// context assembly, webhook call, reveal and assistant reply persistence.
func (s *ChatService) SendMessage(ctx context.Context, userID string, req SendRequest) (*SendResult, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := observability.Tracer().Start(ctx, "chat.SendMessage")
	defer span.End()
	log := logger.FromContext(ctx).WithUserID(userID)
	ctx = logger.IntoContext(ctx, log)

	decision := s.gate.CanSend(ctx, userID)
	if !decision.CanSend {
		observability.MessagesBlocked.Inc()
		log.Info("Message blocked by free plan limit")
		return &SendResult{Blocked: true, ShouldShowUpgrade: decision.ShouldShowUpgrade}, nil
	}

	tl, release, err := s.sessions.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	sentAt := s.now().UTC()
	clientID := ids.Message(sentAt)
	span.SetAttributes(attribute.String("message.client_id", clientID))

	pending := tl.InsertOptimistic(timeline.Entry{
		ID:        clientID,
		ClientID:  clientID,
		Role:      models.RoleUser,
		IsUser:    true,
		Content:   content,
		Type:      defaultReplyType,
		Metadata:  models.MessageMetadata{OriginalClientID: clientID, Type: defaultReplyType},
		CreatedAt: sentAt,
	})
	result := &SendResult{UserMessage: &pending}

	// once the turn is on the timeline it runs to completion even if the
	// caller disconnects; the gateway bounds the wait on its own
	callerCtx := ctx
	ctx = context.WithoutCancel(ctx)

	row := &models.Message{
		UserID:    userID,
		Role:      models.RoleUser,
		Content:   content,
		Metadata:  datatypes.NewJSONType(models.MessageMetadata{OriginalClientID: clientID, Type: defaultReplyType}),
		CreatedAt: sentAt,
	}
	if err := s.messages.Create(ctx, row); err != nil {
		log.LogError(err, "Failed to save user message", "client_id", clientID)
		return s.fail(tl, result, MsgSaveFailed), nil
	}

	s.gate.RecordSent(userID)
	observability.MessagesSent.Inc()
	confirmed := tl.Confirm(*row)
	result.UserMessage = &confirmed
	s.publish(ctx, log, *row)

	payload, err := s.assembler.Assemble(ctx, assembler.Request{UserID: userID, Content: content, Campaign: req.Campaign, DataSource: req.DataSource})
	if err != nil {
		log.LogError(err, "Failed to assemble context")
		return s.fail(tl, result, MsgSendFailed), nil
	}

	reply := s.gateway.Send(ctx, payload)
	if !reply.Success {
		msg := reply.ErrorMessage
		if msg == "" {
			msg = MsgNoAIResponse
		}
		return s.fail(tl, result, msg), nil
	}
	if reply.AIResponse == "" {
		log.Debug("Webhook succeeded without a reply")
		return result, nil
	}

	s.reveal(callerCtx, tl, reply.AIResponse)

	assistant := s.saveReply(ctx, log, tl, userID, reply)
	result.AssistantMessage = &assistant
	return result, nil
}

func (s *ChatService) fail(tl *timeline.Synchronizer, result *SendResult, message string) *SendResult {
	tl.Notify(timeline.Event{Type: timeline.EventError, Text: message})
	result.Error = message
	return result
}

func (s *ChatService) publish(ctx context.Context, log *logger.Logger, row models.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, row); err != nil {
		log.LogError(err, "Failed to publish message", "message_id", row.ID)
	}
}

// reveal streams growing prefixes of text to listeners over the configured
// duration. It stops early if ctx is done.
func (s *ChatService) reveal(ctx context.Context, tl *timeline.Synchronizer, text string) {
	runes := []rune(text)
	perStep := int(math.Ceil(float64(len(runes)) / float64(s.cfg.RevealSteps)))
	if perStep < 1 {
		perStep = 1
	}
	delay := s.cfg.RevealDuration / time.Duration(s.cfg.RevealSteps)

	for i := 0; i < len(runes); i += perStep {
		end := min(i+perStep, len(runes))
		tl.Notify(timeline.Event{Type: timeline.EventStreaming, Text: string(runes[:end])})
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	tl.Notify(timeline.Event{Type: timeline.EventStreaming, Text: text, Done: true})
}

func (s *ChatService) saveReply(ctx context.Context, log *logger.Logger, tl *timeline.Synchronizer, userID string, reply gateway.Result) timeline.Entry {
	at := s.now().UTC()
	clientID := ids.Assistant(at)
	msgType := reply.MessageType
	if msgType == "" {
		msgType = defaultReplyType
	}
	ops := reply.Operations
	if ops == nil {
		ops = []any{}
	}
	meta := models.MessageMetadata{
		OriginalClientID:        clientID,
		Type:                    msgType,
		Operations:              ops,
		HasExecutableOperations: len(ops) > 0,
		Timestamp:               at.Format(time.RFC3339Nano),
	}

	pending := tl.InsertOptimistic(timeline.Entry{
		ID:        clientID,
		ClientID:  clientID,
		Role:      models.RoleAI,
		Content:   reply.AIResponse,
		Type:      msgType,
		Metadata:  meta,
		CreatedAt: at,
	})

	row := &models.Message{
		UserID:    userID,
		Role:      models.RoleAI,
		Content:   reply.AIResponse,
		Metadata:  datatypes.NewJSONType(meta),
		CreatedAt: at,
	}
	if err := s.messages.Create(ctx, row); err != nil {
		log.LogError(err, "Failed to save assistant message", "client_id", clientID)
		return pending
	}
	confirmed := tl.Confirm(*row)
	s.publish(ctx, log, *row)
	return confirmed
}

// Operations reports the executable operations found in a stored message
func (s *ChatService) Operations(ctx context.Context, userID, messageID string) (*OperationsProbe, error) {
	msg, err := s.messages.GetByID(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	ops := operations.Extract(msg.Content)
	if ops == nil {
		ops = []operations.Operation{}
	}
	return &OperationsProbe{HasExecutableOperations: len(ops) > 0, Operations: ops}, nil
}

// Quota returns the user's quota status
func (s *ChatService) Quota(ctx context.Context, userID string) quota.Status {
	return s.gate.Status(ctx, userID)
}
