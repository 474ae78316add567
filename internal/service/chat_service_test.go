package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"ad-assistant/backend/internal/assembler"
	"ad-assistant/backend/internal/gateway"
	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/quota"
	"ad-assistant/backend/internal/realtime"
	"ad-assistant/backend/internal/repository"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubAssembler struct {
	requests []assembler.Request
	err      error
}

func (s *stubAssembler) Assemble(_ context.Context, req assembler.Request) (*assembler.Payload, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &assembler.Payload{Action: assembler.ActionGeneralQuery, InputMessage: req.Content, UserID: req.UserID}, nil
}

type stubGateway struct {
	result gateway.Result
	calls  int
	onSend func(ctx context.Context)
}

func (s *stubGateway) Send(ctx context.Context, _ any) gateway.Result {
	s.calls++
	if s.onSend != nil {
		s.onSend(ctx)
	}
	return s.result
}

type failingWriter struct {
	*repository.GormMessageRepository
}

func (failingWriter) Create(context.Context, *models.Message) error {
	return errors.New("insert rejected")
}

type harness struct {
	db       *gorm.DB
	messages *repository.GormMessageRepository
	sessions *SessionManager
	gate     *quota.Gate
	asm      *stubAssembler
	gw       *stubGateway
	chat     *ChatService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mr := miniredis.RunT(t)
	rdb := redis.NewRedisClient(redis.Options{Addr: mr.Addr()})
	broker := realtime.NewBroker(rdb, "chat-messages", logger.Discard())

	messages := repository.NewGormMessageRepository(db)
	gate := quota.NewGate(repository.NewGormSubscriberRepository(db), messages, 10, logger.Discard())
	sessions := NewSessionManager(messages, broker, gate, 200, 0, logger.Discard())
	asm := &stubAssembler{}
	gw := &stubGateway{result: gateway.Result{Success: true}}

	chat := NewChatService(sessions, gate, messages, asm, gw, broker, ChatConfig{RevealSteps: 20}, logger.Discard())

	t.Cleanup(func() {
		sessions.Close()
		broker.Close()
		rdb.Close()
		sqlDB.Close()
	})
	return &harness{db: db, messages: messages, sessions: sessions, gate: gate, asm: asm, gw: gw, chat: chat}
}

func drain(ch <-chan timeline.Event) []timeline.Event {
	var out []timeline.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSendMessage_PersistsBothTurns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.result = gateway.Result{
		Success:     true,
		AIResponse:  "Pause the ad set.",
		MessageType: "recommendation",
		Operations:  []any{map[string]any{"method": "POST", "endpoint": "/123"}},
	}

	tl, release, err := h.sessions.Acquire(ctx, "u1")
	require.NoError(t, err)
	defer release()
	events, stop := tl.Listen()
	defer stop()

	res, err := h.chat.SendMessage(ctx, "u1", SendRequest{Content: "  what should I change?  "})
	require.NoError(t, err)

	assert.False(t, res.Blocked)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.UserMessage)
	assert.Equal(t, timeline.StatusConfirmed, res.UserMessage.Status)
	assert.Equal(t, "what should I change?", res.UserMessage.Content)
	assert.Regexp(t, `^msg_\d+_[0-9a-z]{9}$`, res.UserMessage.ClientID)

	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, timeline.StatusConfirmed, res.AssistantMessage.Status)
	assert.Equal(t, "recommendation", res.AssistantMessage.Type)
	assert.True(t, res.AssistantMessage.Metadata.HasExecutableOperations)
	assert.Regexp(t, `^ai_\d+_[0-9a-z]{9}$`, res.AssistantMessage.ClientID)

	require.Len(t, h.asm.requests, 1)
	assert.Equal(t, "what should I change?", h.asm.requests[0].Content)

	rows, err := h.messages.ListPage(ctx, "u1", nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.RoleAI, rows[0].Role)
	assert.Equal(t, res.UserMessage.ClientID, rows[1].ClientID())

	snapshot := tl.Snapshot()
	require.Len(t, snapshot.Entries, 2)
	assert.False(t, snapshot.Entries[0].Pending())
	assert.False(t, snapshot.Entries[1].Pending())

	var kinds []timeline.EventType
	var last timeline.Event
	for _, ev := range drain(events) {
		if ev.Type == timeline.EventStreaming {
			last = ev
			continue
		}
		kinds = append(kinds, ev.Type)
	}
	assert.Equal(t, []timeline.EventType{
		timeline.EventMessage, timeline.EventConfirmed,
		timeline.EventMessage, timeline.EventConfirmed,
	}, kinds)
	assert.True(t, last.Done)
	assert.Equal(t, "Pause the ad set.", last.Text)
}

func TestSendMessage_CallerDisconnectKeepsReply(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sendErr error
	h.gw.result = gateway.Result{Success: true, AIResponse: "Raise the budget by 20%."}
	h.gw.onSend = func(sendCtx context.Context) {
		cancel()
		sendErr = sendCtx.Err()
	}

	res, err := h.chat.SendMessage(ctx, "u1", SendRequest{Content: "how do I scale?"})
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NoError(t, sendErr)

	assert.Empty(t, res.Error)
	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, timeline.StatusConfirmed, res.AssistantMessage.Status)

	rows, err := h.messages.ListPage(context.Background(), "u1", nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.RoleAI, rows[0].Role)
	assert.Equal(t, "Raise the budget by 20%.", rows[0].Content)
}

func TestSendMessage_BlockedOnFreePlanLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, h.messages.Create(ctx, &models.Message{UserID: "u1", Role: models.RoleUser, Content: "hi"}))
	}

	res, err := h.chat.SendMessage(ctx, "u1", SendRequest{Content: "one more"})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.True(t, res.ShouldShowUpgrade)
	assert.Nil(t, res.UserMessage)
	assert.Zero(t, h.gw.calls)

	count, err := h.messages.CountByRole(ctx, "u1", models.RoleUser)
	require.NoError(t, err)
	assert.EqualValues(t, 10, count)
}

func TestSendMessage_PaidPlanIgnoresLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.Create(&models.Subscriber{UserID: "u1", SubscriptionTier: "pro"}).Error)
	for i := 0; i < 12; i++ {
		require.NoError(t, h.messages.Create(ctx, &models.Message{UserID: "u1", Role: models.RoleUser, Content: "hi"}))
	}

	res, err := h.chat.SendMessage(ctx, "u1", SendRequest{Content: "still here"})
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, 1, h.gw.calls)
}

func TestSendMessage_GatewayFailureKeepsUserMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.result = gateway.Result{Success: false, ErrorMessage: gateway.MsgTimeout}

	res, err := h.chat.SendMessage(ctx, "u1", SendRequest{Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, gateway.MsgTimeout, res.Error)
	require.NotNil(t, res.UserMessage)
	assert.Equal(t, timeline.StatusConfirmed, res.UserMessage.Status)
	assert.Nil(t, res.AssistantMessage)

	status := h.gate.Status(ctx, "u1")
	assert.EqualValues(t, 1, status.Count)
}

func TestSendMessage_EmptyReplyAddsNothing(t *testing.T) {
	h := newHarness(t)

	res, err := h.chat.SendMessage(context.Background(), "u1", SendRequest{Content: "hello"})
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Nil(t, res.AssistantMessage)
}

func TestSendMessage_PersistFailureLeavesPendingEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.chat.messages = failingWriter{h.messages}

	tl, release, err := h.sessions.Acquire(ctx, "u1")
	require.NoError(t, err)
	defer release()

	res, err := h.chat.SendMessage(ctx, "u1", SendRequest{Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, MsgSaveFailed, res.Error)
	require.NotNil(t, res.UserMessage)
	assert.True(t, res.UserMessage.Pending())
	assert.Zero(t, h.gw.calls)

	entry, ok := tl.Snapshot().Find(res.UserMessage.ID)
	require.True(t, ok)
	assert.True(t, entry.Pending())
}

func TestSendMessage_RejectsBlankContent(t *testing.T) {
	h := newHarness(t)
	_, err := h.chat.SendMessage(context.Background(), "u1", SendRequest{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessage_RevealStreamsPrefixes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.chat.cfg = ChatConfig{RevealDuration: 20 * time.Millisecond, RevealSteps: 4}
	h.gw.result = gateway.Result{Success: true, AIResponse: "abcdefghij"}

	tl, release, err := h.sessions.Acquire(ctx, "u1")
	require.NoError(t, err)
	defer release()
	events, stop := tl.Listen()
	defer stop()

	_, err = h.chat.SendMessage(ctx, "u1", SendRequest{Content: "go"})
	require.NoError(t, err)

	var chunks []string
	for _, ev := range drain(events) {
		if ev.Type == timeline.EventStreaming && !ev.Done {
			chunks = append(chunks, ev.Text)
		}
	}
	assert.Equal(t, []string{"abc", "abcdef", "abcdefghi", "abcdefghij"}, chunks)
}

func TestChatService_Operations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	msg := &models.Message{UserID: "u1", Role: models.RoleAI, Content: `Do this: [{"method":"POST","endpoint":"/42","params":{"status":"PAUSED"}}]`}
	require.NoError(t, h.messages.Create(ctx, msg))
	plain := &models.Message{UserID: "u1", Role: models.RoleAI, Content: "Nothing to do"}
	require.NoError(t, h.messages.Create(ctx, plain))

	probe, err := h.chat.Operations(ctx, "u1", msg.ID)
	require.NoError(t, err)
	assert.True(t, probe.HasExecutableOperations)
	require.Len(t, probe.Operations, 1)
	assert.Equal(t, "/42", probe.Operations[0].Endpoint)

	probe, err = h.chat.Operations(ctx, "u1", plain.ID)
	require.NoError(t, err)
	assert.False(t, probe.HasExecutableOperations)
	assert.NotNil(t, probe.Operations)

	_, err = h.chat.Operations(ctx, "u2", msg.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
