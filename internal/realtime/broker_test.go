package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newBroker(t *testing.T) (*Broker, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewRedisClient(redis.Options{Addr: mr.Addr()})
	b := NewBroker(client, "chat-messages", logger.Discard())
	return b, func() {
		b.Close()
		client.Close()
		mr.Close()
	}
}

func TestBroker_DeliversToOwner(t *testing.T) {
	defer goleak.VerifyNone(t)
	b, cleanup := newBroker(t)
	defer cleanup()
	ctx := context.Background()

	got := make(chan models.Message, 4)
	sub, err := b.Subscribe(ctx, "u1", func(m models.Message) { got <- m })
	require.NoError(t, err)
	assert.Equal(t, StateActive, sub.State())

	require.NoError(t, b.Publish(ctx, models.Message{ID: "m1", UserID: "u1", Role: models.RoleUser, Content: "hi"}))
	require.NoError(t, b.Publish(ctx, models.Message{ID: "m2", UserID: "u2", Content: "other user"}))

	select {
	case m := <-got:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "hi", m.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	select {
	case m := <-got:
		t.Fatalf("unexpected delivery of %s", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_TearsDownBeforeReopen(t *testing.T) {
	defer goleak.VerifyNone(t)
	b, cleanup := newBroker(t)
	defer cleanup()
	ctx := context.Background()

	first, err := b.Subscribe(ctx, "u1", func(models.Message) {})
	require.NoError(t, err)

	second, err := b.Subscribe(ctx, "u1", func(models.Message) {})
	require.NoError(t, err)

	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, StateActive, second.State())

	select {
	case <-first.Done():
	default:
		t.Fatal("previous subscription still running")
	}

	b.Unsubscribe("u1")
	assert.Equal(t, StateClosed, second.State())
}

func TestBroker_ConcurrentSubscribeKeepsOneLive(t *testing.T) {
	defer goleak.VerifyNone(t)
	b, cleanup := newBroker(t)
	defer cleanup()
	ctx := context.Background()

	var delivered atomic.Int32
	subs := make([]*Subscription, 8)
	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := b.Subscribe(ctx, "u1", func(models.Message) { delivered.Add(1) })
			assert.NoError(t, err)
			subs[i] = sub
		}()
	}
	wg.Wait()

	active := 0
	for _, sub := range subs {
		require.NotNil(t, sub)
		if sub.State() == StateActive {
			active++
		}
	}
	assert.Equal(t, 1, active)

	b.mu.Lock()
	assert.Len(t, b.subs, 1)
	assert.Equal(t, StateActive, b.subs["u1"].State())
	b.mu.Unlock()

	require.NoError(t, b.Publish(ctx, models.Message{ID: "m1", UserID: "u1", Content: "once"}))
	assert.Eventually(t, func() bool { return delivered.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, delivered.Load())
}

func TestBroker_CloseRefusesNewSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)
	b, cleanup := newBroker(t)
	defer cleanup()

	sub, err := b.Subscribe(context.Background(), "u1", func(models.Message) {})
	require.NoError(t, err)

	b.Close()
	assert.Equal(t, StateClosed, sub.State())

	_, err = b.Subscribe(context.Background(), "u1", func(models.Message) {})
	assert.ErrorIs(t, err, ErrClosed)

	// closing twice is harmless
	sub.Close()
}
