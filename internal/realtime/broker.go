// Package realtime fans persisted chat messages out to every live view of
// the same user over redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/observability"
	"ad-assistant/backend/shared/redis"
)

// ErrClosed is returned when subscribing on a closed broker
var ErrClosed = errors.New("realtime broker closed")

// State is the lifecycle of a subscription
type State string

const (
	StateOpening State = "opening"
	StateActive  State = "active"
	StateClosed  State = "closed"
)

// Handler receives every message inserted for the subscribed user
type Handler func(models.Message)

// Broker publishes inserted messages and owns at most one subscription per user
type Broker struct {
	client *redis.RedisClient
	prefix string
	log    *logger.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewBroker creates a broker publishing on "<prefix>:<userID>" channels
func NewBroker(client *redis.RedisClient, prefix string, log *logger.Logger) *Broker {
	if prefix == "" {
		prefix = "chat-messages"
	}
	return &Broker{
		client: client,
		prefix: prefix,
		log:    log,
		subs:   make(map[string]*Subscription),
	}
}

// Channel returns the pub/sub channel for userID
func (b *Broker) Channel(userID string) string {
	return fmt.Sprintf("%s:%s", b.prefix, userID)
}

// Publish announces a newly inserted message to the owner's subscribers
func (b *Broker) Publish(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel(msg.UserID), payload); err != nil {
		observability.RealtimeEvents.WithLabelValues("publish_failed").Inc()
		return fmt.Errorf("publish message: %w", err)
	}
	observability.RealtimeEvents.WithLabelValues("published").Inc()
	return nil
}

// Subscribe opens the push channel for userID. Any subscription already held
// for the same user is torn down before the new one opens, so a user never
// has two live subscriptions.
func (b *Broker) Subscribe(ctx context.Context, userID string, handle Handler) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	previous := b.subs[userID]
	delete(b.subs, userID)
	b.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	sub := &Subscription{
		userID: userID,
		state:  StateOpening,
		done:   make(chan struct{}),
		log:    b.log.WithUserID(userID),
	}

	ps, err := b.client.Subscribe(ctx, b.Channel(userID))
	if err != nil {
		sub.setState(StateClosed)
		close(sub.done)
		return nil, fmt.Errorf("subscribe %s: %w", userID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub.cancel = cancel
	sub.closer = ps.Close
	sub.setState(StateActive)

	go sub.run(runCtx, ps.Channel(), handle)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Close()
		return nil, ErrClosed
	}
	// a concurrent Subscribe for the same user may have stored its own
	// subscription while this one was opening; the newest one wins
	raced := b.subs[userID]
	b.subs[userID] = sub
	b.mu.Unlock()

	if raced != nil {
		raced.Close()
	}

	sub.log.Debug("Realtime subscription active", "channel", b.Channel(userID))
	return sub, nil
}

// Unsubscribe tears down the subscription held for userID, if any
func (b *Broker) Unsubscribe(userID string) {
	b.mu.Lock()
	sub := b.subs[userID]
	delete(b.subs, userID)
	b.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Release tears down sub and forgets it if it is still the user's current
// subscription. A newer subscription for the same user is left alone.
func (b *Broker) Release(sub *Subscription) {
	b.mu.Lock()
	if b.subs[sub.userID] == sub {
		delete(b.subs, sub.userID)
	}
	b.mu.Unlock()

	sub.Close()
}

// Close tears down every subscription and refuses new ones
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
