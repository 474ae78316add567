package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/observability"

	goredis "github.com/redis/go-redis/v9"
)

// Subscription is one user's open push channel
type Subscription struct {
	userID string
	log    *logger.Logger

	mu    sync.Mutex
	state State

	cancel    context.CancelFunc
	closer    func() error
	done      chan struct{}
	closeOnce sync.Once
}

// UserID returns the subscribed user
func (s *Subscription) UserID() string {
	return s.userID
}

// State returns the current lifecycle state
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscription) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Done is closed once the delivery goroutine has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and waits for the delivery goroutine to exit
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.closer != nil {
			if err := s.closer(); err != nil {
				s.log.Debug("Closing pub/sub connection", "error", err.Error())
			}
		}
	})
	<-s.done
	s.setState(StateClosed)
}

func (s *Subscription) run(ctx context.Context, messages <-chan *goredis.Message, handle Handler) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				observability.RealtimeEvents.WithLabelValues("decode_failed").Inc()
				s.log.LogError(err, "Dropping undecodable realtime message", "channel", m.Channel)
				continue
			}
			if msg.UserID != s.userID {
				observability.RealtimeEvents.WithLabelValues("foreign").Inc()
				continue
			}
			observability.RealtimeEvents.WithLabelValues("delivered").Inc()
			handle(msg)
		}
	}
}
