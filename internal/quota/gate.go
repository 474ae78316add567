// Package quota decides whether a user may send another message.
package quota

import (
	"context"
	"sync"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"
)

// TierSource looks up the plan a user is on
type TierSource interface {
	Get(ctx context.Context, userID string) (*models.Subscriber, error)
}

// MessageCounter counts a user's messages by author role
type MessageCounter interface {
	CountByRole(ctx context.Context, userID string, role models.Role) (int64, error)
}

// Decision is the answer to "may this user send now"
type Decision struct {
	CanSend           bool `json:"canSend"`
	ShouldShowUpgrade bool `json:"shouldShowUpgrade"`
}

// Status is the full quota picture for one user
type Status struct {
	Decision
	Count    int64 `json:"count"`
	Limit    int   `json:"limit"`
	FreePlan bool  `json:"freePlan"`
}

type userState struct {
	free  bool
	count int64
}

// Gate keeps per-user quota state. State is loaded from the store on first
// use or on Sync and incremented locally after each persisted send.
type Gate struct {
	tiers   TierSource
	counter MessageCounter
	limit   int
	log     *logger.Logger

	mu    sync.Mutex
	users map[string]*userState
}

func NewGate(tiers TierSource, counter MessageCounter, limit int, log *logger.Logger) *Gate {
	return &Gate{
		tiers:   tiers,
		counter: counter,
		limit:   limit,
		log:     log,
		users:   make(map[string]*userState),
	}
}

// Sync reloads the plan tier and historical user-message count. A tier lookup
// failure is treated as the free plan and a count failure as zero.
func (g *Gate) Sync(ctx context.Context, userID string) Status {
	st := &userState{free: true}

	sub, err := g.tiers.Get(ctx, userID)
	if err != nil {
		g.log.Debug("Plan tier unavailable, assuming free", "user_id", userID, "error", err.Error())
	} else {
		st.free = sub.IsFree()
	}

	count, err := g.counter.CountByRole(ctx, userID, models.RoleUser)
	if err != nil {
		g.log.LogError(err, "Failed to count user messages", "user_id", userID)
		count = 0
	}
	st.count = count

	g.mu.Lock()
	g.users[userID] = st
	g.mu.Unlock()

	return g.status(st)
}

// CanSend reports whether userID may send another message
func (g *Gate) CanSend(ctx context.Context, userID string) Decision {
	return g.Status(ctx, userID).Decision
}

// Status returns the quota picture, syncing first if the user is unknown
func (g *Gate) Status(ctx context.Context, userID string) Status {
	g.mu.Lock()
	st, ok := g.users[userID]
	var snapshot userState
	if ok {
		snapshot = *st
	}
	g.mu.Unlock()

	if !ok {
		return g.Sync(ctx, userID)
	}
	return g.status(&snapshot)
}

// RecordSent increments the local count after a successful persisted send
func (g *Gate) RecordSent(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.users[userID]; ok {
		st.count++
	}
}

// Forget drops cached state so the next check re-syncs from the store
func (g *Gate) Forget(userID string) {
	g.mu.Lock()
	delete(g.users, userID)
	g.mu.Unlock()
}

func (g *Gate) status(st *userState) Status {
	out := Status{Count: st.count, Limit: g.limit, FreePlan: st.free}
	if !st.free {
		out.Decision = Decision{CanSend: true}
		return out
	}
	if st.count >= int64(g.limit) {
		out.Decision = Decision{CanSend: false, ShouldShowUpgrade: true}
		return out
	}
	out.Decision = Decision{CanSend: true}
	return out
}
