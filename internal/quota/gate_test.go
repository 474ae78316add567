package quota

import (
	"context"
	"errors"
	"testing"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type stubTiers struct {
	tier string
	err  error
}

func (s stubTiers) Get(context.Context, string) (*models.Subscriber, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Subscriber{SubscriptionTier: s.tier}, nil
}

type stubCounter struct {
	count int64
	err   error
}

func (s stubCounter) CountByRole(context.Context, string, models.Role) (int64, error) {
	return s.count, s.err
}

func TestGate_FreeTierCeiling(t *testing.T) {
	ctx := context.Background()

	below := NewGate(stubTiers{tier: "free"}, stubCounter{count: 9}, 10, logger.Discard())
	assert.Equal(t, Decision{CanSend: true}, below.CanSend(ctx, "u1"))

	at := NewGate(stubTiers{tier: "free"}, stubCounter{count: 10}, 10, logger.Discard())
	assert.Equal(t, Decision{CanSend: false, ShouldShowUpgrade: true}, at.CanSend(ctx, "u1"))
}

func TestGate_PaidAlwaysPasses(t *testing.T) {
	g := NewGate(stubTiers{tier: "Pro"}, stubCounter{count: 500}, 10, logger.Discard())
	status := g.Status(context.Background(), "u1")
	assert.True(t, status.CanSend)
	assert.False(t, status.FreePlan)
}

func TestGate_RecordSentReachesCeiling(t *testing.T) {
	ctx := context.Background()
	g := NewGate(stubTiers{tier: "free"}, stubCounter{count: 9}, 10, logger.Discard())

	assert.True(t, g.CanSend(ctx, "u1").CanSend)
	g.RecordSent("u1")

	d := g.CanSend(ctx, "u1")
	assert.False(t, d.CanSend)
	assert.True(t, d.ShouldShowUpgrade)

	g.Forget("u1")
	assert.True(t, g.CanSend(ctx, "u1").CanSend, "re-sync reloads the stored count")
}

func TestGate_LookupFailuresDefaultToFreeAndZero(t *testing.T) {
	g := NewGate(stubTiers{err: errors.New("no row")}, stubCounter{err: errors.New("db down")}, 10, logger.Discard())

	status := g.Sync(context.Background(), "u1")
	assert.True(t, status.FreePlan)
	assert.Equal(t, int64(0), status.Count)
	assert.True(t, status.CanSend)
}
