package assembler

import (
	"context"
	"errors"
	"sync"
	"time"

	"ad-assistant/backend/pkg/cache"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/redis"
)

const mentionKeyPrefix = "last_mentioned_campaign:"

// MentionSource is the durable fallback for the last referenced campaign
type MentionSource interface {
	LatestMentionedCampaign(ctx context.Context, userID string) (string, error)
}

// MentionStore remembers the campaign each user referenced last. Reads go
// through the local cache, then redis, then the conversation memory table,
// warming the faster layers on the way back.
type MentionStore struct {
	local   *cache.Cache[string]
	redis   *redis.RedisClient
	source  MentionSource
	ttl     time.Duration
	timeout time.Duration
	log     *logger.Logger

	wg sync.WaitGroup
}

// NewMentionStore creates a store. redis may be nil to skip that layer.
func NewMentionStore(local *cache.Cache[string], rdb *redis.RedisClient, source MentionSource, ttl time.Duration, log *logger.Logger) *MentionStore {
	return &MentionStore{
		local:   local,
		redis:   rdb,
		source:  source,
		ttl:     ttl,
		timeout: 5 * time.Second,
		log:     log,
	}
}

func mentionKey(userID string) string {
	return mentionKeyPrefix + userID
}

// Get returns the last referenced campaign id for userID
func (s *MentionStore) Get(ctx context.Context, userID string) (string, bool) {
	key := mentionKey(userID)

	if id, ok := s.local.Get(key); ok && id != "" {
		return id, true
	}

	if s.redis != nil {
		id, err := s.redis.Get(ctx, key)
		switch {
		case err == nil && id != "":
			s.local.Set(key, id)
			return id, true
		case err != nil && !errors.Is(err, redis.Nil):
			s.log.LogError(err, "Failed to read last mentioned campaign from redis", "user_id", userID)
		}
	}

	id, err := s.source.LatestMentionedCampaign(ctx, userID)
	if err != nil || id == "" {
		return "", false
	}
	s.local.Set(key, id)
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, id, s.ttl); err != nil {
			s.log.LogError(err, "Failed to warm last mentioned campaign", "user_id", userID)
		}
	}
	return id, true
}

// set records campaignID synchronously in every fast layer
func (s *MentionStore) set(ctx context.Context, userID, campaignID string) error {
	key := mentionKey(userID)
	s.local.Set(key, campaignID)
	if s.redis == nil {
		return nil
	}
	return s.redis.Set(ctx, key, campaignID, s.ttl)
}

// Remember records campaignID without blocking the caller
func (s *MentionStore) Remember(userID, campaignID string) {
	s.local.Set(mentionKey(userID), campaignID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.set(ctx, userID, campaignID); err != nil {
			s.log.LogError(err, "Failed to persist last mentioned campaign", "user_id", userID, "campaign_id", campaignID)
		}
	}()
}

// Wait blocks until every pending Remember has finished
func (s *MentionStore) Wait() {
	s.wg.Wait()
}
