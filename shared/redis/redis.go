package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Nil is returned by Get when the key does not exist
const Nil = redis.Nil

type RedisClient struct {
	client *redis.Client
}

// Options configures the connection. Zero values fall back to a local server.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(opts Options) *RedisClient {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisClient{client: client}
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisClient) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Publish(ctx context.Context, channel string, payload interface{}) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription and waits for the server to confirm it
func (r *RedisClient) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
