package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const completedKeyPrefix = "analysis:completed:"

// RedisClient remembers which messages already had their result persisted,
// so a redelivery caused by a failed delete is acknowledged without
// running the pipeline again.
type RedisClient interface {
	IsCompleted(ctx context.Context, messageID string) (bool, error)
	MarkCompleted(ctx context.Context, messageID string) error
}

type redisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(url string, ttl time.Duration) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &redisClient{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (r *redisClient) IsCompleted(ctx context.Context, messageID string) (bool, error) {
	n, err := r.client.Exists(ctx, completedKeyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failure: %w", err)
	}
	return n > 0, nil
}

func (r *redisClient) MarkCompleted(ctx context.Context, messageID string) error {
	if err := r.client.Set(ctx, completedKeyPrefix+messageID, "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}
