package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultEventTTL is how long a webhook event id stays marked as seen.
// Gateways stop retrying deliveries well inside this window.
const DefaultEventTTL = 24 * time.Hour

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// EventCache records webhook event ids in Redis so replayed deliveries can
// be short-circuited. SETNX makes the first writer win; the database
// check-and-set remains the correctness guard if Redis loses the key.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEventCache creates an event cache. ttl <= 0 falls back to
// DefaultEventTTL.
func NewEventCache(client *redis.Client, ttl time.Duration) *EventCache {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventCache{client: client, ttl: ttl}
}

// MarkSeen records eventID and reports true when it was not seen before.
func (c *EventCache) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	key := "webhook:event:" + eventID
	fresh, err := c.client.SetNX(ctx, key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return fresh, nil
}

// Ping checks Redis connectivity.
func (c *EventCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
