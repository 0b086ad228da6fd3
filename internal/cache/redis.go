// Package cache holds the Redis-backed caches used by the storefront.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GenerateKey(operation, key string) string
}

type redisCache struct {
	client      *redis.Client
	serviceName string
}

func NewRedisCache(client *redis.Client, serviceName string) Cache {
	return &redisCache{client: client, serviceName: serviceName}
}

func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get returns "" with no error for a missing key.
func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *redisCache) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}

// DefaultEventTTL covers the provider's redelivery window.
const DefaultEventTTL = 72 * time.Hour

// EventLog remembers webhook event ids that were fully processed.
type EventLog struct {
	cache Cache
	ttl   time.Duration
}

func NewEventLog(cache Cache, ttl time.Duration) *EventLog {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventLog{cache: cache, ttl: ttl}
}

func (l *EventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	val, err := l.cache.Get(ctx, l.cache.GenerateKey("webhook-event", eventID))
	if err != nil {
		return false, fmt.Errorf("lookup event %s: %w", eventID, err)
	}
	return val != "", nil
}

func (l *EventLog) Remember(ctx context.Context, eventID string) error {
	if err := l.cache.Set(ctx, l.cache.GenerateKey("webhook-event", eventID), "1", l.ttl); err != nil {
		return fmt.Errorf("remember event %s: %w", eventID, err)
	}
	return nil
}
