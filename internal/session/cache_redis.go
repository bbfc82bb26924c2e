package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ticketeer/internal/platform/redis"
)

const cacheKeyPrefix = "ticketeer:session:"

// RedisCache shares the session cache across processes. Redis expiry
// replaces the lazy-eviction path; Reset still clears eagerly so rotation
// takes effect everywhere at once.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, tokenHash string) (*Session, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+tokenHash).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session cache get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt entry is a miss, not a failure; the store is the
		// source of truth.
		return nil, false, nil
	}
	return &sess, true, nil
}

func (c *RedisCache) Put(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+sess.TokenHash, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("session cache put: %w", err)
	}
	return nil
}

func (c *RedisCache) Evict(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, cacheKeyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("session cache evict: %w", err)
	}
	return nil
}

func (c *RedisCache) Reset(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("session cache reset: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("session cache reset scan: %w", err)
	}
	return nil
}
