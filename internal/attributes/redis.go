package attributes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvider keeps bags in Redis hashes so any instance can read them.
type RedisProvider struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisProvider returns a provider whose bags expire ttl after the last write.
func NewRedisProvider(rdb *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{rdb: rdb, ttl: ttl}
}

func connKey(id string) string { return fmt.Sprintf("ws:conn:%s", id) }

// Bag returns a handle on connID's hash.
func (p *RedisProvider) Bag(connID string) Bag {
	return &redisBag{p: p, key: connKey(connID)}
}

type redisBag struct {
	p   *RedisProvider
	key string
}

func (b *redisBag) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := b.p.rdb.HGet(ctx, b.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *redisBag) Set(ctx context.Context, field, value string) error {
	pipe := b.p.rdb.TxPipeline()
	pipe.HSet(ctx, b.key, field, value)
	pipe.Expire(ctx, b.key, b.p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *redisBag) Clear(ctx context.Context) error {
	return b.p.rdb.Del(ctx, b.key).Err()
}
