package tilecache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const clearBatch = 500

// RedisBackend shares tiles across instances. Expiry is native (SET EX); every key carries
// the prefix so Clear never touches foreign data.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get reads the value and its remaining TTL in one round trip.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	pipe := r.client.Pipeline()
	get := pipe.Get(ctx, r.prefix+key)
	pttl := pipe.PTTL(ctx, r.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}
	b, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	// -1 (no expiry) and -2 (expired between the two commands) leave nothing to advertise
	return b, max(pttl.Val(), 0), true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Clear deletes every prefixed key with SCAN + DEL in batches; KEYS would block the server.
func (r *RedisBackend) Clear(ctx context.Context) (int, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", clearBatch).Iterator()
	deleted := 0
	batch := make([]string, 0, clearBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		deleted += int(n)
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= clearBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, flush()
}

func (r *RedisBackend) Close() error { return r.client.Close() }
