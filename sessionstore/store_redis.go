package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/ops-portal/internal/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ops-portal:scope:"

// RedisStore keeps each scope in one Redis hash so several portal instances can serve
// the same browser session. Every access slides the hash's expiry forward by ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", apperrors.ErrStoreUnavailable, err)
	}
	return client, nil
}

func (s *RedisStore) Scope(id string) Scope {
	return &redisScope{store: s, id: id, key: redisKeyPrefix + id}
}

// Health checks the Redis connection.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type redisScope struct {
	store *RedisStore
	id    string
	key   string
}

func (r *redisScope) ID() string {
	return r.id
}

func (r *redisScope) Get(ctx context.Context, key string, dst any) (bool, error) {
	if r.id == "" {
		return false, apperrors.ErrInvalidScope
	}
	if key == "" {
		return false, apperrors.ErrInvalidKey
	}

	raw, err := r.store.client.HGet(ctx, r.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("hget", err)
	}
	r.touch(ctx)

	if err := decode(key, raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (r *redisScope) Set(ctx context.Context, key string, value any) error {
	return r.Update(ctx, map[string]any{key: value})
}

// Update runs as one MULTI/EXEC transaction.
func (r *redisScope) Update(ctx context.Context, set map[string]any, del ...string) error {
	if r.id == "" {
		return apperrors.ErrInvalidScope
	}
	encoded, err := encodeAll(set)
	if err != nil {
		return err
	}
	if len(encoded) == 0 && len(del) == 0 {
		return nil
	}

	fields := make(map[string]any, len(encoded))
	for key, raw := range encoded {
		fields[key] = raw
	}
	_, err = r.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(del) > 0 {
			pipe.HDel(ctx, r.key, del...)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, r.key, fields)
			if r.store.ttl > 0 {
				pipe.Expire(ctx, r.key, r.store.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("update", err)
	}
	return nil
}

func (r *redisScope) Delete(ctx context.Context, keys ...string) error {
	if r.id == "" {
		return apperrors.ErrInvalidScope
	}
	if len(keys) == 0 {
		return nil
	}
	// Redis drops the hash itself once its last field is gone.
	if err := r.store.client.HDel(ctx, r.key, keys...).Err(); err != nil {
		return unavailable("hdel", err)
	}
	return nil
}

func (r *redisScope) Clear(ctx context.Context) error {
	if r.id == "" {
		return apperrors.ErrInvalidScope
	}
	if err := r.store.client.Del(ctx, r.key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// touch slides the expiry; failures are ignored.
func (r *redisScope) touch(ctx context.Context) {
	if r.store.ttl > 0 {
		_ = r.store.client.Expire(ctx, r.key, r.store.ttl).Err()
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrStoreUnavailable, op, err)
}
