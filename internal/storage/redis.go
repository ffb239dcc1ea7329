package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
}

type redisClient interface {
	cmdable
	Close() error
}

// newRedisClient is swapped in tests.
var newRedisClient = func(opts *redis.Options) redisClient {
	return redis.NewClient(opts)
}

// Redis keeps blobs in Redis under a namespaced key. Values never expire.
type Redis struct {
	store  cmdable
	raw    redisClient
	prefix string
}

// NewRedis connects using a redis:// URL and verifies connectivity. The
// client is closed again if the first ping fails.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := newRedisClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{store: raw, raw: raw, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if r.store == nil {
		return nil, errors.New("redis client not initialized")
	}
	v, err := r.store.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if r.store == nil {
		return errors.New("redis client not initialized")
	}
	return r.store.Set(ctx, r.key(key), value, 0).Err()
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if r.store == nil {
		return errors.New("redis client not initialized")
	}
	return r.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (r *Redis) Close() error {
	if r.raw == nil {
		return nil
	}
	return r.raw.Close()
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return strings.TrimSuffix(r.prefix, ":") + ":" + key
}
