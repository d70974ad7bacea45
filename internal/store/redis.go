package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis adapts a go-redis client to KV.
type Redis struct {
	rdb redis.UniversalClient
}

// NewRedis wraps an existing client. Close closes the client.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

// DialRedis connects to a single Redis server and pings it.
func DialRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedis(rdb), nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return mapRedisErr(r.rdb.Set(ctx, key, value, 0).Err())
}

func (r *Redis) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Set(ctx, key, value)
	}
	return mapRedisErr(r.rdb.Set(ctx, key, value, ttl).Err())
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, mapRedisErr(err)
	}
	return v, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Incr(ctx, key).Result()
	return n, mapRedisErr(err)
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, mapRedisErr(err)
	}
	return n > 0, nil
}

func (r *Redis) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := r.rdb.RPush(ctx, key, args...).Result()
	return n, mapRedisErr(err)
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := r.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, mapRedisErr(err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// FlushAll clears the selected database only, like the FLUSHDB it issues.
func (r *Redis) FlushAll(ctx context.Context) error {
	return mapRedisErr(r.rdb.FlushDB(ctx).Err())
}

func mapRedisErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case strings.HasPrefix(err.Error(), "WRONGTYPE"):
		return ErrWrongType
	case strings.Contains(err.Error(), "not an integer"):
		return ErrNotInteger
	}
	return err
}
