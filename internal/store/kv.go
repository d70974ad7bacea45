package store

import (
	"context"
	"errors"
	"time"
)

// KV is the backing key-value contract the cache layers are built on.
// Every single operation is atomic at the store; nothing spans operations.
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	Set(ctx context.Context, key string, value []byte) error
	// SetEx stores value with a time-to-live. ttl <= 0 means no expiry.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Incr adds one to the integer stored at key, starting from zero.
	Incr(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	// LRange returns elements start..stop inclusive; negative indexes count
	// from the end of the list.
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	FlushAll(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound   = errors.New("store: not found")
	ErrWrongType  = errors.New("store: wrong type")
	ErrNotInteger = errors.New("store: value is not an integer")
)

// rangeBounds clamps redis-style inclusive indexes to [0, n).
// ok is false when the range selects nothing.
func rangeBounds(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
