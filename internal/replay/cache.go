// Package replay is a thin instrumentation layer over a store.KV: it stores
// scalar values under generated keys, reads them back with optional
// conversion, counts calls per operation and records their inputs and
// outputs so they can be replayed.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/leonardcser/cache-replay/internal/logger"
	"github.com/leonardcser/cache-replay/internal/store"
)

// StoreOp is the operation name Store's calls are counted and recorded under.
const StoreOp = "Cache.store"

// Cache stores values in a store.KV. It holds no state besides the store
// handle and is safe for concurrent use to the extent the store is.
type Cache struct {
	kv  store.KV
	mws []Middleware
}

// Option configures a Cache built by New.
type Option func(*Cache)

// WithMiddleware replaces the default CountCalls, CallHistory pipeline that
// wraps Store. Passing none disables instrumentation.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Cache) { c.mws = mws }
}

// New flushes kv so the cache starts from an empty namespace.
func New(ctx context.Context, kv store.KV, opts ...Option) (*Cache, error) {
	c := &Cache{kv: kv}
	c.mws = []Middleware{CountCalls(kv), CallHistory(kv)}
	for _, opt := range opts {
		opt(c)
	}
	if err := kv.FlushAll(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Store writes v under a freshly generated key and returns the key.
func (c *Cache) Store(ctx context.Context, v Value) (string, error) {
	set := func(ctx context.Context, _ string) (string, error) {
		key := uuid.NewString()
		if err := c.kv.Set(ctx, key, v.Encode()); err != nil {
			return "", err
		}
		return key, nil
	}
	key, err := Chain(StoreOp, set, c.mws...)(ctx, v.Repr())
	if err != nil {
		return "", err
	}
	logger.Debugf("stored %s", key)
	return key, nil
}

// Converter turns raw stored bytes into a typed value.
type Converter func([]byte) (any, error)

// Get returns the raw bytes stored at key, or conv applied to them when conv
// is not nil. An absent key yields ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string, conv Converter) (any, error) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conv == nil {
		return raw, nil
	}
	return conv(raw)
}

// GetAs reads key and converts it with conv. ok is false when the key is
// absent; err is only set for store or conversion failures.
func GetAs[T any](ctx context.Context, c *Cache, key string, conv func([]byte) (T, error)) (T, bool, error) {
	var zero T
	v, err := c.Get(ctx, key, func(b []byte) (any, error) { return conv(b) })
	if errors.Is(err, ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v.(T), true, nil
}

// GetText reads key as UTF-8 text.
func (c *Cache) GetText(ctx context.Context, key string) (string, bool, error) {
	return GetAs(ctx, c, key, func(b []byte) (string, error) {
		if !utf8.Valid(b) {
			return "", &ParseError{Key: key, Kind: "text", Err: errors.New("invalid utf-8")}
		}
		return string(b), nil
	})
}

// GetInt reads key as a base-10 integer.
func (c *Cache) GetInt(ctx context.Context, key string) (int64, bool, error) {
	return GetAs(ctx, c, key, func(b []byte) (int64, error) {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, &ParseError{Key: key, Kind: "integer", Err: err}
		}
		return n, nil
	})
}

// GetFloat reads key as a decimal floating-point number.
func (c *Cache) GetFloat(ctx context.Context, key string) (float64, bool, error) {
	return GetAs(ctx, c, key, func(b []byte) (float64, error) {
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return 0, &ParseError{Key: key, Kind: "float", Err: err}
		}
		return f, nil
	})
}

// History holds the recorded calls of one operation, index-aligned.
type History struct {
	Inputs  []string
	Outputs []string
}

// History returns every recorded input and output of the named operation in
// call order. Both are empty if the operation was never recorded.
func (c *Cache) History(ctx context.Context, name string) (History, error) {
	in, err := c.kv.LRange(ctx, inputsKey(name), 0, -1)
	if err != nil {
		return History{}, err
	}
	out, err := c.kv.LRange(ctx, outputsKey(name), 0, -1)
	if err != nil {
		return History{}, err
	}
	return History{Inputs: toStrings(in), Outputs: toStrings(out)}, nil
}

// Calls returns the call counter of the named operation, 0 if never counted.
func (c *Cache) Calls(ctx context.Context, name string) (int64, error) {
	raw, err := c.kv.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, &ParseError{Key: name, Kind: "integer", Err: err}
	}
	return n, nil
}

// Operation names a recorded operation on a cache.
type Operation struct {
	Owner *Cache
	Name  string
}

// Op returns the descriptor for the named operation on c.
func (c *Cache) Op(name string) Operation { return Operation{Owner: c, Name: name} }

// Replay writes a summary line followed by one line per recorded call of op.
// The summary count is the call counter, which can differ from the number of
// recorded pairs when counting and history are configured independently.
func Replay(ctx context.Context, w io.Writer, op Operation) error {
	if op.Owner == nil {
		return errors.New("replay: operation has no owner")
	}
	count, err := op.Owner.Calls(ctx, op.Name)
	if err != nil {
		return err
	}
	h, err := op.Owner.History(ctx, op.Name)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s was called %d times:\n", op.Name, count); err != nil {
		return err
	}
	n := min(len(h.Inputs), len(h.Outputs))
	for i := 0; i < n; i++ {
		if _, err := fmt.Fprintf(w, "%s(*%s) -> %s\n", op.Name, h.Inputs[i], h.Outputs[i]); err != nil {
			return err
		}
	}
	return nil
}

func toStrings(items [][]byte) []string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = string(b)
	}
	return out
}
