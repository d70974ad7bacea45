package replay

import (
	"context"

	"github.com/leonardcser/cache-replay/internal/store"
)

// Invoker runs one call of a named operation. args is the input
// representation recorded in history; the returned string is the output
// representation.
type Invoker func(ctx context.Context, args string) (string, error)

// Middleware wraps an invoker for the operation called name.
type Middleware func(name string, next Invoker) Invoker

// Chain composes mws around inv. The first middleware runs outermost.
func Chain(name string, inv Invoker, mws ...Middleware) Invoker {
	for i := len(mws) - 1; i >= 0; i-- {
		inv = mws[i](name, inv)
	}
	return inv
}

func inputsKey(name string) string  { return name + ":inputs" }
func outputsKey(name string) string { return name + ":outputs" }

// CountCalls increments the counter stored under the operation name before
// every call. A failed increment aborts the call.
func CountCalls(kv store.KV) Middleware {
	return func(name string, next Invoker) Invoker {
		return func(ctx context.Context, args string) (string, error) {
			if _, err := kv.Incr(ctx, name); err != nil {
				return "", err
			}
			return next(ctx, args)
		}
	}
}

// CallHistory appends args to "<name>:inputs" before the call and the result
// to "<name>:outputs" after it. A failed call records "error: <msg>" so both
// lists stay index-aligned, and the call's error is returned unchanged.
func CallHistory(kv store.KV) Middleware {
	return func(name string, next Invoker) Invoker {
		return func(ctx context.Context, args string) (string, error) {
			if _, err := kv.RPush(ctx, inputsKey(name), []byte(args)); err != nil {
				return "", err
			}
			out, callErr := next(ctx, args)
			rec := out
			if callErr != nil {
				rec = "error: " + callErr.Error()
			}
			if _, err := kv.RPush(ctx, outputsKey(name), []byte(rec)); err != nil && callErr == nil {
				return out, err
			}
			return out, callErr
		}
	}
}
