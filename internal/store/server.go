package store

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/leonardcser/cache-replay/internal/logger"
)

// Serve answers protocol requests against kv for every connection accepted
// on l. It returns when l is closed or ctx is done.
func Serve(ctx context.Context, l net.Listener, kv KV) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warnf("accept: %v", err)
			continue
		}
		go handleConn(ctx, conn, kv)
	}
}

func handleConn(ctx context.Context, conn net.Conn, kv KV) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(dispatch(ctx, kv, req))
	}
}

func dispatch(ctx context.Context, kv KV, req Request) Response {
	var (
		resp Response
		err  error
	)
	switch req.Op {
	case "get":
		resp.Value, err = kv.Get(ctx, req.Key)
	case "set":
		err = kv.Set(ctx, req.Key, req.Value)
	case "setex":
		err = kv.SetEx(ctx, req.Key, req.Value, time.Duration(req.TTLMillis)*time.Millisecond)
	case "incr":
		resp.Int, err = kv.Incr(ctx, req.Key)
	case "exists":
		resp.Found, err = kv.Exists(ctx, req.Key)
	case "rpush":
		resp.Int, err = kv.RPush(ctx, req.Key, req.Values...)
	case "lrange":
		resp.Values, err = kv.LRange(ctx, req.Key, req.Start, req.Stop)
	case "flush":
		err = kv.FlushAll(ctx)
	default:
		err = errors.New("unknown op")
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warnf("%s %q: %v", req.Op, req.Key, err)
		}
		return Response{OK: false, Error: err.Error()}
	}
	resp.OK = true
	return resp
}
