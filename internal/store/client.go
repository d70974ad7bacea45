package store

import (
	"context"
	"encoding/json"
	"net"
	"time"
)

// Client implements KV over the daemon's Unix socket.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: 500 * time.Millisecond}
}

// Probe reports whether a daemon is accepting connections at socketPath.
func Probe(socketPath string) error {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	var resp Response
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return resp, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return resp, err
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, err
	}
	if !resp.OK {
		return resp, decodeError(resp.Error)
	}
	return resp, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.do(ctx, Request{Op: "set", Key: key, Value: value})
	return err
}

func (c *Client) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.do(ctx, Request{Op: "setex", Key: key, Value: value, TTLMillis: ttlMillis(ttl)})
	return err
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.do(ctx, Request{Op: "get", Key: key})
	if err != nil {
		return nil, err
	}
	return append([]byte{}, resp.Value...), nil
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	resp, err := c.do(ctx, Request{Op: "incr", Key: key})
	return resp.Int, err
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := c.do(ctx, Request{Op: "exists", Key: key})
	return resp.Found, err
}

func (c *Client) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	resp, err := c.do(ctx, Request{Op: "rpush", Key: key, Values: values})
	return resp.Int, err
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	resp, err := c.do(ctx, Request{Op: "lrange", Key: key, Start: start, Stop: stop})
	if err != nil {
		return nil, err
	}
	if resp.Values == nil {
		return [][]byte{}, nil
	}
	return resp.Values, nil
}

func (c *Client) FlushAll(ctx context.Context) error {
	_, err := c.do(ctx, Request{Op: "flush"})
	return err
}

// Close is a no-op; connections are per call.
func (c *Client) Close() error { return nil }

// ttlMillis rounds ttl up to whole milliseconds; ttl <= 0 stays 0 (no expiry).
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}
