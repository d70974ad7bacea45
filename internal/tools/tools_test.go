package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/cache-replay/internal/replay"
	"github.com/leonardcser/cache-replay/internal/store"
	"github.com/leonardcser/cache-replay/internal/web"
)

type staticFetcher struct{ calls int }

func (f *staticFetcher) FetchText(context.Context, string) (string, error) {
	f.calls++
	return "<html><head><title>T</title></head><body><p>body</p></body></html>", nil
}

func newStore(t *testing.T) store.KV {
	t.Helper()
	kv, err := store.OpenBolt(filepath.Join(t.TempDir(), "tools.bbolt"), store.Options{})
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func call(t *testing.T, h handler, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned protocol error %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("result has %d content items", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text, res.IsError
}

func TestCacheTools(t *testing.T) {
	c, err := replay.New(context.Background(), newStore(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	storeH, getH := CacheStoreHandler(c), CacheGetHandler(c)

	key, isErr := call(t, storeH, map[string]any{"value": "42", "type": "int"})
	if isErr {
		t.Fatalf("cache-store failed: %s", key)
	}
	if got, _ := call(t, getH, map[string]any{"key": key, "as": "int"}); got != "42" {
		t.Errorf("cache-get int = %q, want 42", got)
	}
	if got, _ := call(t, getH, map[string]any{"key": key, "as": "raw"}); got != `"42"` {
		t.Errorf("cache-get raw = %q", got)
	}
	if got, _ := call(t, getH, map[string]any{"key": "nope"}); got != "not found" {
		t.Errorf("cache-get missing = %q, want not found", got)
	}

	word, _ := call(t, storeH, map[string]any{"value": "abc"})
	if got, isErr := call(t, getH, map[string]any{"key": word, "as": "int"}); !isErr {
		t.Errorf("cache-get int on text = %q, want error result", got)
	}

	if _, isErr := call(t, storeH, map[string]any{"value": "x", "type": "int"}); !isErr {
		t.Error("cache-store with bad int succeeded")
	}
	if _, isErr := call(t, storeH, map[string]any{}); !isErr {
		t.Error("cache-store without value succeeded")
	}

	replayed, _ := call(t, CacheReplayHandler(c), map[string]any{})
	lines := strings.Split(replayed, "\n")
	// The rejected "x" never reached Store, so two calls are recorded.
	if len(lines) != 3 || lines[0] != "Cache.store was called 2 times:" {
		t.Fatalf("cache-replay =\n%s", replayed)
	}
	if lines[1] != "Cache.store(*42) -> "+key {
		t.Errorf("replay line = %q", lines[1])
	}

	hist, _ := call(t, CacheHistoryHandler(c), map[string]any{"operation": replay.StoreOp})
	if !strings.Contains(hist, "1. 42\n") || !strings.Contains(hist, "2. "+word+"\n") {
		t.Errorf("cache-history =\n%s", hist)
	}
}

func TestPageTools(t *testing.T) {
	f := &staticFetcher{}
	pages := web.NewPageCache(newStore(t), f)

	raw, isErr := call(t, PageFetchHandler(pages), map[string]any{"url": "http://p"})
	if isErr || !strings.Contains(raw, "<title>T</title>") {
		t.Errorf("page-fetch raw = %q", raw)
	}
	md, isErr := call(t, PageFetchHandler(pages), map[string]any{"url": "http://p", "format": "markdown"})
	if isErr || !strings.HasPrefix(md, "# T\n\n") || !strings.Contains(md, "body") {
		t.Errorf("page-fetch markdown = %q", md)
	}
	if f.calls != 1 {
		t.Errorf("network calls = %d, want 1", f.calls)
	}
	if got, _ := call(t, PageCountHandler(pages), map[string]any{"url": "http://p"}); got != "2" {
		t.Errorf("page-count = %q, want 2", got)
	}
	if _, isErr := call(t, PageFetchHandler(pages), map[string]any{}); !isErr {
		t.Error("page-fetch without url succeeded")
	}
}
