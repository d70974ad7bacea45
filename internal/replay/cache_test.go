package replay_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/leonardcser/cache-replay/internal/replay"
	"github.com/leonardcser/cache-replay/internal/store"
)

func openStore(t *testing.T) *store.Bolt {
	t.Helper()
	kv, err := store.OpenBolt(filepath.Join(t.TempDir(), "replay.bbolt"), store.Options{})
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func newCache(t *testing.T, opts ...replay.Option) *replay.Cache {
	t.Helper()
	c, err := replay.New(context.Background(), openStore(t), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// failingSet rejects every Set with errSet and passes everything else through.
type failingSet struct {
	store.KV
}

var errSet = errors.New("write rejected")

func (f failingSet) Set(context.Context, string, []byte) error { return errSet }

func TestNew_FlushesStore(t *testing.T) {
	ctx := context.Background()
	kv := openStore(t)
	if err := kv.Set(ctx, "leftover", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := replay.New(ctx, kv); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ok, _ := kv.Exists(ctx, "leftover"); ok {
		t.Error("leftover key survived New()")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	t.Run("text", func(t *testing.T) {
		key, err := c.Store(ctx, replay.Text("foo"))
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		got, ok, err := c.GetText(ctx, key)
		if err != nil || !ok || got != "foo" {
			t.Errorf("GetText() = %q, %v, %v, want \"foo\"", got, ok, err)
		}
	})

	t.Run("bytes", func(t *testing.T) {
		want := []byte{0xde, 0xad, 0xbe, 0xef}
		key, err := c.Store(ctx, replay.Bytes(want))
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		got, err := c.Get(ctx, key, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !bytes.Equal(got.([]byte), want) {
			t.Errorf("Get() = %v, want %v", got, want)
		}
	})

	t.Run("int", func(t *testing.T) {
		for _, want := range []int64{0, 42, -7, 1 << 62} {
			key, err := c.Store(ctx, replay.Int(want))
			if err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			got, ok, err := c.GetInt(ctx, key)
			if err != nil || !ok || got != want {
				t.Errorf("GetInt() = %d, %v, %v, want %d", got, ok, err, want)
			}
		}
	})

	t.Run("float", func(t *testing.T) {
		for _, want := range []float64{3.14, -0.5, 1e300, 0.1 + 0.2} {
			key, err := c.Store(ctx, replay.Float(want))
			if err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			got, ok, err := c.GetFloat(ctx, key)
			if err != nil || !ok || got != want {
				t.Errorf("GetFloat() = %v, %v, %v, want %v", got, ok, err, want)
			}
		}
	})
}

func TestStore_KeyIsUUID(t *testing.T) {
	c := newCache(t)
	key, err := c.Store(context.Background(), replay.Text("x"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := uuid.Parse(key); err != nil {
		t.Errorf("key %q is not a UUID: %v", key, err)
	}
	other, _ := c.Store(context.Background(), replay.Text("x"))
	if other == key {
		t.Error("two Store() calls returned the same key")
	}
}

func TestGet_Absent(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	if _, err := c.Get(ctx, "never-written", nil); !errors.Is(err, replay.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	s, ok, err := c.GetText(ctx, "never-written")
	if err != nil || ok || s != "" {
		t.Errorf("GetText() = %q, %v, %v, want absent", s, ok, err)
	}

	// Present but falsy values are not absent.
	key, _ := c.Store(ctx, replay.Int(0))
	n, ok, err := c.GetInt(ctx, key)
	if err != nil || !ok || n != 0 {
		t.Errorf("GetInt(0) = %d, %v, %v, want 0 present", n, ok, err)
	}
}

func TestGet_Converter(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	key, _ := c.Store(ctx, replay.Text("hello"))

	got, err := c.Get(ctx, key, func(b []byte) (any, error) { return strings.ToUpper(string(b)), nil })
	if err != nil || got != "HELLO" {
		t.Errorf("Get() = %v, %v, want HELLO", got, err)
	}

	boom := errors.New("boom")
	if _, err := c.Get(ctx, key, func([]byte) (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Get() error = %v, want converter error", err)
	}
}

func TestGetInt_ParseError(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	key, _ := c.Store(ctx, replay.Text("42"))
	n, ok, err := c.GetInt(ctx, key)
	if err != nil || !ok || n != 42 {
		t.Errorf("GetInt(\"42\") = %d, %v, %v, want 42", n, ok, err)
	}

	key, _ = c.Store(ctx, replay.Text("abc"))
	_, _, err = c.GetInt(ctx, key)
	var pe *replay.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("GetInt(\"abc\") error = %v, want *ParseError", err)
	}
	if pe.Key != key || pe.Kind != "integer" {
		t.Errorf("ParseError = %+v", pe)
	}
}

func TestGetText_InvalidUTF8(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	key, _ := c.Store(ctx, replay.Bytes{0xff, 0xfe})
	var pe *replay.ParseError
	if _, _, err := c.GetText(ctx, key); !errors.As(err, &pe) {
		t.Errorf("GetText() error = %v, want *ParseError", err)
	}
}

func TestStore_CountsCalls(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	const n = 5
	for i := 0; i < n; i++ {
		if _, err := c.Store(ctx, replay.Int(int64(i))); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	got, err := c.Calls(ctx, replay.StoreOp)
	if err != nil || got != n {
		t.Errorf("Calls() = %d, %v, want %d", got, err, n)
	}
}

func TestHistory_Aligned(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	inputs := []replay.Value{replay.Text("first"), replay.Int(2), replay.Float(3.5)}
	var keys []string
	for _, v := range inputs {
		key, err := c.Store(ctx, v)
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		keys = append(keys, key)
	}

	h, err := c.History(ctx, replay.StoreOp)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(h.Inputs) != len(inputs) || len(h.Outputs) != len(inputs) {
		t.Fatalf("History() lengths = %d/%d, want %d", len(h.Inputs), len(h.Outputs), len(inputs))
	}
	for i, v := range inputs {
		if h.Inputs[i] != v.Repr() {
			t.Errorf("Inputs[%d] = %q, want %q", i, h.Inputs[i], v.Repr())
		}
		if h.Outputs[i] != keys[i] {
			t.Errorf("Outputs[%d] = %q, want %q", i, h.Outputs[i], keys[i])
		}
	}
}

func TestHistory_NeverCalled(t *testing.T) {
	c := newCache(t)
	h, err := c.History(context.Background(), "Cache.nothing")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(h.Inputs) != 0 || len(h.Outputs) != 0 {
		t.Errorf("History() = %+v, want empty", h)
	}
}

func TestStore_FailurePropagatesAndIsRecorded(t *testing.T) {
	ctx := context.Background()
	kv := failingSet{KV: openStore(t)}
	c, err := replay.New(ctx, kv)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Store(ctx, replay.Text("lost")); !errors.Is(err, errSet) {
		t.Fatalf("Store() error = %v, want %v", err, errSet)
	}
	h, err := c.History(ctx, replay.StoreOp)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(h.Inputs) != 1 || len(h.Outputs) != 1 {
		t.Fatalf("History() = %+v, want one aligned pair", h)
	}
	if h.Outputs[0] != "error: write rejected" {
		t.Errorf("Outputs[0] = %q", h.Outputs[0])
	}
	if n, _ := c.Calls(ctx, replay.StoreOp); n != 1 {
		t.Errorf("Calls() = %d, want 1", n)
	}
}

func TestReplay_Format(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	k1, _ := c.Store(ctx, replay.Text("foo"))
	k2, _ := c.Store(ctx, replay.Text("bar"))
	k3, _ := c.Store(ctx, replay.Int(42))

	var buf bytes.Buffer
	if err := replay.Replay(ctx, &buf, c.Op(replay.StoreOp)); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	want := strings.Join([]string{
		"Cache.store was called 3 times:",
		fmt.Sprintf("Cache.store(*foo) -> %s", k1),
		fmt.Sprintf("Cache.store(*bar) -> %s", k2),
		fmt.Sprintf("Cache.store(*42) -> %s", k3),
	}, "\n") + "\n"
	if buf.String() != want {
		t.Errorf("Replay() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestReplay_CountFromCounter(t *testing.T) {
	ctx := context.Background()
	kv := openStore(t)
	// Counting only: the summary reports calls, no pairs are recorded.
	c, err := replay.New(ctx, kv, replay.WithMiddleware(replay.CountCalls(kv)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Store(ctx, replay.Int(int64(i))); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := replay.Replay(ctx, &buf, c.Op(replay.StoreOp)); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if got := buf.String(); got != "Cache.store was called 2 times:\n" {
		t.Errorf("Replay() = %q", got)
	}
}

func TestReplay_NoOwner(t *testing.T) {
	if err := replay.Replay(context.Background(), &bytes.Buffer{}, replay.Operation{Name: "x"}); err == nil {
		t.Error("Replay() with nil owner succeeded, want error")
	}
}

func TestChain_Order(t *testing.T) {
	var trace []string
	mark := func(tag string) replay.Middleware {
		return func(name string, next replay.Invoker) replay.Invoker {
			return func(ctx context.Context, args string) (string, error) {
				trace = append(trace, tag+">"+name)
				out, err := next(ctx, args)
				trace = append(trace, tag+"<")
				return out, err
			}
		}
	}
	inv := replay.Chain("op", func(_ context.Context, args string) (string, error) {
		trace = append(trace, "call:"+args)
		return "ok", nil
	}, mark("a"), mark("b"))

	out, err := inv(context.Background(), "x")
	if err != nil || out != "ok" {
		t.Fatalf("invoke = %q, %v", out, err)
	}
	want := "a>op b>op call:x b< a<"
	if got := strings.Join(trace, " "); got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
}

func TestStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	const workers, per = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				if _, err := c.Store(ctx, replay.Int(int64(i))); err != nil {
					t.Errorf("Store() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	n, err := c.Calls(ctx, replay.StoreOp)
	if err != nil || n != workers*per {
		t.Errorf("Calls() = %d, %v, want %d", n, err, workers*per)
	}
	h, _ := c.History(ctx, replay.StoreOp)
	if len(h.Inputs) != workers*per || len(h.Outputs) != workers*per {
		t.Errorf("History() lengths = %d/%d, want %d", len(h.Inputs), len(h.Outputs), workers*per)
	}
}
