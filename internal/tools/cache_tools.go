package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/cache-replay/internal/replay"
)

type handler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// parseValue builds a replay.Value from the tool's string argument.
func parseValue(raw, kind string) (replay.Value, error) {
	switch kind {
	case "", "text":
		return replay.Text(raw), nil
	case "bytes":
		return replay.Bytes(raw), nil
	case "int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", raw)
		}
		return replay.Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a float", raw)
		}
		return replay.Float(f), nil
	}
	return nil, fmt.Errorf("unknown type %q", kind)
}

// CacheStoreHandler returns the MCP tool handler for the "cache-store" tool.
func CacheStoreHandler(c *replay.Cache) handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := parseValue(raw, req.GetString("type", "text"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		key, err := c.Store(ctx, v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(key), nil
	}
}

// CacheGetHandler returns the MCP tool handler for the "cache-get" tool.
func CacheGetHandler(c *replay.Cache) handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var (
			out string
			ok  bool
		)
		switch as := req.GetString("as", "text"); as {
		case "raw":
			v, gerr := c.Get(ctx, key, nil)
			switch {
			case errors.Is(gerr, replay.ErrNotFound):
			case gerr != nil:
				err = gerr
			default:
				ok = true
				out = fmt.Sprintf("%q", v.([]byte))
			}
		case "text":
			out, ok, err = c.GetText(ctx, key)
		case "int":
			var n int64
			n, ok, err = c.GetInt(ctx, key)
			out = strconv.FormatInt(n, 10)
		case "float":
			var f float64
			f, ok, err = c.GetFloat(ctx, key)
			out = strconv.FormatFloat(f, 'g', -1, 64)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown conversion %q", as)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultText("not found"), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// CacheHistoryHandler returns the MCP tool handler for the "cache-history" tool.
func CacheHistoryHandler(c *replay.Cache) handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("operation", replay.StoreOp)
		h, err := c.History(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatHistory(h)), nil
	}
}

// CacheReplayHandler returns the MCP tool handler for the "cache-replay" tool.
func CacheReplayHandler(c *replay.Cache) handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var buf bytes.Buffer
		if err := replay.Replay(ctx, &buf, c.Op(req.GetString("operation", replay.StoreOp))); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
	}
}

func formatHistory(h replay.History) string {
	var sb strings.Builder
	sb.WriteString("## Inputs\n")
	for i, in := range h.Inputs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, in)
	}
	sb.WriteString("\n## Outputs\n")
	for i, out := range h.Outputs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, out)
	}
	return sb.String()
}
