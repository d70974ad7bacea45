package tools

import (
	"context"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/cache-replay/internal/web"
)

// PageFetchHandler returns the MCP tool handler for the "page-fetch" tool.
func PageFetchHandler(pages *web.PageCache) handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		page, err := pages.Fetch(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if req.GetString("format", "raw") != "markdown" {
			return mcp.NewToolResultText(page), nil
		}
		ps, err := web.Render(page, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatPageSummary(ps)), nil
	}
}

// PageCountHandler returns the MCP tool handler for the "page-count" tool.
func PageCountHandler(pages *web.PageCache) handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		n, err := pages.Count(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(strconv.FormatInt(n, 10)), nil
	}
}

func formatPageSummary(ps *web.PageSummary) string {
	var sb strings.Builder
	if ps.Title != "" {
		sb.WriteString("# ")
		sb.WriteString(ps.Title)
		sb.WriteString("\n\n")
	}
	if ps.Description != "" {
		sb.WriteString(ps.Description)
		sb.WriteString("\n\n")
	}
	if len(ps.Links) > 0 {
		sb.WriteString("## Links\n")
		for _, l := range ps.Links {
			sb.WriteString("- ")
			sb.WriteString(l)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(ps.Text)
	return sb.String()
}
