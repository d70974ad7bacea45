package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/cache-replay/internal/config"
	"github.com/leonardcser/cache-replay/internal/logger"
	"github.com/leonardcser/cache-replay/internal/replay"
	"github.com/leonardcser/cache-replay/internal/store"
	"github.com/leonardcser/cache-replay/internal/tools"
	"github.com/leonardcser/cache-replay/internal/web"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting cache-replay MCP server")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Errorf("config: %v", err)
		panic(err)
	}

	ctx := context.Background()
	kv, err := openStore(ctx, cfg)
	if err != nil {
		logger.Errorf("Failed to open %s store: %v", cfg.Backend, err)
		panic(err)
	}
	defer kv.Close()
	logger.Infof("Using %s store", cfg.Backend)

	cache, err := replay.New(ctx, kv)
	if err != nil {
		logger.Errorf("Failed to initialize cache: %v", err)
		panic(err)
	}
	pages := web.NewPageCache(kv, web.NewFetcher(), web.WithTTL(cfg.PageTTL))
	logger.Infof("Initialized cache and page cache (ttl %s)", cfg.PageTTL)

	s := server.NewMCPServer(
		"Cache Replay",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("cache-store",
		mcp.WithDescription(multiline(
			"Stores a value under a freshly generated key and returns the key",
			"\nUsage notes:",
			"- Every call is counted and its input and output recorded for replay",
			"- Keys are random UUIDs; storing the same value twice yields two keys",
		)),
		mcp.WithString("value", mcp.Required(), mcp.Description("The value to store")),
		mcp.WithString("type", mcp.Enum("text", "bytes", "int", "float"), mcp.Description("How to interpret value (default text)")),
	), tools.CacheStoreHandler(cache))

	s.AddTool(mcp.NewTool("cache-get",
		mcp.WithDescription("Reads the value stored under a key, optionally converting it"),
		mcp.WithString("key", mcp.Required(), mcp.Description("Key returned by cache-store")),
		mcp.WithString("as", mcp.Enum("raw", "text", "int", "float"), mcp.Description("Conversion to apply (default text)")),
	), tools.CacheGetHandler(cache))

	s.AddTool(mcp.NewTool("cache-history",
		mcp.WithDescription("Lists the recorded inputs and outputs of an operation in call order"),
		mcp.WithString("operation", mcp.Description("Operation name (default "+replay.StoreOp+")")),
	), tools.CacheHistoryHandler(cache))

	s.AddTool(mcp.NewTool("cache-replay",
		mcp.WithDescription("Replays the recorded calls of an operation, one line per call"),
		mcp.WithString("operation", mcp.Description("Operation name (default "+replay.StoreOp+")")),
	), tools.CacheReplayHandler(cache))

	s.AddTool(mcp.NewTool("page-fetch",
		mcp.WithDescription(multiline(
			"Fetches a URL through an expiring page cache",
			"\nUsage notes:",
			"- Pages are cached for "+cfg.PageTTL.String()+"; repeated fetches within that window do not hit the network",
			"- Every call increments the access count of the URL, cache hit or not",
			"- format=markdown renders HTML into title, description, links and markdown text",
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch")),
		mcp.WithString("format", mcp.Enum("raw", "markdown"), mcp.Description("Output format (default raw)")),
	), tools.PageFetchHandler(pages))

	s.AddTool(mcp.NewTool("page-count",
		mcp.WithDescription("Returns how many times a URL has been requested through page-fetch"),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to look up")),
	), tools.PageCountHandler(pages))
	logger.Infof("Registered tools")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func openStore(ctx context.Context, cfg config.Config) (store.KV, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
		return store.OpenBolt(cfg.DBPath, store.Options{})
	case config.BackendRedis:
		return store.DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	}
	return connectDaemon(cfg.SocketPath)
}

// connectDaemon connects to the store daemon, starting it if needed.
func connectDaemon(sock string) (store.KV, error) {
	logger.Infof("Attempting to connect to store daemon at %s", sock)
	err := store.Probe(sock)
	if err == nil {
		return store.NewClient(sock), nil
	}
	logger.Warnf("Failed to connect to store daemon: %v, attempting to start daemon", err)
	if startErr := startDaemon(); startErr != nil {
		logger.Errorf("Failed to start store daemon: %v", startErr)
	}
	// wait for socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err = store.Probe(sock); err == nil {
			logger.Infof("Connected to store daemon")
			return store.NewClient(sock), nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, err
}

func startDaemon() error {
	var candidates []string
	// Next to this executable first, then PATH, then the working directory.
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "cache-replay-store"))
	}
	if path, err := exec.LookPath("cache-replay-store"); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, "./cache-replay-store")

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin)
		cmd.Env = os.Environ()
		return cmd.Start()
	}
	return exec.ErrNotFound
}
