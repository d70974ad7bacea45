package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/cache-replay/internal/config"
	"github.com/leonardcser/cache-replay/internal/logger"
	"github.com/leonardcser/cache-replay/internal/store"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Errorf("config: %v", err)
		panic(err)
	}

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755)
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	_ = os.Remove(cfg.SocketPath)

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		logger.Errorf("listen %s: %v", cfg.SocketPath, err)
		panic(err)
	}
	_ = os.Chmod(cfg.SocketPath, 0o600)

	kv, err := store.OpenBolt(cfg.DBPath, store.Options{})
	if err != nil {
		logger.Errorf("open %s: %v", cfg.DBPath, err)
		panic(err)
	}
	defer kv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Store daemon serving %s on %s", cfg.DBPath, cfg.SocketPath)
	if err := store.Serve(ctx, l, kv); err != nil {
		logger.Errorf("serve: %v", err)
	}
	_ = os.Remove(cfg.SocketPath)
	logger.Infof("Store daemon stopped")
}
