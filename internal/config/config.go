// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvBackend   = "CACHE_REPLAY_BACKEND"
	EnvSocket    = "CACHE_REPLAY_SOCK"
	EnvDB        = "CACHE_REPLAY_DB"
	EnvRedisAddr = "CACHE_REPLAY_REDIS_ADDR"
	EnvRedisDB   = "CACHE_REPLAY_REDIS_DB"
	EnvPageTTL   = "CACHE_REPLAY_PAGE_TTL"
)

// Backend kinds.
const (
	BackendSocket = "socket"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

type Config struct {
	Backend    string
	SocketPath string
	DBPath     string
	RedisAddr  string
	RedisDB    int
	PageTTL    time.Duration
}

// FromEnv builds a Config from the environment, filling defaults under
// ~/.cache/cache-replay.
func FromEnv() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Backend:    defaultString(getenv(EnvBackend), BackendSocket),
		SocketPath: defaultString(getenv(EnvSocket), defaultPath("cache.sock")),
		DBPath:     defaultString(getenv(EnvDB), defaultPath("cache.bbolt")),
		RedisAddr:  defaultString(getenv(EnvRedisAddr), "localhost:6379"),
		PageTTL:    10 * time.Second,
	}
	switch cfg.Backend {
	case BackendSocket, BackendBolt, BackendRedis:
	default:
		return Config{}, fmt.Errorf("%s: unknown backend %q", EnvBackend, cfg.Backend)
	}
	if v := getenv(EnvRedisDB); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%s: invalid database index %q", EnvRedisDB, v)
		}
		cfg.RedisDB = n
	}
	if v := getenv(EnvPageTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvPageTTL, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("%s: must be positive, got %s", EnvPageTTL, d)
		}
		cfg.PageTTL = d
	}
	return cfg, nil
}

func defaultPath(name string) string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "cache-replay", name)
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
