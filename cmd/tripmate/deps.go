package main

import (
	"fmt"

	"github.com/tripmate-ai/tripmate/pkg/cache"
	"github.com/tripmate-ai/tripmate/pkg/cache/memory"
	"github.com/tripmate-ai/tripmate/pkg/cache/redis"
	"github.com/tripmate-ai/tripmate/pkg/cache/sqlite"
	"github.com/tripmate-ai/tripmate/pkg/config"
	"github.com/tripmate-ai/tripmate/pkg/logger"
	"github.com/tripmate-ai/tripmate/pkg/segment"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(cfg.Log.Mode)
}

func parserOptions(cfg *config.Config) segment.Options {
	return segment.Options{Anchored: cfg.Parser.AnchorHeaders}
}

// openStore opens the itinerary cache store on the configured backend.
// The memory backend only lives as long as the process.
func openStore(cfg *config.Config, log *logger.Logger) (*cache.Store, func(), error) {
	var (
		backend cache.Backend
		closeFn = func() {}
	)
	switch cfg.Cache.Backend {
	case "memory":
		backend = memory.New()
	case "redis":
		b, err := redis.New(cfg.Cache.RedisAddr, cfg.Cache.RedisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis cache: %w", err)
		}
		backend, closeFn = b, func() { _ = b.Close() }
	default:
		b, err := sqlite.NewKV(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		backend, closeFn = b, func() { _ = b.Close() }
	}
	return cache.New(backend, cfg.Cache.TTL, cache.WithLogger(log)), closeFn, nil
}
