package main

import (
	"context"
	"fmt"

	"github.com/nulzo/modelmart/internal/analytics"
	"github.com/nulzo/modelmart/internal/catalog"
	"github.com/nulzo/modelmart/internal/chain"
	"github.com/nulzo/modelmart/internal/config"
	"github.com/nulzo/modelmart/internal/registry"
	"github.com/nulzo/modelmart/internal/server"
	"github.com/nulzo/modelmart/internal/store"
	"github.com/nulzo/modelmart/internal/store/cache"
	"github.com/nulzo/modelmart/internal/store/memory"
	"github.com/nulzo/modelmart/internal/store/sqlite"
	"go.uber.org/zap"
)

// app owns every long-lived component of the server process.
type app struct {
	logger   *zap.Logger
	repo     store.Repository
	ingestor analytics.Ingestor
	server   *server.Server
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("Catalog loaded", zap.Int("models", cat.Len()))

	chains := cfg.Chains
	if len(chains) == 0 {
		chains = chain.Defaults
	}
	dir, err := chain.NewDirectory(chains)
	if err != nil {
		return nil, fmt.Errorf("chains: %w", err)
	}

	switch cfg.Store.Driver {
	case "sqlite":
		repo, err := sqlite.NewSQLiteStorage(cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		a.repo = repo
	default:
		a.repo = memory.NewRepository()
	}
	a.closers = append(a.closers, a.repo.Close)

	var c cache.CacheService = cache.NewMemoryCache()
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "modelmart:",
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("Redis cache connected", zap.String("addr", cfg.Redis.Addr))
		c = rc
		a.closers = append(a.closers, rc.Close)
	}

	a.ingestor = analytics.NewIngestor(logger, a.repo, analytics.DefaultIngestorOptions())
	// audit must outlive the signal context so shutdown-time events still land
	a.ingestor.Start(context.Background())

	reg := registry.NewService(logger, a.repo, dir, a.ingestor, c, registry.Options{
		IdempotencyTTL: cfg.Idempotency.TTL,
	})
	stats := analytics.NewService(logger, a.repo, cat, c, cfg.Stats.CacheTTL)

	a.server, err = server.New(cfg, logger, server.Dependencies{
		Catalog:  cat,
		Chains:   dir,
		Registry: reg,
		Stats:    stats,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// Close flushes pending audit events, then releases stores in reverse order.
func (a *app) Close() {
	if a.ingestor != nil {
		a.ingestor.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
