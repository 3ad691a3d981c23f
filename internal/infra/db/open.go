package db

import (
	"context"
	"fmt"

	"golden-ticket/internal/config"
	"golden-ticket/internal/domain/ports/repository"
	"golden-ticket/internal/infra/db/filestore"
	"golden-ticket/internal/infra/db/memory"
	pg "golden-ticket/internal/infra/db/postgres"
	"golden-ticket/internal/infra/db/sqlite"
)

// Open builds the redemption store named by cfg.Backend. The returned close
// func is never nil.
func Open(ctx context.Context, cfg config.StoreConfig) (repository.RedemptionStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "", "file":
		return filestore.New(cfg.Path), noop, nil
	case "memory":
		return memory.New(), noop, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres: %w", err)
		}
		s := pg.NewPostgresRedemptionStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("postgres schema: %w", err)
		}
		return s, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("store backend %q not supported", cfg.Backend)
	}
}
