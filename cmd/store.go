package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratesync/internal/source"
	"github.com/sells-group/ratesync/internal/store"
)

// initStore builds the configured store backend. Callers own Close.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// sourceRegistry returns the jurisdiction source table, merged with the
// configured overrides file when one is set.
func sourceRegistry() (*source.Registry, error) {
	if cfg.Sources.Overrides == "" {
		return source.Defaults(), nil
	}
	return source.LoadOverrides(cfg.Sources.Overrides)
}
