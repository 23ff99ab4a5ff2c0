package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/treedata/internal/config"
)

// Open connects to PostgreSQL and, when a Redis URL is configured, wraps
// the store with the schema cache. The returned func releases both.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	var st Store = NewPostgresStore(pool)
	if !cfg.Cache.Enabled() {
		return st, pool.Close, nil
	}

	rdb, err := NewRedisClient(ctx, cfg.Cache.RedisURL)
	if err != nil {
		// The cache is optional; run uncached rather than refuse to start.
		slog.Warn("schema cache disabled", "error", err)
		return st, pool.Close, nil
	}
	slog.Info("schema cache enabled", "ttl", cfg.Cache.SchemaTTL)

	closeAll := func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
		pool.Close()
	}
	return NewCachedStore(st, rdb, cfg.Cache.SchemaTTL, cfg.Cache.KeyPrefix), closeAll, nil
}
