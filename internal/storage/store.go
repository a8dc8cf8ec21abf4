package storage

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"

	"price-move-alerts/internal/config"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS price_samples (
    symbol      TEXT        NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL,
    price       NUMERIC     NOT NULL,
    size        NUMERIC     NOT NULL,
    best_bid    NUMERIC     NOT NULL,
    best_ask    NUMERIC     NOT NULL,
    window_len  INTEGER     NOT NULL,
    frames      BIGINT      NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (symbol, observed_at)
);
CREATE TABLE IF NOT EXISTS alerts (
    id          TEXT        PRIMARY KEY,
    symbol      TEXT        NOT NULL,
    fired_at    TIMESTAMPTZ NOT NULL,
    price       NUMERIC     NOT NULL,
    pct_change  NUMERIC     NOT NULL,
    delta       NUMERIC     NOT NULL,
    direction   TEXT        NOT NULL,
    channels    TEXT[]      NOT NULL DEFAULT '{}',
    delivered   BOOLEAN     NOT NULL,
    error       TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS alerts_symbol_fired_at_idx ON alerts (symbol, fired_at DESC);`

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LockKey derives a stable advisory lock key for a symbol.
func LockKey(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("pricemove:" + symbol))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
