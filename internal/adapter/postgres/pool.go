package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetch_targets (
	batch_id TEXT NOT NULL,
	key      TEXT NOT NULL,
	url      TEXT NOT NULL,
	position BIGSERIAL,
	PRIMARY KEY (batch_id, key)
);
CREATE TABLE IF NOT EXISTS fetch_records (
	batch_id   TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	kind       TEXT        NOT NULL,
	version    INTEGER     NOT NULL,
	fields     JSONB       NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, key)
);
`

// NewPool connects to PostgreSQL and makes sure the tables exist.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return pool, nil
}
