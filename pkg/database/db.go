package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB holds the pool shared by widget configurations, answer
// analytics and citation chunks.
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// Option adjusts the pool before it connects.
type Option func(*pgxpool.Config)

func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

func WithMinConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n >= 0 {
			c.MinConns = n
		}
	}
}

// NewPostgresDB connects and pings. Pools default to 2-10 connections.
func NewPostgresDB(ctx context.Context, databaseURL string, opts ...Option) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}
