// Package platform wires the infrastructure collaborators the spec treats as
// out-of-core: the Postgres pool, the Redis client, and schema bootstrap.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool creates a pgx connection pool, pinging once to fail fast on
// a misconfigured DSN rather than on the first request.
func NewPostgresPool(ctx context.Context, databaseURL string, maxConns int32, acquireTimeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if acquireTimeout > 0 {
		cfg.MaxConnLifetime = 0 // unlimited lifetime; acquireTimeout's value does not bound pool waits
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
