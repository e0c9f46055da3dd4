// Package postgres is the Postgres realization of the Persistence Gateway
// (spec.md §4.3) and, via its Begin/Commit/Rollback, the connection source
// the transaction envelope borrows from. SQL dialect details are explicitly
// out of scope for the core (spec.md §1); this package is "a" dialect, not
// "the" dialect.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool mirrors the teacher's internal/infrastructure/postgres/db.go —
// same pool tuning, same ping-on-construct fail-fast behavior spec.md §7.4
// calls for at initialize().
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 5
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Gateway wraps a connection pool and implements gateway.Gateway.
type Gateway struct {
	pool *pgxpool.Pool
}

// NewGateway returns a Postgres-backed Persistence Gateway.
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Begin starts a transaction — step 1 of the envelope (spec.md §4.2).
func (g *Gateway) Begin(ctx context.Context) (any, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (g *Gateway) Commit(ctx context.Context, tx any) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (g *Gateway) Rollback(ctx context.Context, tx any) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func asTx(tx any) (pgx.Tx, error) {
	t, ok := tx.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("postgres gateway: expected pgx.Tx, got %T", tx)
	}
	return t, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows — the teacher's
// internal/infrastructure/postgres/job_repo.go helper, unchanged.
type rowScanner interface {
	Scan(dest ...any) error
}
