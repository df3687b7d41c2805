// Package repository implements the domain store contracts on PostgreSQL
// using pgx with shopspring/decimal support for NUMERIC columns.
package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altmarket/storefront/db"
	"github.com/altmarket/storefront/internal/domain/order"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// lockNotAvailable is the PostgreSQL error code raised when lock_timeout
// expires while waiting on a row lock.
const lockNotAvailable = "55P03"

// isLockTimeout reports whether err is a lock-wait timeout.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable
}

// Transactor runs the order-creation steps inside one database transaction
// with a bounded lock wait, so a blocked stock-lock acquisition surfaces as a
// retryable failure instead of hanging.
type Transactor struct {
	pool        *pgxpool.Pool
	lockTimeout string
}

var _ order.Transactor = (*Transactor)(nil)

// NewTransactor creates a Transactor. lockTimeout is a PostgreSQL duration
// literal such as "5s" applied with SET LOCAL inside each transaction.
func NewTransactor(pool *pgxpool.Pool, lockTimeout string) *Transactor {
	if lockTimeout == "" {
		lockTimeout = "5s"
	}
	return &Transactor{pool: pool, lockTimeout: lockTimeout}
}

// InTx implements order.Transactor. Any error from fn rolls the whole
// transaction back.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, s order.TxStore) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '"+t.lockTimeout+"'"); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(ctx, &orderTxStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
