package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both a pool and an open transaction.
// Repositories issue all SQL through it so the same code runs inside or outside
// an atomic unit.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Runner opens atomic units of work. The outermost call begins a real database
// transaction; nested calls open savepoints, so a service method can invoke
// lower-level primitives that themselves run WithinTx. Any error rolls back the
// innermost unit only; the outermost rollback discards everything.
type Runner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKeyType struct{}

var txKey txKeyType

// PgxRunner implements Runner on a pgx connection pool. Nested units map onto
// pgx's savepoint-backed nested transactions.
type PgxRunner struct {
	pool *pgxpool.Pool
}

// NewPgxRunner wraps a pool as a transaction runner.
func NewPgxRunner(pool *pgxpool.Pool) *PgxRunner {
	return &PgxRunner{pool: pool}
}

// WithinTx runs fn inside a transaction or, when one is already open on ctx,
// inside a savepoint on it.
func (r *PgxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer, ok := ctx.Value(txKey).(pgx.Tx); ok {
		nested, err := outer.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(context.WithValue(ctx, txKey, nested)); err != nil {
			_ = nested.Rollback(ctx)
			return err
		}
		return nested.Commit(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Q returns the querier for the current unit of work: the transaction bound to
// ctx when inside WithinTx, otherwise the fallback (normally the pool).
func Q(ctx context.Context, fallback Querier) Querier {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return fallback
}
