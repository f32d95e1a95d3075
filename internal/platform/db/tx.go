package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queryable is the subset of pgx operations repositories need, satisfied by
// both *pgxpool.Pool and pgx.Tx. It lets a repository run inside an ambient
// transaction when one is present on the context.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type txContextKey struct{}

// WithQueryable returns a context carrying the given queryable, typically a
// transaction opened by RunInTx.
func WithQueryable(ctx context.Context, q Queryable) context.Context {
	return context.WithValue(ctx, txContextKey{}, q)
}

// QueryableFromContext returns the ambient queryable, or nil when the caller
// should fall back to its own pool.
func QueryableFromContext(ctx context.Context) Queryable {
	q, _ := ctx.Value(txContextKey{}).(Queryable)
	return q
}

// RunInTx executes fn inside a transaction placed on the context, so every
// repository call made by fn shares it. The transaction commits when fn
// returns nil and rolls back otherwise.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithQueryable(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
