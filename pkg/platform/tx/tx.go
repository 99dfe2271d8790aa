// Package tx carries a transactional boundary through context.
//
// Stores look up the active *sql.Tx with From and fall back to their pool when
// none is present. Runner implementations decide what "transaction" means for a
// backend: a real database transaction for PostgreSQL, a per-key lock for the
// in-memory stores.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner runs fn inside a transactional boundary scoped to key.
// Writes for the same key never interleave. Calls nested inside an active
// boundary join it instead of opening a new one.
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
