package tx

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	dErrors "petregistry/pkg/domain-errors"
)

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// SQLRunner opens a database transaction per call. Row-level serialization per
// key comes from the stores taking SELECT ... FOR UPDATE inside the transaction,
// so key is only used for tracing.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLRunner(db *sql.DB, timeout time.Duration) *SQLRunner {
	return &SQLRunner{db: db, timeout: timeout}
}

func (r *SQLRunner) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// numShards spreads keys over a fixed set of mutexes so unrelated pet codes
// rarely contend.
const numShards = 128

// ShardedRunner serializes calls per key using sharded mutexes. It provides
// isolation for the in-memory stores but no rollback: callers order their
// writes so the fallible step runs before anything is persisted.
//
// A nested call joins the outer one when its key hashes to a shard the outer
// call already holds. Any other nested key locks its own shard for the
// duration of the inner call, so code nesting two keys must always nest them
// in the same order.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedRunner(timeout time.Duration) *ShardedRunner {
	return &ShardedRunner{timeout: timeout}
}

type heldKey struct{}

// heldShards lists the shards locked by the calls enclosing a context.
type heldShards []uint32

func heldFrom(ctx context.Context) heldShards {
	held, _ := ctx.Value(heldKey{}).(heldShards)
	return held
}

func (r *ShardedRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	shard := hashKey(key) % numShards
	held := heldFrom(ctx)
	if slices.Contains(held, shard) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(context.WithValue(ctx, heldKey{}, append(slices.Clip(held), shard)))
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
