// Package tx carries a *sql.Tx on the context so Postgres stores can join the
// caller's transaction without widening their method signatures.
package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "memberships/pkg/domain-errors"
)

type ctxKey struct{}

// DefaultTimeout bounds transactions whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From returns the transaction carried on ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

// Bound checks ctx is still live and applies timeout (DefaultTimeout when
// zero) unless ctx already has a deadline. Callers must call the returned
// cancel func.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}, nil
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// Run executes fn in a transaction carried on the context passed to fn. A
// transaction already on ctx is reused and left for the outer caller to
// commit.
func Run(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if existing, ok := From(ctx); ok {
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
		}
		return fn(ctx, existing)
	}

	ctx, cancel, err := Bound(ctx, timeout)
	defer cancel()
	if err != nil {
		return err
	}

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(WithTx(ctx, sqlTx), sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}
