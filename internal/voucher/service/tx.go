package service

import (
	"context"
	"sync"
	"time"

	dErrors "memberships/pkg/domain-errors"
	txcontext "memberships/pkg/platform/tx"
)

// LedgerTx provides the transactional boundary for ledger mutations.
// Postgres wraps a database transaction with row locks; in memory a coarse
// lock serializes every mutation.
type LedgerTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type inMemoryLedgerTx struct {
	mu      sync.Mutex
	store   Store
	timeout time.Duration
}

// NewInMemoryTx serializes ledger transactions over store.
func NewInMemoryTx(store Store) LedgerTx {
	return &inMemoryLedgerTx{store: store}
}

func (t *inMemoryLedgerTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	ctx, cancel, err := txcontext.Bound(ctx, t.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}
