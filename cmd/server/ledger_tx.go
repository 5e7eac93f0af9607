package main

import (
	"context"
	"database/sql"
	"time"

	voucherservice "memberships/internal/voucher/service"
	txcontext "memberships/pkg/platform/tx"
)

// postgresLedgerTx runs ledger mutations in one database transaction. The
// stores resolve the transaction from context, so the outbox insert commits
// together with the voucher rows.
type postgresLedgerTx struct {
	db      *sql.DB
	store   voucherservice.Store
	timeout time.Duration
}

func newPostgresLedgerTx(db *sql.DB, store voucherservice.Store, timeout time.Duration) *postgresLedgerTx {
	return &postgresLedgerTx{db: db, store: store, timeout: timeout}
}

func (t *postgresLedgerTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store voucherservice.Store) error) error {
	return txcontext.Run(ctx, t.db, t.timeout, func(ctx context.Context, _ *sql.Tx) error {
		return fn(ctx, t.store)
	})
}

// postgresTx is the lottery service's boundary for registration writes.
type postgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, t.db, t.timeout, func(ctx context.Context, _ *sql.Tx) error {
		return fn(ctx)
	})
}
