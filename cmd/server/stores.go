package main

import (
	"context"
	"database/sql"
	"log/slog"

	accountservice "memberships/internal/account/service"
	accountstore "memberships/internal/account/store"
	eventmodels "memberships/internal/event/models"
	eventstore "memberships/internal/event/store"
	lotteryservice "memberships/internal/lottery/service"
	"memberships/internal/notify"
	"memberships/internal/notify/outbox"
	"memberships/internal/platform/config"
	"memberships/internal/platform/postgres"
	questionmodels "memberships/internal/questionnaire/models"
	questionservice "memberships/internal/questionnaire/service"
	questionstore "memberships/internal/questionnaire/store"
	voucherservice "memberships/internal/voucher/service"
	voucherstore "memberships/internal/voucher/store"
	id "memberships/pkg/domain"
)

type eventStore interface {
	Current(ctx context.Context) (*eventmodels.Event, error)
	Upsert(ctx context.Context, event eventmodels.Event, active bool) (*eventmodels.Event, error)
}

type voucherStore interface {
	voucherservice.Store
	HasVouchers(ctx context.Context, accountID id.AccountID) (bool, error)
}

type questionStore interface {
	questionservice.Store
	DateOfBirth(ctx context.Context, accountID id.AccountID) (string, error)
	UpsertQuestionSet(ctx context.Context, set questionmodels.QuestionSet) error
}

type outboxStore interface {
	notify.Notifier
	outbox.Source
}

// stores bundles the persistence backends; db is nil in memory mode.
type stores struct {
	db        *sql.DB
	events    eventStore
	accounts  accountservice.Store
	vouchers  voucherStore
	questions questionStore
	outbox    outboxStore
	ledgerTx  voucherservice.LedgerTx
	tx        lotteryservice.Tx
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*stores, error) {
	if cfg.URL == "" {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		vouchers := voucherstore.NewInMemory()
		return &stores{
			events:    eventstore.NewInMemory(),
			accounts:  accountstore.NewInMemory(vouchers),
			vouchers:  vouchers,
			questions: questionstore.NewInMemory(),
			outbox:    outbox.NewInMemory(),
			ledgerTx:  voucherservice.NewInMemoryTx(vouchers),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	vouchers := voucherstore.NewPostgres(db)
	return &stores{
		db:        db,
		events:    eventstore.NewPostgres(db),
		accounts:  accountstore.NewPostgres(db),
		vouchers:  vouchers,
		questions: questionstore.NewPostgres(db),
		outbox:    outbox.NewPostgres(db),
		ledgerTx:  newPostgresLedgerTx(db, vouchers, cfg.TxTimeout),
		tx:        &postgresTx{db: db, timeout: cfg.TxTimeout},
	}, nil
}

func (s *stores) ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
