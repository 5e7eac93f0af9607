//go:build integration

package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accountstore "memberships/internal/account/store"
	eventmodels "memberships/internal/event/models"
	eventstore "memberships/internal/event/store"
	"memberships/internal/notify"
	"memberships/internal/notify/outbox"
	voucherstore "memberships/internal/voucher/store"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	txcontext "memberships/pkg/platform/tx"
	"memberships/pkg/requestcontext"
	"memberships/pkg/testutil/containers"
)

type pgLedgerTx struct {
	db    *sql.DB
	store Store
}

func (t pgLedgerTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return txcontext.Run(ctx, t.db, 0, func(ctx context.Context, _ *sql.Tx) error {
		return fn(ctx, t.store)
	})
}

type failingNotifier struct{ inner notify.Notifier }

func (f failingNotifier) Enqueue(ctx context.Context, msg notify.Message) error {
	if err := f.inner.Enqueue(ctx, msg); err != nil {
		return err
	}
	return errors.New("mail queue unavailable")
}

type PostgresLedgerSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	ctx      context.Context
	now      time.Time
	vouchers *voucherstore.PostgresStore
	accounts *accountstore.PostgresStore
	outbox   *outbox.PostgresStore
	eventID  id.EventID
}

func TestPostgresLedgerSuite(t *testing.T) {
	suite.Run(t, &PostgresLedgerSuite{pg: containers.NewPostgresContainer(t)})
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.now = time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.Require().NoError(s.pg.Truncate(s.ctx))

	s.vouchers = voucherstore.NewPostgres(s.pg.DB)
	s.accounts = accountstore.NewPostgres(s.pg.DB)
	s.outbox = outbox.NewPostgres(s.pg.DB)

	window := eventmodels.Window{Start: s.now.Add(-time.Hour), End: s.now.Add(time.Hour)}
	event, err := eventstore.NewPostgres(s.pg.DB).Upsert(s.ctx, eventmodels.Event{
		Name:         "summer",
		Registration: window,
		Lottery:      window,
		Transfer:     window,
	}, true)
	s.Require().NoError(err)
	s.eventID = event.ID
}

func (s *PostgresLedgerSuite) ledger(notifier notify.Notifier) *Service {
	return New(s.vouchers, s.accounts, notifier, WithTx(pgLedgerTx{db: s.pg.DB, store: s.vouchers}))
}

func (s *PostgresLedgerSuite) account(email string) id.AccountID {
	acc, _, err := s.accounts.Upsert(s.ctx, email, s.now)
	s.Require().NoError(err)
	return acc.ID
}

func (s *PostgresLedgerSuite) pending() []outbox.Entry {
	entries, err := s.outbox.Pending(s.ctx, 100)
	s.Require().NoError(err)
	return entries
}

func (s *PostgresLedgerSuite) TestRecordAllocationCommitsWithOutbox() {
	alice := s.account("alice@example.org")
	ledger := s.ledger(s.outbox)

	created, err := ledger.RecordAllocation(s.ctx, s.eventID, alice, []string{"PRIMARY1", "PLUSONE1"}, s.now.Add(48*time.Hour))
	s.Require().NoError(err)
	s.Len(created, 2)

	held, err := s.vouchers.ListByAccount(s.ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(held, 2)
	s.True(held[0].Primary)

	entries := s.pending()
	s.Require().Len(entries, 1)
	s.Equal(notify.KindVoucherAllocated, entries[0].Message.Kind)

	_, err = ledger.RecordAllocation(s.ctx, s.eventID, alice, []string{"PRIMARY2", "PLUSONE2"}, s.now.Add(48*time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Len(s.pending(), 1)
}

func (s *PostgresLedgerSuite) TestNotifierFailureRollsBack() {
	alice := s.account("alice@example.org")

	_, err := s.ledger(failingNotifier{inner: s.outbox}).RecordAllocation(s.ctx, s.eventID, alice, []string{"PRIMARY1", "PLUSONE1"}, s.now.Add(48*time.Hour))
	s.Require().Error(err)

	has, err := s.vouchers.HasVouchers(s.ctx, alice)
	s.Require().NoError(err)
	s.False(has)
	s.Empty(s.pending())
}

func (s *PostgresLedgerSuite) TestTransferMovesOwnership() {
	alice := s.account("alice@example.org")
	bob := s.account("bob@example.org")
	ledger := s.ledger(s.outbox)

	_, err := ledger.RecordAllocation(s.ctx, s.eventID, alice, []string{"PRIMARY1", "PLUSONE1"}, s.now.Add(48*time.Hour))
	s.Require().NoError(err)

	moved, err := ledger.Transfer(s.ctx, "PLUSONE1", alice, bob)
	s.Require().NoError(err)
	s.Equal(bob, moved.OwnerID)

	stored, err := s.vouchers.FindByCode(s.ctx, "PLUSONE1")
	s.Require().NoError(err)
	s.Equal(bob, stored.OwnerID)
	s.Len(s.pending(), 2)

	_, err = ledger.Transfer(s.ctx, "PRIMARY1", alice, bob)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *PostgresLedgerSuite) TestPrimaryGiftToDrawnAccountRecordsPayment() {
	alice := s.account("alice@example.org")
	bob := s.account("bob@example.org")
	ledger := s.ledger(s.outbox)

	_, err := ledger.RecordAllocation(s.ctx, s.eventID, alice, []string{"ALICEPRIMARY", "ALICEPLUS"}, s.now.Add(48*time.Hour))
	s.Require().NoError(err)
	_, err = ledger.RecordAllocation(s.ctx, s.eventID, bob, []string{"BOBPRIMARY", "BOBPLUS"}, s.now.Add(48*time.Hour))
	s.Require().NoError(err)
	_, err = ledger.GiftTo(s.ctx, "ALICEPRIMARY", alice, bob)
	s.Require().NoError(err)

	res, err := ledger.ConfirmPayment(s.ctx, "ALICEPRIMARY", "ORD1", "sec")
	s.Require().NoError(err)
	s.True(res.GiftRejected)

	stored, err := s.vouchers.FindByCode(s.ctx, "ALICEPRIMARY")
	s.Require().NoError(err)
	s.Equal(alice, stored.OwnerID)
	s.Equal("ORD1", stored.OrderCode)

	moved := *stored
	moved.OwnerID = bob
	s.ErrorIs(s.vouchers.Update(s.ctx, moved), sentinel.ErrConflict)
}
