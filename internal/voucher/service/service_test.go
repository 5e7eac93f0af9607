package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	accountmodels "memberships/internal/account/models"
	accountstore "memberships/internal/account/store"
	"memberships/internal/notify"
	"memberships/internal/notify/outbox"
	"memberships/internal/voucher/metrics"
	voucherstore "memberships/internal/voucher/store"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	vouchers *voucherstore.InMemoryStore
	accounts *accountstore.InMemoryStore
	outbox   *outbox.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service
	eventID  id.EventID

	alice *accountmodels.Account
	bob   *accountmodels.Account
	carol *accountmodels.Account
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.now = time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.vouchers = voucherstore.NewInMemory()
	s.accounts = accountstore.NewInMemory(s.vouchers)
	s.outbox = outbox.NewInMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.vouchers, s.accounts, s.outbox, WithMetrics(s.metrics))
	s.eventID = id.NewEventID()

	s.alice = s.account("alice@example.org")
	s.bob = s.account("bob@example.org")
	s.carol = s.account("carol@example.org")
}

func (s *LedgerSuite) account(email string) *accountmodels.Account {
	acc, _, err := s.accounts.Upsert(s.ctx, email, s.now)
	s.Require().NoError(err)
	return acc
}

// allocate gives the account a primary and a secondary voucher valid for 48h.
func (s *LedgerSuite) allocate(acc *accountmodels.Account, primary, secondary string) {
	_, err := s.service.RecordAllocation(s.ctx, s.eventID, acc.ID, []string{primary, secondary}, s.now.Add(48*time.Hour))
	s.Require().NoError(err)
}

func (s *LedgerSuite) voucher(code string) voucherSnapshot {
	v, err := s.vouchers.FindByCode(s.ctx, code)
	s.Require().NoError(err)
	return voucherSnapshot{owner: v.OwnerID, order: v.OrderCode, giftedTo: v.GiftedTo, primary: v.Primary}
}

type voucherSnapshot struct {
	owner    id.AccountID
	order    string
	giftedTo id.AccountID
	primary  bool
}

func (s *LedgerSuite) TestRecordAllocation() {
	s.Run("first code is primary and owner is notified", func() {
		created, err := s.service.RecordAllocation(s.ctx, s.eventID, s.alice.ID, []string{"PRIMARY1", "PLUSONE1"}, s.now.Add(48*time.Hour))
		s.Require().NoError(err)
		s.Require().Len(created, 2)
		s.True(created[0].Primary)
		s.False(created[1].Primary)

		msgs := s.outbox.MessagesOfKind(notify.KindVoucherAllocated)
		s.Require().Len(msgs, 1)
		s.Equal("alice@example.org", msgs[0].To)
	})

	s.Run("second allocation for the same account conflicts", func() {
		_, err := s.service.RecordAllocation(s.ctx, s.eventID, s.alice.ID, []string{"PRIMARY2", "PLUSONE2"}, s.now.Add(48*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
		s.Len(s.outbox.MessagesOfKind(notify.KindVoucherAllocated), 1)
	})

	s.Run("empty code list is rejected", func() {
		_, err := s.service.RecordAllocation(s.ctx, s.eventID, s.bob.ID, nil, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *LedgerSuite) TestRecordAllocationConcurrent() {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes := []string{"P" + string(rune('A'+i)), "S" + string(rune('A'+i))}
			if _, err := s.service.RecordAllocation(s.ctx, s.eventID, s.bob.ID, codes, s.now.Add(time.Hour)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	held, err := s.service.ListForAccount(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Len(held, 2)
}

func (s *LedgerSuite) TestTransfer() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")

	s.Run("primary voucher cannot be transferred", func() {
		_, err := s.service.Transfer(s.ctx, "ALICEPRIMARY", s.alice.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("only the owner may transfer", func() {
		_, err := s.service.Transfer(s.ctx, "ALICEPLUS", s.bob.ID, s.carol.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("self transfer is rejected", func() {
		_, err := s.service.Transfer(s.ctx, "ALICEPLUS", s.alice.ID, s.alice.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown voucher", func() {
		_, err := s.service.Transfer(s.ctx, "NOPE", s.alice.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("moves ownership and notifies the recipient", func() {
		v, err := s.service.Transfer(s.ctx, "ALICEPLUS", s.alice.ID, s.bob.ID)
		s.Require().NoError(err)
		s.Equal(s.bob.ID, v.OwnerID)

		msgs := s.outbox.MessagesOfKind(notify.KindVoucherTransferred)
		s.Require().Len(msgs, 1)
		s.Equal("bob@example.org", msgs[0].To)
		s.Equal("alice@example.org", msgs[0].Data["sender"])
	})

	s.Run("recipient holding an unexpired voucher is refused", func() {
		s.allocate(s.carol, "CAROLPRIMARY", "CAROLPLUS")
		_, err := s.service.Transfer(s.ctx, "CAROLPLUS", s.carol.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(s.carol.ID, s.voucher("CAROLPLUS").owner)
	})
}

func (s *LedgerSuite) TestTransferExpiredAndPaid() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")

	s.Run("expired voucher", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(48*time.Hour))
		_, err := s.service.Transfer(later, "ALICEPLUS", s.alice.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("paid voucher", func() {
		_, err := s.service.ConfirmPayment(s.ctx, "ALICEPLUS", "ORD01", "secret")
		s.Require().NoError(err)
		_, err = s.service.Transfer(s.ctx, "ALICEPLUS", s.alice.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *LedgerSuite) TestTransferAllowedWhenRecipientVoucherExpired() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")
	_, err := s.service.RecordAllocation(s.ctx, s.eventID, s.bob.ID, []string{"BOBPRIMARY", "BOBPLUS"}, s.now.Add(-time.Minute))
	s.Require().NoError(err)

	v, err := s.service.Transfer(s.ctx, "ALICEPLUS", s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(s.bob.ID, v.OwnerID)
}

func (s *LedgerSuite) TestGiftTo() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")

	s.Run("primary voucher may be gifted", func() {
		v, err := s.service.GiftTo(s.ctx, "ALICEPRIMARY", s.alice.ID, s.bob.ID)
		s.Require().NoError(err)
		s.Equal(s.bob.ID, v.GiftedTo)
		s.Equal(s.alice.ID, v.OwnerID)
	})

	s.Run("gift to self is rejected", func() {
		_, err := s.service.GiftTo(s.ctx, "ALICEPLUS", s.alice.ID, s.alice.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-owner cannot gift", func() {
		_, err := s.service.GiftTo(s.ctx, "ALICEPLUS", s.carol.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("recipient with a paid voucher is refused", func() {
		s.allocate(s.carol, "CAROLPRIMARY", "CAROLPLUS")
		_, err := s.service.ConfirmPayment(s.ctx, "CAROLPRIMARY", "ORDC", "sec")
		s.Require().NoError(err)

		_, err = s.service.GiftTo(s.ctx, "ALICEPLUS", s.alice.ID, s.carol.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("paid voucher cannot be gifted", func() {
		_, err := s.service.GiftTo(s.ctx, "CAROLPRIMARY", s.carol.ID, s.bob.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.True(s.voucher("CAROLPRIMARY").giftedTo.IsNil())
	})

	s.Run("no notification until payment", func() {
		s.Empty(s.outbox.MessagesOfKind(notify.KindGiftedTicket))
	})
}

func (s *LedgerSuite) TestConfirmPaymentIsIdempotent() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")

	first, err := s.service.ConfirmPayment(s.ctx, "ALICEPRIMARY", "ORD01", "secret1")
	s.Require().NoError(err)
	s.False(first.AlreadyPaid)
	s.Equal("ORD01", first.Voucher.OrderCode)

	second, err := s.service.ConfirmPayment(s.ctx, "ALICEPRIMARY", "ORD99", "secret2")
	s.Require().NoError(err)
	s.True(second.AlreadyPaid)
	s.Equal("ORD01", s.voucher("ALICEPRIMARY").order)

	msgs := s.outbox.MessagesOfKind(notify.KindOrderComplete)
	s.Require().Len(msgs, 1)
	s.Equal("alice@example.org", msgs[0].To)
	s.Equal("ORD01", msgs[0].Data["order"])
}

func (s *LedgerSuite) TestConfirmPaymentUnknownVoucher() {
	_, err := s.service.ConfirmPayment(s.ctx, "MISSING", "ORD01", "x")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.ConfirmPayment(s.ctx, "MISSING", "", "x")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LedgerSuite) TestGiftFlow() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")

	_, err := s.service.GiftTo(s.ctx, "ALICEPLUS", s.alice.ID, s.bob.ID)
	s.Require().NoError(err)

	// payment lands after the voucher would have expired; the gift still completes
	late := requestcontext.WithTime(context.Background(), s.now.Add(72*time.Hour))
	res, err := s.service.ConfirmPayment(late, "ALICEPLUS", "ORDGIFT", "sec")
	s.Require().NoError(err)
	s.True(res.GiftDelivered)

	snap := s.voucher("ALICEPLUS")
	s.Equal(s.bob.ID, snap.owner)
	s.Equal("ORDGIFT", snap.order)
	s.True(snap.giftedTo.IsNil())

	gifts := s.outbox.MessagesOfKind(notify.KindGiftedTicket)
	s.Require().Len(gifts, 1)
	s.Equal("bob@example.org", gifts[0].To)
	s.Equal("alice@example.org", gifts[0].Data["sender"])
	s.Empty(s.outbox.MessagesOfKind(notify.KindOrderComplete))
}

func (s *LedgerSuite) TestGiftOfPrimaryVoucherCompletes() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")

	_, err := s.service.GiftTo(s.ctx, "ALICEPRIMARY", s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	res, err := s.service.ConfirmPayment(s.ctx, "ALICEPRIMARY", "ORDP", "sec")
	s.Require().NoError(err)
	s.True(res.GiftDelivered)
	s.Equal(s.bob.ID, s.voucher("ALICEPRIMARY").owner)
}

func (s *LedgerSuite) primariesOf(accountID id.AccountID) int {
	held, err := s.vouchers.ListByAccount(s.ctx, accountID)
	s.Require().NoError(err)
	var n int
	for _, v := range held {
		if v.Primary {
			n++
		}
	}
	return n
}

func (s *LedgerSuite) TestGiftOfPrimaryToAccountWithPrimaryIsRejected() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")
	s.allocate(s.bob, "BOBPRIMARY", "BOBPLUS")

	_, err := s.service.GiftTo(s.ctx, "ALICEPRIMARY", s.alice.ID, s.bob.ID)
	s.Require().NoError(err)

	// bob's own pair has expired by the time alice pays; his primary still counts
	late := requestcontext.WithTime(context.Background(), s.now.Add(72*time.Hour))
	res, err := s.service.ConfirmPayment(late, "ALICEPRIMARY", "ORDP", "sec")
	s.Require().NoError(err)
	s.True(res.GiftRejected)
	s.False(res.GiftDelivered)

	snap := s.voucher("ALICEPRIMARY")
	s.Equal(s.alice.ID, snap.owner)
	s.Equal("ORDP", snap.order)
	s.True(snap.giftedTo.IsNil())
	s.Equal(1, s.primariesOf(s.bob.ID))
	s.Equal(1, s.primariesOf(s.alice.ID))
	s.Empty(s.outbox.MessagesOfKind(notify.KindGiftedTicket))
}

func (s *LedgerSuite) TestGiftToRecipientWithLiveVoucherIsRejected() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")
	s.allocate(s.bob, "BOBPRIMARY", "BOBPLUS")

	_, err := s.service.GiftTo(s.ctx, "ALICEPLUS", s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	res, err := s.service.ConfirmPayment(s.ctx, "ALICEPLUS", "ORDA", "sec")
	s.Require().NoError(err)
	s.True(res.GiftRejected)

	s.Equal(s.alice.ID, s.voucher("ALICEPLUS").owner)
	held, err := s.vouchers.ListByAccount(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Len(held, 2)
}

func (s *LedgerSuite) TestRejectedGiftStaysWithPurchaser() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")
	s.allocate(s.bob, "BOBPRIMARY", "BOBPLUS")

	_, err := s.service.GiftTo(s.ctx, "ALICEPLUS", s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	_, err = s.service.ConfirmPayment(s.ctx, "BOBPRIMARY", "ORDB", "sec")
	s.Require().NoError(err)

	res, err := s.service.ConfirmPayment(s.ctx, "ALICEPLUS", "ORDA", "sec")
	s.Require().NoError(err)
	s.True(res.GiftRejected)
	s.False(res.GiftDelivered)

	snap := s.voucher("ALICEPLUS")
	s.Equal(s.alice.ID, snap.owner)
	s.Equal("ORDA", snap.order)
	s.True(snap.giftedTo.IsNil())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.GiftFallbacks))
	s.Empty(s.outbox.MessagesOfKind(notify.KindGiftedTicket))

	var toAlice int
	for _, m := range s.outbox.MessagesOfKind(notify.KindOrderComplete) {
		if m.To == "alice@example.org" {
			toAlice++
		}
	}
	s.Equal(1, toAlice)
}

func (s *LedgerSuite) TestCancelledContext() {
	s.allocate(s.alice, "ALICEPRIMARY", "ALICEPLUS")
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.service.ConfirmPayment(ctx, "ALICEPRIMARY", "ORD", "x")
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Empty(s.voucher("ALICEPRIMARY").order)
}
