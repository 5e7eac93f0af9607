package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"memberships/internal/ticketing/metrics"
	"memberships/internal/ticketing/pretix"
	"memberships/internal/ticketing/webhook/mocks"
	voucherservice "memberships/internal/voucher/service"
	dErrors "memberships/pkg/domain-errors"
	pkgtestutil "memberships/pkg/testutil"
)

type memoryDeduper struct {
	seen map[int64]bool
}

func (d *memoryDeduper) Claim(_ context.Context, notificationID int64) (bool, error) {
	if d.seen[notificationID] {
		return false, nil
	}
	d.seen[notificationID] = true
	return true, nil
}

func (d *memoryDeduper) Release(_ context.Context, notificationID int64) error {
	delete(d.seen, notificationID)
	return nil
}

type ProcessorSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	lookup    *mocks.MockLookup
	ledger    *mocks.MockLedger
	deduper   *memoryDeduper
	metrics   *metrics.Metrics
	processor *Processor
	ctx       context.Context
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.lookup = mocks.NewMockLookup(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.deduper = &memoryDeduper{seen: map[int64]bool{}}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.processor = NewProcessor(s.lookup, s.ledger,
		WithDeduper(s.deduper),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.ctx = context.Background()
}

func (s *ProcessorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func paid(notificationID int64, order string) Notification {
	return Notification{NotificationID: notificationID, Organizer: "org", Event: "ev", Code: order, Action: ActionOrderPaid}
}

func voucherRef(v int64) *int64 { return &v }

func (s *ProcessorSuite) expectResolvable(order string, providerVoucherID int64, code string) {
	s.lookup.EXPECT().FetchOrder(gomock.Any(), order).Return(&pretix.Order{
		Code:      order,
		Secret:    "sec-" + order,
		Positions: []pretix.OrderPosition{{ID: 1, Voucher: voucherRef(providerVoucherID)}},
	}, nil)
	s.lookup.EXPECT().FetchVoucherInfo(gomock.Any(), providerVoucherID).Return(&pretix.Voucher{ID: providerVoucherID, Code: code}, nil)
}

func (s *ProcessorSuite) TestOrderPaidConfirmsPayment() {
	s.expectResolvable("Z9M9V", 42, "VOUCHERCODE")
	s.ledger.EXPECT().ConfirmPayment(gomock.Any(), "VOUCHERCODE", "Z9M9V", "sec-Z9M9V").
		Return(&voucherservice.ConfirmResult{}, nil)

	outcome, err := s.processor.Process(s.ctx, paid(117, "Z9M9V"))
	s.Require().NoError(err)
	s.Equal(OutcomeConfirmed, outcome)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.WebhookEvents.WithLabelValues(ActionOrderPaid, "confirmed")))
}

func (s *ProcessorSuite) TestOtherActionsIgnored() {
	outcome, err := s.processor.Process(s.ctx, Notification{Code: "ABC", Action: "pretix.event.order.placed"})
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, outcome)
}

func (s *ProcessorSuite) TestDuplicateNotificationSkipped() {
	s.expectResolvable("Z9M9V", 42, "VOUCHERCODE")
	s.ledger.EXPECT().ConfirmPayment(gomock.Any(), "VOUCHERCODE", "Z9M9V", gomock.Any()).
		Return(&voucherservice.ConfirmResult{}, nil).Times(1)

	_, err := s.processor.Process(s.ctx, paid(117, "Z9M9V"))
	s.Require().NoError(err)
	outcome, err := s.processor.Process(s.ctx, paid(117, "Z9M9V"))
	s.Require().NoError(err)
	s.Equal(OutcomeDuplicate, outcome)
}

func (s *ProcessorSuite) TestAlreadyPaid() {
	s.expectResolvable("Z9M9V", 42, "VOUCHERCODE")
	s.ledger.EXPECT().ConfirmPayment(gomock.Any(), "VOUCHERCODE", "Z9M9V", gomock.Any()).
		Return(&voucherservice.ConfirmResult{AlreadyPaid: true}, nil)

	outcome, err := s.processor.Process(s.ctx, paid(0, "Z9M9V"))
	s.Require().NoError(err)
	s.Equal(OutcomeAlreadyPaid, outcome)
}

func (s *ProcessorSuite) TestUnresolvableMappingsAreAcknowledged() {
	s.Run("order missing at provider", func() {
		s.lookup.EXPECT().FetchOrder(gomock.Any(), "GONE1").Return(nil, nil)
		outcome, err := s.processor.Process(s.ctx, paid(1, "GONE1"))
		s.NoError(err)
		s.Equal(OutcomeUnresolved, outcome)
	})

	s.Run("order without voucher position", func() {
		s.lookup.EXPECT().FetchOrder(gomock.Any(), "NOVOU").Return(&pretix.Order{Code: "NOVOU"}, nil)
		outcome, err := s.processor.Process(s.ctx, paid(2, "NOVOU"))
		s.NoError(err)
		s.Equal(OutcomeUnresolved, outcome)
	})

	s.Run("voucher unknown to the ledger", func() {
		s.expectResolvable("STRAY", 7, "NOTOURS")
		s.ledger.EXPECT().ConfirmPayment(gomock.Any(), "NOTOURS", "STRAY", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "unknown voucher"))
		outcome, err := s.processor.Process(s.ctx, paid(3, "STRAY"))
		s.NoError(err)
		s.Equal(OutcomeUnresolved, outcome)
	})
}

func (s *ProcessorSuite) TestTransientFailureReleasesClaim() {
	s.lookup.EXPECT().FetchOrder(gomock.Any(), "Z9M9V").
		Return(nil, &pretix.ProviderError{Category: pretix.ErrorProviderOutage, Operation: "fetch_order", Status: 502})

	_, err := s.processor.Process(s.ctx, paid(117, "Z9M9V"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.False(s.deduper.seen[117])

	s.expectResolvable("Z9M9V", 42, "VOUCHERCODE")
	s.ledger.EXPECT().ConfirmPayment(gomock.Any(), "VOUCHERCODE", "Z9M9V", gomock.Any()).
		Return(&voucherservice.ConfirmResult{}, nil)
	outcome, err := s.processor.Process(s.ctx, paid(117, "Z9M9V"))
	s.Require().NoError(err)
	s.Equal(OutcomeConfirmed, outcome)
}

func (s *ProcessorSuite) TestHandlerAnswersK() {
	h := NewHandler(s.processor, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.Run("ignored action", func() {
		req := pkgtestutil.NewJSONRequest(s.T(), http.MethodPost, "/_/webhooks/pretix",
			map[string]any{"notification_id": 5, "code": "X", "action": "pretix.event.order.canceled"})
		rr := pkgtestutil.DoRequest(http.HandlerFunc(h.HandleNotification), req)
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("k", rr.Body.String())
	})

	s.Run("malformed body", func() {
		req := pkgtestutil.NewRequestWithBody(s.T(), http.MethodPost, "/_/webhooks/pretix", "{")
		rr := pkgtestutil.DoRequest(http.HandlerFunc(h.HandleNotification), req)
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("k", rr.Body.String())
	})

	s.Run("transient failure is not acknowledged", func() {
		s.lookup.EXPECT().FetchOrder(gomock.Any(), "Z1").Return(nil, errors.New("dial tcp: refused"))
		req := pkgtestutil.NewJSONRequest(s.T(), http.MethodPost, "/_/webhooks/pretix", paid(9, "Z1"))
		rr := pkgtestutil.DoRequest(http.HandlerFunc(h.HandleNotification), req)
		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})
}
