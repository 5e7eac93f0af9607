// Package service is the event orchestrator: it decides which of
// registration, transfer and the fallback codes are available at the current
// instant and assembles the account and event views served to members.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	accountmodels "memberships/internal/account/models"
	eventmodels "memberships/internal/event/models"
	"memberships/internal/notify"
	"memberships/internal/platform/metrics"
	vouchermodels "memberships/internal/voucher/models"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

type EventRepository interface {
	Current(ctx context.Context) (*eventmodels.Event, error)
}

type Accounts interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*accountmodels.Account, error)
	FindByEmail(ctx context.Context, email string) (*accountmodels.Account, error)
	Register(ctx context.Context, accountID id.AccountID, eventID id.EventID) (bool, error)
	IsChild(ctx context.Context, accountID id.AccountID) bool
}

type Ledger interface {
	ListForAccount(ctx context.Context, accountID id.AccountID) ([]vouchermodels.Voucher, error)
	Transfer(ctx context.Context, code string, origin, target id.AccountID) (*vouchermodels.Voucher, error)
	GiftTo(ctx context.Context, code string, origin, target id.AccountID) (*vouchermodels.Voucher, error)
}

// Links builds provider URLs shown to members.
type Links interface {
	RedeemURL(code string) string
	EventURL() string
}

// Tx groups a registration with its notification. The default runs fn
// directly.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// VoucherView carries the expiry as RFC 3339 in UTC.
type VoucherView struct {
	Code    string `json:"code"`
	Expires string `json:"expires"`
}

func newVoucherView(code string, expires time.Time) VoucherView {
	return VoucherView{Code: code, Expires: expires.UTC().Format(time.RFC3339)}
}

type TicketView struct {
	Order string `json:"order"`
}

// AccountView is what /api/registration and /api/transfer return.
type AccountView struct {
	Email      string        `json:"email"`
	Registered bool          `json:"registered"`
	Tickets    *TicketView   `json:"tickets"`
	Vouchers   []VoucherView `json:"vouchers"`
}

// EventView is what /api/lottery returns. Fallback codes are only present
// once first-come-first-served is active.
type EventView struct {
	CanRegister    bool    `json:"can_register"`
	CanTransfer    bool    `json:"can_transfer"`
	FCFSVoucher    string  `json:"fcfs_voucher,omitempty"`
	ChildVoucher   string  `json:"child_voucher,omitempty"`
	ChildItem      int64   `json:"child_item"`
	TicketItem     int64   `json:"ticket_item"`
	PretixEventURL string  `json:"pretix_event_url"`
	Questions      []int64 `json:"questions"`
}

type Service struct {
	events   EventRepository
	accounts Accounts
	ledger   Ledger
	links    Links
	notifier notify.Notifier
	tx       Tx
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTx(tx Tx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(events EventRepository, accounts Accounts, ledger Ledger, links Links, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		events:   events,
		accounts: accounts,
		ledger:   ledger,
		links:    links,
		notifier: notifier,
		tx:       directTx{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) currentEvent(ctx context.Context) (*eventmodels.Event, error) {
	event, err := s.events.Current(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no active event")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	return event, nil
}

// Event returns the gating state of the active event.
func (s *Service) Event(ctx context.Context) (*EventView, error) {
	event, err := s.currentEvent(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	view := &EventView{
		CanRegister:    event.RegistrationAllowed(now),
		CanTransfer:    event.TransferAllowed(now),
		ChildItem:      event.ChildItem,
		TicketItem:     event.TicketItem,
		PretixEventURL: s.links.EventURL(),
		Questions:      append([]int64{}, event.QuestionSetIDs...),
	}
	if event.IsFirstComeFirstServed(now) {
		view.FCFSVoucher = event.FCFSVoucher
		view.ChildVoucher = event.ChildVoucher
	}
	return view, nil
}

// Account returns the member's registration, ticket and voucher state.
func (s *Service) Account(ctx context.Context, accountID id.AccountID) (*AccountView, error) {
	event, err := s.currentEvent(ctx)
	if err != nil {
		return nil, err
	}
	return s.accountView(ctx, accountID, *event)
}

// Register links the account to the active event while registration is
// open. Outside the window the account is returned unchanged. The
// registration notification is queued only by the call that registers.
func (s *Service) Register(ctx context.Context, accountID id.AccountID) (*AccountView, error) {
	event, err := s.currentEvent(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if !event.RegistrationAllowed(now) {
		s.logger.InfoContext(ctx, "registration attempted while closed",
			"account_id", accountID,
			"event_id", event.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return s.accountView(ctx, accountID, *event)
	}

	var registered bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		acc, err := s.accounts.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		registered, err = s.accounts.Register(ctx, accountID, event.ID)
		if err != nil || !registered {
			return err
		}
		msg := notify.NewMessage(notify.KindRegistrationComplete, acc.Email, accountID, now, nil)
		if err := s.notifier.Enqueue(ctx, msg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue notification")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if registered {
		s.metrics.IncrementRegistrations()
		s.logger.InfoContext(ctx, "account registered",
			"account_id", accountID,
			"event_id", event.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return s.accountView(ctx, accountID, *event)
}

// Transfer hands one of the member's vouchers to the account registered
// under email. It is only available inside the transfer window.
func (s *Service) Transfer(ctx context.Context, accountID id.AccountID, code, email string) (*AccountView, error) {
	event, err := s.currentEvent(ctx)
	if err != nil {
		return nil, err
	}
	if !event.TransferAllowed(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeForbidden, "transfers are not open")
	}
	target, err := s.recipient(ctx, code, email)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Transfer(ctx, code, accountID, target.ID); err != nil {
		return nil, err
	}
	return s.accountView(ctx, accountID, *event)
}

// Gift marks a voucher for the account registered under email and returns
// the provider URL where the purchase can be completed.
func (s *Service) Gift(ctx context.Context, accountID id.AccountID, code, email string) (string, error) {
	target, err := s.recipient(ctx, code, email)
	if err != nil {
		return "", err
	}
	v, err := s.ledger.GiftTo(ctx, code, accountID, target.ID)
	if err != nil {
		return "", err
	}
	return s.links.RedeemURL(v.Code), nil
}

func (s *Service) recipient(ctx context.Context, code, email string) (*accountmodels.Account, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "voucher is required")
	}
	email = accountmodels.NormalizeEmail(email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return s.accounts.FindByEmail(ctx, email)
}

func (s *Service) accountView(ctx context.Context, accountID id.AccountID, event eventmodels.Event) (*AccountView, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	held, err := s.ledger.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	view := &AccountView{
		Email:      acc.Email,
		Registered: acc.IsRegistered(event.ID),
		Vouchers:   []VoucherView{},
	}
	for _, v := range held {
		if v.IsPaid() && view.Tickets == nil {
			view.Tickets = &TicketView{Order: v.OrderCode}
		}
	}
	view.Vouchers = s.vouchersFor(ctx, acc.ID, event, held, now)
	return view, nil
}

// vouchersFor resolves what the member may redeem right now. Children get the
// child code once the draw has started, members without a live voucher get
// the shared code under first-come-first-served, everyone else sees their
// own unexpired, unpaid vouchers.
func (s *Service) vouchersFor(ctx context.Context, accountID id.AccountID, event eventmodels.Event, held []vouchermodels.Voucher, now time.Time) []VoucherView {
	fallbackExpiry := event.Transfer.End
	if event.ChildVoucher != "" && !now.Before(event.Lottery.Start) && s.accounts.IsChild(ctx, accountID) {
		return []VoucherView{newVoucherView(event.ChildVoucher, fallbackExpiry)}
	}

	live := make([]VoucherView, 0, len(held))
	for _, v := range held {
		if v.IsPaid() || v.IsExpired(now) {
			continue
		}
		live = append(live, newVoucherView(v.Code, v.ExpiresAt))
	}
	if len(live) == 0 && !vouchermodels.HoldsPaid(held) && event.IsFirstComeFirstServed(now) {
		return []VoucherView{newVoucherView(event.FCFSVoucher, fallbackExpiry)}
	}
	return live
}
