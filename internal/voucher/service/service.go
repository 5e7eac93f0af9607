// Package service implements the voucher ledger: ownership, gifting and
// payment transitions of vouchers, each executed in one ledger transaction.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	accountmodels "memberships/internal/account/models"
	"memberships/internal/notify"
	"memberships/internal/voucher/metrics"
	"memberships/internal/voucher/models"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

type Store interface {
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	LockByCode(ctx context.Context, code string) (*models.Voucher, error)
	LockAccount(ctx context.Context, accountID id.AccountID) error
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]models.Voucher, error)
	HasVouchers(ctx context.Context, accountID id.AccountID) (bool, error)
	Create(ctx context.Context, vouchers []models.Voucher) error
	Update(ctx context.Context, v models.Voucher) error
}

// AccountDirectory resolves account e-mails for notifications.
type AccountDirectory interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*accountmodels.Account, error)
}

// Service is the voucher ledger.
type Service struct {
	store    Store
	tx       LedgerTx
	accounts AccountDirectory
	notifier notify.Notifier
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

// WithTx overrides the in-memory transaction used by default.
func WithTx(tx LedgerTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(store Store, accounts AccountDirectory, notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		accounts: accounts,
		notifier: notifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewInMemoryTx(store)
	}
	return s
}

// ListForAccount returns every voucher the account owns, including expired ones.
func (s *Service) ListForAccount(ctx context.Context, accountID id.AccountID) ([]models.Voucher, error) {
	vouchers, err := s.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vouchers")
	}
	return vouchers, nil
}

func (s *Service) HasVouchers(ctx context.Context, accountID id.AccountID) (bool, error) {
	return s.store.HasVouchers(ctx, accountID)
}

// Transfer hands a non-primary, unpaid, unexpired voucher from origin to
// target. Callers gate this on the transfer window.
func (s *Service) Transfer(ctx context.Context, code string, origin, target id.AccountID) (_ *models.Voucher, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("transfer", start, err) }()

	now := requestcontext.Now(ctx)
	var out models.Voucher
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		v, err := lockVoucher(ctx, store, code)
		if err != nil {
			return err
		}
		if !v.OwnedBy(origin) {
			return dErrors.New(dErrors.CodeForbidden, "voucher does not belong to you")
		}
		if v.IsExpired(now) {
			return dErrors.New(dErrors.CodeValidation, "voucher has expired")
		}
		if v.Primary {
			return dErrors.New(dErrors.CodeForbidden, "your own voucher cannot be transferred")
		}
		if v.IsPaid() {
			return dErrors.New(dErrors.CodeConflict, "voucher has already been used")
		}
		if origin == target {
			return dErrors.New(dErrors.CodeValidation, "cannot transfer a voucher to yourself")
		}

		held, err := lockHoldings(ctx, store, target)
		if err != nil {
			return err
		}
		if models.BlocksIncoming(held, now) {
			return dErrors.New(dErrors.CodeConflict, "recipient already holds a voucher")
		}

		v.OwnerID = target
		v.GiftedTo = id.AccountID{}
		v.UpdatedAt = now
		if err := store.Update(ctx, *v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer voucher")
		}

		if err := s.notifyPair(ctx, notify.KindVoucherTransferred, target, origin, v, now); err != nil {
			return err
		}
		out = *v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "voucher transferred",
		"voucher", out.Code,
		"from_account", origin,
		"to_account", target,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &out, nil
}

// GiftTo marks an unpaid voucher as a gift for target. Ownership moves only
// once the purchaser's payment is confirmed. Primary vouchers may be gifted.
func (s *Service) GiftTo(ctx context.Context, code string, origin, target id.AccountID) (_ *models.Voucher, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("gift", start, err) }()

	now := requestcontext.Now(ctx)
	var out models.Voucher
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		v, err := lockVoucher(ctx, store, code)
		if err != nil {
			return err
		}
		if !v.OwnedBy(origin) {
			return dErrors.New(dErrors.CodeForbidden, "voucher does not belong to you")
		}
		if v.IsPaid() {
			return dErrors.New(dErrors.CodeConflict, "voucher has already been used")
		}
		if v.IsExpired(now) {
			return dErrors.New(dErrors.CodeValidation, "voucher has expired")
		}
		if origin == target {
			return dErrors.New(dErrors.CodeValidation, "cannot gift a voucher to yourself")
		}

		held, err := lockHoldings(ctx, store, target)
		if err != nil {
			return err
		}
		if models.HoldsPaid(held) {
			return dErrors.New(dErrors.CodeConflict, "recipient already holds a ticket")
		}

		v.GiftedTo = target
		v.UpdatedAt = now
		if err := store.Update(ctx, *v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to gift voucher")
		}
		out = *v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "voucher gifted",
		"voucher", out.Code,
		"from_account", origin,
		"to_account", target,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &out, nil
}

// ConfirmResult describes what a payment confirmation changed.
type ConfirmResult struct {
	Voucher models.Voucher
	// AlreadyPaid is true when the voucher had an order and nothing changed.
	AlreadyPaid bool
	// GiftDelivered is true when ownership moved to the gift recipient.
	GiftDelivered bool
	// GiftRejected is true when a pending gift could not be delivered and
	// the voucher stayed with its purchaser.
	GiftRejected bool
}

// ConfirmPayment records the provider order for a voucher. It is idempotent:
// a voucher that already carries an order is left untouched and no
// notification is sent. A pending gift is completed without re-checking the
// transfer window, the primary flag or expiry of the gifted voucher; the
// recipient must still hold no paid or live voucher and no second primary.
func (s *Service) ConfirmPayment(ctx context.Context, code, orderCode, secret string) (_ *ConfirmResult, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("confirm_payment", start, err) }()

	if orderCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "order code is required")
	}

	now := requestcontext.Now(ctx)
	var result ConfirmResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		result = ConfirmResult{}
		v, err := lockVoucher(ctx, store, code)
		if err != nil {
			return err
		}
		if v.IsPaid() {
			result.Voucher = *v
			result.AlreadyPaid = true
			return nil
		}

		v.OrderCode = orderCode
		v.Secret = secret
		v.UpdatedAt = now
		purchaser := v.OwnerID

		if v.HasPendingGift() {
			recipient := v.GiftedTo
			held, err := lockHoldings(ctx, store, recipient)
			if err != nil {
				return err
			}
			v.GiftedTo = id.AccountID{}
			if models.BlocksIncoming(held, now) || (v.Primary && models.HoldsPrimary(held)) {
				result.GiftRejected = true
			} else {
				v.OwnerID = recipient
				result.GiftDelivered = true
			}
		}

		if err := store.Update(ctx, *v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
		}

		if result.GiftDelivered {
			if err := s.notifyPair(ctx, notify.KindGiftedTicket, v.OwnerID, purchaser, v, now); err != nil {
				return err
			}
		} else {
			if err := s.notifyOwner(ctx, notify.KindOrderComplete, purchaser, v, now); err != nil {
				return err
			}
		}
		result.Voucher = *v
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.AlreadyPaid:
		s.logger.InfoContext(ctx, "payment already recorded",
			"voucher", code,
			"order", result.Voucher.OrderCode,
		)
	case result.GiftRejected:
		s.metrics.IncrementGiftFallback()
		s.logger.ErrorContext(ctx, "gift recipient already holds a voucher, voucher kept by purchaser",
			"operator", true,
			"voucher", code,
			"order", orderCode,
			"account_id", result.Voucher.OwnerID,
		)
	default:
		s.logger.InfoContext(ctx, "payment recorded",
			"voucher", code,
			"order", orderCode,
			"account_id", result.Voucher.OwnerID,
			"gift_delivered", result.GiftDelivered,
		)
	}
	return &result, nil
}

// RecordAllocation stores a freshly allocated voucher set for an account; the
// first code becomes the primary voucher. It fails with a conflict if the
// account already holds any voucher, so concurrent draws cannot allocate twice.
func (s *Service) RecordAllocation(ctx context.Context, eventID id.EventID, accountID id.AccountID, codes []string, expires time.Time) (_ []models.Voucher, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("record_allocation", start, err) }()

	if len(codes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no voucher codes to record")
	}

	now := requestcontext.Now(ctx)
	var created []models.Voucher
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		if err := store.LockAccount(ctx, accountID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "account not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock account")
		}
		has, err := store.HasVouchers(ctx, accountID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count vouchers")
		}
		if has {
			return dErrors.Wrap(sentinel.ErrAlreadyUsed, dErrors.CodeConflict, "account already holds vouchers")
		}

		created = make([]models.Voucher, 0, len(codes))
		for i, code := range codes {
			created = append(created, models.Voucher{
				ID:        id.NewVoucherID(),
				Code:      code,
				EventID:   eventID,
				OwnerID:   accountID,
				Primary:   i == 0,
				ExpiresAt: expires,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err := store.Create(ctx, created); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "voucher already recorded")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vouchers")
		}
		return s.notifyOwner(ctx, notify.KindVoucherAllocated, accountID, &created[0], now)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func lockVoucher(ctx context.Context, store Store, code string) (*models.Voucher, error) {
	v, err := store.LockByCode(ctx, code)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown voucher")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load voucher")
	}
	return v, nil
}

func lockHoldings(ctx context.Context, store Store, accountID id.AccountID) ([]models.Voucher, error) {
	if err := store.LockAccount(ctx, accountID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown recipient")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock recipient")
	}
	held, err := store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipient vouchers")
	}
	return held, nil
}

func (s *Service) notifyOwner(ctx context.Context, kind notify.Kind, to id.AccountID, v *models.Voucher, now time.Time) error {
	recipient, err := s.accounts.FindByID(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve recipient")
	}
	msg := notify.NewMessage(kind, recipient.Email, to, now, voucherData(v))
	if err := s.notifier.Enqueue(ctx, msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue notification")
	}
	return nil
}

func (s *Service) notifyPair(ctx context.Context, kind notify.Kind, to, from id.AccountID, v *models.Voucher, now time.Time) error {
	recipient, err := s.accounts.FindByID(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve recipient")
	}
	sender, err := s.accounts.FindByID(ctx, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve sender")
	}
	data := voucherData(v)
	data["sender"] = sender.Email
	msg := notify.NewMessage(kind, recipient.Email, to, now, data)
	if err := s.notifier.Enqueue(ctx, msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue notification")
	}
	return nil
}

func voucherData(v *models.Voucher) map[string]string {
	data := map[string]string{
		"voucher": v.Code,
		"expires": v.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if v.OrderCode != "" {
		data["order"] = v.OrderCode
	}
	return data
}
