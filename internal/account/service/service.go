package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"memberships/internal/account/models"
	"memberships/internal/platform/metrics"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

type Store interface {
	Upsert(ctx context.Context, email string, now time.Time) (*models.Account, bool, error)
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Register(ctx context.Context, accountID id.AccountID, eventID id.EventID) (bool, error)
	RandomUndrawn(ctx context.Context, eventID id.EventID, exclude []id.AccountID) (*models.Account, error)
}

// BirthDateReader returns the raw date-of-birth answer for an account, or
// sentinel.ErrNotFound when none was given.
type BirthDateReader interface {
	DateOfBirth(ctx context.Context, accountID id.AccountID) (string, error)
}

// VoucherCounter reports whether an account holds any voucher, expired or not.
type VoucherCounter interface {
	HasVouchers(ctx context.Context, accountID id.AccountID) (bool, error)
}

// Service resolves accounts and derives eligibility facts about them.
type Service struct {
	store    Store
	births   BirthDateReader
	vouchers VoucherCounter
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

func New(store Store, births BirthDateReader, vouchers VoucherCounter, opts ...Option) *Service {
	s := &Service{store: store, births: births, vouchers: vouchers, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the account for a verified e-mail, creating it on first use.
func (s *Service) GetOrCreate(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no verified email")
	}
	acc, created, err := s.store.Upsert(ctx, email, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if created {
		s.metrics.IncrementAccountsCreated()
		s.logger.InfoContext(ctx, "account created",
			"account_id", acc.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return acc, nil
}

// FindByEmail looks up an existing account without creating one.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown recipient")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return acc, nil
}

func (s *Service) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	acc, err := s.store.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return acc, nil
}

// Register links the account to the event. It reports whether this call made
// the registration, so callers can notify exactly once.
func (s *Service) Register(ctx context.Context, accountID id.AccountID, eventID id.EventID) (bool, error) {
	changed, err := s.store.Register(ctx, accountID, eventID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register account")
	}
	return changed, nil
}

// IsChild classifies the account by its date-of-birth answer at the
// request-scoped time. A missing, unparsable or unreadable answer counts as
// not a child, so a storage hiccup never hides an adult from the draw.
func (s *Service) IsChild(ctx context.Context, accountID id.AccountID) bool {
	dob, err := s.births.DateOfBirth(ctx, accountID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "date of birth lookup failed",
				"account_id", accountID,
				"error", err,
			)
		}
		return false
	}
	return models.IsChildAt(dob, requestcontext.Now(ctx))
}

// EligibleForDraw is true for registered, voucher-less, non-child accounts.
func (s *Service) EligibleForDraw(ctx context.Context, acc *models.Account, eventID id.EventID) (bool, error) {
	if !acc.IsRegistered(eventID) {
		return false, nil
	}
	has, err := s.vouchers.HasVouchers(ctx, acc.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count vouchers")
	}
	if has {
		return false, nil
	}
	return !s.IsChild(ctx, acc.ID), nil
}

// RandomUndrawn picks a registered, voucher-less account uniformly at random
// from the persisted state, skipping exclude. It returns nil when none remain.
func (s *Service) RandomUndrawn(ctx context.Context, eventID id.EventID, exclude []id.AccountID) (*models.Account, error) {
	acc, err := s.store.RandomUndrawn(ctx, eventID, exclude)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to select account")
	}
	return acc, nil
}
