// Package gateway adapts the ticketing provider to the lottery: it allocates
// voucher pairs for drawn accounts and builds redemption links.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	eventmodels "memberships/internal/event/models"
	"memberships/internal/ticketing/pretix"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/requestcontext"
)

// PairSize is how many vouchers a drawn account receives: its own and a plus-one.
const PairSize = 2

// Provider is the subset of the pretix client the gateway needs.
type Provider interface {
	CreateVouchers(ctx context.Context, reqs []pretix.VoucherRequest) ([]pretix.Voucher, error)
	FetchOrder(ctx context.Context, orderCode string) (*pretix.Order, error)
	FetchVoucher(ctx context.Context, voucherID int64) (*pretix.Voucher, error)
}

// Allocation is a voucher pair created at the provider; Codes[0] is primary.
type Allocation struct {
	Codes     []string
	ExpiresAt time.Time
}

type Gateway struct {
	provider  Provider
	host      string
	organizer string
	event     string
	codes     func() (string, error)
	logger    *slog.Logger
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(g *Gateway) {
		g.codes = fn
	}
}

// New builds a gateway for host/organizer/event on the provider.
func New(provider Provider, host, organizer, event string, opts ...Option) *Gateway {
	g := &Gateway{
		provider:  provider,
		host:      host,
		organizer: organizer,
		event:     event,
		codes:     pretix.GenerateCode,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AllocateVoucherPair asks the provider for two single-use vouchers for the
// event's ticket item. Nothing is persisted here; on failure the provider's
// status and body are logged and a CodeUnavailable error is returned.
func (g *Gateway) AllocateVoucherPair(ctx context.Context, accountID id.AccountID, event eventmodels.Event) (*Allocation, error) {
	expires := requestcontext.Now(ctx).Add(event.VoucherValidity())

	reqs := make([]pretix.VoucherRequest, 0, PairSize)
	for range PairSize {
		code, err := g.codes()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate voucher code")
		}
		reqs = append(reqs, pretix.NewLotteryVoucher(code, event.TicketItem, expires))
	}

	created, err := g.provider.CreateVouchers(ctx, reqs)
	if err != nil {
		attrs := []any{"account_id", accountID, "event_id", event.ID, "error", err}
		var pe *pretix.ProviderError
		if errors.As(err, &pe) {
			attrs = append(attrs, "category", pe.Category, "status", pe.Status, "body", pe.Body)
		}
		g.logger.ErrorContext(ctx, "unable to create vouchers", attrs...)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ticketing provider unavailable")
	}

	alloc := &Allocation{ExpiresAt: expires, Codes: make([]string, 0, len(created))}
	for _, v := range created {
		alloc.Codes = append(alloc.Codes, v.Code)
		g.logger.InfoContext(ctx, "created voucher", "voucher", v.Code, "account_id", accountID)
	}
	return alloc, nil
}

// FetchOrder returns nil when the provider has no such order.
func (g *Gateway) FetchOrder(ctx context.Context, orderCode string) (*pretix.Order, error) {
	return g.provider.FetchOrder(ctx, orderCode)
}

// FetchVoucherInfo returns nil when the provider has no such voucher.
func (g *Gateway) FetchVoucherInfo(ctx context.Context, providerVoucherID int64) (*pretix.Voucher, error) {
	return g.provider.FetchVoucher(ctx, providerVoucherID)
}

// RedeemURL is the provider page where code can be redeemed.
func (g *Gateway) RedeemURL(code string) string {
	return fmt.Sprintf("https://%s/%s/%s/redeem?voucher=%s", g.host, g.organizer, g.event, url.QueryEscape(code))
}

// EventURL is the provider's public page for the event.
func (g *Gateway) EventURL() string {
	return fmt.Sprintf("https://%s/%s/%s/", g.host, g.organizer, g.event)
}
