package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventmodels "memberships/internal/event/models"
	"memberships/internal/ticketing/pretix"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/requestcontext"
)

type stubProvider struct {
	requests []pretix.VoucherRequest
	err      error
}

func (p *stubProvider) CreateVouchers(_ context.Context, reqs []pretix.VoucherRequest) ([]pretix.Voucher, error) {
	p.requests = reqs
	if p.err != nil {
		return nil, p.err
	}
	out := make([]pretix.Voucher, 0, len(reqs))
	for i, r := range reqs {
		out = append(out, pretix.Voucher{ID: int64(i + 1), Code: r.Code})
	}
	return out, nil
}

func (p *stubProvider) FetchOrder(context.Context, string) (*pretix.Order, error) { return nil, nil }

func (p *stubProvider) FetchVoucher(context.Context, int64) (*pretix.Voucher, error) { return nil, nil }

func sequence(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestAllocateVoucherPair(t *testing.T) {
	provider := &stubProvider{}
	gw := New(provider, "tickets.example.org", "org", "ev",
		WithCodeGenerator(sequence("FIRST", "SECOND")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	event := eventmodels.Event{ID: id.NewEventID(), TicketItem: 11}

	alloc, err := gw.AllocateVoucherPair(ctx, id.NewAccountID(), event)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIRST", "SECOND"}, alloc.Codes)
	assert.Equal(t, now.Add(48*time.Hour), alloc.ExpiresAt)

	require.Len(t, provider.requests, 2)
	assert.Equal(t, int64(11), provider.requests[0].Item)
	assert.Equal(t, "2026-07-03T10:00:00Z", provider.requests[0].ValidUntil)
}

func TestAllocateVoucherPairUsesEventExpiry(t *testing.T) {
	gw := New(&stubProvider{}, "h", "o", "e", WithCodeGenerator(sequence("A", "B")))
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	alloc, err := gw.AllocateVoucherPair(ctx, id.NewAccountID(), eventmodels.Event{VoucherExpiry: 6 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, now.Add(6*time.Hour), alloc.ExpiresAt)
}

func TestAllocateVoucherPairProviderFailure(t *testing.T) {
	provider := &stubProvider{err: &pretix.ProviderError{Category: pretix.ErrorProviderOutage, Operation: "batch_create", Status: 503, Body: "down"}}
	gw := New(provider, "h", "o", "e", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	alloc, err := gw.AllocateVoucherPair(context.Background(), id.NewAccountID(), eventmodels.Event{})
	assert.Nil(t, alloc)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestRedeemURL(t *testing.T) {
	gw := New(&stubProvider{}, "tickets.example.org", "borderland", "2026")
	assert.Equal(t, "https://tickets.example.org/borderland/2026/redeem?voucher=ABC123", gw.RedeemURL("ABC123"))
	assert.Equal(t, "https://tickets.example.org/borderland/2026/", gw.EventURL())
}
