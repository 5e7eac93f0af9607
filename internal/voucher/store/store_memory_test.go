package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/voucher/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
)

func voucherFor(owner id.AccountID, code string, primary bool) models.Voucher {
	return models.Voucher{
		ID:        id.NewVoucherID(),
		Code:      code,
		OwnerID:   owner,
		Primary:   primary,
		ExpiresAt: time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpdateKeepsOnePrimaryPerAccount(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	alice, bob := id.NewAccountID(), id.NewAccountID()

	alicePrimary := voucherFor(alice, "ALICEPRIMARY", true)
	bobPrimary := voucherFor(bob, "BOBPRIMARY", true)
	require.NoError(t, s.Create(ctx, []models.Voucher{alicePrimary, voucherFor(alice, "ALICEPLUS", false)}))
	require.NoError(t, s.Create(ctx, []models.Voucher{bobPrimary}))

	moved := alicePrimary
	moved.OwnerID = bob
	assert.ErrorIs(t, s.Update(ctx, moved), sentinel.ErrConflict)

	got, err := s.FindByCode(ctx, "ALICEPRIMARY")
	require.NoError(t, err)
	assert.Equal(t, alice, got.OwnerID)

	bobPrimary.OrderCode = "ORD1"
	assert.NoError(t, s.Update(ctx, bobPrimary), "updating the holder's own primary is allowed")

	plus, err := s.FindByCode(ctx, "ALICEPLUS")
	require.NoError(t, err)
	plus.OwnerID = bob
	assert.NoError(t, s.Update(ctx, *plus))
}

func TestUpdateUnknownVoucher(t *testing.T) {
	err := NewInMemory().Update(context.Background(), voucherFor(id.NewAccountID(), "NOPE", false))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
