package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/event/models"
	"memberships/pkg/platform/sentinel"
)

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemory()

	_, err := repo.Current(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	first, err := repo.Upsert(ctx, models.Event{Name: "2026", VoucherExpiry: time.Hour}, true)
	require.NoError(t, err)
	require.False(t, first.ID.IsNil())

	again, err := repo.Upsert(ctx, models.Event{Name: "2026", FCFSVoucher: "LATE"}, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "upsert by name keeps the id")

	current, err := repo.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LATE", current.FCFSVoucher)

	byID, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026", byID.Name)
}
