package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "memberships/pkg/domain"
)

func TestAccessorsDefaultToZeroValues(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, Email(ctx))
	assert.True(t, AccountID(ctx).IsNil())
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	accountID := id.NewAccountID()

	ctx := WithEmail(context.Background(), "someone@example.org")
	ctx = WithAccountID(ctx, accountID)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, "someone@example.org", Email(ctx))
	assert.Equal(t, accountID, AccountID(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
