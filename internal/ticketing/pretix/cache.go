package pretix

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"memberships/internal/ticketing/metrics"
)

// CachedClient memoizes voucher lookups. A provider voucher's code never
// changes, so lookups are cached in Redis and concurrent misses for the same
// id share one request. Orders change state and always go to the provider.
type CachedClient struct {
	*Client
	redis   redis.Cmdable
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewCachedClient wraps client. A nil redis client disables the shared cache
// but keeps request coalescing.
func NewCachedClient(client *Client, rdb redis.Cmdable, ttl time.Duration, m *metrics.Metrics) *CachedClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedClient{Client: client, redis: rdb, ttl: ttl, metrics: m}
}

func voucherKey(voucherID int64) string {
	return "pretix:voucher:" + strconv.FormatInt(voucherID, 10)
}

func (c *CachedClient) FetchVoucher(ctx context.Context, voucherID int64) (*Voucher, error) {
	if v, ok := c.cached(ctx, voucherID); ok {
		c.metrics.IncrementCache(true)
		return v, nil
	}
	c.metrics.IncrementCache(false)

	res, err, _ := c.group.Do(voucherKey(voucherID), func() (any, error) {
		v, err := c.Client.FetchVoucher(ctx, voucherID)
		if err != nil || v == nil {
			return v, err
		}
		c.store(ctx, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	v, _ := res.(*Voucher)
	return v, nil
}

func (c *CachedClient) cached(ctx context.Context, voucherID int64) (*Voucher, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, voucherKey(voucherID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "pretix cache read failed", "error", err)
		}
		return nil, false
	}
	var v Voucher
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func (c *CachedClient) store(ctx context.Context, v *Voucher) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, voucherKey(v.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "pretix cache write failed", "error", err)
	}
}
