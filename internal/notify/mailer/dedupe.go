package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deduper claims a message ID before delivery. Claim reports false for a
// message that was already claimed; Release drops a claim after a failed send.
type Deduper interface {
	Claim(ctx context.Context, messageID uuid.UUID) (bool, error)
	Release(ctx context.Context, messageID uuid.UUID) error
}

// RedisDeduper claims message IDs with SET NX so a redelivered record is sent once.
type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, messageID uuid.UUID) (bool, error) {
	ok, err := d.client.SetNX(ctx, "mailer:sent:"+messageID.String(), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", messageID, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, messageID uuid.UUID) error {
	return d.client.Del(ctx, "mailer:sent:"+messageID.String()).Err()
}
