package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/platform/config"
)

func TestNewWithoutURLIsDisabled(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, c.Health(context.Background()))
	assert.NoError(t, c.Close())
}

func TestOptionsOverlayConfig(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:          "redis://cache:6380/2",
		PoolSize:     7,
		MinIdleConns: 2,
		ReadTimeout:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2, opts.MinIdleConns)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}

func TestOptionsRejectsBadURL(t *testing.T) {
	_, err := options(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}
