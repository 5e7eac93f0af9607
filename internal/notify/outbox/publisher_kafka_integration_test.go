//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/notify"
	"memberships/internal/platform/kafka"
	"memberships/internal/platform/kafka/consumer"
	"memberships/internal/platform/kafka/producer"
	id "memberships/pkg/domain"
	"memberships/pkg/testutil/containers"
)

type captureHandler struct {
	got chan *consumer.Message
}

func (h captureHandler) Handle(_ context.Context, msg *consumer.Message) error {
	h.got <- msg
	return nil
}

func TestRelayDeliversThroughKafka(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "membership.notifications"
	require.NoError(t, kafka.EnsureTopic(ctx, rp.Brokers, topic, 1, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, rp.Brokers, topic, 1, 1), "existing topic is not an error")

	p, err := producer.New(rp.Brokers)
	require.NoError(t, err)
	defer p.Close()

	store := NewInMemory()
	accountID := id.NewAccountID()
	msg := notify.NewMessage(notify.KindVoucherAllocated, "alice@example.org", accountID, time.Now(), map[string]string{"voucher": "PRIMARY1"})
	require.NoError(t, store.Enqueue(ctx, msg))

	relay := NewRelay(store, NewKafkaPublisher(p, topic))
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := consumer.New(rp.Brokers, "outbox-test", []string{topic}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer c.Close()

	handler := captureHandler{got: make(chan *consumer.Message, 1)}
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = c.Run(runCtx, handler) }()

	select {
	case record := <-handler.got:
		assert.Equal(t, accountID.String(), string(record.Key))
		assert.Equal(t, string(notify.KindVoucherAllocated), record.Headers["kind"])
		var decoded notify.Message
		require.NoError(t, json.Unmarshal(record.Value, &decoded))
		assert.Equal(t, msg.ID, decoded.ID)
		assert.Equal(t, "PRIMARY1", decoded.Data["voucher"])
	case <-ctx.Done():
		t.Fatal("notification was not consumed")
	}
}
