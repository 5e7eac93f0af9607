package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/notify"
	"memberships/internal/platform/kafka/producer"
	id "memberships/pkg/domain"
)

type recordingPublisher struct {
	sent   []notify.Message
	failOn int
	calls  int
}

func (p *recordingPublisher) Publish(_ context.Context, msg notify.Message) error {
	p.calls++
	if p.failOn > 0 && p.calls == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func enqueue(t *testing.T, store *InMemoryStore, kinds ...notify.Kind) {
	t.Helper()
	for _, k := range kinds {
		msg := notify.NewMessage(k, "member@example.org", id.NewAccountID(), time.Now(), nil)
		require.NoError(t, store.Enqueue(context.Background(), msg))
	}
}

func TestRelayFlushPublishesInOrder(t *testing.T) {
	store := NewInMemory()
	enqueue(t, store, notify.KindRegistrationComplete, notify.KindVoucherAllocated)
	pub := &recordingPublisher{}
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())
	relay := NewRelay(store, pub, WithMetrics(m))

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, notify.KindRegistrationComplete, pub.sent[0].Kind)
	assert.Equal(t, notify.KindVoucherAllocated, pub.sent[1].Kind)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Published.WithLabelValues(string(notify.KindRegistrationComplete), "ok"))+
		testutil.ToFloat64(m.Published.WithLabelValues(string(notify.KindVoucherAllocated), "ok")))

	pending, err := store.Pending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRelayFlushStopsAtFirstFailure(t *testing.T) {
	store := NewInMemory()
	enqueue(t, store, notify.KindRegistrationComplete, notify.KindVoucherAllocated, notify.KindOrderComplete)
	pub := &recordingPublisher{failOn: 2}
	relay := NewRelay(store, pub)

	n, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.Pending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, notify.KindVoucherAllocated, pending[0].Message.Kind)
	assert.Equal(t, 1, pending[0].Attempts)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, pub.sent, 3)
}

func TestRelayFlushRespectsBatchSize(t *testing.T) {
	store := NewInMemory()
	enqueue(t, store, notify.KindOrderComplete, notify.KindOrderComplete, notify.KindOrderComplete)
	relay := NewRelay(store, &recordingPublisher{}, WithBatchSize(2))

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := NewInMemory()
	enqueue(t, store, notify.KindOrderComplete)
	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := store.Pending(context.Background(), 10)
		return len(pending) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

type capturingProducer struct {
	got []producer.Message
}

func (p *capturingProducer) Publish(_ context.Context, msg producer.Message) error {
	p.got = append(p.got, msg)
	return nil
}

func TestKafkaPublisherKeysByAccount(t *testing.T) {
	prod := &capturingProducer{}
	pub := NewKafkaPublisher(prod, "membership.notifications")
	msg := notify.NewMessage(notify.KindGiftedTicket, "friend@example.org", id.NewAccountID(), time.Now(),
		map[string]string{"sender": "giver@example.org"})

	require.NoError(t, pub.Publish(context.Background(), msg))
	require.Len(t, prod.got, 1)
	rec := prod.got[0]
	assert.Equal(t, "membership.notifications", rec.Topic)
	assert.Equal(t, msg.AccountID.String(), string(rec.Key))
	assert.Equal(t, "gifted_ticket", rec.Headers["kind"])
	assert.Contains(t, string(rec.Value), `"sender":"giver@example.org"`)
}
