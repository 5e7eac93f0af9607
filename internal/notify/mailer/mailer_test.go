package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberships/internal/notify"
	"memberships/internal/platform/kafka/consumer"
	id "memberships/pkg/domain"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to, subject, body})
	return nil
}

type memoryDeduper struct {
	claimed map[uuid.UUID]bool
}

func (d *memoryDeduper) Claim(_ context.Context, messageID uuid.UUID) (bool, error) {
	if d.claimed[messageID] {
		return false, nil
	}
	d.claimed[messageID] = true
	return true, nil
}

func (d *memoryDeduper) Release(_ context.Context, messageID uuid.UUID) error {
	delete(d.claimed, messageID)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderEveryKind(t *testing.T) {
	kinds := []notify.Kind{
		notify.KindRegistrationComplete,
		notify.KindVoucherAllocated,
		notify.KindVoucherTransferred,
		notify.KindOrderComplete,
		notify.KindGiftedTicket,
	}
	for _, k := range kinds {
		t.Run(string(k), func(t *testing.T) {
			msg := notify.NewMessage(k, "a@example.org", id.NewAccountID(), time.Now(), map[string]string{
				"sender":  "b@example.org",
				"expires": "2026-07-01T12:00:00Z",
			})
			subject, body, err := Render(msg, "https://memberships.example.org/")
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.Contains(t, body, "https://memberships.example.org/")
		})
	}
}

func TestRenderIncludesSender(t *testing.T) {
	msg := notify.NewMessage(notify.KindVoucherTransferred, "a@example.org", id.NewAccountID(), time.Now(), map[string]string{
		"sender":  "giver@example.org",
		"expires": "tomorrow",
	})
	_, body, err := Render(msg, "https://site")
	require.NoError(t, err)
	assert.Contains(t, body, "giver@example.org")
	assert.Contains(t, body, "expires tomorrow")
}

func TestRenderUnknownKind(t *testing.T) {
	_, _, err := Render(notify.Message{Kind: "nope"}, "https://site")
	assert.Error(t, err)
}

func TestDeliverSkipsDuplicates(t *testing.T) {
	sender := &fakeSender{}
	m := New(sender, "https://site", WithDeduper(&memoryDeduper{claimed: map[uuid.UUID]bool{}}), WithLogger(quietLogger()))
	msg := notify.NewMessage(notify.KindOrderComplete, "a@example.org", id.NewAccountID(), time.Now(), nil)

	require.NoError(t, m.Deliver(context.Background(), msg))
	require.NoError(t, m.Deliver(context.Background(), msg))
	assert.Len(t, sender.sent, 1)
}

func TestDeliverReleasesClaimOnFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay down")}
	dedupe := &memoryDeduper{claimed: map[uuid.UUID]bool{}}
	m := New(sender, "https://site", WithDeduper(dedupe), WithLogger(quietLogger()))
	msg := notify.NewMessage(notify.KindOrderComplete, "a@example.org", id.NewAccountID(), time.Now(), nil)

	require.Error(t, m.Deliver(context.Background(), msg))
	assert.False(t, dedupe.claimed[msg.ID])

	sender.err = nil
	require.NoError(t, m.Deliver(context.Background(), msg))
	assert.Len(t, sender.sent, 1)
}

func TestHandleAcknowledgesMalformedRecords(t *testing.T) {
	sender := &fakeSender{}
	m := New(sender, "https://site", WithLogger(quietLogger()))

	err := m.Handle(context.Background(), &consumer.Message{Value: []byte("{not json")})
	assert.NoError(t, err)

	invalid, _ := json.Marshal(notify.Message{Kind: "bogus", To: "a@example.org"})
	assert.NoError(t, m.Handle(context.Background(), &consumer.Message{Value: invalid}))
	assert.Empty(t, sender.sent)
}

func TestHandleDeliversRecord(t *testing.T) {
	sender := &fakeSender{}
	m := New(sender, "https://site", WithLogger(quietLogger()))
	msg := notify.NewMessage(notify.KindGiftedTicket, "friend@example.org", id.NewAccountID(), time.Now(),
		map[string]string{"sender": "giver@example.org"})
	value, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, m.Handle(context.Background(), &consumer.Message{Value: value}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "friend@example.org", sender.sent[0].to)
	assert.Contains(t, sender.sent[0].body, "giver@example.org")
}

func TestHandleReturnsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay down")}
	m := New(sender, "https://site", WithLogger(quietLogger()))
	msg := notify.NewMessage(notify.KindOrderComplete, "a@example.org", id.NewAccountID(), time.Now(), nil)
	value, _ := json.Marshal(msg)

	assert.Error(t, m.Handle(context.Background(), &consumer.Message{Value: value}))
}

func TestBuildMessageHeaders(t *testing.T) {
	raw := string(buildMessage("from@example.org", "to@example.org", "Hi", "line1\nline2", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Contains(t, raw, "From: from@example.org\r\n")
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "\r\n\r\nline1\r\nline2")
}
