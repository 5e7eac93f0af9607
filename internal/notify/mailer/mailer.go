// Package mailer renders notification messages into e-mails and sends them.
// It runs inside the server when Kafka is not configured, and as its own
// consumer process otherwise.
package mailer

import (
	"context"
	"encoding/json"
	"log/slog"

	"memberships/internal/notify"
	"memberships/internal/platform/kafka/consumer"
)

type Mailer struct {
	sender  Sender
	site    string
	deduper Deduper
	logger  *slog.Logger
}

type Option func(*Mailer)

func WithDeduper(d Deduper) Option {
	return func(m *Mailer) {
		m.deduper = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mailer) {
		m.logger = logger
	}
}

// New builds a mailer whose templates link to site.
func New(sender Sender, site string, opts ...Option) *Mailer {
	m := &Mailer{sender: sender, site: site, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish sends msg immediately, so the outbox relay can deliver straight to
// the mailer when there is no broker.
func (m *Mailer) Publish(ctx context.Context, msg notify.Message) error {
	return m.Deliver(ctx, msg)
}

// Deliver renders and sends msg unless it was delivered before.
func (m *Mailer) Deliver(ctx context.Context, msg notify.Message) error {
	subject, body, err := Render(msg, m.site)
	if err != nil {
		return err
	}

	if m.deduper != nil {
		fresh, err := m.deduper.Claim(ctx, msg.ID)
		if err != nil {
			return err
		}
		if !fresh {
			m.logger.InfoContext(ctx, "duplicate notification skipped", "message_id", msg.ID, "kind", msg.Kind)
			return nil
		}
	}

	if err := m.sender.Send(ctx, msg.To, subject, body); err != nil {
		if m.deduper != nil {
			if relErr := m.deduper.Release(ctx, msg.ID); relErr != nil {
				m.logger.WarnContext(ctx, "failed to release message claim", "message_id", msg.ID, "error", relErr)
			}
		}
		return err
	}
	m.logger.InfoContext(ctx, "notification sent", "message_id", msg.ID, "kind", msg.Kind, "account_id", msg.AccountID)
	return nil
}

// Handle implements consumer.Handler. Malformed records are logged and
// acknowledged so they do not block the partition; send failures are
// returned so the record is redelivered.
func (m *Mailer) Handle(ctx context.Context, record *consumer.Message) error {
	var msg notify.Message
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		m.logger.ErrorContext(ctx, "dropping malformed notification",
			"topic", record.Topic,
			"partition", record.Partition,
			"offset", record.Offset,
			"error", err,
		)
		return nil
	}
	if !msg.Kind.IsValid() || msg.To == "" {
		m.logger.ErrorContext(ctx, "dropping invalid notification",
			"offset", record.Offset,
			"kind", msg.Kind,
		)
		return nil
	}
	return m.Deliver(ctx, msg)
}
